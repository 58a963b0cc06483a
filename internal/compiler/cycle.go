package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/strata/internal/meta"
)

// CycleWarning reports a cycle in the relation graph of a catalog.
//
// Cycles are legal: Author.books and Book.author form one. They are
// reported because loading an entity on a cycle hydrates every entity
// reachable from it.
type CycleWarning struct {
	Path    []string `json:"path"`    // Class path: ["example.Author", "example.Book", "example.Author"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles finds the strongly connected components of the relation
// graph (owner class → target class) and returns one warning per cycle.
// Relationship-entity relations add no edge of their own. Warnings are
// ordered by the first class of their path.
func AnalyzeCycles(entities []*meta.EntityMetadata) []CycleWarning {
	if len(entities) == 0 {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(entities)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].Path[0] < warnings[j].Path[0]
	})
	return warnings
}

// dependencyGraph maps an owner class to the classes its relations target.
type dependencyGraph map[string][]string

func buildDependencyGraph(entities []*meta.EntityMetadata) dependencyGraph {
	graph := make(dependencyGraph)
	for _, m := range entities {
		if graph[m.Class] == nil {
			graph[m.Class] = []string{}
		}
		for _, r := range m.Relations {
			graph[m.Class] = append(graph[m.Class], r.Target)
		}
	}
	for node, edges := range graph {
		sort.Strings(edges)
		graph[node] = edges
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC returns the strongly connected components of graph. Each
// component is sorted; single nodes without self-loops are not cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		class := scc[0]
		return CycleWarning{
			Path:    []string{class, class},
			Message: fmt.Sprintf("self-referencing entity: %s → %s", class, class),
			Level:   "info",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("relation cycle: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks edges inside the component from its first
// member until it returns there.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
