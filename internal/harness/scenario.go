package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: a catalog, setup writes, a flow
// of steps with expectations and assertions over the resulting trace and
// stored state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the CUE catalog directory, relative to the scenario file.
	Catalog string `yaml:"catalog"`

	// Units maps persistence units to backends ("sqlite" or "memory").
	// Units missing from the map use the in-memory graph.
	Units map[string]string `yaml:"units,omitempty"`

	// Setup steps establish initial state. Any setup error aborts the run.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one session or query operation. Exactly one of Persist, Merge,
// Remove, Find or Query is set.
type Step struct {
	Persist string `yaml:"persist,omitempty"`
	Merge   string `yaml:"merge,omitempty"`
	Remove  string `yaml:"remove,omitempty"`
	Find    string `yaml:"find,omitempty"`
	Query   string `yaml:"query,omitempty"`

	// ID identifies the entity for remove and find.
	ID any `yaml:"id,omitempty"`

	// Values are attribute values for persist and merge, keyed by query
	// path ("home.city"). Relations take the id (or list of ids) of an
	// entity written earlier in the scenario.
	Values map[string]any `yaml:"values,omitempty"`

	// Params binds query parameters. Keys that are integers bind
	// positional parameters.
	Params map[string]any `yaml:"params,omitempty"`

	Hints      map[string]any `yaml:"hints,omitempty"`
	MaxResults *int           `yaml:"max_results,omitempty"`
	FetchSize  int            `yaml:"fetch_size,omitempty"`

	// Mode selects how a query executes: list (default), single, update
	// or iterate.
	Mode string `yaml:"mode,omitempty"`

	// Expect validates the step outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Query execution modes.
const (
	ModeList    = "list"
	ModeSingle  = "single"
	ModeUpdate  = "update"
	ModeIterate = "iterate"
)

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Count is the number of results (entities found or affected).
	Count *int `yaml:"count,omitempty"`

	// Results are matched in order against the results; each is a subset
	// of the result's attribute values.
	Results []map[string]any `yaml:"results,omitempty"`

	// Error is the expected error code, e.g. NO_RESULT.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an entry with Kind, Action and Entity exists, with args as a subset
	// - "trace_order": Actions appear in order
	// - "trace_count": Action appears exactly Count times
	// - "final_state": the stored entity matches Expect, or is gone when Absent
	Type string `yaml:"type"`

	// Kind filters trace entries by type; empty matches steps and events.
	Kind string `yaml:"kind,omitempty"`

	// Action is the step class/query or event kind.
	Action string `yaml:"action,omitempty"`

	// Entity filters trace entries by class; for final_state it names the
	// class to load.
	Entity string `yaml:"entity,omitempty"`

	// Args are the expected entry args (subset match).
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// ID and Expect select and check the stored entity (final_state).
	ID     any            `yaml:"id,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
	Absent bool           `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file, resolving the catalog
// path relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// a relative catalog path against basePath. Unknown fields are rejected.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) && basePath != "" {
		scenario.Catalog = filepath.Join(basePath, scenario.Catalog)
	}
	if err := validateCatalogPath(scenario.Catalog); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML. The catalog path is
// left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateCatalogPath(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("catalog directory not found: %s", dir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("catalog is not a directory: %s", dir)
	}
	return nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for unit, backend := range s.Units {
		if backend != BackendSQLite && backend != BackendMemory {
			return fmt.Errorf("units.%s: unsupported backend %q", unit, backend)
		}
	}

	for i := range s.Setup {
		if err := validateStep(&s.Setup[i]); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if s.Setup[i].Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}
	for i := range s.Flow {
		if err := validateStep(&s.Flow[i]); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// Backends a scenario unit can run on.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Kind returns the step type and its target (class or query string).
func (s *Step) Kind() (string, string) {
	switch {
	case s.Persist != "":
		return TracePersist, s.Persist
	case s.Merge != "":
		return TraceMerge, s.Merge
	case s.Remove != "":
		return TraceRemove, s.Remove
	case s.Find != "":
		return TraceFind, s.Find
	case s.Query != "":
		return TraceQuery, s.Query
	}
	return "", ""
}

func validateStep(s *Step) error {
	set := 0
	for _, v := range []string{s.Persist, s.Merge, s.Remove, s.Find, s.Query} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of persist, merge, remove, find or query is required")
	}

	kind, _ := s.Kind()
	switch kind {
	case TracePersist, TraceMerge:
		if len(s.Values) == 0 {
			return fmt.Errorf("values are required for %s", kind)
		}
	case TraceRemove, TraceFind:
		if s.ID == nil {
			return fmt.Errorf("id is required for %s", kind)
		}
	case TraceQuery:
		switch s.Mode {
		case "", ModeList, ModeSingle, ModeUpdate, ModeIterate:
		default:
			return fmt.Errorf("unknown query mode %q", s.Mode)
		}
	}
	if kind != TraceQuery && (len(s.Params) > 0 || len(s.Hints) > 0 || s.Mode != "" || s.MaxResults != nil || s.FetchSize != 0) {
		return fmt.Errorf("params, hints, mode, max_results and fetch_size apply to queries only")
	}
	if s.Expect != nil && s.Expect.Count != nil && *s.Expect.Count < 0 {
		return fmt.Errorf("expect.count must be non-negative")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for final_state", index)
		}
		if a.ID == nil {
			return fmt.Errorf("assertions[%d]: id is required for final_state", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
