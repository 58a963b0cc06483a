package graph

import "maps"

// Record is a graph element holding properties.
type Record interface {
	// Property returns the value of key, or nil when absent.
	Property(key string) any

	// SetProperty stores value under key. A nil value removes the key.
	SetProperty(key string, value any)

	// Properties returns the property map. Callers must not modify it.
	Properties() map[string]any
}

// InitFunc initializes a freshly created record. props holds the unique
// key and value the record was created for.
type InitFunc func(rec Record, props map[string]any)

// Node is a graph node.
type Node struct {
	ElementID string
	Labels    []string
	Props     map[string]any
}

// Property implements Record.
func (n *Node) Property(key string) any { return n.Props[key] }

// SetProperty implements Record.
func (n *Node) SetProperty(key string, value any) {
	if value == nil {
		delete(n.Props, key)
		return
	}
	if n.Props == nil {
		n.Props = make(map[string]any)
	}
	n.Props[key] = value
}

// Properties implements Record.
func (n *Node) Properties() map[string]any { return n.Props }

func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	return &Node{ElementID: n.ElementID, Labels: append([]string(nil), n.Labels...), Props: maps.Clone(n.Props)}
}

// Relationship is a directed, typed graph edge.
type Relationship struct {
	ElementID string
	Type      string
	StartID   string
	EndID     string
	Props     map[string]any
}

// Property implements Record.
func (r *Relationship) Property(key string) any { return r.Props[key] }

// SetProperty implements Record.
func (r *Relationship) SetProperty(key string, value any) {
	if value == nil {
		delete(r.Props, key)
		return
	}
	if r.Props == nil {
		r.Props = make(map[string]any)
	}
	r.Props[key] = value
}

// Properties implements Record.
func (r *Relationship) Properties() map[string]any { return r.Props }

func (r *Relationship) clone() *Relationship {
	if r == nil {
		return nil
	}
	c := *r
	c.Props = maps.Clone(r.Props)
	return &c
}

// Edge is an outgoing relationship together with its end node.
type Edge struct {
	Rel *Relationship
	End *Node
}
