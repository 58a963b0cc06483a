package graph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/roach88/strata/internal/prop"
)

// MemStore is an in-memory Store. Records handed out are copies; changes
// reach the store only through Save calls.
type MemStore struct {
	mu        sync.Mutex
	seq       int
	nodes     map[string]*Node
	nodeOrder []string
	rels      map[string]*Relationship
	relOrder  []string
	relIndex  map[string]string // relationship element id -> index
	autoIndex bool
	openHits  int
}

// MemOption configures a MemStore.
type MemOption func(*MemStore)

// WithAutoIndexing enables the automatic node index.
func WithAutoIndexing(enabled bool) MemOption {
	return func(s *MemStore) { s.autoIndex = enabled }
}

// NewMemStore creates an empty in-memory graph.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		nodes:    make(map[string]*Node),
		rels:     make(map[string]*Relationship),
		relIndex: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) nextID(prefix string) string {
	s.seq++
	return prefix + strconv.Itoa(s.seq)
}

func sameKey(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return prop.String(prop.ToNative(a)) == prop.String(prop.ToNative(b))
}

func hasLabel(n *Node, label string) bool {
	return slices.Contains(n.Labels, label)
}

// GetOrCreateNode implements Store.
func (s *MemStore) GetOrCreateNode(_ context.Context, index, key string, value any, init InitFunc) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		if hasLabel(n, index) && sameKey(n.Props[key], value) {
			return n.clone(), nil
		}
	}

	n := &Node{ElementID: s.nextID("n"), Labels: []string{index}, Props: make(map[string]any)}
	if init != nil {
		init(n, map[string]any{key: value})
	}
	s.nodes[n.ElementID] = n
	s.nodeOrder = append(s.nodeOrder, n.ElementID)
	return n.clone(), nil
}

// GetOrCreateRelationship implements Store.
func (s *MemStore) GetOrCreateRelationship(_ context.Context, index, key string, value any, start, end *Node, relType string, init InitFunc) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNodes(start, end); err != nil {
		return nil, err
	}
	for _, id := range s.relOrder {
		r := s.rels[id]
		if r.Type == relType && s.relIndex[id] == index && r.StartID == start.ElementID &&
			r.EndID == end.ElementID && sameKey(r.Props[key], value) {
			return r.clone(), nil
		}
	}

	r := &Relationship{
		ElementID: s.nextID("r"),
		Type:      relType,
		StartID:   start.ElementID,
		EndID:     end.ElementID,
		Props:     make(map[string]any),
	}
	if init != nil {
		init(r, map[string]any{key: value})
	}
	s.rels[r.ElementID] = r
	s.relOrder = append(s.relOrder, r.ElementID)
	s.relIndex[r.ElementID] = index
	return r.clone(), nil
}

// Relate implements Store.
func (s *MemStore) Relate(_ context.Context, start, end *Node, relType string) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNodes(start, end); err != nil {
		return nil, err
	}
	for _, id := range s.relOrder {
		r := s.rels[id]
		if r.Type == relType && r.StartID == start.ElementID && r.EndID == end.ElementID {
			return r.clone(), nil
		}
	}
	r := &Relationship{ElementID: s.nextID("r"), Type: relType, StartID: start.ElementID, EndID: end.ElementID}
	s.rels[r.ElementID] = r
	s.relOrder = append(s.relOrder, r.ElementID)
	return r.clone(), nil
}

func (s *MemStore) checkNodes(nodes ...*Node) error {
	for _, n := range nodes {
		if n == nil {
			return fmt.Errorf("memstore: nil node")
		}
		if _, ok := s.nodes[n.ElementID]; !ok {
			return fmt.Errorf("memstore: no node %s", n.ElementID)
		}
	}
	return nil
}

// Lookup implements Store.
func (s *MemStore) Lookup(_ context.Context, index, key string, value any) (Hits, error) {
	return s.lookup(func(n *Node) bool { return hasLabel(n, index) && sameKey(n.Props[key], value) }), nil
}

// AutoLookup implements Store.
func (s *MemStore) AutoLookup(_ context.Context, key string, value any) (Hits, error) {
	if !s.autoIndex {
		return nil, fmt.Errorf("memstore: automatic node index is disabled")
	}
	return s.lookup(func(n *Node) bool { return sameKey(n.Props[key], value) }), nil
}

func (s *MemStore) lookup(match func(*Node) bool) Hits {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := &memHits{store: s}
	for _, id := range s.nodeOrder {
		if n := s.nodes[id]; match(n) {
			h.nodes = append(h.nodes, n.clone())
		}
	}
	s.openHits++
	return h
}

// AutoIndexing implements Store.
func (s *MemStore) AutoIndexing(context.Context) bool {
	return s.autoIndex
}

// SaveNode implements Store.
func (s *MemStore) SaveNode(_ context.Context, n *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNodes(n); err != nil {
		return err
	}
	s.nodes[n.ElementID] = n.clone()
	return nil
}

// SaveRelationship implements Store.
func (s *MemStore) SaveRelationship(_ context.Context, r *Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rels[r.ElementID]; !ok {
		return fmt.Errorf("memstore: no relationship %s", r.ElementID)
	}
	s.rels[r.ElementID] = r.clone()
	return nil
}

// Nodes implements Store.
func (s *MemStore) Nodes(_ context.Context, index, orderKey string) ([]*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Node
	for _, id := range s.nodeOrder {
		if n := s.nodes[id]; hasLabel(n, index) {
			out = append(out, n.clone())
		}
	}
	slices.SortStableFunc(out, func(a, b *Node) int {
		return cmp.Compare(prop.String(a.Props[orderKey]), prop.String(b.Props[orderKey]))
	})
	return out, nil
}

// Outgoing implements Store.
func (s *MemStore) Outgoing(_ context.Context, start *Node, relType string) ([]Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Edge
	for _, id := range s.relOrder {
		r := s.rels[id]
		if r.StartID == start.ElementID && r.Type == relType {
			out = append(out, Edge{Rel: r.clone(), End: s.nodes[r.EndID].clone()})
		}
	}
	return out, nil
}

// DeleteOutgoing implements Store.
func (s *MemStore) DeleteOutgoing(_ context.Context, start *Node, relType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteRels(func(r *Relationship) bool { return r.StartID == start.ElementID && r.Type == relType })
	return nil
}

// DeleteNode implements Store.
func (s *MemStore) DeleteNode(_ context.Context, n *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteRels(func(r *Relationship) bool { return r.StartID == n.ElementID || r.EndID == n.ElementID })
	delete(s.nodes, n.ElementID)
	s.nodeOrder = slices.DeleteFunc(s.nodeOrder, func(id string) bool { return id == n.ElementID })
	return nil
}

func (s *MemStore) deleteRels(match func(*Relationship) bool) {
	s.relOrder = slices.DeleteFunc(s.relOrder, func(id string) bool {
		if match(s.rels[id]) {
			delete(s.rels, id)
			delete(s.relIndex, id)
			return true
		}
		return false
	})
}

// OpenHits returns the number of lookup cursors not yet closed.
func (s *MemStore) OpenHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openHits
}

// Close implements Store.
func (s *MemStore) Close(context.Context) error {
	return nil
}

type memHits struct {
	store  *MemStore
	nodes  []*Node
	closed bool
}

func (h *memHits) Size() int { return len(h.nodes) }

func (h *memHits) Single() (*Node, error) {
	switch len(h.nodes) {
	case 0:
		return nil, nil
	case 1:
		return h.nodes[0], nil
	default:
		return nil, fmt.Errorf("memstore: %d hits where one was expected", len(h.nodes))
	}
}

func (h *memHits) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.store.mu.Lock()
	h.store.openHits--
	h.store.mu.Unlock()
	return nil
}
