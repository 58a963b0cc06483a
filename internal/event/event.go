// Package event dispatches entity lifecycle callbacks.
package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/strata/internal/meta"
)

// Kind distinguishes lifecycle events.
type Kind int

const (
	// PreLoad fires before an entity is materialized.
	PreLoad Kind = iota + 1
	// PostLoad fires after a query has materialized its results.
	PostLoad
	PrePersist
	PostPersist
	PreUpdate
	PostUpdate
	PreRemove
	PostRemove
)

var kindNames = map[Kind]string{
	PreLoad:     "pre-load",
	PostLoad:    "post-load",
	PrePersist:  "pre-persist",
	PostPersist: "post-persist",
	PreUpdate:   "pre-update",
	PostUpdate:  "post-update",
	PreRemove:   "pre-remove",
	PostRemove:  "post-remove",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Listener is called for every entity an event fires on.
type Listener func(ctx context.Context, m *meta.EntityMetadata, entity any) error

// Dispatcher fires lifecycle events.
type Dispatcher interface {
	Fire(ctx context.Context, m *meta.EntityMetadata, entity any, kind Kind) error
}

// Registry is a Dispatcher holding listeners per class and kind.
// Listeners registered for the empty class receive events of every class.
// Thread-safe: listeners may be registered while events fire.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string]map[Kind][]Listener
}

var _ Dispatcher = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[string]map[Kind][]Listener)}
}

// On registers l for events of kind on class.
func (r *Registry) On(class string, kind Kind, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byKind, ok := r.listeners[class]
	if !ok {
		byKind = make(map[Kind][]Listener)
		r.listeners[class] = byKind
	}
	byKind[kind] = append(byKind[kind], l)
}

// Fire calls the class listeners, then the catch-all listeners, in
// registration order. The first listener error stops dispatch.
func (r *Registry) Fire(ctx context.Context, m *meta.EntityMetadata, entity any, kind Kind) error {
	r.mu.RLock()
	var ls []Listener
	ls = append(ls, r.listeners[m.Class][kind]...)
	if m.Class != "" {
		ls = append(ls, r.listeners[""][kind]...)
	}
	r.mu.RUnlock()

	for _, l := range ls {
		if err := l(ctx, m, entity); err != nil {
			return fmt.Errorf("%s listener for %s: %w", kind, m.Class, err)
		}
	}
	return nil
}

// Nop is a Dispatcher that does nothing.
type Nop struct{}

// Fire implements Dispatcher.
func (Nop) Fire(context.Context, *meta.EntityMetadata, any, Kind) error { return nil }
