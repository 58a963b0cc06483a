// Package session routes entities to the client of their persistence unit.
//
// A Session owns the catalog, one client per persistence unit, the
// lifecycle event dispatcher and a first-level cache of loaded and written
// entities keyed by class and id.
//
// Thread-safety: the cache is guarded by a mutex; clients are used as
// their own contracts allow.
package session

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/event"
	"github.com/roach88/strata/internal/materialize"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/metrics"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
)

// Session is the persistence delegator.
type Session struct {
	catalog meta.Catalog
	clients map[string]client.Client
	events  event.Dispatcher
	reader  *materialize.Reader
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	cache map[string]any
}

// Option configures a Session.
type Option func(*Session)

// WithEvents sets the lifecycle event dispatcher.
func WithEvents(d event.Dispatcher) Option {
	return func(s *Session) {
		if d != nil {
			s.events = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records materialization metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New creates a session over clients keyed by persistence unit.
func New(catalog meta.Catalog, clients map[string]client.Client, opts ...Option) *Session {
	s := &Session{
		catalog: catalog,
		clients: clients,
		events:  event.Nop{},
		logger:  zap.NewNop(),
		cache:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reader = materialize.NewReader(catalog, s,
		materialize.WithLogger(s.logger),
		materialize.WithMetrics(s.metrics))
	return s
}

// Catalog returns the entity catalog.
func (s *Session) Catalog() meta.Catalog { return s.catalog }

// Reader returns the materializer bound to this session's clients.
func (s *Session) Reader() *materialize.Reader { return s.reader }

// Events returns the lifecycle event dispatcher.
func (s *Session) Events() event.Dispatcher { return s.events }

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// Metrics returns the session metrics, possibly nil.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// ClientFor returns the client of m's persistence unit.
func (s *Session) ClientFor(m *meta.EntityMetadata) (client.Client, error) {
	c, ok := s.clients[m.PersistenceUnit]
	if !ok || c == nil {
		return nil, ormerr.IllegalState(fmt.Sprintf("no client for persistence unit %q of %s", m.PersistenceUnit, m.Class))
	}
	return c, nil
}

// Metadata returns the metadata of an entity value: by class for records,
// by Go type otherwise.
func (s *Session) Metadata(entity any) (*meta.EntityMetadata, error) {
	if rec, ok := entity.(*meta.Record); ok && rec != nil {
		m, err := s.catalog.Entity(rec.Class)
		if err != nil {
			return nil, ormerr.IllegalArgument(err.Error())
		}
		return m, nil
	}
	t := reflect.TypeOf(entity)
	for _, m := range s.catalog.Entities("") {
		if m.Type != nil && m.Type == t {
			return m, nil
		}
	}
	return nil, ormerr.IllegalArgument(fmt.Sprintf("%T is not a registered entity", entity))
}

func cacheKey(m *meta.EntityMetadata, id any) string {
	return m.Class + "\x00" + prop.String(prop.ToNative(id))
}

func (s *Session) cached(m *meta.EntityMetadata, id any) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache[cacheKey(m, id)]
	return e, ok
}

func (s *Session) remember(m *meta.EntityMetadata, entity any) {
	id, err := meta.ID(entity, m)
	if err != nil || id == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[cacheKey(m, id)] = entity
}

func (s *Session) evict(m *meta.EntityMetadata, id any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, cacheKey(m, id))
}

// Contains reports whether the entity's class and id are cached.
func (s *Session) Contains(entity any) bool {
	m, err := s.Metadata(entity)
	if err != nil {
		return false
	}
	id, err := meta.ID(entity, m)
	if err != nil || id == nil {
		return false
	}
	_, ok := s.cached(m, id)
	return ok
}

// Clear empties the cache.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]any)
}

// Persist inserts a new entity.
func (s *Session) Persist(ctx context.Context, entity any) error {
	m, c, err := s.route(entity)
	if err != nil {
		return err
	}
	if err := s.events.Fire(ctx, m, entity, event.PrePersist); err != nil {
		return err
	}
	if err := c.Persist(ctx, m, entity); err != nil {
		return fmt.Errorf("persist %s: %w", m.Class, err)
	}
	s.remember(m, entity)
	return s.events.Fire(ctx, m, entity, event.PostPersist)
}

// Merge inserts or replaces an entity, cascading to the targets of its
// relations first. Relationship entities are written by their owner.
func (s *Session) Merge(ctx context.Context, entity any) error {
	return s.merge(ctx, entity, make(map[string]bool))
}

func (s *Session) merge(ctx context.Context, entity any, visited map[string]bool) error {
	m, c, err := s.route(entity)
	if err != nil {
		return err
	}
	id, err := meta.ID(entity, m)
	if err != nil {
		return err
	}
	key := cacheKey(m, id)
	if visited[key] {
		return nil
	}
	visited[key] = true

	for _, rel := range m.Relations {
		if rel.MapKeyJoinClass != "" {
			continue
		}
		v, err := m.Accessor.Get(entity, rel.Field)
		if err != nil {
			return ormerr.Mapping(m.Class, rel.Property, err)
		}
		targets := meta.Elements(v)
		if !rel.Collection && v != nil && !isNilPointer(v) {
			targets = []any{v}
		}
		for _, target := range targets {
			if err := s.merge(ctx, target, visited); err != nil {
				return err
			}
		}
	}

	if err := s.events.Fire(ctx, m, entity, event.PreUpdate); err != nil {
		return err
	}
	if err := c.Merge(ctx, m, entity); err != nil {
		return fmt.Errorf("merge %s: %w", m.Class, err)
	}
	s.remember(m, entity)
	return s.events.Fire(ctx, m, entity, event.PostUpdate)
}

// Remove deletes an entity.
func (s *Session) Remove(ctx context.Context, entity any) error {
	m, c, err := s.route(entity)
	if err != nil {
		return err
	}
	id, err := meta.ID(entity, m)
	if err != nil {
		return err
	}
	if err := s.events.Fire(ctx, m, entity, event.PreRemove); err != nil {
		return err
	}
	if err := c.Remove(ctx, m, entity); err != nil {
		return fmt.Errorf("remove %s: %w", m.Class, err)
	}
	s.evict(m, id)
	return s.events.Fire(ctx, m, entity, event.PostRemove)
}

// Find returns the entity of m with the given id, or nil when none exists.
// Cached entities are returned without a backend call.
func (s *Session) Find(ctx context.Context, m *meta.EntityMetadata, id any) (any, error) {
	if id == nil {
		return nil, ormerr.IllegalArgument(fmt.Sprintf("find %s: nil id", m.Class))
	}
	found, err := s.FindByIDs(ctx, m, []any{id})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// FindByIDs returns the entities of m with the given ids, in the order of
// ids. Missing ids are skipped. Entities loaded from the backend fire
// post-load events.
func (s *Session) FindByIDs(ctx context.Context, m *meta.EntityMetadata, ids []any) ([]any, error) {
	var missing []any
	for _, id := range ids {
		if _, ok := s.cached(m, id); !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		loaded, err := s.reader.FindByIDs(ctx, m, missing, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range loaded {
			s.remember(m, e)
			if err := s.events.Fire(ctx, m, e, event.PostLoad); err != nil {
				return nil, err
			}
		}
	}

	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.cached(m, id); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Session) route(entity any) (*meta.EntityMetadata, client.Client, error) {
	if entity == nil || isNilPointer(entity) {
		return nil, nil, ormerr.IllegalArgument("nil entity")
	}
	m, err := s.Metadata(entity)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.ClientFor(m)
	if err != nil {
		return nil, nil, err
	}
	return m, c, nil
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
