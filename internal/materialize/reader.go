// Package materialize turns backend rows into entity graphs.
//
// A Reader picks one of three paths per query:
//
//   - flat: the entity has no relations; rows are decoded one by one
//   - relational: rows are decoded and every declared relation is
//     resolved recursively, guarded by a per-fetch identity map
//   - search: the filters are translated to the search grammar, run
//     through the client's index, and the matching keys are loaded
package materialize

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/metrics"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/querysearch"
)

// DefaultMax bounds result lists when no maximum is set.
const DefaultMax = 100

// SearchHint forces the search path when set to true.
const SearchHint = "strata.search"

// Clients resolves the client serving an entity.
type Clients interface {
	ClientFor(m *meta.EntityMetadata) (client.Client, error)
}

// Options control one Populate call.
type Options struct {
	Max       int      // Result bound; <= 0 means DefaultMax
	Columns   []string // Selected attribute paths; empty loads whole entities
	Search    bool     // Force the search path
	FetchSize int      // Keys per FindAll batch; <= 0 loads all keys at once
}

func (o Options) max() int {
	if o.Max <= 0 {
		return DefaultMax
	}
	return o.Max
}

// EnhanceEntity is a decoded entity awaiting relation resolution.
type EnhanceEntity struct {
	Entity    any
	ID        any
	Relations map[string]any
}

// Reader materializes query results.
type Reader struct {
	catalog meta.Catalog
	clients Clients
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records materialized entities and search queries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}

// NewReader creates a Reader. clients resolves the targets of relations.
func NewReader(catalog meta.Catalog, clients Clients, opts ...Option) *Reader {
	r := &Reader{catalog: catalog, clients: clients, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the path Populate takes for the given query.
func (r *Reader) Path(m *meta.EntityMetadata, c client.Client, q *queryir.Query, opts Options) string {
	filtered := q != nil && len(q.Filters) > 0
	switch {
	case opts.Search || (filtered && !c.Capabilities().NativeFilter):
		return metrics.PathSearch
	case m.HasRelations():
		return metrics.PathRelational
	default:
		return metrics.PathFlat
	}
}

// Populate loads the entities of m matching the resolved query q through c.
// At most opts.Max entities are returned.
func (r *Reader) Populate(ctx context.Context, m *meta.EntityMetadata, c client.Client, q *queryir.Query, opts Options) ([]any, error) {
	start := time.Now()
	limit := opts.max()
	path := r.Path(m, c, q, opts)

	var out []any
	var err error
	if path == metrics.PathSearch {
		out, err = r.fromSearch(ctx, m, c, q, opts, limit)
	} else {
		out, err = r.fromRows(ctx, m, c, q, opts, limit)
	}
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		out = out[:limit]
	}

	r.metrics.RecordMaterialized(len(out))
	r.logger.Debug("materialized",
		zap.String("entity", m.Class),
		zap.String("path", path),
		zap.Int("count", len(out)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (r *Reader) fromRows(ctx context.Context, m *meta.EntityMetadata, c client.Client, q *queryir.Query, opts Options, limit int) ([]any, error) {
	rows, err := c.Find(ctx, m, q, limit)
	if err != nil {
		return nil, err
	}
	f := r.newFetch()
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		values, err := project(m, row.Values, opts.Columns)
		if err != nil {
			return nil, err
		}
		row.Values = values
		entity, err := f.entity(ctx, m, c, row)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (r *Reader) fromSearch(ctx context.Context, m *meta.EntityMetadata, c client.Client, q *queryir.Query, opts Options, limit int) ([]any, error) {
	idx := c.IndexManager()
	if idx == nil {
		return nil, ormerr.IllegalState(fmt.Sprintf("%s: search requires a search index", m.Class))
	}
	var filters []queryir.Element
	if q != nil {
		filters = q.Filters
	}
	keys, err := querysearch.Keys(ctx, idx, filters, m, limit)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordSearch(len(keys))
	if len(keys) == 0 {
		return nil, nil
	}

	if len(opts.Columns) == 0 {
		return r.FindByIDs(ctx, m, keys, opts.FetchSize)
	}

	rows, err := findAll(ctx, c, m, opts.Columns, keys, opts.FetchSize)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		entity, err := Decode(r.catalog, m, row.Values)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

// FindByIDs loads fully resolved entities of m by primary key, in the
// order of ids. Missing keys are skipped.
func (r *Reader) FindByIDs(ctx context.Context, m *meta.EntityMetadata, ids []any, fetchSize int) ([]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	c, err := r.clients.ClientFor(m)
	if err != nil {
		return nil, err
	}
	rows, err := findAll(ctx, c, m, nil, ids, fetchSize)
	if err != nil {
		return nil, err
	}
	f := r.newFetch()
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		entity, err := f.entity(ctx, m, c, row)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

// findAll calls FindAll in batches of fetchSize keys.
func findAll(ctx context.Context, c client.Client, m *meta.EntityMetadata, columns []string, ids []any, fetchSize int) ([]client.Row, error) {
	if fetchSize <= 0 || fetchSize >= len(ids) {
		return c.FindAll(ctx, m, columns, ids)
	}
	var rows []client.Row
	for start := 0; start < len(ids); start += fetchSize {
		end := min(start+fetchSize, len(ids))
		batch, err := c.FindAll(ctx, m, columns, ids[start:end])
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}

// fetch is the state of one materialization: the identity map keyed by
// class and id.
type fetch struct {
	r    *Reader
	seen map[string]any
}

func (r *Reader) newFetch() *fetch {
	return &fetch{r: r, seen: make(map[string]any)}
}

func identity(m *meta.EntityMetadata, id any) string {
	return m.Class + "\x00" + prop.String(prop.ToNative(id))
}

// entity decodes a row, or returns the entity already built for its id.
func (f *fetch) entity(ctx context.Context, m *meta.EntityMetadata, c client.Client, row client.Row) (any, error) {
	id, err := prop.FromNative(row.Values[m.ID.Column], m.ID.Kind)
	if err != nil {
		return nil, ormerr.Mapping(m.Class, m.ID.Name, err)
	}
	key := identity(m, id)
	if e, ok := f.seen[key]; ok {
		return e, nil
	}

	entity, err := Decode(f.r.catalog, m, row.Values)
	if err != nil {
		return nil, err
	}
	f.seen[key] = entity
	if !m.HasRelations() {
		return entity, nil
	}

	relations := row.Relations
	if relations == nil {
		relations = make(map[string]any)
	}
	ee := EnhanceEntity{Entity: entity, ID: id, Relations: relations}
	if err := f.resolveRelations(ctx, m, c, ee); err != nil {
		return nil, err
	}
	return entity, nil
}

// load returns the entity of tm with the given id, fetching it through the
// client of tm when it was not built yet. A missing row is (nil, nil).
func (f *fetch) load(ctx context.Context, tm *meta.EntityMetadata, id any) (any, error) {
	if e, ok := f.seen[identity(tm, id)]; ok {
		return e, nil
	}
	tc, err := f.r.clients.ClientFor(tm)
	if err != nil {
		return nil, err
	}
	row, err := tc.FindByID(ctx, tm, id)
	if err != nil || row == nil {
		return nil, err
	}
	return f.entity(ctx, tm, tc, *row)
}

// resolveRelations hydrates every relation of ee. Foreign keys come from
// ee.Relations; collections and join-table relations from the owner's
// client.
func (f *fetch) resolveRelations(ctx context.Context, m *meta.EntityMetadata, c client.Client, ee EnhanceEntity) error {
	for _, rel := range m.Relations {
		tm, err := f.r.catalog.Entity(rel.Target)
		if err != nil {
			return ormerr.Mapping(m.Class, rel.Property, err)
		}

		if rel.Collection || rel.ViaJoinTable() {
			if err := f.resolveLinks(ctx, m, tm, c, rel, ee); err != nil {
				return err
			}
			continue
		}

		fk := ee.Relations[rel.Property]
		if fk == nil {
			continue
		}
		id, err := prop.FromNative(fk, tm.ID.Kind)
		if err != nil {
			return ormerr.Mapping(m.Class, rel.Property, err)
		}
		target, err := f.load(ctx, tm, id)
		if err != nil {
			return err
		}
		if target == nil {
			f.r.logger.Debug("dangling reference",
				zap.String("entity", m.Class),
				zap.String("relation", rel.Property),
				zap.String("target_id", prop.String(id)))
			continue
		}
		if err := m.Accessor.Set(ee.Entity, rel.Field, target); err != nil {
			return ormerr.Mapping(m.Class, rel.Property, err)
		}
	}
	return nil
}

func (f *fetch) resolveLinks(ctx context.Context, m, tm *meta.EntityMetadata, c client.Client, rel *meta.Relation, ee EnhanceEntity) error {
	links, err := c.JoinTargets(ctx, m, rel, ee.ID)
	if err != nil {
		return err
	}
	for _, link := range links {
		target, err := f.load(ctx, tm, link.TargetID)
		if err != nil {
			return err
		}
		if target == nil {
			continue
		}

		item := target
		if rel.MapKeyJoinClass != "" {
			if item, err = f.edge(m, tm, rel, link, ee.Entity, target); err != nil {
				return err
			}
		}

		if rel.Collection {
			err = meta.Append(m.Accessor, ee.Entity, rel.Field, item)
		} else {
			err = m.Accessor.Set(ee.Entity, rel.Field, item)
		}
		if err != nil {
			return ormerr.Mapping(m.Class, rel.Property, err)
		}
	}
	return nil
}

// edge completes a relationship entity with its two endpoints.
func (f *fetch) edge(m, tm *meta.EntityMetadata, rel *meta.Relation, link client.Link, owner, target any) (any, error) {
	if link.Edge == nil {
		return nil, ormerr.Mapping(m.Class, rel.Property, fmt.Errorf("link to %v carries no relationship entity", link.TargetID))
	}
	rm, err := f.r.catalog.Entity(rel.MapKeyJoinClass)
	if err != nil {
		return nil, ormerr.Mapping(m.Class, rel.Property, err)
	}
	ownerAttr, targetAttr := rm.Endpoints(m, tm)
	if ownerAttr != nil {
		if err := rm.Accessor.Set(link.Edge, ownerAttr.Field, owner); err != nil {
			return nil, ormerr.Mapping(rm.Class, ownerAttr.Path(), err)
		}
	}
	if targetAttr != nil {
		if err := rm.Accessor.Set(link.Edge, targetAttr.Field, target); err != nil {
			return nil, ormerr.Mapping(rm.Class, targetAttr.Path(), err)
		}
	}
	return link.Edge, nil
}
