package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/event"
	"github.com/roach88/strata/internal/materialize"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/queryir"
)

// GetResultList executes the query and returns the materialized entities.
//
// Delete statements remove every entity and still return them. Update
// statements apply every update clause in order to every entity and merge
// it back. Select statements fire one post-load event with a nil entity.
func (q *Query) GetResultList(ctx context.Context) ([]any, error) {
	start := time.Now()
	path := "none"
	results, err := q.execute(ctx, &path)
	q.metrics.RecordQuery(q.model.Kind.String(), path, time.Since(start), err)
	if err != nil {
		q.logger.Debug("query failed", zap.String("query", q.raw), zap.Error(err))
		return nil, err
	}
	return results, nil
}

func (q *Query) execute(ctx context.Context, path *string) ([]any, error) {
	if q.model.Native {
		return nil, ormerr.Unsupported("native query execution")
	}
	m := q.entity
	c, err := q.session.ClientFor(m)
	if err != nil {
		return nil, err
	}

	resolved, err := q.model.Resolve()
	if err != nil {
		return nil, err
	}
	columns, err := q.Columns()
	if err != nil {
		return nil, err
	}

	opts := materialize.Options{
		Max:       q.maxResults,
		Columns:   columns,
		Search:    q.searchHint(),
		FetchSize: q.fetchSize,
	}
	reader := q.session.Reader()
	*path = reader.Path(m, c, resolved, opts)

	q.logger.Debug("executing query",
		zap.String("query", q.raw),
		zap.String("entity", m.Class),
		zap.String("kind", resolved.Kind.String()),
		zap.String("path", *path))

	results, err := reader.Populate(ctx, m, c, resolved, opts)
	if err != nil {
		return nil, err
	}

	switch resolved.Kind {
	case queryir.KindDelete:
		err = q.remove(ctx, results)
	case queryir.KindUpdate:
		err = q.update(ctx, m, resolved.Updates, results)
	default:
		err = q.session.Events().Fire(ctx, m, nil, event.PostLoad)
	}
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []any{}
	}
	return results, nil
}

func (q *Query) remove(ctx context.Context, results []any) error {
	for _, e := range results {
		if err := q.session.Remove(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// update assigns every clause to every entity, then merges it. Values
// assigned to string attributes take their fmt.Sprint form.
func (q *Query) update(ctx context.Context, m *meta.EntityMetadata, updates []queryir.UpdateClause, results []any) error {
	for _, e := range results {
		for _, u := range updates {
			a, ok := m.Attribute(u.Property)
			if !ok || !a.Singular() {
				return ormerr.QueryHandler(m.Class, u.Property, "invalid update target")
			}
			value := u.Value
			if a.Kind == meta.KindString && value != nil {
				value = fmt.Sprint(value)
			}
			if err := m.Accessor.Set(e, a.Field, value); err != nil {
				return ormerr.QueryHandler(m.Class, u.Property, fmt.Sprintf("cannot assign %v: %v", u.Value, err))
			}
		}
		if err := q.session.Merge(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// GetSingleResult executes the query and returns its only entity. An empty
// result is a NoResult error and more than one entity a NonUniqueResult
// error.
func (q *Query) GetSingleResult(ctx context.Context) (any, error) {
	results, err := q.GetResultList(ctx)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 1:
		return results[0], nil
	case 0:
		return nil, ormerr.NoResult(q.entity.Class)
	default:
		return nil, ormerr.NonUniqueResult(q.entity.Class, len(results))
	}
}

// ExecuteUpdate runs a delete or update statement and returns the number
// of affected entities.
func (q *Query) ExecuteUpdate(ctx context.Context) (int, error) {
	if !q.model.IsDelete() && !q.model.IsUpdate() {
		return 0, ormerr.IllegalState(fmt.Sprintf("ExecuteUpdate on a %s statement", q.model.Kind))
	}
	results, err := q.GetResultList(ctx)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}
