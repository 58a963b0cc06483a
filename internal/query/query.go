// Package query executes parsed queries against a session.
//
// A Query is built from a query string and its clause model. Execution
// resolves parameters, materializes matching entities through the session's
// Reader and, for delete and update statements, removes or rewrites every
// materialized entity.
//
// Operations the engine deliberately does not support are not methods of
// Query; they live on Compat and fail with an Unsupported error.
package query

import (
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/materialize"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/metrics"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/session"
)

// HintSearch forces the search-backed path when set to true.
const HintSearch = materialize.SearchHint

// Query is one executable query. It is not safe for concurrent use.
type Query struct {
	raw     string
	model   *queryir.Query
	session *session.Session
	entity  *meta.EntityMetadata

	hints      map[string]any
	maxResults int
	fetchSize  int

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Query.
type Option func(*Query)

// WithMaxResults sets the initial result bound.
func WithMaxResults(n int) Option {
	return func(q *Query) {
		if n > 0 {
			q.maxResults = n
		}
	}
}

// WithLogger overrides the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Query) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a query. When model is nil, raw is parsed. The target entity
// must be registered in the session's catalog and the model must validate
// against it.
func New(raw string, model *queryir.Query, s *session.Session, opts ...Option) (*Query, error) {
	if s == nil {
		return nil, ormerr.IllegalArgument("query: nil session")
	}
	if model == nil {
		parsed, err := queryir.Parse(raw)
		if err != nil {
			return nil, err
		}
		model = parsed
	}

	m, err := s.Catalog().Entity(model.Entity)
	if err != nil {
		return nil, ormerr.IllegalArgument(fmt.Sprintf("query %q: %v", raw, err))
	}
	if err := queryir.Validate(model, m); err != nil {
		return nil, err
	}

	q := &Query{
		raw:        raw,
		model:      model,
		session:    s,
		entity:     m,
		hints:      make(map[string]any),
		maxResults: materialize.DefaultMax,
		logger:     s.Logger(),
		metrics:    s.Metrics(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Raw returns the query string.
func (q *Query) Raw() string { return q.raw }

// Model returns the clause model.
func (q *Query) Model() *queryir.Query { return q.model }

// Entity returns the metadata of the queried entity.
func (q *Query) Entity() *meta.EntityMetadata { return q.entity }

// SetHint stores a hint. Hints other than HintSearch are carried but not
// interpreted.
func (q *Query) SetHint(name string, value any) {
	q.hints[name] = value
}

// Hints returns a copy of the hints.
func (q *Query) Hints() map[string]any {
	return maps.Clone(q.hints)
}

// SetMaxResults bounds the result list. The bound must be at least one.
func (q *Query) SetMaxResults(n int) error {
	if n < 1 {
		return ormerr.IllegalArgument(fmt.Sprintf("max results must be positive, got %d", n))
	}
	q.maxResults = n
	return nil
}

// MaxResults returns the result bound.
func (q *Query) MaxResults() int { return q.maxResults }

// SetFetchSize sets how many keys are loaded per backend call on the
// search path. It is advisory.
func (q *Query) SetFetchSize(n int) { q.fetchSize = n }

// FetchSize returns the fetch size.
func (q *Query) FetchSize() int { return q.fetchSize }

// Columns returns the column names of the selected attributes. Unknown
// attributes are QueryHandler errors.
func (q *Query) Columns() ([]string, error) {
	if len(q.model.Columns) == 0 {
		return nil, nil
	}
	cols := make([]string, 0, len(q.model.Columns))
	for _, name := range q.model.Columns {
		a, ok := q.entity.Attribute(name)
		if !ok {
			return nil, ormerr.QueryHandler(q.entity.Class, name, "no such column")
		}
		cols = append(cols, a.Column)
	}
	return cols, nil
}

func (q *Query) searchHint() bool {
	switch v := q.hints[HintSearch].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
