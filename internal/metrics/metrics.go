// Package metrics provides Prometheus metrics for query execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query paths recorded by the materializer.
const (
	PathFlat       = "flat"
	PathRelational = "relational"
	PathSearch     = "search"
)

// Metrics holds the query engine metrics. A nil *Metrics records nothing.
type Metrics struct {
	QueriesTotal       *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	MaterializedTotal  prometheus.Counter
	SearchQueriesTotal prometheus.Counter
	SearchKeysTotal    prometheus.Counter
	QueryErrorsTotal   *prometheus.CounterVec
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.QueriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_queries_total",
			Help: "Total number of executed queries",
		},
		[]string{"kind", "path"},
	)

	m.QueryDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_query_duration_seconds",
			Help:    "Duration of query execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	m.QueryErrorsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_query_errors_total",
			Help: "Total number of failed queries",
		},
		[]string{"kind"},
	)

	m.MaterializedTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_materialized_entities_total",
			Help: "Total number of entities built from backend rows",
		},
	)

	m.SearchQueriesTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_search_queries_total",
			Help: "Total number of search index queries",
		},
	)

	m.SearchKeysTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_search_keys_total",
			Help: "Total number of distinct keys returned by search queries",
		},
	)

	return m
}

// RecordQuery records one query execution.
func (m *Metrics) RecordQuery(kind, path string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(kind, path).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err != nil {
		m.QueryErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// RecordMaterialized counts built entities.
func (m *Metrics) RecordMaterialized(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MaterializedTotal.Add(float64(n))
}

// RecordSearch records one search query and the number of keys it found.
func (m *Metrics) RecordSearch(keys int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.Inc()
	m.SearchKeysTotal.Add(float64(keys))
}
