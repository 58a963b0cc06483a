// Package client defines the capability a backing store exposes to the
// query engine.
package client

import (
	"context"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/queryir"
)

// Row is one raw record as returned by a backend.
type Row struct {
	// Values maps column name to backend-native value.
	Values map[string]any

	// Relations maps relation property to the foreign key of its single
	// target. Nil marks an unwrapped row.
	Relations map[string]any
}

// Link is one target of a multi-valued relation.
type Link struct {
	TargetID any

	// Edge is the decoded relationship entity when the relation carries
	// attributes on the edge, nil otherwise.
	Edge any
}

// Capabilities describes what a client can do natively.
type Capabilities struct {
	// NativeFilter means Find evaluates filter clauses itself.
	NativeFilter bool

	// Search means IndexManager returns a usable index.
	Search bool
}

// IndexManager runs search queries produced by querysearch.
type IndexManager interface {
	// Search returns a mapping from match identifier to primary key.
	// A primary key may appear under several match identifiers.
	Search(ctx context.Context, class, query string, offset, limit int) (map[string]string, error)
}

// Client is the per-persistence-unit backend.
type Client interface {
	// FindAll loads rows by primary key. When columns is non-empty only
	// those attribute paths (plus the id) are populated.
	FindAll(ctx context.Context, m *meta.EntityMetadata, columns []string, ids []any) ([]Row, error)

	// Find loads rows matching a resolved query, at most limit rows.
	// Clients without NativeFilter ignore q.Filters and return every row.
	Find(ctx context.Context, m *meta.EntityMetadata, q *queryir.Query, limit int) ([]Row, error)

	// FindByID loads one row. A missing row is (nil, nil).
	FindByID(ctx context.Context, m *meta.EntityMetadata, id any) (*Row, error)

	// JoinTargets returns the targets of a multi-valued relation.
	JoinTargets(ctx context.Context, m *meta.EntityMetadata, rel *meta.Relation, ownerID any) ([]Link, error)

	// Persist inserts a new entity.
	Persist(ctx context.Context, m *meta.EntityMetadata, entity any) error

	// Merge inserts or replaces an entity.
	Merge(ctx context.Context, m *meta.EntityMetadata, entity any) error

	// Remove deletes an entity by its id.
	Remove(ctx context.Context, m *meta.EntityMetadata, entity any) error

	// IndexManager returns the search index, or nil.
	IndexManager() IndexManager

	// Capabilities reports native support.
	Capabilities() Capabilities
}
