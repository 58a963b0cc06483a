package graph

import "context"

// Hits is a cursor over index lookup results. It must be closed.
type Hits interface {
	// Size returns the number of hits.
	Size() int

	// Single returns the only hit, nil when there is none, and an error
	// when there is more than one.
	Single() (*Node, error)

	// Close releases the cursor.
	Close() error
}

// Store is a property graph.
//
// Nodes are grouped into indexes (labels). GetOrCreate operations are
// unique on (index, key, value): the first call creates the record and
// runs init on it, later calls return the existing record.
type Store interface {
	GetOrCreateNode(ctx context.Context, index, key string, value any, init InitFunc) (*Node, error)

	// GetOrCreateRelationship is unique on (relType, key, value) between
	// start and end.
	GetOrCreateRelationship(ctx context.Context, index, key string, value any, start, end *Node, relType string, init InitFunc) (*Relationship, error)

	// Relate creates a property-less relationship unless one of relType
	// already joins start to end.
	Relate(ctx context.Context, start, end *Node, relType string) (*Relationship, error)

	// Lookup queries a manual index.
	Lookup(ctx context.Context, index, key string, value any) (Hits, error)

	// AutoLookup queries the automatic node index spanning every node.
	AutoLookup(ctx context.Context, key string, value any) (Hits, error)

	// AutoIndexing reports whether the automatic node index is enabled.
	AutoIndexing(ctx context.Context) bool

	SaveNode(ctx context.Context, n *Node) error
	SaveRelationship(ctx context.Context, r *Relationship) error

	// Nodes returns every node of an index ordered by the orderKey property.
	Nodes(ctx context.Context, index, orderKey string) ([]*Node, error)

	// Outgoing returns the relationships of relType leaving start, in
	// creation order.
	Outgoing(ctx context.Context, start *Node, relType string) ([]Edge, error)

	// DeleteOutgoing removes every relationship of relType leaving start.
	DeleteOutgoing(ctx context.Context, start *Node, relType string) error

	// DeleteNode removes a node and its relationships.
	DeleteNode(ctx context.Context, n *Node) error

	Close(ctx context.Context) error
}
