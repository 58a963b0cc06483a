package query

import "context"

// Iterator is a forward-only cursor over query results. It is a
// single-scan cursor: the first call to Next runs the query once, bounded by
// the query's max results, and later calls hand out the loaded entities,
// releasing each one as the cursor moves past it. An Iterator cannot be
// restarted and is not safe for concurrent use.
//
// Usage:
//
//	it := q.Iterate(ctx)
//	for it.Next() {
//	    use(it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	ctx     context.Context
	q       *Query
	items   []any
	pos     int
	started bool
	cur     any
	err     error
}

// Iterate returns an Iterator over the query results.
func (q *Query) Iterate(ctx context.Context) *Iterator {
	return &Iterator{ctx: ctx, q: q, pos: -1}
}

// Next advances to the next entity. It returns false when the results are
// exhausted or the query failed.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		it.items, it.err = it.q.GetResultList(it.ctx)
		if it.err != nil {
			return false
		}
	}
	if it.pos+1 >= len(it.items) {
		it.pos = len(it.items)
		it.cur = nil
		return false
	}
	it.pos++
	it.cur = it.items[it.pos]
	it.items[it.pos] = nil
	return true
}

// Value returns the current entity.
func (it *Iterator) Value() any { return it.cur }

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }
