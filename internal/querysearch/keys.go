package querysearch

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/queryir"
)

// Keys translates the filter sequence, runs it through the index and
// returns the distinct primary keys, decoded to the id kind and sorted by
// their text form. The index is searched unbounded; limit > 0 caps the
// distinct keys, so a key indexed under several documents counts once.
//
// Search errors are returned as-is.
func Keys(ctx context.Context, idx client.IndexManager, elements []queryir.Element, m *meta.EntityMetadata, limit int) ([]any, error) {
	if idx == nil {
		return nil, fmt.Errorf("search %s: no index manager", m.Class)
	}
	q, err := ToSearchQuery(elements, m)
	if err != nil {
		return nil, err
	}

	hits, err := idx.Search(ctx, m.Class, q, 0, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(hits))
	pks := make([]string, 0, len(hits))
	for _, pk := range hits {
		if !seen[pk] {
			seen[pk] = true
			pks = append(pks, pk)
		}
	}
	sort.Strings(pks)
	if limit > 0 && len(pks) > limit {
		pks = pks[:limit]
	}

	ids := make([]any, 0, len(pks))
	for _, pk := range pks {
		id, err := prop.FromNative(pk, m.ID.Kind)
		if err != nil {
			return nil, fmt.Errorf("search %s: decode key %q: %w", m.Class, pk, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
