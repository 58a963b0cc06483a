package harness

import (
	"context"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/values"
)

// refs remembers every entity written or loaded during a run so relation
// values in later steps can name their targets by id.
type refs struct {
	entities map[string]any
	find     values.Resolver
}

func newRefs(find values.Resolver) *refs {
	return &refs{entities: make(map[string]any), find: find}
}

func refKey(m *meta.EntityMetadata, id any) string {
	return m.Class + "\x00" + prop.String(id)
}

func (r *refs) add(m *meta.EntityMetadata, entity any) {
	id, err := meta.ID(entity, m)
	if err != nil || id == nil {
		return
	}
	r.entities[refKey(m, id)] = entity
}

func (r *refs) forget(m *meta.EntityMetadata, id any) {
	delete(r.entities, refKey(m, id))
}

// resolve prefers entities seen earlier in the run and falls back to the
// session.
func (r *refs) resolve(ctx context.Context, m *meta.EntityMetadata, id any) (any, error) {
	if e, ok := r.entities[refKey(m, id)]; ok {
		return e, nil
	}
	return r.find(ctx, m, id)
}
