package materialize

import (
	"reflect"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
)

// Decode builds a new entity of m from backend column values. Columns
// absent from values stay at their zero value. Attributes holding another
// registered entity are left unset; the Reader resolves those.
func Decode(catalog meta.Catalog, m *meta.EntityMetadata, values map[string]any) (any, error) {
	entity, err := m.NewEntity()
	if err != nil {
		return nil, err
	}
	for _, a := range m.Singular() {
		raw, ok := values[a.Column]
		if !ok || isEntityType(catalog, a.Type) {
			continue
		}
		v, err := prop.FromNative(raw, a.Kind)
		if err != nil {
			return nil, ormerr.Mapping(m.Class, a.Path(), err)
		}
		if v == nil {
			continue
		}
		if err := m.Accessor.Set(entity, a.Field, v); err != nil {
			return nil, ormerr.Mapping(m.Class, a.Path(), err)
		}
	}
	return entity, nil
}

func isEntityType(catalog meta.Catalog, t reflect.Type) bool {
	if t == nil {
		return false
	}
	for _, m := range catalog.Entities("") {
		if m.Type == t {
			return true
		}
	}
	return false
}

// project keeps the id column and the columns of the selected attribute
// paths.
func project(m *meta.EntityMetadata, values map[string]any, columns []string) (map[string]any, error) {
	if len(columns) == 0 {
		return values, nil
	}
	out := map[string]any{m.ID.Column: values[m.ID.Column]}
	for _, name := range columns {
		a, ok := m.Attribute(name)
		if !ok {
			return nil, ormerr.QueryHandler(m.Class, name, "no such column")
		}
		if v, ok := values[a.Column]; ok {
			out[a.Column] = v
		}
	}
	return out, nil
}
