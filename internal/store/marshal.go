package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/querysql"
)

// encodeRow converts an entity to column values. Nil attributes are kept
// so a merge clears them. Single-valued relations store the target's id
// as text in their join column.
func (s *Store) encodeRow(m *meta.EntityMetadata, entity any) (map[string]any, error) {
	values := make(map[string]any, len(m.Attributes)+len(m.Relations))
	for _, a := range m.Singular() {
		v, err := m.Accessor.Get(entity, a.Field)
		if err != nil {
			return nil, ormerr.Mapping(m.Class, a.Path(), err)
		}
		if v != nil && a.Kind == meta.KindOther {
			if v, err = s.referenceID(v); err != nil {
				return nil, ormerr.Mapping(m.Class, a.Path(), err)
			}
		}
		values[a.Column] = querysql.Param(v)
	}
	if values[m.ID.Column] == nil {
		return nil, ormerr.Mapping(m.Class, m.ID.Name, fmt.Errorf("entity has no id"))
	}

	for _, r := range m.Relations {
		if r.JoinColumn == "" || r.Collection {
			continue
		}
		target, err := m.Accessor.Get(entity, r.Field)
		if err != nil {
			return nil, ormerr.Mapping(m.Class, r.Property, err)
		}
		if target == nil {
			values[r.JoinColumn] = nil
			continue
		}
		tm, err := s.catalog.Entity(r.Target)
		if err != nil {
			return nil, ormerr.Mapping(m.Class, r.Property, err)
		}
		id, err := meta.ID(target, tm)
		if err != nil {
			return nil, err
		}
		values[r.JoinColumn] = foreignKey(id)
	}
	return values, nil
}

// referenceID returns the id of v when v is a registered entity, and v
// otherwise.
func (s *Store) referenceID(v any) (any, error) {
	for _, m := range s.catalog.Entities("") {
		if m.Type == nil || m.Type != typeOf(v) {
			continue
		}
		id, err := meta.ID(v, m)
		if err != nil {
			return nil, err
		}
		return foreignKey(id), nil
	}
	return v, nil
}

// joinTargetIDs returns the ids of the targets held by a join-table
// relation, in slice order.
func (s *Store) joinTargetIDs(m *meta.EntityMetadata, r *meta.Relation, entity any) ([]any, error) {
	v, err := m.Accessor.Get(entity, r.Field)
	if err != nil {
		return nil, ormerr.Mapping(m.Class, r.Property, err)
	}
	tm, err := s.catalog.Entity(r.Target)
	if err != nil {
		return nil, ormerr.Mapping(m.Class, r.Property, err)
	}

	var ids []any
	for _, target := range meta.Elements(v) {
		id, err := meta.ID(target, tm)
		if err != nil {
			return nil, err
		}
		if id != nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func foreignKey(id any) any {
	if id == nil {
		return nil
	}
	return prop.String(id)
}

// scanRows reads every row into a client.Row. Foreign-key columns of
// single-valued relations go to Relations; everything else to Values.
func scanRows(rows *sql.Rows, m *meta.EntityMetadata, cols []string) ([]client.Row, error) {
	fk := make(map[string]string)
	for _, r := range m.Relations {
		if r.JoinColumn != "" && !r.Collection {
			fk[r.JoinColumn] = r.Property
		}
	}

	var out []client.Row
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", m.Class, err)
		}

		row := client.Row{Values: make(map[string]any, len(cols))}
		if len(fk) > 0 {
			row.Relations = make(map[string]any, len(fk))
		}
		for i, col := range cols {
			if property, ok := fk[col]; ok {
				if dest[i] != nil {
					row.Relations[property] = dest[i]
				}
				continue
			}
			row.Values[col] = dest[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", m.Class, err)
	}
	return out, nil
}
