// Package compiler turns CUE entity catalogs into entity metadata.
//
// A catalog file declares a namespace and one entry per entity:
//
//	namespace: "example"
//
//	entity: Person: {
//	    unit: "graph"
//	    id:   "id"
//	    attributes: {
//	        id:   "int64"
//	        name: "string"
//	        age:  {kind: "int32", column: "age_years"}
//	        home: {embedded: {city: "string", zip: "string"}}
//	    }
//	    relations: {
//	        address: {target: "Address", join: "address_id"}
//	        books:   {target: "Book", jointable: "person_books", collection: true}
//	    }
//	}
//
// Compiled entities are dynamic: they are backed by *meta.Record values and
// read through meta.RecordAccessor.
package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/strata/internal/meta"
)

// CompileCatalog compiles every entry under "entity" of a catalog value.
// Entities are returned in declaration order.
func CompileCatalog(v cue.Value) ([]*meta.EntityMetadata, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	namespace, err := optionalString(v, "namespace")
	if err != nil {
		return nil, err
	}

	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entities declared", Pos: v.Pos()}
	}

	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []*meta.EntityMetadata
	for iter.Next() {
		m, err := CompileEntity(namespace, iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// CompileEntity compiles a single entity entry. Relation targets without a
// dot are qualified with namespace.
func CompileEntity(namespace, name string, v cue.Value) (*meta.EntityMetadata, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	class, err := optionalString(v, "class")
	if err != nil {
		return nil, err
	}
	if class == "" {
		class = qualify(namespace, name)
	}

	m := &meta.EntityMetadata{
		Class:    class,
		Accessor: meta.RecordAccessor{},
	}
	m.New = func() any { return meta.NewRecord(class) }

	lower := strings.ToLower(m.SimpleName())
	if m.Table, err = stringOr(v, "table", lower); err != nil {
		return nil, err
	}
	if m.IndexName, err = stringOr(v, "index", lower); err != nil {
		return nil, err
	}
	if m.PersistenceUnit, err = optionalString(v, "unit"); err != nil {
		return nil, err
	}
	if m.RelationViaJoinTable, err = optionalBool(v, "join_table"); err != nil {
		return nil, err
	}

	attrs := v.LookupPath(cue.ParsePath("attributes"))
	if !attrs.Exists() {
		return nil, &CompileError{Field: name + ".attributes", Message: "at least one attribute is required", Pos: v.Pos()}
	}
	if err := parseAttributes(m, attrs, ""); err != nil {
		return nil, err
	}

	idName, err := stringOr(v, "id", "id")
	if err != nil {
		return nil, err
	}
	a, ok := m.Attribute(idName)
	if !ok || a.Embedded != "" {
		return nil, &CompileError{
			Field:   name + ".id",
			Message: fmt.Sprintf("id attribute %q is not a top-level attribute", idName),
			Pos:     v.Pos(),
		}
	}
	m.ID = a

	if rels := v.LookupPath(cue.ParsePath("relations")); rels.Exists() {
		if err := parseRelations(m, namespace, rels); err != nil {
			return nil, err
		}
	}

	if err := m.Validate(); err != nil {
		return nil, &CompileError{Field: name, Message: err.Error(), Pos: v.Pos()}
	}
	return m, nil
}

// parseAttributes reads attribute entries. An entry is either a kind name or
// a struct with kind, column, collection and embedded fields.
func parseAttributes(m *meta.EntityMetadata, v cue.Value, embedded string) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		av := iter.Value()

		if av.Kind() == cue.StringKind {
			kindName, _ := av.String()
			a, err := attribute(name, kindName, av)
			if err != nil {
				return err
			}
			a.Embedded = embedded
			a.Field = a.Path()
			m.Attributes = append(m.Attributes, a)
			continue
		}

		if nested := av.LookupPath(cue.ParsePath("embedded")); nested.Exists() {
			if embedded != "" {
				return &CompileError{
					Field:   name,
					Message: fmt.Sprintf("embedded attribute is nested inside %s", embedded),
					Pos:     av.Pos(),
				}
			}
			if err := parseAttributes(m, nested, name); err != nil {
				return err
			}
			continue
		}

		kindName, err := stringOr(av, "kind", "")
		if err != nil {
			return err
		}
		if kindName == "" {
			return &CompileError{Field: name + ".kind", Message: "kind is required", Pos: av.Pos()}
		}
		a, err := attribute(name, kindName, av)
		if err != nil {
			return err
		}
		if a.Column, err = stringOr(av, "column", name); err != nil {
			return err
		}
		if a.Collection, err = optionalBool(av, "collection"); err != nil {
			return err
		}
		a.Embedded = embedded
		a.Field = a.Path()
		m.Attributes = append(m.Attributes, a)
	}
	return nil
}

func attribute(name, kindName string, v cue.Value) (*meta.Attribute, error) {
	kind, err := meta.ParseKind(kindName)
	if err != nil {
		return nil, &CompileError{Field: name, Message: err.Error(), Pos: v.Pos()}
	}
	return &meta.Attribute{Name: name, Column: name, Kind: kind}, nil
}

func parseRelations(m *meta.EntityMetadata, namespace string, v cue.Value) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		rv := iter.Value()

		r := &meta.Relation{Property: name, Field: name}
		target, err := optionalString(rv, "target")
		if err != nil {
			return err
		}
		if target == "" {
			return &CompileError{Field: name + ".target", Message: "target is required", Pos: rv.Pos()}
		}
		r.Target = qualify(namespace, target)
		if r.JoinColumn, err = optionalString(rv, "join"); err != nil {
			return err
		}
		if r.JoinTable, err = optionalString(rv, "jointable"); err != nil {
			return err
		}
		mapKey, err := optionalString(rv, "mapkey")
		if err != nil {
			return err
		}
		if mapKey != "" {
			r.MapKeyJoinClass = qualify(namespace, mapKey)
		}
		if r.Collection, err = optionalBool(rv, "collection"); err != nil {
			return err
		}
		if r.JoinTable != "" {
			m.RelationViaJoinTable = true
		}
		m.Relations = append(m.Relations, r)
	}
	return nil
}

func qualify(namespace, name string) string {
	if namespace == "" || strings.Contains(name, ".") {
		return name
	}
	return namespace + "." + name
}

func optionalString(v cue.Value, field string) (string, error) {
	return stringOr(v, field, "")
}

func stringOr(v cue.Value, field, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, &CompileError{Field: field, Message: "must be a bool", Pos: fv.Pos()}
	}
	return b, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first error of a CUE error list together with
// its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
