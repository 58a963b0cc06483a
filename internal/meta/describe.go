package meta

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// DescribeOption customizes metadata built by Describe.
type DescribeOption func(*EntityMetadata)

// WithTable sets the column-store table (default: lowercased simple name).
func WithTable(table string) DescribeOption {
	return func(m *EntityMetadata) { m.Table = table }
}

// WithIndex sets the index name (default: lowercased simple name).
func WithIndex(index string) DescribeOption {
	return func(m *EntityMetadata) { m.IndexName = index }
}

// WithUnit sets the persistence unit.
func WithUnit(unit string) DescribeOption {
	return func(m *EntityMetadata) { m.PersistenceUnit = unit }
}

// WithJoinTable marks the entity as taking part in a join-table relation.
func WithJoinTable() DescribeOption {
	return func(m *EntityMetadata) { m.RelationViaJoinTable = true }
}

// Describe builds metadata for a Go struct from its `strata` field tags.
//
// Every exported field is an attribute unless tagged "-". Tag options:
//
//	strata:"name"                     attribute name (default: lower camel field name)
//	strata:",column=age_years"        store column (default: attribute name)
//	strata:",id"                      identity attribute
//	strata:",kind=decimal"            override the derived kind
//	strata:",embedded"                flatten a struct field's attributes
//	strata:",rel,target=example.Address,join=address_id"
//	strata:",rel,target=example.Book,jointable=person_books"
//	strata:",rel,target=example.Person,mapkey=example.Friendship"
//
// proto must be a pointer to a struct; it is only used for its type.
func Describe(class string, proto any, opts ...DescribeOption) (*EntityMetadata, error) {
	t := reflect.TypeOf(proto)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("describe %s: proto must be a pointer to a struct, got %T", class, proto)
	}

	m := &EntityMetadata{
		Class:    class,
		Type:     t,
		Accessor: StructAccessor{},
	}
	elem := t.Elem()
	m.New = func() any { return reflect.New(elem).Interface() }

	if err := describeFields(m, elem, "", ""); err != nil {
		return nil, fmt.Errorf("describe %s: %w", class, err)
	}

	lower := strings.ToLower(m.SimpleName())
	m.Table = lower
	m.IndexName = lower
	for _, opt := range opts {
		opt(m)
	}

	if m.ID == nil {
		return nil, fmt.Errorf("describe %s: %w", class, errors.New("no field tagged id"))
	}
	return m, nil
}

func describeFields(m *EntityMetadata, t reflect.Type, fieldPrefix, embedded string) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := parseTag(f.Tag.Get("strata"))
		if tag.skip {
			continue
		}

		name := tag.name
		if name == "" {
			name = lowerCamel(f.Name)
		}
		field := fieldPrefix + f.Name

		switch {
		case tag.embedded:
			et := f.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() != reflect.Struct {
				return fmt.Errorf("embedded field %s is not a struct", f.Name)
			}
			if embedded != "" {
				return fmt.Errorf("embedded field %s is nested inside %s", f.Name, embedded)
			}
			if err := describeFields(m, et, field+".", name); err != nil {
				return err
			}

		case tag.relation:
			if tag.target == "" {
				return fmt.Errorf("relation %s has no target", f.Name)
			}
			m.Relations = append(m.Relations, &Relation{
				Property:        name,
				Field:           field,
				Target:          tag.target,
				JoinColumn:      tag.join,
				JoinTable:       tag.joinTable,
				MapKeyJoinClass: tag.mapKey,
				Collection:      f.Type.Kind() == reflect.Slice,
			})
			if tag.joinTable != "" {
				m.RelationViaJoinTable = true
			}

		default:
			kind := KindOf(f.Type)
			if tag.kind != "" {
				k, err := ParseKind(tag.kind)
				if err != nil {
					return fmt.Errorf("field %s: %w", f.Name, err)
				}
				kind = k
			}
			column := tag.column
			if column == "" {
				column = name
			}
			a := &Attribute{
				Name:       name,
				Column:     column,
				Kind:       kind,
				Field:      field,
				Type:       f.Type,
				Collection: f.Type.Kind() == reflect.Slice && kind != KindBytes,
				Embedded:   embedded,
			}
			m.Attributes = append(m.Attributes, a)
			if tag.id {
				if m.ID != nil {
					return fmt.Errorf("fields %s and %s are both tagged id", m.ID.Field, field)
				}
				m.ID = a
			}
		}
	}
	return nil
}

type fieldTag struct {
	name      string
	column    string
	kind      string
	target    string
	join      string
	joinTable string
	mapKey    string
	id        bool
	embedded  bool
	relation  bool
	skip      bool
}

func parseTag(raw string) fieldTag {
	var tag fieldTag
	if raw == "-" {
		tag.skip = true
		return tag
	}
	parts := strings.Split(raw, ",")
	tag.name = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(p), "=")
		switch key {
		case "id":
			tag.id = true
		case "embedded":
			tag.embedded = true
		case "rel":
			tag.relation = true
		case "column":
			tag.column = value
		case "kind":
			tag.kind = value
		case "target":
			tag.target = value
		case "join":
			tag.join = value
		case "jointable":
			tag.joinTable = value
		case "mapkey":
			tag.mapKey = value
		}
	}
	return tag
}

// lowerCamel lowercases the leading upper-case run: "Age" → "age",
// "ID" → "id", "URLPath" → "urlPath".
func lowerCamel(s string) string {
	runes := []rune(s)
	for i := range runes {
		if !unicode.IsUpper(runes[i]) {
			break
		}
		if i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			break
		}
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
