package meta

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/strata/internal/ormerr"
)

// PropertyAccessor reads and writes named fields of an entity.
//
// field is the accessor path recorded in Attribute.Field or Relation.Field;
// dotted paths address fields of embedded values.
type PropertyAccessor interface {
	Get(entity any, field string) (any, error)
	Set(entity any, field string, value any) error
}

// ID extracts the identity value of an entity.
func ID(entity any, m *EntityMetadata) (any, error) {
	v, err := m.Accessor.Get(entity, m.ID.Field)
	if err != nil {
		return nil, ormerr.Mapping(m.Class, m.ID.Name, err)
	}
	return v, nil
}

// Record is a dynamic entity: a class name and a value per field.
// Records back entities declared in catalog files rather than Go code.
type Record struct {
	Class  string         `json:"class"`
	Values map[string]any `json:"values"`
}

// NewRecord returns an empty record of the given class.
func NewRecord(class string) *Record {
	return &Record{Class: class, Values: make(map[string]any)}
}

// RecordAccessor implements PropertyAccessor for *Record entities.
type RecordAccessor struct{}

// Get returns the value stored under field, or nil when absent.
func (RecordAccessor) Get(entity any, field string) (any, error) {
	r, ok := entity.(*Record)
	if !ok {
		return nil, fmt.Errorf("record accessor: unsupported entity type %T", entity)
	}
	if r == nil {
		return nil, errors.New("record accessor: nil record")
	}
	return r.Values[field], nil
}

// Set stores value under field.
func (RecordAccessor) Set(entity any, field string, value any) error {
	r, ok := entity.(*Record)
	if !ok {
		return fmt.Errorf("record accessor: unsupported entity type %T", entity)
	}
	if r == nil {
		return errors.New("record accessor: nil record")
	}
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	r.Values[field] = value
	return nil
}

// StructAccessor implements PropertyAccessor for pointers to Go structs.
// Fields are addressed by Go field name; "Address.City" walks into the
// Address field, allocating nil pointers on Set.
type StructAccessor struct{}

// Get returns the field value. A nil pointer along the path yields nil.
func (StructAccessor) Get(entity any, field string) (any, error) {
	v, err := structValue(entity)
	if err != nil {
		return nil, err
	}
	for _, name := range strings.Split(field, ".") {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return nil, nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, fmt.Errorf("struct accessor: %q is not a struct field path", field)
		}
		f := v.FieldByName(name)
		if !f.IsValid() {
			return nil, fmt.Errorf("struct accessor: no field %q in %s", name, v.Type())
		}
		v = f
	}
	if isNilable(v) && v.IsNil() {
		return nil, nil
	}
	return v.Interface(), nil
}

// Set assigns value to the field, converting between compatible numeric
// types. A nil value stores the field's zero value.
func (StructAccessor) Set(entity any, field string, value any) error {
	v, err := structValue(entity)
	if err != nil {
		return err
	}
	names := strings.Split(field, ".")
	for i, name := range names {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("struct accessor: %q is not a struct field path", field)
		}
		f := v.FieldByName(name)
		if !f.IsValid() {
			return fmt.Errorf("struct accessor: no field %q in %s", name, v.Type())
		}
		if !f.CanSet() {
			return fmt.Errorf("struct accessor: field %q is not settable", name)
		}
		if i == len(names)-1 {
			return assign(f, value)
		}
		v = f
	}
	return nil
}

func structValue(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("struct accessor: entity must be a non-nil pointer, got %T", entity)
	}
	return v, nil
}

func isNilable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	default:
		return false
	}
}

// assign stores value into dst.
func assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	src := reflect.ValueOf(value)
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
		return nil
	case dst.Kind() == reflect.Pointer && src.Type().AssignableTo(dst.Type().Elem()):
		p := reflect.New(dst.Type().Elem())
		p.Elem().Set(src)
		dst.Set(p)
		return nil
	case src.Kind() == reflect.Pointer && !src.IsNil() && src.Elem().Type().AssignableTo(dst.Type()):
		dst.Set(src.Elem())
		return nil
	case isNumber(src.Kind()) && isNumber(dst.Kind()):
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("struct accessor: cannot assign %T to %s", value, dst.Type())
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// Elements returns the elements of a slice or array value. nil and
// non-slice values yield nil; nil elements are skipped.
func Elements(v any) []any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i)
		if isNilable(e) && e.IsNil() {
			continue
		}
		out = append(out, e.Interface())
	}
	return out
}

// Append appends elem to the slice field of entity.
func Append(acc PropertyAccessor, entity any, field string, elem any) error {
	current, err := acc.Get(entity, field)
	if err != nil {
		return err
	}
	if _, ok := acc.(RecordAccessor); ok {
		list, _ := current.([]any)
		return acc.Set(entity, field, append(list, elem))
	}

	v, err := structValue(entity)
	if err != nil {
		return err
	}
	for _, name := range strings.Split(field, ".") {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.FieldByName(name)
		if !v.IsValid() {
			return fmt.Errorf("struct accessor: no field %q", field)
		}
	}
	if v.Kind() != reflect.Slice {
		return fmt.Errorf("struct accessor: field %q is not a slice", field)
	}
	ev := reflect.ValueOf(elem)
	if !ev.Type().AssignableTo(v.Type().Elem()) {
		return fmt.Errorf("struct accessor: cannot append %T to %s", elem, v.Type())
	}
	v.Set(reflect.Append(v, ev))
	return nil
}
