// Package values converts between loosely typed values (YAML scenarios,
// JSON documents, command-line flags) and entities described by catalog
// metadata.
//
// Build turns a map keyed by query path into an entity, decoding each
// value for its attribute kind. Snapshot does the reverse, rendering an
// entity as a map of canonical values: int64, float64, string, bool and
// lists of those. Decimals, big integers and temporals render as strings;
// relations render as target ids.
package values

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/prop"
)

// Resolver returns the entity of m with the given id, or nil when none
// exists. Build uses it to turn relation ids into target entities.
type Resolver func(ctx context.Context, m *meta.EntityMetadata, id any) (any, error)

// Build constructs an entity of m from values keyed by attribute path or
// relation property. Relation values are target ids, or lists of ids for
// collection relations.
func Build(ctx context.Context, cat meta.Catalog, m *meta.EntityMetadata, values map[string]any, resolve Resolver) (any, error) {
	entity, err := m.NewEntity()
	if err != nil {
		return nil, err
	}

	for _, key := range sortedKeys(values) {
		raw := values[key]
		if rel, ok := m.Relation(key); ok {
			if err := setRelation(ctx, cat, m, rel, entity, raw, resolve); err != nil {
				return nil, err
			}
			continue
		}
		attr, ok := m.Attribute(key)
		if !ok {
			return nil, fmt.Errorf("%s has no attribute or relation %q", m.Class, key)
		}
		if attr.Collection {
			list, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("%s.%s: collection attribute needs a list, got %T", m.Class, key, raw)
			}
			for _, elem := range list {
				v, err := Decode(elem, attr.Kind)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", m.Class, key, err)
				}
				if err := meta.Append(m.Accessor, entity, attr.Field, v); err != nil {
					return nil, fmt.Errorf("%s.%s: %w", m.Class, key, err)
				}
			}
			continue
		}
		v, err := Decode(raw, attr.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Class, key, err)
		}
		if err := m.Accessor.Set(entity, attr.Field, v); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Class, key, err)
		}
	}
	return entity, nil
}

func setRelation(ctx context.Context, cat meta.Catalog, m *meta.EntityMetadata, rel *meta.Relation, entity, raw any, resolve Resolver) error {
	tm, err := cat.Entity(rel.Target)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", m.Class, rel.Property, err)
	}

	ids := []any{raw}
	if list, ok := raw.([]any); ok {
		if !rel.Collection {
			return fmt.Errorf("%s.%s: single-valued relation takes one id", m.Class, rel.Property)
		}
		ids = list
	}

	for _, rawID := range ids {
		id, err := Decode(rawID, tm.ID.Kind)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", m.Class, rel.Property, err)
		}
		target, err := resolve(ctx, tm, id)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", m.Class, rel.Property, err)
		}
		if target == nil {
			return fmt.Errorf("%s.%s: no %s with id %v", m.Class, rel.Property, tm.Class, rawID)
		}
		if rel.Collection {
			err = meta.Append(m.Accessor, entity, rel.Field, target)
		} else {
			err = m.Accessor.Set(entity, rel.Field, target)
		}
		if err != nil {
			return fmt.Errorf("%s.%s: %w", m.Class, rel.Property, err)
		}
	}
	return nil
}

// Decode converts a loosely typed scalar to the Go value of kind. Scalars
// given for a string attribute are rendered as text.
func Decode(raw any, kind meta.Kind) (any, error) {
	v := Normalize(raw)
	if kind == meta.KindString {
		switch v.(type) {
		case int64, float64, bool:
			return fmt.Sprint(v), nil
		}
	}
	return prop.FromNative(v, kind)
}

// Normalize widens decoder integers to int64, the width prop decodes.
// Integral JSON numbers (float64) are left alone; prop narrows them.
func Normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint64:
		if val <= math.MaxInt64 {
			return int64(val)
		}
		return strconv.FormatUint(val, 10)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Normalize(e)
		}
		return out
	default:
		return v
	}
}

// Parse reads a command-line value: integers, floats and booleans are
// recognized, anything else stays a string.
func Parse(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// Snapshot renders an entity as query path → canonical value. Unset values
// are left out; relations render as target ids.
func Snapshot(cat meta.Catalog, m *meta.EntityMetadata, entity any) (map[string]any, error) {
	out := make(map[string]any)
	for _, a := range m.Attributes {
		if a.Association {
			continue
		}
		v, err := m.Accessor.Get(entity, a.Field)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Class, a.Path(), err)
		}
		if a.Collection {
			elems := meta.Elements(v)
			if len(elems) == 0 {
				continue
			}
			list := make([]any, 0, len(elems))
			for _, e := range elems {
				if cv, ok := Canonical(e); ok {
					list = append(list, cv)
				}
			}
			out[a.Path()] = list
			continue
		}
		if cv, ok := Canonical(v); ok {
			out[a.Path()] = cv
		}
	}

	for _, rel := range m.Relations {
		tm, err := cat.Entity(rel.Target)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Class, rel.Property, err)
		}
		v, err := m.Accessor.Get(entity, rel.Field)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Class, rel.Property, err)
		}
		if rel.Collection {
			elems := meta.Elements(v)
			if len(elems) == 0 {
				continue
			}
			ids := make([]any, 0, len(elems))
			for _, e := range elems {
				if cv, ok := targetID(tm, e); ok {
					ids = append(ids, cv)
				}
			}
			out[rel.Property] = ids
			continue
		}
		if v == nil || isNilPointer(v) {
			continue
		}
		if cv, ok := targetID(tm, v); ok {
			out[rel.Property] = cv
		}
	}
	return out, nil
}

func targetID(tm *meta.EntityMetadata, target any) (any, bool) {
	id, err := meta.ID(target, tm)
	if err != nil {
		return nil, false
	}
	return Canonical(id)
}

// Canonical maps a Go attribute value onto a canonical value. It reports
// false for nil.
func Canonical(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string, bool, int64, float64:
		return val, true
	case int:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case float32:
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(val), 'g', -1, 32), 64)
		return f, true
	case []byte:
		return string(val), true
	case *apd.Decimal, apd.Decimal, *big.Int, time.Time, *time.Time, *meta.Calendar, meta.Calendar:
		if isNilPointer(v) {
			return nil, false
		}
		return prop.String(v), true
	case []any:
		list := make([]any, 0, len(val))
		for _, e := range val {
			if cv, ok := Canonical(e); ok {
				list = append(list, cv)
			}
		}
		return list, true
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			if cv, ok := Canonical(e); ok {
				out[k] = cv
			}
		}
		return out, true
	default:
		if isNilPointer(v) {
			return nil, false
		}
		return fmt.Sprint(v), true
	}
}

// CanonicalMap canonicalizes every value of m. nil values are dropped and
// an empty map yields nil.
func CanonicalMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if cv, ok := Canonical(Normalize(v)); ok {
			out[k] = cv
		}
	}
	return out
}

// Equal compares an expected loosely typed value with a canonical value.
// A nil expectation matches only a missing value. Integral floats equal
// the matching integer.
func Equal(expected, actual any) bool {
	ev, ok := Canonical(Normalize(expected))
	if !ok {
		return actual == nil
	}
	return reflect.DeepEqual(integral(ev), integral(actual))
}

func integral(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = integral(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = integral(e)
		}
		return out
	default:
		return v
	}
}

// MatchSubset returns the first expected key (in sorted order) whose value
// differs from actual, or "" when every expected key matches.
func MatchSubset(expected, actual map[string]any) string {
	for _, k := range sortedKeys(expected) {
		if !Equal(expected[k], actual[k]) {
			return k
		}
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
