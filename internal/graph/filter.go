package graph

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/queryir"
)

// filter evaluates a resolved filter sequence against node properties.
// The sequence compiles to one boolean expression over an environment
// holding the node as n and each clause value as p0, p1, ...
type filter struct {
	m       *meta.EntityMetadata
	source  string
	program *vm.Program
	params  map[string]any
}

var exprOperators = map[queryir.Operator]string{
	queryir.OpEq:  "==",
	queryir.OpGt:  ">",
	queryir.OpGte: ">=",
	queryir.OpLt:  "<",
	queryir.OpLte: "<=",
}

// compileFilter builds a filter. An empty sequence yields nil.
func compileFilter(m *meta.EntityMetadata, elements []queryir.Element) (*filter, error) {
	if len(elements) == 0 {
		return nil, nil
	}

	f := &filter{m: m, params: make(map[string]any)}
	var sb strings.Builder
	for _, e := range elements {
		switch el := e.(type) {
		case queryir.Connector:
			switch el {
			case queryir.And:
				sb.WriteString(" and ")
			case queryir.Or:
				sb.WriteString(" or ")
			case queryir.LParen:
				sb.WriteString("(")
			case queryir.RParen:
				sb.WriteString(")")
			default:
				return nil, ormerr.IllegalArgument(fmt.Sprintf("unknown connector %q", string(el)))
			}

		case queryir.FilterClause:
			term, err := f.clause(el)
			if err != nil {
				return nil, err
			}
			sb.WriteString(term)

		default:
			return nil, ormerr.IllegalArgument(fmt.Sprintf("unexpected element %T", e))
		}
	}
	f.source = sb.String()

	program, err := expr.Compile(f.source, expr.Env(f.env(map[string]any{})), expr.AsBool())
	if err != nil {
		return nil, ormerr.IllegalArgument(fmt.Sprintf("compile filter %q: %v", f.source, err))
	}
	f.program = program
	return f, nil
}

func (f *filter) clause(fc queryir.FilterClause) (string, error) {
	a, ok := f.m.Attribute(fc.Property)
	if !ok {
		return "", ormerr.QueryHandler(f.m.Class, fc.Property, "no such attribute")
	}
	if _, unbound := fc.Value.(queryir.Param); unbound {
		return "", ormerr.IllegalState(fmt.Sprintf("parameter %v is not bound", fc.Value))
	}

	ref := "n[" + strconv.Quote(a.Column) + "]"
	if fc.Value == nil && fc.Condition == queryir.OpEq {
		return ref + " == nil", nil
	}

	name := "p" + strconv.Itoa(len(f.params))
	f.params[name] = normalize(fc.Value, a.Kind)

	if fc.Condition == queryir.OpLike {
		f.params[name] = prop.String(fc.Value)
		return fmt.Sprintf("(%s != nil and string(%s) startsWith %s)", ref, ref, name), nil
	}
	op, ok := exprOperators[fc.Condition]
	if !ok {
		return "", ormerr.IllegalArgument(fmt.Sprintf("unsupported operator %q", string(fc.Condition)))
	}
	if op == "==" {
		return fmt.Sprintf("%s == %s", ref, name), nil
	}
	return fmt.Sprintf("(%s != nil and %s %s %s)", ref, ref, op, name), nil
}

func (f *filter) env(node map[string]any) map[string]any {
	env := make(map[string]any, len(f.params)+1)
	for k, v := range f.params {
		env[k] = v
	}
	env["n"] = node
	return env
}

// Match reports whether the node's properties satisfy the filter.
func (f *filter) Match(props map[string]any) (bool, error) {
	if f == nil {
		return true, nil
	}
	node := make(map[string]any, len(props))
	for _, a := range f.m.Singular() {
		if v, ok := props[a.Column]; ok {
			node[a.Column] = normalize(v, a.Kind)
		}
	}
	out, err := expr.Run(f.program, f.env(node))
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.source, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// normalize converts a value so both sides of a comparison share a Go
// type: integers become int64, floats and decimals float64, temporal
// values time.Time in UTC.
func normalize(v any, kind meta.Kind) any {
	if v == nil {
		return nil
	}
	native := prop.ToNative(v)
	switch kind {
	case meta.KindInt16, meta.KindInt32, meta.KindInt64:
		if n, err := prop.FromNative(native, meta.KindInt64); err == nil {
			return n
		}
	case meta.KindFloat32, meta.KindFloat64, meta.KindDecimal, meta.KindBigInt:
		if f, err := strconv.ParseFloat(prop.String(native), 64); err == nil {
			return f
		}
	case meta.KindDate, meta.KindCalendar:
		if t, err := prop.FromNative(native, meta.KindDate); err == nil {
			return t.(time.Time).UTC()
		}
	case meta.KindString:
		return prop.String(native)
	}
	return native
}
