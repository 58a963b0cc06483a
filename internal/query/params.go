package query

import (
	"fmt"
	"reflect"

	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/queryir"
)

// Parameter is a handle on one placeholder of a query. Type is the Go type
// of the attribute the placeholder is compared with or assigned to, nil
// for dynamic records.
type Parameter struct {
	Name     string
	Position int
	Type     reflect.Type
}

func (p Parameter) param() queryir.Param {
	return queryir.Param{Name: p.Name, Position: p.Position}
}

// String returns the placeholder token.
func (p Parameter) String() string { return p.param().String() }

// Parameters returns a handle for every placeholder, in order of first
// appearance.
func (q *Query) Parameters() []Parameter {
	params := q.model.Parameters()
	out := make([]Parameter, 0, len(params))
	for _, p := range params {
		out = append(out, q.handle(p))
	}
	return out
}

// handle resolves the attribute type of a placeholder from the first
// clause using it.
func (q *Query) handle(p queryir.Param) Parameter {
	h := Parameter{Name: p.Name, Position: p.Position}
	property := ""
	for _, c := range q.model.Clauses() {
		if c.Value == p {
			property = c.Property
			break
		}
	}
	if property == "" {
		for _, u := range q.model.Updates {
			if u.Value == p {
				property = u.Property
				break
			}
		}
	}
	if a, ok := q.entity.Attribute(property); ok {
		h.Type = a.Type
	}
	return h
}

func (q *Query) lookup(p queryir.Param) (Parameter, error) {
	if q.model.Native {
		return Parameter{}, ormerr.IllegalState("parameters are not supported on native queries")
	}
	if !q.model.HasParameter(p) {
		return Parameter{}, ormerr.IllegalArgument(fmt.Sprintf("query has no parameter %s", p))
	}
	return q.handle(p), nil
}

// Parameter returns the handle of a named placeholder.
func (q *Query) Parameter(name string) (Parameter, error) {
	return q.lookup(queryir.Named(name))
}

// PositionalParameter returns the handle of a positional placeholder.
func (q *Query) PositionalParameter(pos int) (Parameter, error) {
	return q.lookup(queryir.Positional(pos))
}

// TypedParameter returns the handle of a named placeholder whose attribute
// has type t. A missing placeholder or another type is an IllegalArgument
// error.
func (q *Query) TypedParameter(name string, t reflect.Type) (Parameter, error) {
	h, err := q.Parameter(name)
	if err != nil {
		return Parameter{}, err
	}
	return checkType(h, t)
}

// TypedPositionalParameter is TypedParameter for positional placeholders.
func (q *Query) TypedPositionalParameter(pos int, t reflect.Type) (Parameter, error) {
	h, err := q.PositionalParameter(pos)
	if err != nil {
		return Parameter{}, err
	}
	return checkType(h, t)
}

func checkType(h Parameter, t reflect.Type) (Parameter, error) {
	if h.Type == nil || h.Type != t {
		return Parameter{}, ormerr.IllegalArgument(fmt.Sprintf("parameter %s is not assignable to %v", h, t))
	}
	return h, nil
}

// SetParameter binds a named placeholder.
func (q *Query) SetParameter(name string, value any) error {
	return q.model.Bind(queryir.Named(name), value)
}

// SetPositionalParameter binds a positional placeholder.
func (q *Query) SetPositionalParameter(pos int, value any) error {
	return q.model.Bind(queryir.Positional(pos), value)
}

// SetParameterHandle binds the placeholder of a handle. A handle that is
// not part of this query is an IllegalArgument error.
func (q *Query) SetParameterHandle(p Parameter, value any) error {
	return q.model.Bind(p.param(), value)
}

// IsBound reports whether the placeholder of p has a value.
func (q *Query) IsBound(p Parameter) bool {
	return q.model.IsBound(p.param())
}

// ParameterValue returns the value bound to a named placeholder.
func (q *Query) ParameterValue(name string) (any, error) {
	return q.model.Value(queryir.Named(name))
}

// PositionalParameterValue returns the value bound to a positional
// placeholder.
func (q *Query) PositionalParameterValue(pos int) (any, error) {
	return q.model.Value(queryir.Positional(pos))
}

// HandleValue returns the value bound to the placeholder of p.
func (q *Query) HandleValue(p Parameter) (any, error) {
	return q.model.Value(p.param())
}
