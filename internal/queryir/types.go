package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/strata/internal/ormerr"
)

// Element is one entry of a filter sequence.
//
// This is a sealed interface - only FilterClause and Connector implement it.
type Element interface {
	element() // Marker method - seals interface to this package
}

// Operator is a filter condition token.
type Operator string

const (
	OpEq   Operator = "="
	OpLike Operator = "like"
	OpGt   Operator = ">"
	OpGte  Operator = ">="
	OpLt   Operator = "<"
	OpLte  Operator = "<="
)

// ParseOperator normalizes an operator token. Matching is case-insensitive.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.ToLower(strings.TrimSpace(s))); op {
	case OpEq, OpLike, OpGt, OpGte, OpLt, OpLte:
		return op, nil
	default:
		return "", ormerr.IllegalArgument(fmt.Sprintf("unknown operator %q", s))
	}
}

// Range reports whether the operator is a comparison.
func (o Operator) Range() bool {
	switch o {
	case OpGt, OpGte, OpLt, OpLte:
		return true
	default:
		return false
	}
}

// FilterClause is a single predicate: <property> <condition> <value>.
//
// Property is an attribute path ("age", "home.city") or a column name.
// Value is a literal or a Param.
type FilterClause struct {
	Property  string
	Condition Operator
	Value     any
}

func (FilterClause) element() {}

// String renders the clause for diagnostics.
func (c FilterClause) String() string {
	return fmt.Sprintf("%s %s %v", c.Property, c.Condition, c.Value)
}

// Connector is a logical token spliced verbatim between clauses.
type Connector string

const (
	And    Connector = "AND"
	Or     Connector = "OR"
	LParen Connector = "("
	RParen Connector = ")"
)

func (Connector) element() {}

// UpdateClause assigns Value to Property on every matched entity.
type UpdateClause struct {
	Property string
	Value    any
}

// Param is a placeholder in a clause value. Exactly one of Name or
// Position is set.
type Param struct {
	Name     string
	Position int
}

// Named returns a named placeholder.
func Named(name string) Param { return Param{Name: name} }

// Positional returns a positional placeholder (1-based).
func Positional(pos int) Param { return Param{Position: pos} }

// String returns the placeholder token, ":name" or "?N".
func (p Param) String() string {
	if p.Name != "" {
		return ":" + p.Name
	}
	return "?" + strconv.Itoa(p.Position)
}

// ParseParam parses a placeholder token.
func ParseParam(token string) (Param, bool) {
	switch {
	case strings.HasPrefix(token, ":") && len(token) > 1:
		return Named(token[1:]), true
	case strings.HasPrefix(token, "?") && len(token) > 1:
		pos, err := strconv.Atoi(token[1:])
		if err != nil || pos < 1 {
			return Param{}, false
		}
		return Positional(pos), true
	default:
		return Param{}, false
	}
}

// Kind is the statement kind of a query.
type Kind int

const (
	KindSelect Kind = iota
	KindDelete
	KindUpdate
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindDelete:
		return "delete"
	case KindUpdate:
		return "update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Query is the parsed, store-agnostic form of a query string.
type Query struct {
	Entity  string         // Entity class or simple name as written
	Alias   string         // Range variable, e.g. "p" in "FROM Person p"
	Kind    Kind           // select, delete or update
	Filters []Element      // Ordered filter sequence
	Updates []UpdateClause // Ordered update assignments
	Columns []string       // Selected attribute paths; empty selects the whole entity
	Native  bool           // Native queries carry no clause model or parameters

	bindings map[Param]any
}

// Clauses returns the filter clauses in order, skipping connectors.
func (q *Query) Clauses() []FilterClause {
	var out []FilterClause
	for _, el := range q.Filters {
		if c, ok := el.(FilterClause); ok {
			out = append(out, c)
		}
	}
	return out
}

// IsUpdate reports whether the query modifies entities.
func (q *Query) IsUpdate() bool {
	return q.Kind == KindUpdate
}

// IsDelete reports whether the query removes entities.
func (q *Query) IsDelete() bool {
	return q.Kind == KindDelete
}

// Parameters returns every placeholder in order of first appearance,
// filters before updates.
func (q *Query) Parameters() []Param {
	seen := make(map[Param]bool)
	var out []Param
	add := func(v any) {
		if p, ok := v.(Param); ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, c := range q.Clauses() {
		add(c.Value)
	}
	for _, u := range q.Updates {
		add(u.Value)
	}
	return out
}

// HasParameter reports whether p appears in the query.
func (q *Query) HasParameter(p Param) bool {
	for _, candidate := range q.Parameters() {
		if candidate == p {
			return true
		}
	}
	return false
}

// Bind sets the value of a placeholder. Binding an unknown placeholder is
// an IllegalArgument error.
func (q *Query) Bind(p Param, value any) error {
	if q.Native {
		return ormerr.IllegalState("parameters are not supported on native queries")
	}
	if !q.HasParameter(p) {
		return ormerr.IllegalArgument(fmt.Sprintf("query has no parameter %s", p))
	}
	if q.bindings == nil {
		q.bindings = make(map[Param]any)
	}
	q.bindings[p] = value
	return nil
}

// IsBound reports whether p has a bound value.
func (q *Query) IsBound(p Param) bool {
	_, ok := q.bindings[p]
	return ok
}

// Value returns the bound value of p. Reading an unbound placeholder is an
// IllegalState error.
func (q *Query) Value(p Param) (any, error) {
	if q.Native {
		return nil, ormerr.IllegalState("parameters are not supported on native queries")
	}
	if !q.HasParameter(p) {
		return nil, ormerr.IllegalArgument(fmt.Sprintf("query has no parameter %s", p))
	}
	v, ok := q.bindings[p]
	if !ok {
		return nil, ormerr.IllegalState(fmt.Sprintf("parameter %s is not bound", p))
	}
	return v, nil
}

// ClauseValue returns the values of every clause whose value is the given
// placeholder token, in clause order. Bound placeholders yield their bound
// value; unbound ones are omitted.
func (q *Query) ClauseValue(token string) []any {
	p, ok := ParseParam(token)
	if !ok {
		return nil
	}
	v, bound := q.bindings[p]
	if !bound {
		return nil
	}
	var out []any
	for _, c := range q.Clauses() {
		if c.Value == p {
			out = append(out, v)
		}
	}
	for _, u := range q.Updates {
		if u.Value == p {
			out = append(out, v)
		}
	}
	return out
}

// Resolve returns a copy of the query with every placeholder replaced by
// its bound value. Bindings are not carried over.
func (q *Query) Resolve() (*Query, error) {
	resolved := &Query{
		Entity:  q.Entity,
		Alias:   q.Alias,
		Kind:    q.Kind,
		Columns: append([]string(nil), q.Columns...),
		Native:  q.Native,
	}

	resolved.Filters = make([]Element, 0, len(q.Filters))
	for _, el := range q.Filters {
		if c, ok := el.(FilterClause); ok {
			v, err := q.substitute(c.Value)
			if err != nil {
				return nil, err
			}
			c.Value = v
			el = c
		}
		resolved.Filters = append(resolved.Filters, el)
	}

	resolved.Updates = make([]UpdateClause, 0, len(q.Updates))
	for _, u := range q.Updates {
		v, err := q.substitute(u.Value)
		if err != nil {
			return nil, err
		}
		u.Value = v
		resolved.Updates = append(resolved.Updates, u)
	}
	return resolved, nil
}

func (q *Query) substitute(v any) (any, error) {
	p, ok := v.(Param)
	if !ok {
		return v, nil
	}
	bound, ok := q.bindings[p]
	if !ok {
		return nil, ormerr.IllegalState(fmt.Sprintf("parameter %s is not bound", p))
	}
	return bound, nil
}
