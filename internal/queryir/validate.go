package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
)

// Validate checks a query against the entity it targets.
//
// Rules:
//  1. Every filter, update and selected property resolves to an attribute
//  2. Every condition is a known operator
//  3. Clauses and connectors alternate, parentheses balance
//  4. Update clauses appear only on update queries
//
// All violations are reported, joined with errors.Join. Property errors
// are QueryHandler errors; structural errors are IllegalArgument errors.
// Native queries are not validated.
func Validate(q *Query, m *meta.EntityMetadata) error {
	if q == nil {
		return ormerr.IllegalArgument("nil query")
	}
	if q.Native {
		return nil
	}

	v := &validator{entity: m}
	v.validateFilters(q.Filters)
	v.validateUpdates(q)
	for _, col := range q.Columns {
		v.checkProperty(col)
	}
	return errors.Join(v.errs...)
}

// validator accumulates errors during traversal.
type validator struct {
	entity *meta.EntityMetadata
	errs   []error
}

func (v *validator) addError(err error) {
	v.errs = append(v.errs, err)
}

func (v *validator) checkProperty(property string) {
	if _, ok := v.entity.Attribute(property); !ok {
		v.addError(ormerr.QueryHandler(v.entity.Class, property, "no such attribute"))
	}
}

// validateFilters walks the sequence as a small state machine. expectTerm
// is true where a clause or "(" must come next.
func (v *validator) validateFilters(elements []Element) {
	expectTerm := true
	depth := 0

	for i, el := range elements {
		switch e := el.(type) {
		case FilterClause:
			if !expectTerm {
				v.addError(ormerr.IllegalArgument(fmt.Sprintf("filter %d: clause %q must follow a connector", i, e.Property)))
			}
			v.checkProperty(e.Property)
			if _, err := ParseOperator(string(e.Condition)); err != nil {
				v.addError(err)
			}
			expectTerm = false

		case Connector:
			switch e {
			case And, Or:
				if expectTerm {
					v.addError(ormerr.IllegalArgument(fmt.Sprintf("filter %d: %s has no left operand", i, e)))
				}
				expectTerm = true
			case LParen:
				if !expectTerm {
					v.addError(ormerr.IllegalArgument(fmt.Sprintf("filter %d: ( must follow a connector", i)))
				}
				depth++
			case RParen:
				if expectTerm {
					v.addError(ormerr.IllegalArgument(fmt.Sprintf("filter %d: ) closes an empty group", i)))
				}
				depth--
				if depth < 0 {
					v.addError(ormerr.IllegalArgument(fmt.Sprintf("filter %d: unbalanced )", i)))
					depth = 0
				}
			default:
				v.addError(ormerr.IllegalArgument(fmt.Sprintf("filter %d: unknown connector %q", i, string(e))))
			}

		default:
			v.addError(ormerr.IllegalArgument(fmt.Sprintf("filter %d: unknown element type %T", i, el)))
		}
	}

	if len(elements) > 0 && expectTerm {
		v.addError(ormerr.IllegalArgument("filter sequence ends with a connector"))
	}
	if depth > 0 {
		v.addError(ormerr.IllegalArgument("filter sequence has an unclosed ("))
	}
}

func (v *validator) validateUpdates(q *Query) {
	if len(q.Updates) > 0 && q.Kind != KindUpdate {
		v.addError(ormerr.IllegalArgument(fmt.Sprintf("%s query carries update clauses", q.Kind)))
	}
	for _, u := range q.Updates {
		a, ok := v.entity.Attribute(u.Property)
		if !ok {
			v.addError(ormerr.QueryHandler(v.entity.Class, u.Property, "invalid update target"))
			continue
		}
		if !a.Singular() {
			v.addError(ormerr.QueryHandler(v.entity.Class, u.Property, "update target is not a singular attribute"))
		}
	}
}
