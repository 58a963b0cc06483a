// Package querysearch translates filter sequences into search-index query
// strings.
//
// Output grammar, per filter clause:
//
//	<index>.<property>:<value>          =
//	<index>.<property>:<value>*         like (prefix match)
//	<index>.<property>:{<value> TO *}   > on a numeric attribute
//	<index>.<property>:[<value> TO *]   >= on a numeric attribute
//	<index>.<property>:{<value> TO null} > on any other attribute
//	<index>.<property>:{* TO <value>}   <
//	<index>.<property>:[* TO <value>]   <=
//
// Connectors are spliced as " <token> ". The scoping term
// "entity.class:<lowercased class>" is always appended last.
//
// The open upper bound differs by kind: numeric attributes get the "*"
// wildcard, everything else gets the literal "null". Both the index and
// the tests rely on this exact output.
package querysearch

import (
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/queryir"
)

// EntityClassField is the document field holding the lowercased entity class.
const EntityClassField = "entity.class"

// ToSearchQuery builds the search query string for a filter sequence.
// Values must already be resolved; a placeholder is an IllegalState error.
func ToSearchQuery(elements []queryir.Element, m *meta.EntityMetadata) (string, error) {
	var sb strings.Builder

	for _, el := range elements {
		switch e := el.(type) {
		case queryir.FilterClause:
			if err := appendClause(&sb, e, m); err != nil {
				return "", err
			}
		case queryir.Connector:
			sb.WriteString(" " + string(e) + " ")
		default:
			return "", ormerr.IllegalArgument(fmt.Sprintf("unsupported filter element %T", el))
		}
	}

	if sb.Len() > 0 {
		sb.WriteString(" AND ")
	}
	sb.WriteString(EntityClassField)
	sb.WriteString(":")
	sb.WriteString(ClassTerm(m))
	return sb.String(), nil
}

// ClassTerm returns the value indexed under EntityClassField for m.
func ClassTerm(m *meta.EntityMetadata) string {
	return strings.ToLower(m.Class)
}

// FieldName returns the document field for a property: the index name
// followed by the property path with any enclosing embedded prefix removed.
func FieldName(m *meta.EntityMetadata, property string) string {
	if m.EnclosingEmbedded(property) != "" {
		if i := strings.Index(property, "."); i >= 0 {
			property = property[i+1:]
		}
	}
	return m.IndexName + "." + property
}

func appendClause(sb *strings.Builder, c queryir.FilterClause, m *meta.EntityMetadata) error {
	if p, ok := c.Value.(queryir.Param); ok {
		return ormerr.IllegalState(fmt.Sprintf("parameter %s is not bound", p))
	}

	sb.WriteString(FieldName(m, c.Property))
	value := Escape(prop.String(c.Value))

	op, err := queryir.ParseOperator(string(c.Condition))
	if err != nil {
		return err
	}

	switch op {
	case queryir.OpEq:
		sb.WriteString(":")
		sb.WriteString(value)
	case queryir.OpLike:
		sb.WriteString(":")
		sb.WriteString(value)
		sb.WriteString("*")
	default:
		a, ok := m.Attribute(c.Property)
		if !ok {
			return ormerr.QueryHandler(m.Class, c.Property, "no such attribute")
		}
		inclusive := op == queryir.OpGte || op == queryir.OpLte
		greater := op == queryir.OpGt || op == queryir.OpGte
		sb.WriteString(appendRange(value, inclusive, greater, a.Kind))
	}
	return nil
}

func appendRange(value string, inclusive, greater bool, kind meta.Kind) string {
	var sb strings.Builder
	sb.WriteString(":")
	if inclusive {
		sb.WriteString("[")
	} else {
		sb.WriteString("{")
	}

	if greater {
		sb.WriteString(value)
	} else {
		sb.WriteString("*")
	}
	sb.WriteString(" TO ")

	switch {
	case !greater:
		sb.WriteString(value)
	case kind.Numeric():
		sb.WriteString("*")
	default:
		sb.WriteString("null")
	}

	if inclusive {
		sb.WriteString("]")
	} else {
		sb.WriteString("}")
	}
	return sb.String()
}

const specialChars = `\:[]{}()*"`

// Escape backslash-escapes whitespace and query syntax characters so a
// value always reads back as a single term.
func Escape(value string) string {
	if !strings.ContainsAny(value, specialChars+" \t\n\r") {
		return value
	}
	var sb strings.Builder
	for _, r := range value {
		if strings.ContainsRune(specialChars, r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Unescape reverses Escape.
func Unescape(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var sb strings.Builder
	escaped := false
	for _, r := range value {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		sb.WriteRune(r)
	}
	return sb.String()
}
