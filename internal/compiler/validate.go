package compiler

import (
	"fmt"

	"github.com/roach88/strata/internal/meta"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateClass     = "E101" // two entities share a class
	ErrUnknownTarget      = "E102" // relation target is not declared
	ErrUnknownMapKeyClass = "E103" // relationship class is not declared
	ErrConflictingJoin    = "E104" // relation has both join and jointable
	ErrDuplicateColumn    = "E105" // two attributes share a column
	ErrSharedTable        = "E106" // two entities of one unit share a table
	ErrMissingUnit        = "E107" // entity has no persistence unit
	ErrCollectionID       = "E108" // id attribute is a collection
)

// ValidationError represents a catalog validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks compiled entities against each other and returns every
// error found. It does not stop at the first one.
func Validate(entities []*meta.EntityMetadata) []ValidationError {
	var errs []ValidationError

	classes := make(map[string]bool, len(entities))
	tables := make(map[string]string)
	for _, m := range entities {
		if classes[m.Class] {
			errs = append(errs, ValidationError{
				Field:   m.Class,
				Message: "duplicate entity class",
				Code:    ErrDuplicateClass,
			})
		}
		classes[m.Class] = true

		if m.PersistenceUnit == "" {
			errs = append(errs, ValidationError{
				Field:   m.Class + ".unit",
				Message: "persistence unit is required",
				Code:    ErrMissingUnit,
			})
		}

		key := m.PersistenceUnit + "\x00" + m.Table
		if other, ok := tables[key]; ok {
			errs = append(errs, ValidationError{
				Field:   m.Class + ".table",
				Message: fmt.Sprintf("table %q is already used by %s", m.Table, other),
				Code:    ErrSharedTable,
			})
		} else {
			tables[key] = m.Class
		}

		errs = append(errs, validateAttributes(m)...)
	}

	for _, m := range entities {
		for _, r := range m.Relations {
			field := m.Class + ".relations." + r.Property
			if !classes[r.Target] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("target %q is not declared", r.Target),
					Code:    ErrUnknownTarget,
				})
			}
			if r.MapKeyJoinClass != "" && !classes[r.MapKeyJoinClass] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("relationship class %q is not declared", r.MapKeyJoinClass),
					Code:    ErrUnknownMapKeyClass,
				})
			}
			if r.JoinColumn != "" && r.JoinTable != "" {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: "join and jointable are mutually exclusive",
					Code:    ErrConflictingJoin,
				})
			}
		}
	}

	return errs
}

func validateAttributes(m *meta.EntityMetadata) []ValidationError {
	var errs []ValidationError
	if m.ID != nil && m.ID.Collection {
		errs = append(errs, ValidationError{
			Field:   m.Class + ".id",
			Message: "id attribute cannot be a collection",
			Code:    ErrCollectionID,
		})
	}

	columns := make(map[string]string, len(m.Attributes))
	for _, a := range m.Attributes {
		if other, ok := columns[a.Column]; ok {
			errs = append(errs, ValidationError{
				Field:   m.Class + ".attributes." + a.Path(),
				Message: fmt.Sprintf("column %q is already used by %s", a.Column, other),
				Code:    ErrDuplicateColumn,
			})
			continue
		}
		columns[a.Column] = a.Path()
	}
	return errs
}
