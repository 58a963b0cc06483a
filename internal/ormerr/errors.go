// Package ormerr defines the error taxonomy shared by the mapping and query layers.
//
// Every error raised by strata itself is an *Error carrying a Code. Errors
// returned by backend clients (SQLite, neo4j) are never converted into an
// *Error; they are wrapped with %w so errors.Is/As still reach the driver
// error.
package ormerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes an Error.
type Code string

const (
	// CodeMapping indicates a reflective construction or access failure while
	// converting between an entity and a native record. Never retried.
	CodeMapping Code = "MAPPING"

	// CodeNoResult indicates a single-result query matched nothing.
	CodeNoResult Code = "NO_RESULT"

	// CodeNonUniqueResult indicates a single-result query matched more than one entity.
	CodeNonUniqueResult Code = "NON_UNIQUE_RESULT"

	// CodeQueryHandler indicates a clause referenced an unknown column or an
	// invalid update target.
	CodeQueryHandler Code = "QUERY_HANDLER"

	// CodeUnsupported indicates the caller invoked an operation the engine
	// deliberately does not implement.
	CodeUnsupported Code = "UNSUPPORTED"

	// CodeIllegalState indicates a parameter value was read or used before binding.
	CodeIllegalState Code = "ILLEGAL_STATE"

	// CodeIllegalArgument indicates an argument that does not belong to the query.
	CodeIllegalArgument Code = "ILLEGAL_ARGUMENT"
)

// Error is the error type raised by strata.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Entity is the entity class at fault, if any.
	Entity string

	// Attribute is the attribute or column at fault, if any.
	Attribute string

	// Op is the operation at fault (used by CodeUnsupported).
	Op string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	var ctx []string
	if e.Entity != "" {
		ctx = append(ctx, "entity="+e.Entity)
	}
	if e.Attribute != "" {
		ctx = append(ctx, "attribute="+e.Attribute)
	}
	if e.Op != "" {
		ctx = append(ctx, "op="+e.Op)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Mapping creates a CodeMapping error for entity/attribute conversion failures.
func Mapping(entity, attribute string, cause error) *Error {
	return &Error{
		Code:      CodeMapping,
		Message:   "error while converting between entity and native record",
		Entity:    entity,
		Attribute: attribute,
		Cause:     cause,
	}
}

// NoResult creates a CodeNoResult error.
func NoResult(entity string) *Error {
	return &Error{
		Code:    CodeNoResult,
		Message: "query returned no result",
		Entity:  entity,
	}
}

// NonUniqueResult creates a CodeNonUniqueResult error.
func NonUniqueResult(entity string, count int) *Error {
	return &Error{
		Code:    CodeNonUniqueResult,
		Message: fmt.Sprintf("query returned %d results, expected exactly one", count),
		Entity:  entity,
	}
}

// QueryHandler creates a CodeQueryHandler error naming the offending attribute.
func QueryHandler(entity, attribute, message string) *Error {
	return &Error{
		Code:      CodeQueryHandler,
		Message:   message,
		Entity:    entity,
		Attribute: attribute,
	}
}

// Unsupported creates a CodeUnsupported error naming the operation.
func Unsupported(op string) *Error {
	return &Error{
		Code:    CodeUnsupported,
		Message: op + " is unsupported",
		Op:      op,
	}
}

// IllegalState creates a CodeIllegalState error.
func IllegalState(message string) *Error {
	return &Error{
		Code:    CodeIllegalState,
		Message: message,
	}
}

// IllegalArgument creates a CodeIllegalArgument error.
func IllegalArgument(message string) *Error {
	return &Error{
		Code:    CodeIllegalArgument,
		Message: message,
	}
}

// HasCode reports whether err is, or wraps, an *Error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsMapping reports whether err is a mapping error.
func IsMapping(err error) bool { return HasCode(err, CodeMapping) }

// IsNoResult reports whether err is a no-result error.
func IsNoResult(err error) bool { return HasCode(err, CodeNoResult) }

// IsNonUniqueResult reports whether err is a non-unique-result error.
func IsNonUniqueResult(err error) bool { return HasCode(err, CodeNonUniqueResult) }

// IsQueryHandler reports whether err is a query handler error.
func IsQueryHandler(err error) bool { return HasCode(err, CodeQueryHandler) }

// IsUnsupported reports whether err is an unsupported-operation error.
func IsUnsupported(err error) bool { return HasCode(err, CodeUnsupported) }

// IsIllegalState reports whether err is an illegal-state error.
func IsIllegalState(err error) bool { return HasCode(err, CodeIllegalState) }

// IsIllegalArgument reports whether err is an illegal-argument error.
func IsIllegalArgument(err error) bool { return HasCode(err, CodeIllegalArgument) }
