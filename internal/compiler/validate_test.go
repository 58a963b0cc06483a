package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/meta"
)

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateCatalog(t *testing.T) {
	entities, err := CompileCatalog(compile(t, libraryCatalog))
	require.NoError(t, err)
	assert.Empty(t, Validate(entities))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "unknown target",
			src:  `entity: A: {unit: "u", attributes: {id: "int64"}, relations: b: {target: "B"}}`,
			want: []string{ErrUnknownTarget},
		},
		{
			name: "unknown relationship class",
			src: `
				entity: A: {unit: "u", attributes: {id: "int64"}, relations: b: {target: "B", mapkey: "AB", collection: true}}
				entity: B: {unit: "u", attributes: {id: "int64"}}
			`,
			want: []string{ErrUnknownMapKeyClass},
		},
		{
			name: "conflicting join",
			src: `
				entity: A: {unit: "u", attributes: {id: "int64"}, relations: b: {target: "B", join: "b_id", jointable: "a_b"}}
				entity: B: {unit: "u", attributes: {id: "int64"}}
			`,
			want: []string{ErrConflictingJoin},
		},
		{
			name: "duplicate column",
			src:  `entity: A: {unit: "u", attributes: {id: "int64", x: {kind: "string", column: "id"}}}`,
			want: []string{ErrDuplicateColumn},
		},
		{
			name: "shared table",
			src: `
				entity: A: {unit: "u", table: "t", attributes: {id: "int64"}}
				entity: B: {unit: "u", table: "t", attributes: {id: "int64"}}
			`,
			want: []string{ErrSharedTable},
		},
		{
			name: "missing unit",
			src:  `entity: A: {attributes: {id: "int64"}}`,
			want: []string{ErrMissingUnit},
		},
		{
			name: "collection id",
			src:  `entity: A: {unit: "u", attributes: {id: {kind: "int64", collection: true}}}`,
			want: []string{ErrCollectionID},
		},
		{
			name: "errors are collected",
			src: `
				entity: A: {attributes: {id: "int64"}, relations: b: {target: "B", join: "b_id", jointable: "a_b"}}
			`,
			want: []string{ErrMissingUnit, ErrUnknownTarget, ErrConflictingJoin},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, err := CompileCatalog(compile(t, tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(Validate(entities)))
		})
	}
}

func TestValidateDuplicateClass(t *testing.T) {
	a := &meta.EntityMetadata{Class: "x.A", PersistenceUnit: "u", Table: "a"}
	b := &meta.EntityMetadata{Class: "x.A", PersistenceUnit: "u", Table: "b"}
	assert.Equal(t, []string{ErrDuplicateClass}, codes(Validate([]*meta.EntityMetadata{a, b})))
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "x.A.unit", Message: "persistence unit is required", Code: ErrMissingUnit}
	assert.Equal(t, "[E107] x.A.unit: persistence unit is required", e.Error())
}
