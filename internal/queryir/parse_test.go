package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ormerr"
)

func TestParse_Select(t *testing.T) {
	q, err := Parse("SELECT p FROM Person p WHERE p.age >= 30 AND p.name LIKE 'Ad'")
	require.NoError(t, err)

	assert.Equal(t, "Person", q.Entity)
	assert.Equal(t, "p", q.Alias)
	assert.Equal(t, KindSelect, q.Kind)
	assert.Empty(t, q.Columns)
	assert.Equal(t, []Element{
		FilterClause{Property: "age", Condition: OpGte, Value: int64(30)},
		And,
		FilterClause{Property: "name", Condition: OpLike, Value: "Ad"},
	}, q.Filters)
}

func TestParse_Columns(t *testing.T) {
	q, err := Parse("select p.name, p.home.city from example.Person p")
	require.NoError(t, err)
	assert.Equal(t, "example.Person", q.Entity)
	assert.Equal(t, []string{"name", "home.city"}, q.Columns)
	assert.Empty(t, q.Filters)
}

func TestParse_Delete(t *testing.T) {
	q, err := Parse("DELETE FROM Person p WHERE p.id = :id")
	require.NoError(t, err)
	assert.Equal(t, KindDelete, q.Kind)
	assert.Equal(t, []Element{FilterClause{Property: "id", Condition: OpEq, Value: Named("id")}}, q.Filters)

	q, err = Parse("DELETE FROM Person")
	require.NoError(t, err)
	assert.Equal(t, "", q.Alias)
	assert.Empty(t, q.Filters)
}

func TestParse_Update(t *testing.T) {
	q, err := Parse("UPDATE Person p SET p.name = ?1, p.age = 41 WHERE p.id = 'x'")
	require.NoError(t, err)
	assert.Equal(t, KindUpdate, q.Kind)
	assert.Equal(t, []UpdateClause{
		{Property: "name", Value: Positional(1)},
		{Property: "age", Value: int64(41)},
	}, q.Updates)
	assert.Len(t, q.Filters, 1)
}

func TestParse_Groups(t *testing.T) {
	q, err := Parse("SELECT p FROM Person p WHERE (p.age < 18 OR p.age > 65) AND p.active = true")
	require.NoError(t, err)
	assert.Equal(t, []Element{
		LParen,
		FilterClause{Property: "age", Condition: OpLt, Value: int64(18)},
		Or,
		FilterClause{Property: "age", Condition: OpGt, Value: int64(65)},
		RParen,
		And,
		FilterClause{Property: "active", Condition: OpEq, Value: true},
	}, q.Filters)
}

func TestParse_Values(t *testing.T) {
	tests := []struct {
		literal string
		want    any
	}{
		{"'it''s'", "it's"},
		{"-3", int64(-3)},
		{"2.5", 2.5},
		{"FALSE", false},
		{"null", nil},
		{":who", Named("who")},
		{"?2", Positional(2)},
	}
	for _, tt := range tests {
		t.Run(tt.literal, func(t *testing.T) {
			q, err := Parse("SELECT p FROM Person p WHERE p.x = " + tt.literal)
			require.NoError(t, err)
			require.Len(t, q.Clauses(), 1)
			assert.Equal(t, tt.want, q.Clauses()[0].Value)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	inputs := []string{
		"",
		"INSERT INTO Person",
		"SELECT p FROM",
		"SELECT p FROM Person p WHERE",
		"SELECT p FROM Person p WHERE p.age",
		"SELECT p FROM Person p WHERE p.age ! 3",
		"SELECT p FROM Person p WHERE (p.age = 3",
		"SELECT p FROM Person p WHERE p.name = 'open",
		"UPDATE Person p SET p.name WHERE p.id = 1",
		"SELECT p FROM Person p extra tokens",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			assert.True(t, ormerr.IsIllegalArgument(err), err.Error())
		})
	}
}
