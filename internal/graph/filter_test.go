package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/testutil"
)

func fc(p string, op queryir.Operator, v any) queryir.FilterClause {
	return queryir.FilterClause{Property: p, Condition: op, Value: v}
}

func TestFilter_Match(t *testing.T) {
	cat := testutil.Catalog(t, "graph")
	person := testutil.Meta(t, cat, testutil.PersonClass)

	ada := map[string]any{"id": "1", "name": "Ada", "age": int32(36)}
	nameless := map[string]any{"id": "2", "age": int64(17)}

	tests := []struct {
		name     string
		elements []queryir.Element
		props    map[string]any
		want     bool
	}{
		{"no filter", nil, ada, true},
		{"equality", []queryir.Element{fc("name", queryir.OpEq, "Ada")}, ada, true},
		{"mixed integer widths", []queryir.Element{fc("age", queryir.OpEq, int64(36))}, ada, true},
		{"greater", []queryir.Element{fc("age", queryir.OpGt, 30)}, ada, true},
		{"less or equal", []queryir.Element{fc("age", queryir.OpLte, 35)}, ada, false},
		{"prefix", []queryir.Element{fc("name", queryir.OpLike, "Ad")}, ada, true},
		{"missing property never compares", []queryir.Element{fc("name", queryir.OpLike, "")}, nameless, false},
		{"null equality", []queryir.Element{fc("name", queryir.OpEq, nil)}, nameless, true},
		{
			"grouping",
			[]queryir.Element{
				fc("age", queryir.OpLt, 18), queryir.Or,
				queryir.LParen, fc("name", queryir.OpEq, "Ada"), queryir.And, fc("age", queryir.OpGte, 36), queryir.RParen,
			},
			ada, true,
		},
		{
			"and binds tighter",
			[]queryir.Element{fc("age", queryir.OpLt, 18), queryir.Or, fc("name", queryir.OpEq, "Grace"), queryir.And, fc("age", queryir.OpGt, 100)},
			nameless, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := compileFilter(person, tt.elements)
			require.NoError(t, err)
			got, err := f.Match(tt.props)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_TemporalAndDecimal(t *testing.T) {
	cat := testutil.Catalog(t, "graph")
	account := testutil.Meta(t, cat, testutil.AccountClass)

	props := map[string]any{
		"id":      "a",
		"balance": "1234.5600",
		"opened":  time.Date(2021, 3, 4, 10, 30, 0, 0, time.UTC),
	}
	f, err := compileFilter(account, []queryir.Element{
		fc("balance", queryir.OpGt, testutil.Decimal(t, "999.99")),
		queryir.And,
		fc("opened", queryir.OpLt, time.Date(2021, 3, 4, 12, 0, 0, 0, time.FixedZone("CET", 3600))),
	})
	require.NoError(t, err)

	ok, err := f.Match(props)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilter_Errors(t *testing.T) {
	cat := testutil.Catalog(t, "graph")
	person := testutil.Meta(t, cat, testutil.PersonClass)

	_, err := compileFilter(person, []queryir.Element{fc("salary", queryir.OpEq, 1)})
	assert.True(t, ormerr.IsQueryHandler(err))

	_, err = compileFilter(person, []queryir.Element{fc("age", queryir.OpEq, queryir.Named("age"))})
	assert.True(t, ormerr.IsIllegalState(err))

	_, err = compileFilter(person, []queryir.Element{fc("age", queryir.OpEq, 1), queryir.Connector("XOR")})
	assert.True(t, ormerr.IsIllegalArgument(err))

	_, err = compileFilter(person, []queryir.Element{fc("age", queryir.OpEq, 1), queryir.And})
	assert.True(t, ormerr.IsIllegalArgument(err), "dangling connector fails to compile")
}
