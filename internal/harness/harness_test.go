package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/meta"
)

const catalogDir = "../../testdata/catalog"

func loadCatalog(t *testing.T) *meta.StaticCatalog {
	t.Helper()
	loaded, err := compiler.LoadDir(catalogDir)
	require.NoError(t, err)
	return loaded.Catalog
}

func intp(n int) *int { return &n }

func TestRun_PeopleQueries(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/people_queries.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	var update *TraceEvent
	for i := range result.Trace {
		if result.Trace[i].Type == TraceQuery && result.Trace[i].Action == "UPDATE Person p SET p.age = 37 WHERE p.name = 'Ada'" {
			update = &result.Trace[i]
		}
	}
	require.NotNil(t, update)
	assert.Equal(t, map[string]any{"affected": int64(1)}, update.Result)
}

func TestRun_LibraryRelations(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/library_relations.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExpectationFailures(t *testing.T) {
	s := &Scenario{
		Name:        "failures",
		Description: "every expectation misses",
		Units:       map[string]string{"column": BackendSQLite},
		Setup: []Step{
			{Persist: "example.Person", Values: map[string]any{"id": 1, "name": "Ada", "age": 36}},
		},
		Flow: []Step{
			{Find: "example.Person", ID: 1, Expect: &Expect{Count: intp(2)}},
			{Find: "example.Person", ID: 1, Expect: &Expect{Results: []map[string]any{{"name": "Alan"}}}},
			{Query: "SELECT p FROM Person p", Mode: ModeSingle, Expect: &Expect{Error: "NO_RESULT"}},
			{Query: "SELECT p FROM Person p WHERE p.name = 'Nobody'", Mode: ModeSingle},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Entity: "example.Person", ID: 1, Expect: map[string]any{"age": 40}},
		},
	}

	result, err := Run(t.Context(), s, WithCatalog(loadCatalog(t)))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "expected count 2, got 1")
	assert.Contains(t, result.Errors[1], "result[0].name: expected Alan, got Ada")
	assert.Contains(t, result.Errors[2], `expected error NO_RESULT, got ""`)
	assert.Contains(t, result.Errors[3], "unexpected error NO_RESULT")
	assert.Contains(t, result.Errors[4], "example.Person.age = 40")
}

func TestRun_SetupErrorAborts(t *testing.T) {
	s := &Scenario{
		Name:        "bad_setup",
		Description: "setup removes a missing entity",
		Setup: []Step{
			{Remove: "example.Person", ID: 99},
		},
		Flow:       []Step{{Find: "example.Person", ID: 1}},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "x"}},
	}

	_, err := Run(t.Context(), s, WithCatalog(loadCatalog(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute setup[0]")
}

func TestRun_UnknownReference(t *testing.T) {
	s := &Scenario{
		Name:        "dangling",
		Description: "contact refers to a company that does not exist",
		Flow: []Step{
			{Persist: "example.Contact", Values: map[string]any{"id": 1, "name": "Ada", "employer": 10}},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "x"}},
	}

	_, err := Run(t.Context(), s, WithCatalog(loadCatalog(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "example.Contact.employer: no example.Company with id 10")
}

func TestRun_LifecycleEventsFollowTheirStep(t *testing.T) {
	s := &Scenario{
		Name:        "merge_then_remove",
		Description: "merge and remove one company in the graph",
		Flow: []Step{
			{Merge: "example.Company", Values: map[string]any{"id": 10, "name": "Acme"}},
			{Remove: "example.Company", ID: 10},
		},
		Assertions: []Assertion{
			{Type: AssertTraceOrder, Actions: []string{"pre-update", "post-update", "pre-remove", "post-remove"}},
			{Type: AssertFinalState, Entity: "example.Company", ID: 10, Absent: true},
		},
	}

	result, err := Run(t.Context(), s, WithCatalog(loadCatalog(t)))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var kinds []string
	for _, ev := range result.Trace {
		kinds = append(kinds, ev.Type+":"+ev.Action)
	}
	assert.Equal(t, []string{
		"merge:example.Company",
		"event:pre-update",
		"event:post-update",
		"remove:example.Company",
		"event:pre-remove",
		"event:post-remove",
	}, kinds)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestRun_UnsupportedBackend(t *testing.T) {
	s := &Scenario{
		Name:        "neo4j",
		Description: "remote backends are not available to scenarios",
		Units:       map[string]string{"graph": "neo4j"},
		Flow:        []Step{{Find: "example.Company", ID: 1}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Action: "x"}},
	}

	_, err := Run(t.Context(), s, WithCatalog(loadCatalog(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unit graph: unsupported backend "neo4j"`)
}
