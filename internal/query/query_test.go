package query

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/event"
	"github.com/roach88/strata/internal/graph"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/session"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

// loads counts post-load events.
type loads struct{ n int }

func (l *loads) listen(r *event.Registry) {
	r.On("", event.PostLoad, func(context.Context, *meta.EntityMetadata, any) error {
		l.n++
		return nil
	})
}

func graphSession(t *testing.T) (*session.Session, *loads) {
	t.Helper()
	cat := testutil.Catalog(t, "graph")
	events := event.NewRegistry()
	l := &loads{}
	l.listen(events)
	s := session.New(cat, map[string]client.Client{
		"graph": graph.NewClient(graph.NewMemStore(), cat, nil),
	}, session.WithEvents(events))
	return s, l
}

func columnSession(t *testing.T) (*session.Session, *loads) {
	t.Helper()
	cat := testutil.Catalog(t, "column")
	col, err := store.Open(filepath.Join(t.TempDir(), "strata.db"), cat, store.WithUnit("column"), store.WithSearch())
	require.NoError(t, err)
	t.Cleanup(func() { col.Close() })

	events := event.NewRegistry()
	l := &loads{}
	l.listen(events)
	return session.New(cat, map[string]client.Client{"column": col}, session.WithEvents(events)), l
}

func seedPeople(t *testing.T, s *session.Session) {
	t.Helper()
	for _, p := range []*testutil.Person{
		{ID: "1", Name: "Ada", Age: 36},
		{ID: "2", Name: "Alan", Age: 41},
		{ID: "3", Name: "Grace", Age: 29},
	} {
		require.NoError(t, s.Persist(t.Context(), p))
	}
	s.Clear()
}

func mustQuery(t *testing.T, raw string, s *session.Session) *Query {
	t.Helper()
	q, err := New(raw, nil, s)
	require.NoError(t, err)
	return q
}

func TestGetResultList_Person(t *testing.T) {
	for _, tc := range []struct {
		name    string
		session func(*testing.T) (*session.Session, *loads)
		search  bool
	}{
		{"graph", graphSession, false},
		{"column", columnSession, false},
		{"column search", columnSession, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, l := tc.session(t)
			seedPeople(t, s)

			q := mustQuery(t, "SELECT p FROM Person p WHERE p.age >= 30", s)
			if tc.search {
				q.SetHint(HintSearch, true)
			}
			got, err := q.GetResultList(t.Context())
			require.NoError(t, err)
			assert.Equal(t, []any{
				&testutil.Person{ID: "1", Name: "Ada", Age: 36},
				&testutil.Person{ID: "2", Name: "Alan", Age: 41},
			}, got)
			assert.Equal(t, 1, l.n, "post-load fires once per result list")
		})
	}
}

func TestGetResultList_Projection(t *testing.T) {
	s, _ := columnSession(t)
	seedPeople(t, s)

	q := mustQuery(t, "SELECT p.name FROM Person p WHERE p.age < 30", s)
	cols, err := q.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, cols)

	got, err := q.GetResultList(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []any{&testutil.Person{ID: "3", Name: "Grace"}}, got)
}

func TestGetResultList_MaxResults(t *testing.T) {
	s, _ := graphSession(t)
	seedPeople(t, s)

	q := mustQuery(t, "SELECT p FROM Person p", s)
	assert.Equal(t, 100, q.MaxResults())
	require.NoError(t, q.SetMaxResults(2))

	got, err := q.GetResultList(t.Context())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	for _, n := range []int{0, -1} {
		err = q.SetMaxResults(n)
		assert.True(t, ormerr.IsIllegalArgument(err), "max %d", n)
	}
	assert.Equal(t, 2, q.MaxResults(), "a rejected bound leaves the previous one")
}

func TestDelete(t *testing.T) {
	s, l := columnSession(t)
	seedPeople(t, s)
	person := testutil.Meta(t, s.Catalog(), testutil.PersonClass)

	q := mustQuery(t, "DELETE FROM Person p WHERE p.age > 0", s)
	got, err := q.GetResultList(t.Context())
	require.NoError(t, err)
	assert.Len(t, got, 3, "removed entities are still returned")
	assert.Zero(t, l.n, "no post-load event for deletes")

	left, err := s.FindByIDs(t.Context(), person, []any{"1", "2", "3"})
	require.NoError(t, err)
	assert.Empty(t, left)

	n, err := mustQuery(t, "DELETE FROM Person p", s).ExecuteUpdate(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdate(t *testing.T) {
	s, l := graphSession(t)
	seedPeople(t, s)
	person := testutil.Meta(t, s.Catalog(), testutil.PersonClass)

	q := mustQuery(t, "UPDATE Person p SET p.name = 42, p.age = :age WHERE p.id = '1'", s)
	require.NoError(t, q.SetParameter("age", 37))
	n, err := q.ExecuteUpdate(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, l.n)

	s.Clear()
	got, err := s.Find(t.Context(), person, "1")
	require.NoError(t, err)
	assert.Equal(t, &testutil.Person{ID: "1", Name: "42", Age: 37}, got, "numbers assigned to strings take their string form")
}

func TestUpdate_InvalidTarget(t *testing.T) {
	s, _ := graphSession(t)
	require.NoError(t, s.Persist(t.Context(), testutil.SampleAccount(t)))

	_, err := New("UPDATE Person p SET p.nope = 1", nil, s)
	require.Error(t, err)
	assert.True(t, ormerr.IsQueryHandler(err))

	q := mustQuery(t, "UPDATE Account a SET a.balance = true", s)
	_, err = q.ExecuteUpdate(t.Context())
	require.Error(t, err)
	assert.True(t, ormerr.IsQueryHandler(err))
}

func TestExecuteUpdate_Select(t *testing.T) {
	s, _ := graphSession(t)
	_, err := mustQuery(t, "SELECT p FROM Person p", s).ExecuteUpdate(t.Context())
	assert.True(t, ormerr.IsIllegalState(err))
}

func TestGetSingleResult(t *testing.T) {
	s, _ := graphSession(t)
	seedPeople(t, s)

	tests := []struct {
		name  string
		raw   string
		want  any
		check func(error) bool
	}{
		{"one", "SELECT p FROM Person p WHERE p.name = 'Ada'", &testutil.Person{ID: "1", Name: "Ada", Age: 36}, nil},
		{"none", "SELECT p FROM Person p WHERE p.name = 'Linus'", nil, ormerr.IsNoResult},
		{"many", "SELECT p FROM Person p WHERE p.age > 30", nil, ormerr.IsNonUniqueResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mustQuery(t, tt.raw, s).GetSingleResult(t.Context())
			if tt.check != nil {
				require.Error(t, err)
				assert.True(t, tt.check(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParameters(t *testing.T) {
	s, _ := graphSession(t)
	seedPeople(t, s)

	q := mustQuery(t, "SELECT p FROM Person p WHERE p.age >= :min AND p.name = ?1", s)

	params := q.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, Parameter{Name: "min", Type: reflect.TypeOf(int32(0))}, params[0])
	assert.Equal(t, Parameter{Position: 1, Type: reflect.TypeOf("")}, params[1])

	_, err := q.GetResultList(t.Context())
	assert.True(t, ormerr.IsIllegalState(err), "unbound parameters fail execution")

	_, err = q.ParameterValue("min")
	assert.True(t, ormerr.IsIllegalState(err))
	assert.False(t, q.IsBound(params[0]))

	require.NoError(t, q.SetParameterHandle(params[0], 30))
	require.NoError(t, q.SetPositionalParameter(1, "Alan"))
	assert.True(t, q.IsBound(params[0]))

	v, err := q.ParameterValue("min")
	require.NoError(t, err)
	assert.Equal(t, 30, v)
	v, err = q.PositionalParameterValue(1)
	require.NoError(t, err)
	assert.Equal(t, "Alan", v)
	v, err = q.HandleValue(params[1])
	require.NoError(t, err)
	assert.Equal(t, "Alan", v)

	got, err := q.GetSingleResult(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Alan", got.(*testutil.Person).Name)

	h, err := q.TypedParameter("min", reflect.TypeOf(int32(0)))
	require.NoError(t, err)
	assert.Equal(t, params[0], h)
	_, err = q.TypedParameter("min", reflect.TypeOf(""))
	assert.True(t, ormerr.IsIllegalArgument(err))
	_, err = q.TypedPositionalParameter(2, reflect.TypeOf(""))
	assert.True(t, ormerr.IsIllegalArgument(err))
	_, err = q.Parameter("nope")
	assert.True(t, ormerr.IsIllegalArgument(err))
	assert.True(t, ormerr.IsIllegalArgument(q.SetParameter("nope", 1)))
	assert.True(t, ormerr.IsIllegalArgument(q.SetParameterHandle(Parameter{Name: "other"}, 1)))
}

func TestNativeQuery(t *testing.T) {
	s, _ := graphSession(t)
	model := &queryir.Query{Entity: testutil.PersonClass, Native: true}
	q, err := New("MATCH (n:person) RETURN n", model, s)
	require.NoError(t, err)
	assert.Same(t, model, q.Model())
	assert.Equal(t, "MATCH (n:person) RETURN n", q.Raw())

	_, err = q.Parameter("x")
	assert.True(t, ormerr.IsIllegalState(err))
	_, err = q.GetResultList(t.Context())
	assert.True(t, ormerr.IsUnsupported(err))
}

func TestNew_Errors(t *testing.T) {
	s, _ := graphSession(t)

	_, err := New("SELECT p FROM Nobody p", nil, s)
	assert.True(t, ormerr.IsIllegalArgument(err))

	_, err = New("SELECT p.shoeSize FROM Person p", nil, s)
	assert.True(t, ormerr.IsQueryHandler(err))

	_, err = New("SELECT p FROM Person p", nil, nil)
	assert.True(t, ormerr.IsIllegalArgument(err))

	_, err = New("SELEKT", nil, s)
	assert.Error(t, err)
}

func TestIterate(t *testing.T) {
	s, l := graphSession(t)
	seedPeople(t, s)

	it := mustQuery(t, "SELECT p FROM Person p", s).Iterate(t.Context())
	assert.Zero(t, l.n, "nothing runs before the first pull")

	var names []string
	for it.Next() {
		names = append(names, it.Value().(*testutil.Person).Name)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"Ada", "Alan", "Grace"}, names)
	assert.False(t, it.Next(), "iterators are not restartable")
	assert.Nil(t, it.Value())
	assert.Equal(t, 1, l.n, "one scan serves every pull")

	failing := mustQuery(t, "SELECT p FROM Person p WHERE p.age = :a", s).Iterate(t.Context())
	assert.False(t, failing.Next())
	assert.True(t, ormerr.IsIllegalState(failing.Err()))
}

func TestHints(t *testing.T) {
	s, _ := graphSession(t)
	q := mustQuery(t, "SELECT p FROM Person p", s)
	q.SetHint("custom", 1)
	q.SetHint(HintSearch, "true")

	hints := q.Hints()
	assert.Equal(t, map[string]any{"custom": 1, HintSearch: "true"}, hints)
	hints["custom"] = 2
	assert.Equal(t, 1, q.Hints()["custom"], "hints are returned as a copy")
	assert.True(t, q.searchHint())

	q.SetFetchSize(10)
	assert.Equal(t, 10, q.FetchSize())
}

func TestCompat(t *testing.T) {
	s, _ := graphSession(t)
	c := NewCompat(mustQuery(t, "SELECT p FROM Person p", s))
	now := time.Now()

	_, firstErr := c.FirstResult()
	_, flushErr := c.FlushMode()
	_, lockErr := c.LockMode()
	ops := map[string]error{
		"SetFirstResult":                 c.SetFirstResult(1),
		"FirstResult":                    firstErr,
		"SetFlushMode":                   c.SetFlushMode("auto"),
		"FlushMode":                      flushErr,
		"SetLockMode":                    c.SetLockMode("read"),
		"LockMode":                       lockErr,
		"SetTemporalParameter":           c.SetTemporalParameter("d", now, "DATE"),
		"SetTemporalPositionalParameter": c.SetTemporalPositionalParameter(1, now, "DATE"),
		"SetTemporalParameterHandle":     c.SetTemporalParameterHandle(Parameter{Name: "d"}, now, "DATE"),
	}
	for op, err := range ops {
		var e *ormerr.Error
		require.ErrorAs(t, err, &e, op)
		assert.Equal(t, ormerr.CodeUnsupported, e.Code, op)
		assert.Equal(t, op, e.Op)
	}

	assert.Equal(t, 100, c.MaxResults(), "supported operations pass through")
}
