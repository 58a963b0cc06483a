package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/event"
	"github.com/roach88/strata/internal/graph"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

var graphClasses = map[string]bool{
	testutil.PersonClass:  true,
	testutil.ActorClass:   true,
	testutil.MovieClass:   true,
	testutil.ActedInClass: true,
}

// mixedCatalog puts people and films in the "graph" unit and everything
// else in the "column" unit.
func mixedCatalog(t *testing.T) *meta.StaticCatalog {
	t.Helper()
	var entities []*meta.EntityMetadata
	for _, m := range testutil.Entities(t, "graph") {
		if graphClasses[m.Class] {
			entities = append(entities, m)
		}
	}
	for _, m := range testutil.Entities(t, "column") {
		if !graphClasses[m.Class] {
			entities = append(entities, m)
		}
	}
	cat, err := meta.NewCatalog(entities...)
	require.NoError(t, err)
	return cat
}

type fired struct {
	class string
	kind  event.Kind
}

func newTestSession(t *testing.T) (*Session, *event.Registry, *[]fired) {
	t.Helper()
	cat := mixedCatalog(t)
	col, err := store.Open(filepath.Join(t.TempDir(), "strata.db"), cat, store.WithUnit("column"))
	require.NoError(t, err)
	t.Cleanup(func() { col.Close() })

	events := event.NewRegistry()
	var log []fired
	for _, k := range []event.Kind{event.PostLoad, event.PrePersist, event.PreUpdate, event.PostRemove} {
		events.On("", k, func(_ context.Context, m *meta.EntityMetadata, _ any) error {
			log = append(log, fired{m.Class, k})
			return nil
		})
	}

	s := New(cat, map[string]client.Client{
		"graph":  graph.NewClient(graph.NewMemStore(), cat, nil),
		"column": col,
	}, WithEvents(events))
	return s, events, &log
}

func TestSession_PersistAndFind(t *testing.T) {
	s, _, log := newTestSession(t)
	ctx := t.Context()
	person := testutil.Meta(t, s.Catalog(), testutil.PersonClass)

	ada := &testutil.Person{ID: "1", Name: "Ada", Age: 36}
	require.NoError(t, s.Persist(ctx, ada))
	assert.True(t, s.Contains(ada))

	got, err := s.Find(ctx, person, "1")
	require.NoError(t, err)
	assert.Same(t, ada, got, "cached entity is returned")

	s.Clear()
	got, err = s.Find(ctx, person, "1")
	require.NoError(t, err)
	assert.NotSame(t, ada, got)
	assert.Equal(t, ada, got)

	got, err = s.Find(ctx, person, "9")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, []fired{
		{testutil.PersonClass, event.PrePersist},
		{testutil.PersonClass, event.PostLoad},
	}, *log)
}

func TestSession_FindByIDs(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := t.Context()
	person := testutil.Meta(t, s.Catalog(), testutil.PersonClass)

	ada := &testutil.Person{ID: "1", Name: "Ada", Age: 36}
	require.NoError(t, s.Persist(ctx, ada))
	require.NoError(t, s.Persist(ctx, &testutil.Person{ID: "2", Name: "Alan", Age: 41}))
	s.Clear()
	require.NoError(t, s.Merge(ctx, ada))

	got, err := s.FindByIDs(ctx, person, []any{"2", "3", "1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alan", got[0].(*testutil.Person).Name)
	assert.Same(t, ada, got[1])
}

func TestSession_MergeCascades(t *testing.T) {
	s, _, log := newTestSession(t)
	ctx := t.Context()
	author := testutil.Meta(t, s.Catalog(), testutil.AuthorClass)

	home := &testutil.Address{ID: "addr-1", City: "Portland"}
	a := &testutil.Author{
		ID:      "a1",
		Name:    "Ursula",
		Address: home,
		Books:   []*testutil.Book{{ID: "b1", Title: "Lathe"}},
	}
	require.NoError(t, s.Merge(ctx, a))

	assert.Equal(t, []fired{
		{testutil.AddressClass, event.PreUpdate},
		{testutil.BookClass, event.PreUpdate},
		{testutil.AuthorClass, event.PreUpdate},
	}, *log)

	s.Clear()
	got, err := s.Find(ctx, author, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	loaded := got.(*testutil.Author)
	assert.Equal(t, home, loaded.Address)
	require.Len(t, loaded.Books, 1)
	assert.Equal(t, "Lathe", loaded.Books[0].Title)
}

func TestSession_Remove(t *testing.T) {
	s, _, log := newTestSession(t)
	ctx := t.Context()
	person := testutil.Meta(t, s.Catalog(), testutil.PersonClass)

	ada := &testutil.Person{ID: "1", Name: "Ada"}
	require.NoError(t, s.Persist(ctx, ada))
	require.NoError(t, s.Remove(ctx, ada))
	assert.False(t, s.Contains(ada))

	got, err := s.Find(ctx, person, "1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Contains(t, *log, fired{testutil.PersonClass, event.PostRemove})
}

func TestSession_ListenerErrorAborts(t *testing.T) {
	s, events, _ := newTestSession(t)
	ctx := t.Context()
	person := testutil.Meta(t, s.Catalog(), testutil.PersonClass)

	veto := errors.New("veto")
	events.On(testutil.PersonClass, event.PrePersist, func(context.Context, *meta.EntityMetadata, any) error {
		return veto
	})

	err := s.Persist(ctx, &testutil.Person{ID: "1"})
	require.ErrorIs(t, err, veto)

	s.Clear()
	got, err := s.Find(ctx, person, "1")
	require.NoError(t, err)
	assert.Nil(t, got, "the client was never called")
}

func TestSession_Errors(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := t.Context()

	tests := []struct {
		name  string
		run   func() error
		check func(error) bool
	}{
		{"nil entity", func() error { return s.Persist(ctx, nil) }, ormerr.IsIllegalArgument},
		{"nil pointer", func() error { return s.Merge(ctx, (*testutil.Person)(nil)) }, ormerr.IsIllegalArgument},
		{"unregistered type", func() error { return s.Persist(ctx, &struct{ ID string }{}) }, ormerr.IsIllegalArgument},
		{"unknown record class", func() error { return s.Remove(ctx, meta.NewRecord("example.Nope")) }, ormerr.IsIllegalArgument},
		{"nil id", func() error {
			_, err := s.Find(ctx, testutil.Meta(t, s.Catalog(), testutil.PersonClass), nil)
			return err
		}, ormerr.IsIllegalArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestSession_MissingClient(t *testing.T) {
	cat := mixedCatalog(t)
	s := New(cat, map[string]client.Client{"graph": graph.NewClient(graph.NewMemStore(), cat, nil)})

	err := s.Persist(t.Context(), &testutil.Book{ID: "b1"})
	require.Error(t, err)
	assert.True(t, ormerr.IsIllegalState(err))
}
