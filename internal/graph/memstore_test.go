package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_GetOrCreateNodeIsUnique(t *testing.T) {
	s := NewMemStore()
	ctx := t.Context()

	calls := 0
	init := func(rec Record, props map[string]any) {
		calls++
		rec.SetProperty("id", props["id"])
	}

	a, err := s.GetOrCreateNode(ctx, "person", "id", "1", init)
	require.NoError(t, err)
	b, err := s.GetOrCreateNode(ctx, "person", "id", "1", init)
	require.NoError(t, err)
	c, err := s.GetOrCreateNode(ctx, "book", "id", "1", init)
	require.NoError(t, err)

	assert.Equal(t, a.ElementID, b.ElementID)
	assert.NotEqual(t, a.ElementID, c.ElementID, "indexes are separate namespaces")
	assert.Equal(t, 2, calls, "init runs only on creation")
	assert.Equal(t, map[string]any{"id": "1"}, a.Props)
}

func TestMemStore_RecordsAreCopies(t *testing.T) {
	s := NewMemStore()
	ctx := t.Context()

	n, err := s.GetOrCreateNode(ctx, "person", "id", "1", nil)
	require.NoError(t, err)
	n.SetProperty("name", "Ada")

	nodes, err := s.Nodes(ctx, "person", "id")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Nil(t, nodes[0].Property("name"), "unsaved changes stay local")

	require.NoError(t, s.SaveNode(ctx, n))
	nodes, err = s.Nodes(ctx, "person", "id")
	require.NoError(t, err)
	assert.Equal(t, "Ada", nodes[0].Property("name"))
}

func TestMemStore_Lookup(t *testing.T) {
	s := NewMemStore()
	ctx := t.Context()

	for _, id := range []string{"1", "2"} {
		_, err := s.GetOrCreateNode(ctx, "person", "id", id, idInit("id"))
		require.NoError(t, err)
	}

	hits, err := s.Lookup(ctx, "person", "id", "2")
	require.NoError(t, err)
	assert.Equal(t, 1, hits.Size())
	n, err := hits.Single()
	require.NoError(t, err)
	assert.Equal(t, "2", n.Property("id"))
	assert.Equal(t, 1, s.OpenHits())
	require.NoError(t, hits.Close())
	require.NoError(t, hits.Close())
	assert.Equal(t, 0, s.OpenHits())

	_, err = s.AutoLookup(ctx, "id", "2")
	assert.Error(t, err, "automatic index disabled")
}

func TestMemStore_AutoLookupSpansIndexes(t *testing.T) {
	s := NewMemStore(WithAutoIndexing(true))
	ctx := t.Context()

	_, err := s.GetOrCreateNode(ctx, "person", "id", "x", idInit("id"))
	require.NoError(t, err)
	_, err = s.GetOrCreateNode(ctx, "book", "id", "x", idInit("id"))
	require.NoError(t, err)

	hits, err := s.AutoLookup(ctx, "id", "x")
	require.NoError(t, err)
	defer hits.Close()

	assert.Equal(t, 2, hits.Size())
	_, err = hits.Single()
	assert.Error(t, err)
}

func TestMemStore_Relationships(t *testing.T) {
	s := NewMemStore()
	ctx := t.Context()

	a, _ := s.GetOrCreateNode(ctx, "actor", "id", "a", idInit("id"))
	m1, _ := s.GetOrCreateNode(ctx, "movie", "id", "m1", idInit("id"))
	m2, _ := s.GetOrCreateNode(ctx, "movie", "id", "m2", idInit("id"))

	r1, err := s.GetOrCreateRelationship(ctx, "actedin", "id", "r1", a, m1, "ROLES", idInit("id"))
	require.NoError(t, err)
	again, err := s.GetOrCreateRelationship(ctx, "actedin", "id", "r1", a, m1, "ROLES", idInit("id"))
	require.NoError(t, err)
	assert.Equal(t, r1.ElementID, again.ElementID)

	_, err = s.Relate(ctx, a, m2, "ROLES")
	require.NoError(t, err)
	_, err = s.Relate(ctx, a, m2, "ROLES")
	require.NoError(t, err)

	edges, err := s.Outgoing(ctx, a, "ROLES")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "m1", edges[0].End.Property("id"))
	assert.Equal(t, "m2", edges[1].End.Property("id"))

	require.NoError(t, s.DeleteNode(ctx, m1))
	edges, err = s.Outgoing(ctx, a, "ROLES")
	require.NoError(t, err)
	assert.Len(t, edges, 1, "deleting a node detaches it")

	require.NoError(t, s.DeleteOutgoing(ctx, a, "ROLES"))
	edges, err = s.Outgoing(ctx, a, "ROLES")
	require.NoError(t, err)
	assert.Empty(t, edges)

	_, err = s.Relate(ctx, a, m1, "ROLES")
	assert.Error(t, err, "deleted nodes cannot be related")
}

func TestMemStore_NodesOrdered(t *testing.T) {
	s := NewMemStore()
	ctx := t.Context()

	for _, id := range []string{"b", "c", "a"} {
		_, err := s.GetOrCreateNode(ctx, "person", "id", id, idInit("id"))
		require.NoError(t, err)
	}
	nodes, err := s.Nodes(ctx, "person", "id")
	require.NoError(t, err)

	var ids []any
	for _, n := range nodes {
		ids = append(ids, n.Property("id"))
	}
	assert.Equal(t, []any{"a", "b", "c"}, ids)
}
