package graph

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/testutil"
)

func TestCypherStatements(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			"merge node",
			mergeNodeCypher("person", "id"),
			"MERGE (n:`person` {`id`: $value}) ON CREATE SET n += $init RETURN n",
		},
		{
			"merge relationship",
			mergeRelationshipCypher("id", "ROLES"),
			"MATCH (a), (b) WHERE elementId(a) = $start AND elementId(b) = $end MERGE (a)-[r:`ROLES` {`id`: $value}]->(b) ON CREATE SET r += $init RETURN r",
		},
		{
			"manual lookup",
			lookupCypher("person", "id"),
			"MATCH (n:`person`) WHERE n.`id` = $value RETURN n ORDER BY elementId(n)",
		},
		{
			"auto lookup",
			lookupCypher("", "id"),
			"MATCH (n) WHERE n.`id` = $value RETURN n ORDER BY elementId(n)",
		},
		{
			"quoted label",
			nodesCypher("odd`label", "id"),
			"MATCH (n:`odd``label`) RETURN n ORDER BY toString(n.`id`), elementId(n)",
		},
		{
			"outgoing",
			outgoingCypher("address_id"),
			"MATCH (a)-[r:`address_id`]->(b) WHERE elementId(a) = $start RETURN r, b ORDER BY elementId(r)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestInitProps(t *testing.T) {
	props := initProps("id", "p1", idInit("id"))
	assert.Equal(t, map[string]any{"id": "p1"}, props)
	assert.Empty(t, initProps("id", "p1", nil))
}

// TestNeo4jStore runs the client against a live server when
// STRATA_NEO4J_URI is set.
func TestNeo4jStore(t *testing.T) {
	uri := os.Getenv("STRATA_NEO4J_URI")
	if uri == "" {
		t.Skip("STRATA_NEO4J_URI not set")
	}
	ctx := t.Context()
	s, err := OpenNeo4j(ctx, Neo4jConfig{
		URI:      uri,
		Username: os.Getenv("STRATA_NEO4J_USER"),
		Password: os.Getenv("STRATA_NEO4J_PASSWORD"),
	}, nil)
	require.NoError(t, err)
	defer s.Close(ctx)

	cat := testutil.Catalog(t, "graph")
	person := testutil.Meta(t, cat, testutil.PersonClass)
	c := NewClient(s, cat, nil)

	p := &testutil.Person{ID: "neo4j-test-1", Name: "Ada", Age: 36}
	require.NoError(t, c.Merge(ctx, person, p))
	defer func() { _ = c.Remove(context.Background(), person, p) }()

	row, err := c.FindByID(ctx, person, p.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Ada", row.Values["name"])
	assert.Equal(t, int64(36), row.Values["age"])
}
