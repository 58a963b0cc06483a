package graph

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"go.uber.org/zap"
)

// Neo4jConfig holds connection settings for a Neo4j server.
type Neo4jConfig struct {
	URI       string
	Username  string
	Password  string
	Database  string
	AutoIndex bool
}

// Neo4jStore is a Store backed by a Neo4j server. Index names are node
// labels; the automatic index matches nodes of any label.
type Neo4jStore struct {
	driver    neo4j.DriverWithContext
	database  string
	autoIndex bool
	logger    *zap.Logger
}

var _ Store = (*Neo4jStore)(nil)

// OpenNeo4j connects to the server and verifies connectivity.
func OpenNeo4j(ctx context.Context, cfg Neo4jConfig, logger *zap.Logger) (*Neo4jStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: failed to connect: %w", err)
	}

	return &Neo4jStore{driver: driver, database: cfg.Database, autoIndex: cfg.AutoIndex, logger: logger}, nil
}

// run executes one statement in its own session and collects every record.
func (s *Neo4jStore) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	cfg := neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite}
	if s.database != "" {
		cfg.DatabaseName = s.database
	}
	session := s.driver.NewSession(ctx, cfg)
	defer session.Close(ctx)

	s.logger.Debug("cypher", zap.String("statement", cypher))

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("neo4j: query execution failed: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to collect results: %w", err)
	}
	return records, nil
}

// quoteName quotes a label, relationship type, or property key.
func quoteName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func mergeNodeCypher(index, key string) string {
	return fmt.Sprintf("MERGE (n:%s {%s: $value}) ON CREATE SET n += $init RETURN n",
		quoteName(index), quoteName(key))
}

func mergeRelationshipCypher(key, relType string) string {
	return fmt.Sprintf("MATCH (a), (b) WHERE elementId(a) = $start AND elementId(b) = $end "+
		"MERGE (a)-[r:%s {%s: $value}]->(b) ON CREATE SET r += $init RETURN r",
		quoteName(relType), quoteName(key))
}

func relateCypher(relType string) string {
	return fmt.Sprintf("MATCH (a), (b) WHERE elementId(a) = $start AND elementId(b) = $end "+
		"MERGE (a)-[r:%s]->(b) RETURN r", quoteName(relType))
}

func lookupCypher(index, key string) string {
	if index == "" {
		return fmt.Sprintf("MATCH (n) WHERE n.%s = $value RETURN n ORDER BY elementId(n)", quoteName(key))
	}
	return fmt.Sprintf("MATCH (n:%s) WHERE n.%s = $value RETURN n ORDER BY elementId(n)", quoteName(index), quoteName(key))
}

func nodesCypher(index, orderKey string) string {
	return fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY toString(n.%s), elementId(n)", quoteName(index), quoteName(orderKey))
}

func outgoingCypher(relType string) string {
	return fmt.Sprintf("MATCH (a)-[r:%s]->(b) WHERE elementId(a) = $start RETURN r, b ORDER BY elementId(r)", quoteName(relType))
}

func deleteOutgoingCypher(relType string) string {
	return fmt.Sprintf("MATCH (a)-[r:%s]->() WHERE elementId(a) = $start DELETE r", quoteName(relType))
}

// initProps runs init against a scratch record to learn the properties a
// created record starts with.
func initProps(key string, value any, init InitFunc) map[string]any {
	scratch := &Node{Props: make(map[string]any)}
	if init != nil {
		init(scratch, map[string]any{key: value})
	}
	return scratch.Props
}

// GetOrCreateNode implements Store.
func (s *Neo4jStore) GetOrCreateNode(ctx context.Context, index, key string, value any, init InitFunc) (*Node, error) {
	records, err := s.run(ctx, mergeNodeCypher(index, key), map[string]any{
		"value": value,
		"init":  initProps(key, value, init),
	})
	if err != nil {
		return nil, err
	}
	return singleNode(records, "n")
}

// GetOrCreateRelationship implements Store. Relationship types take the
// role of the index, so index is not part of the match.
func (s *Neo4jStore) GetOrCreateRelationship(ctx context.Context, _ string, key string, value any, start, end *Node, relType string, init InitFunc) (*Relationship, error) {
	records, err := s.run(ctx, mergeRelationshipCypher(key, relType), map[string]any{
		"start": start.ElementID,
		"end":   end.ElementID,
		"value": value,
		"init":  initProps(key, value, init),
	})
	if err != nil {
		return nil, err
	}
	return singleRelationship(records)
}

// Relate implements Store.
func (s *Neo4jStore) Relate(ctx context.Context, start, end *Node, relType string) (*Relationship, error) {
	records, err := s.run(ctx, relateCypher(relType), map[string]any{
		"start": start.ElementID,
		"end":   end.ElementID,
	})
	if err != nil {
		return nil, err
	}
	return singleRelationship(records)
}

// Lookup implements Store.
func (s *Neo4jStore) Lookup(ctx context.Context, index, key string, value any) (Hits, error) {
	records, err := s.run(ctx, lookupCypher(index, key), map[string]any{"value": value})
	if err != nil {
		return nil, err
	}
	return collectHits(records)
}

// AutoLookup implements Store.
func (s *Neo4jStore) AutoLookup(ctx context.Context, key string, value any) (Hits, error) {
	return s.Lookup(ctx, "", key, value)
}

// AutoIndexing implements Store.
func (s *Neo4jStore) AutoIndexing(context.Context) bool {
	return s.autoIndex
}

// SaveNode implements Store. Properties absent from n are removed.
func (s *Neo4jStore) SaveNode(ctx context.Context, n *Node) error {
	_, err := s.run(ctx, "MATCH (n) WHERE elementId(n) = $id SET n = $props", map[string]any{
		"id":    n.ElementID,
		"props": n.Props,
	})
	return err
}

// SaveRelationship implements Store.
func (s *Neo4jStore) SaveRelationship(ctx context.Context, r *Relationship) error {
	_, err := s.run(ctx, "MATCH ()-[r]->() WHERE elementId(r) = $id SET r = $props", map[string]any{
		"id":    r.ElementID,
		"props": r.Props,
	})
	return err
}

// Nodes implements Store.
func (s *Neo4jStore) Nodes(ctx context.Context, index, orderKey string) ([]*Node, error) {
	records, err := s.run(ctx, nodesCypher(index, orderKey), nil)
	if err != nil {
		return nil, err
	}
	nodes := make([]*Node, 0, len(records))
	for _, rec := range records {
		n, err := nodeFrom(rec, "n")
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Outgoing implements Store.
func (s *Neo4jStore) Outgoing(ctx context.Context, start *Node, relType string) ([]Edge, error) {
	records, err := s.run(ctx, outgoingCypher(relType), map[string]any{"start": start.ElementID})
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(records))
	for _, rec := range records {
		r, err := relationshipFrom(rec, "r")
		if err != nil {
			return nil, err
		}
		end, err := nodeFrom(rec, "b")
		if err != nil {
			return nil, err
		}
		edges = append(edges, Edge{Rel: r, End: end})
	}
	return edges, nil
}

// DeleteOutgoing implements Store.
func (s *Neo4jStore) DeleteOutgoing(ctx context.Context, start *Node, relType string) error {
	_, err := s.run(ctx, deleteOutgoingCypher(relType), map[string]any{"start": start.ElementID})
	return err
}

// DeleteNode implements Store.
func (s *Neo4jStore) DeleteNode(ctx context.Context, n *Node) error {
	_, err := s.run(ctx, "MATCH (n) WHERE elementId(n) = $id DETACH DELETE n", map[string]any{"id": n.ElementID})
	return err
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	if err := s.driver.Close(ctx); err != nil {
		return fmt.Errorf("neo4j: failed to close driver: %w", err)
	}
	return nil
}

func nodeFrom(rec *neo4j.Record, key string) (*Node, error) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("neo4j: record has no %q", key)
	}
	n, ok := v.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("neo4j: %q is %T, not a node", key, v)
	}
	return &Node{ElementID: n.ElementId, Labels: n.Labels, Props: maps.Clone(n.Props)}, nil
}

func relationshipFrom(rec *neo4j.Record, key string) (*Relationship, error) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("neo4j: record has no %q", key)
	}
	r, ok := v.(dbtype.Relationship)
	if !ok {
		return nil, fmt.Errorf("neo4j: %q is %T, not a relationship", key, v)
	}
	return &Relationship{
		ElementID: r.ElementId,
		Type:      r.Type,
		StartID:   r.StartElementId,
		EndID:     r.EndElementId,
		Props:     maps.Clone(r.Props),
	}, nil
}

func singleNode(records []*neo4j.Record, key string) (*Node, error) {
	if len(records) != 1 {
		return nil, fmt.Errorf("neo4j: expected one node, got %d", len(records))
	}
	return nodeFrom(records[0], key)
}

func singleRelationship(records []*neo4j.Record) (*Relationship, error) {
	if len(records) != 1 {
		return nil, fmt.Errorf("neo4j: expected one relationship, got %d (missing endpoint?)", len(records))
	}
	return relationshipFrom(records[0], "r")
}

func collectHits(records []*neo4j.Record) (Hits, error) {
	h := &sliceHits{}
	for _, rec := range records {
		n, err := nodeFrom(rec, "n")
		if err != nil {
			return nil, err
		}
		h.nodes = append(h.nodes, n)
	}
	return h, nil
}

// sliceHits holds results already collected from the server.
type sliceHits struct {
	nodes []*Node
}

func (h *sliceHits) Size() int { return len(h.nodes) }

func (h *sliceHits) Single() (*Node, error) {
	switch len(h.nodes) {
	case 0:
		return nil, nil
	case 1:
		return h.nodes[0], nil
	default:
		return nil, fmt.Errorf("neo4j: %d hits where one was expected", len(h.nodes))
	}
}

func (h *sliceHits) Close() error {
	h.nodes = nil
	return nil
}
