package graph

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/queryir"
)

// Client implements client.Client over a Store. Filters are evaluated in
// process; the graph has no search index.
type Client struct {
	store   Store
	mapper  *Mapper
	catalog meta.Catalog
	logger  *zap.Logger
}

var _ client.Client = (*Client)(nil)

// NewClient creates a graph client.
func NewClient(store Store, catalog meta.Catalog, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		store:   store,
		mapper:  NewMapper(catalog, logger),
		catalog: catalog,
		logger:  logger,
	}
}

// Mapper returns the entity mapper.
func (c *Client) Mapper() *Mapper {
	return c.mapper
}

// RelationshipType returns the relationship type of a relation: its join
// column when declared, the upper-cased property name otherwise.
func RelationshipType(r *meta.Relation) string {
	if r.JoinColumn != "" {
		return r.JoinColumn
	}
	return strings.ToUpper(r.Property)
}

// FindAll implements client.Client. Rows follow the order of ids; missing
// ids are skipped.
func (c *Client) FindAll(ctx context.Context, m *meta.EntityMetadata, columns []string, ids []any) ([]client.Row, error) {
	keep, err := projection(m, columns)
	if err != nil {
		return nil, err
	}

	var rows []client.Row
	for _, id := range ids {
		node, err := c.mapper.SearchNode(ctx, id, m, c.store)
		if err != nil {
			return nil, err
		}
		if node == nil {
			continue
		}
		row, err := c.row(ctx, m, node, keep)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Find implements client.Client.
func (c *Client) Find(ctx context.Context, m *meta.EntityMetadata, q *queryir.Query, limit int) ([]client.Row, error) {
	var elements []queryir.Element
	if q != nil {
		elements = q.Filters
	}
	f, err := compileFilter(m, elements)
	if err != nil {
		return nil, err
	}

	nodes, err := c.store.Nodes(ctx, m.IndexName, m.ID.Column)
	if err != nil {
		return nil, fmt.Errorf("scan %s nodes: %w", m.Class, err)
	}

	var rows []client.Row
	for _, node := range nodes {
		if limit > 0 && len(rows) >= limit {
			break
		}
		ok, err := f.Match(node.Props)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		row, err := c.row(ctx, m, node, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FindByID implements client.Client.
func (c *Client) FindByID(ctx context.Context, m *meta.EntityMetadata, id any) (*client.Row, error) {
	node, err := c.mapper.SearchNode(ctx, id, m, c.store)
	if err != nil || node == nil {
		return nil, err
	}
	row, err := c.row(ctx, m, node, nil)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// row converts a node to a client row. Single-valued relations resolve to
// the id of the first outgoing relationship's end node.
func (c *Client) row(ctx context.Context, m *meta.EntityMetadata, node *Node, keep map[string]bool) (client.Row, error) {
	row := client.Row{Values: make(map[string]any, len(node.Props))}
	for k, v := range node.Props {
		if keep == nil || keep[k] {
			row.Values[k] = v
		}
	}
	if keep != nil {
		return row, nil
	}

	for _, r := range m.Relations {
		if r.Collection {
			continue
		}
		if row.Relations == nil {
			row.Relations = make(map[string]any)
		}
		edges, err := c.store.Outgoing(ctx, node, RelationshipType(r))
		if err != nil {
			return client.Row{}, fmt.Errorf("load %s.%s: %w", m.Class, r.Property, err)
		}
		if len(edges) == 0 {
			continue
		}
		tm, err := c.catalog.Entity(r.Target)
		if err != nil {
			return client.Row{}, ormerr.Mapping(m.Class, r.Property, err)
		}
		row.Relations[r.Property] = edges[0].End.Props[tm.ID.Column]
	}
	return row, nil
}

func projection(m *meta.EntityMetadata, columns []string) (map[string]bool, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	keep := map[string]bool{m.ID.Column: true}
	for _, name := range columns {
		a, ok := m.Attribute(name)
		if !ok {
			return nil, ormerr.QueryHandler(m.Class, name, "no such column")
		}
		keep[a.Column] = true
	}
	return keep, nil
}

// JoinTargets implements client.Client. Relations with a relationship
// entity decode it from the edge.
func (c *Client) JoinTargets(ctx context.Context, m *meta.EntityMetadata, rel *meta.Relation, ownerID any) ([]client.Link, error) {
	owner, err := c.mapper.SearchNode(ctx, ownerID, m, c.store)
	if err != nil || owner == nil {
		return nil, err
	}
	tm, err := c.catalog.Entity(rel.Target)
	if err != nil {
		return nil, ormerr.Mapping(m.Class, rel.Property, err)
	}

	edges, err := c.store.Outgoing(ctx, owner, RelationshipType(rel))
	if err != nil {
		return nil, fmt.Errorf("load %s.%s: %w", m.Class, rel.Property, err)
	}

	links := make([]client.Link, 0, len(edges))
	for _, e := range edges {
		id, err := prop.FromNative(e.End.Props[tm.ID.Column], tm.ID.Kind)
		if err != nil {
			return nil, ormerr.Mapping(tm.Class, tm.ID.Name, err)
		}
		link := client.Link{TargetID: id}
		if rel.MapKeyJoinClass != "" {
			if link.Edge, err = c.mapper.RelationshipToEntity(e.Rel, m, rel); err != nil {
				return nil, err
			}
		}
		links = append(links, link)
	}
	return links, nil
}

// Persist implements client.Client.
func (c *Client) Persist(ctx context.Context, m *meta.EntityMetadata, entity any) error {
	node, err := c.mapper.FromEntity(ctx, entity, m, c.store, false)
	if err != nil {
		return err
	}
	return c.writeRelations(ctx, m, entity, node, false)
}

// Merge implements client.Client. Existing relationships of every
// relation are replaced.
func (c *Client) Merge(ctx context.Context, m *meta.EntityMetadata, entity any) error {
	id, err := meta.ID(entity, m)
	if err != nil {
		return err
	}
	existing, err := c.mapper.SearchNode(ctx, id, m, c.store)
	if err != nil {
		return err
	}
	node, err := c.mapper.FromEntity(ctx, entity, m, c.store, existing != nil)
	if err != nil {
		return err
	}
	return c.writeRelations(ctx, m, entity, node, true)
}

func (c *Client) writeRelations(ctx context.Context, m *meta.EntityMetadata, entity any, node *Node, replace bool) error {
	for _, r := range m.Relations {
		relType := RelationshipType(r)
		if replace {
			if err := c.store.DeleteOutgoing(ctx, node, relType); err != nil {
				return fmt.Errorf("clear %s.%s: %w", m.Class, r.Property, err)
			}
		}

		v, err := m.Accessor.Get(entity, r.Field)
		if err != nil {
			return c.mapper.mappingError(m.Class, r.Property, err)
		}
		items := meta.Elements(v)
		if !r.Collection && v != nil {
			items = []any{v}
		}

		tm, err := c.catalog.Entity(r.Target)
		if err != nil {
			return ormerr.Mapping(m.Class, r.Property, err)
		}
		for _, item := range items {
			if r.MapKeyJoinClass != "" {
				err = c.writeEdge(ctx, m, tm, r, item, node)
			} else {
				err = c.writeTarget(ctx, tm, item, node, relType)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// targetNode writes the target entity's node, creating it when new.
func (c *Client) targetNode(ctx context.Context, tm *meta.EntityMetadata, target any) (*Node, error) {
	id, err := meta.ID(target, tm)
	if err != nil {
		return nil, err
	}
	existing, err := c.mapper.SearchNode(ctx, id, tm, c.store)
	if err != nil {
		return nil, err
	}
	return c.mapper.FromEntity(ctx, target, tm, c.store, existing != nil)
}

func (c *Client) writeTarget(ctx context.Context, tm *meta.EntityMetadata, target any, start *Node, relType string) error {
	end, err := c.targetNode(ctx, tm, target)
	if err != nil {
		return err
	}
	if _, err := c.store.Relate(ctx, start, end, relType); err != nil {
		return fmt.Errorf("relate %s: %w", relType, err)
	}
	return nil
}

// writeEdge stores a relationship entity: its target endpoint becomes the
// end node and its remaining attributes the relationship properties.
func (c *Client) writeEdge(ctx context.Context, m, tm *meta.EntityMetadata, r *meta.Relation, relEntity any, start *Node) error {
	rm, err := c.catalog.Entity(r.MapKeyJoinClass)
	if err != nil {
		return ormerr.Mapping(m.Class, r.Property, err)
	}
	_, targetAttr := rm.Endpoints(m, tm)
	if targetAttr == nil {
		return c.mapper.mappingError(rm.Class, r.Property, fmt.Errorf("no attribute of type %s", tm.Class))
	}
	target, err := rm.Accessor.Get(relEntity, targetAttr.Field)
	if err != nil {
		return c.mapper.mappingError(rm.Class, targetAttr.Path(), err)
	}
	if target == nil {
		return c.mapper.mappingError(rm.Class, targetAttr.Path(), fmt.Errorf("relationship entity has no target"))
	}

	end, err := c.targetNode(ctx, tm, target)
	if err != nil {
		return err
	}
	rel, err := c.mapper.GetOrCreateRelationship(ctx, relEntity, rm, start, end, RelationshipType(r), c.store)
	if err != nil {
		return err
	}
	props, err := c.mapper.RelationshipProperties(m, tm, rm, relEntity)
	if err != nil {
		return err
	}
	for k, v := range props {
		rel.SetProperty(k, v)
	}
	if err := c.store.SaveRelationship(ctx, rel); err != nil {
		return fmt.Errorf("save %s relationship: %w", rm.Class, err)
	}
	return nil
}

// Remove implements client.Client. Removing a missing entity is a no-op.
func (c *Client) Remove(ctx context.Context, m *meta.EntityMetadata, entity any) error {
	id, err := meta.ID(entity, m)
	if err != nil {
		return err
	}
	node, err := c.mapper.SearchNode(ctx, id, m, c.store)
	if err != nil || node == nil {
		return err
	}
	if err := c.store.DeleteNode(ctx, node); err != nil {
		return fmt.Errorf("remove %s %v: %w", m.Class, id, err)
	}
	c.logger.Debug("removed node", zap.String("entity", m.Class), zap.String("id", prop.String(id)))
	return nil
}

// IndexManager implements client.Client.
func (c *Client) IndexManager() client.IndexManager {
	return nil
}

// Capabilities implements client.Client.
func (c *Client) Capabilities() client.Capabilities {
	return client.Capabilities{NativeFilter: true}
}
