package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
)

// Mapper converts between entities and graph records.
type Mapper struct {
	catalog meta.Catalog
	logger  *zap.Logger
}

// NewMapper creates a mapper resolving relation targets through catalog.
func NewMapper(catalog meta.Catalog, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{catalog: catalog, logger: logger}
}

// mappingError logs and returns a mapping failure.
func (mp *Mapper) mappingError(class, attribute string, cause error) error {
	err := ormerr.Mapping(class, attribute, cause)
	mp.logger.Error("graph mapping failed",
		zap.String("entity", class),
		zap.String("attribute", attribute),
		zap.Error(cause))
	return err
}

// idInit sets only the id property on a created record.
func idInit(key string) InitFunc {
	return func(rec Record, props map[string]any) {
		rec.SetProperty(key, props[key])
	}
}

// GetOrCreateNode returns the node keyed by the entity's id in the
// entity's index, creating it with only the id property set.
func (mp *Mapper) GetOrCreateNode(ctx context.Context, entity any, m *meta.EntityMetadata, store Store) (*Node, error) {
	id, err := meta.ID(entity, m)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, mp.mappingError(m.Class, m.ID.Name, fmt.Errorf("entity has no id"))
	}
	key := m.ID.Column
	return store.GetOrCreateNode(ctx, m.IndexName, key, prop.ToNative(id), idInit(key))
}

// GetOrCreateRelationship returns the relationship keyed by the
// relationship entity's id, creating it between start and end.
func (mp *Mapper) GetOrCreateRelationship(ctx context.Context, entity any, m *meta.EntityMetadata, start, end *Node, relType string, store Store) (*Relationship, error) {
	id, err := meta.ID(entity, m)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, mp.mappingError(m.Class, m.ID.Name, fmt.Errorf("relationship entity has no id"))
	}
	key := m.ID.Column
	return store.GetOrCreateRelationship(ctx, m.IndexName, key, prop.ToNative(id), start, end, relType, idInit(key))
}

// NodeProperties builds the property map of an entity: every non-nil
// singular attribute under its column name.
func (mp *Mapper) NodeProperties(entity any, m *meta.EntityMetadata) (map[string]any, error) {
	props := make(map[string]any)
	for _, a := range m.Singular() {
		v, err := m.Accessor.Get(entity, a.Field)
		if err != nil {
			return nil, mp.mappingError(m.Class, a.Path(), err)
		}
		if v != nil {
			props[a.Column] = prop.ToNative(v)
		}
	}
	return props, nil
}

// RelationshipProperties builds the property map of a relationship
// entity, leaving out attributes typed as either endpoint entity.
func (mp *Mapper) RelationshipProperties(owner, target, rm *meta.EntityMetadata, relEntity any) (map[string]any, error) {
	props := make(map[string]any)
	for _, a := range rm.Singular() {
		if a.IsEndpoint(owner, target) {
			continue
		}
		v, err := rm.Accessor.Get(relEntity, a.Field)
		if err != nil {
			return nil, mp.mappingError(rm.Class, a.Path(), err)
		}
		if v != nil {
			props[a.Column] = prop.ToNative(v)
		}
	}
	return props, nil
}

// PopulateProperties copies every non-nil singular attribute onto rec.
func (mp *Mapper) PopulateProperties(entity any, m *meta.EntityMetadata, rec Record) error {
	props, err := mp.NodeProperties(entity, m)
	if err != nil {
		return err
	}
	for k, v := range props {
		rec.SetProperty(k, v)
	}
	return nil
}

// FromEntity writes an entity's node. A new entity goes through the
// unique factory; an update looks the node up by id. Properties are then
// populated and saved.
func (mp *Mapper) FromEntity(ctx context.Context, entity any, m *meta.EntityMetadata, store Store, isUpdate bool) (*Node, error) {
	var node *Node
	var err error
	if !isUpdate {
		node, err = mp.GetOrCreateNode(ctx, entity, m, store)
	} else {
		var id any
		if id, err = meta.ID(entity, m); err == nil {
			node, err = mp.SearchNode(ctx, id, m, store)
		}
		if err == nil && node == nil {
			err = mp.mappingError(m.Class, m.ID.Name, fmt.Errorf("no node for id %v", id))
		}
	}
	if err != nil {
		return nil, err
	}

	if err := mp.PopulateProperties(entity, m, node); err != nil {
		return nil, err
	}
	if err := store.SaveNode(ctx, node); err != nil {
		return nil, fmt.Errorf("save %s node: %w", m.Class, err)
	}
	return node, nil
}

// ToEntity decodes a node into a new entity of m.
func (mp *Mapper) ToEntity(node *Node, m *meta.EntityMetadata) (any, error) {
	entity, err := m.NewEntity()
	if err != nil {
		return nil, mp.mappingError(m.Class, "", err)
	}
	if err := mp.decode(node.Props, m, entity, nil, nil); err != nil {
		return nil, err
	}
	return entity, nil
}

// RelationshipToEntity decodes a relationship into a new relationship
// entity of relation.MapKeyJoinClass. Endpoint-typed attributes stay unset.
func (mp *Mapper) RelationshipToEntity(rel *Relationship, owner *meta.EntityMetadata, relation *meta.Relation) (any, error) {
	rm, err := mp.catalog.Entity(relation.MapKeyJoinClass)
	if err != nil {
		return nil, mp.mappingError(owner.Class, relation.Property, err)
	}
	target, err := mp.catalog.Entity(relation.Target)
	if err != nil {
		return nil, mp.mappingError(owner.Class, relation.Property, err)
	}

	entity, err := rm.NewEntity()
	if err != nil {
		return nil, mp.mappingError(rm.Class, "", err)
	}
	if err := mp.decode(rel.Props, rm, entity, owner, target); err != nil {
		return nil, err
	}
	return entity, nil
}

func (mp *Mapper) decode(props map[string]any, m *meta.EntityMetadata, entity any, owner, target *meta.EntityMetadata) error {
	for _, a := range m.Singular() {
		if a.IsEndpoint(owner, target) {
			continue
		}
		raw, ok := props[a.Column]
		if !ok {
			continue
		}
		v, err := prop.FromNative(raw, a.Kind)
		if err != nil {
			return mp.mappingError(m.Class, a.Path(), err)
		}
		if err := m.Accessor.Set(entity, a.Field, v); err != nil {
			return mp.mappingError(m.Class, a.Path(), err)
		}
	}
	return nil
}

// SearchNode finds the node of m keyed by key, through the automatic
// index when the store has it enabled and the entity's index otherwise.
// A missing node is (nil, nil).
func (mp *Mapper) SearchNode(ctx context.Context, key any, m *meta.EntityMetadata, store Store) (*Node, error) {
	var hits Hits
	var err error
	if store.AutoIndexing(ctx) {
		hits, err = store.AutoLookup(ctx, m.ID.Column, prop.ToNative(key))
	} else {
		hits, err = store.Lookup(ctx, m.IndexName, m.ID.Column, prop.ToNative(key))
	}
	if err != nil {
		return nil, fmt.Errorf("search %s node: %w", m.Class, err)
	}
	defer hits.Close()

	if hits.Size() == 0 {
		return nil, nil
	}
	return hits.Single()
}
