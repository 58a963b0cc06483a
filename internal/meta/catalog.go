package meta

import (
	"errors"
	"fmt"
)

// ErrUnknownEntity is returned when a class is not registered in a catalog.
var ErrUnknownEntity = errors.New("unknown entity")

// Catalog resolves entity metadata. Implementations must be safe for
// concurrent reads; strata never mutates a catalog.
type Catalog interface {
	// Entity returns the metadata for a fully qualified or simple class name.
	Entity(class string) (*EntityMetadata, error)

	// Entities returns the metadata of every class in a persistence unit,
	// in registration order. An empty unit returns every class.
	Entities(unit string) []*EntityMetadata
}

// StaticCatalog is an immutable Catalog built once from a fixed entity list.
type StaticCatalog struct {
	byClass  map[string]*EntityMetadata
	bySimple map[string][]*EntityMetadata
	order    []*EntityMetadata
}

// NewCatalog validates the entities and builds a catalog.
// Relation targets must be registered in the same catalog.
func NewCatalog(entities ...*EntityMetadata) (*StaticCatalog, error) {
	c := &StaticCatalog{
		byClass:  make(map[string]*EntityMetadata, len(entities)),
		bySimple: make(map[string][]*EntityMetadata, len(entities)),
	}

	for _, m := range entities {
		if m == nil {
			return nil, errors.New("catalog: nil entity metadata")
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if _, dup := c.byClass[m.Class]; dup {
			return nil, fmt.Errorf("catalog: duplicate entity class %q", m.Class)
		}
		c.byClass[m.Class] = m
		c.bySimple[m.SimpleName()] = append(c.bySimple[m.SimpleName()], m)
		c.order = append(c.order, m)
	}

	for _, m := range entities {
		for _, r := range m.Relations {
			if _, ok := c.byClass[r.Target]; !ok {
				return nil, fmt.Errorf("catalog: %s.%s targets unregistered class %q", m.Class, r.Property, r.Target)
			}
			if r.MapKeyJoinClass != "" {
				if _, ok := c.byClass[r.MapKeyJoinClass]; !ok {
					return nil, fmt.Errorf("catalog: %s.%s relationship class %q is unregistered", m.Class, r.Property, r.MapKeyJoinClass)
				}
			}
		}
	}

	return c, nil
}

// Entity implements Catalog. Simple names resolve only when unambiguous.
func (c *StaticCatalog) Entity(class string) (*EntityMetadata, error) {
	if m, ok := c.byClass[class]; ok {
		return m, nil
	}
	switch matches := c.bySimple[class]; len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, class)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %s is ambiguous (%d classes share the name)", ErrUnknownEntity, class, len(matches))
	}
}

// Entities implements Catalog.
func (c *StaticCatalog) Entities(unit string) []*EntityMetadata {
	out := make([]*EntityMetadata, 0, len(c.order))
	for _, m := range c.order {
		if unit == "" || m.PersistenceUnit == unit {
			out = append(out, m)
		}
	}
	return out
}
