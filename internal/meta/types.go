package meta

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/strata/internal/ormerr"
)

// Attribute describes one persistent attribute of an entity.
type Attribute struct {
	Name        string       `json:"name"`               // Name used in queries; embedded attributes are addressed as "<embedded>.<name>"
	Column      string       `json:"column"`             // Store column / native property name
	Kind        Kind         `json:"kind"`               // Value kind
	Field       string       `json:"field"`              // Accessor path (struct field path or record key)
	Type        reflect.Type `json:"-"`                  // Go type, nil for dynamic records
	Collection  bool         `json:"collection"`         // Multi-valued attribute
	Association bool         `json:"association"`        // References another entity
	Embedded    string       `json:"embedded,omitempty"` // Enclosing embedded attribute, empty when top-level
}

// Path returns the query path of the attribute.
func (a *Attribute) Path() string {
	if a.Embedded == "" {
		return a.Name
	}
	return a.Embedded + "." + a.Name
}

// Singular reports whether the attribute maps to a single native property.
func (a *Attribute) Singular() bool {
	return !a.Collection && !a.Association
}

// Relation describes a named reference from one entity to another.
type Relation struct {
	Property        string `json:"property"`                    // Attribute name on the owner
	Field           string `json:"field"`                       // Accessor path on the owner
	Target          string `json:"target"`                      // Target entity class
	JoinColumn      string `json:"join_column,omitempty"`       // Foreign-key column on the owner's table
	JoinTable       string `json:"join_table,omitempty"`        // Join table for many-to-many relations
	MapKeyJoinClass string `json:"map_key_join_class,omitempty"` // Relationship entity class for edge attributes
	Collection      bool   `json:"collection"`                  // Owner holds a slice of targets
}

// ViaJoinTable reports whether the relation is stored in a join table.
func (r *Relation) ViaJoinTable() bool {
	return r.JoinTable != ""
}

// EntityMetadata describes how one entity class is persisted.
// One EntityMetadata exists per class per persistence unit.
type EntityMetadata struct {
	Class                string           `json:"class"`       // Fully qualified class name, e.g. "example.Person"
	Table                string           `json:"table"`       // Column-store table
	IndexName            string           `json:"index_name"`  // Search/graph index name
	PersistenceUnit      string           `json:"unit"`        // Persistence unit (selects the client)
	ID                   *Attribute       `json:"id"`          // Identity attribute (also present in Attributes)
	Attributes           []*Attribute     `json:"attributes"`  // Ordered attribute list
	Relations            []*Relation      `json:"relations"`   // Ordered relation list
	RelationViaJoinTable bool             `json:"join_table"`  // Entity participates in a join-table relation
	Type                 reflect.Type     `json:"-"`           // Go type of the entity (pointer), nil for records
	New                  func() any       `json:"-"`           // Constructs an empty entity
	Accessor             PropertyAccessor `json:"-"`           // Reads and writes entity fields
}

// SimpleName returns the class name without its package qualifier.
func (m *EntityMetadata) SimpleName() string {
	if i := strings.LastIndex(m.Class, "."); i >= 0 {
		return m.Class[i+1:]
	}
	return m.Class
}

// Attribute looks up an attribute by query path, falling back to column name.
func (m *EntityMetadata) Attribute(name string) (*Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Path() == name {
			return a, true
		}
	}
	for _, a := range m.Attributes {
		if a.Column == name {
			return a, true
		}
	}
	return nil, false
}

// FieldName resolves a clause property (attribute path or column) to the
// attribute's query path.
func (m *EntityMetadata) FieldName(property string) (string, bool) {
	a, ok := m.Attribute(property)
	if !ok {
		return "", false
	}
	return a.Path(), true
}

// EnclosingEmbedded returns the embedded attribute enclosing property, or ""
// when the property is top-level.
func (m *EntityMetadata) EnclosingEmbedded(property string) string {
	a, ok := m.Attribute(property)
	if !ok {
		return ""
	}
	return a.Embedded
}

// Singular returns the singular, non-association, non-collection attributes
// in declaration order.
func (m *EntityMetadata) Singular() []*Attribute {
	out := make([]*Attribute, 0, len(m.Attributes))
	for _, a := range m.Attributes {
		if a.Singular() {
			out = append(out, a)
		}
	}
	return out
}

// Relation looks up a relation by property name.
func (m *EntityMetadata) Relation(property string) (*Relation, bool) {
	for _, r := range m.Relations {
		if r.Property == property {
			return r, true
		}
	}
	return nil, false
}

// RelationNames returns relation property names in declaration order.
func (m *EntityMetadata) RelationNames() []string {
	names := make([]string, len(m.Relations))
	for i, r := range m.Relations {
		names[i] = r.Property
	}
	return names
}

// HasRelations reports whether any relation must be resolved on load.
func (m *EntityMetadata) HasRelations() bool {
	return m.RelationViaJoinTable || len(m.Relations) > 0
}

// NewEntity constructs an empty entity.
func (m *EntityMetadata) NewEntity() (any, error) {
	if m.New == nil {
		return nil, ormerr.Mapping(m.Class, "", errors.New("no constructor registered"))
	}
	e := m.New()
	if e == nil {
		return nil, ormerr.Mapping(m.Class, "", errors.New("constructor returned nil"))
	}
	return e, nil
}

// Validate checks the structural invariants of the metadata.
func (m *EntityMetadata) Validate() error {
	if m.Class == "" {
		return errors.New("entity class is required")
	}
	if m.ID == nil {
		return fmt.Errorf("%s: exactly one id attribute is required", m.Class)
	}
	if m.Accessor == nil {
		return fmt.Errorf("%s: accessor is required", m.Class)
	}

	seen := make(map[string]bool, len(m.Attributes))
	idFound := false
	for _, a := range m.Attributes {
		if a.Name == "" || a.Column == "" {
			return fmt.Errorf("%s: attribute name and column are required", m.Class)
		}
		if seen[a.Path()] {
			return fmt.Errorf("%s: duplicate attribute %q", m.Class, a.Path())
		}
		seen[a.Path()] = true
		if a == m.ID {
			idFound = true
		}
	}
	if !idFound {
		return fmt.Errorf("%s: id attribute %q is not in the attribute list", m.Class, m.ID.Name)
	}

	for _, r := range m.Relations {
		if r.Property == "" || r.Target == "" {
			return fmt.Errorf("%s: relation property and target are required", m.Class)
		}
	}
	return nil
}

// Endpoints returns the attributes of a relationship entity whose Go type
// is the owner's or the target's entity type. Either result may be nil.
// Dynamic records have no Go type and never match.
func (m *EntityMetadata) Endpoints(owner, target *EntityMetadata) (ownerAttr, targetAttr *Attribute) {
	for _, a := range m.Attributes {
		if a.Type == nil {
			continue
		}
		switch {
		case owner != nil && owner.Type != nil && a.Type == owner.Type && ownerAttr == nil:
			ownerAttr = a
		case target != nil && target.Type != nil && a.Type == target.Type && targetAttr == nil:
			targetAttr = a
		}
	}
	return ownerAttr, targetAttr
}

// IsEndpoint reports whether a has the Go type of either entity.
func (a *Attribute) IsEndpoint(owner, target *EntityMetadata) bool {
	if a.Type == nil {
		return false
	}
	return (owner != nil && owner.Type != nil && a.Type == owner.Type) ||
		(target != nil && target.Type != nil && a.Type == target.Type)
}
