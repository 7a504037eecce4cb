package store

import "github.com/jacentio/espalier/model"

// Relationship is a linked relation as seen by the store: child records of
// ChildType carry the parent's tagged primary key in ForeignKey.
type Relationship struct {
	// ParentType is the parent entity type (e.g., "User").
	ParentType string

	// ChildType is the child entity type (e.g., "Post").
	ChildType string

	// Field is the relation field on the parent (e.g., "posts").
	Field string

	// Many is set for to-many relations.
	Many bool

	// ForeignKey is the child attribute referencing the parent (e.g., "userId").
	ForeignKey string

	// IndexName is the index resolving ForeignKey, if any.
	IndexName string

	// ParentProperty is the back-reference set on hydrated children.
	ParentProperty string
}

// Registry holds the linked relations of every registered type.
type Registry struct {
	relationships []Relationship
	byParent      map[string][]Relationship
	seen          map[string]bool
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relationship{},
		byParent:      make(map[string][]Relationship),
		seen:          make(map[string]bool),
	}
}

// Register adds a relationship to the registry.
func (r *Registry) Register(rel Relationship) {
	r.relationships = append(r.relationships, rel)
	r.byParent[rel.ParentType] = append(r.byParent[rel.ParentType], rel)
}

// RegisterEntity adds the linked relations of d and, recursively, of its
// relation children. Each type is registered once.
func (r *Registry) RegisterEntity(d *model.Descriptor) {
	if r.seen[d.Name()] {
		return
	}
	r.seen[d.Name()] = true
	for _, rel := range d.Relations() {
		if !rel.Nested {
			r.Register(Relationship{
				ParentType:     d.Name(),
				ChildType:      rel.Child.Name(),
				Field:          rel.Name,
				Many:           rel.Many,
				ForeignKey:     rel.ForeignKey,
				IndexName:      rel.IndexName,
				ParentProperty: rel.ParentProperty,
			})
		}
		r.RegisterEntity(rel.Child)
	}
}

// ChildrenOf returns all child relationships for a given parent type.
func (r *Registry) ChildrenOf(parentType string) []Relationship {
	return r.byParent[parentType]
}

// ViaIndex returns the child relationships of parentType resolved through
// index. An empty index matches nothing.
func (r *Registry) ViaIndex(parentType, index string) []Relationship {
	if index == "" {
		return nil
	}
	var out []Relationship
	for _, rel := range r.ChildrenOf(parentType) {
		if rel.IndexName == index && rel.ForeignKey != "" {
			out = append(out, rel)
		}
	}
	return out
}

// AllRelationships returns all registered relationships.
func (r *Registry) AllRelationships() []Relationship {
	return r.relationships
}

// HasChildren returns true if the parent type has any registered child relationships.
func (r *Registry) HasChildren(parentType string) bool {
	return len(r.byParent[parentType]) > 0
}
