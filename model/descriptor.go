package model

import (
	"github.com/jacentio/espalier/validate"
)

// Role is the part a declared field plays in storage.
type Role int

const (
	RolePlain Role = iota
	RolePrimaryKey
	RoleSecondaryKey
	RoleCreatedAt
	RoleUpdatedAt
)

// DefaultDelimiter joins composite key sources when none is declared.
const DefaultDelimiter = "#"

// RelationOptions configures a relation declaration.
type RelationOptions struct {
	// Required fails validation when the relation has no value.
	Required bool

	// Nested stores the child inline in the parent's record. When false the
	// child is an independent record linked back through ForeignKey.
	Nested bool

	// ForeignKey is the child attribute that receives the parent's tagged
	// primary key on write.
	ForeignKey string

	// IndexName is the index that resolves ForeignKey, enabling queries that
	// return a parent together with its linked children.
	IndexName string

	// ParentProperty is a read-only pseudo-field on the child that reports the
	// parent's tagged primary key.
	ParentProperty string
}

// Relation is a declared sub-entity field.
type Relation struct {
	Name  string
	Child *Descriptor
	Many  bool
	RelationOptions
}

// Composite is a field computed by joining other fields.
type Composite struct {
	Name      string
	Sources   []string
	Delimiter string
}

// Descriptor is the immutable field registry of one entity type. It is built
// once with [Define] and passed explicitly wherever instances need it.
type Descriptor struct {
	name      string
	ancestors []string

	fields []string
	roles  map[string]Role

	aliases    map[string]string
	aliasOrder []string

	composites     map[string]Composite
	compositeOrder []string

	relations     map[string]Relation
	relationOrder []string

	rules      map[string]validate.Rule
	objectRule *validate.Rule

	primaryKey   string
	secondaryKey string
	createdAtKey string
	updatedAtKey string

	engine validate.Engine
}

func newDescriptor(name string) *Descriptor {
	return &Descriptor{
		name:       name,
		roles:      make(map[string]Role),
		aliases:    make(map[string]string),
		composites: make(map[string]Composite),
		relations:  make(map[string]Relation),
		rules:      make(map[string]validate.Rule),
		engine:     validate.Default,
	}
}

// Name returns the entity type name.
func (d *Descriptor) Name() string { return d.name }

// IsA reports whether d is the named type or inherits from it.
func (d *Descriptor) IsA(name string) bool {
	if d.name == name {
		return true
	}
	for _, a := range d.ancestors {
		if a == name {
			return true
		}
	}
	return false
}

// Fields returns declared scalar fields (composites included) in declaration order.
func (d *Descriptor) Fields() []string {
	out := make([]string, len(d.fields))
	copy(out, d.fields)
	return out
}

// HasField reports whether name is a declared scalar field or relation.
func (d *Descriptor) HasField(name string) bool {
	if _, ok := d.roles[name]; ok {
		return true
	}
	_, ok := d.relations[name]
	return ok
}

// RoleOf returns the role of a declared scalar field.
func (d *Descriptor) RoleOf(name string) (Role, bool) {
	r, ok := d.roles[name]
	return r, ok
}

// IsKey reports whether name is the primary or secondary key.
func (d *Descriptor) IsKey(name string) bool {
	return name != "" && (name == d.primaryKey || name == d.secondaryKey)
}

// PrimaryKey returns the primary key field name, or "" when undeclared.
func (d *Descriptor) PrimaryKey() string { return d.primaryKey }

// SecondaryKey returns the secondary key field name, or "" when undeclared.
func (d *Descriptor) SecondaryKey() string { return d.secondaryKey }

// CreatedAtKey returns the creation timestamp field, or "".
func (d *Descriptor) CreatedAtKey() string { return d.createdAtKey }

// UpdatedAtKey returns the update timestamp field, or "".
func (d *Descriptor) UpdatedAtKey() string { return d.updatedAtKey }

// Canonical resolves an alias to its canonical field. Other names are returned as-is.
func (d *Descriptor) Canonical(name string) string {
	if c, ok := d.aliases[name]; ok {
		return c
	}
	return name
}

// IsAlias reports whether name is a declared alias.
func (d *Descriptor) IsAlias(name string) bool {
	_, ok := d.aliases[name]
	return ok
}

// AliasesOf returns the aliases of a canonical field in registration order.
func (d *Descriptor) AliasesOf(canonical string) []string {
	var out []string
	for _, a := range d.aliasOrder {
		if d.aliases[a] == canonical {
			out = append(out, a)
		}
	}
	return out
}

// CompositeSourcesOf returns the source fields of a composite field.
func (d *Descriptor) CompositeSourcesOf(name string) ([]string, bool) {
	c, ok := d.composites[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(c.Sources))
	copy(out, c.Sources)
	return out, true
}

// Composites returns composite fields in evaluation order: every composite
// comes after the composites it depends on.
func (d *Descriptor) Composites() []Composite {
	out := make([]Composite, len(d.compositeOrder))
	for i, name := range d.compositeOrder {
		out[i] = d.composites[name]
	}
	return out
}

// Relation returns the relation declared under name.
func (d *Descriptor) Relation(name string) (Relation, bool) {
	r, ok := d.relations[name]
	return r, ok
}

// Relations returns relations in declaration order.
func (d *Descriptor) Relations() []Relation {
	out := make([]Relation, len(d.relationOrder))
	for i, name := range d.relationOrder {
		out[i] = d.relations[name]
	}
	return out
}

// LinkedRelations returns relations stored as independent records.
func (d *Descriptor) LinkedRelations() []Relation {
	var out []Relation
	for _, name := range d.relationOrder {
		if rel := d.relations[name]; !rel.Nested {
			out = append(out, rel)
		}
	}
	return out
}

// ValidationOf returns the field-level rule of name. An empty name returns the
// object-level rule.
func (d *Descriptor) ValidationOf(name string) (validate.Rule, bool) {
	if name == "" {
		if d.objectRule == nil {
			return validate.Rule{}, false
		}
		return *d.objectRule, true
	}
	r, ok := d.rules[name]
	return r, ok
}

// Engine returns the validation engine bound to the type.
func (d *Descriptor) Engine() validate.Engine { return d.engine }
