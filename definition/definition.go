// Package definition loads entity types from YAML documents.
//
// A document lists entity types; relations and Extends refer to other types
// of the same document by name, in any order:
//
//	entities:
//	  - name: Address
//	    fields:
//	      - {name: street, type: string, required: true}
//	  - name: User
//	    primaryKey: id
//	    secondaryKey: sk
//	    createdAt: createdAt
//	    updatedAt: updatedAt
//	    fields:
//	      - {name: email, type: string, format: email, required: true}
//	      - {name: age, type: int, tag: "gte=0"}
//	    aliases: {mail: email}
//	    composites:
//	      - {name: gsi1pk, sources: [org, team], delimiter: "#"}
//	    relations:
//	      - {name: address, entity: Address, nested: true}
//	      - {name: posts, entity: Post, many: true, foreignKey: userId, indexName: byUser}
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jacentio/espalier/model"
	"github.com/jacentio/espalier/validate"
)

// ErrInvalid is returned for documents that do not describe a consistent set
// of entity types.
var ErrInvalid = errors.New("espalier: invalid definition")

// Document is the YAML root.
type Document struct {
	Entities []Entity `yaml:"entities"`
}

// Entity describes one entity type.
type Entity struct {
	Name         string            `yaml:"name"`
	Extends      string            `yaml:"extends,omitempty"`
	PrimaryKey   string            `yaml:"primaryKey,omitempty"`
	SecondaryKey string            `yaml:"secondaryKey,omitempty"`
	CreatedAt    string            `yaml:"createdAt,omitempty"`
	UpdatedAt    string            `yaml:"updatedAt,omitempty"`
	Fields       []Field           `yaml:"fields,omitempty"`
	Aliases      map[string]string `yaml:"aliases,omitempty"`
	Composites   []Composite       `yaml:"composites,omitempty"`
	Relations    []Relation        `yaml:"relations,omitempty"`

	// Unknown is the policy for undeclared keys: allow (default), strip or reject.
	Unknown string `yaml:"unknown,omitempty"`
}

// Field describes a plain field and its optional validation rule.
type Field struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type,omitempty"`
	List     bool   `yaml:"list,omitempty"`
	Required bool   `yaml:"required,omitempty"`
	Tag      string `yaml:"tag,omitempty"`
	Format   string `yaml:"format,omitempty"`
}

// Composite describes a computed key field.
type Composite struct {
	Name      string   `yaml:"name"`
	Sources   []string `yaml:"sources"`
	Delimiter string   `yaml:"delimiter,omitempty"`
}

// Relation describes a sub-entity field.
type Relation struct {
	Name           string `yaml:"name"`
	Entity         string `yaml:"entity"`
	Many           bool   `yaml:"many,omitempty"`
	Nested         bool   `yaml:"nested,omitempty"`
	Required       bool   `yaml:"required,omitempty"`
	ForeignKey     string `yaml:"foreignKey,omitempty"`
	IndexName      string `yaml:"indexName,omitempty"`
	ParentProperty string `yaml:"parentProperty,omitempty"`
}

// Set is the result of building a document.
type Set struct {
	types   map[string]*model.Descriptor
	order   []string
	catalog *model.Catalog
}

// Lookup returns the type named name.
func (s *Set) Lookup(name string) (*model.Descriptor, bool) {
	d, ok := s.types[name]
	return d, ok
}

// Types returns every type in build order: referenced types before the
// types referring to them.
func (s *Set) Types() []*model.Descriptor {
	out := make([]*model.Descriptor, len(s.order))
	for i, name := range s.order {
		out[i] = s.types[name]
	}
	return out
}

// Catalog returns a catalog holding every type of the set.
func (s *Set) Catalog() *model.Catalog {
	return s.catalog
}

// LoadFile reads and builds the document at path.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(bytes.NewReader(data))
}

// Load decodes and builds one document. Unknown keys are rejected.
func Load(r io.Reader) (*Set, error) {
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return doc.Build()
}

// Parse decodes one document without building it.
func Parse(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &doc, nil
}

// Build creates the descriptors of every entity of the document.
func (d *Document) Build() (*Set, error) {
	byName := make(map[string]*Entity, len(d.Entities))
	for i := range d.Entities {
		e := &d.Entities[i]
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entity %d has no name", ErrInvalid, i)
		}
		if _, dup := byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: entity %q is defined twice", ErrInvalid, e.Name)
		}
		byName[e.Name] = e
	}

	order, err := buildOrder(d.Entities, byName)
	if err != nil {
		return nil, err
	}

	set := &Set{types: make(map[string]*model.Descriptor, len(order)), order: order}
	for _, name := range order {
		desc, err := byName[name].build(set.types)
		if err != nil {
			return nil, err
		}
		set.types[name] = desc
	}

	catalog, err := model.NewCatalog(set.Types()...)
	if err != nil {
		return nil, err
	}
	set.catalog = catalog
	return set, nil
}

// dependencies returns the names e refers to.
func (e *Entity) dependencies() []string {
	var deps []string
	if e.Extends != "" {
		deps = append(deps, e.Extends)
	}
	for _, r := range e.Relations {
		deps = append(deps, r.Entity)
	}
	return deps
}

// buildOrder sorts entities so every type follows the types it refers to.
// Ties keep document order.
func buildOrder(entities []Entity, byName map[string]*Entity) ([]string, error) {
	indegree := make(map[string]int, len(entities))
	dependents := make(map[string][]string)
	for _, e := range entities {
		seen := make(map[string]bool)
		for _, dep := range e.dependencies() {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("%w: %s refers to undefined entity %q", ErrInvalid, e.Name, dep)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[e.Name]++
			dependents[dep] = append(dependents[dep], e.Name)
		}
	}

	position := make(map[string]int, len(entities))
	var ready []string
	for i, e := range entities {
		position[e.Name] = i
		if indegree[e.Name] == 0 {
			ready = append(ready, e.Name)
		}
	}

	order := make([]string, 0, len(entities))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.SliceStable(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
	}

	if len(order) != len(entities) {
		var cyclic []string
		for _, e := range entities {
			if indegree[e.Name] > 0 {
				cyclic = append(cyclic, e.Name)
			}
		}
		return nil, fmt.Errorf("%w: circular references between %v", ErrInvalid, cyclic)
	}
	return order, nil
}

func (e *Entity) build(built map[string]*model.Descriptor) (*model.Descriptor, error) {
	b := model.Define(e.Name)
	if e.Extends != "" {
		b = b.Extends(built[e.Extends])
	}
	if e.PrimaryKey != "" {
		b = b.PrimaryKey(e.PrimaryKey)
	}
	if e.SecondaryKey != "" {
		b = b.SecondaryKey(e.SecondaryKey)
	}
	if e.CreatedAt != "" {
		b = b.CreatedAt(e.CreatedAt)
	}
	if e.UpdatedAt != "" {
		b = b.UpdatedAt(e.UpdatedAt)
	}

	for _, f := range e.Fields {
		rule, ok, err := f.rule()
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalid, e.Name, f.Name, err)
		}
		if ok {
			b = b.Field(f.Name, rule)
		} else {
			b = b.Field(f.Name)
		}
	}

	aliases := make([]string, 0, len(e.Aliases))
	for alias := range e.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		b = b.Alias(alias, e.Aliases[alias])
	}

	for _, c := range e.Composites {
		b = b.Composite(c.Name, c.Sources, c.Delimiter)
	}

	for _, r := range e.Relations {
		opts := model.RelationOptions{
			Required:       r.Required,
			Nested:         r.Nested,
			ForeignKey:     r.ForeignKey,
			IndexName:      r.IndexName,
			ParentProperty: r.ParentProperty,
		}
		if r.Many {
			b = b.HasMany(r.Name, built[r.Entity], opts)
		} else {
			b = b.HasOne(r.Name, built[r.Entity], opts)
		}
	}

	if e.Unknown != "" {
		policy, err := unknownPolicy(e.Unknown)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, e.Name, err)
		}
		b = b.Validate("", validate.Object().Unknown(policy))
	}

	return b.Build()
}

// rule returns the validation rule of f, if it declares one.
func (f Field) rule() (validate.Rule, bool, error) {
	if f.Type == "" && !f.List && !f.Required && f.Tag == "" && f.Format == "" {
		return validate.Rule{}, false, nil
	}

	var r validate.Rule
	switch f.Type {
	case "", "any":
		r = validate.Any()
	case "string":
		r = validate.String()
	case "int", "integer":
		r = validate.Int()
	case "float", "number":
		r = validate.Float()
	case "bool", "boolean":
		r = validate.Bool()
	case "object":
		r = validate.Object()
	default:
		return validate.Rule{}, false, fmt.Errorf("unknown type %q", f.Type)
	}
	if f.Tag != "" {
		r = r.Tag(f.Tag)
	}
	if f.Format != "" {
		r = r.Format(f.Format)
	}
	if f.List {
		r = validate.Array(r)
	}
	if f.Required {
		r = r.Required()
	}
	return r, true, nil
}

func unknownPolicy(s string) (validate.UnknownPolicy, error) {
	switch s {
	case "allow":
		return validate.UnknownAllow, nil
	case "strip":
		return validate.UnknownStrip, nil
	case "reject":
		return validate.UnknownReject, nil
	default:
		return 0, fmt.Errorf("unknown policy %q", s)
	}
}
