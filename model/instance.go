package model

import (
	"errors"
	"sort"

	"github.com/jacentio/espalier/validate"
)

// Record is a plain attribute map.
type Record = map[string]any

// link holds the value of a relation field.
type link struct {
	one  *Instance
	many []*Instance
	// touched is set once the relation was assigned. Lazily created defaults
	// leave it unset so they are never written as linked records.
	touched bool
}

// Instance is one entity value. Every declared field, alias and relation is
// reached through Get and Set; invalid instances are legal and only fail when
// validated.
type Instance struct {
	desc     *Descriptor
	attrs    map[string]any
	links    map[string]*link
	backRefs map[string]string
	err      error
}

// New creates an empty instance of d.
func New(d *Descriptor) *Instance {
	return &Instance{
		desc:  d,
		attrs: make(map[string]any),
		links: make(map[string]*link),
	}
}

// NewFrom creates an instance of d seeded from record. Assignment errors are
// joined and returned alongside the instance, which keeps every value that
// could be applied.
func NewFrom(d *Descriptor, record Record) (*Instance, error) {
	i := New(d)
	return i, i.SetAttributes(record)
}

// Restore creates an instance of d from a stored record. Values are kept as
// stored without rule coercion, so a record that no longer passes its rules
// still loads and only fails when validated. Nested relations are restored
// the same way. Relation values of an unusable shape are kept as plain values.
func Restore(d *Descriptor, record Record) *Instance {
	i := New(d)
	for k, v := range record {
		if v == nil {
			continue
		}
		name := d.Canonical(k)
		if rel, ok := d.relations[name]; ok && i.restoreRelation(rel, v) {
			continue
		}
		i.attrs[name] = v
	}
	return i
}

func (i *Instance) restoreRelation(rel Relation, value any) bool {
	if !rel.Many {
		r, ok := value.(Record)
		if !ok {
			return false
		}
		i.links[rel.Name] = &link{one: Restore(rel.Child, r), touched: true}
		return true
	}
	items, ok := value.([]any)
	if !ok {
		return false
	}
	children := make([]*Instance, 0, len(items))
	for _, item := range items {
		r, ok := item.(Record)
		if !ok {
			return false
		}
		children = append(children, Restore(rel.Child, r))
	}
	i.links[rel.Name] = &link{many: children, touched: true}
	return true
}

// Entity returns the instance's type descriptor.
func (i *Instance) Entity() *Descriptor { return i.desc }

// Get reads a field. Aliases read their canonical field. To-one relations
// return a *Instance, creating an empty child on first access; to-many
// relations return a []*Instance that is empty by default.
func (i *Instance) Get(name string) any {
	name = i.desc.Canonical(name)
	if rel, ok := i.desc.relations[name]; ok {
		l := i.link(name)
		if rel.Many {
			out := make([]*Instance, len(l.many))
			copy(out, l.many)
			return out
		}
		if l.one == nil {
			l.one = New(rel.Child)
		}
		return l.one
	}
	if v, ok := i.attrs[name]; ok {
		return v
	}
	if ref, ok := i.backRefs[name]; ok {
		return ref
	}
	return nil
}

// One returns a to-one relation value.
func (i *Instance) One(name string) (*Instance, error) {
	rel, ok := i.desc.relations[i.desc.Canonical(name)]
	if !ok || rel.Many {
		return nil, &TypeError{Entity: i.desc.name, Field: name, Value: (*Instance)(nil)}
	}
	return i.Get(name).(*Instance), nil
}

// Many returns the children of a to-many relation.
func (i *Instance) Many(name string) ([]*Instance, error) {
	rel, ok := i.desc.relations[i.desc.Canonical(name)]
	if !ok || !rel.Many {
		return nil, &TypeError{Entity: i.desc.name, Field: name, Value: []*Instance(nil)}
	}
	return i.Get(name).([]*Instance), nil
}

// Set writes a field. Aliases write their canonical field. A field with a
// validation rule only accepts values passing it (coerced); on failure the
// previous value is kept. Relation fields accept child instances or records
// (lists of them for to-many relations); anything else is a *TypeError.
// Assigning nil clears the field.
func (i *Instance) Set(name string, value any) error {
	name = i.desc.Canonical(name)
	if rel, ok := i.desc.relations[name]; ok {
		return i.setRelation(rel, value)
	}
	if value == nil {
		delete(i.attrs, name)
		return nil
	}
	if rule, ok := i.desc.rules[name]; ok {
		coerced, err := i.desc.engine.ValidateValue(rule.Optional(), value)
		if err != nil {
			return fieldError(i.desc.name, name, err)
		}
		value = coerced
	}
	i.attrs[name] = value
	return nil
}

// Add appends a child to a to-many relation.
func (i *Instance) Add(name string, child any) error {
	name = i.desc.Canonical(name)
	rel, ok := i.desc.relations[name]
	if !ok || !rel.Many {
		return &TypeError{Entity: i.desc.name, Field: name, Value: child}
	}
	c, err := i.toChild(rel, child)
	if err != nil {
		return err
	}
	l := i.link(name)
	l.many = append(l.many, c)
	l.touched = true
	return nil
}

// SetAttributes assigns every entry of record. Relation fields are applied
// before scalar fields, and canonical names before aliases, so the outcome
// never depends on map iteration order; an alias wins over its canonical name
// when both are present. All assignment errors are joined.
func (i *Instance) SetAttributes(record Record) error {
	var relations, scalars, aliases []string
	for k := range record {
		canonical := i.desc.Canonical(k)
		switch {
		case i.desc.relations[canonical].Child != nil:
			relations = append(relations, k)
		case i.desc.IsAlias(k):
			aliases = append(aliases, k)
		default:
			scalars = append(scalars, k)
		}
	}
	sort.Strings(relations)
	sort.Strings(scalars)
	sort.Slice(aliases, func(a, b int) bool {
		return i.desc.aliasIndex(aliases[a]) < i.desc.aliasIndex(aliases[b])
	})

	var errs []error
	assigned := make(map[string]bool, len(relations))
	for _, k := range relations {
		canonical := i.desc.Canonical(k)
		if assigned[canonical] {
			continue
		}
		if err := i.Set(k, record[k]); err != nil {
			errs = append(errs, err)
			continue
		}
		assigned[canonical] = true
	}
	for _, k := range scalars {
		if err := i.Set(k, record[k]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, k := range aliases {
		if err := i.Set(k, record[k]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset replaces all scalar and nested relation values with record. Linked
// relations are kept.
func (i *Instance) Reset(record Record) error {
	i.attrs = make(map[string]any, len(record))
	for _, rel := range i.desc.Relations() {
		if rel.Nested {
			delete(i.links, rel.Name)
		}
	}
	return i.SetAttributes(record)
}

// Attributes returns a copy of the instance's values: scalar fields, nested
// relations with content, and assigned linked relations.
func (i *Instance) Attributes() Record {
	out := make(Record, len(i.attrs))
	for k, v := range i.attrs {
		out[k] = v
	}
	for _, rel := range i.desc.Relations() {
		l, ok := i.links[rel.Name]
		if !ok || (!rel.Nested && !l.touched) {
			continue
		}
		if rel.Many {
			if len(l.many) == 0 {
				continue
			}
			list := make([]Record, len(l.many))
			for n, c := range l.many {
				list[n] = c.Attributes()
			}
			out[rel.Name] = list
			continue
		}
		if l.one == nil {
			continue
		}
		if attrs := l.one.Attributes(); len(attrs) > 0 {
			out[rel.Name] = attrs
		}
	}
	return out
}

// Touched reports whether a relation was ever assigned.
func (i *Instance) Touched(name string) bool {
	l, ok := i.links[i.desc.Canonical(name)]
	return ok && l.touched
}

// Linked returns the assigned children of a linked relation.
func (i *Instance) Linked(rel Relation) []*Instance {
	l, ok := i.links[rel.Name]
	if !ok || !l.touched {
		return nil
	}
	if rel.Many {
		out := make([]*Instance, len(l.many))
		copy(out, l.many)
		return out
	}
	if l.one == nil {
		return nil
	}
	return []*Instance{l.one}
}

// SetParentRef records the parent's tagged primary key under property. The
// value is readable through Get and never stored.
func (i *Instance) SetParentRef(property, key string) {
	if property == "" {
		return
	}
	if i.backRefs == nil {
		i.backRefs = make(map[string]string)
	}
	i.backRefs[property] = key
}

func (i *Instance) link(name string) *link {
	l, ok := i.links[name]
	if !ok {
		l = &link{}
		i.links[name] = l
	}
	return l
}

func (i *Instance) setRelation(rel Relation, value any) error {
	if value == nil {
		i.links[rel.Name] = &link{touched: true}
		return nil
	}

	if !rel.Many {
		c, err := i.toChild(rel, value)
		if err != nil {
			return err
		}
		i.links[rel.Name] = &link{one: c, touched: true}
		return nil
	}

	var items []any
	switch v := value.(type) {
	case []*Instance:
		for _, c := range v {
			items = append(items, c)
		}
	case []Record:
		for _, r := range v {
			items = append(items, r)
		}
	case []any:
		items = v
	default:
		return &TypeError{Entity: i.desc.name, Field: rel.Name, Value: value}
	}

	children := make([]*Instance, 0, len(items))
	for _, item := range items {
		c, err := i.toChild(rel, item)
		if err != nil {
			return err
		}
		children = append(children, c)
	}
	i.links[rel.Name] = &link{many: children, touched: true}
	return nil
}

func (i *Instance) toChild(rel Relation, value any) (*Instance, error) {
	switch v := value.(type) {
	case *Instance:
		if v == nil || !v.desc.IsA(rel.Child.name) {
			return nil, &TypeError{Entity: i.desc.name, Field: rel.Name, Value: value}
		}
		return v, nil
	case Record:
		return NewFrom(rel.Child, v)
	default:
		return nil, &TypeError{Entity: i.desc.name, Field: rel.Name, Value: value}
	}
}

func (d *Descriptor) aliasIndex(alias string) int {
	for n, a := range d.aliasOrder {
		if a == alias {
			return n
		}
	}
	return len(d.aliasOrder)
}

// fieldError re-roots a single-value validation error at field.
func fieldError(entity, field string, err error) error {
	var verr *validate.Error
	if !errors.As(err, &verr) {
		return err
	}
	issues := make([]validate.Issue, len(verr.Issues))
	for n, issue := range verr.Issues {
		issue.Path = joinPath(field, issue.Path)
		issues[n] = issue
	}
	return &ValidationError{Entity: entity, Err: &validate.Error{Issues: issues}}
}

func joinPath(base, path string) string {
	switch {
	case path == "":
		return base
	case path[0] == '[':
		return base + path
	default:
		return base + "." + path
	}
}
