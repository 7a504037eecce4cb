package model

import (
	"github.com/jacentio/espalier/validate"
)

// Schema composes the type's full validation rule: the object-level rule,
// every field rule, and one entry per relation built from the child's own
// schema. To-many relations validate as arrays; required relations must be
// present and, for to-many, non-empty.
func (d *Descriptor) Schema() validate.Rule {
	schema := validate.Object()
	if d.objectRule != nil {
		schema = schema.Merge(*d.objectRule)
	}
	for _, name := range d.fields {
		if rule, ok := d.rules[name]; ok {
			schema = schema.Field(name, rule)
		}
	}
	for _, name := range d.relationOrder {
		rel := d.relations[name]
		schema = schema.Field(name, relationSchema(rel))
	}
	return schema
}

func relationSchema(rel Relation) validate.Rule {
	s := rel.Child.Schema()
	if rel.Many {
		s = validate.Array(s)
		if rel.Required {
			s = s.MinItems(1)
		}
	}
	if rel.Required {
		s = s.Required()
	}
	return s
}

// Validate transforms record and checks it against the composed schema,
// including the children record carries for linked relations. A required
// linked relation without value fails with a *RequiredFieldError before the
// schema runs, as for instances. It returns the coerced storable record, or a
// *ValidationError.
func (d *Descriptor) Validate(record Record) (Record, error) {
	view, err := d.validationView(record)
	if err != nil {
		return nil, err
	}
	out, err := d.engine.Validate(d.Schema(), view)
	if err != nil {
		return nil, wrapValidation(d.name, err)
	}
	for _, rel := range d.LinkedRelations() {
		delete(out, rel.Name)
	}
	return out, nil
}

// validationView is the transformed record with the linked relation values
// of record added back as their own views.
func (d *Descriptor) validationView(record Record) (Record, error) {
	view := d.Transform(record)
	for _, rel := range d.LinkedRelations() {
		children, err := d.linkedValues(rel, d.relationValue(record, rel.Name))
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			if rel.Required {
				return nil, &RequiredFieldError{Entity: d.name, Field: rel.Name}
			}
			continue
		}
		views := make([]any, 0, len(children))
		for _, c := range children {
			v, err := d.childView(rel, c)
			if err != nil {
				return nil, err
			}
			views = append(views, v)
		}
		if rel.Many {
			view[rel.Name] = views
		} else {
			view[rel.Name] = views[0]
		}
	}
	return view, nil
}

// relationValue returns the value of a relation in record. An alias wins
// over the relation's own name.
func (d *Descriptor) relationValue(record Record, name string) any {
	v := record[name]
	for _, a := range d.AliasesOf(name) {
		if av, ok := record[a]; ok && av != nil {
			v = av
		}
	}
	return v
}

func (d *Descriptor) linkedValues(rel Relation, value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}
	if !rel.Many {
		return []any{value}, nil
	}
	switch v := value.(type) {
	case []any:
		return v, nil
	case []Record:
		out := make([]any, len(v))
		for n, r := range v {
			out[n] = r
		}
		return out, nil
	case []*Instance:
		out := make([]any, len(v))
		for n, c := range v {
			out[n] = c
		}
		return out, nil
	default:
		return nil, &TypeError{Entity: d.name, Field: rel.Name, Value: value}
	}
}

func (d *Descriptor) childView(rel Relation, value any) (Record, error) {
	switch v := value.(type) {
	case *Instance:
		if v == nil || !v.desc.IsA(rel.Child.name) {
			return nil, &TypeError{Entity: d.name, Field: rel.Name, Value: value}
		}
		return v.validationView()
	case Record:
		return rel.Child.validationView(v)
	default:
		return nil, &TypeError{Entity: d.name, Field: rel.Name, Value: value}
	}
}

// Validate checks the instance, including the assigned children of linked
// relations. A required linked relation without value fails with a
// *RequiredFieldError before the schema runs. The result is kept for Err.
func (i *Instance) Validate() error {
	_, err := i.validated()
	i.err = err
	return err
}

// IsValid reports whether Validate succeeds.
func (i *Instance) IsValid() bool {
	return i.Validate() == nil
}

// Err returns the error of the last Validate call.
func (i *Instance) Err() error { return i.err }

// Storable validates the instance and returns its coerced storable record.
// Linked relations are validated but not part of the result.
func (i *Instance) Storable() (Record, error) {
	out, err := i.validated()
	i.err = err
	if err != nil {
		return nil, err
	}
	for _, rel := range i.desc.LinkedRelations() {
		delete(out, rel.Name)
	}
	return out, nil
}

func (i *Instance) validated() (Record, error) {
	view, err := i.validationView()
	if err != nil {
		return nil, err
	}
	out, err := i.desc.engine.Validate(i.desc.Schema(), view)
	if err != nil {
		return nil, wrapValidation(i.desc.name, err)
	}
	return out, nil
}

// validationView is the transformed record with linked children added back as
// their own views, so the composed schema covers them.
func (i *Instance) validationView() (Record, error) {
	rec := i.Transform()
	for _, rel := range i.desc.LinkedRelations() {
		children := i.Linked(rel)
		if len(children) == 0 {
			if rel.Required {
				return nil, &RequiredFieldError{Entity: i.desc.name, Field: rel.Name}
			}
			continue
		}
		views := make([]any, 0, len(children))
		for _, c := range children {
			v, err := c.validationView()
			if err != nil {
				return nil, err
			}
			views = append(views, v)
		}
		if rel.Many {
			rec[rel.Name] = views
		} else {
			rec[rel.Name] = views[0]
		}
	}
	return rec, nil
}
