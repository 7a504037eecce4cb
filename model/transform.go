package model

import (
	"strings"

	"github.com/spf13/cast"
)

// Transform maps a raw attribute map to the storable record of the type:
//
//   - undeclared keys and nil values are dropped
//   - aliases are written under their canonical name, winning over a canonical
//     key present in the same record
//   - nested relations are replaced by the child's transformed record and
//     omitted when that is empty; linked relations are removed
//   - composites are computed in dependency order, and omitted when any
//     source is missing or blank
//
// Transform is pure and idempotent: Transform(Transform(r)) equals Transform(r).
func (d *Descriptor) Transform(record Record) Record {
	out := make(Record, len(record))
	for k, v := range record {
		if v == nil || d.IsAlias(k) || !d.HasField(k) {
			continue
		}
		out[k] = v
	}
	for _, a := range d.aliasOrder {
		if v, ok := record[a]; ok && v != nil {
			out[d.aliases[a]] = v
		}
	}

	for _, name := range d.relationOrder {
		v, ok := out[name]
		if !ok {
			continue
		}
		rel := d.relations[name]
		if !rel.Nested {
			delete(out, name)
			continue
		}
		if folded, keep := foldNested(rel, v); keep {
			out[name] = folded
		} else {
			delete(out, name)
		}
	}

	d.computeComposites(out)
	return out
}

// Transform returns the storable record of the instance. Linked relations are
// never part of it.
func (i *Instance) Transform() Record {
	return i.desc.Transform(i.view())
}

// view is the instance's attribute map with nested relation values as
// instances. Linked relations are left out.
func (i *Instance) view() Record {
	out := make(Record, len(i.attrs)+len(i.links))
	for k, v := range i.attrs {
		out[k] = v
	}
	for _, rel := range i.desc.Relations() {
		l, ok := i.links[rel.Name]
		if !ok || !rel.Nested {
			continue
		}
		switch {
		case rel.Many && len(l.many) > 0:
			out[rel.Name] = l.many
		case !rel.Many && l.one != nil:
			out[rel.Name] = l.one
		}
	}
	return out
}

func foldNested(rel Relation, v any) (any, bool) {
	if !rel.Many {
		rec, ok := foldChild(rel.Child, v)
		return rec, ok
	}

	var items []any
	switch list := v.(type) {
	case []*Instance:
		for _, c := range list {
			items = append(items, c)
		}
	case []Record:
		for _, r := range list {
			items = append(items, r)
		}
	case []any:
		items = list
	default:
		// Left for validation to report.
		return v, true
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		if rec, ok := foldChild(rel.Child, item); ok {
			out = append(out, rec)
		}
	}
	return out, len(out) > 0
}

func foldChild(child *Descriptor, v any) (any, bool) {
	var rec Record
	switch c := v.(type) {
	case *Instance:
		if c == nil {
			return nil, false
		}
		rec = c.Transform()
	case Record:
		rec = child.Transform(c)
	default:
		return v, true
	}
	return rec, len(rec) > 0
}

func (d *Descriptor) computeComposites(out Record) {
	for _, name := range d.compositeOrder {
		c := d.composites[name]
		parts := make([]string, 0, len(c.Sources))
		for _, src := range c.Sources {
			v, ok := out[d.Canonical(src)]
			if !ok || v == nil {
				break
			}
			s := cast.ToString(v)
			if s == "" {
				break
			}
			parts = append(parts, s)
		}
		if len(parts) != len(c.Sources) {
			delete(out, name)
			continue
		}
		out[name] = strings.Join(parts, c.Delimiter)
	}
}
