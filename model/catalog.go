package model

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// EntityAttribute is the stored attribute naming a record's entity type.
const EntityAttribute = "_entityName"

// Catalog maps entity names to descriptors so stored records can be turned
// back into instances of the right type. It is safe for concurrent use.
type Catalog struct {
	types *xsync.MapOf[string, *Descriptor]
}

// NewCatalog creates a catalog holding types and their relation children.
func NewCatalog(types ...*Descriptor) (*Catalog, error) {
	c := &Catalog{types: xsync.NewMapOf[string, *Descriptor]()}
	for _, d := range types {
		if err := c.Register(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds d and, recursively, the child types of its relations.
// Registering the same descriptor twice is a no-op; a different descriptor
// under a taken name is a definition error.
func (c *Catalog) Register(d *Descriptor) error {
	if d == nil {
		return &DefinitionError{Reason: "cannot register a nil type"}
	}
	actual, loaded := c.types.LoadOrStore(d.name, d)
	if loaded {
		if actual != d {
			return &DefinitionError{Entity: d.name, Reason: "another type is registered under this name"}
		}
		return nil
	}
	for _, rel := range d.Relations() {
		if err := c.Register(rel.Child); err != nil {
			return fmt.Errorf("relation %s.%s: %w", d.name, rel.Name, err)
		}
	}
	return nil
}

// Lookup returns the descriptor registered under name.
func (c *Catalog) Lookup(name string) (*Descriptor, bool) {
	return c.types.Load(name)
}

// Names returns registered entity names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, c.types.Size())
	c.types.Range(func(name string, _ *Descriptor) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Resolve returns the descriptor named by record's EntityAttribute.
func (c *Catalog) Resolve(record Record) (*Descriptor, error) {
	name, _ := record[EntityAttribute].(string)
	if name == "" {
		return nil, &UnknownEntityError{}
	}
	d, ok := c.types.Load(name)
	if !ok {
		return nil, &UnknownEntityError{Name: name}
	}
	return d, nil
}

// Instantiate builds an instance of the type named by record's
// EntityAttribute. The tag itself is not copied into the instance.
func (c *Catalog) Instantiate(record Record) (*Instance, error) {
	d, err := c.Resolve(record)
	if err != nil {
		return nil, err
	}
	attrs := make(Record, len(record))
	for k, v := range record {
		if k != EntityAttribute {
			attrs[k] = v
		}
	}
	return NewFrom(d, attrs)
}
