package model

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/jacentio/espalier/validate"
)

// Builder accumulates declarations for one entity type. Registration calls
// are idempotent per field name; the first definition error sticks and is
// returned by Build.
//
//	Address := model.Define("Address").
//	    Field("street", validate.String().Required()).
//	    MustBuild()
//
//	User := model.Define("User").
//	    PrimaryKey("pk").
//	    SecondaryKey("sk").
//	    CreatedAt("createdAt").
//	    UpdatedAt("updatedAt").
//	    Field("email", validate.String().Format("email")).
//	    Alias("mail", "email").
//	    Composite("gsi1pk", []string{"org", "team"}, "#").
//	    HasOne("address", Address, model.RelationOptions{Nested: true}).
//	    MustBuild()
type Builder struct {
	d     *Descriptor
	err   error
	built bool
	// composite registration order, the tie-breaker of the evaluation order
	compositeReg []string
}

// Define starts the declaration of an entity type.
func Define(name string) *Builder {
	b := &Builder{d: newDescriptor(name)}
	if name == "" {
		b.fail("entity name is empty")
	}
	return b
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = &DefinitionError{Entity: b.d.name, Reason: fmt.Sprintf(format, args...)}
	}
}

func (b *Builder) usable() bool {
	if b.built {
		b.fail("builder used after Build")
	}
	return b.err == nil
}

// Extends copies every declaration of parent into the type. The new type
// reports IsA(parent.Name()) and may add declarations of its own.
func (b *Builder) Extends(parent *Descriptor) *Builder {
	if !b.usable() {
		return b
	}
	if parent == nil {
		b.fail("cannot extend a nil type")
		return b
	}
	b.d.ancestors = append(b.d.ancestors, parent.name)
	b.d.ancestors = append(b.d.ancestors, parent.ancestors...)

	for _, f := range parent.fields {
		if c, ok := parent.composites[f]; ok {
			b.registerComposite(c.Name, c.Sources, c.Delimiter)
		}
		b.registerField(f, parent.roles[f])
	}
	for _, a := range parent.aliasOrder {
		b.registerAlias(a, parent.aliases[a])
	}
	for _, name := range parent.relationOrder {
		rel := parent.relations[name]
		b.registerRelation(rel.Name, rel.Child, rel.Many, rel.RelationOptions)
	}
	names := make([]string, 0, len(parent.rules))
	for name := range parent.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.registerValidation(name, parent.rules[name])
	}
	if parent.objectRule != nil {
		b.registerValidation("", *parent.objectRule)
	}
	b.d.engine = parent.engine
	return b
}

// Field declares a plain field with an optional validation rule.
func (b *Builder) Field(name string, rules ...validate.Rule) *Builder {
	return b.field(name, RolePlain, rules)
}

// PrimaryKey declares the partition key field.
func (b *Builder) PrimaryKey(name string, rules ...validate.Rule) *Builder {
	return b.field(name, RolePrimaryKey, rules)
}

// SecondaryKey declares the sort key field.
func (b *Builder) SecondaryKey(name string, rules ...validate.Rule) *Builder {
	return b.field(name, RoleSecondaryKey, rules)
}

// CreatedAt declares the creation timestamp field populated on create.
func (b *Builder) CreatedAt(name string) *Builder {
	return b.field(name, RoleCreatedAt, nil)
}

// UpdatedAt declares the update timestamp field populated on every write.
func (b *Builder) UpdatedAt(name string) *Builder {
	return b.field(name, RoleUpdatedAt, nil)
}

func (b *Builder) field(name string, role Role, rules []validate.Rule) *Builder {
	if !b.usable() {
		return b
	}
	b.registerField(name, role)
	for _, r := range rules {
		b.registerValidation(name, r)
	}
	return b
}

// Alias declares an alternate name that reads and writes through to canonical.
func (b *Builder) Alias(alias, canonical string) *Builder {
	if b.usable() {
		b.registerAlias(alias, canonical)
	}
	return b
}

// Composite declares a field computed by joining sources with delimiter.
// Sources not yet declared become plain fields. An empty delimiter selects
// DefaultDelimiter.
func (b *Builder) Composite(name string, sources []string, delimiter string) *Builder {
	if b.usable() {
		b.registerComposite(name, sources, delimiter)
	}
	return b
}

// HasOne declares a to-one relation to child.
func (b *Builder) HasOne(name string, child *Descriptor, opts RelationOptions) *Builder {
	if b.usable() {
		b.registerRelation(name, child, false, opts)
	}
	return b
}

// HasMany declares a to-many relation to child.
func (b *Builder) HasMany(name string, child *Descriptor, opts RelationOptions) *Builder {
	if b.usable() {
		b.registerRelation(name, child, true, opts)
	}
	return b
}

// Validate attaches a rule to a field. An empty name attaches the object-level
// rule, which is the base every composed schema starts from.
func (b *Builder) Validate(name string, rule validate.Rule) *Builder {
	if b.usable() {
		b.registerValidation(name, rule)
	}
	return b
}

// WithEngine overrides the validation engine used by the type.
func (b *Builder) WithEngine(e validate.Engine) *Builder {
	if !b.usable() {
		return b
	}
	if e == nil {
		b.fail("validation engine is nil")
		return b
	}
	b.d.engine = e
	return b
}

// Err returns the first definition error recorded so far.
func (b *Builder) Err() error { return b.err }

// Build finalizes the descriptor.
func (b *Builder) Build() (*Descriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return nil, &DefinitionError{Entity: b.d.name, Reason: "already built"}
	}
	b.built = true
	return b.d, nil
}

// MustBuild is Build for package-level declarations; it panics on error.
func (b *Builder) MustBuild() *Descriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

func (b *Builder) registerField(name string, role Role) {
	d := b.d
	if name == "" {
		b.fail("field name is empty")
		return
	}
	if _, ok := d.aliases[name]; ok {
		b.fail("field %q is already declared as an alias", name)
		return
	}
	if _, ok := d.relations[name]; ok {
		if role != RolePlain {
			b.fail("relation %q cannot be a key or timestamp", name)
		}
		return
	}

	existing, declared := d.roles[name]
	if !declared {
		d.fields = append(d.fields, name)
		d.roles[name] = RolePlain
		existing = RolePlain
	}
	if role == RolePlain || existing == role {
		return
	}
	if existing != RolePlain {
		b.fail("field %q already has a different role", name)
		return
	}

	var slot *string
	var label string
	switch role {
	case RolePrimaryKey:
		slot, label = &d.primaryKey, "primary key"
	case RoleSecondaryKey:
		slot, label = &d.secondaryKey, "secondary key"
	case RoleCreatedAt:
		slot, label = &d.createdAtKey, "createdAt key"
	case RoleUpdatedAt:
		slot, label = &d.updatedAtKey, "updatedAt key"
	}
	if *slot != "" && *slot != name {
		b.fail("duplicate %s %q (already %q)", label, name, *slot)
		return
	}
	*slot = name
	d.roles[name] = role
}

func (b *Builder) registerAlias(alias, canonical string) {
	d := b.d
	canonical = d.Canonical(canonical)
	switch {
	case alias == "" || canonical == "":
		b.fail("alias and canonical names must not be empty")
		return
	case alias == canonical:
		b.fail("alias %q resolves to itself", alias)
		return
	case d.HasField(alias):
		b.fail("alias %q collides with a declared field", alias)
		return
	}
	if _, ok := d.aliases[alias]; ok {
		return
	}
	d.aliases[alias] = canonical
	d.aliasOrder = append(d.aliasOrder, alias)
}

func (b *Builder) registerComposite(name string, sources []string, delimiter string) {
	d := b.d
	if len(sources) == 0 {
		b.fail("composite %q has no source fields", name)
		return
	}
	if slices.Contains(sources, name) {
		b.fail("composite %q depends on itself", name)
		return
	}
	if _, ok := d.composites[name]; ok {
		return
	}
	if _, ok := d.relations[name]; ok {
		b.fail("composite %q collides with a relation", name)
		return
	}
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}

	d.composites[name] = Composite{
		Name:      name,
		Sources:   slices.Clone(sources),
		Delimiter: delimiter,
	}
	b.compositeReg = append(b.compositeReg, name)

	order, err := compositeOrder(b.compositeReg, d.composites)
	if err != nil {
		delete(d.composites, name)
		b.compositeReg = b.compositeReg[:len(b.compositeReg)-1]
		b.fail("composite %q: %v", name, err)
		return
	}
	d.compositeOrder = order
	b.registerField(name, RolePlain)
	for _, src := range sources {
		if _, isRel := d.relations[src]; !isRel && !d.IsAlias(src) {
			b.registerField(src, RolePlain)
		}
	}
}

func (b *Builder) registerRelation(name string, child *Descriptor, many bool, opts RelationOptions) {
	d := b.d
	switch {
	case name == "":
		b.fail("relation name is empty")
		return
	case child == nil:
		b.fail("relation %q has no child type", name)
		return
	}
	if _, ok := d.relations[name]; ok {
		return
	}
	if _, ok := d.roles[name]; ok {
		b.fail("relation %q collides with a scalar field", name)
		return
	}
	if _, ok := d.aliases[name]; ok {
		b.fail("relation %q collides with an alias", name)
		return
	}
	d.relations[name] = Relation{
		Name:            name,
		Child:           child,
		Many:            many,
		RelationOptions: opts,
	}
	d.relationOrder = append(d.relationOrder, name)
}

func (b *Builder) registerValidation(name string, rule validate.Rule) {
	if name == "" {
		r := rule
		b.d.objectRule = &r
		return
	}
	name = b.d.Canonical(name)
	if _, ok := b.d.relations[name]; !ok {
		b.registerField(name, RolePlain)
	}
	b.d.rules[name] = rule
}

var errCompositeCycle = errors.New("composite keys form a cycle")

// compositeOrder orders composites so every composite follows the composites
// among its sources. Ties keep registration order.
func compositeOrder(reg []string, composites map[string]Composite) ([]string, error) {
	index := make(map[string]int, len(reg))
	for i, name := range reg {
		index[name] = i
	}

	indeg := make([]int, len(reg))
	out := make([][]int, len(reg))
	for i, name := range reg {
		for _, src := range composites[name].Sources {
			if j, ok := index[src]; ok {
				indeg[i]++
				out[j] = append(out[j], i)
			}
		}
	}

	var ready []int
	for i := range reg {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, len(reg))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, reg[i])
		for _, j := range out[i] {
			indeg[j]--
			if indeg[j] == 0 {
				k := sort.SearchInts(ready, j)
				ready = slices.Insert(ready, k, j)
			}
		}
	}

	if len(order) != len(reg) {
		return nil, errCompositeCycle
	}
	return order, nil
}
