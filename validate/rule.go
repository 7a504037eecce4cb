// Package validate provides immutable validation schemas and the engine that
// evaluates them against plain records.
//
// A [Rule] is a value: every modifier returns a new Rule and never touches the
// receiver, so schemas can be shared and composed freely.
//
//	address := validate.Object().
//	    Field("street", validate.String().Required()).
//	    Field("zip", validate.String().Tag("len=5"))
//
//	user := validate.Object().
//	    Field("email", validate.String().Format("email").Required()).
//	    Field("addresses", validate.Array(address).MinItems(1).Required())
//
//	out, err := validate.Default.Validate(user, record)
//
// The engine runs in collect-all mode: every failing path is reported in a
// single [*Error], and convertible values are coerced to the rule's kind.
package validate

// Kind is the value type a Rule expects.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "any"
	}
}

// UnknownPolicy controls what an object rule does with undeclared keys.
type UnknownPolicy int

const (
	// UnknownAllow passes undeclared keys through untouched.
	UnknownAllow UnknownPolicy = iota
	// UnknownStrip drops undeclared keys from the output.
	UnknownStrip
	// UnknownReject reports undeclared keys as issues.
	UnknownReject
)

// CheckFunc is an object-level check run after all fields were validated.
// It receives the coerced object.
type CheckFunc func(value map[string]any) error

// Rule is an immutable schema fragment.
type Rule struct {
	kind     Kind
	required bool
	tag      string
	format   string
	fields   map[string]Rule
	order    []string
	elem     *Rule
	minItems int
	unknown  UnknownPolicy
	checks   []CheckFunc
}

// Any returns a rule accepting any value.
func Any() Rule { return Rule{kind: KindAny} }

// String returns a rule coercing values to strings.
func String() Rule { return Rule{kind: KindString} }

// Int returns a rule coercing values to int64.
func Int() Rule { return Rule{kind: KindInt} }

// Float returns a rule coercing values to float64.
func Float() Rule { return Rule{kind: KindFloat} }

// Bool returns a rule coercing values to bool.
func Bool() Rule { return Rule{kind: KindBool} }

// Object returns an object rule with no declared fields that accepts unknown keys.
func Object() Rule { return Rule{kind: KindObject} }

// Array returns a rule for lists whose elements satisfy elem.
func Array(elem Rule) Rule {
	return Rule{kind: KindArray, elem: &elem}
}

// Kind returns the expected value kind.
func (r Rule) Kind() Kind { return r.kind }

// IsRequired reports whether a value must be present.
func (r Rule) IsRequired() bool { return r.required }

// Required marks the value as mandatory.
func (r Rule) Required() Rule {
	r.required = true
	return r
}

// Optional clears the required flag.
func (r Rule) Optional() Rule {
	r.required = false
	return r
}

// Tag attaches a go-playground/validator tag (e.g. "min=3,max=64") evaluated
// after coercion.
func (r Rule) Tag(tag string) Rule {
	r.tag = tag
	return r
}

// Format attaches a named strfmt format (e.g. "email", "uuid", "date-time").
func (r Rule) Format(name string) Rule {
	r.format = name
	return r
}

// MinItems requires an array to hold at least n elements.
func (r Rule) MinItems(n int) Rule {
	r.minItems = n
	return r
}

// Unknown sets the undeclared-key policy of an object rule.
func (r Rule) Unknown(p UnknownPolicy) Rule {
	r.unknown = p
	return r
}

// Check appends an object-level check.
func (r Rule) Check(fn CheckFunc) Rule {
	checks := make([]CheckFunc, len(r.checks), len(r.checks)+1)
	copy(checks, r.checks)
	r.checks = append(checks, fn)
	return r
}

// Field declares (or replaces) a field of an object rule. Calling Field on a
// non-object rule turns it into an object rule.
func (r Rule) Field(name string, field Rule) Rule {
	r.kind = KindObject
	fields := make(map[string]Rule, len(r.fields)+1)
	for k, v := range r.fields {
		fields[k] = v
	}
	order := make([]string, len(r.order), len(r.order)+1)
	copy(order, r.order)
	if _, exists := fields[name]; !exists {
		order = append(order, name)
	}
	fields[name] = field
	r.fields = fields
	r.order = order
	return r
}

// Lookup returns the rule declared for a field of an object rule.
func (r Rule) Lookup(name string) (Rule, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// FieldNames returns declared object fields in declaration order.
func (r Rule) FieldNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Elem returns the element rule of an array rule.
func (r Rule) Elem() (Rule, bool) {
	if r.elem == nil {
		return Rule{}, false
	}
	return *r.elem, true
}

// Merge returns r extended with other. Fields declared by other replace fields
// of the same name; other's checks run after r's. Scalar settings of other win
// when set.
func (r Rule) Merge(other Rule) Rule {
	out := r
	if other.kind != KindAny {
		out.kind = other.kind
	}
	if other.required {
		out.required = true
	}
	if other.tag != "" {
		out.tag = other.tag
	}
	if other.format != "" {
		out.format = other.format
	}
	if other.elem != nil {
		out.elem = other.elem
	}
	if other.minItems > 0 {
		out.minItems = other.minItems
	}
	if other.unknown != UnknownAllow {
		out.unknown = other.unknown
	}
	for _, name := range other.order {
		out = out.Field(name, other.fields[name])
	}
	for _, fn := range other.checks {
		out = out.Check(fn)
	}
	return out
}
