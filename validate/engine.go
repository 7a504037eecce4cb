package validate

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/go-openapi/strfmt"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

// Engine evaluates rules against records.
type Engine interface {
	// Validate checks record against an object rule and returns the coerced
	// record, or an *Error listing every failing path.
	Validate(rule Rule, record map[string]any) (map[string]any, error)

	// ValidateValue checks a single value against rule.
	ValidateValue(rule Rule, value any) (any, error)
}

// Default is the engine used when none is configured.
var Default Engine = New()

// TagEngine is the default Engine. Tags are evaluated with
// go-playground/validator and formats with the strfmt registry.
type TagEngine struct {
	tags    *validator.Validate
	formats strfmt.Registry
}

// New creates a TagEngine using strfmt.Default for formats.
func New() *TagEngine {
	return NewWithFormats(strfmt.Default)
}

// NewWithFormats creates a TagEngine with a custom format registry.
func NewWithFormats(formats strfmt.Registry) *TagEngine {
	return &TagEngine{
		tags:    validator.New(),
		formats: formats,
	}
}

// Validate implements Engine.
func (e *TagEngine) Validate(rule Rule, record map[string]any) (map[string]any, error) {
	if rule.kind != KindObject {
		rule.kind = KindObject
	}
	var issues []Issue
	out := e.walk(rule, record, "", &issues)
	if len(issues) > 0 {
		return nil, newError(issues)
	}
	m, _ := out.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// ValidateValue implements Engine.
func (e *TagEngine) ValidateValue(rule Rule, value any) (any, error) {
	var issues []Issue
	out := e.walk(rule, value, "", &issues)
	if len(issues) > 0 {
		return nil, newError(issues)
	}
	return out, nil
}

func (e *TagEngine) walk(rule Rule, value any, path string, issues *[]Issue) any {
	if value == nil {
		if rule.required {
			*issues = append(*issues, Issue{Path: path, Code: CodeRequired, Message: "is required"})
		}
		return nil
	}

	switch rule.kind {
	case KindObject:
		return e.object(rule, value, path, issues)
	case KindArray:
		return e.array(rule, value, path, issues)
	}

	coerced, err := coerce(rule.kind, value)
	if err != nil {
		*issues = append(*issues, Issue{
			Path:    path,
			Code:    CodeType,
			Message: fmt.Sprintf("must be %s", article(rule.kind)),
		})
		return value
	}

	if rule.format != "" {
		s := cast.ToString(coerced)
		switch {
		case !e.formats.ContainsName(rule.format):
			*issues = append(*issues, Issue{Path: path, Code: CodeFormat, Message: fmt.Sprintf("unknown format %q", rule.format)})
		case !e.formats.Validates(rule.format, s):
			*issues = append(*issues, Issue{Path: path, Code: CodeFormat, Message: fmt.Sprintf("must be a valid %s", rule.format)})
		}
	}

	if rule.tag != "" {
		if err := e.tags.Var(coerced, rule.tag); err != nil {
			verrs, ok := err.(validator.ValidationErrors)
			if !ok {
				*issues = append(*issues, Issue{Path: path, Code: CodeTag, Message: err.Error()})
				return coerced
			}
			for _, fe := range verrs {
				msg := fmt.Sprintf("failed %q rule", fe.Tag())
				if fe.Param() != "" {
					msg = fmt.Sprintf("failed %q rule (%s)", fe.Tag(), fe.Param())
				}
				*issues = append(*issues, Issue{Path: path, Code: CodeTag, Message: msg})
			}
		}
	}

	return coerced
}

func (e *TagEngine) object(rule Rule, value any, path string, issues *[]Issue) any {
	m, ok := toMap(value)
	if !ok {
		*issues = append(*issues, Issue{Path: path, Code: CodeType, Message: "must be an object"})
		return value
	}

	out := make(map[string]any, len(m))
	for _, name := range rule.order {
		field := rule.fields[name]
		v, present := m[name]
		if !present || v == nil {
			if field.required {
				*issues = append(*issues, Issue{Path: joinPath(path, name), Code: CodeRequired, Message: "is required"})
			}
			continue
		}
		out[name] = e.walk(field, v, joinPath(path, name), issues)
	}

	var unknown []string
	for k := range m {
		if _, declared := rule.fields[k]; !declared {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		switch rule.unknown {
		case UnknownAllow:
			out[k] = m[k]
		case UnknownReject:
			*issues = append(*issues, Issue{Path: joinPath(path, k), Code: CodeUnknown, Message: "is not allowed"})
		}
	}

	for _, check := range rule.checks {
		if err := check(out); err != nil {
			*issues = append(*issues, Issue{Path: path, Code: CodeCheck, Message: err.Error()})
		}
	}
	return out
}

func (e *TagEngine) array(rule Rule, value any, path string, issues *[]Issue) any {
	items, ok := toSlice(value)
	if !ok {
		*issues = append(*issues, Issue{Path: path, Code: CodeType, Message: "must be an array"})
		return value
	}
	if len(items) < rule.minItems {
		*issues = append(*issues, Issue{
			Path:    path,
			Code:    CodeMinItems,
			Message: fmt.Sprintf("must contain at least %d item(s)", rule.minItems),
		})
	}

	elem := Any()
	if rule.elem != nil {
		elem = *rule.elem
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = e.walk(elem, item, fmt.Sprintf("%s[%d]", path, i), issues)
	}
	return out
}

func coerce(kind Kind, v any) (any, error) {
	switch kind {
	case KindString:
		return cast.ToStringE(v)
	case KindInt:
		switch f := v.(type) {
		case float64:
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("%v is not an integer", f)
			}
		case float32:
			if float64(f) != math.Trunc(float64(f)) {
				return nil, fmt.Errorf("%v is not an integer", f)
			}
		}
		return cast.ToInt64E(v)
	case KindFloat:
		return cast.ToFloat64E(v)
	case KindBool:
		return cast.ToBoolE(v)
	default:
		return v, nil
	}
}

func toMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

func article(k Kind) string {
	switch k {
	case KindInt, KindObject, KindArray:
		return "an " + k.String()
	default:
		return "a " + k.String()
	}
}
