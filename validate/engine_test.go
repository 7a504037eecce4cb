package validate_test

import (
	"errors"
	"testing"

	"github.com/jacentio/espalier/validate"
)

func mustFail(t *testing.T, err error) *validate.Error {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *validate.Error, got %T", err)
	}
	return verr
}

func TestValidate_CoercesScalars(t *testing.T) {
	rule := validate.Object().
		Field("count", validate.Int()).
		Field("ratio", validate.Float()).
		Field("active", validate.Bool()).
		Field("name", validate.String())

	out, err := validate.Default.Validate(rule, map[string]any{
		"count":  "42",
		"ratio":  "0.5",
		"active": "true",
		"name":   7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["count"] != int64(42) {
		t.Errorf("expected count int64(42), got %#v", out["count"])
	}
	if out["ratio"] != 0.5 {
		t.Errorf("expected ratio 0.5, got %#v", out["ratio"])
	}
	if out["active"] != true {
		t.Errorf("expected active true, got %#v", out["active"])
	}
	if out["name"] != "7" {
		t.Errorf("expected name \"7\", got %#v", out["name"])
	}
}

func TestValidate_RejectsFractionalInt(t *testing.T) {
	rule := validate.Object().Field("count", validate.Int())
	_, err := validate.Default.Validate(rule, map[string]any{"count": 2.5})
	verr := mustFail(t, err)
	if !verr.Has("count", validate.CodeType) {
		t.Errorf("expected type issue on count, got %v", verr.Issues)
	}
}

func TestValidate_CollectsAllIssues(t *testing.T) {
	rule := validate.Object().
		Field("email", validate.String().Format("email").Required()).
		Field("name", validate.String().Tag("min=3")).
		Field("id", validate.String().Required())

	_, err := validate.Default.Validate(rule, map[string]any{
		"email": "not-an-email",
		"name":  "ab",
	})
	verr := mustFail(t, err)

	tests := []struct {
		path string
		code string
	}{
		{"email", validate.CodeFormat},
		{"id", validate.CodeRequired},
		{"name", validate.CodeTag},
	}
	for _, tt := range tests {
		if !verr.Has(tt.path, tt.code) {
			t.Errorf("expected %s issue on %q, got %v", tt.code, tt.path, verr.Issues)
		}
	}
	if len(verr.Fields()) != 3 {
		t.Errorf("expected 3 failing fields, got %v", verr.Fields())
	}
}

func TestValidate_UnknownPolicies(t *testing.T) {
	record := map[string]any{"known": "a", "extra": "b"}
	base := validate.Object().Field("known", validate.String())

	t.Run("allow", func(t *testing.T) {
		out, err := validate.Default.Validate(base, record)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out["extra"] != "b" {
			t.Errorf("expected extra to pass through, got %#v", out["extra"])
		}
	})

	t.Run("strip", func(t *testing.T) {
		out, err := validate.Default.Validate(base.Unknown(validate.UnknownStrip), record)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := out["extra"]; ok {
			t.Error("expected extra to be stripped")
		}
	})

	t.Run("reject", func(t *testing.T) {
		_, err := validate.Default.Validate(base.Unknown(validate.UnknownReject), record)
		verr := mustFail(t, err)
		if !verr.Has("extra", validate.CodeUnknown) {
			t.Errorf("expected unknown issue on extra, got %v", verr.Issues)
		}
	})
}

func TestValidate_NestedArrays(t *testing.T) {
	item := validate.Object().Field("name", validate.String().Required())
	rule := validate.Object().Field("items", validate.Array(item).MinItems(1).Required())

	t.Run("missing", func(t *testing.T) {
		_, err := validate.Default.Validate(rule, map[string]any{})
		verr := mustFail(t, err)
		if !verr.Has("items", validate.CodeRequired) {
			t.Errorf("expected required issue on items, got %v", verr.Issues)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := validate.Default.Validate(rule, map[string]any{"items": []any{}})
		verr := mustFail(t, err)
		if !verr.Has("items", validate.CodeMinItems) {
			t.Errorf("expected min items issue, got %v", verr.Issues)
		}
	})

	t.Run("element path", func(t *testing.T) {
		_, err := validate.Default.Validate(rule, map[string]any{
			"items": []map[string]any{{"name": "a"}, {}},
		})
		verr := mustFail(t, err)
		if !verr.Has("items[1].name", validate.CodeRequired) {
			t.Errorf("expected issue on items[1].name, got %v", verr.Issues)
		}
	})
}

func TestValidate_Check(t *testing.T) {
	rule := validate.Object().
		Field("min", validate.Int()).
		Field("max", validate.Int()).
		Check(func(v map[string]any) error {
			if v["min"].(int64) > v["max"].(int64) {
				return errors.New("min must not exceed max")
			}
			return nil
		})

	_, err := validate.Default.Validate(rule, map[string]any{"min": 5, "max": 1})
	verr := mustFail(t, err)
	if !verr.Has("", validate.CodeCheck) {
		t.Errorf("expected root check issue, got %v", verr.Issues)
	}
	if verr.Error() != "min must not exceed max" {
		t.Errorf("unexpected message %q", verr.Error())
	}
}

func TestRule_Immutable(t *testing.T) {
	base := validate.Object().Field("a", validate.String())
	extended := base.Field("b", validate.String().Required())

	if _, ok := base.Lookup("b"); ok {
		t.Error("expected base to be unchanged by Field")
	}
	if names := extended.FieldNames(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected [a b], got %v", names)
	}

	required := base.Required()
	if base.IsRequired() {
		t.Error("expected base to stay optional")
	}
	if !required.IsRequired() {
		t.Error("expected copy to be required")
	}
}

func TestRule_Merge(t *testing.T) {
	left := validate.Object().
		Field("a", validate.String()).
		Field("b", validate.String())
	right := validate.Object().
		Field("b", validate.Int().Required()).
		Unknown(validate.UnknownReject)

	merged := left.Merge(right)
	b, ok := merged.Lookup("b")
	if !ok || b.Kind() != validate.KindInt || !b.IsRequired() {
		t.Errorf("expected b to be replaced by the required int rule, got %+v", b)
	}
	if names := merged.FieldNames(); len(names) != 2 {
		t.Errorf("expected 2 fields, got %v", names)
	}

	_, err := validate.Default.Validate(merged, map[string]any{"b": 1, "c": true})
	verr := mustFail(t, err)
	if !verr.Has("c", validate.CodeUnknown) {
		t.Errorf("expected merged unknown policy to apply, got %v", verr.Issues)
	}
}

func TestValidateValue(t *testing.T) {
	v, err := validate.Default.ValidateValue(validate.Int().Tag("gte=1"), "3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != int64(3) {
		t.Errorf("expected int64(3), got %#v", v)
	}

	_, err = validate.Default.ValidateValue(validate.Int().Tag("gte=1"), 0)
	verr := mustFail(t, err)
	if !verr.Has("", validate.CodeTag) {
		t.Errorf("expected tag issue, got %v", verr.Issues)
	}
}
