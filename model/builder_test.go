package model_test

import (
	"errors"
	"testing"

	"github.com/jacentio/espalier/model"
	"github.com/jacentio/espalier/validate"
)

// --- Key Declarations ---

func TestDefine_Keys(t *testing.T) {
	if testUser.PrimaryKey() != "pk" {
		t.Errorf("expected primary key 'pk', got %q", testUser.PrimaryKey())
	}
	if testUser.SecondaryKey() != "sk" {
		t.Errorf("expected secondary key 'sk', got %q", testUser.SecondaryKey())
	}
	if !testUser.IsKey("pk") || !testUser.IsKey("sk") {
		t.Error("expected pk and sk to be keys")
	}
	if testUser.IsKey("email") {
		t.Error("expected email not to be a key")
	}
	if testUser.CreatedAtKey() != "createdAt" || testUser.UpdatedAtKey() != "updatedAt" {
		t.Errorf("unexpected timestamp keys %q/%q", testUser.CreatedAtKey(), testUser.UpdatedAtKey())
	}
}

func TestDefine_DuplicatePrimaryKey(t *testing.T) {
	_, err := model.Define("Broken").
		PrimaryKey("pk").
		PrimaryKey("id").
		Build()
	if !errors.Is(err, model.ErrDefinition) {
		t.Fatalf("expected ErrDefinition, got %v", err)
	}
	var derr *model.DefinitionError
	if !errors.As(err, &derr) || derr.Entity != "Broken" {
		t.Errorf("expected DefinitionError for Broken, got %#v", err)
	}
}

func TestDefine_DuplicateSecondaryKey(t *testing.T) {
	_, err := model.Define("Broken").
		SecondaryKey("sk").
		SecondaryKey("sort").
		Build()
	if !errors.Is(err, model.ErrDefinition) {
		t.Fatalf("expected ErrDefinition, got %v", err)
	}
}

func TestDefine_RepeatedKeyIsNoop(t *testing.T) {
	d, err := model.Define("Fine").
		PrimaryKey("pk").
		PrimaryKey("pk").
		Field("pk").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Fields()) != 1 {
		t.Errorf("expected 1 field, got %v", d.Fields())
	}
	if role, _ := d.RoleOf("pk"); role != model.RolePrimaryKey {
		t.Errorf("expected pk to stay the primary key, got role %d", role)
	}
}

func TestDefine_EmptyName(t *testing.T) {
	if _, err := model.Define("").Build(); !errors.Is(err, model.ErrDefinition) {
		t.Errorf("expected ErrDefinition, got %v", err)
	}
}

func TestDefine_BuildTwice(t *testing.T) {
	b := model.Define("Once")
	if _, err := b.Build(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.Build(); !errors.Is(err, model.ErrDefinition) {
		t.Errorf("expected ErrDefinition on second Build, got %v", err)
	}
}

// --- Aliases ---

func TestDefine_Alias(t *testing.T) {
	if testUser.Canonical("mail") != "email" {
		t.Errorf("expected mail to resolve to email, got %q", testUser.Canonical("mail"))
	}
	if testUser.Canonical("email") != "email" {
		t.Errorf("expected email to resolve to itself")
	}
	aliases := testUser.AliasesOf("email")
	if len(aliases) != 1 || aliases[0] != "mail" {
		t.Errorf("expected [mail], got %v", aliases)
	}
}

func TestDefine_AliasCollision(t *testing.T) {
	_, err := model.Define("Broken").
		Field("email").
		Field("mail").
		Alias("mail", "email").
		Build()
	if !errors.Is(err, model.ErrDefinition) {
		t.Errorf("expected ErrDefinition, got %v", err)
	}
}

// --- Composites ---

func TestDefine_CompositeOrder(t *testing.T) {
	d, err := model.Define("Chain").
		Composite("abc", []string{"ab", "c"}, "|").
		Composite("ab", []string{"a", "b"}, "").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comps := d.Composites()
	if len(comps) != 2 {
		t.Fatalf("expected 2 composites, got %d", len(comps))
	}
	if comps[0].Name != "ab" || comps[1].Name != "abc" {
		t.Errorf("expected [ab abc], got [%s %s]", comps[0].Name, comps[1].Name)
	}
	if comps[0].Delimiter != model.DefaultDelimiter {
		t.Errorf("expected default delimiter, got %q", comps[0].Delimiter)
	}

	sources, ok := d.CompositeSourcesOf("abc")
	if !ok || len(sources) != 2 || sources[0] != "ab" {
		t.Errorf("unexpected sources %v", sources)
	}
	for _, f := range []string{"a", "b", "c"} {
		if !d.HasField(f) {
			t.Errorf("expected source %q to be declared", f)
		}
	}
}

func TestDefine_CompositeOrderKeepsRegistrationTies(t *testing.T) {
	d := model.Define("Ties").
		Composite("x", []string{"a"}, "").
		Composite("y", []string{"b"}, "").
		Composite("z", []string{"c"}, "").
		MustBuild()

	comps := d.Composites()
	for i, want := range []string{"x", "y", "z"} {
		if comps[i].Name != want {
			t.Errorf("expected composite %d to be %q, got %q", i, want, comps[i].Name)
		}
	}
}

func TestDefine_CompositeDeduplicated(t *testing.T) {
	d := model.Define("Dup").
		Composite("ab", []string{"a", "b"}, "").
		Composite("ab", []string{"a", "b"}, "").
		Composite("abc", []string{"ab", "c"}, "").
		MustBuild()

	if n := len(d.Composites()); n != 2 {
		t.Errorf("expected 2 composites, got %d", n)
	}
}

func TestDefine_CompositeCycle(t *testing.T) {
	_, err := model.Define("Cycle").
		Composite("a", []string{"b"}, "").
		Composite("b", []string{"a"}, "").
		Build()
	if !errors.Is(err, model.ErrDefinition) {
		t.Errorf("expected ErrDefinition, got %v", err)
	}
}

func TestDefine_CompositeSelf(t *testing.T) {
	_, err := model.Define("Self").
		Composite("a", []string{"a", "b"}, "").
		Build()
	if !errors.Is(err, model.ErrDefinition) {
		t.Errorf("expected ErrDefinition, got %v", err)
	}
}

// --- Relations ---

func TestDefine_Relations(t *testing.T) {
	rels := testUser.Relations()
	if len(rels) != 2 {
		t.Fatalf("expected 2 relations, got %d", len(rels))
	}
	if rels[0].Name != "address" || !rels[0].Nested || rels[0].Many {
		t.Errorf("unexpected address relation %+v", rels[0])
	}
	if rels[1].Name != "posts" || rels[1].Nested || !rels[1].Many {
		t.Errorf("unexpected posts relation %+v", rels[1])
	}

	linked := testUser.LinkedRelations()
	if len(linked) != 1 || linked[0].Name != "posts" {
		t.Errorf("expected only posts to be linked, got %v", linked)
	}
	if linked[0].ForeignKey != "userId" || linked[0].IndexName != "byUser" {
		t.Errorf("unexpected linked options %+v", linked[0].RelationOptions)
	}
}

func TestDefine_RelationCollision(t *testing.T) {
	_, err := model.Define("Broken").
		Field("address").
		HasOne("address", testAddress, model.RelationOptions{Nested: true}).
		Build()
	if !errors.Is(err, model.ErrDefinition) {
		t.Errorf("expected ErrDefinition, got %v", err)
	}
}

func TestDefine_RelationNilChild(t *testing.T) {
	_, err := model.Define("Broken").
		HasOne("thing", nil, model.RelationOptions{}).
		Build()
	if !errors.Is(err, model.ErrDefinition) {
		t.Errorf("expected ErrDefinition, got %v", err)
	}
}

// --- Validation Rules ---

func TestDefine_ValidationLastWins(t *testing.T) {
	d := model.Define("Rules").
		Field("n", validate.String()).
		Validate("n", validate.Int()).
		MustBuild()

	rule, ok := d.ValidationOf("n")
	if !ok || rule.Kind() != validate.KindInt {
		t.Errorf("expected the int rule to win, got %v", rule.Kind())
	}
}

func TestDefine_ValidationThroughAlias(t *testing.T) {
	d := model.Define("Rules").
		Field("email").
		Alias("mail", "email").
		Validate("mail", validate.String().Required()).
		MustBuild()

	if _, ok := d.ValidationOf("email"); !ok {
		t.Error("expected the rule to attach to the canonical field")
	}
}

func TestDefine_ObjectRule(t *testing.T) {
	d := model.Define("Strict").
		Field("a").
		Validate("", validate.Object().Unknown(validate.UnknownReject)).
		MustBuild()

	if _, ok := d.ValidationOf(""); !ok {
		t.Error("expected an object-level rule")
	}
	if _, ok := testAddress.ValidationOf(""); ok {
		t.Error("expected no object-level rule on Address")
	}
}

// --- Inheritance ---

func TestDefine_Extends(t *testing.T) {
	admin := model.Define("Admin").
		Extends(testUser).
		Field("level", validate.Int()).
		MustBuild()

	if !admin.IsA("Admin") || !admin.IsA("User") {
		t.Error("expected Admin to be an Admin and a User")
	}
	if admin.IsA("Post") {
		t.Error("expected Admin not to be a Post")
	}
	if admin.PrimaryKey() != "pk" || admin.SecondaryKey() != "sk" {
		t.Errorf("expected inherited keys, got %q/%q", admin.PrimaryKey(), admin.SecondaryKey())
	}
	if admin.Canonical("mail") != "email" {
		t.Error("expected inherited alias")
	}
	if _, ok := admin.Relation("posts"); !ok {
		t.Error("expected inherited relation")
	}
	if len(admin.Composites()) != 1 {
		t.Errorf("expected inherited composite, got %v", admin.Composites())
	}
	if _, ok := admin.ValidationOf("email"); !ok {
		t.Error("expected inherited validation rule")
	}
	if testUser.HasField("level") {
		t.Error("expected parent to be unchanged")
	}
}

func TestDefine_ExtendsDuplicateKey(t *testing.T) {
	_, err := model.Define("Broken").
		Extends(testUser).
		PrimaryKey("id").
		Build()
	if !errors.Is(err, model.ErrDefinition) {
		t.Errorf("expected ErrDefinition, got %v", err)
	}
}
