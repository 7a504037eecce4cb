package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/model"
)

var internalUser = model.Define("User").
	PrimaryKey("id").
	SecondaryKey("sk").
	MustBuild()

// --- mergeFilter Tests ---

func TestMergeFilter(t *testing.T) {
	tests := []struct {
		name     string
		caller   string
		entity   string
		expected string
	}{
		{"no caller filter", "", "#e = :e", "#e = :e"},
		{"caller filter", "a = :a", "#e = :e", "(a = :a) AND (#e = :e)"},
		{"caller disjunction", "a = :a OR b = :b", "#e = :e", "(a = :a OR b = :b) AND (#e = :e)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mergeFilter(tt.caller, tt.entity)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

// --- mergeExprNames / mergeExprValues Tests ---

func TestMergeExprNames(t *testing.T) {
	result := mergeExprNames(
		map[string]string{"#a": "alpha"},
		nil,
		map[string]string{"#b": "beta", "#a": "override"},
	)
	if len(result) != 2 {
		t.Errorf("expected 2 names, got %d", len(result))
	}
	if result["#a"] != "override" {
		t.Errorf("expected later map to win, got %q", result["#a"])
	}
}

func TestMergeExprValues(t *testing.T) {
	result := mergeExprValues(
		map[string]types.AttributeValue{":a": &types.AttributeValueMemberS{Value: "1"}},
		map[string]types.AttributeValue{":b": &types.AttributeValueMemberN{Value: "2"}},
	)
	if len(result) != 2 {
		t.Errorf("expected 2 values, got %d", len(result))
	}
}

// --- EntityFilter Tests ---

func TestEntityFilter_Single(t *testing.T) {
	expr, names, values := EntityFilter("User")

	if strings.Contains(expr, "OR") {
		t.Errorf("expected single clause, got %q", expr)
	}
	if len(names) != 1 || len(values) != 1 {
		t.Fatalf("expected 1 name and 1 value, got %d and %d", len(names), len(values))
	}
	for k, v := range names {
		if v != EntityAttribute {
			t.Errorf("expected name to map to %q, got %q", EntityAttribute, v)
		}
		if !strings.HasPrefix(expr, k+" = :entity_") {
			t.Errorf("expected clause on %s, got %q", k, expr)
		}
	}
	for _, v := range values {
		if s, ok := v.(*types.AttributeValueMemberS); !ok || s.Value != "User" {
			t.Errorf("expected value 'User', got %#v", v)
		}
	}
}

func TestEntityFilter_Multiple(t *testing.T) {
	expr, names, values := EntityFilter("User", "Post")

	if !strings.HasPrefix(expr, "(") || strings.Count(expr, " OR ") != 1 {
		t.Errorf("expected parenthesized disjunction, got %q", expr)
	}
	if len(names) != 1 {
		t.Errorf("expected one shared name placeholder, got %d", len(names))
	}
	if len(values) != 2 {
		t.Errorf("expected 2 values, got %d", len(values))
	}
}

func TestEntityFilter_UniquePlaceholders(t *testing.T) {
	_, names1, values1 := EntityFilter("User")
	_, names2, values2 := EntityFilter("User")

	for k := range names1 {
		if _, ok := names2[k]; ok {
			t.Errorf("expected distinct name placeholders, both used %s", k)
		}
	}
	for k := range values1 {
		if _, ok := values2[k]; ok {
			t.Errorf("expected distinct value placeholders, both used %s", k)
		}
	}
}

func TestEntityOf(t *testing.T) {
	tests := []struct {
		name     string
		item     Item
		expected string
	}{
		{"tagged", Item{EntityAttribute: &types.AttributeValueMemberS{Value: "User"}}, "User"},
		{"untagged", Item{}, ""},
		{"wrong type", Item{EntityAttribute: &types.AttributeValueMemberN{Value: "1"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EntityOf(tt.item); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// --- mapWriteError Tests ---

func TestMapWriteError_NonTransactionError(t *testing.T) {
	s := &Store{}
	originalErr := errors.New("some other error")
	err := s.mapWriteError(originalErr, model.New(internalUser), true)
	if err != originalErr {
		t.Errorf("expected original error, got %v", err)
	}
}

func TestMapWriteError_ParentConditionFailed(t *testing.T) {
	s := &Store{}
	inst, _ := model.NewFrom(internalUser, model.Record{"id": "u1", "sk": "profile"})
	txErr := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")}, // Index 0 - parent update
			{Code: aws.String("None")},
		},
	}

	err := s.mapWriteError(txErr, inst, true)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Key.PK != "u1" || nf.Key.SK != "profile" {
		t.Errorf("expected key u1/profile, got %v", nf.Key)
	}
}

func TestMapWriteError_Passthrough(t *testing.T) {
	s := &Store{}
	inst := model.New(internalUser)

	tests := []struct {
		name      string
		reasons   []types.CancellationReason
		mustExist bool
	}{
		{"create", []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}}, false},
		{"other code", []types.CancellationReason{{Code: aws.String("TransactionConflict")}}, true},
		{"nil code", []types.CancellationReason{{Code: nil}}, true},
		{"child failed", []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}}, true},
		{"no reasons", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txErr := &types.TransactionCanceledException{CancellationReasons: tt.reasons}
			err := s.mapWriteError(txErr, inst, tt.mustExist)
			if err != txErr {
				t.Errorf("expected original error, got %v", err)
			}
		})
	}
}

// --- Config.validate Tests ---

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := Config{TableName: "app"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TagDelimiter != "-" {
		t.Errorf("expected TagDelimiter '-', got %q", cfg.TagDelimiter)
	}
	if cfg.MaxTransactItems != MaxTransactItems {
		t.Errorf("expected MaxTransactItems %d, got %d", MaxTransactItems, cfg.MaxTransactItems)
	}
}

func TestConfigValidate_MaxTransactItems(t *testing.T) {
	tests := []struct {
		name     string
		value    int
		expected int
	}{
		{"zero", 0, MaxTransactItems},
		{"negative", -5, MaxTransactItems},
		{"over max", 500, MaxTransactItems},
		{"at max", MaxTransactItems, MaxTransactItems},
		{"custom", 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{TableName: "app", MaxTransactItems: tt.value}
			_ = cfg.validate()
			if cfg.MaxTransactItems != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, cfg.MaxTransactItems)
			}
		})
	}
}

func TestConfigValidate_MissingTable(t *testing.T) {
	cfg := Config{}
	if err := cfg.validate(); !errors.Is(err, ErrMissingTable) {
		t.Errorf("expected ErrMissingTable, got %v", err)
	}
}

// --- normalizeNumbers Tests ---

func TestNormalizeNumbers(t *testing.T) {
	record := map[string]any{
		"int":    float64(42),
		"frac":   1.5,
		"str":    "7",
		"nested": map[string]any{"n": float64(3)},
		"list":   []any{float64(1), 2.25},
	}
	normalizeNumbers(record)

	if record["int"] != int64(42) {
		t.Errorf("expected int64 42, got %#v", record["int"])
	}
	if record["frac"] != 1.5 {
		t.Errorf("expected 1.5 kept, got %#v", record["frac"])
	}
	if record["str"] != "7" {
		t.Errorf("expected string kept, got %#v", record["str"])
	}
	if record["nested"].(map[string]any)["n"] != int64(3) {
		t.Errorf("expected nested number normalized, got %#v", record["nested"])
	}
	list := record["list"].([]any)
	if list[0] != int64(1) || list[1] != 2.25 {
		t.Errorf("expected list normalized, got %#v", list)
	}
}

// --- Store.Tag Tests ---

func TestStore_Tag(t *testing.T) {
	s := &Store{config: Config{TagDelimiter: "#"}}
	if got := s.Tag(internalUser, 42); got != "User#42" {
		t.Errorf("expected 'User#42', got %q", got)
	}
	if got := s.Tag(internalUser, "User#42"); got != "User#User#42" {
		t.Errorf("expected prefix-shaped raw key tagged again, got %q", got)
	}
}
