package store

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/internal/keytag"
)

// EntityOf returns the entity name an item is tagged with, or "".
func EntityOf(item Item) string {
	v, ok := item[EntityAttribute].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return v.Value
}

// EntityFilter returns a filter expression matching items tagged with one of
// entities, together with its attribute names and values. Placeholder names
// are unique per call so the filter can be merged with any caller expression.
func EntityFilter(entities ...string) (string, map[string]string, map[string]types.AttributeValue) {
	nameKey := keytag.Placeholder("#", "entity")
	names := map[string]string{nameKey: EntityAttribute}
	values := make(map[string]types.AttributeValue, len(entities))

	clauses := make([]string, len(entities))
	for i, entity := range entities {
		valueKey := keytag.Placeholder(":", "entity")
		values[valueKey] = &types.AttributeValueMemberS{Value: entity}
		clauses[i] = fmt.Sprintf("%s = %s", nameKey, valueKey)
	}

	if len(clauses) == 1 {
		return clauses[0], names, values
	}
	return "(" + strings.Join(clauses, " OR ") + ")", names, values
}

// mergeFilter conjoins a caller filter with the entity filter.
func mergeFilter(caller, entity string) string {
	if caller == "" {
		return entity
	}
	return fmt.Sprintf("(%s) AND (%s)", caller, entity)
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
