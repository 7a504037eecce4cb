package store

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a raw DynamoDB item.
type Item = map[string]types.AttributeValue

// Key identifies a record by its raw, untagged key values.
type Key struct {
	PK any
	SK any
}

// QueryInput defines parameters for querying one entity type.
type QueryInput struct {
	// IndexName is the optional GSI/LSI to query.
	IndexName string

	// KeyConditionExpression is the DynamoDB key condition. Key values are
	// matched as stored, so key fields must be given in tagged form.
	KeyConditionExpression string

	// FilterExpression is an optional filter (the entity filter is merged in).
	FilterExpression string

	// ExpressionAttributeNames maps expression attribute name placeholders.
	ExpressionAttributeNames map[string]string

	// ExpressionAttributeValues maps expression attribute value placeholders.
	ExpressionAttributeValues map[string]types.AttributeValue

	// IncludeRelated also returns the linked children whose relation resolves
	// through IndexName, attached to their parents.
	IncludeRelated bool

	// Limit is the maximum number of items evaluated per page (0 = no limit).
	Limit int32

	// ScanIndexForward determines sort order (true = ascending, false = descending).
	ScanIndexForward *bool

	// StartKey resumes a previous query.
	StartKey Item
}

// WithExpression copies the key condition, filter, names and values of expr.
func (q QueryInput) WithExpression(expr expression.Expression) QueryInput {
	if kc := expr.KeyCondition(); kc != nil {
		q.KeyConditionExpression = *kc
	}
	if f := expr.Filter(); f != nil {
		q.FilterExpression = *f
	}
	q.ExpressionAttributeNames = mergeExprNames(q.ExpressionAttributeNames, expr.Names())
	q.ExpressionAttributeValues = mergeExprValues(q.ExpressionAttributeValues, expr.Values())
	return q
}

// ScanInput defines parameters for scanning one entity type.
type ScanInput struct {
	// IndexName is the optional index to scan.
	IndexName string

	// FilterExpression is an optional filter (the entity filter is merged in).
	FilterExpression string

	// ExpressionAttributeNames maps expression attribute name placeholders.
	ExpressionAttributeNames map[string]string

	// ExpressionAttributeValues maps expression attribute value placeholders.
	ExpressionAttributeValues map[string]types.AttributeValue

	// Limit is the maximum number of items evaluated per page (0 = no limit).
	Limit int32

	// StartKey resumes a previous scan.
	StartKey Item
}

// WithExpression copies the filter, names and values of expr.
func (in ScanInput) WithExpression(expr expression.Expression) ScanInput {
	if f := expr.Filter(); f != nil {
		in.FilterExpression = *f
	}
	in.ExpressionAttributeNames = mergeExprNames(in.ExpressionAttributeNames, expr.Names())
	in.ExpressionAttributeValues = mergeExprValues(in.ExpressionAttributeValues, expr.Values())
	return in
}
