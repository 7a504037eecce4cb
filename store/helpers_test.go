package store_test

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/model"
	"github.com/jacentio/espalier/store"
	"github.com/jacentio/espalier/validate"
)

// --- Test Entity Types ---

var (
	Address = model.Define("Address").
		Field("street", validate.String().Required()).
		Field("city").
		MustBuild()

	Post = model.Define("Post").
		PrimaryKey("id").
		SecondaryKey("sk").
		CreatedAt("createdAt").
		UpdatedAt("updatedAt").
		Field("title", validate.String().Required()).
		Field("views", validate.Int()).
		Field("userId").
		MustBuild()

	User = model.Define("User").
		PrimaryKey("id").
		SecondaryKey("sk").
		CreatedAt("createdAt").
		UpdatedAt("updatedAt").
		Field("email", validate.String().Required()).
		Field("name").
		HasOne("address", Address, model.RelationOptions{Nested: true}).
		HasMany("posts", Post, model.RelationOptions{
			ForeignKey:     "userId",
			IndexName:      "byUser",
			ParentProperty: "author",
		}).
		MustBuild()

	// Note has no keys and cannot be stored.
	Note = model.Define("Note").
		Field("text").
		MustBuild()
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newUser(t *testing.T, id string) *model.Instance {
	t.Helper()
	u, err := model.NewFrom(User, model.Record{
		"id":    id,
		"sk":    "profile",
		"email": id + "@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return u
}

func newStore(t *testing.T, client store.Client) *store.Store {
	t.Helper()
	s, err := store.New(client, store.DefaultConfig("app"), User)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.SetClock(s, func() time.Time { return fixedNow })
	return s
}

// --- In-memory Client ---

var (
	setClause     = regexp.MustCompile(`^(#\w+)\s*=\s*(?:if_not_exists\s*\(\s*(#\w+)\s*,\s*(:\w+)\s*\)|(:\w+))$`)
	existsClause  = regexp.MustCompile(`^attribute_exists\s*\(\s*(#\w+)\s*\)$`)
	errNoSupport  = fmt.Errorf("memClient: unsupported expression")
	errTransport  = fmt.Errorf("memClient: connection reset")
	conditionFail = "ConditionalCheckFailed"
)

// memClient is a single in-memory table. Writes apply the update and
// condition expressions produced by the store; Query and Scan replay
// scripted pages and record their inputs.
type memClient struct {
	mu    sync.Mutex
	items map[string]store.Item
	err   error

	transactions []*dynamodb.TransactWriteItemsInput
	gets         []*dynamodb.GetItemInput

	queryPages []*dynamodb.QueryOutput
	queries    []*dynamodb.QueryInput
	scanPages  []*dynamodb.ScanOutput
	scans      []*dynamodb.ScanInput
}

func newMemClient() *memClient {
	return &memClient{items: make(map[string]store.Item)}
}

func keyString(key store.Item) string {
	names := make([]string, 0, len(key))
	for k := range key {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + attrString(key[k])
	}
	return strings.Join(parts, "|")
}

func attrString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c *memClient) put(item store.Item, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := store.Item{}
	for _, k := range keys {
		key[k] = item[k]
	}
	c.items[keyString(key)] = item
}

func (c *memClient) item(key store.Item) store.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[keyString(key)]
}

func (c *memClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets = append(c.gets, in)
	if c.err != nil {
		return nil, c.err
	}
	return &dynamodb.GetItemOutput{Item: c.items[keyString(in.Key)]}, nil
}

func (c *memClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	k := keyString(in.Key)
	old := c.items[k]
	delete(c.items, k)
	out := &dynamodb.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

func (c *memClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, in)
	if c.err != nil {
		return nil, c.err
	}
	n := len(c.queries) - 1
	if n >= len(c.queryPages) {
		return &dynamodb.QueryOutput{}, nil
	}
	return c.queryPages[n], nil
}

func (c *memClient) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans = append(c.scans, in)
	if c.err != nil {
		return nil, c.err
	}
	n := len(c.scans) - 1
	if n >= len(c.scanPages) {
		return &dynamodb.ScanOutput{}, nil
	}
	return c.scanPages[n], nil
}

func (c *memClient) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions = append(c.transactions, in)
	if c.err != nil {
		return nil, c.err
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if ti.Update == nil {
			return nil, errNoSupport
		}
		ok, err := c.conditionHolds(ti.Update)
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons[i].Code = aws.String(conditionFail)
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		if err := c.apply(ti.Update); err != nil {
			return nil, err
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (c *memClient) conditionHolds(u *types.Update) (bool, error) {
	if u.ConditionExpression == nil {
		return true, nil
	}
	m := existsClause.FindStringSubmatch(strings.TrimSpace(*u.ConditionExpression))
	if m == nil {
		return false, errNoSupport
	}
	existing, ok := c.items[keyString(u.Key)]
	if !ok {
		return false, nil
	}
	_, ok = existing[u.ExpressionAttributeNames[m[1]]]
	return ok, nil
}

func (c *memClient) apply(u *types.Update) error {
	k := keyString(u.Key)
	item := store.Item{}
	for name, v := range c.items[k] {
		item[name] = v
	}
	for name, v := range u.Key {
		item[name] = v
	}

	expr := strings.TrimSpace(*u.UpdateExpression)
	if !strings.HasPrefix(expr, "SET") {
		return errNoSupport
	}
	for _, clause := range splitTopLevel(strings.TrimSpace(strings.TrimPrefix(expr, "SET"))) {
		m := setClause.FindStringSubmatch(clause)
		if m == nil {
			return errNoSupport
		}
		name := u.ExpressionAttributeNames[m[1]]
		if m[4] != "" {
			item[name] = u.ExpressionAttributeValues[m[4]]
			continue
		}
		if _, exists := item[u.ExpressionAttributeNames[m[2]]]; !exists {
			item[name] = u.ExpressionAttributeValues[m[3]]
		}
	}
	c.items[k] = item
	return nil
}

// splitTopLevel splits a SET clause list on commas outside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func sAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func tableKey(pk, sk string) store.Item {
	return store.Item{"id": sAttr(pk), "sk": sAttr(sk)}
}

func stringAttr(item store.Item, name string) string {
	v, _ := item[name].(*types.AttributeValueMemberS)
	if v == nil {
		return ""
	}
	return v.Value
}
