package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-openapi/strfmt"

	"github.com/jacentio/espalier/internal/keytag"
	"github.com/jacentio/espalier/model"
)

// ErrNoKeyCondition is returned by Query when no key condition is given.
var ErrNoKeyCondition = errors.New("espalier: query requires a key condition")

// Store maps entity instances to records of one shared DynamoDB table.
type Store struct {
	client   Client
	config   Config
	catalog  *model.Catalog
	registry *Registry
	mu       sync.RWMutex
	metrics  *storeMetrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Store. The given types and their relation children are
// registered for reading; more can be added with Register.
func New(client Client, config Config, entities ...*model.Descriptor) (*Store, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	catalog, err := model.NewCatalog()
	if err != nil {
		return nil, err
	}
	s := &Store{
		client:   client,
		config:   config,
		catalog:  catalog,
		registry: NewRegistry(),
		metrics:  newStoreMetrics(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	if err := s.Register(entities...); err != nil {
		return nil, err
	}
	return s, nil
}

// SetLogger sets the logger for write and hydration diagnostics.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Register adds entity types (and their relation children) to the store's
// catalog and relationship registry.
func (s *Store) Register(entities ...*model.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range entities {
		if err := s.catalog.Register(d); err != nil {
			return err
		}
		s.registry.RegisterEntity(d)
	}
	return nil
}

// Catalog returns the catalog used to dispatch stored records to types.
func (s *Store) Catalog() *model.Catalog {
	return s.catalog
}

// Registry returns the linked relationships of the registered types.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.config
}

func (s *Store) ensure(d *model.Descriptor) error {
	if known, ok := s.catalog.Lookup(d.Name()); ok && known == d {
		return nil
	}
	return s.Register(d)
}

func requireKeys(d *model.Descriptor) error {
	if d.PrimaryKey() == "" || d.SecondaryKey() == "" {
		return &KeysError{Entity: d.Name()}
	}
	return nil
}

// Create writes the instance and every assigned linked child as one
// transaction. An existing record with the same key is overwritten field by
// field: attributes absent from the instance are kept, timestamps are reset.
// On success the instance holds the written values.
func (s *Store) Create(ctx context.Context, inst *model.Instance) error {
	return s.write(ctx, inst, false)
}

// Update is Create for a record that must already exist; a missing parent
// record fails with a *NotFoundError and nothing is written. The creation
// timestamp of an existing record is kept.
func (s *Store) Update(ctx context.Context, inst *model.Instance) error {
	return s.write(ctx, inst, true)
}

// pendingWrite is one instance of a cascading write.
type pendingWrite struct {
	inst   *model.Instance
	record model.Record
	update *types.Update
	// parentRef is the back reference applied once the write succeeded.
	parentRef parentRef
}

// parentRef names the property a child exposes its parent's tagged key under.
type parentRef struct {
	property string
	key      string
}

func (s *Store) write(ctx context.Context, inst *model.Instance, mustExist bool) (err error) {
	d := inst.Entity()
	op := "create"
	if mustExist {
		op = "update"
	}
	start := time.Now()
	defer func() { s.metrics.observe(op, d.Name(), start, err) }()

	if err := s.ensure(d); err != nil {
		return err
	}

	now := strfmt.DateTime(s.now().UTC()).String()
	var writes []pendingWrite
	if err := s.collect(inst, now, mustExist, nil, parentRef{}, &writes); err != nil {
		return err
	}
	if len(writes) > s.config.MaxTransactItems {
		return fmt.Errorf("%w: %d items (max %d)", ErrTooManyItems, len(writes), s.config.MaxTransactItems)
	}

	items := make([]types.TransactWriteItem, len(writes))
	for i, w := range writes {
		items[i] = types.TransactWriteItem{Update: w.update}
	}
	s.metrics.transaction(d.Name(), len(items))
	s.logger.Debug("writing entity",
		"op", op,
		"entity", d.Name(),
		"items", len(items),
	)

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		err = s.mapWriteError(err, inst, mustExist)
		s.logger.Warn("write failed",
			"op", op,
			"entity", d.Name(),
			"error", err,
		)
		return err
	}

	var errs []error
	for _, w := range writes {
		if err := w.inst.Reset(w.record); err != nil {
			errs = append(errs, err)
		}
		w.inst.SetParentRef(w.parentRef.property, w.parentRef.key)
	}
	return errors.Join(errs...)
}

// collect validates inst and appends its update followed by those of its
// linked children. link holds the foreign key set by the parent, stored even
// when inst does not declare it. Instances are left untouched; foreign keys
// and parent references reach them through the rehydration after the
// transaction succeeded.
func (s *Store) collect(inst *model.Instance, now string, mustExist bool, link model.Record, ref parentRef, writes *[]pendingWrite) error {
	d := inst.Entity()
	if err := requireKeys(d); err != nil {
		return err
	}
	for _, field := range []string{d.PrimaryKey(), d.SecondaryKey()} {
		if inst.Get(field) == nil {
			return &model.RequiredFieldError{Entity: d.Name(), Field: field}
		}
	}

	record, err := inst.Storable()
	if err != nil {
		return err
	}
	for k, v := range link {
		record[k] = v
	}
	rehydrate := s.stamp(d, record, now, mustExist)

	update, err := s.updateFor(d, record, now, mustExist)
	if err != nil {
		return err
	}
	*writes = append(*writes, pendingWrite{inst: inst, record: rehydrate, update: update, parentRef: ref})

	parentKey := s.tag(d, inst.Get(d.PrimaryKey()))
	for _, rel := range d.LinkedRelations() {
		var fk model.Record
		var childRef parentRef
		if rel.ForeignKey != "" {
			fk = model.Record{rel.ForeignKey: parentKey}
			childRef = parentRef{property: rel.ParentProperty, key: parentKey}
		}
		for _, child := range inst.Linked(rel) {
			if err := s.collect(child, now, false, fk, childRef, writes); err != nil {
				return err
			}
		}
	}
	return nil
}

// stamp sets the timestamps of record and returns the values the instance
// holds after a successful write.
func (s *Store) stamp(d *model.Descriptor, record model.Record, now string, mustExist bool) model.Record {
	if k := d.UpdatedAtKey(); k != "" {
		record[k] = now
	}
	rehydrate := make(model.Record, len(record))
	for k, v := range record {
		rehydrate[k] = v
	}
	if k := d.CreatedAtKey(); k != "" && !mustExist {
		record[k] = now
		rehydrate[k] = now
	}
	return rehydrate
}

// updateFor builds the upsert of one record. Updates of an existing record
// are conditioned on the record's presence and keep its creation timestamp.
func (s *Store) updateFor(d *model.Descriptor, record model.Record, now string, mustExist bool) (*types.Update, error) {
	stored := s.toStored(d, record)
	key, err := s.keyItem(d, stored[d.PrimaryKey()], stored[d.SecondaryKey()])
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(stored))
	for name := range stored {
		if !d.IsKey(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var update expression.UpdateBuilder
	createdAt := d.CreatedAtKey()
	for _, name := range names {
		value := expression.Value(stored[name])
		if mustExist && name == createdAt {
			update = update.Set(expression.Name(name), expression.Name(name).IfNotExists(value))
			continue
		}
		update = update.Set(expression.Name(name), value)
	}
	if _, ok := stored[createdAt]; mustExist && createdAt != "" && !ok {
		update = update.Set(expression.Name(createdAt), expression.Name(createdAt).IfNotExists(expression.Value(now)))
	}

	builder := expression.NewBuilder().WithUpdate(update)
	if mustExist {
		builder = builder.WithCondition(expression.AttributeExists(expression.Name(d.PrimaryKey())))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build update for %s: %w", d.Name(), err)
	}

	return &types.Update{
		TableName:                 aws.String(s.config.TableName),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// Get retrieves a record by its raw key. A missing record returns (nil, nil).
func (s *Store) Get(ctx context.Context, d *model.Descriptor, key Key) (inst *model.Instance, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("get", d.Name(), start, err) }()

	if err := s.ensure(d); err != nil {
		return nil, err
	}
	k, err := s.keyOf(d, key)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.TableName),
		Key:            k,
		ConsistentRead: aws.Bool(s.config.ConsistentRead),
	})
	if err != nil {
		return nil, err
	}
	if len(result.Item) == 0 {
		return nil, nil
	}
	return s.hydrate(result.Item)
}

// Delete removes a record by its raw key and returns its last state. A
// missing record fails with a *NotFoundError. Linked children are not deleted.
func (s *Store) Delete(ctx context.Context, d *model.Descriptor, key Key) (inst *model.Instance, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("delete", d.Name(), start, err) }()

	if err := s.ensure(d); err != nil {
		return nil, err
	}
	k, err := s.keyOf(d, key)
	if err != nil {
		return nil, err
	}

	result, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.config.TableName),
		Key:          k,
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Attributes) == 0 {
		return nil, &NotFoundError{Entity: d.Name(), Key: key}
	}
	return s.hydrate(result.Attributes)
}

// Query returns a cursor over records of d matching the key condition. The
// first page is fetched before Query returns. With IncludeRelated, linked
// children resolved through the queried index are returned attached to
// their parents.
func (s *Store) Query(ctx context.Context, d *model.Descriptor, input QueryInput) (*Cursor, error) {
	if err := s.ensure(d); err != nil {
		return nil, err
	}
	if input.KeyConditionExpression == "" {
		return nil, ErrNoKeyCondition
	}

	entities := []string{d.Name()}
	var related []Relationship
	if input.IncludeRelated {
		s.mu.RLock()
		if s.registry.HasChildren(d.Name()) {
			related = s.registry.ViaIndex(d.Name(), input.IndexName)
		}
		s.mu.RUnlock()
		if len(related) == 0 {
			s.logger.Debug("no linked relations resolved through index",
				"entity", d.Name(),
				"index", input.IndexName,
			)
		}
		for _, rel := range related {
			entities = appendUnique(entities, rel.ChildType)
		}
	}
	filter, names, values := EntityFilter(entities...)

	base := dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		KeyConditionExpression:    aws.String(input.KeyConditionExpression),
		FilterExpression:          aws.String(mergeFilter(input.FilterExpression, filter)),
		ExpressionAttributeNames:  mergeExprNames(input.ExpressionAttributeNames, names),
		ExpressionAttributeValues: mergeExprValues(input.ExpressionAttributeValues, values),
	}
	if input.IndexName != "" {
		base.IndexName = aws.String(input.IndexName)
	} else if s.config.ConsistentRead {
		base.ConsistentRead = aws.Bool(true)
	}
	if input.Limit > 0 {
		base.Limit = aws.Int32(input.Limit)
	}
	if input.ScanIndexForward != nil {
		base.ScanIndexForward = input.ScanIndexForward
	}

	fetch := func(ctx context.Context, startKey Item) (page Page, err error) {
		start := time.Now()
		defer func() { s.metrics.observe("query", d.Name(), start, err) }()

		params := base
		params.ExclusiveStartKey = startKey
		result, err := s.client.Query(ctx, &params)
		if err != nil {
			return Page{}, err
		}
		items, err := s.hydrateAll(result.Items)
		if err != nil {
			return Page{}, err
		}
		if len(related) > 0 {
			items = s.attachRelated(d, related, items)
		}
		return Page{Items: items, LastKey: result.LastEvaluatedKey}, nil
	}

	c := NewCursor(fetch, input.StartKey)
	if err := c.Next(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Scan returns a cursor over all records of d. The first page is fetched
// before Scan returns.
func (s *Store) Scan(ctx context.Context, d *model.Descriptor, input ScanInput) (*Cursor, error) {
	if err := s.ensure(d); err != nil {
		return nil, err
	}
	filter, names, values := EntityFilter(d.Name())

	base := dynamodb.ScanInput{
		TableName:                 aws.String(s.config.TableName),
		FilterExpression:          aws.String(mergeFilter(input.FilterExpression, filter)),
		ExpressionAttributeNames:  mergeExprNames(input.ExpressionAttributeNames, names),
		ExpressionAttributeValues: mergeExprValues(input.ExpressionAttributeValues, values),
	}
	if input.IndexName != "" {
		base.IndexName = aws.String(input.IndexName)
	} else if s.config.ConsistentRead {
		base.ConsistentRead = aws.Bool(true)
	}
	if input.Limit > 0 {
		base.Limit = aws.Int32(input.Limit)
	}

	fetch := func(ctx context.Context, startKey Item) (page Page, err error) {
		start := time.Now()
		defer func() { s.metrics.observe("scan", d.Name(), start, err) }()

		params := base
		params.ExclusiveStartKey = startKey
		result, err := s.client.Scan(ctx, &params)
		if err != nil {
			return Page{}, err
		}
		items, err := s.hydrateAll(result.Items)
		if err != nil {
			return Page{}, err
		}
		return Page{Items: items, LastKey: result.LastEvaluatedKey}, nil
	}

	c := NewCursor(fetch, input.StartKey)
	if err := c.Next(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ToStoreRecord validates inst and returns the item it is stored as: key
// fields tagged with the entity name and the entity attribute set.
func (s *Store) ToStoreRecord(inst *model.Instance) (Item, error) {
	d := inst.Entity()
	if err := requireKeys(d); err != nil {
		return nil, err
	}
	record, err := inst.Storable()
	if err != nil {
		return nil, err
	}
	return attributevalue.MarshalMap(s.toStored(d, record))
}

// FromStoreRecord builds an instance of the type named by the item's entity
// attribute, with key fields untagged.
func (s *Store) FromStoreRecord(item Item) (*model.Instance, error) {
	return s.hydrate(item)
}

// Tag returns the stored form of a raw key value of d.
func (s *Store) Tag(d *model.Descriptor, raw any) string {
	return s.tag(d, raw)
}

func (s *Store) tag(d *model.Descriptor, raw any) string {
	return keytag.Tag(d.Name(), s.config.TagDelimiter, raw)
}

func (s *Store) toStored(d *model.Descriptor, record model.Record) model.Record {
	stored := make(model.Record, len(record)+1)
	for k, v := range record {
		stored[k] = v
	}
	for _, k := range []string{d.PrimaryKey(), d.SecondaryKey()} {
		if v, ok := stored[k]; ok && v != nil {
			stored[k] = s.tag(d, v)
		}
	}
	stored[EntityAttribute] = d.Name()
	return stored
}

func (s *Store) keyOf(d *model.Descriptor, key Key) (Item, error) {
	if err := requireKeys(d); err != nil {
		return nil, err
	}
	if key.PK == nil {
		return nil, &model.RequiredFieldError{Entity: d.Name(), Field: d.PrimaryKey()}
	}
	if key.SK == nil {
		return nil, &model.RequiredFieldError{Entity: d.Name(), Field: d.SecondaryKey()}
	}
	return s.keyItem(d, s.tag(d, key.PK), s.tag(d, key.SK))
}

func (s *Store) keyItem(d *model.Descriptor, pk, sk any) (Item, error) {
	pkAttr, err := attributevalue.Marshal(pk)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	skAttr, err := attributevalue.Marshal(sk)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return Item{
		d.PrimaryKey():   pkAttr,
		d.SecondaryKey(): skAttr,
	}, nil
}

func (s *Store) hydrate(item Item) (*model.Instance, error) {
	var record model.Record
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	normalizeNumbers(record)

	d, err := s.catalog.Resolve(record)
	if err != nil {
		return nil, err
	}
	delete(record, EntityAttribute)
	for _, k := range []string{d.PrimaryKey(), d.SecondaryKey()} {
		if v, ok := record[k].(string); ok && k != "" {
			record[k], _ = keytag.Strip(d.Name(), s.config.TagDelimiter, v)
		}
	}

	return model.Restore(d, record), nil
}

func (s *Store) hydrateAll(items []Item) ([]*model.Instance, error) {
	out := make([]*model.Instance, 0, len(items))
	for _, item := range items {
		inst, err := s.hydrate(item)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// attachRelated moves children whose foreign key names a parent of the same
// page onto that parent. Children without a parent in the page stay top-level.
func (s *Store) attachRelated(d *model.Descriptor, related []Relationship, items []*model.Instance) []*model.Instance {
	parents := make(map[string]*model.Instance)
	for _, inst := range items {
		if inst.Entity().Name() == d.Name() {
			parents[s.tag(d, inst.Get(d.PrimaryKey()))] = inst
		}
	}

	out := make([]*model.Instance, 0, len(items))
	for _, inst := range items {
		if inst.Entity().Name() == d.Name() || !s.attach(inst, parents, related) {
			out = append(out, inst)
		}
	}
	return out
}

func (s *Store) attach(child *model.Instance, parents map[string]*model.Instance, related []Relationship) bool {
	for _, rel := range related {
		if child.Entity().Name() != rel.ChildType {
			continue
		}
		fk, _ := child.Get(rel.ForeignKey).(string)
		parent, ok := parents[fk]
		if !ok {
			continue
		}
		var err error
		if rel.Many {
			err = parent.Add(rel.Field, child)
		} else {
			err = parent.Set(rel.Field, child)
		}
		if err != nil {
			s.logger.Warn("failed to attach related record",
				"parent", fk,
				"field", rel.Field,
				"error", err,
			)
			return false
		}
		child.SetParentRef(rel.ParentProperty, fk)
		return true
	}
	return false
}

// mapWriteError maps a cancelled transaction whose first item (the parent
// update) failed its presence condition to a *NotFoundError.
func (s *Store) mapWriteError(err error, inst *model.Instance, mustExist bool) error {
	var txErr *types.TransactionCanceledException
	if !mustExist || !errors.As(err, &txErr) {
		return err
	}
	if len(txErr.CancellationReasons) > 0 {
		reason := txErr.CancellationReasons[0]
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			d := inst.Entity()
			return &NotFoundError{
				Entity: d.Name(),
				Key:    Key{PK: inst.Get(d.PrimaryKey()), SK: inst.Get(d.SecondaryKey())},
			}
		}
	}
	return err
}

// normalizeNumbers turns integral float64 values decoded from number
// attributes into int64, recursively.
func normalizeNumbers(record map[string]any) {
	for k, v := range record {
		record[k] = normalizeNumber(v)
	}
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
	case map[string]any:
		normalizeNumbers(n)
	case []any:
		for i := range n {
			n[i] = normalizeNumber(n[i])
		}
	}
	return v
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
