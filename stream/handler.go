// Package stream decodes DynamoDB Streams records of a store table into typed
// entity instances.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/espalier/model"
	"github.com/jacentio/espalier/store"
)

// Stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// Change is one decoded stream record. Old is nil for inserts and New is nil
// for removals, or when the stream view type omits the image.
type Change struct {
	EventID   string
	EventName string
	Entity    string
	At        time.Time
	Keys      store.Item
	Old       *model.Instance
	New       *model.Instance
}

// ChangeFunc receives decoded changes. A returned error stops the batch.
type ChangeFunc func(ctx context.Context, change Change) error

// Decoder builds instances from stored items; *store.Store implements it.
type Decoder interface {
	FromStoreRecord(item store.Item) (*model.Instance, error)
}

// Handler processes DynamoDB stream events of a store table.
type Handler struct {
	decoder Decoder
	fn      ChangeFunc
	logger  *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(decoder Decoder, fn ChangeFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		decoder: decoder,
		fn:      fn,
		logger:  logger,
	}
}

// HandleChanges decodes every record of event and passes it to the handler's
// ChangeFunc. Records of untagged or unregistered entity types are skipped.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for i := range event.Records {
		record := &event.Records[i]
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord decodes and dispatches a single stream record.
func (h *Handler) processRecord(ctx context.Context, record *events.DynamoDBEventRecord) error {
	switch record.EventName {
	case EventInsert, EventModify, EventRemove:
	default:
		return nil
	}

	entity := getStringAttr(record.Change.NewImage, store.EntityAttribute)
	if entity == "" {
		entity = getStringAttr(record.Change.OldImage, store.EntityAttribute)
	}
	if entity == "" {
		h.logger.Warn("skipping untagged record",
			"eventID", record.EventID,
		)
		return nil
	}

	old, err := h.decode(record.Change.OldImage)
	if err != nil {
		return h.decodeFailed(record, entity, err)
	}
	cur, err := h.decode(record.Change.NewImage)
	if err != nil {
		return h.decodeFailed(record, entity, err)
	}

	h.logger.Debug("decoded change",
		"eventID", record.EventID,
		"event", record.EventName,
		"entity", entity,
	)
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, Change{
		EventID:   record.EventID,
		EventName: record.EventName,
		Entity:    entity,
		At:        record.Change.ApproximateCreationDateTime.Time,
		Keys:      ConvertStreamKey(record.Change.Keys),
		Old:       old,
		New:       cur,
	})
}

// decodeFailed skips records of unregistered types and reports anything else.
func (h *Handler) decodeFailed(record *events.DynamoDBEventRecord, entity string, err error) error {
	if errors.Is(err, model.ErrUnknownEntity) {
		h.logger.Warn("skipping record of unknown entity",
			"eventID", record.EventID,
			"entity", entity,
		)
		return nil
	}
	return fmt.Errorf("decode %s record: %w", entity, err)
}

func (h *Handler) decode(image map[string]events.DynamoDBAttributeValue) (*model.Instance, error) {
	if len(image) == 0 {
		return nil, nil
	}
	return h.decoder.FromStoreRecord(ConvertImage(image))
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
