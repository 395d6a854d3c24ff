// Package stream provides DynamoDB Streams handlers that reconcile lattice
// bookkeeping for items removed outside the store, such as by TTL.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/model"
	"github.com/jacentio/lattice/store"
)

// Identity DynamoDB stamps on stream records of TTL deletes.
const (
	ttlPrincipal    = "dynamodb.amazonaws.com"
	ttlIdentityType = "Service"
)

// Handler processes DynamoDB stream events for expired records.
type Handler struct {
	catalog *model.Catalog
	logger  *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(catalog *model.Catalog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		catalog: catalog,
		logger:  logger,
	}
}

// HandleExpired decrements counters and applies dependent rules for records
// DynamoDB removed by TTL. Other events are ignored.
//
// Records are processed in order. On the first failure processing stops and
// the failed record is reported as a batch item failure, so Lambda resumes
// from it and records already reconciled are not replayed. The event source
// mapping must enable ReportBatchItemFailures.
func (h *Handler) HandleExpired(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: record.Change.SequenceNumber,
			})
			return resp, nil
		}
	}
	return resp, nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "REMOVE" || !isTTLDelete(record) {
		return nil
	}

	image := record.Change.OldImage
	collection := getStringAttr(image, store.AttrCollection)
	id := getStringAttr(image, store.AttrID)
	if collection == "" || id == "" {
		h.logger.Warn("expired item has no lattice attributes",
			"eventID", record.EventID,
		)
		return nil
	}

	m, err := h.catalog.Model(collection)
	if errors.Is(err, model.ErrUnknownCollection) {
		h.logger.Debug("skipping expired item of unknown collection",
			"collection", collection,
			"id", id,
		)
		return nil
	}
	if err != nil {
		return err
	}
	if table := tableFromARN(record.EventSourceArn); table != "" && table != m.Collection().TableName() {
		h.logger.Debug("skipping expired item from another table",
			"collection", collection,
			"table", table,
		)
		return nil
	}

	h.logger.Info("reconciling expired record",
		"collection", collection,
		"id", id,
		"ttl", getNumberAttr(image, store.AttrTTL),
	)

	rec := store.RecordFromItem(ConvertStreamImage(image))
	err = m.Expire(ctx, rec)
	if errors.Is(err, store.ErrCounterUnderflow) {
		// Already reconciled by an earlier delivery.
		h.logger.Warn("counter already at zero",
			"collection", collection,
			"id", id,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("expire %s %s: %w", collection, id, err)
	}
	return nil
}

func isTTLDelete(record events.DynamoDBEventRecord) bool {
	identity := record.UserIdentity
	return identity != nil && identity.Type == ttlIdentityType && identity.PrincipalID == ttlPrincipal
}

// tableFromARN extracts the table name from a stream ARN of the form
// arn:aws:dynamodb:region:account:table/NAME/stream/LABEL.
func tableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	table, _, _ := strings.Cut(rest, "/")
	return table
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// ConvertStreamImage converts a DynamoDB stream image to SDK attribute values.
func ConvertStreamImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := convertValue(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertStreamImage(v.Map())}
	}
	return nil
}
