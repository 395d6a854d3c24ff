package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/internal/keys"
)

// Store provides DynamoDB operations shared by every collection.
type Store struct {
	client DynamoAPI
	config Config
}

// New creates a new Store instance.
func New(client DynamoAPI, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Config returns a copy of the store configuration.
func (s *Store) Config() Config {
	return s.config
}

// Collection returns the Base Actions for one logical collection stored in
// the given logical table.
func (s *Store) Collection(table, name string) *Collection {
	return &Collection{
		store: s,
		table: s.config.TableName(table),
		name:  name,
	}
}

func (s *Store) counterTable() string {
	return s.config.TableName(s.config.CounterTable)
}

// Collection is a logical record collection sharing a physical table with
// others, distinguished by its collection tag.
type Collection struct {
	store *Store
	table string
	name  string
}

// Name returns the collection tag.
func (c *Collection) Name() string {
	return c.name
}

// TableName returns the physical table name.
func (c *Collection) TableName() string {
	return c.table
}

// FullName returns the table-qualified collection name keying the counter.
func (c *Collection) FullName() string {
	return keys.FullCollectionName(c.table, c.name)
}

// Create writes a new record, then increments the collection counter.
// The two steps are not atomic: a counter failure leaves the record in place.
func (c *Collection) Create(ctx context.Context, fields Fields) (*Record, error) {
	item, err := marshalFields(fields)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	now := strconv.FormatInt(c.store.config.Clock().UnixNano(), 10)
	item[AttrID] = &types.AttributeValueMemberS{Value: c.store.config.NewID()}
	item[AttrCreatedAt] = &types.AttributeValueMemberN{Value: now}
	item[AttrUpdatedAt] = &types.AttributeValueMemberN{Value: now}
	item[AttrCollection] = &types.AttributeValueMemberS{Value: c.name}

	_, err = c.store.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": AttrID},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, adapterError("create", ErrAlreadyExists)
		}
		return nil, adapterError("create", err)
	}

	if err := c.IncreaseCounter(ctx, 1); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return unmarshalRecord(item), nil
}

// FindByIndex returns every record of the collection matching the index,
// following all result pages. No match yields an empty result, not an error.
//
// The "id" attribute resolves to the primary key, "collection" to the
// collection index, and anything else to "<hash>-index" or
// "<hash>-<range>-index". Results come back in ascending range order
// (creation time for single-attribute indexes).
func (c *Collection) FindByIndex(ctx context.Context, idx Index) ([]*Record, error) {
	input, err := c.indexQuery(idx)
	if err != nil {
		return nil, err
	}

	var records []*Record
	paginator := dynamodb.NewQueryPaginator(c.store.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, adapterError("find by index", err)
		}
		for _, raw := range page.Items {
			records = append(records, unmarshalRecord(raw))
		}
	}
	return records, nil
}

func (c *Collection) indexQuery(idx Index) (*dynamodb.QueryInput, error) {
	if err := idx.validate(); err != nil {
		return nil, err
	}

	hashValue, err := attributevalue.Marshal(idx.Hash.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s: %v", ErrValidation, idx.Hash.Name, err)
	}
	names := map[string]string{"#h": idx.Hash.Name}
	values := map[string]types.AttributeValue{":h": hashValue}
	condition := "#h = :h"

	rangeName := ""
	if idx.Range != nil {
		rangeValue, err := attributevalue.Marshal(idx.Range.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal %s: %v", ErrValidation, idx.Range.Name, err)
		}
		rangeName = idx.Range.Name
		names["#r"] = rangeName
		values[":r"] = rangeValue
		condition += " AND #r = :r"
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String(condition),
		ScanIndexForward:       aws.Bool(true),
	}

	switch {
	case idx.Hash.Name == AttrID:
		// primary key
	case idx.Hash.Name == AttrCollection && idx.Range == nil:
		input.IndexName = aws.String(c.store.config.CollectionIndex)
	default:
		input.IndexName = aws.String(keys.IndexName(idx.Hash.Name, rangeName))
	}

	// Tables are shared, so anything but the collection index needs the tag filter.
	if idx.Hash.Name != AttrCollection {
		names["#tag"] = AttrCollection
		values[":tag"] = &types.AttributeValueMemberS{Value: c.name}
		input.FilterExpression = aws.String("#tag = :tag")
	}

	input.ExpressionAttributeNames = names
	input.ExpressionAttributeValues = values
	return input, nil
}

// Take returns one page of the ordered scan over the collection index.
func (c *Collection) Take(ctx context.Context, opts ScanOptions) (*Page, error) {
	if opts.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrValidation, opts.Limit)
	}

	input := &dynamodb.QueryInput{
		TableName:                aws.String(c.table),
		IndexName:                aws.String(c.store.config.CollectionIndex),
		KeyConditionExpression:   aws.String("#tag = :tag"),
		ExpressionAttributeNames: map[string]string{"#tag": AttrCollection},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tag": &types.AttributeValueMemberS{Value: c.name},
		},
		ScanIndexForward: aws.Bool(opts.Order == OldestFirst),
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(opts.Limit)
	}
	if opts.Cursor != "" {
		startKey, err := DecodeCursor(opts.Cursor, c.name)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = startKey
	}

	result, err := c.store.client.Query(ctx, input)
	if err != nil {
		return nil, adapterError("scan", err)
	}

	page := &Page{Records: make([]*Record, 0, len(result.Items))}
	for _, raw := range result.Items {
		page.Records = append(page.Records, unmarshalRecord(raw))
	}
	page.Cursor, err = EncodeCursor(result.LastEvaluatedKey)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return page, nil
}

// All follows the ordered scan until it is exhausted or Limit records have
// been collected. The returned page carries a cursor only when Limit cut the
// scan short.
func (c *Collection) All(ctx context.Context, opts ScanOptions) (*Page, error) {
	all := &Page{}
	for {
		pageOpts := opts
		if opts.Limit > 0 {
			pageOpts.Limit = opts.Limit - int32(len(all.Records))
		}
		page, err := c.Take(ctx, pageOpts)
		if err != nil {
			return nil, err
		}
		all.Records = append(all.Records, page.Records...)

		if page.Cursor == "" {
			return all, nil
		}
		if opts.Limit > 0 && int32(len(all.Records)) >= opts.Limit {
			all.Cursor = page.Cursor
			return all, nil
		}
		opts.Cursor = page.Cursor
	}
}

// First returns the oldest record in the collection.
func (c *Collection) First(ctx context.Context) (*Record, error) {
	return c.one(ctx, OldestFirst)
}

// Last returns the most recently created record in the collection.
func (c *Collection) Last(ctx context.Context) (*Record, error) {
	return c.one(ctx, NewestFirst)
}

func (c *Collection) one(ctx context.Context, order Order) (*Record, error) {
	page, err := c.Take(ctx, ScanOptions{Order: order, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, ErrNotFound
	}
	return page.Records[0], nil
}

// Update rewrites the supplied attributes of the single record matching the
// index, refreshing updated_at, and returns the new image.
func (c *Collection) Update(ctx context.Context, idx Index, fields Fields) (*Record, error) {
	item, err := marshalFields(fields)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if len(item) == 0 {
		return nil, fmt.Errorf("update: %w: no fields to update", ErrValidation)
	}

	records, err := c.FindByIndex(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	switch len(records) {
	case 0:
		return nil, ErrNotFound
	case 1:
	default:
		return nil, fmt.Errorf("update %s: %w", idx, ErrMultipleRecords)
	}
	rec := records[0]

	exprNames := map[string]string{
		"#id":         AttrID,
		"#updated_at": AttrUpdatedAt,
	}
	exprValues := map[string]types.AttributeValue{
		":updated_at": &types.AttributeValueMemberN{
			Value: strconv.FormatInt(c.store.config.Clock().UnixNano(), 10),
		},
	}

	attrs := make([]string, 0, len(item))
	for k := range item {
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)

	setClauses := make([]string, 0, len(attrs)+1)
	for i, k := range attrs {
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = k
		exprValues[valueKey] = item[k]
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}
	setClauses = append(setClauses, "#updated_at = :updated_at")

	result, err := c.store.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.table),
		Key:                       rec.Key(),
		UpdateExpression:          aws.String("SET " + strings.Join(setClauses, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// Removed between the lookup and the write.
			return nil, ErrNotFound
		}
		return nil, adapterError("update", err)
	}
	return unmarshalRecord(result.Attributes), nil
}

// Destroy deletes every record matching the index in one batch and
// decrements the counter by the number removed. It returns the first
// removed record.
func (c *Collection) Destroy(ctx context.Context, idx Index) (*Record, error) {
	records, err := c.FindByIndex(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("destroy: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	if _, err := c.DestroyRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("destroy: %w", err)
	}
	return records[0], nil
}

// DestroyRecords batch-deletes the given records by primary key and
// decrements the counter by the number actually removed. Unprocessed
// requests are reported as ErrUnprocessedItems and never retried.
func (c *Collection) DestroyRecords(ctx context.Context, records []*Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	requests := make([]types.WriteRequest, 0, len(records))
	for _, rec := range records {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: rec.Key()},
		})
	}

	removed := 0
	var batchErr error
	batchSize := c.store.config.BatchSize
	for i := 0; i < len(requests); i += batchSize {
		end := i + batchSize
		if end > len(requests) {
			end = len(requests)
		}
		chunk := requests[i:end]

		result, err := c.store.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{c.table: chunk},
		})
		if err != nil {
			batchErr = adapterError("batch write", err)
			break
		}
		unprocessed := len(result.UnprocessedItems[c.table])
		removed += len(chunk) - unprocessed
		if unprocessed > 0 {
			batchErr = adapterError("batch write", fmt.Errorf("%w: %d of %d requests", ErrUnprocessedItems, unprocessed, len(chunk)))
			break
		}
	}

	if err := c.DecreaseCounter(ctx, removed); err != nil {
		return removed, errors.Join(batchErr, err)
	}
	return removed, batchErr
}

// marshalFields converts caller fields to an item, rejecting reserved names.
func marshalFields(fields Fields) (map[string]types.AttributeValue, error) {
	for k := range fields {
		if k == "" {
			return nil, fmt.Errorf("%w: empty attribute name", ErrValidation)
		}
		if isReserved(k) {
			return nil, fmt.Errorf("%w: %q is managed by the store", ErrValidation, k)
		}
	}
	if fields == nil {
		return map[string]types.AttributeValue{}, nil
	}
	item, err := attributevalue.MarshalMap(map[string]any(fields))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal fields: %v", ErrValidation, err)
	}
	return item, nil
}
