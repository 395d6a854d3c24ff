package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Reserved attribute names managed by the store.
const (
	AttrID         = "id"
	AttrCreatedAt  = "created_at"
	AttrUpdatedAt  = "updated_at"
	AttrCollection = "collection"
)

// DynamoAPI is the subset of *dynamodb.Client the store depends on.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Fields holds caller-supplied attributes for create and update.
type Fields map[string]any

// Record is a stored item together with its managed attributes.
type Record struct {
	// ID is the globally unique identifier.
	ID string

	// CreatedAt and UpdatedAt are unix nanoseconds.
	CreatedAt int64
	UpdatedAt int64

	// Collection is the collection tag.
	Collection string

	// Raw is the raw DynamoDB item.
	Raw map[string]types.AttributeValue
}

// Key returns the record's primary key.
func (r *Record) Key() PK {
	return PK{
		AttrID:        &types.AttributeValueMemberS{Value: r.ID},
		AttrCreatedAt: &types.AttributeValueMemberN{Value: strconv.FormatInt(r.CreatedAt, 10)},
	}
}

// String returns a string attribute, or "" if it is absent or not a string.
func (r *Record) String(name string) string {
	if v, ok := r.Raw[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// Unmarshal decodes the raw item into out using dynamodbav tags.
func (r *Record) Unmarshal(out any) error {
	return attributevalue.UnmarshalMap(r.Raw, out)
}

// unmarshalRecord converts a DynamoDB item to a Record.
func unmarshalRecord(raw map[string]types.AttributeValue) *Record {
	rec := &Record{Raw: raw}

	if v, ok := raw[AttrID].(*types.AttributeValueMemberS); ok {
		rec.ID = v.Value
	}
	if v, ok := raw[AttrCreatedAt].(*types.AttributeValueMemberN); ok {
		rec.CreatedAt, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := raw[AttrUpdatedAt].(*types.AttributeValueMemberN); ok {
		rec.UpdatedAt, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := raw[AttrCollection].(*types.AttributeValueMemberS); ok {
		rec.Collection = v.Value
	}

	return rec
}

func isReserved(name string) bool {
	return name == AttrID || name == AttrCreatedAt || name == AttrUpdatedAt || name == AttrCollection
}

// KeyValue is one attribute of an index lookup.
type KeyValue struct {
	Name  string
	Value any
}

// Index selects records by one attribute (hash) and an optional second
// attribute (range).
type Index struct {
	Hash  KeyValue
	Range *KeyValue
}

// By returns an index on a single attribute.
func By(name string, value any) Index {
	return Index{Hash: KeyValue{Name: name, Value: value}}
}

// And adds a range attribute to the index.
func (i Index) And(name string, value any) Index {
	i.Range = &KeyValue{Name: name, Value: value}
	return i
}

func (i Index) validate() error {
	if i.Hash.Name == "" || i.Hash.Value == nil {
		return fmt.Errorf("%w: index requires an attribute and a value", ErrValidation)
	}
	if i.Range != nil && (i.Range.Name == "" || i.Range.Value == nil) {
		return fmt.Errorf("%w: range key requires an attribute and a value", ErrValidation)
	}
	return nil
}

func (i Index) String() string {
	if i.Range == nil {
		return fmt.Sprintf("%s=%v", i.Hash.Name, i.Hash.Value)
	}
	return fmt.Sprintf("%s=%v,%s=%v", i.Hash.Name, i.Hash.Value, i.Range.Name, i.Range.Value)
}

// Order is the direction of an ordered scan over creation time.
type Order int

const (
	// NewestFirst scans from the most recently created record.
	NewestFirst Order = iota
	// OldestFirst scans in creation order.
	OldestFirst
)

// ScanOptions controls an ordered scan of a collection.
type ScanOptions struct {
	Order Order

	// Limit is the maximum number of records to return (0 = no limit).
	Limit int32

	// Cursor resumes a previous scan.
	Cursor string
}

// Page is one slice of an ordered scan.
type Page struct {
	Records []*Record

	// Cursor is set when more records may follow.
	Cursor string
}
