package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AttrTTL is the attribute the table's DynamoDB TTL is configured on.
// Callers opt a record into expiry by setting it (epoch seconds) on create.
const AttrTTL = "ttl"

// ExpiresAt returns the TTL of an item in epoch seconds, or 0 if it has none.
func ExpiresAt(item map[string]types.AttributeValue) int64 {
	ttlAttr, exists := item[AttrTTL]
	if !exists {
		return 0
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return 0
	}
	return ttl
}

// IsExpired reports whether an item's TTL is at or before now.
func IsExpired(item map[string]types.AttributeValue, now time.Time) bool {
	ttl := ExpiresAt(item)
	return ttl > 0 && ttl <= now.Unix()
}

// RecordFromItem converts a raw item, e.g. a stream image, into a Record.
func RecordFromItem(item map[string]types.AttributeValue) *Record {
	return unmarshalRecord(item)
}
