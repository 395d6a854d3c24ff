package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// cursorKey is the wire form of a collection index LastEvaluatedKey.
type cursorKey struct {
	Identifier    string `json:"identifier"`
	CreatedAt     int64  `json:"createdAt"`
	CollectionTag string `json:"collectionTag"`
}

// EncodeCursor serializes a LastEvaluatedKey from the collection index.
// A nil key encodes to "".
func EncodeCursor(lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	rec := unmarshalRecord(lastKey)
	if rec.ID == "" || rec.Collection == "" {
		return "", fmt.Errorf("encode cursor: last evaluated key is missing %s or %s", AttrID, AttrCollection)
	}
	data, err := json.Marshal(cursorKey{
		Identifier:    rec.ID,
		CreatedAt:     rec.CreatedAt,
		CollectionTag: rec.Collection,
	})
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeCursor reconstructs the ExclusiveStartKey for a collection scan.
// The cursor must belong to the given collection.
func DecodeCursor(cursor, collection string) (map[string]types.AttributeValue, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	var key cursorKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	if key.Identifier == "" {
		return nil, fmt.Errorf("%w: cursor has no identifier", ErrValidation)
	}
	if key.CollectionTag != collection {
		return nil, fmt.Errorf("%w: cursor belongs to collection %q", ErrValidation, key.CollectionTag)
	}
	return map[string]types.AttributeValue{
		AttrID:         &types.AttributeValueMemberS{Value: key.Identifier},
		AttrCreatedAt:  &types.AttributeValueMemberN{Value: strconv.FormatInt(key.CreatedAt, 10)},
		AttrCollection: &types.AttributeValueMemberS{Value: key.CollectionTag},
	}, nil
}
