package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/internal/keys"
)

// AttrCount is the numeric attribute of a counter row.
const AttrCount = "count"

// counterKey returns the counter row key for this collection.
func (c *Collection) counterKey() PK {
	return PK{
		AttrID: &types.AttributeValueMemberS{Value: keys.CounterKey(c.FullName())},
	}
}

// IncreaseCounter atomically adds step to the collection counter.
func (c *Collection) IncreaseCounter(ctx context.Context, step int) error {
	if step < 0 {
		return fmt.Errorf("%w: negative counter step %d", ErrValidation, step)
	}
	if step == 0 {
		return nil
	}
	_, err := c.store.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.store.counterTable()),
		Key:                      c.counterKey(),
		UpdateExpression:         aws.String("ADD #count :step"),
		ExpressionAttributeNames: map[string]string{"#count": AttrCount},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":step": &types.AttributeValueMemberN{Value: strconv.Itoa(step)},
		},
	})
	return adapterError("increase counter", err)
}

// DecreaseCounter atomically subtracts step from the collection counter.
// The add is conditional so the counter never goes below zero.
func (c *Collection) DecreaseCounter(ctx context.Context, step int) error {
	if step < 0 {
		return fmt.Errorf("%w: negative counter step %d", ErrValidation, step)
	}
	if step == 0 {
		return nil
	}
	_, err := c.store.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.store.counterTable()),
		Key:                      c.counterKey(),
		UpdateExpression:         aws.String("ADD #count :delta"),
		ConditionExpression:      aws.String("#count >= :step"),
		ExpressionAttributeNames: map[string]string{"#count": AttrCount},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(-step)},
			":step":  &types.AttributeValueMemberN{Value: strconv.Itoa(step)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return adapterError("decrease counter", ErrCounterUnderflow)
		}
		return adapterError("decrease counter", err)
	}
	return nil
}

// Count returns the number of live records in the collection.
func (c *Collection) Count(ctx context.Context) (int64, error) {
	result, err := c.store.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.store.counterTable()),
		Key:            c.counterKey(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, adapterError("count", err)
	}
	if result.Item == nil {
		return 0, nil
	}
	v, ok := result.Item[AttrCount].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("count: parse %q: %w", v.Value, err)
	}
	return n, nil
}
