// Package ddbtest provides an in-memory DynamoDB client for unit tests.
//
// It understands the subset of the DynamoDB API lattice issues: key
// conditions of the form "#h = :h [AND #r = :r]", single-section SET and ADD
// update expressions, and condition/filter expressions built from
// attribute_exists, attribute_not_exists and comparisons joined by AND/OR.
package ddbtest

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

type keySchema struct {
	hash  string
	rng   string
	index string
}

type table struct {
	key     keySchema
	indexes map[string]keySchema
	items   map[string]item
}

// Client is an in-memory stand-in for *dynamodb.Client.
type Client struct {
	mu     sync.Mutex
	tables map[string]*table
	calls  map[string]int

	// FailHook is consulted before every call; a non-nil error fails it.
	FailHook func(op, table string) error

	// Unprocessed returns how many requests of a BatchWriteItem chunk for
	// the table to report as unprocessed. Those requests are not applied.
	Unprocessed func(table string, requests int) int
}

// New returns an empty client.
func New() *Client {
	return &Client{
		tables: make(map[string]*table),
		calls:  make(map[string]int),
	}
}

// Calls returns how many times op has been invoked.
func (c *Client) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Items returns a snapshot of every item in a table.
func (c *Client) Items(name string) []map[string]types.AttributeValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		return nil
	}
	out := make([]map[string]types.AttributeValue, 0, len(t.items))
	for _, it := range t.items {
		out = append(out, copyItem(it))
	}
	return out
}

// Tables returns the names of all tables, sorted.
func (c *Client) Tables() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexNames returns the GSI names of a table, sorted.
func (c *Client) IndexNames(name string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(t.indexes))
	for n := range t.indexes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Client) begin(op, tableName string) (*table, error) {
	c.calls[op]++
	if c.FailHook != nil {
		if err := c.FailHook(op, tableName); err != nil {
			return nil, err
		}
	}
	t, ok := c.tables[tableName]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + tableName)}
	}
	return t, nil
}

// CreateTable registers a table and its global secondary indexes.
func (c *Client) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := aws.ToString(in.TableName)
	c.calls["CreateTable"]++
	if c.FailHook != nil {
		if err := c.FailHook("CreateTable", name); err != nil {
			return nil, err
		}
	}
	if _, exists := c.tables[name]; exists {
		return nil, &types.ResourceInUseException{Message: aws.String("table already exists: " + name)}
	}

	t := &table{
		key:     schemaOf(in.KeySchema),
		indexes: make(map[string]keySchema),
		items:   make(map[string]item),
	}
	for _, gsi := range in.GlobalSecondaryIndexes {
		ks := schemaOf(gsi.KeySchema)
		ks.index = aws.ToString(gsi.IndexName)
		t.indexes[ks.index] = ks
	}
	c.tables[name] = t

	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{
			TableName:   aws.String(name),
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

// DescribeTable reports every known table as ACTIVE.
func (c *Client) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := aws.ToString(in.TableName)
	if _, err := c.begin("DescribeTable", name); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   aws.String(name),
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

// PutItem stores an item, honouring ConditionExpression.
func (c *Client) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.begin("PutItem", aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	key, err := t.keyOf(in.Item)
	if err != nil {
		return nil, err
	}
	if in.ConditionExpression != nil {
		ok, err := evaluate(aws.ToString(in.ConditionExpression), t.items[key], in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionFailed()
		}
	}
	t.items[key] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// GetItem looks an item up by primary key.
func (c *Client) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.begin("GetItem", aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	key, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.GetItemOutput{}
	if it, ok := t.items[key]; ok {
		out.Item = copyItem(it)
	}
	return out, nil
}

// UpdateItem applies a SET or ADD expression, creating the item if needed.
func (c *Client) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.begin("UpdateItem", aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	key, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	existing := t.items[key]

	if in.ConditionExpression != nil {
		ok, err := evaluate(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionFailed()
		}
	}

	updated := copyItem(existing)
	if updated == nil {
		updated = copyItem(in.Key)
	}
	if err := applyUpdate(aws.ToString(in.UpdateExpression), updated, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	t.items[key] = updated

	out := &dynamodb.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(updated)
	}
	return out, nil
}

// Query evaluates a key condition against the table or one of its indexes.
func (c *Client) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.begin("Query", aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	schema := t.key
	if in.IndexName != nil {
		ks, ok := t.indexes[aws.ToString(in.IndexName)]
		if !ok {
			return nil, fmt.Errorf("ddbtest: table %s has no index %s", aws.ToString(in.TableName), aws.ToString(in.IndexName))
		}
		schema = ks
	}

	conds, err := keyConditions(aws.ToString(in.KeyConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if _, ok := conds[schema.hash]; !ok {
		return nil, fmt.Errorf("ddbtest: key condition must constrain hash key %s", schema.hash)
	}
	for name := range conds {
		if name != schema.hash && name != schema.rng {
			return nil, fmt.Errorf("ddbtest: %s is not a key attribute", name)
		}
	}

	var matched []item
	for _, it := range t.items {
		if _, ok := it[schema.hash]; !ok {
			continue
		}
		if schema.rng != "" {
			if _, ok := it[schema.rng]; !ok {
				continue
			}
		}
		match := true
		for name, want := range conds {
			if compare(it[name], want) != 0 {
				match = false
				break
			}
		}
		if match {
			matched = append(matched, it)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if schema.rng != "" {
			if cmp := compare(matched[i][schema.rng], matched[j][schema.rng]); cmp != 0 {
				return cmp < 0
			}
		}
		ki, _ := t.keyOf(matched[i])
		kj, _ := t.keyOf(matched[j])
		return ki < kj
	})
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	start := 0
	if len(in.ExclusiveStartKey) > 0 {
		startKey, err := t.keyOf(in.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = len(matched)
		for i, it := range matched {
			if k, _ := t.keyOf(it); k == startKey {
				start = i + 1
				break
			}
		}
	}

	evaluated := matched[start:]
	out := &dynamodb.QueryOutput{}
	if in.Limit != nil && int(*in.Limit) <= len(evaluated) {
		evaluated = evaluated[:*in.Limit]
		if len(evaluated) > 0 {
			last := evaluated[len(evaluated)-1]
			lek := item{}
			for _, name := range []string{t.key.hash, t.key.rng, schema.hash, schema.rng} {
				if name != "" {
					lek[name] = last[name]
				}
			}
			out.LastEvaluatedKey = lek
		}
	}

	for _, it := range evaluated {
		if in.FilterExpression != nil {
			ok, err := evaluate(aws.ToString(in.FilterExpression), it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out.Items = append(out.Items, copyItem(it))
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = int32(len(evaluated))
	return out, nil
}

// BatchWriteItem applies put and delete requests.
func (c *Client) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &dynamodb.BatchWriteItemOutput{}
	for name, requests := range in.RequestItems {
		t, err := c.begin("BatchWriteItem", name)
		if err != nil {
			return nil, err
		}
		if len(requests) > 25 {
			return nil, fmt.Errorf("ddbtest: batch of %d requests exceeds 25", len(requests))
		}

		apply := requests
		if c.Unprocessed != nil {
			n := c.Unprocessed(name, len(requests))
			if n > len(requests) {
				n = len(requests)
			}
			if n > 0 {
				apply = requests[:len(requests)-n]
				if out.UnprocessedItems == nil {
					out.UnprocessedItems = make(map[string][]types.WriteRequest)
				}
				out.UnprocessedItems[name] = requests[len(requests)-n:]
			}
		}

		for _, req := range apply {
			switch {
			case req.DeleteRequest != nil:
				key, err := t.keyOf(req.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(t.items, key)
			case req.PutRequest != nil:
				key, err := t.keyOf(req.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				t.items[key] = copyItem(req.PutRequest.Item)
			}
		}
	}
	return out, nil
}

func schemaOf(elems []types.KeySchemaElement) keySchema {
	var ks keySchema
	for _, e := range elems {
		switch e.KeyType {
		case types.KeyTypeHash:
			ks.hash = aws.ToString(e.AttributeName)
		case types.KeyTypeRange:
			ks.rng = aws.ToString(e.AttributeName)
		}
	}
	return ks
}

// keyOf renders the table primary key of an item as a map key.
func (t *table) keyOf(it item) (string, error) {
	h, ok := it[t.key.hash]
	if !ok {
		return "", fmt.Errorf("ddbtest: missing hash key %s", t.key.hash)
	}
	key := render(h)
	if t.key.rng != "" {
		r, ok := it[t.key.rng]
		if !ok {
			return "", fmt.Errorf("ddbtest: missing range key %s", t.key.rng)
		}
		key += "\x00" + render(r)
	}
	return key, nil
}

func render(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case *types.AttributeValueMemberB:
		return "B:" + string(v.Value)
	default:
		return fmt.Sprintf("%T", av)
	}
}

// compare orders two scalar attribute values; mismatched or missing values
// compare as unequal (non-zero).
func compare(a, b types.AttributeValue) int {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		if bv, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(av.Value, bv.Value)
		}
	case *types.AttributeValueMemberN:
		if bv, ok := b.(*types.AttributeValueMemberN); ok {
			return compareNumbers(av.Value, bv.Value)
		}
	case *types.AttributeValueMemberB:
		if bv, ok := b.(*types.AttributeValueMemberB); ok {
			return bytes.Compare(av.Value, bv.Value)
		}
	case *types.AttributeValueMemberBOOL:
		if bv, ok := b.(*types.AttributeValueMemberBOOL); ok && av.Value == bv.Value {
			return 0
		}
	}
	return 2
}

func compareNumbers(a, b string) int {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	af, _ := strconv.ParseFloat(a, 64)
	bf, _ := strconv.ParseFloat(b, 64)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func resolveName(token string, names map[string]string) (string, error) {
	if strings.HasPrefix(token, "#") {
		name, ok := names[token]
		if !ok {
			return "", fmt.Errorf("ddbtest: undefined attribute name %s", token)
		}
		return name, nil
	}
	return token, nil
}

func resolveValue(token string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	v, ok := values[token]
	if !ok {
		return nil, fmt.Errorf("ddbtest: undefined attribute value %s", token)
	}
	return v, nil
}

func keyConditions(expr string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	conds := make(map[string]types.AttributeValue)
	for _, clause := range strings.Split(expr, " AND ") {
		parts := strings.SplitN(clause, " = ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("ddbtest: unsupported key condition %q", clause)
		}
		name, err := resolveName(strings.TrimSpace(parts[0]), names)
		if err != nil {
			return nil, err
		}
		value, err := resolveValue(strings.TrimSpace(parts[1]), values)
		if err != nil {
			return nil, err
		}
		conds[name] = value
	}
	return conds, nil
}

// evaluate checks a condition or filter expression against an item (which
// may be nil when the item does not exist).
func evaluate(expr string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, disjunct := range strings.Split(expr, " OR ") {
		ok := true
		for _, term := range strings.Split(disjunct, " AND ") {
			res, err := evaluateTerm(strings.TrimSpace(term), it, names, values)
			if err != nil {
				return false, err
			}
			if !res {
				ok = false
				break
			}
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func evaluateTerm(term string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	term = strings.TrimSuffix(strings.TrimPrefix(term, "("), ")")
	for _, fn := range []string{"attribute_not_exists", "attribute_exists"} {
		if strings.HasPrefix(term, fn+"(") {
			name, err := resolveName(strings.TrimSuffix(strings.TrimPrefix(term, fn+"("), ")"), names)
			if err != nil {
				return false, err
			}
			_, exists := it[name]
			if fn == "attribute_exists" {
				return exists, nil
			}
			return !exists, nil
		}
	}

	for _, op := range []string{" >= ", " <= ", " <> ", " = ", " > ", " < "} {
		parts := strings.SplitN(term, op, 2)
		if len(parts) != 2 {
			continue
		}
		name, err := resolveName(strings.TrimSpace(parts[0]), names)
		if err != nil {
			return false, err
		}
		want, err := resolveValue(strings.TrimSpace(parts[1]), values)
		if err != nil {
			return false, err
		}
		got, exists := it[name]
		if !exists {
			return false, nil
		}
		cmp := compare(got, want)
		switch strings.TrimSpace(op) {
		case ">=":
			return cmp == 0 || cmp == 1, nil
		case "<=":
			return cmp == 0 || cmp == -1, nil
		case "<>":
			return cmp != 0, nil
		case "=":
			return cmp == 0, nil
		case ">":
			return cmp == 1, nil
		case "<":
			return cmp == -1, nil
		}
	}
	return false, fmt.Errorf("ddbtest: unsupported expression %q", term)
}

func applyUpdate(expr string, it item, names map[string]string, values map[string]types.AttributeValue) error {
	switch {
	case strings.HasPrefix(expr, "SET "):
		for _, clause := range strings.Split(strings.TrimPrefix(expr, "SET "), ", ") {
			parts := strings.SplitN(clause, " = ", 2)
			if len(parts) != 2 {
				return fmt.Errorf("ddbtest: unsupported SET clause %q", clause)
			}
			name, err := resolveName(strings.TrimSpace(parts[0]), names)
			if err != nil {
				return err
			}
			value, err := resolveValue(strings.TrimSpace(parts[1]), values)
			if err != nil {
				return err
			}
			it[name] = value
		}
	case strings.HasPrefix(expr, "ADD "):
		for _, clause := range strings.Split(strings.TrimPrefix(expr, "ADD "), ", ") {
			parts := strings.Fields(clause)
			if len(parts) != 2 {
				return fmt.Errorf("ddbtest: unsupported ADD clause %q", clause)
			}
			name, err := resolveName(parts[0], names)
			if err != nil {
				return err
			}
			value, err := resolveValue(parts[1], values)
			if err != nil {
				return err
			}
			delta, ok := value.(*types.AttributeValueMemberN)
			if !ok {
				return fmt.Errorf("ddbtest: ADD requires a number")
			}
			d, err := strconv.ParseInt(delta.Value, 10, 64)
			if err != nil {
				return err
			}
			var current int64
			if cur, ok := it[name].(*types.AttributeValueMemberN); ok {
				current, _ = strconv.ParseInt(cur.Value, 10, 64)
			}
			it[name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+d, 10)}
		}
	default:
		return fmt.Errorf("ddbtest: unsupported update expression %q", expr)
	}
	return nil
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func copyItem(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}
