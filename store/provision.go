package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/internal/keys"
)

// TableAPI is the subset of *dynamodb.Client used for provisioning.
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// TableSpec describes one logical collection table.
type TableSpec struct {
	// Name is the logical table name (prefix and suffix are applied).
	Name string

	// Indexes lists indexable attributes. Each gets an "<attr>-index" GSI
	// ranged on created_at.
	Indexes []string

	// CompositeIndexes lists (hash, range) pairs, each getting a
	// "<hash>-<range>-index" GSI.
	CompositeIndexes [][2]string
}

// ProvisionOptions controls table creation.
type ProvisionOptions struct {
	// Wait blocks until every created table is ACTIVE.
	Wait bool

	// MaxWait bounds each wait. Default: 5 minutes
	MaxWait time.Duration
}

// Provision creates the counter table and every collection table with the
// layout the store expects. Tables that already exist are left untouched.
// It returns the physical names of the tables it created.
func (s *Store) Provision(ctx context.Context, api TableAPI, specs []TableSpec, opts ProvisionOptions) ([]string, error) {
	inputs := []*dynamodb.CreateTableInput{s.counterTableInput()}
	for _, spec := range specs {
		input, err := s.collectionTableInput(spec)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}

	var created []string
	for _, input := range inputs {
		_, err := api.CreateTable(ctx, input)
		if err != nil {
			var inUse *types.ResourceInUseException
			if errors.As(err, &inUse) {
				continue
			}
			return created, adapterError("create table "+aws.ToString(input.TableName), err)
		}
		created = append(created, aws.ToString(input.TableName))
	}

	if opts.Wait {
		maxWait := opts.MaxWait
		if maxWait <= 0 {
			maxWait = 5 * time.Minute
		}
		waiter := dynamodb.NewTableExistsWaiter(api)
		for _, name := range created {
			err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, maxWait)
			if err != nil {
				return created, fmt.Errorf("wait for table %s: %w", name, err)
			}
		}
	}
	return created, nil
}

func (s *Store) counterTableInput() *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(s.counterTable()),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(AttrID), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(AttrID), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

func (s *Store) collectionTableInput(spec TableSpec) (*dynamodb.CreateTableInput, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: table spec without a name", ErrValidation)
	}

	attrs := map[string]types.ScalarAttributeType{
		AttrID:         types.ScalarAttributeTypeS,
		AttrCreatedAt:  types.ScalarAttributeTypeN,
		AttrCollection: types.ScalarAttributeTypeS,
	}
	gsis := []types.GlobalSecondaryIndex{
		globalIndex(s.config.CollectionIndex, AttrCollection, AttrCreatedAt),
	}

	seen := map[string]bool{s.config.CollectionIndex: true}
	for _, attr := range spec.Indexes {
		if isReserved(attr) {
			return nil, fmt.Errorf("%w: %q cannot be indexed", ErrValidation, attr)
		}
		name := keys.IndexName(attr, "")
		if seen[name] {
			continue
		}
		seen[name] = true
		attrs[attr] = types.ScalarAttributeTypeS
		gsis = append(gsis, globalIndex(name, attr, AttrCreatedAt))
	}
	for _, pair := range spec.CompositeIndexes {
		name := keys.IndexName(pair[0], pair[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		attrs[pair[0]] = types.ScalarAttributeTypeS
		attrs[pair[1]] = types.ScalarAttributeTypeS
		gsis = append(gsis, globalIndex(name, pair[0], pair[1]))
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]types.AttributeDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: attrs[name],
		})
	}

	return &dynamodb.CreateTableInput{
		TableName: aws.String(s.config.TableName(spec.Name)),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(AttrID), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(AttrCreatedAt), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions:   defs,
		GlobalSecondaryIndexes: gsis,
		BillingMode:            types.BillingModePayPerRequest,
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeOldImage,
		},
	}, nil
}

func globalIndex(name, hash, rangeKey string) types.GlobalSecondaryIndex {
	return types.GlobalSecondaryIndex{
		IndexName: aws.String(name),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(hash), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(rangeKey), KeyType: types.KeyTypeRange},
		},
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}
