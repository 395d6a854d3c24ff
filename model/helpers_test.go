package model_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/internal/ddbtest"
	"github.com/jacentio/lattice/model"
	"github.com/jacentio/lattice/store"
)

const testSchema = `
collections:
  organizations:
    table: crm
    indexes: [name]
    relationships:
      contacts: {target: contacts, cardinality: many, inverse: organization, dependent: destroy}
  contacts:
    table: crm
    indexes: [email]
    relationships:
      organization: {target: organizations, cardinality: one, inverse: contacts}
  users:
    indexes: [email]
    relationships:
      contact: {target: contacts, cardinality: one, dependent: nullify}
      tags: {target: tags, cardinality: many, dependent: nullify}
  tags:
    indexes: [label]
`

type fixture struct {
	client  *ddbtest.Client
	store   *store.Store
	catalog *model.Catalog
}

func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newFixture(t *testing.T, hooks map[string]model.Hooks) *fixture {
	t.Helper()
	schema, err := model.LoadSchema(strings.NewReader(testSchema))
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}

	client := ddbtest.New()
	cfg := store.DefaultConfig()
	cfg.Clock = tickingClock()
	st := store.New(client, cfg)

	specs, err := schema.TableSpecs()
	if err != nil {
		t.Fatalf("table specs: %v", err)
	}
	if _, err := st.Provision(context.Background(), client, specs, store.ProvisionOptions{}); err != nil {
		t.Fatalf("provision: %v", err)
	}

	catalog, err := schema.Catalog(st, hooks, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return &fixture{client: client, store: st, catalog: catalog}
}

func (f *fixture) model(t *testing.T, name string) *model.Model {
	t.Helper()
	m, err := f.catalog.Model(name)
	if err != nil {
		t.Fatalf("model %s: %v", name, err)
	}
	return m
}

func (f *fixture) create(t *testing.T, name string, fields store.Fields) *store.Record {
	t.Helper()
	rec, err := f.model(t, name).Create(context.Background(), fields, nil)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return rec
}

func (f *fixture) createN(t *testing.T, name, attr string, values ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(values))
	for _, v := range values {
		ids = append(ids, f.create(t, name, store.Fields{attr: v}).ID)
	}
	return ids
}

func (f *fixture) edgeCount(t *testing.T, table string) int64 {
	t.Helper()
	n, err := f.store.Collection(table, table).Count(context.Background())
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func assertCount(t *testing.T, m *model.Model, want int64) {
	t.Helper()
	got, err := m.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if got != want {
		t.Errorf("expected %s count %d, got %d", m.Name(), want, got)
	}
}

func attrs(records []*store.Record, attr string) string {
	values := make([]string, 0, len(records))
	for _, r := range records {
		values = append(values, r.String(attr))
	}
	return strings.Join(values, ",")
}

func batchDelete(table string, rec *store.Record) *dynamodb.BatchWriteItemInput {
	return &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			table: {{DeleteRequest: &types.DeleteRequest{Key: rec.Key()}}},
		},
	}
}
