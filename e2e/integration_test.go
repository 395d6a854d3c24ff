//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
//
// LATTICE_E2E_PROFILE selects the AWS profile and LATTICE_E2E_ENDPOINT points
// the client at DynamoDB Local instead.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/jacentio/lattice/model"
	"github.com/jacentio/lattice/store"
)

// Test configuration
const (
	// Table names - unique per test run to avoid conflicts
	tablePrefix = "lattice-e2e-test"

	schemaYAML = `
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
    indexes: [name]
`
)

var (
	testID string
	tables []string

	ddbClient *dynamodb.Client
	testStore *store.Store
	catalog   *model.Catalog
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	// Generate unique test ID
	testID = uuid.New().String()[:8]
	ctx := context.Background()

	var loadOpts []func(*config.LoadOptions) error
	if profile := os.Getenv("LATTICE_E2E_PROFILE"); profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}
	ddbClient = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint := os.Getenv("LATTICE_E2E_ENDPOINT"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	storeCfg := store.DefaultConfig()
	storeCfg.TablePrefix = fmt.Sprintf("%s-%s-", tablePrefix, testID)
	testStore = store.New(ddbClient, storeCfg)

	schema, err := model.LoadSchema(strings.NewReader(schemaYAML))
	if err != nil {
		fmt.Printf("Failed to load schema: %v\n", err)
		os.Exit(1)
	}
	specs, err := schema.TableSpecs()
	if err != nil {
		fmt.Printf("Failed to derive tables: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Test ID: %s\n", testID)
	tables, err = testStore.Provision(ctx, ddbClient, specs, store.ProvisionOptions{Wait: true, MaxWait: 2 * time.Minute})
	if err != nil {
		fmt.Printf("Failed to create tables: %v\n", err)
		deleteTables(ctx)
		os.Exit(1)
	}
	fmt.Printf("Tables: %v\n", tables)

	catalog, err = schema.Catalog(testStore, nil, nil)
	if err != nil {
		fmt.Printf("Failed to build catalog: %v\n", err)
		deleteTables(ctx)
		os.Exit(1)
	}

	// Run tests
	code := m.Run()

	deleteTables(ctx)
	os.Exit(code)
}

func deleteTables(ctx context.Context) {
	fmt.Println("Deleting test tables...")
	for _, tableName := range tables {
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", tableName, err)
		}
	}
}

// --- Helpers ---

// eventually retries check until it passes; GSI reads lag behind writes.
func eventually(t *testing.T, what string, check func() (bool, error)) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for {
		ok, err := check()
		if err != nil {
			t.Fatalf("%s: %v", what, err)
		}
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s: condition not met in time", what)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func mustModel(t *testing.T, name string) *model.Model {
	t.Helper()
	m, err := catalog.Model(name)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// isolated returns a collection tag unique to one test, sharing the users table.
func isolated(t *testing.T) *store.Collection {
	return testStore.Collection("users", "users-"+uuid.New().String()[:8])
}

// --- Base Actions ---

func TestCreate_ManagedAttributes(t *testing.T) {
	ctx := context.Background()
	coll := isolated(t)

	rec, err := coll.Create(ctx, store.Fields{"name": "Ada"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Errorf("expected uuid id, got %q", rec.ID)
	}
	if rec.CreatedAt == 0 || rec.UpdatedAt != rec.CreatedAt {
		t.Errorf("expected timestamps set, got created %d updated %d", rec.CreatedAt, rec.UpdatedAt)
	}

	found, err := coll.FindByIndex(ctx, store.By(store.AttrID, rec.ID))
	if err != nil {
		t.Fatalf("FindByIndex failed: %v", err)
	}
	if len(found) != 1 || found[0].String("name") != "Ada" {
		t.Errorf("expected to read back Ada, got %v", found)
	}

	count, err := coll.Count(ctx)
	if err != nil || count != 1 {
		t.Errorf("expected count 1, got %d (%v)", count, err)
	}
}

func TestTake_NewestAndOldestFirst(t *testing.T) {
	ctx := context.Background()
	coll := isolated(t)
	for i := 1; i <= 10; i++ {
		if _, err := coll.Create(ctx, store.Fields{"name": fmt.Sprintf("u%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	names := func(p *store.Page) string {
		var out []string
		for _, r := range p.Records {
			out = append(out, r.String("name"))
		}
		return strings.Join(out, ",")
	}

	eventually(t, "newest first", func() (bool, error) {
		page, err := coll.Take(ctx, store.ScanOptions{Limit: 3})
		if err != nil {
			return false, err
		}
		return names(page) == "u10,u9,u8", nil
	})
	eventually(t, "oldest first", func() (bool, error) {
		page, err := coll.Take(ctx, store.ScanOptions{Limit: 3, Order: store.OldestFirst})
		if err != nil {
			return false, err
		}
		return names(page) == "u1,u2,u3", nil
	})
}

func TestTake_PaginationRoundTrip(t *testing.T) {
	ctx := context.Background()
	coll := isolated(t)
	const total = 7
	for i := 0; i < total; i++ {
		if _, err := coll.Create(ctx, store.Fields{"name": fmt.Sprintf("p%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	eventually(t, "all records indexed", func() (bool, error) {
		page, err := coll.All(ctx, store.ScanOptions{})
		if err != nil {
			return false, err
		}
		return len(page.Records) == total, nil
	})

	seen := make(map[string]bool)
	var order []string
	opts := store.ScanOptions{Limit: 3, Order: store.OldestFirst}
	for {
		page, err := coll.Take(ctx, opts)
		if err != nil {
			t.Fatalf("Take failed: %v", err)
		}
		for _, r := range page.Records {
			if seen[r.ID] {
				t.Fatalf("record %s returned twice", r.ID)
			}
			seen[r.ID] = true
			order = append(order, r.String("name"))
		}
		if page.Cursor == "" {
			break
		}
		opts.Cursor = page.Cursor
	}
	if got := strings.Join(order, ","); got != "p0,p1,p2,p3,p4,p5,p6" {
		t.Errorf("expected creation order, got %s", got)
	}
}

func TestUpdateAndDestroy(t *testing.T) {
	ctx := context.Background()
	coll := isolated(t)

	rec, err := coll.Create(ctx, store.Fields{"name": "before"})
	if err != nil {
		t.Fatal(err)
	}
	updated, err := coll.Update(ctx, store.By(store.AttrID, rec.ID), store.Fields{"name": "after"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.String("name") != "after" || updated.UpdatedAt <= rec.UpdatedAt {
		t.Errorf("unexpected updated record %+v", updated)
	}

	if _, err := coll.Destroy(ctx, store.By(store.AttrID, rec.ID)); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := coll.Destroy(ctx, store.By(store.AttrID, rec.ID)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second destroy, got %v", err)
	}
	count, err := coll.Count(ctx)
	if err != nil || count != 0 {
		t.Errorf("expected count 0, got %d (%v)", count, err)
	}
}

// --- Relationships ---

func TestRelationships_SetAndCascade(t *testing.T) {
	ctx := context.Background()
	orgs := mustModel(t, "organizations")
	contacts := mustModel(t, "contacts")

	org, err := orgs.Create(ctx, store.Fields{"name": "Acme " + testID}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, email := range []string{"a", "b"} {
		c, err := contacts.Create(ctx, store.Fields{"email": email + "@" + testID + ".test"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, c.ID)
	}

	if _, err := orgs.SetChildren(ctx, org.ID, "contacts", ids); err != nil {
		t.Fatalf("SetChildren failed: %v", err)
	}
	eventually(t, "children linked", func() (bool, error) {
		children, err := orgs.GetChildren(ctx, org.ID, "contacts")
		return len(children) == 2, err
	})
	eventually(t, "parent visible from child", func() (bool, error) {
		parent, err := contacts.GetChild(ctx, ids[0], "organization")
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return err == nil && parent.ID == org.ID, err
	})

	if _, err := orgs.Destroy(ctx, store.By(store.AttrID, org.ID), nil); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	for _, id := range ids {
		found, err := contacts.Collection().FindByIndex(ctx, store.By(store.AttrID, id))
		if err != nil {
			t.Fatal(err)
		}
		if len(found) != 0 {
			t.Errorf("expected contact %s destroyed by cascade", id)
		}
	}
}
