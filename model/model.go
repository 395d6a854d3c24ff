package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jacentio/lattice/association"
	"github.com/jacentio/lattice/internal/keys"
	"github.com/jacentio/lattice/store"
)

// Definition declares a model.
type Definition struct {
	// Collection is the collection tag (e.g., "users").
	Collection string

	// Table is the logical table the collection lives in. Defaults to Collection.
	Table string

	// Hooks are the default hooks of every operation.
	Hooks Hooks
}

// Catalog holds the registered models and resolves relationships between them.
type Catalog struct {
	store    *store.Store
	registry *Registry
	logger   *slog.Logger
	models   map[string]*Model
}

// NewCatalog creates an empty Catalog.
func NewCatalog(s *store.Store, registry *Registry, logger *slog.Logger) *Catalog {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:    s,
		registry: registry,
		logger:   logger,
		models:   make(map[string]*Model),
	}
}

// Registry returns the catalog's relationship registry.
func (c *Catalog) Registry() *Registry {
	return c.registry
}

// Register adds a model. Like the registry, the catalog is built once
// before use and is not safe for concurrent registration.
func (c *Catalog) Register(def Definition) (*Model, error) {
	if def.Collection == "" {
		return nil, fmt.Errorf("%w: model needs a collection", store.ErrValidation)
	}
	if _, ok := c.models[def.Collection]; ok {
		return nil, fmt.Errorf("%w: model %q registered twice", store.ErrValidation, def.Collection)
	}
	table := def.Table
	if table == "" {
		table = def.Collection
	}
	m := &Model{
		catalog:    c,
		name:       def.Collection,
		collection: c.store.Collection(table, def.Collection),
		hooks:      def.Hooks,
	}
	c.models[def.Collection] = m
	return m, nil
}

// Model returns the model of a collection, trying the name as given, then
// its plural, then its singular form.
func (c *Catalog) Model(collection string) (*Model, error) {
	for _, name := range keys.Candidates(collection) {
		if m, ok := c.models[name]; ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
}

// Models returns every registered model, sorted by collection.
func (c *Catalog) Models() []*Model {
	models := make([]*Model, 0, len(c.models))
	for _, m := range c.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].name < models[j].name
	})
	return models
}

func (c *Catalog) resolver(rel Relationship) *association.Resolver {
	table := rel.AssociationTable()
	return association.New(c.store.Collection(table, table), c.logger)
}

// Model is the facade over one collection: hooked CRUD, counting and
// relationship operations.
type Model struct {
	catalog    *Catalog
	name       string
	collection *store.Collection
	hooks      Hooks
}

// Name returns the collection tag.
func (m *Model) Name() string {
	return m.name
}

// Collection returns the underlying Base Actions.
func (m *Model) Collection() *store.Collection {
	return m.collection
}

func (m *Model) hooksFor(h *Hooks) *Hooks {
	if h != nil {
		return h
	}
	return &m.hooks
}

// Get returns the single record matching idx.
func (m *Model) Get(ctx context.Context, idx store.Index) (*store.Record, error) {
	snap, err := m.hooksFor(nil).run(ctx, &Snapshot{Op: "get", Index: idx}, m.get)
	if err != nil {
		return nil, err
	}
	return snap.Record, nil
}

func (m *Model) get(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	records, err := m.collection.FindByIndex(ctx, snap.Index)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	switch len(records) {
	case 0:
		return nil, store.ErrNotFound
	case 1:
	default:
		return nil, fmt.Errorf("get %s: %w", snap.Index, store.ErrMultipleRecords)
	}
	snap.Record = records[0]
	return snap, nil
}

// GetAll returns a page of the collection in the requested order.
func (m *Model) GetAll(ctx context.Context, opts store.ScanOptions) (*store.Page, error) {
	snap, err := m.hooksFor(nil).run(ctx, &Snapshot{Op: "get all", Scan: opts}, func(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
		page, err := m.collection.All(ctx, snap.Scan)
		if err != nil {
			return nil, fmt.Errorf("get all: %w", err)
		}
		snap.Page = page
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return snap.Page, nil
}

// Create writes a new record. A nil hooks runs the model's defaults.
func (m *Model) Create(ctx context.Context, fields store.Fields, hooks *Hooks) (*store.Record, error) {
	snap, err := m.hooksFor(hooks).run(ctx, &Snapshot{Op: "create", Fields: fields}, func(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
		rec, err := m.collection.Create(ctx, snap.Fields)
		if err != nil {
			return nil, err
		}
		snap.Record = rec
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return snap.Record, nil
}

// Update rewrites fields of the single record matching idx.
func (m *Model) Update(ctx context.Context, idx store.Index, fields store.Fields, hooks *Hooks) (*store.Record, error) {
	snap, err := m.hooksFor(hooks).run(ctx, &Snapshot{Op: "update", Index: idx, Fields: fields}, func(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
		rec, err := m.collection.Update(ctx, snap.Index, snap.Fields)
		if err != nil {
			return nil, err
		}
		snap.Record = rec
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return snap.Record, nil
}

// Destroy removes every record matching idx, then applies each
// relationship's dependent rule to every removed record. It returns the
// first removed record.
func (m *Model) Destroy(ctx context.Context, idx store.Index, hooks *Hooks) (*store.Record, error) {
	snap, err := m.hooksFor(hooks).run(ctx, &Snapshot{Op: "destroy", Index: idx}, m.destroy)
	if err != nil {
		return nil, err
	}
	return snap.Record, nil
}

func (m *Model) destroy(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	records, err := m.collection.FindByIndex(ctx, snap.Index)
	if err != nil {
		return nil, fmt.Errorf("destroy: %w", err)
	}
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	if _, err := m.collection.DestroyRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("destroy: %w", err)
	}
	for _, rec := range records {
		if err := m.cleanupDependents(ctx, rec); err != nil {
			return nil, fmt.Errorf("destroy %s: %w", rec.ID, err)
		}
	}
	snap.Record = records[0]
	return snap, nil
}

// Count returns the number of live records in the collection.
func (m *Model) Count(ctx context.Context) (int64, error) {
	return m.collection.Count(ctx)
}
