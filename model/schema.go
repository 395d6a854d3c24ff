package model

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jacentio/lattice/store"
)

// Schema is the declarative form of a catalog, as read from YAML:
//
//	collections:
//	  organizations:
//	    indexes: [name]
//	    relationships:
//	      contacts: {target: contacts, cardinality: many, inverse: organization, dependent: destroy}
//	  contacts:
//	    relationships:
//	      organization: {target: organizations, cardinality: one, inverse: contacts}
type Schema struct {
	Collections map[string]CollectionSchema `yaml:"collections"`
}

// CollectionSchema declares one collection.
type CollectionSchema struct {
	// Table defaults to the collection name.
	Table            string                        `yaml:"table"`
	Indexes          []string                      `yaml:"indexes"`
	CompositeIndexes [][]string                    `yaml:"composite_indexes"`
	Relationships    map[string]RelationshipSchema `yaml:"relationships"`
}

// RelationshipSchema declares one role.
type RelationshipSchema struct {
	Target      string `yaml:"target"`
	Cardinality string `yaml:"cardinality"`
	Inverse     string `yaml:"inverse"`
	Dependent   string `yaml:"dependent"`
}

// LoadSchema decodes a YAML schema. Unknown keys are rejected.
func LoadSchema(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Schema
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty schema", store.ErrValidation)
		}
		return nil, fmt.Errorf("%w: decode schema: %w", store.ErrValidation, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchemaFile reads a YAML schema from path.
func LoadSchemaFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()

	s, err := LoadSchema(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Schema) validate() error {
	if len(s.Collections) == 0 {
		return fmt.Errorf("%w: schema declares no collections", store.ErrValidation)
	}
	for _, name := range s.collectionNames() {
		c := s.Collections[name]
		for _, pair := range c.CompositeIndexes {
			if len(pair) != 2 {
				return fmt.Errorf("%w: %s: composite index needs two attributes, got %v", store.ErrValidation, name, pair)
			}
		}
		for _, role := range sortedKeys(c.Relationships) {
			rel := c.Relationships[role]
			target, ok := s.Collections[rel.Target]
			if !ok {
				return fmt.Errorf("%w: %s.%s targets undeclared collection %q", store.ErrValidation, name, role, rel.Target)
			}
			if rel.Inverse != "" {
				if _, ok := target.Relationships[rel.Inverse]; !ok {
					return fmt.Errorf("%w: %s.%s names missing inverse %s.%s", store.ErrValidation, name, role, rel.Target, rel.Inverse)
				}
			}
		}
	}
	return nil
}

// Registry builds the relationship registry the schema declares.
func (s *Schema) Registry() (*Registry, error) {
	r := NewRegistry()
	for _, name := range s.collectionNames() {
		c := s.Collections[name]
		for _, role := range sortedKeys(c.Relationships) {
			rel := c.Relationships[role]
			err := r.Register(Relationship{
				Collection:  name,
				Role:        role,
				Target:      rel.Target,
				Cardinality: Cardinality(rel.Cardinality),
				Inverse:     rel.Inverse,
				Dependent:   Dependent(rel.Dependent),
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Catalog registers every declared collection as a model. hooks supplies
// default hooks by collection name and may be nil.
func (s *Schema) Catalog(st *store.Store, hooks map[string]Hooks, logger *slog.Logger) (*Catalog, error) {
	registry, err := s.Registry()
	if err != nil {
		return nil, err
	}
	catalog := NewCatalog(st, registry, logger)
	for _, name := range s.collectionNames() {
		_, err := catalog.Register(Definition{
			Collection: name,
			Table:      s.Collections[name].Table,
			Hooks:      hooks[name],
		})
		if err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// TableSpecs returns the tables the schema needs: one per logical table,
// merging the indexes of collections sharing it, and one per association
// table, indexed on both role attributes. Names are logical; the store
// applies its prefix and suffix when provisioning.
func (s *Schema) TableSpecs() ([]store.TableSpec, error) {
	registry, err := s.Registry()
	if err != nil {
		return nil, err
	}

	byTable := make(map[string]*store.TableSpec)
	add := func(table string, indexes []string, composite [][2]string) {
		spec, ok := byTable[table]
		if !ok {
			spec = &store.TableSpec{Name: table}
			byTable[table] = spec
		}
		for _, idx := range indexes {
			if !slices.Contains(spec.Indexes, idx) {
				spec.Indexes = append(spec.Indexes, idx)
			}
		}
		for _, pair := range composite {
			if !slices.Contains(spec.CompositeIndexes, pair) {
				spec.CompositeIndexes = append(spec.CompositeIndexes, pair)
			}
		}
	}

	for _, name := range s.collectionNames() {
		c := s.Collections[name]
		table := c.Table
		if table == "" {
			table = name
		}
		composite := make([][2]string, 0, len(c.CompositeIndexes))
		for _, pair := range c.CompositeIndexes {
			composite = append(composite, [2]string{pair[0], pair[1]})
		}
		add(table, c.Indexes, composite)
	}
	for _, rel := range registry.AllRelationships() {
		add(rel.AssociationTable(), []string{rel.OwnerAttribute(), rel.TargetAttribute()}, nil)
	}

	specs := make([]store.TableSpec, 0, len(byTable))
	for _, spec := range byTable {
		sort.Strings(spec.Indexes)
		specs = append(specs, *spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
	return specs, nil
}

func (s *Schema) collectionNames() []string {
	return sortedKeys(s.Collections)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
