package model

import (
	"fmt"
	"sort"

	"github.com/jacentio/lattice/internal/keys"
	"github.com/jacentio/lattice/store"
)

// Cardinality is how many records one side of a relationship may link to.
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Dependent is the cleanup applied to a relationship when its owner is destroyed.
type Dependent string

const (
	// Keep leaves edges in place.
	Keep Dependent = ""

	// Nullify removes the owner's edges.
	Nullify Dependent = "nullify"

	// Cascade removes the owner's edges, then destroys each linked record
	// through its own model.
	Cascade Dependent = "destroy"
)

// Relationship declares one named role of a collection.
type Relationship struct {
	// Collection owns the role (e.g., "organizations").
	Collection string

	// Role is the name callers use (e.g., "contacts").
	Role string

	// Target is the related collection (e.g., "contacts").
	Target string

	// Cardinality is how many Target records one Collection record may link to.
	Cardinality Cardinality

	// Inverse names the role on Target pointing back, if declared.
	Inverse string

	// Dependent is applied when a Collection record is destroyed.
	Dependent Dependent
}

// AssociationTable returns the logical table holding this relationship's edges.
func (r Relationship) AssociationTable() string {
	return keys.AssociationTable(r.Collection, r.Target)
}

// OwnerAttribute is the edge attribute holding the owner's identifier.
func (r Relationship) OwnerAttribute() string {
	return keys.RoleAttribute(r.Collection)
}

// TargetAttribute is the edge attribute holding the target's identifier.
func (r Relationship) TargetAttribute() string {
	return keys.RoleAttribute(r.Target)
}

func (r Relationship) validate() error {
	if r.Collection == "" || r.Role == "" || r.Target == "" {
		return fmt.Errorf("%w: relationship needs a collection, role and target", store.ErrValidation)
	}
	if r.OwnerAttribute() == r.TargetAttribute() {
		return fmt.Errorf("%w: %s.%s relates a collection to itself", store.ErrValidation, r.Collection, r.Role)
	}
	switch r.Cardinality {
	case One, Many:
	default:
		return fmt.Errorf("%w: %s.%s has cardinality %q", store.ErrValidation, r.Collection, r.Role, r.Cardinality)
	}
	switch r.Dependent {
	case Keep, Nullify, Cascade:
	default:
		return fmt.Errorf("%w: %s.%s has dependent %q", store.ErrValidation, r.Collection, r.Role, r.Dependent)
	}
	return nil
}

// Registry holds every declared relationship, looked up by collection and role.
type Registry struct {
	relationships []Relationship
	byCollection  map[string][]Relationship
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relationship{},
		byCollection:  make(map[string][]Relationship),
	}
}

// Register adds a relationship to the registry.
// Registries are built once, before any Catalog uses them.
func (r *Registry) Register(rel Relationship) error {
	if err := rel.validate(); err != nil {
		return err
	}
	for _, existing := range r.byCollection[rel.Collection] {
		if existing.Role == rel.Role {
			return fmt.Errorf("%w: %s.%s registered twice", store.ErrValidation, rel.Collection, rel.Role)
		}
	}
	r.relationships = append(r.relationships, rel)
	r.byCollection[rel.Collection] = append(r.byCollection[rel.Collection], rel)
	return nil
}

// RelationshipsOf returns the relationships owned by a collection, in
// registration order.
func (r *Registry) RelationshipsOf(collection string) []Relationship {
	return r.byCollection[collection]
}

// AllRelationships returns all registered relationships.
func (r *Registry) AllRelationships() []Relationship {
	return r.relationships
}

// HasRelationships returns true if the collection owns any relationship.
func (r *Registry) HasRelationships(collection string) bool {
	return len(r.byCollection[collection]) > 0
}

// AssociationTables returns the distinct association tables, sorted.
func (r *Registry) AssociationTables() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, rel := range r.relationships {
		t := rel.AssociationTable()
		if !seen[t] {
			seen[t] = true
			tables = append(tables, t)
		}
	}
	sort.Strings(tables)
	return tables
}

// Lookup resolves a role of a collection, trying the name as given, then
// its plural, then its singular form.
func (r *Registry) Lookup(collection, role string) (Relationship, error) {
	rels := r.byCollection[collection]
	for _, name := range keys.Candidates(role) {
		for _, rel := range rels {
			if rel.Role == name {
				return rel, nil
			}
		}
	}
	return Relationship{}, fmt.Errorf("%w: %s.%s", ErrUnknownRole, collection, role)
}

// InverseHasMany reports whether a Target record may link to many
// Collection records. An undeclared inverse counts as many.
func (r *Registry) InverseHasMany(rel Relationship) bool {
	if rel.Inverse == "" {
		return true
	}
	inv, err := r.Lookup(rel.Target, rel.Inverse)
	if err != nil {
		return true
	}
	return inv.Cardinality == Many
}
