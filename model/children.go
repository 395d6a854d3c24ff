package model

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jacentio/lattice/association"
	"github.com/jacentio/lattice/store"
)

// childLoadLimit bounds concurrent child reads per call.
const childLoadLimit = 8

func (m *Model) relationship(role string, want Cardinality) (Relationship, error) {
	rel, err := m.catalog.registry.Lookup(m.name, role)
	if err != nil {
		return Relationship{}, err
	}
	if rel.Cardinality != want {
		return Relationship{}, fmt.Errorf("%w: %s.%s is %s", ErrWrongCardinality, m.name, rel.Role, rel.Cardinality)
	}
	return rel, nil
}

func (m *Model) ownerRole(rel Relationship, id string) association.Role {
	return association.Role{
		Attribute: rel.OwnerAttribute(),
		Values:    []string{id},
		HasMany:   rel.Cardinality == Many,
	}
}

func (m *Model) targetRole(rel Relationship, ids []string) association.Role {
	return association.Role{
		Attribute: rel.TargetAttribute(),
		Values:    ids,
		HasMany:   m.catalog.registry.InverseHasMany(rel),
	}
}

// GetChild returns the record linked to id through a one relationship.
func (m *Model) GetChild(ctx context.Context, id, role string) (*store.Record, error) {
	rel, err := m.relationship(role, One)
	if err != nil {
		return nil, err
	}
	children, err := m.children(ctx, rel, id)
	if err != nil {
		return nil, err
	}
	switch len(children) {
	case 0:
		return nil, store.ErrNotFound
	case 1:
		return children[0], nil
	default:
		return nil, fmt.Errorf("%s.%s of %s: %w", m.name, rel.Role, id, store.ErrMultipleRecords)
	}
}

// SetChild links id to childID through a one relationship, replacing any
// previous child.
func (m *Model) SetChild(ctx context.Context, id, role, childID string) (bool, error) {
	rel, err := m.relationship(role, One)
	if err != nil {
		return false, err
	}
	return m.catalog.resolver(rel).Associate(ctx, m.ownerRole(rel, id), m.targetRole(rel, []string{childID}))
}

// UnsetChild removes the child of id in a one relationship.
func (m *Model) UnsetChild(ctx context.Context, id, role string) (bool, error) {
	rel, err := m.relationship(role, One)
	if err != nil {
		return false, err
	}
	return m.catalog.resolver(rel).Dissociate(ctx, m.ownerRole(rel, id), nil)
}

// GetChildren returns the records linked to id through a many relationship,
// in link order.
func (m *Model) GetChildren(ctx context.Context, id, role string) ([]*store.Record, error) {
	rel, err := m.relationship(role, Many)
	if err != nil {
		return nil, err
	}
	return m.children(ctx, rel, id)
}

// SetChildren links id to each of childIDs through a many relationship.
// Existing links are kept.
func (m *Model) SetChildren(ctx context.Context, id, role string, childIDs []string) (bool, error) {
	rel, err := m.relationship(role, Many)
	if err != nil {
		return false, err
	}
	return m.catalog.resolver(rel).Associate(ctx, m.ownerRole(rel, id), m.targetRole(rel, childIDs))
}

// UnsetChildren unlinks childIDs from id, or every child when childIDs is nil.
func (m *Model) UnsetChildren(ctx context.Context, id, role string, childIDs []string) (bool, error) {
	rel, err := m.relationship(role, Many)
	if err != nil {
		return false, err
	}
	var target *association.Role
	if childIDs != nil {
		r := m.targetRole(rel, childIDs)
		target = &r
	}
	return m.catalog.resolver(rel).Dissociate(ctx, m.ownerRole(rel, id), target)
}

// children loads the targets linked to id concurrently, keeping edge order.
// Targets that are gone or past their TTL are left out.
func (m *Model) children(ctx context.Context, rel Relationship, id string) ([]*store.Record, error) {
	target, err := m.catalog.Model(rel.Target)
	if err != nil {
		return nil, err
	}
	ids, err := m.catalog.resolver(rel).GetAssociations(ctx, store.By(rel.OwnerAttribute(), id), rel.TargetAttribute())
	if err != nil {
		return nil, err
	}

	loaded := make([]*store.Record, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(childLoadLimit)
	for i, childID := range ids {
		i, childID := i, childID
		g.Go(func() error {
			rec, err := target.Get(gctx, store.By(store.AttrID, childID))
			if errors.Is(err, store.ErrNotFound) {
				m.catalog.logger.Debug("edge points at missing record",
					"collection", rel.Target,
					"id", childID,
				)
				return nil
			}
			if err != nil {
				return fmt.Errorf("load %s %s: %w", rel.Target, childID, err)
			}
			loaded[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := m.catalog.store.Config().Clock()
	children := make([]*store.Record, 0, len(loaded))
	for _, rec := range loaded {
		if rec == nil || store.IsExpired(rec.Raw, now) {
			continue
		}
		children = append(children, rec)
	}
	return children, nil
}
