package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/lattice/store"
)

// cleanupDependents applies each owned relationship's dependent rule to a
// record that has just been removed.
func (m *Model) cleanupDependents(ctx context.Context, rec *store.Record) error {
	for _, rel := range m.catalog.registry.RelationshipsOf(m.name) {
		switch rel.Dependent {
		case Nullify:
			if _, err := m.catalog.resolver(rel).Dissociate(ctx, m.ownerRole(rel, rec.ID), nil); err != nil {
				return fmt.Errorf("nullify %s: %w", rel.Role, err)
			}
		case Cascade:
			if err := m.cascade(ctx, rel, rec); err != nil {
				return fmt.Errorf("cascade %s: %w", rel.Role, err)
			}
		}
	}
	return nil
}

// cascade unlinks rec from rel's targets, then destroys each of them.
// Edges go first so a destroy rule declared on the inverse side finds
// nothing to walk back to.
func (m *Model) cascade(ctx context.Context, rel Relationship, rec *store.Record) error {
	target, err := m.catalog.Model(rel.Target)
	if err != nil {
		return err
	}
	resolver := m.catalog.resolver(rel)

	ids, err := resolver.GetAssociations(ctx, store.By(rel.OwnerAttribute(), rec.ID), rel.TargetAttribute())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := resolver.Dissociate(ctx, m.ownerRole(rel, rec.ID), nil); err != nil {
		return err
	}

	m.catalog.logger.Info("cascading destroy",
		"collection", m.name,
		"id", rec.ID,
		"role", rel.Role,
		"children", len(ids),
	)
	for _, id := range ids {
		_, err := target.Destroy(ctx, store.By(store.AttrID, id), nil)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Expire reconciles a record removed outside Destroy, such as by DynamoDB
// TTL: dependent rules are applied, then the counter is decremented. Cleanup
// is safe to repeat; the decrement is not.
func (m *Model) Expire(ctx context.Context, rec *store.Record) error {
	if err := m.cleanupDependents(ctx, rec); err != nil {
		return fmt.Errorf("expire %s: %w", rec.ID, err)
	}
	if err := m.collection.DecreaseCounter(ctx, 1); err != nil {
		return fmt.Errorf("expire %s: %w", rec.ID, err)
	}
	return nil
}
