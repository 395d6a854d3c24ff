// Package association reconciles relationship edges stored as narrow records
// in an association collection.
//
// Each edge holds two role attributes, one per side of the relationship.
// [Resolver.Associate] enforces per-role cardinality: a role declared with
// HasMany=false keeps at most one edge per value, so linking it again
// replaces the previous edge. Linking already-linked values is a no-op.
//
// DynamoDB offers no multi-item transactions here. Every multi-step sequence
// is best-effort and sequential: two callers reconciling the same role
// values at the same time can leave duplicate or missing edges, and edges
// written before a failure are not rolled back.
package association

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jacentio/lattice/store"
)

// Role is one side of a relationship in a reconciliation call.
type Role struct {
	// Attribute is the edge attribute holding this side's identifier.
	Attribute string

	// Values are identifiers of this side, processed in order.
	Values []string

	// HasMany reports whether a value of this role may hold more than one
	// edge at a time.
	HasMany bool
}

func (r Role) validate(name string) error {
	if r.Attribute == "" {
		return fmt.Errorf("%w: %s role has no attribute", store.ErrValidation, name)
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("%w: %s role %q has no values", store.ErrValidation, name, r.Attribute)
	}
	for _, v := range r.Values {
		if v == "" {
			return fmt.Errorf("%w: %s role %q has an empty value", store.ErrValidation, name, r.Attribute)
		}
	}
	return nil
}

// Resolver reads and writes the edges of one association collection.
type Resolver struct {
	edges  *store.Collection
	logger *slog.Logger
}

// New creates a Resolver over an association collection.
func New(edges *store.Collection, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		edges:  edges,
		logger: logger,
	}
}

// Edges returns the underlying association collection.
func (r *Resolver) Edges() *store.Collection {
	return r.edges
}

// Associate links every value of a to every value of b, respecting each
// role's cardinality. It reports true when new edges were written and false
// when the call changed no edge set it was asked to extend.
//
// Values are visited in caller order, first a's then b's, one at a time: a
// decision for one value depends on destroys made for the values before it.
// New edges are written a-outer, b-inner, so creation order (and therefore
// the order GetAssociations returns) follows the caller's order.
func (r *Resolver) Associate(ctx context.Context, a, b Role) (bool, error) {
	if err := a.validate("first"); err != nil {
		return false, err
	}
	if err := b.validate("second"); err != nil {
		return false, err
	}
	if a.Attribute == b.Attribute {
		return false, fmt.Errorf("%w: both roles use attribute %q", store.ErrValidation, a.Attribute)
	}

	roles := [2]Role{a, b}
	var writes [2][]string
	for i, role := range roles {
		other := roles[1-i]
		for _, value := range role.Values {
			write, err := r.reconcile(ctx, role, other, value)
			if err != nil {
				return false, fmt.Errorf("associate: %w", err)
			}
			if write {
				writes[i] = append(writes[i], value)
			}
		}
	}

	if len(writes[0]) == 0 || len(writes[1]) == 0 {
		r.logger.Debug("associate made no new edges",
			"collection", r.edges.Name(),
			"firstWrites", len(writes[0]),
			"secondWrites", len(writes[1]),
		)
		return false, nil
	}

	for _, av := range writes[0] {
		for _, bv := range writes[1] {
			_, err := r.edges.Create(ctx, store.Fields{
				a.Attribute: av,
				b.Attribute: bv,
			})
			if err != nil {
				return false, fmt.Errorf("associate: %w", err)
			}
		}
	}

	r.logger.Debug("associate wrote edges",
		"collection", r.edges.Name(),
		"edges", len(writes[0])*len(writes[1]),
	)
	return true, nil
}

// reconcile decides whether value of role needs new edges, destroying its
// existing edge first when the role is singular.
func (r *Resolver) reconcile(ctx context.Context, role, other Role, value string) (bool, error) {
	edges, err := r.edges.FindByIndex(ctx, store.By(role.Attribute, value))
	if err != nil {
		return false, err
	}

	switch {
	case len(edges) == 0:
		return true, nil

	case role.HasMany:
		linked := make(map[string]bool, len(edges))
		for _, e := range edges {
			linked[e.String(other.Attribute)] = true
		}
		for _, ov := range other.Values {
			if !linked[ov] {
				return true, nil
			}
		}
		r.logger.Debug("edges already present",
			"collection", r.edges.Name(),
			"attribute", role.Attribute,
			"value", value,
		)
		return false, nil

	default:
		if len(edges) == 1 && len(other.Values) == 1 && edges[0].String(other.Attribute) == other.Values[0] {
			// Already linked to exactly the requested value.
			return false, nil
		}
		// Singular roles keep one edge: drop whatever is there and relink.
		if _, err := r.edges.DestroyRecords(ctx, edges); err != nil {
			return false, fmt.Errorf("destroy: %w", err)
		}
		r.logger.Debug("replaced singular edge",
			"collection", r.edges.Name(),
			"attribute", role.Attribute,
			"value", value,
			"removed", len(edges),
		)
		return true, nil
	}
}

// Dissociate removes edges of a's single value. With b nil every edge of a
// is removed; otherwise only edges whose b.Attribute is one of b.Values.
// If any requested b value is not linked to a, nothing is removed and
// ErrNotAssociated is returned.
//
// It reports whether a had any edge at all.
func (r *Resolver) Dissociate(ctx context.Context, a Role, b *Role) (bool, error) {
	if err := a.validate("first"); err != nil {
		return false, err
	}
	if len(a.Values) != 1 {
		return false, fmt.Errorf("%w: dissociate takes one %q value, got %d", store.ErrValidation, a.Attribute, len(a.Values))
	}
	if b != nil && b.Attribute == "" {
		return false, fmt.Errorf("%w: second role has no attribute", store.ErrValidation)
	}

	edges, err := r.edges.FindByIndex(ctx, store.By(a.Attribute, a.Values[0]))
	if err != nil {
		return false, fmt.Errorf("dissociate: %w", err)
	}
	if len(edges) == 0 {
		return false, nil
	}

	targets := edges
	if b != nil {
		targets = nil
		found := make(map[string]bool, len(b.Values))
		for _, e := range edges {
			v := e.String(b.Attribute)
			if slices.Contains(b.Values, v) {
				targets = append(targets, e)
				found[v] = true
			}
		}
		for _, v := range b.Values {
			if !found[v] {
				return false, fmt.Errorf("dissociate %s=%s from %s=%s: %w",
					a.Attribute, a.Values[0], b.Attribute, v, store.ErrNotAssociated)
			}
		}
	}

	removed, err := r.edges.DestroyRecords(ctx, targets)
	if err != nil {
		return false, fmt.Errorf("dissociate: %w", err)
	}
	r.logger.Debug("dissociated",
		"collection", r.edges.Name(),
		"attribute", a.Attribute,
		"value", a.Values[0],
		"removed", removed,
	)
	return true, nil
}

// GetAssociations returns the attribute values of every edge matching idx,
// in edge creation order.
func (r *Resolver) GetAssociations(ctx context.Context, idx store.Index, attribute string) ([]string, error) {
	if attribute == "" {
		return nil, fmt.Errorf("%w: no attribute to read", store.ErrValidation)
	}
	edges, err := r.edges.FindByIndex(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("get associations: %w", err)
	}
	values := make([]string, 0, len(edges))
	for _, e := range edges {
		values = append(values, e.String(attribute))
	}
	return values, nil
}
