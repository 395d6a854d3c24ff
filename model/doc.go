// Package model is the schema-aware facade over lattice collections.
//
// A [Catalog] holds one [Model] per collection plus a [Registry] of declared
// relationships. Models wrap the store's Base Actions in a fixed hook
// pipeline and translate (id, role) calls into association reconciliation:
//
//	org, _ := catalog.Model("organizations")
//	org.SetChildren(ctx, orgID, "contacts", []string{c1, c2})
//	contacts, _ := org.GetChildren(ctx, orgID, "contacts")
//
// Relationship edges live in an association table named after both
// collections, sorted and joined with "_", so both directions of a
// relationship share one table. Edge attributes are the singular
// collection names.
//
// # Dependent Rules
//
// When a record is destroyed, each relationship it owns applies its rule:
// Nullify removes the edges, Cascade removes the edges and then destroys
// each linked record through its own model, recursively. Keep does nothing.
//
// Two relationships between the same pair of collections share one edge
// table and cannot be told apart.
package model
