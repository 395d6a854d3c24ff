// Package store provides the Base Actions and atomic counters that the rest
// of lattice builds relational semantics on.
//
// Lattice keeps many logical collections in shared DynamoDB tables. Every
// record carries three managed attributes besides its own fields:
//
//   - id: globally unique identifier (uuid v4)
//   - created_at: creation time in unix nanoseconds
//   - collection: the collection tag
//
// (id, created_at) is the primary key, and the "collection-created_at-index"
// GSI orders each collection by creation time.
//
// # Base Actions
//
// Records are created only by [Collection.Create] and removed only by
// [Collection.Destroy] or [Collection.DestroyRecords]. Lookups go through
// [Collection.FindByIndex], ordered scans through [Collection.Take],
// [Collection.All], [Collection.First] and [Collection.Last]:
//
//	users := st.Collection("app", "users")
//	page, err := users.Take(ctx, store.ScanOptions{Limit: 20})
//	next, err := users.Take(ctx, store.ScanOptions{Limit: 20, Cursor: page.Cursor})
//
// # Counters
//
// Each collection has a counter row keyed by a sha256 digest of its
// table-qualified name. Counters only change through a single atomic ADD,
// so concurrent creates and destroys never lose updates. Writing a record
// and bumping its counter are two separate requests.
//
// # Configuration
//
// Use [DefaultConfig] and set TablePrefix/TableSuffix per environment:
//
//	cfg := store.DefaultConfig()
//	cfg.TablePrefix = "dev-"
//
// # Errors
//
//   - [ErrValidation] - malformed call, rejected before any I/O
//   - [ErrNotFound] - index matched nothing
//   - [ErrMultipleRecords] - index expected to be unique matched several records
//   - [ErrNotAssociated] - dissociation target is not linked
//   - [ErrUnprocessedItems] - batch delete partially applied, not retried
//   - [ErrCounterUnderflow] - decrement would take a counter below zero
//
// DynamoDB failures are wrapped in [AdapterError] naming the operation;
// enclosing operations prefix their own names.
package store
