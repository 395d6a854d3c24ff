package store

import (
	"time"

	"github.com/google/uuid"
)

// Config holds configuration for the Store. It is copied into the Store at
// construction and never mutated afterwards.
type Config struct {
	// TablePrefix and TableSuffix wrap every physical table name,
	// e.g. "dev-" + "app" + "-v2".
	TablePrefix string
	TableSuffix string

	// CounterTable is the logical name of the counter table.
	// Default: "lattice_counters"
	CounterTable string

	// CollectionIndex is the secondary index on (collection, created_at).
	// Default: "collection-created_at-index"
	CollectionIndex string

	// BatchSize is the number of delete requests per BatchWriteItem call.
	// Default: 25 (the DynamoDB maximum)
	BatchSize int

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time

	// NewID generates record identifiers. Default: uuid.NewString
	NewID func() string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CounterTable:    "lattice_counters",
		CollectionIndex: "collection-created_at-index",
		BatchSize:       25,
		Clock:           time.Now,
		NewID:           uuid.NewString,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.CounterTable == "" {
		c.CounterTable = "lattice_counters"
	}
	if c.CollectionIndex == "" {
		c.CollectionIndex = "collection-created_at-index"
	}
	if c.BatchSize < 1 || c.BatchSize > 25 {
		c.BatchSize = 25
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
}

// TableName returns the physical name of a logical table.
func (c Config) TableName(table string) string {
	return c.TablePrefix + table + c.TableSuffix
}
