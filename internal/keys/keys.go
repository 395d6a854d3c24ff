// Package keys derives the physical names and keys shared by collections,
// association tables and counters.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sort"

	"github.com/jinzhu/inflection"
)

// CounterKey computes the counter row key for a fully qualified collection name.
// The digest keeps keys fixed-width regardless of how long prefixed names get.
func CounterKey(fullName string) string {
	h := sha256.Sum256([]byte(fullName))
	return hex.EncodeToString(h[:])
}

// FullCollectionName qualifies a collection tag with its physical table name.
func FullCollectionName(table, collection string) string {
	return table + "#" + collection
}

// AssociationTable returns the table shared by both directions of a
// relationship between two collections.
func AssociationTable(a, b string) string {
	names := []string{a, b}
	sort.Strings(names)
	return names[0] + "_" + names[1]
}

// RoleAttribute returns the edge attribute naming a collection's side of an
// association (e.g. "users" -> "user").
func RoleAttribute(collection string) string {
	return inflection.Singular(collection)
}

// IndexName returns the secondary index name for a hash and optional range attribute.
func IndexName(hash, rangeKey string) string {
	if rangeKey == "" {
		return hash + "-index"
	}
	return hash + "-" + rangeKey + "-index"
}

// Candidates returns the lookup order for a role name: as given, plural, singular.
// Duplicates are removed so callers can stop at the first hit.
func Candidates(name string) []string {
	out := []string{name}
	for _, c := range []string{inflection.Plural(name), inflection.Singular(name)} {
		if c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
