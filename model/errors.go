package model

import (
	"fmt"

	"github.com/jacentio/lattice/store"
)

var (
	// ErrUnknownRole is returned when a role name matches no declared relationship.
	ErrUnknownRole = fmt.Errorf("%w: unknown role", store.ErrValidation)

	// ErrUnknownCollection is returned when no model is registered for a collection.
	ErrUnknownCollection = fmt.Errorf("%w: unknown collection", store.ErrValidation)

	// ErrWrongCardinality is returned when a singular child operation is used
	// on a many relationship, or the reverse.
	ErrWrongCardinality = fmt.Errorf("%w: wrong cardinality for operation", store.ErrValidation)
)
