package model

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jacentio/lattice/store"
)

// Snapshot is the value threaded through a hook pipeline. Stages may
// replace it; the operation reads its inputs from the snapshot it receives.
type Snapshot struct {
	// Op is the running operation: "get", "get all", "create", "update" or "destroy".
	Op string

	// Index selects the record for get, update and destroy.
	Index store.Index

	// Fields are the attributes supplied to create and update.
	Fields store.Fields

	// Scan holds the options of a get all.
	Scan store.ScanOptions

	// Record is the operation's result, set before After runs.
	Record *store.Record

	// Page is the result of a get all.
	Page *store.Page
}

// Stage is one step of a hook pipeline. Returning an error aborts the chain.
type Stage func(ctx context.Context, s *Snapshot) (*Snapshot, error)

// FieldValidator checks one supplied field.
type FieldValidator func(ctx context.Context, field string, value any) error

// Hooks are the optional stages run around a model operation, in order:
// BeforeValidation, Validate, Validators, AfterValidation, Before, the
// operation, After. Nil stages pass the snapshot through.
type Hooks struct {
	BeforeValidation Stage
	Validate         Stage
	AfterValidation  Stage
	Before           Stage
	After            Stage

	// Validators run per supplied field, in field name order.
	Validators map[string]FieldValidator
}

func (h *Hooks) run(ctx context.Context, snap *Snapshot, op Stage) (*Snapshot, error) {
	if h == nil {
		h = &Hooks{}
	}
	stages := []Stage{
		h.BeforeValidation,
		h.Validate,
		h.validateFields,
		h.AfterValidation,
		h.Before,
		op,
		h.After,
	}

	var err error
	for _, stage := range stages {
		if stage == nil {
			continue
		}
		if snap, err = stage(ctx, snap); err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, errors.New("lattice: hook returned no snapshot")
		}
	}
	return snap, nil
}

func (h *Hooks) validateFields(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	if len(h.Validators) == 0 || len(snap.Fields) == 0 {
		return snap, nil
	}
	names := make([]string, 0, len(snap.Fields))
	for name := range snap.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		validate, ok := h.Validators[name]
		if !ok {
			continue
		}
		if err := validate(ctx, name, snap.Fields[name]); err != nil {
			if errors.Is(err, store.ErrValidation) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %w", store.ErrValidation, name, err)
		}
	}
	return snap, nil
}
