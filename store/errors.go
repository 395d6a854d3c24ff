package store

import "errors"

var (
	// ErrValidation is returned for malformed or missing call parameters, before any I/O.
	ErrValidation = errors.New("lattice: invalid request")

	// ErrNotFound is returned when an index resolves to no record.
	ErrNotFound = errors.New("lattice: record not found")

	// ErrMultipleRecords is returned when an index expected to be unique matches several records.
	ErrMultipleRecords = errors.New("lattice: index matched more than one record")

	// ErrNotAssociated is returned when a requested dissociation target is not linked.
	ErrNotAssociated = errors.New("lattice: records are not associated")

	// ErrAlreadyExists is returned when a record with the same primary key already exists.
	ErrAlreadyExists = errors.New("lattice: record already exists")

	// ErrUnprocessedItems is returned when a batch write leaves requests unprocessed.
	// Batches are never retried.
	ErrUnprocessedItems = errors.New("lattice: batch write left unprocessed items")

	// ErrCounterUnderflow is returned when a decrement would take a counter below zero.
	ErrCounterUnderflow = errors.New("lattice: counter would go negative")
)

// AdapterError reports a request rejected by DynamoDB, tagged with the
// operation that issued it.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

func adapterError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Op: op, Err: err}
}
