package normalize

import "errors"

var (
	// ErrEmptyBatch reports a batch that yielded zero usable records. Callers
	// treat it as a warning: the run continues with no rows for that batch.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrMissingIdentifier reports a record missing a configured identifier
	// column when identifiers are required. Fatal for that record.
	ErrMissingIdentifier = errors.New("missing identifier")

	// ErrTableMismatch reports an attempt to merge fragments of two different
	// logical tables (name or id columns differ). Fatal for the run; it
	// signals an upstream schema contract break.
	ErrTableMismatch = errors.New("table identity mismatch")

	// ErrDeleteSpecConflict reports fragments whose delete specifications
	// target different columns or operators. Fatal for the run.
	ErrDeleteSpecConflict = errors.New("delete spec conflict")
)
