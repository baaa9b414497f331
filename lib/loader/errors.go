package loader

import (
	"errors"
	"fmt"
)

// ErrEmptyBatch is returned for batches without rows, callers are expected to log it and move on.
var ErrEmptyBatch = errors.New("batch has no rows")

type TargetMissingError struct {
	Table string
}

func (e TargetMissingError) Error() string {
	return fmt.Sprintf("table %q does not exist, it has to be created before running a full refresh", e.Table)
}

// MissingKeyError is returned when an upsert has no key columns, or when a key column is not in the batch.
type MissingKeyError struct {
	Table  string
	Column string
}

func (e MissingKeyError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("no key columns are configured for table %q", e.Table)
	}
	return fmt.Sprintf("key column %q is missing from the batch for table %q", e.Column, e.Table)
}
