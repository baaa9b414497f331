package consolidation

import "fmt"

type SourceTableMissingError struct {
	Table  string
	Schema string
}

func (e SourceTableMissingError) Error() string {
	return fmt.Sprintf("table %q does not exist in tenant schema %q", e.Table, e.Schema)
}

// DuplicateTenantIdentifierError is returned when two schemas claim the same tenant id, only the first one is merged.
type DuplicateTenantIdentifierError struct {
	TenantID      int64
	Schema        string
	ClaimedSchema string
}

func (e DuplicateTenantIdentifierError) Error() string {
	return fmt.Sprintf("tenant id %d of schema %q is already claimed by schema %q", e.TenantID, e.Schema, e.ClaimedSchema)
}
