package destination

import "fmt"

// TenantColumnMismatchError is returned when a source table already carries the tenant column but some of its rows
// hold another value than the registered tenant identifier.
type TenantColumnMismatchError struct {
	Table    string
	Column   string
	TenantID int64
	Rows     int64
}

func (e TenantColumnMismatchError) Error() string {
	return fmt.Sprintf("table %q has %d rows where %q is not %d", e.Table, e.Rows, e.Column, e.TenantID)
}
