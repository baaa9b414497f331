package models

import "time"

const TenantStatusActive = "Active"

// Tenant is a row of the tenant registry. ID is assigned by the warehouse the first time the schema is registered
// and is never reassigned, even if the schema is later dropped.
type Tenant struct {
	ID        int64
	Name      string
	Database  string
	Schema    string
	Status    string
	CreatedAt time.Time
}
