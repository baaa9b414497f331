package constants

import "time"

const (
	// TempTablePrefix is prepended to the upper-cased target table name to build the staging table.
	TempTablePrefix = "TEMP_"

	DefaultTenantColumn = "TENANT_ID"

	DefaultRegistryDatabase = "BEE_MASTER"
	DefaultRegistrySchema   = "PUBLIC"
	DefaultRegistryTable    = "CLIENT_DATABASES"

	DefaultConsolidationDatabase = "BEE_MERGE"
	DefaultConsolidationSchema   = "PUBLIC"

	DefaultMaxWorkers = 4
	DefaultLockTTL    = 30 * time.Minute
)

// SystemSchemas are never tenant schemas.
var SystemSchemas = []string{"INFORMATION_SCHEMA", "ACCOUNT_USAGE", "PUBLIC"}

// ExporterKind is used for the Telemetry package
type ExporterKind string

const (
	Datadog ExporterKind = "datadog"
)

type Task string

const (
	TaskLoad        Task = "load"
	TaskSyncTenants Task = "sync-tenants"
	TaskConsolidate Task = "consolidate"
)

func (t Task) IsValid() bool {
	switch t {
	case TaskLoad, TaskSyncTenants, TaskConsolidate:
		return true
	default:
		return false
	}
}

type SourceDriver string

const (
	SQLServer SourceDriver = "sqlserver"
	Postgres  SourceDriver = "pgx"
	MySQL     SourceDriver = "mysql"
)

func (s SourceDriver) IsValid() bool {
	switch s {
	case SQLServer, Postgres, MySQL:
		return true
	default:
		return false
	}
}
