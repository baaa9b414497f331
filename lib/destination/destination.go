package destination

import (
	"context"

	"github.com/artie-labs/tenantsync/lib/batch"
	sqllib "github.com/artie-labs/tenantsync/lib/sql"
	"github.com/artie-labs/tenantsync/models"
)

// TableManager covers table lookups that every component needs.
type TableManager interface {
	Dialect() sqllib.Dialect
	IdentifierFor(database, schema, table string) sqllib.TableIdentifier
	TableExists(ctx context.Context, tableID sqllib.TableIdentifier) (bool, error)
	// DescribeTable returns the column names of an existing table in their declared order.
	DescribeTable(ctx context.Context, tableID sqllib.TableIdentifier) ([]string, error)
	DropTable(ctx context.Context, tableID sqllib.TableIdentifier) error
}

// Destination is the surface used by the loader to stage a batch and apply it to a target table.
type Destination interface {
	TableManager

	// CreateTableFromBatch creates (or replaces) [tableID] with a layout derived from [b] and loads every row of [b].
	CreateTableFromBatch(ctx context.Context, tableID sqllib.TableIdentifier, b *batch.Batch) (int64, error)
	// OverwriteFromTable atomically replaces the rows of [targetID] with [columns] of [sourceID].
	OverwriteFromTable(ctx context.Context, targetID, sourceID sqllib.TableIdentifier, columns []string) (int64, error)
	// MergeFromTable updates the rows of [targetID] matching [sourceID] on [keys] and inserts the others.
	MergeFromTable(ctx context.Context, targetID, sourceID sqllib.TableIdentifier, keys, columns []string) (int64, error)
}

type Catalog interface {
	ListSchemas(ctx context.Context, database string) ([]string, error)
	ListTables(ctx context.Context, database, schema string) ([]string, error)
}

type InsertTenantRowsArgs struct {
	TargetID sqllib.TableIdentifier
	SourceID sqllib.TableIdentifier
	// Columns are the source columns to copy, [TenantColumn] is appended when [InjectTenantColumn] is set.
	Columns            []string
	TenantColumn       string
	TenantID           int64
	InjectTenantColumn bool
}

type InsertTenantRowsResult struct {
	Inserted int64
	// AlreadyPresent is set when the target already had rows for the tenant, in which case nothing was inserted.
	AlreadyPresent bool
}

// Consolidator is the surface used to copy tenant tables into a shared table.
type Consolidator interface {
	TableManager
	Catalog

	// CreateTableLike creates [targetID] with the layout of [sourceID] if it does not already exist.
	CreateTableLike(ctx context.Context, targetID, sourceID sqllib.TableIdentifier) error
	// AddColumn is a no-op if the column is already there.
	AddColumn(ctx context.Context, tableID sqllib.TableIdentifier, column string, kind batch.Kind) error
	DistinctInt64s(ctx context.Context, tableID sqllib.TableIdentifier, column string) ([]int64, error)
	// InsertTenantRows copies a tenant's rows within a transaction, only if the target has none for that tenant.
	InsertTenantRows(ctx context.Context, args InsertTenantRowsArgs) (InsertTenantRowsResult, error)
	// TagTenantRows sets [tenantColumn] to [tenantID] on the rows of [tableID] that do not carry it yet.
	TagTenantRows(ctx context.Context, tableID sqllib.TableIdentifier, tenantColumn string, tenantID int64) (int64, error)
}

type RegistryStore interface {
	EnsureRegistryTable(ctx context.Context, tableID sqllib.TableIdentifier) error
	ListTenants(ctx context.Context, tableID sqllib.TableIdentifier, database string) ([]models.Tenant, error)
	// InsertTenantIfAbsent atomically registers [tenant] unless its (database, schema) pair is already registered.
	InsertTenantIfAbsent(ctx context.Context, tableID sqllib.TableIdentifier, tenant models.Tenant) (bool, error)
}

// Warehouse is implemented by every backend.
type Warehouse interface {
	Destination
	Catalog
	Consolidator
	RegistryStore
}
