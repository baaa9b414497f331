package dialect

import (
	"fmt"

	"github.com/artie-labs/tenantsync/lib/sql"
)

const (
	RegistryIDColumn       = "TENANT_ID"
	RegistryNameColumn     = "TENANT_NAME"
	RegistryDatabaseColumn = "DATABASE_NAME"
	RegistrySchemaColumn   = "SCHEMA_NAME"
	RegistryStatusColumn   = "STATUS"
	RegistryCreatedColumn  = "CREATED_AT"
)

// BuildCreateRegistryTableQuery creates the registry if it's missing. Identifiers come from an ordered sequence so
// they are never reused, even after a row is deleted.
func (SnowflakeDialect) BuildCreateRegistryTableQuery(tableID sql.TableIdentifier) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s INT AUTOINCREMENT START 1 INCREMENT 1 ORDER PRIMARY KEY, %s STRING, %s STRING NOT NULL, %s STRING NOT NULL, %s STRING DEFAULT 'Active', %s TIMESTAMP_NTZ DEFAULT CURRENT_TIMESTAMP())`,
		tableID.FullyQualifiedName(),
		RegistryIDColumn, RegistryNameColumn, RegistryDatabaseColumn, RegistrySchemaColumn, RegistryStatusColumn, RegistryCreatedColumn,
	)
}

// BuildListTenantsQuery takes the database name as its only bind.
func (SnowflakeDialect) BuildListTenantsQuery(tableID sql.TableIdentifier) string {
	return fmt.Sprintf("SELECT %s, %s, %s, %s, %s, %s FROM %s WHERE UPPER(%s) = UPPER(?) ORDER BY %s",
		RegistryIDColumn, RegistryNameColumn, RegistryDatabaseColumn, RegistrySchemaColumn, RegistryStatusColumn, RegistryCreatedColumn,
		tableID.FullyQualifiedName(), RegistryDatabaseColumn, RegistryIDColumn,
	)
}

// BuildInsertTenantIfAbsentQuery binds the tenant name, database, schema and status, in that order. The merge only
// inserts when no row has the same (database, schema) pair.
func (SnowflakeDialect) BuildInsertTenantIfAbsentQuery(tableID sql.TableIdentifier) string {
	return fmt.Sprintf(`MERGE INTO %s AS %s USING (SELECT ? AS %s, ? AS %s, ? AS %s, ? AS %s) AS %s ON UPPER(%s.%s) = UPPER(%s.%s) AND UPPER(%s.%s) = UPPER(%s.%s) WHEN NOT MATCHED THEN INSERT (%s, %s, %s, %s) VALUES (%s.%s, %s.%s, %s.%s, %s.%s)`,
		tableID.FullyQualifiedName(), targetAlias,
		RegistryNameColumn, RegistryDatabaseColumn, RegistrySchemaColumn, RegistryStatusColumn, stagingAlias,
		targetAlias, RegistryDatabaseColumn, stagingAlias, RegistryDatabaseColumn,
		targetAlias, RegistrySchemaColumn, stagingAlias, RegistrySchemaColumn,
		RegistryNameColumn, RegistryDatabaseColumn, RegistrySchemaColumn, RegistryStatusColumn,
		stagingAlias, RegistryNameColumn, stagingAlias, RegistryDatabaseColumn, stagingAlias, RegistrySchemaColumn, stagingAlias, RegistryStatusColumn,
	)
}
