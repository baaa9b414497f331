package dialect

import (
	"fmt"
	"strings"

	"github.com/artie-labs/tenantsync/lib/sql"
)

const (
	targetAlias  = "tgt"
	stagingAlias = "stg"

	// NullValuePlaceholder is written to staging files in place of nil.
	NullValuePlaceholder = `\N`
)

type SnowflakeDialect struct{}

func (SnowflakeDialect) QuoteIdentifier(identifier string) string {
	return fmt.Sprintf(`"%s"`, strings.ToUpper(identifier))
}

func (SnowflakeDialect) IsColumnAlreadyExistsErr(err error) bool {
	// Snowflake doesn't have column mutations (IF NOT EXISTS)
	return err != nil && strings.Contains(err.Error(), "already exists")
}

// IsTableDoesNotExistErr will check if the resulting error message looks like this
// Table 'DATABASE.SCHEMA.TABLE' does not exist or not authorized.
func (SnowflakeDialect) IsTableDoesNotExistErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "does not exist or not authorized")
}

// BuildCreateTableQuery replaces [tableID]. The table stage is configured so that gzipped, tab delimited files can be
// copied straight in.
func (SnowflakeDialect) BuildCreateTableQuery(tableID sql.TableIdentifier, colSQLParts []string) string {
	// PURGE syntax - https://docs.snowflake.com/en/sql-reference/sql/copy-into-table#purging-files-after-loading
	// FIELD_OPTIONALLY_ENCLOSED_BY - is needed because CSV will try to escape any values that have `"`
	return fmt.Sprintf(`CREATE OR REPLACE TABLE %s (%s) STAGE_COPY_OPTIONS = ( PURGE = TRUE ) STAGE_FILE_FORMAT = ( TYPE = 'csv' FIELD_DELIMITER= '\t' FIELD_OPTIONALLY_ENCLOSED_BY='"' NULL_IF='\\N' EMPTY_FIELD_AS_NULL=FALSE)`,
		tableID.FullyQualifiedName(), strings.Join(colSQLParts, ","))
}

func (sd SnowflakeDialect) BuildCopyIntoTableQuery(tableID sql.TableIdentifier, columns []string, stageName, fileName string) string {
	positions := make([]string, len(columns))
	for i := range columns {
		positions[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf("COPY INTO %s (%s) FROM (SELECT %s FROM @%s) FILES = ('%s')",
		tableID.FullyQualifiedName(),
		strings.Join(sql.QuoteIdentifiers(columns, sd), ","),
		strings.Join(positions, ","),
		stageName,
		fileName,
	)
}

func (SnowflakeDialect) BuildRemoveFilesFromStage(stageName string) string {
	return fmt.Sprintf("REMOVE @%s", stageName)
}

func (SnowflakeDialect) BuildTruncateTableQuery(tableID sql.TableIdentifier) string {
	return fmt.Sprintf("TRUNCATE TABLE IF EXISTS %s", tableID.FullyQualifiedName())
}

func (sd SnowflakeDialect) BuildInsertFromTableQuery(targetID, sourceID sql.TableIdentifier, columns []string) string {
	quoted := strings.Join(sql.QuoteIdentifiers(columns, sd), ",")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", targetID.FullyQualifiedName(), quoted, quoted, sourceID.FullyQualifiedName())
}

// BuildMergeQuery updates every non-key column of matched rows and inserts the rest.
func (sd SnowflakeDialect) BuildMergeQuery(targetID, sourceID sql.TableIdentifier, keys, columns []string) string {
	var onClauses []string
	for _, key := range keys {
		quoted := sd.QuoteIdentifier(key)
		onClauses = append(onClauses, fmt.Sprintf("%s.%s = %s.%s", targetAlias, quoted, stagingAlias, quoted))
	}

	var updates, inserts, values []string
	for _, column := range columns {
		quoted := sd.QuoteIdentifier(column)
		inserts = append(inserts, quoted)
		values = append(values, fmt.Sprintf("%s.%s", stagingAlias, quoted))
		if !containsFold(keys, column) {
			updates = append(updates, fmt.Sprintf("%s=%s.%s", quoted, stagingAlias, quoted))
		}
	}

	query := fmt.Sprintf("MERGE INTO %s AS %s USING %s AS %s ON %s",
		targetID.FullyQualifiedName(), targetAlias, sourceID.FullyQualifiedName(), stagingAlias, strings.Join(onClauses, " AND "))
	if len(updates) > 0 {
		query += fmt.Sprintf(" WHEN MATCHED THEN UPDATE SET %s", strings.Join(updates, ","))
	}

	return query + fmt.Sprintf(" WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)", strings.Join(inserts, ","), strings.Join(values, ","))
}

func (SnowflakeDialect) BuildCreateTableLikeQuery(targetID, sourceID sql.TableIdentifier) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s LIKE %s", targetID.FullyQualifiedName(), sourceID.FullyQualifiedName())
}

func (sd SnowflakeDialect) BuildDistinctValuesQuery(tableID sql.TableIdentifier, column string) string {
	quoted := sd.QuoteIdentifier(column)
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL", quoted, tableID.FullyQualifiedName(), quoted)
}

// BuildCountTenantRowsQuery takes the tenant identifier as its only bind.
func (sd SnowflakeDialect) BuildCountTenantRowsQuery(tableID sql.TableIdentifier, tenantColumn string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", tableID.FullyQualifiedName(), sd.QuoteIdentifier(tenantColumn))
}

// BuildCountForeignTenantRowsQuery counts the rows that do not carry the tenant identifier, which is the only bind.
func (sd SnowflakeDialect) BuildCountForeignTenantRowsQuery(tableID sql.TableIdentifier, tenantColumn string) string {
	quoted := sd.QuoteIdentifier(tenantColumn)
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL OR %s <> ?", tableID.FullyQualifiedName(), quoted, quoted)
}

// BuildInsertTenantRowsQuery copies [columns] from [sourceID] unless [targetID] already has rows for the tenant.
// Every bind is the tenant identifier: one for the guard, preceded by one for [tenantColumn] when
// [injectTenantColumn] is set.
func (sd SnowflakeDialect) BuildInsertTenantRowsQuery(targetID, sourceID sql.TableIdentifier, columns []string, tenantColumn string, injectTenantColumn bool) string {
	quoted := sql.QuoteIdentifiers(columns, sd)
	selected := strings.Join(quoted, ",")
	if injectTenantColumn {
		quoted = append(quoted, sd.QuoteIdentifier(tenantColumn))
		selected += fmt.Sprintf(",? AS %s", sd.QuoteIdentifier(tenantColumn))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s = ?)",
		targetID.FullyQualifiedName(), strings.Join(quoted, ","), selected, sourceID.FullyQualifiedName(),
		targetID.FullyQualifiedName(), sd.QuoteIdentifier(tenantColumn))
}

// BuildTagTenantRowsQuery sets [tenantColumn] on every row that does not carry the tenant identifier yet. Both binds
// are the tenant identifier.
func (sd SnowflakeDialect) BuildTagTenantRowsQuery(tableID sql.TableIdentifier, tenantColumn string) string {
	quoted := sd.QuoteIdentifier(tenantColumn)
	return fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s IS NULL OR %s <> ?", tableID.FullyQualifiedName(), quoted, quoted, quoted)
}

// BuildListSchemasQuery lists the schemas of [database], there are no binds.
func (sd SnowflakeDialect) BuildListSchemasQuery(database string) string {
	return fmt.Sprintf("SELECT SCHEMA_NAME FROM %s.INFORMATION_SCHEMA.SCHEMATA ORDER BY SCHEMA_NAME", sd.QuoteIdentifier(database))
}

// BuildListTablesQuery takes the schema name as its only bind.
func (sd SnowflakeDialect) BuildListTablesQuery(database string) string {
	return fmt.Sprintf("SELECT TABLE_NAME FROM %s.INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME", sd.QuoteIdentifier(database))
}

// BuildTableExistsQuery takes the schema and table names as binds.
func (sd SnowflakeDialect) BuildTableExistsQuery(database string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?", sd.QuoteIdentifier(database))
}

// BuildDescribeTableQuery takes the schema and table names as binds.
func (sd SnowflakeDialect) BuildDescribeTableQuery(database string) string {
	return fmt.Sprintf("SELECT COLUMN_NAME FROM %s.INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION", sd.QuoteIdentifier(database))
}

func containsFold(values []string, value string) bool {
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
