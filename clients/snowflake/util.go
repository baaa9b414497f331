package snowflake

import (
	"database/sql"
	"fmt"
	"strconv"

	sqllib "github.com/artie-labs/tenantsync/lib/sql"
)

func scanCount(rows *sql.Rows) (int64, error) {
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to scan count: %w", err)
		}
	}

	return count, rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, value)
	}

	return values, rows.Err()
}

// parseRowsLoaded reads the `rows_loaded` column of a COPY INTO result. Snowflake returns numbers as strings when
// scanning into [any].
func parseRowsLoaded(value any) (int64, error) {
	switch castedValue := value.(type) {
	case int64:
		return castedValue, nil
	case string:
		return strconv.ParseInt(castedValue, 10, 64)
	case []byte:
		return strconv.ParseInt(string(castedValue), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T for rows loaded", value)
	}
}

// addPrefixToTableName will take a [sql.TableIdentifier] and add a prefix in front of the table.
// This is necessary for `PUT` commands. The fully qualified name will look like: "dbName"."schemaName"."%tableName"
func addPrefixToTableName(tableID sqllib.TableIdentifier, prefix string) string {
	return tableID.WithTable(prefix + tableID.Table()).FullyQualifiedName()
}

// rowsAffected is best effort, it returns -1 when the driver cannot tell.
func rowsAffected(result sql.Result) int64 {
	count, err := result.RowsAffected()
	if err != nil {
		return -1
	}
	return count
}
