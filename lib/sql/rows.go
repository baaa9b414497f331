package sql

import (
	"database/sql"
	"fmt"
	"strings"
)

// RowsToObjects drains [rows] into maps keyed by the upper-cased column name, since Snowflake returns unquoted
// identifiers upper-cased while `SHOW` commands return lower-cased column headers.
func RowsToObjects(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var objects []map[string]any
	for rows.Next() {
		row := make([]any, len(columns))
		rowPointers := make([]any, len(columns))
		for i := range row {
			rowPointers[i] = &row[i]
		}

		if err = rows.Scan(rowPointers...); err != nil {
			return nil, err
		}

		object := make(map[string]any)
		for i, column := range columns {
			object[strings.ToUpper(column)] = row[i]
		}

		objects = append(objects, object)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over rows: %w", err)
	}

	return objects, nil
}

// RowsToBatchValues drains [rows] into the column names and a slice of rows, preserving the column order.
func RowsToBatchValues(rows *sql.Rows) ([]string, [][]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var values [][]any
	for rows.Next() {
		row := make([]any, len(columns))
		rowPointers := make([]any, len(columns))
		for i := range row {
			rowPointers[i] = &row[i]
		}

		if err = rows.Scan(rowPointers...); err != nil {
			return nil, nil, err
		}

		values = append(values, row)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate over rows: %w", err)
	}

	return columns, values, nil
}
