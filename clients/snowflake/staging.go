package snowflake

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artie-labs/tenantsync/clients/snowflake/dialect"
	"github.com/artie-labs/tenantsync/lib/batch"
	"github.com/artie-labs/tenantsync/lib/csvwriter"
	"github.com/artie-labs/tenantsync/lib/maputil"
	"github.com/artie-labs/tenantsync/lib/sql"
)

func (s *Store) buildColumnSQLParts(b *batch.Batch) []string {
	var parts []string
	for idx, column := range b.Columns() {
		kindDetails := batch.InferKind(b.Column(idx))
		parts = append(parts, fmt.Sprintf("%s %s", s.dialect().QuoteIdentifier(column), s.dialect().DataTypeForKind(kindDetails)))
	}
	return parts
}

// CreateTableFromBatch replaces [tableID] with a table shaped after [b] and then loads [b] into it.
func (s *Store) CreateTableFromBatch(ctx context.Context, tableID sql.TableIdentifier, b *batch.Batch) (int64, error) {
	if b.NumColumns() == 0 {
		return 0, fmt.Errorf("cannot create table %q without any columns", tableID.FullyQualifiedName())
	}

	query := s.dialect().BuildCreateTableQuery(tableID, s.buildColumnSQLParts(b))
	slog.Debug("Creating table", slog.String("query", query))
	if _, err := s.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("failed to create table %q: %w", tableID.FullyQualifiedName(), err)
	}

	return s.WriteBatch(ctx, tableID, b)
}

// WriteBatch writes [b] into a gzipped file, uploads it into the table stage of [tableID] and then copies it in.
func (s *Store) WriteBatch(ctx context.Context, tableID sql.TableIdentifier, b *batch.Batch) (int64, error) {
	if b.NumRows() == 0 {
		return 0, nil
	}

	castedTableID, ok := tableID.(dialect.TableIdentifier)
	if !ok {
		return 0, fmt.Errorf("failed to cast table identifier, got: %T", tableID)
	}

	dir, err := os.MkdirTemp("", "tenantsync")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary directory: %w", err)
	}

	defer func() {
		// In the case where PUT or COPY fails, we'll at least delete the temporary file.
		if deleteErr := os.RemoveAll(dir); deleteErr != nil {
			slog.Warn("Failed to delete temp file", slog.Any("err", deleteErr), slog.String("dir", dir))
		}
	}()

	filePath := filepath.Join(dir, castedTableID.StagingFileName())
	fileName, err := writeStagingFile(filePath, b)
	if err != nil {
		return 0, fmt.Errorf("failed to write staging file: %w", err)
	}

	// Upload the CSV file to Snowflake internal stage
	tableStageName := addPrefixToTableName(tableID, "%")
	putQuery := fmt.Sprintf("PUT 'file://%s' @%s", filePath, tableStageName)
	if _, err = s.ExecContext(ctx, putQuery); err != nil {
		return 0, fmt.Errorf("failed to run PUT for table %q: %w", tableID.FullyQualifiedName(), err)
	}

	// COPY INTO does not implement [RowsAffected]. Instead, we'll treat this as a query and then parse the output:
	// https://docs.snowflake.com/en/sql-reference/sql/copy-into-table#output
	copyCommand := s.dialect().BuildCopyIntoTableQuery(tableID, b.Columns(), tableStageName, fileName)
	sqlRows, err := s.QueryContext(ctx, copyCommand)
	if err != nil {
		// [PURGE = TRUE] only deletes the staging files upon a successful COPY INTO.
		if _, deleteErr := s.ExecContext(ctx, s.dialect().BuildRemoveFilesFromStage(tableStageName)); deleteErr != nil {
			slog.Warn("Failed to remove all files from stage", slog.Any("deleteErr", deleteErr))
		}

		return 0, fmt.Errorf("failed to run copy into table %q: %w", tableID.FullyQualifiedName(), err)
	}

	rows, err := sql.RowsToObjects(sqlRows)
	if err != nil {
		return 0, fmt.Errorf("failed to convert rows to objects: %w", err)
	}

	var rowsLoaded int64
	for _, row := range rows {
		value, err := maputil.GetTypeFromMap[any](row, "ROWS_LOADED")
		if err != nil {
			return 0, fmt.Errorf("failed to get rows loaded: %w", err)
		}

		_rowsLoaded, err := parseRowsLoaded(value)
		if err != nil {
			return 0, fmt.Errorf("failed to parse rows loaded: %w", err)
		}

		rowsLoaded += _rowsLoaded
	}

	expectedRows := int64(b.NumRows())
	if rowsLoaded != expectedRows {
		return 0, fmt.Errorf("expected %d rows to be inserted, but got %d", expectedRows, rowsLoaded)
	}

	return rowsLoaded, nil
}

func writeStagingFile(filePath string, b *batch.Batch) (string, error) {
	writer, err := csvwriter.NewGzipWriter(filePath)
	if err != nil {
		return "", err
	}

	for _, row := range b.Rows() {
		record := make([]string, len(row))
		for i, value := range row {
			record[i] = castColValStaging(value)
		}

		if err = writer.Write(record); err != nil {
			_ = writer.Close()
			return "", fmt.Errorf("failed to write row: %w", err)
		}
	}

	if err = writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	return writer.FileName(), nil
}
