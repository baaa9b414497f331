package snowflake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/artie-labs/tenantsync/lib/batch"
	"github.com/artie-labs/tenantsync/lib/sql"
)

func (s *Store) TableExists(ctx context.Context, tableID sql.TableIdentifier) (bool, error) {
	rows, err := s.QueryContext(ctx, s.dialect().BuildTableExistsQuery(tableID.Database()), strings.ToUpper(tableID.Schema()), strings.ToUpper(tableID.Table()))
	if err != nil {
		return false, fmt.Errorf("failed to check if table %q exists: %w", tableID.FullyQualifiedName(), err)
	}

	count, err := scanCount(rows)
	if err != nil {
		return false, fmt.Errorf("failed to check if table %q exists: %w", tableID.FullyQualifiedName(), err)
	}

	return count > 0, nil
}

func (s *Store) DescribeTable(ctx context.Context, tableID sql.TableIdentifier) ([]string, error) {
	rows, err := s.QueryContext(ctx, s.dialect().BuildDescribeTableQuery(tableID.Database()), strings.ToUpper(tableID.Schema()), strings.ToUpper(tableID.Table()))
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %q: %w", tableID.FullyQualifiedName(), err)
	}

	columns, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %q: %w", tableID.FullyQualifiedName(), err)
	}

	if len(columns) == 0 {
		// Same message as a query against a missing table.
		return nil, fmt.Errorf("table '%s' does not exist or not authorized", tableID.FullyQualifiedName())
	}

	return columns, nil
}

func (s *Store) DropTable(ctx context.Context, tableID sql.TableIdentifier) error {
	if _, err := s.ExecContext(ctx, sql.DefaultBuildDropTableQuery(tableID)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	return nil
}

func (s *Store) CreateTableLike(ctx context.Context, targetID, sourceID sql.TableIdentifier) error {
	if _, err := s.ExecContext(ctx, s.dialect().BuildCreateTableLikeQuery(targetID, sourceID)); err != nil {
		return fmt.Errorf("failed to create table %q: %w", targetID.FullyQualifiedName(), err)
	}

	return nil
}

func (s *Store) AddColumn(ctx context.Context, tableID sql.TableIdentifier, column string, kind batch.Kind) error {
	sqlPart := fmt.Sprintf("%s %s", s.dialect().QuoteIdentifier(column), s.dialect().DataTypeForKind(batch.KindDetails{Kind: kind}))
	if _, err := s.ExecContext(ctx, sql.DefaultBuildAddColumnQuery(tableID, sqlPart)); err != nil {
		if s.dialect().IsColumnAlreadyExistsErr(err) {
			slog.Debug("Column already exists, skipping", slog.String("table", tableID.FullyQualifiedName()), slog.String("column", column))
			return nil
		}

		return fmt.Errorf("failed to add column %q: %w", column, err)
	}

	return nil
}

func (s *Store) DistinctInt64s(ctx context.Context, tableID sql.TableIdentifier, column string) ([]int64, error) {
	rows, err := s.QueryContext(ctx, s.dialect().BuildDistinctValuesQuery(tableID, column))
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct values of %q: %w", column, err)
	}
	defer rows.Close()

	var values []int64
	for rows.Next() {
		var value int64
		if err = rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, value)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over rows: %w", err)
	}

	return values, nil
}
