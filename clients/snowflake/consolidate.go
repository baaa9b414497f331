package snowflake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artie-labs/tenantsync/lib/destination"
	"github.com/artie-labs/tenantsync/lib/sql"
)

// InsertTenantRows copies a tenant's rows within a transaction. The insert itself is guarded by NOT EXISTS, so a
// concurrent consolidation that committed the same tenant in between does not get it copied twice.
func (s *Store) InsertTenantRows(ctx context.Context, args destination.InsertTenantRowsArgs) (destination.InsertTenantRowsResult, error) {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return destination.InsertTenantRowsResult{}, fmt.Errorf("failed to start tx: %w", err)
	}

	var committed bool
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				slog.Warn("Unable to rollback", slog.Any("err", rollbackErr))
			}
		}
	}()

	var present int64
	if err = tx.QueryRowContext(ctx, s.dialect().BuildCountTenantRowsQuery(args.TargetID, args.TenantColumn), args.TenantID).Scan(&present); err != nil {
		return destination.InsertTenantRowsResult{}, fmt.Errorf("failed to count tenant rows: %w", err)
	}

	if present > 0 {
		return destination.InsertTenantRowsResult{AlreadyPresent: true}, nil
	}

	if !args.InjectTenantColumn {
		var foreign int64
		if err = tx.QueryRowContext(ctx, s.dialect().BuildCountForeignTenantRowsQuery(args.SourceID, args.TenantColumn), args.TenantID).Scan(&foreign); err != nil {
			return destination.InsertTenantRowsResult{}, fmt.Errorf("failed to check the tenant column: %w", err)
		}

		if foreign > 0 {
			return destination.InsertTenantRowsResult{}, destination.TenantColumnMismatchError{
				Table:    args.SourceID.FullyQualifiedName(),
				Column:   args.TenantColumn,
				TenantID: args.TenantID,
				Rows:     foreign,
			}
		}
	}

	binds := []any{args.TenantID}
	if args.InjectTenantColumn {
		binds = append(binds, args.TenantID)
	}

	query := s.dialect().BuildInsertTenantRowsQuery(args.TargetID, args.SourceID, args.Columns, args.TenantColumn, args.InjectTenantColumn)
	result, err := tx.ExecContext(ctx, query, binds...)
	if err != nil {
		return destination.InsertTenantRowsResult{}, fmt.Errorf("failed to insert tenant rows: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return destination.InsertTenantRowsResult{}, fmt.Errorf("failed to commit tenant rows: %w", err)
	}
	committed = true

	return destination.InsertTenantRowsResult{Inserted: rowsAffected(result)}, nil
}

func (s *Store) TagTenantRows(ctx context.Context, tableID sql.TableIdentifier, tenantColumn string, tenantID int64) (int64, error) {
	result, err := s.ExecContext(ctx, s.dialect().BuildTagTenantRowsQuery(tableID, tenantColumn), tenantID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to tag %q: %w", tableID.FullyQualifiedName(), err)
	}

	return rowsAffected(result), nil
}
