package snowflake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artie-labs/tenantsync/lib/sql"
)

// OverwriteFromTable truncates [targetID] and copies [columns] from [sourceID] in one transaction, a failed copy
// leaves the target as it was.
func (s *Store) OverwriteFromTable(ctx context.Context, targetID, sourceID sql.TableIdentifier, columns []string) (int64, error) {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start tx: %w", err)
	}

	var committed bool
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				slog.Warn("Unable to rollback", slog.Any("err", rollbackErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, s.dialect().BuildTruncateTableQuery(targetID)); err != nil {
		return 0, fmt.Errorf("failed to truncate %q: %w", targetID.FullyQualifiedName(), err)
	}

	result, err := tx.ExecContext(ctx, s.dialect().BuildInsertFromTableQuery(targetID, sourceID, columns))
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %q: %w", targetID.FullyQualifiedName(), err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %q: %w", targetID.FullyQualifiedName(), err)
	}
	committed = true

	return rowsAffected(result), nil
}

func (s *Store) MergeFromTable(ctx context.Context, targetID, sourceID sql.TableIdentifier, keys, columns []string) (int64, error) {
	if len(keys) == 0 {
		return 0, fmt.Errorf("cannot merge into %q without keys", targetID.FullyQualifiedName())
	}

	query := s.dialect().BuildMergeQuery(targetID, sourceID, keys, columns)
	slog.Debug("Executing merge", slog.String("query", query))
	result, err := s.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to merge into %q: %w", targetID.FullyQualifiedName(), err)
	}

	return rowsAffected(result), nil
}
