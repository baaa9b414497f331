package snowflake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/artie-labs/tenantsync/lib/sql"
	"github.com/artie-labs/tenantsync/models"
)

func (s *Store) ListSchemas(ctx context.Context, database string) ([]string, error) {
	rows, err := s.QueryContext(ctx, s.dialect().BuildListSchemasQuery(database))
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas of %q: %w", database, err)
	}

	return scanStrings(rows)
}

func (s *Store) ListTables(ctx context.Context, database, schema string) ([]string, error) {
	rows, err := s.QueryContext(ctx, s.dialect().BuildListTablesQuery(database), strings.ToUpper(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables of %s.%s: %w", database, schema, err)
	}

	return scanStrings(rows)
}

func (s *Store) EnsureRegistryTable(ctx context.Context, tableID sql.TableIdentifier) error {
	if _, err := s.ExecContext(ctx, s.dialect().BuildCreateRegistryTableQuery(tableID)); err != nil {
		return fmt.Errorf("failed to create registry table %q: %w", tableID.FullyQualifiedName(), err)
	}

	return nil
}

func (s *Store) ListTenants(ctx context.Context, tableID sql.TableIdentifier, database string) ([]models.Tenant, error) {
	rows, err := s.QueryContext(ctx, s.dialect().BuildListTenantsQuery(tableID), database)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var tenant models.Tenant
		var name, status *string
		var createdAt *time.Time
		if err = rows.Scan(&tenant.ID, &name, &tenant.Database, &tenant.Schema, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}

		if name != nil {
			tenant.Name = *name
		}
		if status != nil {
			tenant.Status = *status
		}
		if createdAt != nil {
			tenant.CreatedAt = *createdAt
		}

		tenants = append(tenants, tenant)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over rows: %w", err)
	}

	return tenants, nil
}

func (s *Store) InsertTenantIfAbsent(ctx context.Context, tableID sql.TableIdentifier, tenant models.Tenant) (bool, error) {
	status := tenant.Status
	if status == "" {
		status = models.TenantStatusActive
	}

	result, err := s.ExecContext(ctx, s.dialect().BuildInsertTenantIfAbsentQuery(tableID), tenant.Name, tenant.Database, tenant.Schema, status)
	if err != nil {
		return false, fmt.Errorf("failed to register tenant %s.%s: %w", tenant.Database, tenant.Schema, err)
	}

	return rowsAffected(result) > 0, nil
}
