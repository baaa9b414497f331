package registry

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/artie-labs/tenantsync/lib/config"
	"github.com/artie-labs/tenantsync/lib/destination"
	"github.com/artie-labs/tenantsync/lib/sql"
	"github.com/artie-labs/tenantsync/models"
)

type Tenant = models.Tenant

type Entry struct {
	Schema string
	ID     int64
}

// Mapping is the schema to tenant id assignment of a database, ordered by id.
type Mapping []Entry

func (m Mapping) ID(schema string) (int64, bool) {
	for _, entry := range m {
		if strings.EqualFold(entry.Schema, schema) {
			return entry.ID, true
		}
	}
	return 0, false
}

func (m Mapping) Schemas() []string {
	schemas := make([]string, len(m))
	for i, entry := range m {
		schemas[i] = entry.Schema
	}
	return schemas
}

type Store interface {
	destination.Catalog
	destination.RegistryStore
	IdentifierFor(database, schema, table string) sql.TableIdentifier
}

type Registry struct {
	store Store
	cfg   config.Config
}

func New(store Store, cfg config.Config) *Registry {
	return &Registry{store: store, cfg: cfg}
}

func (r *Registry) tableID() sql.TableIdentifier {
	return r.store.IdentifierFor(r.cfg.Registry.Database, r.cfg.Registry.Schema, r.cfg.Registry.Table)
}

// Sync registers every schema of [parentDatabase] that is not registered yet and returns the resulting mapping.
// Identifiers are assigned by the warehouse and are never handed out twice, running it again inserts nothing.
func (r *Registry) Sync(ctx context.Context, parentDatabase string) (Mapping, error) {
	tableID := r.tableID()
	if err := sql.ValidateTableIdentifier(tableID); err != nil {
		return nil, err
	}

	if err := r.store.EnsureRegistryTable(ctx, tableID); err != nil {
		return nil, fmt.Errorf("failed to create registry table: %w", err)
	}

	schemas, err := r.store.ListSchemas(ctx, parentDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas of %q: %w", parentDatabase, err)
	}

	registered, err := r.store.ListTenants(ctx, tableID, parentDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	var inserted int
	for _, schema := range schemas {
		if r.cfg.Registry.IsExcluded(schema) {
			continue
		}

		isRegistered := slices.ContainsFunc(registered, func(tenant Tenant) bool { return strings.EqualFold(tenant.Schema, schema) })
		if isRegistered {
			continue
		}

		ok, err := r.store.InsertTenantIfAbsent(ctx, tableID, Tenant{
			Name:     r.tenantName(schema),
			Database: parentDatabase,
			Schema:   schema,
			Status:   models.TenantStatusActive,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register schema %q: %w", schema, err)
		}

		if ok {
			inserted++
			slog.Info("Registered tenant schema", slog.String("database", parentDatabase), slog.String("schema", schema))
		}
	}

	tenants, err := r.store.ListTenants(ctx, tableID, parentDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	slog.Info("Tenant registry is in sync", slog.String("database", parentDatabase), slog.Int("inserted", inserted), slog.Int("tenants", len(tenants)))
	return toMapping(tenants), nil
}

// List returns the registered tenants of [database], ordered by id.
func (r *Registry) List(ctx context.Context, database string) ([]Tenant, error) {
	tenants, err := r.store.ListTenants(ctx, r.tableID(), database)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	slices.SortStableFunc(tenants, func(a, b Tenant) int { return cmp.Compare(a.ID, b.ID) })
	return tenants, nil
}

// tenantName uses the configured tenant name when there is one.
func (r *Registry) tenantName(schema string) string {
	if tenant, ok := r.cfg.TenantByName(schema); ok {
		return tenant.Name
	}
	return schema
}

func toMapping(tenants []Tenant) Mapping {
	mapping := make(Mapping, len(tenants))
	for i, tenant := range tenants {
		mapping[i] = Entry{Schema: tenant.Schema, ID: tenant.ID}
	}

	slices.SortStableFunc(mapping, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return mapping
}
