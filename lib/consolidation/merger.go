package consolidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/artie-labs/tenantsync/lib/batch"
	"github.com/artie-labs/tenantsync/lib/config"
	"github.com/artie-labs/tenantsync/lib/destination"
	"github.com/artie-labs/tenantsync/lib/lock"
	"github.com/artie-labs/tenantsync/lib/registry"
	"github.com/artie-labs/tenantsync/lib/sql"
	"github.com/artie-labs/tenantsync/lib/telemetry/metrics/base"
)

// TableReport counts what happened to every tenant for a single shared table.
type TableReport struct {
	Table  string
	Merged int
	// Skipped tenants were already merged into the shared table.
	Skipped    int
	Missing    int
	Duplicates int
	Failed     int
	// Tagged counts the tenant tables that had their tenant column filled in.
	Tagged int
	// Err is set when the shared table itself could not be prepared.
	Err error
}

type Report struct {
	Tables []TableReport
}

func (r Report) Merged() int {
	var total int
	for _, table := range r.Tables {
		total += table.Merged
	}
	return total
}

func (r Report) Failed() int {
	var total int
	for _, table := range r.Tables {
		total += table.Failed
		if table.Err != nil {
			total++
		}
	}
	return total
}

// Merger copies per-tenant tables into shared tables tagged with the tenant id. A tenant that was merged once is
// never merged again, even if its rows changed since.
type Merger struct {
	dest    destination.Consolidator
	cfg     config.Consolidation
	locker  lock.Locker
	metrics base.Client
}

func NewMerger(dest destination.Consolidator, cfg config.Consolidation, locker lock.Locker, metricsClient base.Client) *Merger {
	return &Merger{
		dest:    dest,
		cfg:     cfg,
		locker:  locker,
		metrics: metricsClient,
	}
}

// tenantTables holds the table names of every tenant schema, listed once per consolidation.
type tenantTables struct {
	tables map[int64][]string
	errs   map[int64]error
}

func (t tenantTables) has(tenantID int64, table string) bool {
	return slices.ContainsFunc(t.tables[tenantID], func(name string) bool { return strings.EqualFold(name, table) })
}

func (m *Merger) listTenantTables(ctx context.Context, tenants []registry.Tenant) tenantTables {
	listed := tenantTables{tables: make(map[int64][]string), errs: make(map[int64]error)}
	for _, tenant := range tenants {
		tables, err := m.dest.ListTables(ctx, tenant.Database, tenant.Schema)
		if err != nil {
			slog.Error("Failed to list tenant tables", slog.String("schema", tenant.Schema), slog.Any("err", err))
			listed.errs[tenant.ID] = fmt.Errorf("failed to list the tables of %q: %w", tenant.Schema, err)
			continue
		}
		listed.tables[tenant.ID] = tables
	}
	return listed
}

// Consolidate merges [tables] of every tenant in [tenants]. Failures of a single tenant are logged and counted, the
// returned error joins the failures of tables that could not be prepared at all.
func (m *Merger) Consolidate(ctx context.Context, tables []string, tenants []registry.Tenant) (Report, error) {
	unique, duplicates := dedupeTenants(m.filterTenants(tenants))
	for _, duplicate := range duplicates {
		slog.Warn("Skipping schema", slog.Any("err", duplicate))
	}

	var report Report
	if err := ctx.Err(); err != nil {
		return report, err
	}

	listed := m.listTenantTables(ctx, unique)
	var errs []error
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		tableReport := m.consolidateTable(ctx, strings.ToUpper(table), unique, listed)
		tableReport.Duplicates = len(duplicates)
		if tableReport.Err != nil {
			slog.Error("Failed to consolidate table", slog.String("table", tableReport.Table), slog.Any("err", tableReport.Err))
			errs = append(errs, tableReport.Err)
		}
		report.Tables = append(report.Tables, tableReport)
	}

	return report, errors.Join(errs...)
}

func (m *Merger) filterTenants(tenants []registry.Tenant) []registry.Tenant {
	if m.cfg.SchemaPrefix == "" {
		return tenants
	}

	prefix := strings.ToUpper(m.cfg.SchemaPrefix)
	var filtered []registry.Tenant
	for _, tenant := range tenants {
		if strings.HasPrefix(strings.ToUpper(tenant.Schema), prefix) {
			filtered = append(filtered, tenant)
		}
	}
	return filtered
}

// dedupeTenants keeps the first schema for every tenant id.
func dedupeTenants(tenants []registry.Tenant) ([]registry.Tenant, []DuplicateTenantIdentifierError) {
	claimed := make(map[int64]string)
	var unique []registry.Tenant
	var duplicates []DuplicateTenantIdentifierError
	for _, tenant := range tenants {
		if schema, ok := claimed[tenant.ID]; ok {
			duplicates = append(duplicates, DuplicateTenantIdentifierError{TenantID: tenant.ID, Schema: tenant.Schema, ClaimedSchema: schema})
			continue
		}

		claimed[tenant.ID] = tenant.Schema
		unique = append(unique, tenant)
	}
	return unique, duplicates
}

func (m *Merger) consolidateTable(ctx context.Context, table string, tenants []registry.Tenant, listed tenantTables) (report TableReport) {
	report.Table = table
	sharedID := m.dest.IdentifierFor(m.cfg.Database, m.cfg.Schema, table)
	if err := sql.ValidateTableIdentifier(sharedID); err != nil {
		report.Err = err
		return report
	}

	release, err := m.locker.Acquire(ctx, lock.Key("consolidate", sharedID.Database(), sharedID.Schema(), table))
	if err != nil {
		report.Err = fmt.Errorf("failed to acquire lock for %q: %w", table, err)
		return report
	}

	defer func() {
		err := release(context.WithoutCancel(ctx))
		switch {
		case err == nil:
		case errors.Is(err, lock.ErrLockLost) && report.Err == nil:
			report.Err = fmt.Errorf("lock of %q was lost while merging: %w", table, err)
		default:
			slog.Warn("Failed to release lock", slog.String("table", table), slog.Any("err", err))
		}
	}()

	var first sql.TableIdentifier
	for _, tenant := range tenants {
		if listed.has(tenant.ID, table) {
			first = m.dest.IdentifierFor(tenant.Database, tenant.Schema, table)
			break
		}
	}

	if first == nil {
		slog.Info("No tenant has this table, skipping it", slog.String("table", table))
		for _, tenant := range tenants {
			if listed.errs[tenant.ID] != nil {
				report.Failed++
			} else {
				report.Missing++
			}
		}
		return report
	}

	if err = m.prepareSharedTable(ctx, sharedID, first); err != nil {
		report.Err = err
		return report
	}

	merged, err := m.dest.DistinctInt64s(ctx, sharedID, m.cfg.TenantColumn)
	if err != nil {
		report.Err = fmt.Errorf("failed to list merged tenants of %q: %w", table, err)
		return report
	}

	for _, tenant := range tenants {
		logger := slog.With(slog.String("table", table), slog.String("schema", tenant.Schema), slog.Int64("tenantID", tenant.ID))
		if err := listed.errs[tenant.ID]; err != nil {
			logger.Error("Failed to merge tenant", slog.Any("err", err))
			report.Failed++
			continue
		}

		present := listed.has(tenant.ID, table)
		sourceID := m.dest.IdentifierFor(tenant.Database, tenant.Schema, table)
		if present && m.cfg.TagTenantTables {
			err := m.tagTenantTable(ctx, sourceID, tenant.ID)
			switch {
			case m.dest.Dialect().IsTableDoesNotExistErr(err):
				logger.Warn("Skipping tenant", slog.Any("err", SourceTableMissingError{Table: table, Schema: tenant.Schema}))
				report.Missing++
				continue
			case err != nil:
				logger.Error("Failed to tag tenant table", slog.Any("err", err))
				report.Failed++
				continue
			}
			report.Tagged++
		}

		if slices.Contains(merged, tenant.ID) {
			report.Skipped++
			continue
		}

		if !present {
			logger.Warn("Skipping tenant", slog.Any("err", SourceTableMissingError{Table: table, Schema: tenant.Schema}))
			report.Missing++
			continue
		}

		inserted, alreadyPresent, err := m.mergeTenant(ctx, sharedID, sourceID, tenant)
		switch {
		case m.dest.Dialect().IsTableDoesNotExistErr(err):
			// Dropped since it was listed.
			logger.Warn("Skipping tenant", slog.Any("err", SourceTableMissingError{Table: table, Schema: tenant.Schema}))
			report.Missing++
		case err != nil:
			logger.Error("Failed to merge tenant", slog.Any("err", err))
			report.Failed++
		case alreadyPresent:
			report.Skipped++
		default:
			logger.Info("Merged tenant", slog.Int64("rows", inserted))
			m.metrics.Incr("consolidate.merged", map[string]string{"table": table, "tenant": strconv.FormatInt(tenant.ID, 10)})
			report.Merged++
		}
	}

	return report
}

func (m *Merger) prepareSharedTable(ctx context.Context, sharedID, sourceID sql.TableIdentifier) error {
	if err := m.dest.CreateTableLike(ctx, sharedID, sourceID); err != nil {
		return fmt.Errorf("failed to create %q: %w", sharedID.FullyQualifiedName(), err)
	}

	if err := m.dest.AddColumn(ctx, sharedID, m.cfg.TenantColumn, batch.Integer); err != nil {
		return fmt.Errorf("failed to add %q to %q: %w", m.cfg.TenantColumn, sharedID.FullyQualifiedName(), err)
	}

	return nil
}

// tagTenantTable adds the tenant column to a tenant's own table and fills it in, the merge then copies it as is.
func (m *Merger) tagTenantTable(ctx context.Context, sourceID sql.TableIdentifier, tenantID int64) error {
	if err := sql.ValidateTableIdentifier(sourceID); err != nil {
		return err
	}

	if err := m.dest.AddColumn(ctx, sourceID, m.cfg.TenantColumn, batch.Integer); err != nil {
		return fmt.Errorf("failed to add %q to %q: %w", m.cfg.TenantColumn, sourceID.FullyQualifiedName(), err)
	}

	tagged, err := m.dest.TagTenantRows(ctx, sourceID, m.cfg.TenantColumn, tenantID)
	if err != nil {
		return err
	}

	slog.Debug("Tagged tenant table", slog.String("table", sourceID.FullyQualifiedName()), slog.Int64("rows", tagged))
	return nil
}

func (m *Merger) mergeTenant(ctx context.Context, sharedID, sourceID sql.TableIdentifier, tenant registry.Tenant) (int64, bool, error) {
	if err := sql.ValidateTableIdentifier(sourceID); err != nil {
		return 0, false, err
	}

	columns, err := m.dest.DescribeTable(ctx, sourceID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to describe %q: %w", sourceID.FullyQualifiedName(), err)
	}

	if err = sql.ValidateIdentifiers(columns...); err != nil {
		return 0, false, err
	}

	inject := !slices.ContainsFunc(columns, func(column string) bool { return strings.EqualFold(column, m.cfg.TenantColumn) })
	result, err := m.dest.InsertTenantRows(ctx, destination.InsertTenantRowsArgs{
		TargetID:           sharedID,
		SourceID:           sourceID,
		Columns:            columns,
		TenantColumn:       m.cfg.TenantColumn,
		TenantID:           tenant.ID,
		InjectTenantColumn: inject,
	})
	if err != nil {
		return 0, false, err
	}

	return result.Inserted, result.AlreadyPresent, nil
}
