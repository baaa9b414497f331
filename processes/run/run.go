package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/artie-labs/tenantsync/clients/snowflake"
	"github.com/artie-labs/tenantsync/clients/source"
	"github.com/artie-labs/tenantsync/lib"
	"github.com/artie-labs/tenantsync/lib/batch"
	"github.com/artie-labs/tenantsync/lib/config"
	"github.com/artie-labs/tenantsync/lib/config/constants"
	"github.com/artie-labs/tenantsync/lib/consolidation"
	"github.com/artie-labs/tenantsync/lib/destination"
	"github.com/artie-labs/tenantsync/lib/loader"
	"github.com/artie-labs/tenantsync/lib/lock"
	"github.com/artie-labs/tenantsync/lib/registry"
	"github.com/artie-labs/tenantsync/lib/telemetry/metrics/base"
	"github.com/artie-labs/tenantsync/lib/transform"
)

const heartbeatInterval = time.Minute

// Extractor reads the catalog tables of a single tenant.
type Extractor interface {
	ExtractTable(ctx context.Context, entry config.CatalogEntry, window source.Window) (*batch.Batch, error)
	Close() error
}

type ExtractorFactory func(ctx context.Context, tenant config.Tenant) (Extractor, error)

func defaultExtractorFactory(ctx context.Context, tenant config.Tenant) (Extractor, error) {
	extractor, err := source.Load(ctx, tenant, nil)
	if err != nil {
		return nil, err
	}
	return extractor, nil
}

// WarehouseFactory opens the warehouse of a tenant whose Snowflake connection differs from the default one.
type WarehouseFactory func(ctx context.Context, cfg config.Snowflake) (destination.Warehouse, error)

func defaultWarehouseFactory(ctx context.Context, cfg config.Snowflake) (destination.Warehouse, error) {
	store, err := snowflake.LoadSnowflake(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Summary counts tables per outcome. Empty batches are skipped, not failed.
type Summary struct {
	Successful int
	Failed     int
	Skipped    int
}

func (s Summary) Total() int {
	return s.Successful + s.Failed + s.Skipped
}

type Runner struct {
	cfg          config.Config
	warehouse    destination.Warehouse
	locker       lock.Locker
	metrics      base.Client
	newExtractor ExtractorFactory
	newWarehouse WarehouseFactory

	mu      sync.Mutex
	summary Summary

	warehousesMu sync.Mutex
	// warehouses are the tenant connections opened by [newWarehouse], keyed by [config.Snowflake.ConnectionKey].
	warehouses map[string]destination.Warehouse
}

func NewRunID() string {
	return uuid.NewString()
}

func New(cfg config.Config, warehouse destination.Warehouse, locker lock.Locker, metricsClient base.Client) *Runner {
	return &Runner{
		cfg:          cfg,
		warehouse:    warehouse,
		locker:       locker,
		metrics:      metricsClient,
		newExtractor: defaultExtractorFactory,
		newWarehouse: defaultWarehouseFactory,
		warehouses:   make(map[string]destination.Warehouse),
	}
}

// WithExtractorFactory swaps how sources are opened, used for tests and dry runs.
func (r *Runner) WithExtractorFactory(factory ExtractorFactory) *Runner {
	r.newExtractor = factory
	return r
}

// WithWarehouseFactory swaps how tenant specific warehouses are opened.
func (r *Runner) WithWarehouseFactory(factory WarehouseFactory) *Runner {
	r.newWarehouse = factory
	return r
}

// Close closes the tenant warehouses opened during the run, the default warehouse is owned by the caller.
func (r *Runner) Close() error {
	r.warehousesMu.Lock()
	defer r.warehousesMu.Unlock()

	var errs []error
	for key, warehouse := range r.warehouses {
		if closer, ok := warehouse.(io.Closer); ok && warehouse != r.warehouse {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(r.warehouses, key)
	}
	return errors.Join(errs...)
}

// warehouseFor returns the default warehouse unless [tenant] overrides the Snowflake connection, in which case one
// connection is opened per distinct override and reused.
func (r *Runner) warehouseFor(ctx context.Context, tenant config.Tenant) (destination.Warehouse, error) {
	if tenant.Snowflake == nil {
		return r.warehouse, nil
	}

	resolved := r.cfg.SnowflakeFor(tenant)
	key := resolved.ConnectionKey()
	if r.cfg.Snowflake != nil && key == r.cfg.Snowflake.ConnectionKey() {
		return r.warehouse, nil
	}

	r.warehousesMu.Lock()
	defer r.warehousesMu.Unlock()
	if warehouse, ok := r.warehouses[key]; ok {
		return warehouse, nil
	}

	warehouse, err := r.newWarehouse(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open the warehouse of tenant %q: %w", tenant.Name, err)
	}

	r.warehouses[key] = warehouse
	return warehouse, nil
}

// Run dispatches [settings.Task].
func (r *Runner) Run(ctx context.Context, settings *config.Settings) error {
	switch settings.Task {
	case constants.TaskLoad:
		tenants := r.cfg.Tenants
		if settings.Tenant != "" {
			tenant, ok := r.cfg.TenantByName(settings.Tenant)
			if !ok {
				return fmt.Errorf("tenant %q is not configured", settings.Tenant)
			}
			tenants = []config.Tenant{tenant}
		}

		summary, err := r.Load(ctx, tenants)
		if err != nil {
			return err
		}

		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d tables failed to load", summary.Failed, summary.Total())
		}
		return nil
	case constants.TaskSyncTenants:
		_, err := r.SyncTenants(ctx)
		return err
	case constants.TaskConsolidate:
		report, err := r.Consolidate(ctx)
		if err != nil {
			return err
		}

		if failed := report.Failed(); failed > 0 {
			return fmt.Errorf("%d tenant merges failed", failed)
		}
		return nil
	default:
		return fmt.Errorf("unsupported task: %q", settings.Task)
	}
}

func (r *Runner) record(outcome func(*Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome(&r.summary)
}

// Load extracts every catalog entry of every tenant and loads it. Tables of a tenant are loaded concurrently, bounded
// by [config.ETL.MaxWorkers]. Failures are logged and counted, only a cancelled context stops the run.
func (r *Runner) Load(ctx context.Context, tenants []config.Tenant) (Summary, error) {
	r.summary = Summary{}
	start := time.Now()
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return r.summary, err
		}

		r.loadTenant(ctx, tenant)
	}

	slog.Info("Load finished",
		slog.Int("successful", r.summary.Successful),
		slog.Int("failed", r.summary.Failed),
		slog.Int("skipped", r.summary.Skipped),
		slog.Duration("duration", time.Since(start)),
	)
	return r.summary, ctx.Err()
}

func (r *Runner) loadTenant(ctx context.Context, tenant config.Tenant) {
	logger := slog.With(slog.String("tenant", tenant.Name), slog.String("schema", tenant.Schema))
	warehouse, err := r.warehouseFor(ctx, tenant)
	if err != nil {
		logger.Error("Failed to open warehouse, skipping tenant", slog.Any("err", err))
		r.record(func(s *Summary) { s.Failed += len(r.cfg.Catalog) })
		return
	}

	extractor, err := r.newExtractor(ctx, tenant)
	if err != nil {
		logger.Error("Failed to open source, skipping tenant", slog.Any("err", err))
		r.record(func(s *Summary) { s.Failed += len(r.cfg.Catalog) })
		return
	}

	defer func() {
		if err := extractor.Close(); err != nil {
			logger.Warn("Failed to close source", slog.Any("err", err))
		}
	}()

	cfg := r.cfg.ForTenant(tenant)
	ldr := loader.New(warehouse, cfg, tenant.Database, r.metrics)
	window := source.Window{Start: cfg.ETL.StartDate, End: cfg.ETL.EndDate}

	maxWorkers := r.cfg.ETL.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = constants.DefaultMaxWorkers
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for _, entry := range r.cfg.Catalog {
		g.Go(func() error {
			err := r.loadTable(gCtx, ldr, extractor, tenant, entry, window)
			switch {
			case err == nil:
				r.record(func(s *Summary) { s.Successful++ })
			case errors.Is(err, loader.ErrEmptyBatch):
				logger.Info("No rows, skipping table", slog.String("table", entry.Name))
				r.record(func(s *Summary) { s.Skipped++ })
			default:
				logger.Error("Failed to load table", slog.String("table", entry.Name), slog.Any("err", err))
				r.record(func(s *Summary) { s.Failed++ })
			}
			// Errors are isolated per table.
			return nil
		})
	}

	_ = g.Wait()
}

func (r *Runner) loadTable(ctx context.Context, ldr *loader.Loader, extractor Extractor, tenant config.Tenant, entry config.CatalogEntry, window source.Window) error {
	tags := map[string]string{"schema": tenant.Schema, "table": entry.Name}
	stop := lib.NewHeartbeats(heartbeatInterval, heartbeatInterval, "load", tags, r.metrics).Start()
	defer stop()

	b, err := extractor.ExtractTable(ctx, entry, window)
	if err != nil {
		return err
	}

	cleaned, report := transform.Clean(b)
	if len(report.DroppedColumns) > 0 || report.DroppedRows > 0 {
		slog.Info("Cleaned batch",
			slog.String("tenant", tenant.Name),
			slog.String("table", cleaned.Table),
			slog.Any("droppedColumns", report.DroppedColumns),
			slog.Int("droppedRows", report.DroppedRows),
		)
	}

	_, err = ldr.Process(ctx, loader.Request{
		Database: tenant.Database,
		Schema:   tenant.Schema,
		Batch:    cleaned,
		Mode:     r.cfg.ETL.Mode,
	})
	return err
}

func (r *Runner) registry() *registry.Registry {
	return registry.New(r.warehouse, r.cfg)
}

func (r *Runner) SyncTenants(ctx context.Context) (registry.Mapping, error) {
	return r.registry().Sync(ctx, r.cfg.Consolidation.ParentDatabase)
}

// Consolidate syncs the registry and merges the consolidation tables of every registered tenant.
func (r *Runner) Consolidate(ctx context.Context) (consolidation.Report, error) {
	if _, err := r.SyncTenants(ctx); err != nil {
		return consolidation.Report{}, err
	}

	tenants, err := r.registry().List(ctx, r.cfg.Consolidation.ParentDatabase)
	if err != nil {
		return consolidation.Report{}, err
	}

	tables := r.consolidationTables()
	if len(tables) == 0 {
		slog.Warn("No tables to consolidate")
		return consolidation.Report{}, nil
	}

	merger := consolidation.NewMerger(r.warehouse, r.cfg.Consolidation, r.locker, r.metrics)
	stop := lib.NewHeartbeats(heartbeatInterval, heartbeatInterval, "consolidate", nil, r.metrics).Start()
	report, err := merger.Consolidate(ctx, tables, tenants)
	stop()
	for _, table := range report.Tables {
		slog.Info("Consolidated table",
			slog.String("table", table.Table),
			slog.Int("merged", table.Merged),
			slog.Int("skipped", table.Skipped),
			slog.Int("missing", table.Missing),
			slog.Int("duplicates", table.Duplicates),
			slog.Int("tagged", table.Tagged),
			slog.Int("failed", table.Failed),
		)
	}
	return report, err
}

// consolidationTables defaults to every catalog target.
func (r *Runner) consolidationTables() []string {
	if len(r.cfg.Consolidation.Tables) > 0 {
		return r.cfg.Consolidation.Tables
	}

	var tables []string
	for _, entry := range r.cfg.Catalog {
		table := entry.Target
		if table == "" {
			table = entry.Name
		}

		table = strings.ToUpper(table)
		if !slices.Contains(tables, table) {
			tables = append(tables, table)
		}
	}
	return tables
}
