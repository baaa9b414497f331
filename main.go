package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/artie-labs/tenantsync/clients/memory"
	"github.com/artie-labs/tenantsync/clients/snowflake"
	"github.com/artie-labs/tenantsync/lib/config"
	"github.com/artie-labs/tenantsync/lib/destination"
	"github.com/artie-labs/tenantsync/lib/lock"
	"github.com/artie-labs/tenantsync/lib/logger"
	"github.com/artie-labs/tenantsync/lib/telemetry/metrics"
	"github.com/artie-labs/tenantsync/processes/run"
)

func main() {
	// Parse args into settings.
	settings, err := config.LoadSettings(os.Args[1:], true)
	if err != nil {
		logger.Fatal("Failed to load settings", slog.Any("err", err))
	}

	// Initialize default logger
	log, _ := logger.NewLogger(settings)
	runID := run.NewRunID()
	slog.SetDefault(log.With(slog.String("runID", runID), slog.String("task", string(settings.Task))))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsClient := metrics.LoadExporter(settings.Config)

	var warehouse destination.Warehouse
	if settings.DryRun {
		slog.Info("Dry run, writing to an in-memory warehouse")
		warehouse = memory.NewStore()
	} else {
		store, err := snowflake.LoadSnowflake(ctx, *settings.Config.Snowflake, nil)
		if err != nil {
			logger.Fatal("Failed to connect to Snowflake", slog.Any("err", err))
		}
		defer store.Close()
		warehouse = store
	}

	slog.Info("Config is loaded",
		slog.String("mode", string(settings.Config.ETL.Mode)),
		slog.Int("maxWorkers", settings.Config.ETL.MaxWorkers),
		slog.Int("tenants", len(settings.Config.Tenants)),
		slog.Int("catalog", len(settings.Config.Catalog)),
	)

	runner := run.New(settings.Config, warehouse, lock.New(settings.Config), metricsClient)
	if settings.DryRun {
		runner = runner.WithWarehouseFactory(func(context.Context, config.Snowflake) (destination.Warehouse, error) {
			return warehouse, nil
		})
	}
	defer func() {
		if err := runner.Close(); err != nil {
			slog.Warn("Failed to close tenant warehouses", slog.Any("err", err))
		}
	}()

	if err = runner.Run(ctx, settings); err != nil {
		logger.Fatal("Run failed", slog.Any("err", err))
	}

	slog.Info("Run finished")
}
