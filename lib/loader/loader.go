package loader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/artie-labs/tenantsync/lib/batch"
	"github.com/artie-labs/tenantsync/lib/config"
	"github.com/artie-labs/tenantsync/lib/config/constants"
	"github.com/artie-labs/tenantsync/lib/dates"
	"github.com/artie-labs/tenantsync/lib/destination"
	"github.com/artie-labs/tenantsync/lib/sanitize"
	"github.com/artie-labs/tenantsync/lib/sql"
	"github.com/artie-labs/tenantsync/lib/telemetry/metrics/base"
)

type Request struct {
	// Database defaults to the loader's database.
	Database string
	// Schema is the tenant schema holding both the target and the temp table.
	Schema string
	Batch  *batch.Batch
	Mode   config.Mode
}

type Result struct {
	Table       string
	Strategy    Strategy
	RowsStaged  int64
	RowsWritten int64
	// FellBack is set when an upsert found no target and replaced it instead.
	FellBack bool
}

type Loader struct {
	dest       destination.Destination
	cfg        config.Config
	database   string
	normalizer dates.Normalizer
	metrics    base.Client
}

func New(dest destination.Destination, cfg config.Config, database string, metricsClient base.Client) *Loader {
	return &Loader{
		dest:       dest,
		cfg:        cfg,
		database:   database,
		normalizer: dates.NewNormalizer(),
		metrics:    metricsClient,
	}
}

// TempTableName returns the name of the staging table for [target].
func TempTableName(target string) string {
	return constants.TempTablePrefix + strings.ToUpper(target)
}

// Prepare sanitizes [b] and then normalizes its date columns.
func (l *Loader) Prepare(b *batch.Batch) *batch.Batch {
	sanitized, report := sanitize.Sanitize(b)
	if len(report.DroppedDuplicates) > 0 {
		slog.Info("Dropped duplicate columns", slog.String("table", b.Table), slog.Any("columns", report.DroppedDuplicates))
	}

	for _, column := range report.Columns {
		if column.Nulls > 0 {
			slog.Debug("Nulls after sanitizing", slog.String("table", b.Table), slog.String("column", column.Column),
				slog.Int("nulls", column.Nulls), slog.Bool("numeric", column.Numeric))
		}
	}

	normalized, results := l.normalizer.Normalize(sanitized, l.cfg.TableConfig(b.Table).DateColumns)
	for _, result := range results {
		attrs := []any{
			slog.String("table", b.Table),
			slog.String("column", result.Column),
			slog.String("class", string(result.Class)),
			slog.Any("sample", result.Sample),
			slog.Int("converted", result.Converted),
			slog.Int("total", result.Total),
		}

		if result.Failed() > 0 {
			slog.Warn("Some dates could not be converted", attrs...)
		} else {
			slog.Debug("Converted date column", attrs...)
		}
	}

	return normalized
}

// Process runs [Loader.Prepare] on the request batch and loads it.
func (l *Loader) Process(ctx context.Context, req Request) (Result, error) {
	if req.Batch == nil || req.Batch.NumRows() == 0 {
		return Result{}, ErrEmptyBatch
	}

	req.Batch = l.Prepare(req.Batch)
	return l.Load(ctx, req)
}

// Load stages [Request.Batch] into TEMP_<TARGET> and commits it to the target table. The temp table is dropped on
// every exit path once it has been created.
func (l *Loader) Load(ctx context.Context, req Request) (Result, error) {
	if req.Batch == nil || req.Batch.NumRows() == 0 {
		return Result{}, ErrEmptyBatch
	}

	start := time.Now()
	result, err := l.load(ctx, req)

	tags := map[string]string{
		"table":    result.Table,
		"schema":   strings.ToUpper(req.Schema),
		"strategy": string(result.Strategy),
	}
	l.metrics.Timing("load.duration", time.Since(start), tags)
	if err != nil {
		l.metrics.Incr("load.failed", tags)
		return result, err
	}

	l.metrics.Incr("load.success", tags)
	l.metrics.Count("load.rows", result.RowsStaged, tags)
	return result, nil
}

func (l *Loader) load(ctx context.Context, req Request) (Result, error) {
	b := req.Batch
	target := strings.ToUpper(b.Table)
	result := Result{Table: target, Strategy: SelectStrategy(l.cfg, target, req.Mode)}

	database := req.Database
	if database == "" {
		database = l.database
	}

	targetID := l.dest.IdentifierFor(database, req.Schema, target)
	tempID := targetID.WithTable(TempTableName(target))
	if err := sql.ValidateTableIdentifier(targetID); err != nil {
		return result, err
	}

	columns := b.Columns()
	if err := sql.ValidateIdentifiers(columns...); err != nil {
		return result, err
	}

	var keys []string
	if result.Strategy == Upsert {
		var err error
		if keys, err = l.resolveKeys(target, b); err != nil {
			return result, err
		}

		var dropped int
		if b, dropped = dedupeByKeys(b, keys); dropped > 0 {
			slog.Warn("Dropped rows sharing the same key, keeping the last one", slog.String("table", target), slog.Int("rows", dropped))
		}
	}

	staged, err := l.dest.CreateTableFromBatch(ctx, tempID, b)
	defer func() {
		// Still runs when [ctx] is cancelled.
		if dropErr := l.dest.DropTable(context.WithoutCancel(ctx), tempID); dropErr != nil {
			slog.Warn("Failed to drop temp table", slog.String("table", tempID.FullyQualifiedName()), slog.Any("err", dropErr))
		}
	}()

	if err != nil {
		return result, fmt.Errorf("failed to stage %q: %w", target, err)
	}
	result.RowsStaged = staged

	switch result.Strategy {
	case Replace:
		result.RowsWritten, err = l.replace(ctx, targetID, b)
	case FullRefresh:
		result.RowsWritten, err = l.fullRefresh(ctx, targetID, tempID, columns)
	case Upsert:
		result.RowsWritten, result.FellBack, err = l.upsert(ctx, targetID, tempID, b, keys, columns)
	default:
		err = fmt.Errorf("unsupported strategy: %q", result.Strategy)
	}

	if err != nil {
		return result, err
	}

	slog.Info("Loaded table",
		slog.String("table", targetID.FullyQualifiedName()),
		slog.String("strategy", string(result.Strategy)),
		slog.Int64("staged", result.RowsStaged),
		slog.Int64("written", result.RowsWritten),
		slog.Bool("fellBack", result.FellBack),
	)
	return result, nil
}

// resolveKeys returns the configured keys using the column names of [b].
func (l *Loader) resolveKeys(target string, b *batch.Batch) ([]string, error) {
	configured := l.cfg.TableConfig(target).Keys
	if len(configured) == 0 {
		return nil, MissingKeyError{Table: target}
	}

	columns := b.Columns()
	keys := make([]string, len(configured))
	for i, key := range configured {
		idx := b.ColumnIndex(key)
		if idx < 0 {
			return nil, MissingKeyError{Table: target, Column: key}
		}
		keys[i] = columns[idx]
	}

	return keys, nil
}

func (l *Loader) replace(ctx context.Context, targetID sql.TableIdentifier, b *batch.Batch) (int64, error) {
	written, err := l.dest.CreateTableFromBatch(ctx, targetID, b)
	if err != nil {
		return 0, fmt.Errorf("failed to replace %q: %w", targetID.Table(), err)
	}
	return written, nil
}

func (l *Loader) fullRefresh(ctx context.Context, targetID, tempID sql.TableIdentifier, columns []string) (int64, error) {
	exists, err := l.dest.TableExists(ctx, targetID)
	if err != nil {
		return 0, err
	}

	if !exists {
		return 0, TargetMissingError{Table: targetID.FullyQualifiedName()}
	}

	return l.dest.OverwriteFromTable(ctx, targetID, tempID, columns)
}

func (l *Loader) upsert(ctx context.Context, targetID, tempID sql.TableIdentifier, b *batch.Batch, keys, columns []string) (int64, bool, error) {
	exists, err := l.dest.TableExists(ctx, targetID)
	if err != nil {
		return 0, false, err
	}

	if !exists {
		slog.Info("Target does not exist, creating it from the batch", slog.String("table", targetID.FullyQualifiedName()))
		written, err := l.replace(ctx, targetID, b)
		return written, true, err
	}

	written, err := l.dest.MergeFromTable(ctx, targetID, tempID, keys, columns)
	return written, false, err
}
