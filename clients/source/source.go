package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/artie-labs/tenantsync/lib/batch"
	"github.com/artie-labs/tenantsync/lib/config"
	"github.com/artie-labs/tenantsync/lib/config/constants"
	"github.com/artie-labs/tenantsync/lib/db"
	"github.com/artie-labs/tenantsync/lib/redact"
	"github.com/artie-labs/tenantsync/lib/retry"
	"github.com/artie-labs/tenantsync/lib/sql"
)

const (
	startDatePlaceholder = "{start_date}"
	endDatePlaceholder   = "{end_date}"
)

var extractRetryConfig = retry.NewConfig(retry.NewConfigArgs{
	JitterBaseMs: 500,
	JitterMaxMs:  5_000,
	MaxAttempts:  3,
	IsRetryable:  db.IsRetryableError,
})

// Window fills the date placeholders of catalog queries, empty bounds leave the placeholder untouched.
type Window struct {
	Start string
	End   string
}

func (w Window) apply(query string) string {
	var pairs []string
	if w.Start != "" {
		pairs = append(pairs, startDatePlaceholder, w.Start)
	}
	if w.End != "" {
		pairs = append(pairs, endDatePlaceholder, w.End)
	}

	if len(pairs) == 0 {
		return query
	}
	return strings.NewReplacer(pairs...).Replace(query)
}

// Extractor runs catalog queries against the operational database of a single tenant.
type Extractor struct {
	db.Store
	tenant config.Tenant
}

func versionQuery(driver constants.SourceDriver) string {
	switch driver {
	case constants.SQLServer:
		return "SELECT @@VERSION"
	case constants.MySQL:
		return "SELECT VERSION()"
	default:
		return "SELECT version()"
	}
}

func Load(ctx context.Context, tenant config.Tenant, _store *db.Store) (*Extractor, error) {
	if _store != nil {
		// Used for tests.
		return &Extractor{Store: *_store, tenant: tenant}, nil
	}

	store, err := db.Open(ctx, string(tenant.Source.Driver), tenant.Source.DSN)
	if err != nil {
		// Driver errors may echo the DSN.
		return nil, fmt.Errorf("failed to connect to the source of tenant %q: %s", tenant.Name, redact.ScrubErrorMessage(err.Error()))
	}

	extractor := &Extractor{Store: store, tenant: tenant}
	if version, err := db.RetrieveVersion(ctx, store, versionQuery(tenant.Source.Driver)); err != nil {
		slog.Warn("Failed to retrieve the source version", slog.String("tenant", tenant.Name), slog.Any("err", err))
	} else {
		slog.Info("Connected to source", slog.String("tenant", tenant.Name), slog.String("driver", string(tenant.Source.Driver)), slog.String("version", version))
	}

	return extractor, nil
}

// ExtractTable runs the query of [entry] and returns its rows as a batch named after the target table.
func (e *Extractor) ExtractTable(ctx context.Context, entry config.CatalogEntry, window Window) (*batch.Batch, error) {
	query := window.apply(entry.Query)
	slog.Debug("Extracting", slog.String("tenant", e.tenant.Name), slog.String("name", entry.Name), slog.String("query", query))

	result, err := retry.WithRetries(ctx, extractRetryConfig, func(ctx context.Context, _ int) (queryResult, error) {
		return e.query(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run query %q: %w", entry.Name, err)
	}

	columns, values := result.columns, result.values
	for _, row := range values {
		for i, value := range row {
			if row[i], err = convertValue(value, result.typeNames[i]); err != nil {
				return nil, fmt.Errorf("failed to convert column %q of %q: %w", columns[i], entry.Name, err)
			}
		}
	}

	b, err := batch.FromRows(target(entry), columns, values)
	if err != nil {
		return nil, fmt.Errorf("failed to build batch for %q: %w", entry.Name, err)
	}

	slog.Info("Extracted table", slog.String("tenant", e.tenant.Name), slog.String("table", b.Table), slog.Int("rows", b.NumRows()))
	return b, nil
}

type queryResult struct {
	columns   []string
	typeNames []string
	values    [][]any
}

func (e *Extractor) query(ctx context.Context, query string) (queryResult, error) {
	rows, err := e.QueryContext(ctx, query)
	if err != nil {
		return queryResult{}, err
	}

	// Column types have to be read before the rows are consumed.
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return queryResult{}, fmt.Errorf("failed to get column types: %w", err)
	}

	columns, values, err := sql.RowsToBatchValues(rows)
	if err != nil {
		return queryResult{}, err
	}

	typeNames := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		typeNames[i] = columnType.DatabaseTypeName()
	}

	return queryResult{columns: columns, typeNames: typeNames, values: values}, nil
}

// Extract runs every catalog entry and stops at the first failure.
func (e *Extractor) Extract(ctx context.Context, catalog []config.CatalogEntry, window Window) (map[string]*batch.Batch, error) {
	batches := make(map[string]*batch.Batch, len(catalog))
	for _, entry := range catalog {
		b, err := e.ExtractTable(ctx, entry, window)
		if err != nil {
			return nil, err
		}
		batches[b.Table] = b
	}
	return batches, nil
}

func target(entry config.CatalogEntry) string {
	if entry.Target != "" {
		return strings.ToUpper(entry.Target)
	}
	return strings.ToUpper(entry.Name)
}
