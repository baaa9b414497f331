package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/artie-labs/tenantsync/clients/memory"
	"github.com/artie-labs/tenantsync/lib/batch"
	"github.com/artie-labs/tenantsync/lib/config"
	"github.com/artie-labs/tenantsync/lib/sql"
	"github.com/artie-labs/tenantsync/lib/telemetry/metrics"
)

const (
	database = "BEE_CENTRAL"
	schema   = "BEE_TEST_CLIENT_A"
)

type fakeMetrics struct {
	metrics.NullMetricsProvider
	incr []string
}

func (f *fakeMetrics) Incr(name string, _ map[string]string) {
	f.incr = append(f.incr, name)
}

func ptrBool(value bool) *bool {
	return &value
}

func newTestConfig() config.Config {
	return config.Config{
		Tables: map[string]config.TableConfig{
			"PERSONNEL":    {Keys: []string{"ID_PERSONNEL"}, DateColumns: []string{"DATE_EMBAUCHE"}},
			"DIM_CALENDAR": {CreateOrReplace: ptrBool(true)},
		},
	}
}

func personnelBatch(rows ...[]any) *batch.Batch {
	return batch.MustFromRows("personnel", []string{"id_personnel", "date_embauche"}, rows)
}

func tableRows(t *testing.T, store *memory.Store, table string) [][]any {
	b, ok := store.Table(store.IdentifierFor(database, schema, table))
	assert.True(t, ok, table)
	return b.Rows()
}

func tempTableExists(t *testing.T, store *memory.Store, table string) bool {
	exists, err := store.TableExists(context.Background(), store.IdentifierFor(database, schema, TempTableName(table)))
	assert.NoError(t, err)
	return exists
}

func TestSelectStrategy(t *testing.T) {
	cfg := newTestConfig()
	assert.Equal(t, Replace, SelectStrategy(cfg, "dim_calendar", config.Incremental))
	assert.Equal(t, Replace, SelectStrategy(cfg, "DIM_CALENDAR", config.Full))
	assert.Equal(t, FullRefresh, SelectStrategy(cfg, "PERSONNEL", config.Full))
	assert.Equal(t, Upsert, SelectStrategy(cfg, "PERSONNEL", config.Incremental))
}

func TestTempTableName(t *testing.T) {
	assert.Equal(t, "TEMP_DIM_PERSONNEL", TempTableName("dim_personnel"))
}

func TestLoader_EmptyBatch(t *testing.T) {
	loader := New(memory.NewStore(), newTestConfig(), database, metrics.NullMetricsProvider{})
	{
		_, err := loader.Load(context.Background(), Request{Schema: schema, Batch: personnelBatch()})
		assert.ErrorIs(t, err, ErrEmptyBatch)
	}
	{
		_, err := loader.Process(context.Background(), Request{Schema: schema})
		assert.ErrorIs(t, err, ErrEmptyBatch)
	}
}

func TestLoader_UpsertIntoEmptyTarget(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	metricsClient := &fakeMetrics{}
	loader := New(store, newTestConfig(), database, metricsClient)

	result, err := loader.Process(ctx, Request{Schema: schema, Batch: personnelBatch([]any{int64(1), "20230115"}), Mode: config.Incremental})
	assert.NoError(t, err)
	assert.Equal(t, Result{Table: "PERSONNEL", Strategy: Upsert, RowsStaged: 1, RowsWritten: 1, FellBack: true}, result)
	assert.Equal(t, [][]any{{int64(1), "2023-01-15"}}, tableRows(t, store, "PERSONNEL"))
	assert.False(t, tempTableExists(t, store, "PERSONNEL"))
	assert.Equal(t, []string{"load.success"}, metricsClient.incr)

	// Loading the same row again keeps a single copy
	result, err = loader.Process(ctx, Request{Schema: schema, Batch: personnelBatch([]any{int64(1), "20230115"}), Mode: config.Incremental})
	assert.NoError(t, err)
	assert.False(t, result.FellBack)
	assert.Equal(t, [][]any{{int64(1), "2023-01-15"}}, tableRows(t, store, "PERSONNEL"))
}

func TestLoader_Upsert(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	loader := New(store, newTestConfig(), database, metrics.NullMetricsProvider{})

	_, err := loader.Process(ctx, Request{Schema: schema, Batch: personnelBatch([]any{int64(1), "2023-01-15"}, []any{int64(2), "2023-02-01"}), Mode: config.Incremental})
	assert.NoError(t, err)

	result, err := loader.Process(ctx, Request{
		Schema: schema,
		Batch: personnelBatch(
			[]any{int64(2), "2023-03-01"},
			[]any{int64(3), "n/a"},
			// Same key twice, the last one wins
			[]any{int64(3), "2023-04-01"},
		),
		Mode: config.Incremental,
	})
	assert.NoError(t, err)
	assert.Equal(t, Upsert, result.Strategy)
	assert.Equal(t, int64(2), result.RowsStaged)
	assert.Equal(t, [][]any{
		{int64(1), "2023-01-15"},
		{int64(2), "2023-03-01"},
		{int64(3), "2023-04-01"},
	}, tableRows(t, store, "PERSONNEL"))
}

func TestLoader_MissingKey(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	loader := New(store, newTestConfig(), database, metrics.NullMetricsProvider{})
	{
		// No keys configured
		_, err := loader.Process(ctx, Request{Schema: schema, Batch: batch.MustFromRows("FACT_VENTES", []string{"ID"}, [][]any{{1}}), Mode: config.Incremental})
		var missingKeyErr MissingKeyError
		assert.ErrorAs(t, err, &missingKeyErr)
		assert.Equal(t, "FACT_VENTES", missingKeyErr.Table)
		assert.Empty(t, missingKeyErr.Column)
		assert.False(t, tempTableExists(t, store, "FACT_VENTES"))
	}
	{
		// Key column is not in the batch
		_, err := loader.Process(ctx, Request{Schema: schema, Batch: batch.MustFromRows("PERSONNEL", []string{"NOM"}, [][]any{{"Dupont"}}), Mode: config.Incremental})
		assert.ErrorContains(t, err, `key column "ID_PERSONNEL" is missing`)
	}
}

func TestLoader_FullRefresh(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	loader := New(store, newTestConfig(), database, metrics.NullMetricsProvider{})
	{
		// Missing target
		_, err := loader.Process(ctx, Request{Schema: schema, Batch: personnelBatch([]any{int64(1), "20230115"}), Mode: config.Full})
		var targetMissingErr TargetMissingError
		assert.ErrorAs(t, err, &targetMissingErr)
		assert.False(t, tempTableExists(t, store, "PERSONNEL"))

		exists, err := store.TableExists(ctx, store.IdentifierFor(database, schema, "PERSONNEL"))
		assert.NoError(t, err)
		assert.False(t, exists)
	}
	{
		// Existing target is emptied first
		_, err := store.CreateTableFromBatch(ctx, store.IdentifierFor(database, schema, "PERSONNEL"), personnelBatch([]any{int64(9), "2020-01-01"}))
		assert.NoError(t, err)

		result, err := loader.Process(ctx, Request{Schema: schema, Batch: personnelBatch([]any{int64(1), "20230115"}), Mode: config.Full})
		assert.NoError(t, err)
		assert.Equal(t, FullRefresh, result.Strategy)
		assert.Equal(t, int64(1), result.RowsWritten)
		assert.Equal(t, [][]any{{int64(1), "2023-01-15"}}, tableRows(t, store, "PERSONNEL"))
		assert.False(t, tempTableExists(t, store, "PERSONNEL"))
	}
	{
		// A failed copy keeps the previous rows
		_, err := store.CreateTableFromBatch(ctx, store.IdentifierFor(database, schema, "PERSONNEL"), batch.MustFromRows("PERSONNEL", []string{"ID_PERSONNEL"}, [][]any{{int64(9)}}))
		assert.NoError(t, err)

		_, err = loader.Process(ctx, Request{Schema: schema, Batch: personnelBatch([]any{int64(1), "20230115"}), Mode: config.Full})
		assert.ErrorContains(t, err, "does not exist in table")
		assert.Equal(t, [][]any{{int64(9)}}, tableRows(t, store, "PERSONNEL"))
		assert.False(t, tempTableExists(t, store, "PERSONNEL"))
	}
}

func TestLoader_Replace(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	loader := New(store, newTestConfig(), database, metrics.NullMetricsProvider{})

	_, err := store.CreateTableFromBatch(ctx, store.IdentifierFor(database, schema, "DIM_CALENDAR"), batch.MustFromRows("DIM_CALENDAR", []string{"OLD"}, [][]any{{"x"}}))
	assert.NoError(t, err)

	result, err := loader.Process(ctx, Request{Schema: schema, Batch: batch.MustFromRows("dim_calendar", []string{"JOUR"}, [][]any{{"lundi"}, {"mardi"}}), Mode: config.Incremental})
	assert.NoError(t, err)
	assert.Equal(t, Replace, result.Strategy)
	assert.Equal(t, int64(2), result.RowsWritten)

	columns, err := store.DescribeTable(ctx, store.IdentifierFor(database, schema, "DIM_CALENDAR"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"JOUR"}, columns)
}

func TestLoader_InvalidIdentifier(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	metricsClient := &fakeMetrics{}
	loader := New(store, newTestConfig(), database, metricsClient)
	{
		_, err := loader.Load(ctx, Request{Schema: schema, Batch: batch.MustFromRows("PERSONNEL", []string{"ID_PERSONNEL", `NOM"; DROP TABLE X; --`}, [][]any{{1, "a"}}), Mode: config.Incremental})
		assert.ErrorAs(t, err, &sql.InvalidIdentifierError{})
	}
	{
		_, err := loader.Load(ctx, Request{Schema: "bad schema", Batch: personnelBatch([]any{1, "a"}), Mode: config.Incremental})
		assert.ErrorAs(t, err, &sql.InvalidIdentifierError{})
	}
	assert.Equal(t, []string{"load.failed", "load.failed"}, metricsClient.incr)
}

type failingMergeStore struct {
	*memory.Store
}

func (f failingMergeStore) MergeFromTable(_ context.Context, _, _ sql.TableIdentifier, _, _ []string) (int64, error) {
	return 0, errors.New("warehouse went away")
}

func TestLoader_TempTableIsDroppedOnFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	_, err := store.CreateTableFromBatch(ctx, store.IdentifierFor(database, schema, "PERSONNEL"), personnelBatch([]any{int64(9), "2020-01-01"}))
	assert.NoError(t, err)

	loader := New(failingMergeStore{Store: store}, newTestConfig(), database, metrics.NullMetricsProvider{})
	_, err = loader.Process(ctx, Request{Schema: schema, Batch: personnelBatch([]any{int64(1), "20230115"}), Mode: config.Incremental})
	assert.ErrorContains(t, err, "warehouse went away")
	assert.False(t, tempTableExists(t, store, "PERSONNEL"))
	assert.Equal(t, [][]any{{int64(9), "2020-01-01"}}, tableRows(t, store, "PERSONNEL"))
}

func TestLoader_Prepare(t *testing.T) {
	loader := New(memory.NewStore(), newTestConfig(), database, metrics.NullMetricsProvider{})
	b := batch.MustFromRows("PERSONNEL", []string{"ID_PERSONNEL", "NOM", "DATE_SORTIE", "NOM"}, [][]any{
		{int64(1), "NULL", int64(1_700_000_000), "dup"},
		{"2", " Dupont ", nil, "dup"},
	})

	out := loader.Prepare(b)
	assert.Equal(t, []string{"ID_PERSONNEL", "NOM", "DATE_SORTIE"}, out.Columns())
	assert.Equal(t, [][]any{
		{int64(1), nil, "2023-11-14"},
		{int64(2), " Dupont ", nil},
	}, out.Rows())
}
