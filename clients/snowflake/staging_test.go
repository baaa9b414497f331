package snowflake

import (
	"fmt"
	"regexp"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/artie-labs/tenantsync/clients/snowflake/dialect"
	"github.com/artie-labs/tenantsync/lib/batch"
)

const putRegex = `PUT 'file://.+/bee_central_bee_test_client_a_temp_dim_personnel\.csv\.gz' @"BEE_CENTRAL"\."BEE_TEST_CLIENT_A"\."%TEMP_DIM_PERSONNEL"`

func personnelBatch() *batch.Batch {
	return batch.MustFromRows("DIM_PERSONNEL", []string{"ID_PERSONNEL", "NOM"}, [][]any{
		{int64(1), "Dupont"},
		{int64(2), nil},
	})
}

func copyRows(rowsLoaded string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"file", "status", "rows_parsed", "rows_loaded"}).
		AddRow("bee_central_bee_test_client_a_temp_dim_personnel.csv.gz", "LOADED", rowsLoaded, rowsLoaded)
}

func (s *SnowflakeTestSuite) expectedCopyQuery() string {
	tableID := dialect.NewTableIdentifier("bee_central", "bee_test_client_a", "temp_dim_personnel")
	return regexp.QuoteMeta(dialect.SnowflakeDialect{}.BuildCopyIntoTableQuery(
		tableID, []string{"ID_PERSONNEL", "NOM"}, `"BEE_CENTRAL"."BEE_TEST_CLIENT_A"."%TEMP_DIM_PERSONNEL"`, "bee_central_bee_test_client_a_temp_dim_personnel.csv.gz",
	))
}

func (s *SnowflakeTestSuite) TestWriteBatch() {
	tableID := s.store.IdentifierFor("bee_central", "bee_test_client_a", "temp_dim_personnel")
	{
		// Happy path
		s.mock.ExpectExec(putRegex).WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectQuery(s.expectedCopyQuery()).WillReturnRows(copyRows("2"))

		rows, err := s.store.WriteBatch(s.ctx, tableID, personnelBatch())
		s.NoError(err)
		s.Equal(int64(2), rows)
	}
	{
		// Fewer rows loaded than written
		s.mock.ExpectExec(putRegex).WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectQuery(s.expectedCopyQuery()).WillReturnRows(copyRows("1"))

		_, err := s.store.WriteBatch(s.ctx, tableID, personnelBatch())
		s.ErrorContains(err, "expected 2 rows to be inserted, but got 1")
	}
	{
		// COPY fails, the stage is cleaned up
		s.mock.ExpectExec(putRegex).WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectQuery(s.expectedCopyQuery()).WillReturnError(fmt.Errorf("warehouse suspended"))
		s.mock.ExpectExec(regexp.QuoteMeta(`REMOVE @"BEE_CENTRAL"."BEE_TEST_CLIENT_A"."%TEMP_DIM_PERSONNEL"`)).WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := s.store.WriteBatch(s.ctx, tableID, personnelBatch())
		s.ErrorContains(err, "warehouse suspended")
	}
	{
		// PUT fails
		s.mock.ExpectExec(putRegex).WillReturnError(fmt.Errorf("stage is gone"))

		_, err := s.store.WriteBatch(s.ctx, tableID, personnelBatch())
		s.ErrorContains(err, "failed to run PUT")
	}
	{
		// Nothing to write
		rows, err := s.store.WriteBatch(s.ctx, tableID, batch.New("DIM_PERSONNEL", []string{"ID_PERSONNEL"}))
		s.NoError(err)
		s.Zero(rows)
	}
}

func (s *SnowflakeTestSuite) TestCreateTableFromBatch() {
	tableID := s.store.IdentifierFor("bee_central", "bee_test_client_a", "temp_dim_personnel")
	{
		createQuery := dialect.SnowflakeDialect{}.BuildCreateTableQuery(tableID, []string{`"ID_PERSONNEL" int`, `"NOM" string`})
		s.mock.ExpectExec(regexp.QuoteMeta(createQuery)).WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectExec(putRegex).WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectQuery(s.expectedCopyQuery()).WillReturnRows(copyRows("2"))

		rows, err := s.store.CreateTableFromBatch(s.ctx, tableID, personnelBatch())
		s.NoError(err)
		s.Equal(int64(2), rows)
	}
	{
		// No columns
		_, err := s.store.CreateTableFromBatch(s.ctx, tableID, batch.New("DIM_PERSONNEL", nil))
		s.ErrorContains(err, "without any columns")
	}
}
