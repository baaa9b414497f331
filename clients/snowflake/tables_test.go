package snowflake

import (
	"errors"
	"regexp"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/artie-labs/tenantsync/lib/batch"
)

func (s *SnowflakeTestSuite) TestTableExists() {
	tableID := s.store.IdentifierFor("bee_central", "bee_test_client_a", "dim_personnel")
	query := regexp.QuoteMeta(`SELECT COUNT(*) FROM "BEE_CENTRAL".INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`)
	{
		s.mock.ExpectQuery(query).WithArgs("BEE_TEST_CLIENT_A", "DIM_PERSONNEL").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
		exists, err := s.store.TableExists(s.ctx, tableID)
		s.NoError(err)
		s.True(exists)
	}
	{
		s.mock.ExpectQuery(query).WithArgs("BEE_TEST_CLIENT_A", "DIM_PERSONNEL").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		exists, err := s.store.TableExists(s.ctx, tableID)
		s.NoError(err)
		s.False(exists)
	}
	{
		s.mock.ExpectQuery(query).WillReturnError(errors.New("boom"))
		_, err := s.store.TableExists(s.ctx, tableID)
		s.ErrorContains(err, "boom")
	}
}

func (s *SnowflakeTestSuite) TestDescribeTable() {
	tableID := s.store.IdentifierFor("bee_central", "bee_test_client_a", "dim_personnel")
	query := regexp.QuoteMeta(`FROM "BEE_CENTRAL".INFORMATION_SCHEMA.COLUMNS`)
	{
		s.mock.ExpectQuery(query).
			WithArgs("BEE_TEST_CLIENT_A", "DIM_PERSONNEL").
			WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("ID_PERSONNEL").AddRow("NOM"))

		columns, err := s.store.DescribeTable(s.ctx, tableID)
		s.NoError(err)
		s.Equal([]string{"ID_PERSONNEL", "NOM"}, columns)
	}
	{
		// Missing table
		s.mock.ExpectQuery(query).WithArgs("BEE_TEST_CLIENT_A", "DIM_PERSONNEL").WillReturnRows(sqlmock.NewRows([]string{"column_name"}))
		_, err := s.store.DescribeTable(s.ctx, tableID)
		s.True(s.store.Dialect().IsTableDoesNotExistErr(err))
	}
}

func (s *SnowflakeTestSuite) TestDropTable() {
	tableID := s.store.IdentifierFor("bee_central", "bee_test_client_a", "temp_dim_personnel")
	s.mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "BEE_CENTRAL"."BEE_TEST_CLIENT_A"."TEMP_DIM_PERSONNEL"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	s.NoError(s.store.DropTable(s.ctx, tableID))
}

func (s *SnowflakeTestSuite) TestAddColumn() {
	tableID := s.store.IdentifierFor("bee_merge", "public", "dim_personnel")
	query := regexp.QuoteMeta(`ALTER TABLE "BEE_MERGE"."PUBLIC"."DIM_PERSONNEL" ADD COLUMN "TENANT_ID" int`)
	{
		s.mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 0))
		s.NoError(s.store.AddColumn(s.ctx, tableID, "tenant_id", batch.Integer))
	}
	{
		// Already there
		s.mock.ExpectExec(query).WillReturnError(errors.New("SQL compilation error: column 'TENANT_ID' already exists"))
		s.NoError(s.store.AddColumn(s.ctx, tableID, "tenant_id", batch.Integer))
	}
	{
		s.mock.ExpectExec(query).WillReturnError(errors.New("insufficient privileges"))
		s.ErrorContains(s.store.AddColumn(s.ctx, tableID, "tenant_id", batch.Integer), "insufficient privileges")
	}
}

func (s *SnowflakeTestSuite) TestDistinctInt64s() {
	tableID := s.store.IdentifierFor("bee_merge", "public", "dim_personnel")
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT "TENANT_ID" FROM "BEE_MERGE"."PUBLIC"."DIM_PERSONNEL"`)).
		WillReturnRows(sqlmock.NewRows([]string{"TENANT_ID"}).AddRow(int64(3)).AddRow(int64(7)))

	values, err := s.store.DistinctInt64s(s.ctx, tableID, "TENANT_ID")
	s.NoError(err)
	s.Equal([]int64{3, 7}, values)
}

func (s *SnowflakeTestSuite) TestMergeFromTable() {
	targetID := s.store.IdentifierFor("bee_central", "bee_test_client_a", "dim_personnel")
	stagingID := targetID.WithTable("TEMP_DIM_PERSONNEL")
	{
		s.mock.ExpectExec(regexp.QuoteMeta(`MERGE INTO "BEE_CENTRAL"."BEE_TEST_CLIENT_A"."DIM_PERSONNEL" AS tgt USING "BEE_CENTRAL"."BEE_TEST_CLIENT_A"."TEMP_DIM_PERSONNEL" AS stg ON tgt."ID_PERSONNEL" = stg."ID_PERSONNEL"`)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		rows, err := s.store.MergeFromTable(s.ctx, targetID, stagingID, []string{"ID_PERSONNEL"}, []string{"ID_PERSONNEL", "NOM"})
		s.NoError(err)
		s.Equal(int64(2), rows)
	}
	{
		_, err := s.store.MergeFromTable(s.ctx, targetID, stagingID, nil, []string{"ID_PERSONNEL"})
		s.ErrorContains(err, "without keys")
	}
}

func (s *SnowflakeTestSuite) TestOverwriteFromTable() {
	targetID := s.store.IdentifierFor("bee_central", "bee_test_client_a", "dim_personnel")
	stagingID := targetID.WithTable("TEMP_DIM_PERSONNEL")
	truncateQuery := regexp.QuoteMeta(`TRUNCATE TABLE IF EXISTS "BEE_CENTRAL"."BEE_TEST_CLIENT_A"."DIM_PERSONNEL"`)
	insertQuery := regexp.QuoteMeta(`INSERT INTO "BEE_CENTRAL"."BEE_TEST_CLIENT_A"."DIM_PERSONNEL" ("ID_PERSONNEL") SELECT "ID_PERSONNEL" FROM "BEE_CENTRAL"."BEE_TEST_CLIENT_A"."TEMP_DIM_PERSONNEL"`)
	{
		s.mock.ExpectBegin()
		s.mock.ExpectExec(truncateQuery).WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectExec(insertQuery).WillReturnResult(sqlmock.NewResult(0, 5))
		s.mock.ExpectCommit()

		rows, err := s.store.OverwriteFromTable(s.ctx, targetID, stagingID, []string{"ID_PERSONNEL"})
		s.NoError(err)
		s.Equal(int64(5), rows)
	}
	{
		// A failed insert rolls the truncate back
		s.mock.ExpectBegin()
		s.mock.ExpectExec(truncateQuery).WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectExec(insertQuery).WillReturnError(errors.New("invalid identifier 'ID_PERSONNEL'"))
		s.mock.ExpectRollback()

		_, err := s.store.OverwriteFromTable(s.ctx, targetID, stagingID, []string{"ID_PERSONNEL"})
		s.ErrorContains(err, "invalid identifier")
	}
	{
		s.mock.ExpectBegin()
		s.mock.ExpectExec(truncateQuery).WillReturnError(errors.New("no privilege"))
		s.mock.ExpectRollback()

		_, err := s.store.OverwriteFromTable(s.ctx, targetID, stagingID, []string{"ID_PERSONNEL"})
		s.ErrorContains(err, "no privilege")
	}
}
