package snowflake

import (
	"errors"
	"regexp"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/artie-labs/tenantsync/lib/destination"
)

func (s *SnowflakeTestSuite) TestInsertTenantRows() {
	mergedID := s.store.IdentifierFor("bee_merge", "public", "dim_personnel")
	sourceID := s.store.IdentifierFor("bee_central", "bee_test_client_a", "dim_personnel")
	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM "BEE_MERGE"."PUBLIC"."DIM_PERSONNEL" WHERE "TENANT_ID" = ?`)

	args := destination.InsertTenantRowsArgs{
		TargetID:           mergedID,
		SourceID:           sourceID,
		Columns:            []string{"ID_PERSONNEL", "NOM"},
		TenantColumn:       "TENANT_ID",
		TenantID:           7,
		InjectTenantColumn: true,
	}
	{
		// Tenant is copied with an injected identifier
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(countQuery).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "BEE_MERGE"."PUBLIC"."DIM_PERSONNEL" ("ID_PERSONNEL","NOM","TENANT_ID") SELECT "ID_PERSONNEL","NOM",? AS "TENANT_ID" FROM "BEE_CENTRAL"."BEE_TEST_CLIENT_A"."DIM_PERSONNEL" WHERE NOT EXISTS (SELECT 1 FROM "BEE_MERGE"."PUBLIC"."DIM_PERSONNEL" WHERE "TENANT_ID" = ?)`)).
			WithArgs(int64(7), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		s.mock.ExpectCommit()

		result, err := s.store.InsertTenantRows(s.ctx, args)
		s.NoError(err)
		s.Equal(destination.InsertTenantRowsResult{Inserted: 3}, result)
	}
	{
		// Tenant is already there
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(countQuery).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
		s.mock.ExpectRollback()

		result, err := s.store.InsertTenantRows(s.ctx, args)
		s.NoError(err)
		s.True(result.AlreadyPresent)
		s.Zero(result.Inserted)
	}
	{
		// Source carries the tenant column with other values
		carried := args
		carried.InjectTenantColumn = false
		carried.Columns = []string{"ID_PERSONNEL", "TENANT_ID"}

		s.mock.ExpectBegin()
		s.mock.ExpectQuery(countQuery).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "BEE_CENTRAL"."BEE_TEST_CLIENT_A"."DIM_PERSONNEL" WHERE "TENANT_ID" IS NULL OR "TENANT_ID" <> ?`)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
		s.mock.ExpectRollback()

		_, err := s.store.InsertTenantRows(s.ctx, carried)
		var mismatchErr destination.TenantColumnMismatchError
		s.ErrorAs(err, &mismatchErr)
		s.Equal(int64(2), mismatchErr.Rows)
	}
	{
		// Another session committed the tenant after the count, the guarded insert copies nothing
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(countQuery).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		s.mock.ExpectExec(regexp.QuoteMeta(`WHERE NOT EXISTS (SELECT 1 FROM "BEE_MERGE"."PUBLIC"."DIM_PERSONNEL" WHERE "TENANT_ID" = ?)`)).
			WithArgs(int64(7), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectCommit()

		result, err := s.store.InsertTenantRows(s.ctx, args)
		s.NoError(err)
		s.Zero(result.Inserted)
	}
	{
		// Carried tenant column, only the guard is bound
		carried := args
		carried.InjectTenantColumn = false
		carried.Columns = []string{"ID_PERSONNEL", "TENANT_ID"}

		s.mock.ExpectBegin()
		s.mock.ExpectQuery(countQuery).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		s.mock.ExpectQuery(regexp.QuoteMeta(`WHERE "TENANT_ID" IS NULL OR "TENANT_ID" <> ?`)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "BEE_MERGE"."PUBLIC"."DIM_PERSONNEL" ("ID_PERSONNEL","TENANT_ID") SELECT "ID_PERSONNEL","TENANT_ID" FROM`)).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 4))
		s.mock.ExpectCommit()

		result, err := s.store.InsertTenantRows(s.ctx, carried)
		s.NoError(err)
		s.Equal(int64(4), result.Inserted)
	}
}

func (s *SnowflakeTestSuite) TestTagTenantRows() {
	tableID := s.store.IdentifierFor("bee_central", "bee_test_client_a", "dim_personnel")
	query := regexp.QuoteMeta(`UPDATE "BEE_CENTRAL"."BEE_TEST_CLIENT_A"."DIM_PERSONNEL" SET "TENANT_ID" = ? WHERE "TENANT_ID" IS NULL OR "TENANT_ID" <> ?`)
	{
		s.mock.ExpectExec(query).WithArgs(int64(7), int64(7)).WillReturnResult(sqlmock.NewResult(0, 12))
		rows, err := s.store.TagTenantRows(s.ctx, tableID, "TENANT_ID", 7)
		s.NoError(err)
		s.Equal(int64(12), rows)
	}
	{
		s.mock.ExpectExec(query).WillReturnError(errors.New("insufficient privileges"))
		_, err := s.store.TagTenantRows(s.ctx, tableID, "TENANT_ID", 7)
		s.ErrorContains(err, "insufficient privileges")
	}
}
