package snowflake

import (
	"regexp"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/artie-labs/tenantsync/models"
)

func (s *SnowflakeTestSuite) TestListSchemasAndTables() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT SCHEMA_NAME FROM "BEE_CENTRAL".INFORMATION_SCHEMA.SCHEMATA`)).
		WillReturnRows(sqlmock.NewRows([]string{"SCHEMA_NAME"}).AddRow("BEE_TEST_CLIENT_A").AddRow("PUBLIC"))
	schemas, err := s.store.ListSchemas(s.ctx, "bee_central")
	s.NoError(err)
	s.Equal([]string{"BEE_TEST_CLIENT_A", "PUBLIC"}, schemas)

	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT TABLE_NAME FROM "BEE_CENTRAL".INFORMATION_SCHEMA.TABLES`)).
		WithArgs("BEE_TEST_CLIENT_A").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("DIM_PERSONNEL"))
	tables, err := s.store.ListTables(s.ctx, "bee_central", "bee_test_client_a")
	s.NoError(err)
	s.Equal([]string{"DIM_PERSONNEL"}, tables)
}

func (s *SnowflakeTestSuite) TestRegistry() {
	registryID := s.store.IdentifierFor("bee_master", "public", "client_databases")
	{
		s.mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "BEE_MASTER"."PUBLIC"."CLIENT_DATABASES"`)).WillReturnResult(sqlmock.NewResult(0, 0))
		s.NoError(s.store.EnsureRegistryTable(s.ctx, registryID))
	}
	{
		createdAt := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
		s.mock.ExpectQuery(regexp.QuoteMeta(`FROM "BEE_MASTER"."PUBLIC"."CLIENT_DATABASES" WHERE UPPER(DATABASE_NAME) = UPPER(?)`)).
			WithArgs("BEE_CENTRAL").
			WillReturnRows(sqlmock.NewRows([]string{"TENANT_ID", "TENANT_NAME", "DATABASE_NAME", "SCHEMA_NAME", "STATUS", "CREATED_AT"}).
				AddRow(int64(1), "Client A", "BEE_CENTRAL", "BEE_TEST_CLIENT_A", "Active", createdAt).
				AddRow(int64(2), nil, "BEE_CENTRAL", "BEE_TEST_CLIENT_B", nil, nil))

		tenants, err := s.store.ListTenants(s.ctx, registryID, "BEE_CENTRAL")
		s.NoError(err)
		s.Equal([]models.Tenant{
			{ID: 1, Name: "Client A", Database: "BEE_CENTRAL", Schema: "BEE_TEST_CLIENT_A", Status: "Active", CreatedAt: createdAt},
			{ID: 2, Database: "BEE_CENTRAL", Schema: "BEE_TEST_CLIENT_B"},
		}, tenants)
	}
	{
		query := regexp.QuoteMeta(`MERGE INTO "BEE_MASTER"."PUBLIC"."CLIENT_DATABASES" AS tgt USING`)
		s.mock.ExpectExec(query).WithArgs("Client C", "BEE_CENTRAL", "BEE_TEST_CLIENT_C", models.TenantStatusActive).WillReturnResult(sqlmock.NewResult(0, 1))
		inserted, err := s.store.InsertTenantIfAbsent(s.ctx, registryID, models.Tenant{Name: "Client C", Database: "BEE_CENTRAL", Schema: "BEE_TEST_CLIENT_C"})
		s.NoError(err)
		s.True(inserted)

		s.mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 0))
		inserted, err = s.store.InsertTenantIfAbsent(s.ctx, registryID, models.Tenant{Name: "Client C", Database: "BEE_CENTRAL", Schema: "BEE_TEST_CLIENT_C"})
		s.NoError(err)
		s.False(inserted)
	}
}
