package snowflake

import (
	"context"
	"fmt"
	"log/slog"

	// Registers the "snowflake" driver.
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/artie-labs/tenantsync/clients/snowflake/dialect"
	"github.com/artie-labs/tenantsync/lib/config"
	"github.com/artie-labs/tenantsync/lib/db"
	"github.com/artie-labs/tenantsync/lib/destination"
	"github.com/artie-labs/tenantsync/lib/sql"
)

var _ destination.Warehouse = (*Store)(nil)

type Store struct {
	db.Store
	config config.Snowflake
}

func (s *Store) dialect() dialect.SnowflakeDialect {
	return dialect.SnowflakeDialect{}
}

func (s *Store) Dialect() sql.Dialect {
	return s.dialect()
}

func (s *Store) IdentifierFor(database, schema, table string) sql.TableIdentifier {
	return dialect.NewTableIdentifier(database, schema, table)
}

// LoadSnowflake connects to Snowflake, [_store] is only passed in by tests.
func LoadSnowflake(ctx context.Context, cfg config.Snowflake, _store *db.Store) (*Store, error) {
	if _store != nil {
		// Used for tests.
		return &Store{Store: *_store, config: cfg}, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return nil, fmt.Errorf("failed to get snowflake dsn: %w", err)
	}

	store, err := db.Open(ctx, "snowflake", dsn)
	if err != nil {
		return nil, err
	}

	slog.Info("Connected to Snowflake", slog.String("config", cfg.String()))
	return &Store{Store: store, config: cfg}, nil
}
