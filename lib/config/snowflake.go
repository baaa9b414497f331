package config

import (
	"fmt"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/artie-labs/tenantsync/lib/cryptography"
)

func (s Snowflake) ToConfig() (*gosnowflake.Config, error) {
	keepAlive := "true"
	cfg := &gosnowflake.Config{
		Account:     s.AccountID,
		User:        s.Username,
		Warehouse:   s.Warehouse,
		Role:        s.Role,
		Region:      s.Region,
		Database:    s.Database,
		Application: s.Application,
		Params: map[string]*string{
			// This parameter will cancel in-progress queries if connectivity is lost.
			// https://docs.snowflake.com/en/sql-reference/parameters#abort-detached-query
			"ABORT_DETACHED_QUERY": &keepAlive,
			// This parameter must be set to prevent the auth token from expiring after 4 hours.
			// https://docs.snowflake.com/en/user-guide/session-policies#considerations
			"CLIENT_SESSION_KEEP_ALIVE": &keepAlive,
		},
	}

	if s.PathToPrivateKey != "" {
		key, err := cryptography.LoadRSAKey(s.PathToPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}

		cfg.PrivateKey = key
		cfg.Authenticator = gosnowflake.AuthTypeJwt
	} else {
		cfg.Password = s.Password
	}

	if s.Host != "" {
		// If the host is specified
		cfg.Host = s.Host
		cfg.Region = ""
	}

	return cfg, nil
}

// ConnectionKey identifies the session [s] opens, two configs with the same key can share a connection.
func (s Snowflake) ConnectionKey() string {
	return strings.Join([]string{s.AccountID, s.Username, s.Password, s.PathToPrivateKey, s.Warehouse, s.Role, s.Region, s.Host, s.Application, s.Database}, "\x00")
}

func (s Snowflake) DSN() (string, error) {
	cfg, err := s.ToConfig()
	if err != nil {
		return "", err
	}

	dsn, err := gosnowflake.DSN(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to build the snowflake dsn: %w", err)
	}

	return dsn, nil
}
