package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artie-labs/tenantsync/lib/config/constants"
)

type Sentry struct {
	DSN string `yaml:"dsn"`
}

type Reporting struct {
	Sentry *Sentry `yaml:"sentry"`
}

type Snowflake struct {
	AccountID        string `yaml:"account"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	PathToPrivateKey string `yaml:"pathToPrivateKey"`
	Warehouse        string `yaml:"warehouse"`
	Role             string `yaml:"role"`
	Region           string `yaml:"region"`
	Host             string `yaml:"host"`
	Application      string `yaml:"application"`
	// Database holds one schema per tenant, it is where the loader writes.
	Database string `yaml:"database"`
}

func (s Snowflake) String() string {
	// Don't log credentials.
	return fmt.Sprintf("account=%s, username=%s, warehouse=%s, database=%s, pass_set=%v, key_set=%v",
		s.AccountID, s.Username, s.Warehouse, s.Database, s.Password != "", s.PathToPrivateKey != "")
}

type Source struct {
	Driver constants.SourceDriver `yaml:"driver"`
	DSN    string                 `yaml:"dsn"`
}

type Tenant struct {
	Name   string `yaml:"name"`
	Schema string `yaml:"schema"`
	// Database is optional and defaults to [Snowflake.Database].
	Database string `yaml:"database"`
	Source   Source `yaml:"source"`
	// Snowflake overrides the connection fields it sets, see [Config.SnowflakeFor].
	Snowflake *Snowflake `yaml:"snowflake"`
	// CreateOrReplace overrides [ETL.CreateOrReplace] for every table of this tenant.
	CreateOrReplace *bool `yaml:"createOrReplace"`
}

type ETL struct {
	Mode            Mode `yaml:"mode"`
	MaxWorkers      int  `yaml:"maxWorkers"`
	CreateOrReplace bool `yaml:"createOrReplace"`
	// StartDate and EndDate fill the {start_date} and {end_date} placeholders of catalog queries.
	StartDate string `yaml:"startDate"`
	EndDate   string `yaml:"endDate"`
}

type TableConfig struct {
	// CreateOrReplace overrides [ETL.CreateOrReplace] for this table.
	CreateOrReplace *bool    `yaml:"createOrReplace"`
	Keys            []string `yaml:"keys"`
	DateColumns     []string `yaml:"dateColumns"`
}

type CatalogEntry struct {
	Name   string `yaml:"name"`
	Query  string `yaml:"query"`
	Target string `yaml:"target"`
}

type Registry struct {
	Database        string   `yaml:"database"`
	Schema          string   `yaml:"schema"`
	Table           string   `yaml:"table"`
	ExcludedSchemas []string `yaml:"excludedSchemas"`
}

// IsExcluded returns whether [schema] is a system schema or was explicitly excluded.
func (r Registry) IsExcluded(schema string) bool {
	isMatch := func(excluded string) bool { return strings.EqualFold(excluded, schema) }
	return slices.ContainsFunc(constants.SystemSchemas, isMatch) || slices.ContainsFunc(r.ExcludedSchemas, isMatch)
}

type Consolidation struct {
	// ParentDatabase is where the tenant schemas live, defaults to [Snowflake.Database].
	ParentDatabase string `yaml:"parentDatabase"`
	Database       string `yaml:"database"`
	Schema         string `yaml:"schema"`
	TenantColumn   string `yaml:"tenantColumn"`
	// SchemaPrefix restricts consolidation to registered schemas starting with this prefix.
	SchemaPrefix string   `yaml:"schemaPrefix"`
	Tables       []string `yaml:"tables"`
	// TagTenantTables adds [TenantColumn] to the tenant tables themselves and fills it in before merging.
	TagTenantTables bool `yaml:"tagTenantTables"`
}

type Redis struct {
	Addr     string        `yaml:"addr"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lockTTL"`
}

type Config struct {
	Snowflake     *Snowflake             `yaml:"snowflake"`
	Tenants       []Tenant               `yaml:"tenants"`
	ETL           ETL                    `yaml:"etl"`
	Tables        map[string]TableConfig `yaml:"tables"`
	Catalog       []CatalogEntry         `yaml:"catalog"`
	Registry      Registry               `yaml:"registry"`
	Consolidation Consolidation          `yaml:"consolidation"`
	Redis         *Redis                 `yaml:"redis"`

	Reporting Reporting `yaml:"reporting"`

	Telemetry struct {
		Metrics struct {
			Provider constants.ExporterKind `yaml:"provider"`
			Settings map[string]any         `yaml:"settings,omitempty"`
		}
	}
}

// TableConfig looks up the settings for [target], matching case-insensitively. Unknown tables get the zero value.
func (c Config) TableConfig(target string) TableConfig {
	if tc, ok := c.Tables[target]; ok {
		return tc
	}

	for name, tc := range c.Tables {
		if strings.EqualFold(name, target) {
			return tc
		}
	}

	return TableConfig{}
}

// CreateOrReplace returns whether [target] is always dropped and recreated.
func (c Config) CreateOrReplace(target string) bool {
	if value := c.TableConfig(target).CreateOrReplace; value != nil {
		return *value
	}
	return c.ETL.CreateOrReplace
}

// ForTenant returns the config used to load [tenant]'s tables.
func (c Config) ForTenant(tenant Tenant) Config {
	if tenant.CreateOrReplace != nil {
		c.ETL.CreateOrReplace = *tenant.CreateOrReplace
	}
	return c
}

// SnowflakeFor resolves the connection of [tenant]: fields set on the tenant win over the top-level block.
func (c Config) SnowflakeFor(tenant Tenant) Snowflake {
	var resolved Snowflake
	if c.Snowflake != nil {
		resolved = *c.Snowflake
	}

	override := tenant.Snowflake
	if override == nil {
		return resolved
	}

	if override.Password != "" || override.PathToPrivateKey != "" {
		resolved.Password = override.Password
		resolved.PathToPrivateKey = override.PathToPrivateKey
	}

	for _, field := range []struct {
		dst *string
		src string
	}{
		{&resolved.AccountID, override.AccountID},
		{&resolved.Username, override.Username},
		{&resolved.Warehouse, override.Warehouse},
		{&resolved.Role, override.Role},
		{&resolved.Region, override.Region},
		{&resolved.Host, override.Host},
		{&resolved.Application, override.Application},
		{&resolved.Database, override.Database},
	} {
		if field.src != "" {
			*field.dst = field.src
		}
	}

	return resolved
}

func (c Config) TenantByName(name string) (Tenant, bool) {
	for _, tenant := range c.Tenants {
		if strings.EqualFold(tenant.Name, name) || strings.EqualFold(tenant.Schema, name) {
			return tenant, true
		}
	}
	return Tenant{}, false
}

func readFileToConfig(pathToConfig string) (*Config, error) {
	bytes, err := os.ReadFile(pathToConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	config.setDefaults()
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.ETL.Mode == "" {
		c.ETL.Mode = Incremental
	}

	if c.ETL.MaxWorkers == 0 {
		c.ETL.MaxWorkers = constants.DefaultMaxWorkers
	}

	if c.Registry.Database == "" {
		c.Registry.Database = constants.DefaultRegistryDatabase
	}

	if c.Registry.Schema == "" {
		c.Registry.Schema = constants.DefaultRegistrySchema
	}

	if c.Registry.Table == "" {
		c.Registry.Table = constants.DefaultRegistryTable
	}

	if c.Consolidation.Database == "" {
		c.Consolidation.Database = constants.DefaultConsolidationDatabase
	}

	if c.Consolidation.Schema == "" {
		c.Consolidation.Schema = constants.DefaultConsolidationSchema
	}

	if c.Consolidation.TenantColumn == "" {
		c.Consolidation.TenantColumn = constants.DefaultTenantColumn
	}

	if c.Snowflake != nil {
		if c.Consolidation.ParentDatabase == "" {
			c.Consolidation.ParentDatabase = c.Snowflake.Database
		}
	}

	for i := range c.Tenants {
		if c.Tenants[i].Database == "" {
			c.Tenants[i].Database = c.SnowflakeFor(c.Tenants[i]).Database
		}
	}

	for i := range c.Tenants {
		if c.Tenants[i].Source.Driver == "" {
			c.Tenants[i].Source.Driver = constants.SQLServer
		}
	}

	if c.Redis != nil && c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = constants.DefaultLockTTL
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if c.Snowflake == nil {
		return fmt.Errorf("snowflake config is missing")
	}

	if c.Snowflake.AccountID == "" || c.Snowflake.Username == "" {
		return fmt.Errorf("snowflake config is invalid, account and username are required: %s", c.Snowflake.String())
	}

	if c.Snowflake.Password == "" && c.Snowflake.PathToPrivateKey == "" {
		return fmt.Errorf("snowflake config is invalid, either password or pathToPrivateKey must be set")
	}

	if !c.ETL.Mode.IsValid() {
		return fmt.Errorf("etl mode %q is invalid", c.ETL.Mode)
	}

	if c.ETL.MaxWorkers < 1 {
		return fmt.Errorf("etl maxWorkers must be at least 1, got %d", c.ETL.MaxWorkers)
	}

	seenSchemas := make(map[string]bool)
	for _, tenant := range c.Tenants {
		if tenant.Schema == "" || tenant.Database == "" {
			return fmt.Errorf("tenant %q is invalid, schema and database are required", tenant.Name)
		}

		key := strings.ToUpper(tenant.Database + "." + tenant.Schema)
		if seenSchemas[key] {
			return fmt.Errorf("tenant schema %q is configured more than once", key)
		}
		seenSchemas[key] = true

		if !tenant.Source.Driver.IsValid() {
			return fmt.Errorf("tenant %q has an unsupported source driver: %q", tenant.Name, tenant.Source.Driver)
		}
	}

	seenTargets := make(map[string]bool)
	for _, entry := range c.Catalog {
		if entry.Query == "" || entry.Target == "" {
			return fmt.Errorf("catalog entry %q is invalid, query and target are required", entry.Name)
		}

		if seenTargets[strings.ToUpper(entry.Target)] {
			return fmt.Errorf("catalog target %q is used more than once", entry.Target)
		}
		seenTargets[strings.ToUpper(entry.Target)] = true
	}

	if c.Redis != nil && c.Redis.Addr == "" {
		return fmt.Errorf("redis config is invalid, addr is required")
	}

	return nil
}
