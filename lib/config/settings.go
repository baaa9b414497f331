package config

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/artie-labs/tenantsync/lib/config/constants"
)

type Settings struct {
	Config         Config
	VerboseLogging bool
	Task           constants.Task
	// Tenant restricts the load task to one configured tenant (name or schema).
	Tenant string
	// DryRun swaps the warehouse for an in-memory one.
	DryRun bool
}

// LoadSettings will take the flags and then parse, loadConfig is optional for testing purposes.
func LoadSettings(args []string, loadConfig bool) (*Settings, error) {
	var opts struct {
		ConfigFilePath string `short:"c" long:"config" description:"path to the config file"`
		Verbose        bool   `short:"v" long:"verbose" description:"debug logging" optional:"true"`
		Task           string `short:"t" long:"task" description:"task to run: load, sync-tenants or consolidate" default:"load"`
		Tenant         string `long:"tenant" description:"only load this tenant"`
		Mode           string `short:"m" long:"mode" description:"overrides etl.mode: full or incremental"`
		DryRun         bool   `long:"dry-run" description:"run against an in-memory warehouse"`
	}

	if _, err := flags.ParseArgs(&opts, args); err != nil {
		return nil, fmt.Errorf("failed to parse args: %w", err)
	}

	settings := &Settings{
		VerboseLogging: opts.Verbose,
		Task:           constants.Task(opts.Task),
		Tenant:         opts.Tenant,
		DryRun:         opts.DryRun,
	}

	if !settings.Task.IsValid() {
		return nil, fmt.Errorf("task %q is invalid", opts.Task)
	}

	if loadConfig {
		config, err := readFileToConfig(opts.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		if opts.Mode != "" {
			config.ETL.Mode = Mode(opts.Mode)
		}

		if err = config.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate config: %w", err)
		}

		if settings.Tenant != "" {
			if _, ok := config.TenantByName(settings.Tenant); !ok {
				return nil, fmt.Errorf("tenant %q is not configured", settings.Tenant)
			}
		}

		settings.Config = *config
	}

	return settings, nil
}
