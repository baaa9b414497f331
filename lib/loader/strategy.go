package loader

import (
	"github.com/artie-labs/tenantsync/lib/config"
)

type Strategy string

const (
	Replace     Strategy = "REPLACE"
	FullRefresh Strategy = "FULL_REFRESH"
	Upsert      Strategy = "UPSERT"
)

// SelectStrategy picks how a batch is committed to [table]: the create-or-replace flag wins, then the mode.
func SelectStrategy(cfg config.Config, table string, mode config.Mode) Strategy {
	switch {
	case cfg.CreateOrReplace(table):
		return Replace
	case mode == config.Full:
		return FullRefresh
	default:
		return Upsert
	}
}
