package extension

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/feeledger"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/store"
	"github.com/xraph/feeledger/swap"
)

// Option configures the fee engine Forge extension.
type Option func(*Extension)

// WithStore sets the store for the fee engine. It takes precedence over
// WithGroveDB.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB sets the database the configured driver's store is built on.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithDriver selects the store backend for WithGroveDB.
func WithDriver(driver string) Option {
	return func(e *Extension) { e.config.Driver = driver }
}

// WithEngineOption passes a feeledger.Option through to the underlying engine.
func WithEngineOption(opt feeledger.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, feeledger.WithPlugin(p))
	}
}

// WithRouter sets the swap router used to convert fees.
func WithRouter(r swap.Router) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, feeledger.WithRouter(r))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithAdministrator seeds an empty journal with the default genesis for admin.
func WithAdministrator(admin common.Address) Option {
	return func(e *Extension) { e.config.Administrator = admin.Hex() }
}

// WithDisableMigrate skips store migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableStart leaves the engine unstarted.
func WithDisableStart() Option {
	return func(e *Extension) { e.config.DisableStart = true }
}

// WithSwapTimeout bounds a single router call.
func WithSwapTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.SwapTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
