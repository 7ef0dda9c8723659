package extension

import "time"

// Store drivers understood by Config.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the fee engine extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.feeledger" or "feeledger" keys).
type Config struct {
	// Driver selects the store backend wrapped around the grove.DB passed
	// with WithGroveDB: memory, sqlite, postgres or mongo (default: memory).
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DisableMigrate skips store migration when the engine starts.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableStart leaves the engine unstarted; the host calls Engine().Start.
	DisableStart bool `json:"disable_start" mapstructure:"disable_start" yaml:"disable_start"`

	// Administrator, when set, seeds an empty journal with the default
	// genesis owned by this address.
	Administrator string `json:"administrator" mapstructure:"administrator" yaml:"administrator"`

	// FeeHoldingAccount overrides the account fees accrue to.
	FeeHoldingAccount string `json:"fee_holding_account" mapstructure:"fee_holding_account" yaml:"fee_holding_account"`

	// SwapTimeout bounds a single router call (default: 30s).
	SwapTimeout time.Duration `json:"swap_timeout" mapstructure:"swap_timeout" yaml:"swap_timeout"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:        DriverMemory,
		SwapTimeout:   30 * time.Second,
		PluginTimeout: 5 * time.Second,
	}
}
