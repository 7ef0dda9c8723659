// Package extension provides the Forge extension adapter for feeledger.
//
// It implements the forge.Extension interface to integrate the fee engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.feeledger" or
// "feeledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/feeledger"
	"github.com/xraph/feeledger/store"
	"github.com/xraph/feeledger/store/memory"
	"github.com/xraph/feeledger/store/mongo"
	"github.com/xraph/feeledger/store/postgres"
	"github.com/xraph/feeledger/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "feeledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Token fee engine with journaled balances"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the fee engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *feeledger.Engine
	store      store.Store
	groveDB    *grove.DB
	engineOpts []feeledger.Option
}

// New creates a new fee engine Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *feeledger.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.init(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*feeledger.Engine, error) {
		return e.engine, nil
	})
}

// init builds the store and engine from the resolved config.
func (e *Extension) init() error {
	if e.store == nil {
		s, err := buildStore(e.config.Driver, e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}
	e.engine = feeledger.New(e.store, opts...)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("feeledger: extension not initialized")
	}

	if !e.config.DisableStart {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("feeledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore wraps db in the store for driver.
func buildStore(driver string, db *grove.DB) (store.Store, error) {
	driver = strings.ToLower(driver)
	if driver == "" || driver == DriverMemory {
		return memory.New(), nil
	}
	if db == nil {
		return nil, fmt.Errorf("feeledger: driver %q requires WithGroveDB", driver)
	}
	switch driver {
	case DriverSQLite:
		return sqlite.New(db), nil
	case DriverPostgres:
		return postgres.New(db), nil
	case DriverMongo:
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("feeledger: unknown store driver %q", driver)
	}
}

// buildEngineOpts constructs feeledger.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]feeledger.Option, error) {
	opts := make([]feeledger.Option, 0, len(e.engineOpts)+5)

	if e.config.Administrator != "" {
		admin, err := feeledger.ParseAddress(e.config.Administrator)
		if err != nil {
			return nil, fmt.Errorf("feeledger: administrator: %w", err)
		}
		opts = append(opts, feeledger.WithGenesis(feeledger.DefaultGenesis(admin)))
	}
	if e.config.FeeHoldingAccount != "" {
		holding, err := feeledger.ParseAddress(e.config.FeeHoldingAccount)
		if err != nil {
			return nil, fmt.Errorf("feeledger: fee holding account: %w", err)
		}
		opts = append(opts, feeledger.WithFeeHoldingAccount(holding))
	}
	if e.config.SwapTimeout > 0 {
		opts = append(opts, feeledger.WithSwapTimeout(e.config.SwapTimeout))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, feeledger.WithPluginTimeout(e.config.PluginTimeout))
	}
	if e.config.DisableMigrate {
		opts = append(opts, feeledger.WithoutMigrate())
	}

	// Pass-through options last so they override config-derived ones.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("feeledger: configuration is required but not found in config files; " +
				"ensure 'extensions.feeledger' or 'feeledger' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("feeledger: configuration loaded",
		forge.F("driver", e.config.Driver),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_start", e.config.DisableStart),
		forge.F("administrator", e.config.Administrator),
		forge.F("swap_timeout", e.config.SwapTimeout),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.feeledger", "feeledger"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("feeledger: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("feeledger: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.SwapTimeout == 0 {
		cfg.SwapTimeout = defaults.SwapTimeout
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and bool
// flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableStart {
		yamlConfig.DisableStart = true
	}

	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.Administrator == "" {
		yamlConfig.Administrator = programmaticConfig.Administrator
	}
	if yamlConfig.FeeHoldingAccount == "" {
		yamlConfig.FeeHoldingAccount = programmaticConfig.FeeHoldingAccount
	}
	if yamlConfig.SwapTimeout == 0 {
		yamlConfig.SwapTimeout = programmaticConfig.SwapTimeout
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
