// Package extension provides the Forge extension adapter for pullpay.
//
// It implements the forge.Extension interface to integrate the billing
// engine into a Forge application with DI registration, a scheduled
// billing loop, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.pullpay" or "pullpay" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/api"
	"github.com/xraph/pullpay/scheduler"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/store/memory"
	"github.com/xraph/pullpay/token"
	"github.com/xraph/pullpay/token/memtoken"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "pullpay"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Recurring pull-payment billing engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts pullpay as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *pullpay.Engine
	store      store.Store
	mover      token.Mover
	handler    *api.Handler
	scheduler  *scheduler.Scheduler
	engineOpts []pullpay.Option
}

// New creates a new pullpay Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying billing engine.
// This is nil until Register is called.
func (e *Extension) Engine() *pullpay.Engine { return e.engine }

// Handler returns the HTTP handler, nil when routes are disabled.
func (e *Extension) Handler() *api.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Without a real mover the engine settles against an in-process ledger,
	// which is only useful for development.
	if e.mover == nil {
		escrow := e.config.Escrow
		if escrow == "" {
			escrow = "escrow"
		}
		e.mover = memtoken.New(escrow)
		e.Logger().Warn("pullpay: no token mover configured, using in-memory token ledger",
			forge.F("escrow", escrow),
		)
	}

	e.engine = pullpay.New(e.store, e.mover, e.buildEngineOpts()...)

	if err := vessel.Provide(fapp.Container(), func() (*pullpay.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if !e.config.DisableScheduler {
		s, err := scheduler.New(e.engine, e.config.ProcessSchedule,
			scheduler.WithTimeout(e.config.ProcessTimeout),
		)
		if err != nil {
			return err
		}
		e.scheduler = s
	}

	if e.config.DisableRoutes {
		return nil
	}

	e.handler = api.New(e.engine, api.WithBasePath(e.config.BasePath))
	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("pullpay: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	if e.scheduler != nil {
		e.scheduler.Start()
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	defer e.MarkStopped()

	if e.scheduler != nil {
		if err := e.scheduler.Stop(ctx); err != nil {
			e.Logger().Warn("pullpay: scheduler did not stop cleanly",
				forge.F("error", err.Error()),
			)
		}
	}

	if e.engine != nil {
		return e.engine.Stop()
	}
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("pullpay: engine not initialized")
	}
	return e.engine.Ping(ctx)
}

// buildEngineOpts constructs pullpay.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []pullpay.Option {
	opts := make([]pullpay.Option, 0, len(e.engineOpts)+6)

	if e.config.Escrow != "" {
		opts = append(opts, pullpay.WithEscrow(e.config.Escrow))
	}
	opts = append(opts,
		pullpay.WithEvictAfter(e.config.EvictAfter),
		pullpay.WithMaxChargesPerRun(e.config.MaxChargesPerRun),
		pullpay.WithConcurrency(e.config.Concurrency),
		pullpay.WithMirrorSyncOnStart(e.config.MirrorSyncOnStart),
	)
	if e.config.DisableMigrate {
		opts = append(opts, pullpay.WithoutMigrate())
	}

	// Pass-through options last so they win.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("pullpay: configuration is required but not found in config files; " +
				"ensure 'extensions.pullpay' or 'pullpay' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("pullpay: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_scheduler", e.config.DisableScheduler),
		forge.F("base_path", e.config.BasePath),
		forge.F("evict_after", e.config.EvictAfter),
		forge.F("max_charges_per_run", e.config.MaxChargesPerRun),
		forge.F("concurrency", e.config.Concurrency),
		forge.F("process_schedule", e.config.ProcessSchedule),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.pullpay", "pullpay"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("pullpay: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("pullpay: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = defaults.EvictAfter
	}
	if cfg.MaxChargesPerRun == 0 {
		cfg.MaxChargesPerRun = defaults.MaxChargesPerRun
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.ProcessSchedule == "" {
		cfg.ProcessSchedule = defaults.ProcessSchedule
	}
	if cfg.ProcessTimeout == 0 {
		cfg.ProcessTimeout = defaults.ProcessTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableScheduler {
		yamlConfig.DisableScheduler = true
	}
	if programmaticConfig.MirrorSyncOnStart {
		yamlConfig.MirrorSyncOnStart = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Escrow == "" {
		yamlConfig.Escrow = programmaticConfig.Escrow
	}
	if yamlConfig.ProcessSchedule == "" {
		yamlConfig.ProcessSchedule = programmaticConfig.ProcessSchedule
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.EvictAfter == 0 {
		yamlConfig.EvictAfter = programmaticConfig.EvictAfter
	}
	if yamlConfig.MaxChargesPerRun == 0 {
		yamlConfig.MaxChargesPerRun = programmaticConfig.MaxChargesPerRun
	}
	if yamlConfig.Concurrency == 0 {
		yamlConfig.Concurrency = programmaticConfig.Concurrency
	}
	if yamlConfig.ProcessTimeout == 0 {
		yamlConfig.ProcessTimeout = programmaticConfig.ProcessTimeout
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
