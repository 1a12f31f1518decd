package extension

import (
	"time"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/plugin"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/token"
)

// Option configures the pullpay Forge extension.
type Option func(*Extension)

// WithStore sets the ledger store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithMover sets the token mover the engine settles through.
func WithMover(m token.Mover) Option {
	return func(e *Extension) {
		e.mover = m
	}
}

// WithEngineOption passes a pullpay.Option through to the underlying engine.
func WithEngineOption(opt pullpay.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a pullpay plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, pullpay.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes keeps the HTTP handler out of the DI container.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableScheduler prevents scheduled billing runs.
func WithDisableScheduler() Option {
	return func(e *Extension) { e.config.DisableScheduler = true }
}

// WithBasePath sets the URL prefix for pullpay routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithEscrow sets the escrow account.
func WithEscrow(account string) Option {
	return func(e *Extension) { e.config.Escrow = account }
}

// WithEvictAfter sets the consecutive failure count that evicts a subscription.
func WithEvictAfter(n int) Option {
	return func(e *Extension) { e.config.EvictAfter = n }
}

// WithMaxChargesPerRun sets how many missed periods a run may catch up.
func WithMaxChargesPerRun(n int) Option {
	return func(e *Extension) { e.config.MaxChargesPerRun = n }
}

// WithConcurrency sets how many products a run processes in parallel.
func WithConcurrency(n int) Option {
	return func(e *Extension) { e.config.Concurrency = n }
}

// WithProcessSchedule sets the cron spec for billing runs.
func WithProcessSchedule(spec string) Option {
	return func(e *Extension) { e.config.ProcessSchedule = spec }
}

// WithProcessTimeout bounds each scheduled run.
func WithProcessTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.ProcessTimeout = d }
}
