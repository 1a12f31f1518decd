package extension

import (
	"time"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/scheduler"
)

// Config holds the pullpay extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.pullpay" or "pullpay" keys).
type Config struct {
	// DisableRoutes prevents the HTTP handler from being provided to the
	// DI container.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableScheduler prevents the billing scheduler from starting.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler"`

	// BasePath is the URL prefix for pullpay routes (default: "/pullpay").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Escrow is the account that collects charges. When empty the token
	// mover's operator account is used.
	Escrow string `json:"escrow" mapstructure:"escrow" yaml:"escrow"`

	// EvictAfter is the number of consecutive failed charges that evicts a
	// subscription (default: 1).
	EvictAfter int `json:"evict_after" mapstructure:"evict_after" yaml:"evict_after"`

	// MaxChargesPerRun caps how many missed periods one run may catch up
	// per subscription (default: 1).
	MaxChargesPerRun int `json:"max_charges_per_run" mapstructure:"max_charges_per_run" yaml:"max_charges_per_run"`

	// Concurrency is how many products a scheduled run processes in
	// parallel (default: 4).
	Concurrency int `json:"concurrency" mapstructure:"concurrency" yaml:"concurrency"`

	// ProcessSchedule is a six-field cron spec for billing runs
	// (default: every minute).
	ProcessSchedule string `json:"process_schedule" mapstructure:"process_schedule" yaml:"process_schedule"`

	// ProcessTimeout bounds a single scheduled run (default: 5m).
	ProcessTimeout time.Duration `json:"process_timeout" mapstructure:"process_timeout" yaml:"process_timeout"`

	// MirrorSyncOnStart replays the charge journal into the payment mirror
	// on start.
	MirrorSyncOnStart bool `json:"mirror_sync_on_start" mapstructure:"mirror_sync_on_start" yaml:"mirror_sync_on_start"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:         "/pullpay",
		EvictAfter:       pullpay.DefaultEvictAfter,
		MaxChargesPerRun: pullpay.DefaultMaxChargesPerRun,
		Concurrency:      pullpay.DefaultConcurrency,
		ProcessSchedule:  scheduler.DefaultSpec,
		ProcessTimeout:   scheduler.DefaultTimeout,
	}
}
