package pullpay

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/lock"
	"github.com/xraph/pullpay/metadata"
	"github.com/xraph/pullpay/mirror/memory"
	"github.com/xraph/pullpay/payment"
	"github.com/xraph/pullpay/plugin"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/token"
)

// Defaults.
const (
	DefaultEvictAfter       = 1
	DefaultMaxChargesPerRun = 1
	DefaultConcurrency      = 4
)

// Engine is the billing engine: it owns the product and subscription
// lifecycle and the batch charge algorithm.
type Engine struct {
	store    store.Store
	mover    token.Mover
	mirror   payment.Mirror
	locker   lock.Locker
	resolver metadata.Resolver
	plugins  *plugin.Registry
	logger   *slog.Logger
	clock    func() time.Time

	unsettled *unsettled

	// Configuration
	escrow            string
	evictAfter        int
	maxChargesPerRun  int
	concurrency       int
	syncMirrorOnStart bool
	skipMigrate       bool
}

// New creates a new Engine over the ledger store s, settling through mover.
//
// If mover exposes an Operator() account (as memtoken.Ledger does) it is
// used as the escrow account unless WithEscrow overrides it.
func New(s store.Store, mover token.Mover, opts ...Option) *Engine {
	e := &Engine{
		store:            s,
		mover:            mover,
		mirror:           memory.New(),
		locker:           lock.NewLocal(),
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		clock:            time.Now,
		unsettled:        newUnsettled(),
		evictAfter:       DefaultEvictAfter,
		maxChargesPerRun: DefaultMaxChargesPerRun,
		concurrency:      DefaultConcurrency,
	}

	if op, ok := mover.(interface{ Operator() string }); ok {
		e.escrow = op.Operator()
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source. Times are truncated to whole seconds.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithMirror sets the payment mirror. The default is an in-memory mirror.
func WithMirror(m payment.Mirror) Option {
	return func(e *Engine) { e.mirror = m }
}

// WithLocker sets the per-product locker. The default is in-process.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithResolver sets the metadata resolver.
func WithResolver(r metadata.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithEscrow sets the account that collects charges and pays withdrawals.
// Subscribers authorize this account to pull from their wallets.
func WithEscrow(account string) Option {
	return func(e *Engine) { e.escrow = account }
}

// WithEvictAfter sets how many consecutive failed charges evict a
// subscription. Values below 1 are ignored.
func WithEvictAfter(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.evictAfter = n
		}
	}
}

// WithMaxChargesPerRun caps how many elapsed periods one processing run may
// charge per subscription. The default of 1 means a delayed run never
// catches up more than a single period.
func WithMaxChargesPerRun(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxChargesPerRun = n
		}
	}
}

// WithConcurrency sets how many products ProcessAll processes in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.concurrency = n
		}
	}
}

// WithMirrorSyncOnStart replays the charge journal into the mirror on Start.
// Use it with a mirror that does not survive restarts.
func WithMirrorSyncOnStart(enabled bool) Option {
	return func(e *Engine) { e.syncMirrorOnStart = enabled }
}

// WithoutMigrate leaves schema management to the operator: Start no longer
// migrates the store but still syncs the mirror and initializes plugins.
func WithoutMigrate() Option {
	return func(e *Engine) { e.skipMigrate = true }
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	if e.syncMirrorOnStart {
		n, err := e.SyncMirror(ctx)
		if err != nil {
			return err
		}
		e.logger.Info("payment mirror synced", "charges", n)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("pullpay started",
		"escrow", e.escrow,
		"evict_after", e.evictAfter,
		"max_charges_per_run", e.maxChargesPerRun,
		"concurrency", e.concurrency,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the underlying ledger store.
func (e *Engine) Store() store.Store { return e.store }

// Mirror returns the payment mirror.
func (e *Engine) Mirror() payment.Mirror { return e.mirror }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Escrow returns the escrow account.
func (e *Engine) Escrow() string { return e.escrow }

// Ping checks the ledger store.
func (e *Engine) Ping(ctx context.Context) error { return e.store.Ping(ctx) }

// now returns the engine clock in UTC at second precision, the resolution
// billing periods are expressed in.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Second)
}

// lockProduct acquires the product's exclusive lock. The returned release
// func logs rather than returns unlock errors.
func (e *Engine) lockProduct(ctx context.Context, productID id.ProductID) (func(), error) {
	unlock, err := e.locker.Lock(ctx, "product:"+productID.String())
	if err != nil {
		return nil, err
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("failed to release product lock",
				"product_id", productID,
				"error", err,
			)
		}
	}, nil
}
