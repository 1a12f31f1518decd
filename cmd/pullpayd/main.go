// Command pullpayd runs the billing engine as a standalone HTTP service with
// a scheduled billing loop.
//
// The ledger and token ledger are in-memory, so the daemon only runs with
// DEV_MODE set, which mounts a /dev faucet for funding wallets. Embed the
// engine through the Forge extension to run it against a grove database and
// a real token mover.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/api"
	audithook "github.com/xraph/pullpay/audit_hook"
	"github.com/xraph/pullpay/lock/redislock"
	"github.com/xraph/pullpay/metadata"
	"github.com/xraph/pullpay/metadata/s3resolver"
	"github.com/xraph/pullpay/observability"
	"github.com/xraph/pullpay/scheduler"
	"github.com/xraph/pullpay/store/memory"
	"github.com/xraph/pullpay/token/memtoken"
)

func main() {
	if err := run(); err != nil {
		slog.Error("pullpayd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []pullpay.Option{
		pullpay.WithLogger(logger),
		pullpay.WithEscrow(cfg.Escrow),
		pullpay.WithEvictAfter(cfg.EvictAfter),
		pullpay.WithMaxChargesPerRun(cfg.MaxChargesPerRun),
		pullpay.WithConcurrency(cfg.Concurrency),
	}

	resolver, err := newResolver(ctx, cfg)
	if err != nil {
		return err
	}
	opts = append(opts, pullpay.WithResolver(resolver))

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		opts = append(opts, pullpay.WithLocker(redislock.New(rdb)))
		logger.Info("using redis product locks", "addr", cfg.RedisAddr)
	}

	reg := prometheus.NewRegistry()
	if cfg.MetricsEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, pullpay.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))))
	}

	if cfg.AuditLog {
		opts = append(opts, pullpay.WithPlugin(audithook.New(audithook.RecorderFunc(
			func(_ context.Context, evt *audithook.AuditEvent) error {
				logger.Info("audit",
					"action", evt.Action,
					"resource", evt.Resource,
					"resource_id", evt.ResourceID,
					"outcome", evt.Outcome,
					"metadata", evt.Metadata,
				)
				return nil
			},
		), audithook.WithLogger(logger))))
	}

	tokens := newDevLedger(cfg, logger)
	engine := pullpay.New(memory.New(), tokens, opts...)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := engine.Stop(); err != nil {
			logger.Error("engine stop failed", "error", err)
		}
	}()

	sched, err := scheduler.New(engine, cfg.ProcessSchedule,
		scheduler.WithLogger(logger),
		scheduler.WithTimeout(cfg.ProcessTimeout),
	)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Mount("/", api.New(engine, api.WithLogger(logger), api.WithFaucet(tokens)))
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()

		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler stop timed out", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newDevLedger creates the in-memory token ledger and mints the configured
// seed balance to each seed account.
func newDevLedger(cfg *config, logger *slog.Logger) *memtoken.Ledger {
	tokens := memtoken.New(cfg.Escrow)
	for _, account := range cfg.DevSeedAccounts {
		tokens.Mint(cfg.DevSeedToken, account, cfg.DevSeedAmount)
		logger.Info("seeded dev wallet",
			"account", account,
			"token", cfg.DevSeedToken,
			"amount", cfg.DevSeedAmount.String(),
		)
	}
	return tokens
}

// newResolver routes ipfs references to a gateway fetcher and, when
// configured, s3 references to object storage. Plain http(s) references
// are only resolved with METADATA_ALLOW_HTTP.
func newResolver(ctx context.Context, cfg *config) (metadata.Resolver, error) {
	var httpOpts []metadata.HTTPOption
	if cfg.IPFSGateway != "" {
		httpOpts = append(httpOpts, metadata.WithGateway(cfg.IPFSGateway))
	}
	if cfg.MetadataHTTP {
		httpOpts = append(httpOpts, metadata.WithDirectURLs())
	}
	if cfg.MetadataPrivate {
		httpOpts = append(httpOpts, metadata.WithPrivateNetworks())
	}
	web := metadata.NewHTTPResolver(httpOpts...)

	mux := metadata.NewMux().Handle("ipfs", web)
	if cfg.MetadataHTTP {
		mux.Handle("https", web).Handle("http", web)
	}

	if cfg.MetadataS3Region != "" {
		s3r, err := s3resolver.New(ctx, s3resolver.Config{
			Region:      cfg.MetadataS3Region,
			EndpointURL: cfg.MetadataS3URL,
		})
		if err != nil {
			return nil, err
		}
		mux.Handle("s3", s3r)
	}

	return mux, nil
}
