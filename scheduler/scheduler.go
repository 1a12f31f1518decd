// Package scheduler triggers billing runs on a cron schedule.
//
// Nothing in the engine bills on its own: a product is only charged when
// something calls ProcessDue or ProcessAll. A Scheduler is that something
// for long-running deployments. Overlapping ticks are skipped, not queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/pullpay"
)

// DefaultSpec runs a billing pass at the top of every minute.
const DefaultSpec = "0 * * * * *"

// DefaultTimeout bounds a single run.
const DefaultTimeout = 5 * time.Minute

// Processor runs a billing pass over every product.
type Processor interface {
	ProcessAll(ctx context.Context) (*pullpay.Summary, error)
}

// Scheduler invokes a Processor on a six-field (seconds first) cron spec.
type Scheduler struct {
	proc    Processor
	spec    string
	timeout time.Duration
	logger  *slog.Logger
	onRun   func(*pullpay.Summary, error)

	cron  *cron.Cron
	entry cron.EntryID
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRunHook is called after every run with its summary and error.
func WithRunHook(fn func(*pullpay.Summary, error)) Option {
	return func(s *Scheduler) { s.onRun = fn }
}

// New validates spec and returns a stopped Scheduler. An empty spec uses
// DefaultSpec. Descriptors such as "@every 30s" are accepted.
func New(proc Processor, spec string, opts ...Option) (*Scheduler, error) {
	if proc == nil {
		return nil, errors.New("pullpay/scheduler: nil processor")
	}
	if spec == "" {
		spec = DefaultSpec
	}

	s := &Scheduler{
		proc:    proc,
		spec:    spec,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	entry, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("pullpay/scheduler: invalid spec %q: %w", spec, err)
	}
	s.entry = entry

	return s, nil
}

// Spec returns the cron spec.
func (s *Scheduler) Spec() string { return s.spec }

// Next returns the next scheduled run, or the zero time if stopped.
func (s *Scheduler) Next() time.Time { return s.cron.Entry(s.entry).Next }

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("billing scheduler started", "spec", s.spec, "next", s.Next())
}

// Stop stops scheduling and waits for a running pass to finish or for ctx
// to end, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("billing scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single billing pass immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (*pullpay.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	sum, err := s.proc.ProcessAll(ctx)

	switch {
	case err != nil:
		s.logger.Error("billing run failed", "elapsed", time.Since(start), "error", err)
	case sum != nil:
		s.logger.Info("billing run completed",
			"run_id", sum.RunID,
			"products", len(sum.Products),
			"charged", sum.Charged,
			"failed", sum.Failed,
			"evicted", sum.Evicted,
			"collected", sum.Collected,
			"elapsed", time.Since(start),
		)
	}

	if s.onRun != nil {
		s.onRun(sum, err)
	}
	return sum, err
}

func (s *Scheduler) tick() {
	_, _ = s.RunOnce(context.Background()) //nolint:errcheck // logged in RunOnce
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
