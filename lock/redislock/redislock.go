// Package redislock implements lock.Locker with Redis (Redlock via redsync)
// so that several engine instances can share one ledger store.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/pullpay/lock"
)

// Defaults sized for one subscriber's transfer plus ledger update.
const (
	DefaultExpiry     = 30 * time.Second
	DefaultTries      = 64
	DefaultRetryDelay = 50 * time.Millisecond
	DefaultPrefix     = "pullpay:lock:"
)

// Compile-time interface check.
var _ lock.Locker = (*Locker)(nil)

// Locker hands out redsync mutexes keyed by product.
type Locker struct {
	rs         *redsync.Redsync
	prefix     string
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithExpiry sets how long a lock survives a crashed holder.
func WithExpiry(d time.Duration) Option { return func(l *Locker) { l.expiry = d } }

// WithTries sets how many acquisition attempts are made before giving up.
func WithTries(n int) Option { return func(l *Locker) { l.tries = n } }

// WithRetryDelay sets the pause between acquisition attempts.
func WithRetryDelay(d time.Duration) Option { return func(l *Locker) { l.retryDelay = d } }

// WithPrefix sets the Redis key prefix.
func WithPrefix(p string) Option { return func(l *Locker) { l.prefix = p } }

// New creates a Locker backed by client.
func New(client *redis.Client, opts ...Option) *Locker {
	l := &Locker{
		rs:         redsync.New(goredis.NewPool(client)),
		prefix:     DefaultPrefix,
		expiry:     DefaultExpiry,
		tries:      DefaultTries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements lock.Locker.
func (l *Locker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	mutex := l.rs.NewMutex(
		l.prefix+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(l.retryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("redislock: acquire %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			return fmt.Errorf("redislock: release %s: %w", key, err)
		}
		return nil
	}, nil
}
