// Package lock provides the keyed mutual exclusion the billing engine uses to
// serialize mutations of one product while letting different products
// proceed in parallel.
package lock

import (
	"context"
	"sync"
)

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker acquires exclusive locks by key. Lock blocks until the lock is held
// or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Local is an in-process Locker. Entries are reference counted and dropped
// when the last holder or waiter leaves, so the key space does not grow
// without bound.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Compile-time interface check.
var _ Locker = (*Local)(nil)

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := l.acquireRef(key)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-s.ch
			l.releaseRef(key, s)
		})
		return nil
	}, nil
}

// Len returns the number of keys currently held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *Local) acquireRef(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) releaseRef(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
