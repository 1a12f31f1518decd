// Package memory provides an in-memory implementation of store.Store for
// tests and single-process development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/types"
	"github.com/xraph/pullpay/withdrawal"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Product storage
	products      map[id.ProductID]*product.Product
	nextProductID id.ProductID

	// Subscription storage
	subscriptions map[string]*subscription.Subscription
	nextSeq       int64

	// Journals, in append order per product
	charges     map[id.ProductID][]*charge.Charge
	withdrawals map[id.ProductID][]*withdrawal.Withdrawal

	closed bool
}

func New() *Store {
	return &Store{
		products:      make(map[id.ProductID]*product.Product),
		nextProductID: 1,
		subscriptions: make(map[string]*subscription.Subscription),
		charges:       make(map[id.ProductID][]*charge.Charge),
		withdrawals:   make(map[id.ProductID][]*withdrawal.Withdrawal),
	}
}

// Product Store implementation
func (s *Store) CreateProduct(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.nextProductID
	s.nextProductID++
	p.Balance = types.Amount{}

	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *Store) GetProduct(_ context.Context, productID id.ProductID) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, pullpay.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProducts(_ context.Context, opts product.ListOpts) ([]*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*product.Product, 0, len(s.products))
	for _, p := range s.products {
		if opts.Owner == "" || p.Owner == opts.Owner {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return page(result, opts.Offset, opts.Limit), nil
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[sub.ProductID]; !ok {
		return pullpay.ErrProductNotFound
	}
	if s.findActive(sub.ProductID, sub.Subscriber) != nil {
		return pullpay.ErrAlreadySubscribed
	}

	s.nextSeq++
	sub.Seq = s.nextSeq

	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return nil, pullpay.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *Store) GetActiveSubscription(_ context.Context, productID id.ProductID, subscriber string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub := s.findActive(productID, subscriber)
	if sub == nil {
		return nil, pullpay.ErrNotSubscribed
	}
	cp := *sub
	return &cp, nil
}

func (s *Store) ListSubscriptions(_ context.Context, productID id.ProductID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.ProductID == productID && opts.Match(sub) {
			cp := *sub
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CancelSubscription(_ context.Context, subID id.SubscriptionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return pullpay.ErrSubscriptionNotFound
	}
	if !sub.Billable() {
		return pullpay.ErrNotSubscribed
	}
	at = at.UTC()
	sub.Status = subscription.StatusCanceled
	sub.EndedAt = &at
	sub.Touch(at)
	return nil
}

func (s *Store) RecordChargeFailure(_ context.Context, subID id.SubscriptionID, failures int, evict bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return pullpay.ErrSubscriptionNotFound
	}
	if !sub.Billable() {
		return pullpay.ErrChargeConflict
	}
	at = at.UTC()
	sub.Failures = failures
	if evict {
		sub.Status = subscription.StatusEvicted
		sub.EndedAt = &at
	}
	sub.Touch(at)
	return nil
}

// Charge Store implementation
func (s *Store) ApplyCharge(_ context.Context, c *charge.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[c.ProductID]
	if !ok {
		return pullpay.ErrProductNotFound
	}
	sub, ok := s.subscriptions[c.SubscriptionID.String()]
	if !ok {
		return pullpay.ErrSubscriptionNotFound
	}
	if sub.ProductID != c.ProductID || !sub.Billable() || !sub.NextChargeAt.Equal(c.ChargedAt) {
		return pullpay.ErrChargeConflict
	}

	cp := *c
	s.charges[c.ProductID] = append(s.charges[c.ProductID], &cp)
	p.Balance = p.Balance.Add(c.Amount)

	sub.NextChargeAt = sub.NextChargeAt.Add(p.Period)
	sub.Failures = 0
	sub.Status = subscription.StatusActive
	sub.Touch(c.RecordedAt)
	return nil
}

func (s *Store) ListCharges(_ context.Context, productID id.ProductID, opts charge.ListOpts) ([]*charge.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*charge.Charge, 0, len(s.charges[productID]))
	for _, c := range s.charges[productID] {
		if opts.Subscriber != "" && c.Subscriber != opts.Subscriber {
			continue
		}
		if !opts.Since.IsZero() && c.ChargedAt.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && !c.ChargedAt.Before(opts.Until) {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.ChargedAt.Equal(b.ChargedAt) {
			return a.ChargedAt.Before(b.ChargedAt)
		}
		if a.Subscriber != b.Subscriber {
			return a.Subscriber < b.Subscriber
		}
		return a.ID.String() < b.ID.String()
	})

	return page(result, opts.Offset, opts.Limit), nil
}

// Withdrawal Store implementation
func (s *Store) ApplyWithdrawal(_ context.Context, w *withdrawal.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[w.ProductID]
	if !ok {
		return pullpay.ErrProductNotFound
	}
	if p.Balance.LessThan(w.Amount) {
		return pullpay.ErrInsufficientBalance
	}

	cp := *w
	s.withdrawals[w.ProductID] = append(s.withdrawals[w.ProductID], &cp)
	p.Balance = p.Balance.Sub(w.Amount)
	p.Touch(w.CreatedAt)
	return nil
}

func (s *Store) SettleWithdrawal(_ context.Context, wID id.WithdrawalID, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, list := range s.withdrawals {
		for _, w := range list {
			if w.ID == wID {
				w.TxRef = txRef
				return nil
			}
		}
	}
	return pullpay.ErrWithdrawalNotFound
}

func (s *Store) RevertWithdrawal(_ context.Context, w *withdrawal.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.withdrawals[w.ProductID]
	for i, existing := range list {
		if existing.ID != w.ID {
			continue
		}
		s.withdrawals[w.ProductID] = append(list[:i:i], list[i+1:]...)
		if p, ok := s.products[w.ProductID]; ok {
			p.Balance = p.Balance.Add(existing.Amount)
		}
		return nil
	}
	return pullpay.ErrWithdrawalNotFound
}

func (s *Store) ListWithdrawals(_ context.Context, productID id.ProductID) ([]*withdrawal.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*withdrawal.Withdrawal, 0, len(s.withdrawals[productID]))
	for _, w := range s.withdrawals[productID] {
		cp := *w
		result = append(result, &cp)
	}
	return result, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return pullpay.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// findActive returns the billable subscription for the pair. Caller holds mu.
func (s *Store) findActive(productID id.ProductID, subscriber string) *subscription.Subscription {
	for _, sub := range s.subscriptions {
		if sub.ProductID == productID && sub.Subscriber == subscriber && sub.Billable() {
			return sub
		}
	}
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
