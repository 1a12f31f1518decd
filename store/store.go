// Package store defines the Ledger Store: the authoritative state for
// products, subscriptions and the charge and withdrawal journals.
package store

import (
	"context"
	"time"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/withdrawal"
)

// Store is the unified storage interface for all pullpay ledger entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Each mutation is all-or-nothing. Mutations of one product are serialized
// by the engine's per-product lock, not by the store.
type Store interface {
	// Product methods
	CreateProduct(ctx context.Context, p *product.Product) error
	GetProduct(ctx context.Context, productID id.ProductID) (*product.Product, error)
	ListProducts(ctx context.Context, opts product.ListOpts) ([]*product.Product, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetActiveSubscription(ctx context.Context, productID id.ProductID, subscriber string) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, productID id.ProductID, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error
	RecordChargeFailure(ctx context.Context, subID id.SubscriptionID, failures int, evict bool, at time.Time) error

	// Charge methods
	ApplyCharge(ctx context.Context, c *charge.Charge) error
	ListCharges(ctx context.Context, productID id.ProductID, opts charge.ListOpts) ([]*charge.Charge, error)

	// Withdrawal methods
	ApplyWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error
	SettleWithdrawal(ctx context.Context, wID id.WithdrawalID, txRef string) error
	RevertWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error
	ListWithdrawals(ctx context.Context, productID id.ProductID) ([]*withdrawal.Withdrawal, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
