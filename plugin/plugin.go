// Package plugin provides an extensible plugin system for pullpay.
// Plugins can hook into lifecycle events of products, subscriptions,
// charges and withdrawals to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/withdrawal"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Product hooks
// ──────────────────────────────────────────────────

// OnProductCreated is called after a product is registered.
type OnProductCreated interface {
	Plugin
	OnProductCreated(ctx context.Context, p *product.Product) error
}

// OnWithdrawn is called after an owner withdraws from a product balance.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, w *withdrawal.Withdrawal) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed is called after a subscriber enrolls.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, sub *subscription.Subscription) error
}

// OnUnsubscribed is called after a subscriber cancels.
type OnUnsubscribed interface {
	Plugin
	OnUnsubscribed(ctx context.Context, sub *subscription.Subscription) error
}

// OnEvicted is called when a subscription is evicted after failed charges.
type OnEvicted interface {
	Plugin
	OnEvicted(ctx context.Context, sub *subscription.Subscription, reason error) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnCharged is called after a charge is applied to the ledger.
type OnCharged interface {
	Plugin
	OnCharged(ctx context.Context, c *charge.Charge) error
}

// OnChargeFailed is called when a due subscription could not be charged.
type OnChargeFailed interface {
	Plugin
	OnChargeFailed(ctx context.Context, sub *subscription.Subscription, err error) error
}

// OnProcessCompleted is called when a processing batch for one product ends.
type OnProcessCompleted interface {
	Plugin
	OnProcessCompleted(ctx context.Context, productID id.ProductID, charged, failed, evicted int, elapsed time.Duration) error
}
