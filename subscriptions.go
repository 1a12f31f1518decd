package pullpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/types"
)

// ──────────────────────────────────────────────────
// Subscription Management
// ──────────────────────────────────────────────────

// Subscribe enrolls subscriber into the product. The first charge is due
// immediately. The subscriber must already have authorized the escrow
// account to pull at least one period's cost.
func (e *Engine) Subscribe(ctx context.Context, productID id.ProductID, subscriber, email string) (*subscription.Subscription, error) {
	if strings.TrimSpace(subscriber) == "" {
		return nil, ValidationError{Field: "subscriber", Message: "required"}
	}

	release, err := e.lockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	_, err = e.store.GetActiveSubscription(ctx, productID, subscriber)
	switch {
	case err == nil:
		return nil, ErrAlreadySubscribed
	case !errors.Is(err, ErrNotSubscribed):
		return nil, err
	}

	allowance, err := e.mover.Allowance(ctx, p.Token, subscriber, e.escrow)
	if err != nil {
		return nil, fmt.Errorf("pullpay: check allowance: %w", err)
	}
	if allowance.LessThan(p.Cost) {
		return nil, ErrInsufficientAuthorization
	}

	now := e.now()
	sub := &subscription.Subscription{
		Entity:       types.NewEntityAt(now),
		ID:           id.NewSubscriptionID(),
		ProductID:    productID,
		Subscriber:   subscriber,
		Email:        email,
		Status:       subscription.StatusPending,
		NextChargeAt: now,
	}
	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	e.logger.Info("subscribed",
		"product_id", productID,
		"subscription_id", sub.ID,
		"subscriber", subscriber,
	)

	e.plugins.EmitSubscribed(ctx, sub)
	return sub, nil
}

// Unsubscribe cancels the subscriber's billable subscription. No further
// charges are made; past charges stay attributable.
func (e *Engine) Unsubscribe(ctx context.Context, productID id.ProductID, subscriber string) (*subscription.Subscription, error) {
	release, err := e.lockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := e.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	sub, err := e.store.GetActiveSubscription(ctx, productID, subscriber)
	if err != nil {
		return nil, err
	}

	if err := e.store.CancelSubscription(ctx, sub.ID, e.now()); err != nil {
		return nil, err
	}

	sub, err = e.store.GetSubscription(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("unsubscribed",
		"product_id", productID,
		"subscription_id", sub.ID,
		"subscriber", subscriber,
	)

	e.plugins.EmitUnsubscribed(ctx, sub)
	return sub, nil
}

// GetSubscription returns the subscriber's billable subscription to the product.
func (e *Engine) GetSubscription(ctx context.Context, productID id.ProductID, subscriber string) (*subscription.Subscription, error) {
	return e.store.GetActiveSubscription(ctx, productID, subscriber)
}

// ListSubscriptions lists a product's subscriptions in enrollment order.
func (e *Engine) ListSubscriptions(ctx context.Context, productID id.ProductID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	if _, err := e.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return e.store.ListSubscriptions(ctx, productID, opts)
}
