// Package audithook bridges pullpay lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/plugin"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/withdrawal"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnProductCreated   = (*Extension)(nil)
	_ plugin.OnWithdrawn        = (*Extension)(nil)
	_ plugin.OnSubscribed       = (*Extension)(nil)
	_ plugin.OnUnsubscribed     = (*Extension)(nil)
	_ plugin.OnEvicted          = (*Extension)(nil)
	_ plugin.OnCharged          = (*Extension)(nil)
	_ plugin.OnChargeFailed     = (*Extension)(nil)
	_ plugin.OnProcessCompleted = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges pullpay lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Product lifecycle hooks
// ──────────────────────────────────────────────────

// OnProductCreated implements plugin.OnProductCreated.
func (e *Extension) OnProductCreated(ctx context.Context, p *product.Product) error {
	return e.record(ctx, ActionProductCreated, SeverityInfo, OutcomeSuccess,
		ResourceProduct, p.ID.String(), CategoryBilling, nil,
		"owner", p.Owner,
		"token", p.Token,
		"cost", p.Cost.String(),
		"period_seconds", p.PeriodSeconds(),
	)
}

// OnWithdrawn implements plugin.OnWithdrawn.
func (e *Extension) OnWithdrawn(ctx context.Context, w *withdrawal.Withdrawal) error {
	return e.record(ctx, ActionWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, w.ID.String(), CategoryPayment, nil,
		"product_id", w.ProductID.String(),
		"owner", w.Owner,
		"amount", w.Amount.String(),
		"tx_ref", w.TxRef,
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscribed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"product_id", sub.ProductID.String(),
		"subscriber", sub.Subscriber,
	)
}

// OnUnsubscribed implements plugin.OnUnsubscribed.
func (e *Extension) OnUnsubscribed(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionUnsubscribed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"product_id", sub.ProductID.String(),
		"subscriber", sub.Subscriber,
	)
}

// OnEvicted implements plugin.OnEvicted.
func (e *Extension) OnEvicted(ctx context.Context, sub *subscription.Subscription, reason error) error {
	return e.record(ctx, ActionEvicted, SeverityWarning, OutcomeFailure,
		ResourceSubscription, sub.ID.String(), CategorySubscription, reason,
		"product_id", sub.ProductID.String(),
		"subscriber", sub.Subscriber,
		"failures", sub.Failures,
	)
}

// ──────────────────────────────────────────────────
// Charge lifecycle hooks
// ──────────────────────────────────────────────────

// OnCharged implements plugin.OnCharged.
func (e *Extension) OnCharged(ctx context.Context, c *charge.Charge) error {
	return e.record(ctx, ActionCharged, SeverityInfo, OutcomeSuccess,
		ResourceCharge, c.ID.String(), CategoryPayment, nil,
		"product_id", c.ProductID.String(),
		"subscriber", c.Subscriber,
		"amount", c.Amount.String(),
		"charged_at", c.ChargedAt,
		"tx_ref", c.TxRef,
	)
}

// OnChargeFailed implements plugin.OnChargeFailed.
func (e *Extension) OnChargeFailed(ctx context.Context, sub *subscription.Subscription, err error) error {
	return e.record(ctx, ActionChargeFailed, SeverityError, OutcomeFailure,
		ResourceSubscription, sub.ID.String(), CategoryPayment, err,
		"product_id", sub.ProductID.String(),
		"subscriber", sub.Subscriber,
		"next_charge_at", sub.NextChargeAt,
	)
}

// OnProcessCompleted implements plugin.OnProcessCompleted.
func (e *Extension) OnProcessCompleted(ctx context.Context, productID id.ProductID, charged, failed, evicted int, elapsed time.Duration) error {
	outcome := OutcomeSuccess
	if failed > 0 || evicted > 0 {
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionProcessCompleted, SeverityInfo, outcome,
		ResourceProduct, productID.String(), CategoryBilling, nil,
		"charged", charged,
		"failed", failed,
		"evicted", evicted,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
