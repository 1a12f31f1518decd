// Package observability provides a metrics extension for pullpay that records
// lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/plugin"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/withdrawal"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnProductCreated   = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn        = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed       = (*MetricsExtension)(nil)
	_ plugin.OnUnsubscribed     = (*MetricsExtension)(nil)
	_ plugin.OnEvicted          = (*MetricsExtension)(nil)
	_ plugin.OnCharged          = (*MetricsExtension)(nil)
	_ plugin.OnChargeFailed     = (*MetricsExtension)(nil)
	_ plugin.OnProcessCompleted = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a pullpay plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Product metrics
	ProductCreated Counter
	Withdrawals    Counter

	// Subscription metrics
	Subscribed   Counter
	Unsubscribed Counter
	Evicted      Counter

	// Charge metrics
	ChargesApplied Counter
	ChargesFailed  Counter

	// Run metrics
	ProcessRuns    Counter
	ProcessLatency Histogram
	RunCharged     Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		ProductCreated: factory.Counter("pullpay.product.created"),
		Withdrawals:    factory.Counter("pullpay.product.withdrawals"),

		Subscribed:   factory.Counter("pullpay.subscription.created"),
		Unsubscribed: factory.Counter("pullpay.subscription.canceled"),
		Evicted:      factory.Counter("pullpay.subscription.evicted"),

		ChargesApplied: factory.Counter("pullpay.charge.applied"),
		ChargesFailed:  factory.Counter("pullpay.charge.failed"),

		ProcessRuns:    factory.Counter("pullpay.process.runs"),
		ProcessLatency: factory.Histogram("pullpay.process.latency_ms"),
		RunCharged:     factory.Histogram("pullpay.process.charged"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Product lifecycle hooks
// ──────────────────────────────────────────────────

// OnProductCreated implements plugin.OnProductCreated.
func (m *MetricsExtension) OnProductCreated(_ context.Context, _ *product.Product) error {
	m.ProductCreated.Inc()
	return nil
}

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, _ *withdrawal.Withdrawal) error {
	m.Withdrawals.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, _ *subscription.Subscription) error {
	m.Subscribed.Inc()
	return nil
}

// OnUnsubscribed implements plugin.OnUnsubscribed.
func (m *MetricsExtension) OnUnsubscribed(_ context.Context, _ *subscription.Subscription) error {
	m.Unsubscribed.Inc()
	return nil
}

// OnEvicted implements plugin.OnEvicted.
func (m *MetricsExtension) OnEvicted(_ context.Context, _ *subscription.Subscription, _ error) error {
	m.Evicted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Charge lifecycle hooks
// ──────────────────────────────────────────────────

// OnCharged implements plugin.OnCharged.
func (m *MetricsExtension) OnCharged(_ context.Context, _ *charge.Charge) error {
	m.ChargesApplied.Inc()
	return nil
}

// OnChargeFailed implements plugin.OnChargeFailed.
func (m *MetricsExtension) OnChargeFailed(_ context.Context, _ *subscription.Subscription, _ error) error {
	m.ChargesFailed.Inc()
	return nil
}

// OnProcessCompleted implements plugin.OnProcessCompleted.
func (m *MetricsExtension) OnProcessCompleted(_ context.Context, _ id.ProductID, charged, _, _ int, elapsed time.Duration) error {
	m.ProcessRuns.Inc()
	m.ProcessLatency.Observe(float64(elapsed.Milliseconds()))
	m.RunCharged.Observe(float64(charged))
	return nil
}
