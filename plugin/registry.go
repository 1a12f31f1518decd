package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/withdrawal"
)

// DefaultHookTimeout bounds a single plugin call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so dispatch does no type assertions.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onProductCreated   []OnProductCreated
	onWithdrawn        []OnWithdrawn
	onSubscribed       []OnSubscribed
	onUnsubscribed     []OnUnsubscribed
	onEvicted          []OnEvicted
	onCharged          []OnCharged
	onChargeFailed     []OnChargeFailed
	onProcessCompleted []OnProcessCompleted
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnProductCreated); ok {
		r.onProductCreated = append(r.onProductCreated, v)
	}
	if v, ok := p.(OnWithdrawn); ok {
		r.onWithdrawn = append(r.onWithdrawn, v)
	}
	if v, ok := p.(OnSubscribed); ok {
		r.onSubscribed = append(r.onSubscribed, v)
	}
	if v, ok := p.(OnUnsubscribed); ok {
		r.onUnsubscribed = append(r.onUnsubscribed, v)
	}
	if v, ok := p.(OnEvicted); ok {
		r.onEvicted = append(r.onEvicted, v)
	}
	if v, ok := p.(OnCharged); ok {
		r.onCharged = append(r.onCharged, v)
	}
	if v, ok := p.(OnChargeFailed); ok {
		r.onChargeFailed = append(r.onChargeFailed, v)
	}
	if v, ok := p.(OnProcessCompleted); ok {
		r.onProcessCompleted = append(r.onProcessCompleted, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	typ  reflect.Type
	name string
}{
	{reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit"},
	{reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown"},
	{reflect.TypeOf((*OnProductCreated)(nil)).Elem(), "OnProductCreated"},
	{reflect.TypeOf((*OnWithdrawn)(nil)).Elem(), "OnWithdrawn"},
	{reflect.TypeOf((*OnSubscribed)(nil)).Elem(), "OnSubscribed"},
	{reflect.TypeOf((*OnUnsubscribed)(nil)).Elem(), "OnUnsubscribed"},
	{reflect.TypeOf((*OnEvicted)(nil)).Elem(), "OnEvicted"},
	{reflect.TypeOf((*OnCharged)(nil)).Elem(), "OnCharged"},
	{reflect.TypeOf((*OnChargeFailed)(nil)).Elem(), "OnChargeFailed"},
	{reflect.TypeOf((*OnProcessCompleted)(nil)).Elem(), "OnProcessCompleted"},
}

// implementedInterfaces returns the hook interfaces implemented by p.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnInit", p.Name(), func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnShutdown", p.Name(), func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitProductCreated emits a product created event.
func (r *Registry) EmitProductCreated(ctx context.Context, prod *product.Product) {
	r.mu.RLock()
	plugins := r.onProductCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnProductCreated", p.Name(), func() error {
			return p.OnProductCreated(ctx, prod)
		})
	}
}

// EmitWithdrawn emits a withdrawal event.
func (r *Registry) EmitWithdrawn(ctx context.Context, w *withdrawal.Withdrawal) {
	r.mu.RLock()
	plugins := r.onWithdrawn
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnWithdrawn", p.Name(), func() error {
			return p.OnWithdrawn(ctx, w)
		})
	}
}

// EmitSubscribed emits a subscription created event.
func (r *Registry) EmitSubscribed(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscribed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnSubscribed", p.Name(), func() error {
			return p.OnSubscribed(ctx, sub)
		})
	}
}

// EmitUnsubscribed emits a subscription canceled event.
func (r *Registry) EmitUnsubscribed(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onUnsubscribed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnUnsubscribed", p.Name(), func() error {
			return p.OnUnsubscribed(ctx, sub)
		})
	}
}

// EmitEvicted emits a subscription evicted event.
func (r *Registry) EmitEvicted(ctx context.Context, sub *subscription.Subscription, reason error) {
	r.mu.RLock()
	plugins := r.onEvicted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnEvicted", p.Name(), func() error {
			return p.OnEvicted(ctx, sub, reason)
		})
	}
}

// EmitCharged emits a charge applied event.
func (r *Registry) EmitCharged(ctx context.Context, c *charge.Charge) {
	r.mu.RLock()
	plugins := r.onCharged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnCharged", p.Name(), func() error {
			return p.OnCharged(ctx, c)
		})
	}
}

// EmitChargeFailed emits a charge failure event.
func (r *Registry) EmitChargeFailed(ctx context.Context, sub *subscription.Subscription, chargeErr error) {
	r.mu.RLock()
	plugins := r.onChargeFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnChargeFailed", p.Name(), func() error {
			return p.OnChargeFailed(ctx, sub, chargeErr)
		})
	}
}

// EmitProcessCompleted emits a batch completed event.
func (r *Registry) EmitProcessCompleted(ctx context.Context, productID id.ProductID, charged, failed, evicted int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onProcessCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnProcessCompleted", p.Name(), func() error {
			return p.OnProcessCompleted(ctx, productID, charged, failed, evicted, elapsed)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, hook, pluginName string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
