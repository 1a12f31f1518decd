package pullpay

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/payment"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/types"
)

// OutcomeStatus is what happened to one due subscription in a run.
type OutcomeStatus string

const (
	OutcomeCharged OutcomeStatus = "charged"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeEvicted OutcomeStatus = "evicted"
	// OutcomeSkipped means the subscription was due in the snapshot but had
	// been advanced or ended by the time it was processed.
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome reports one due subscription's result.
type Outcome struct {
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Subscriber     string            `json:"subscriber"`
	Status         OutcomeStatus     `json:"status"`
	Charges        int               `json:"charges"`
	Collected      types.Amount      `json:"collected"`
	NextChargeAt   time.Time         `json:"next_charge_at"`
	Error          string            `json:"error,omitempty"`
	ErrorKind      string            `json:"error_kind,omitempty"`

	applied []*charge.Charge
}

// ProcessResult summarizes one ProcessDue run over a product.
//
// Charged counts applied charges; with catch-up enabled one subscription may
// contribute several. Skipped counts billable subscriptions that were not
// yet due. Failed and Evicted count subscriptions.
type ProcessResult struct {
	RunID        id.RunID      `json:"run_id"`
	ProductID    id.ProductID  `json:"product_id"`
	At           time.Time     `json:"at"`
	Charged      int           `json:"charged"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Evicted      int           `json:"evicted"`
	Collected    types.Amount  `json:"collected"`
	MirrorErrors int           `json:"mirror_errors"`
	Canceled     bool          `json:"canceled"`
	Elapsed      time.Duration `json:"elapsed"`
	Outcomes     []*Outcome    `json:"outcomes"`
}

func (r *ProcessResult) add(o *Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Charged += o.Charges
	r.Collected = r.Collected.Add(o.Collected)
	switch o.Status {
	case OutcomeFailed:
		r.Failed++
	case OutcomeEvicted:
		r.Evicted++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Summary aggregates ProcessAll over every product.
type Summary struct {
	RunID     id.RunID         `json:"run_id"`
	At        time.Time        `json:"at"`
	Products  []*ProcessResult `json:"products"`
	Charged   int              `json:"charged"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Evicted   int              `json:"evicted"`
	Collected types.Amount     `json:"collected"`
}

// ProcessDue charges every billable subscription of the product whose next
// charge is due. One subscriber's failure never aborts the batch.
//
// Subscriptions are taken in enrollment order from a snapshot; each is then
// re-read and charged under the product lock, so overlapping runs never
// charge the same slot twice. Running again at the same instant is a no-op.
//
// If ctx is canceled the run stops between subscribers and returns the
// partial result together with ctx.Err(). Applied charges are final.
func (e *Engine) ProcessDue(ctx context.Context, productID id.ProductID) (*ProcessResult, error) {
	return e.processProduct(ctx, productID, id.NewRunID(), e.now())
}

func (e *Engine) processProduct(ctx context.Context, productID id.ProductID, runID id.RunID, now time.Time) (*ProcessResult, error) {
	start := time.Now()

	p, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	res := &ProcessResult{
		RunID:     runID,
		ProductID: productID,
		At:        now,
		Outcomes:  make([]*Outcome, 0),
	}

	for _, o := range e.settleParked(ctx, p, runID, now) {
		res.MirrorErrors += e.publish(ctx, o)
		res.add(o)
	}

	subs, err := e.snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			res.Canceled = true
			break
		}
		if !sub.Due(now) {
			res.Skipped++
			continue
		}
		// Funds for this slot are already in escrow.
		if e.unsettled.holds(sub.ID) {
			continue
		}

		o := e.processSubscription(ctx, p, sub.ID, runID, now)
		res.MirrorErrors += e.publish(ctx, o)
		res.add(o)
	}

	res.Elapsed = time.Since(start)

	e.logger.Info("process due completed",
		"run_id", runID,
		"product_id", productID,
		"charged", res.Charged,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"evicted", res.Evicted,
		"collected", res.Collected.String(),
		"mirror_errors", res.MirrorErrors,
		"canceled", res.Canceled,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)

	e.plugins.EmitProcessCompleted(ctx, productID, res.Charged, res.Failed, res.Evicted, res.Elapsed)

	if res.Canceled {
		return res, ctx.Err()
	}
	return res, nil
}

func (e *Engine) snapshot(ctx context.Context, productID id.ProductID) ([]*subscription.Subscription, error) {
	release, err := e.lockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer release()

	return e.store.ListSubscriptions(ctx, productID, subscription.ListOpts{BillableOnly: true})
}

// processSubscription charges one subscription for up to maxChargesPerRun
// elapsed periods. The transfer and the ledger update for each period happen
// inside one critical section on the product.
func (e *Engine) processSubscription(ctx context.Context, p *product.Product, subID id.SubscriptionID, runID id.RunID, now time.Time) *Outcome {
	o := &Outcome{SubscriptionID: subID, Status: OutcomeSkipped}

	release, err := e.lockProduct(ctx, p.ID)
	if err != nil {
		o.fail(OutcomeFailed, err)
		return o
	}
	defer release()

	for o.Charges < e.maxChargesPerRun {
		sub, err := e.store.GetSubscription(ctx, subID)
		if err != nil {
			o.fail(OutcomeFailed, err)
			return o
		}
		o.Subscriber = sub.Subscriber
		o.NextChargeAt = sub.NextChargeAt

		if !sub.Due(now) {
			return o
		}

		rcpt, err := e.mover.Transfer(ctx, p.Token, sub.Subscriber, e.escrow, p.Cost)
		if err != nil {
			e.chargeFailed(ctx, o, sub, err, now)
			return o
		}

		c := &charge.Charge{
			ID:             id.NewChargeID(),
			ProductID:      p.ID,
			SubscriptionID: sub.ID,
			Subscriber:     sub.Subscriber,
			Amount:         p.Cost,
			Token:          p.Token,
			ChargedAt:      sub.NextChargeAt,
			Email:          sub.Email,
			TxRef:          rcpt.Ref,
			RunID:          runID,
			RecordedAt:     now,
		}
		if err := e.store.ApplyCharge(ctx, c); err != nil {
			e.chargeNotApplied(ctx, o, c, err)
			return o
		}

		o.Status = OutcomeCharged
		o.Charges++
		o.Collected = o.Collected.Add(c.Amount)
		o.NextChargeAt = c.ChargedAt.Add(p.Period)
		o.applied = append(o.applied, c)

		e.logger.Debug("subscription charged",
			"product_id", p.ID,
			"subscription_id", sub.ID,
			"charged_at", c.ChargedAt,
			"tx_ref", rcpt.Ref,
		)
	}

	return o
}

// chargeFailed records a failed transfer. Payment failures count toward
// eviction; anything else leaves the failure counter untouched so the same
// slot is retried on the next run.
func (e *Engine) chargeFailed(ctx context.Context, o *Outcome, sub *subscription.Subscription, cause error, now time.Time) {
	if !IsPaymentFailure(cause) {
		o.fail(OutcomeFailed, cause)
		e.logger.Warn("charge attempt failed",
			"product_id", sub.ProductID,
			"subscription_id", sub.ID,
			"error", cause,
		)
		e.plugins.EmitChargeFailed(ctx, sub, cause)
		return
	}

	failures := sub.Failures + 1
	evict := failures >= e.evictAfter
	if err := e.store.RecordChargeFailure(ctx, sub.ID, failures, evict, now); err != nil {
		e.logger.Error("failed to record charge failure",
			"subscription_id", sub.ID,
			"error", err,
		)
		o.fail(OutcomeFailed, errors.Join(cause, err))
		return
	}

	sub.Failures = failures
	e.plugins.EmitChargeFailed(ctx, sub, cause)

	if evict {
		sub.Status = subscription.StatusEvicted
		o.fail(OutcomeEvicted, cause)
		e.logger.Info("subscription evicted",
			"product_id", sub.ProductID,
			"subscription_id", sub.ID,
			"failures", failures,
			"reason", cause,
		)
		e.plugins.EmitEvicted(ctx, sub, cause)
		return
	}

	o.fail(OutcomeFailed, cause)
	e.logger.Debug("charge failed, will retry",
		"product_id", sub.ProductID,
		"subscription_id", sub.ID,
		"failures", failures,
		"reason", cause,
	)
}

func (o *Outcome) fail(status OutcomeStatus, err error) {
	o.Status = status
	o.Error = err.Error()
	o.ErrorKind = Kind(err)
}

// publish appends the outcome's applied charges to the payment mirror and
// emits charge hooks, outside the product lock. It returns the number of
// mirror appends that failed; those are repaired by SyncMirror.
func (e *Engine) publish(ctx context.Context, o *Outcome) int {
	failed := 0
	for _, c := range o.applied {
		if err := e.mirror.Append(ctx, payment.FromCharge(c)); err != nil {
			failed++
			e.logger.Warn("payment mirror append failed",
				"product_id", c.ProductID,
				"charge_id", c.ID,
				"error", err,
			)
		}
		e.plugins.EmitCharged(ctx, c)
	}
	return failed
}

// ProcessAll runs ProcessDue for every product, several products in
// parallel. Product-level errors are collected into a MultiError; the other
// products are still processed.
func (e *Engine) ProcessAll(ctx context.Context) (*Summary, error) {
	runID := id.NewRunID()
	now := e.now()

	products, err := e.allProducts(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*ProcessResult, len(products))
	var (
		mu   sync.Mutex
		errs MultiError
		g    errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for i, p := range products {
		g.Go(func() error {
			res, err := e.processProduct(ctx, p.ID, runID, now)
			results[i] = res
			if err != nil {
				mu.Lock()
				errs.Add(err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers report through errs

	sum := &Summary{RunID: runID, At: now, Products: make([]*ProcessResult, 0, len(results))}
	for _, res := range results {
		if res == nil {
			continue
		}
		sum.Products = append(sum.Products, res)
		sum.Charged += res.Charged
		sum.Skipped += res.Skipped
		sum.Failed += res.Failed
		sum.Evicted += res.Evicted
		sum.Collected = sum.Collected.Add(res.Collected)
	}

	if errs.HasErrors() {
		return sum, errs
	}
	return sum, nil
}

const productPageSize = 500

func (e *Engine) allProducts(ctx context.Context) ([]*product.Product, error) {
	var all []*product.Product
	for offset := 0; ; offset += productPageSize {
		page, err := e.store.ListProducts(ctx, product.ListOpts{Limit: productPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < productPageSize {
			return all, nil
		}
	}
}
