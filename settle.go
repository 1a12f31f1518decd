package pullpay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/product"
)

// unsettled holds charges whose transfer went through but whose ledger
// update failed and could not be refunded. Until resolved, the subscriber's
// funds sit in escrow and the slot must not be pulled again.
type unsettled struct {
	mu      sync.Mutex
	charges map[string]*charge.Charge // charge id -> charge
}

func newUnsettled() *unsettled {
	return &unsettled{charges: make(map[string]*charge.Charge)}
}

func (u *unsettled) park(c *charge.Charge) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.charges[c.ID.String()] = c
}

// take removes and returns the product's parked charges in slot order.
func (u *unsettled) take(productID id.ProductID) []*charge.Charge {
	u.mu.Lock()
	defer u.mu.Unlock()

	var out []*charge.Charge
	for key, c := range u.charges {
		if c.ProductID == productID {
			out = append(out, c)
			delete(u.charges, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChargedAt.Before(out[j].ChargedAt) })
	return out
}

func (u *unsettled) holds(subID id.SubscriptionID) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, c := range u.charges {
		if c.SubscriptionID == subID {
			return true
		}
	}
	return false
}

func (u *unsettled) list() []*charge.Charge {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]*charge.Charge, 0, len(u.charges))
	for _, c := range u.charges {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChargedAt.Before(out[j].ChargedAt) })
	return out
}

// Unsettled returns charges that were collected from subscribers but are
// neither in the ledger nor refunded. Each processing run of the product
// retries them before pulling anything new.
func (e *Engine) Unsettled() []*charge.Charge { return e.unsettled.list() }

// chargeNotApplied handles a ledger update that failed after the transfer
// succeeded. The funds are returned to the subscriber; if that fails too the
// charge is parked so the slot is not pulled a second time.
func (e *Engine) chargeNotApplied(ctx context.Context, o *Outcome, c *charge.Charge, cause error) {
	refundErr := e.refund(ctx, c)
	if refundErr == nil {
		e.logger.Warn("charge refunded after ledger update failed",
			"product_id", c.ProductID,
			"subscription_id", c.SubscriptionID,
			"tx_ref", c.TxRef,
			"error", cause,
		)
		o.fail(OutcomeFailed, cause)
		return
	}

	e.unsettled.park(c)
	e.logger.Error("charge collected but neither applied nor refunded",
		"product_id", c.ProductID,
		"subscription_id", c.SubscriptionID,
		"tx_ref", c.TxRef,
		"error", cause,
		"refund_error", refundErr,
	)
	o.fail(OutcomeFailed, errors.Join(cause, refundErr))
}

func (e *Engine) refund(ctx context.Context, c *charge.Charge) error {
	_, err := e.mover.Transfer(context.WithoutCancel(ctx), c.Token, e.escrow, c.Subscriber, c.Amount)
	return err
}

// settleParked retries the product's parked charges. A charge whose slot is
// still the subscription's next one is applied without a new transfer; any
// other is refunded. Charges that fail again stay parked.
func (e *Engine) settleParked(ctx context.Context, p *product.Product, runID id.RunID, now time.Time) []*Outcome {
	parked := e.unsettled.take(p.ID)
	if len(parked) == 0 {
		return nil
	}

	release, err := e.lockProduct(ctx, p.ID)
	if err != nil {
		for _, c := range parked {
			e.unsettled.park(c)
		}
		return nil
	}
	defer release()

	outcomes := make([]*Outcome, 0, len(parked))
	for _, c := range parked {
		o := &Outcome{SubscriptionID: c.SubscriptionID, Subscriber: c.Subscriber, Status: OutcomeSkipped}
		outcomes = append(outcomes, o)

		sub, err := e.store.GetSubscription(ctx, c.SubscriptionID)
		if err != nil {
			e.unsettled.park(c)
			o.fail(OutcomeFailed, err)
			continue
		}
		o.NextChargeAt = sub.NextChargeAt

		if sub.Billable() && sub.NextChargeAt.Equal(c.ChargedAt) {
			c.RunID = runID
			c.RecordedAt = now
			err := e.store.ApplyCharge(ctx, c)
			if err == nil {
				o.Status = OutcomeCharged
				o.Charges = 1
				o.Collected = c.Amount
				o.NextChargeAt = c.ChargedAt.Add(p.Period)
				o.applied = append(o.applied, c)
				e.logger.Info("parked charge applied",
					"product_id", p.ID,
					"subscription_id", c.SubscriptionID,
					"charged_at", c.ChargedAt,
				)
				continue
			}
			if !errors.Is(err, ErrChargeConflict) {
				e.unsettled.park(c)
				o.fail(OutcomeFailed, err)
				continue
			}
		}

		if err := e.refund(ctx, c); err != nil {
			e.unsettled.park(c)
			o.fail(OutcomeFailed, err)
			continue
		}
		e.logger.Info("parked charge refunded",
			"product_id", p.ID,
			"subscription_id", c.SubscriptionID,
			"charged_at", c.ChargedAt,
		)
	}
	return outcomes
}
