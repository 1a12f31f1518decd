package pullpay

import (
	"context"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/payment"
)

// ──────────────────────────────────────────────────
// Payment history
// ──────────────────────────────────────────────────

// QueryPayments returns the product's payment history from the mirror,
// ordered by charge time. The mirror may briefly lag the ledger.
func (e *Engine) QueryPayments(ctx context.Context, productID id.ProductID, opts payment.QueryOpts) ([]*payment.Record, error) {
	if _, err := e.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return e.mirror.QueryByProduct(ctx, productID, opts)
}

// ListCharges returns the authoritative charge journal of a product.
func (e *Engine) ListCharges(ctx context.Context, productID id.ProductID, opts charge.ListOpts) ([]*charge.Charge, error) {
	if _, err := e.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return e.store.ListCharges(ctx, productID, opts)
}

// RebuildMirror discards the product's mirrored history and replays it from
// the charge journal. It returns the number of records written.
func (e *Engine) RebuildMirror(ctx context.Context, productID id.ProductID) (int, error) {
	release, err := e.lockProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	defer release()

	if _, err := e.store.GetProduct(ctx, productID); err != nil {
		return 0, err
	}
	if err := e.mirror.Reset(ctx, productID); err != nil {
		return 0, err
	}

	n, err := e.replay(ctx, productID)
	if err != nil {
		return n, err
	}

	e.logger.Info("payment mirror rebuilt", "product_id", productID, "records", n)
	return n, nil
}

// SyncMirror replays every product's charge journal into the mirror.
// Records already present are left as they are, so this repairs lag
// without a reset. It returns the number of charges replayed.
func (e *Engine) SyncMirror(ctx context.Context) (int, error) {
	products, err := e.allProducts(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, p := range products {
		n, err := e.replay(ctx, p.ID)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (e *Engine) replay(ctx context.Context, productID id.ProductID) (int, error) {
	charges, err := e.store.ListCharges(ctx, productID, charge.ListOpts{})
	if err != nil {
		return 0, err
	}
	for i, c := range charges {
		if err := e.mirror.Append(ctx, payment.FromCharge(c)); err != nil {
			return i, err
		}
	}
	return len(charges), nil
}
