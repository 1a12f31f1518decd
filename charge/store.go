package charge

import (
	"context"
	"time"

	"github.com/xraph/pullpay/id"
)

type Store interface {
	// Apply journals c, credits the product balance and advances the
	// subscription by one period. It fails without effect unless the
	// subscription is billable and its NextChargeAt equals c.ChargedAt.
	Apply(ctx context.Context, c *Charge) error
	List(ctx context.Context, productID id.ProductID, opts ListOpts) ([]*Charge, error)
}

// ListOpts filters a product's charges. Results are ordered by
// (ChargedAt, Subscriber, ID).
type ListOpts struct {
	Subscriber string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}
