package payment

import (
	"context"
	"time"

	"github.com/xraph/pullpay/id"
)

// Mirror is the append-only payment history.
type Mirror interface {
	// Append adds r. Appending a record whose ChargeID is already present
	// is a no-op.
	Append(ctx context.Context, r *Record) error
	// QueryByProduct returns a product's records ordered by
	// (ChargedAt, Subscriber, ChargeID).
	QueryByProduct(ctx context.Context, productID id.ProductID, opts QueryOpts) ([]*Record, error)
	// Reset drops every record of a product ahead of a rebuild.
	Reset(ctx context.Context, productID id.ProductID) error
}

// QueryOpts filters a product's payment history. Zero values mean no filter.
// Since is inclusive, Until exclusive.
type QueryOpts struct {
	Subscriber string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// Match reports whether r passes the filter, ignoring paging.
func (o QueryOpts) Match(r *Record) bool {
	if o.Subscriber != "" && r.Subscriber != o.Subscriber {
		return false
	}
	if !o.Since.IsZero() && r.ChargedAt.Before(o.Since) {
		return false
	}
	if !o.Until.IsZero() && !r.ChargedAt.Before(o.Until) {
		return false
	}
	return true
}
