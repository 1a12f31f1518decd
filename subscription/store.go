package subscription

import (
	"context"
	"time"

	"github.com/xraph/pullpay/id"
)

type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	GetActive(ctx context.Context, productID id.ProductID, subscriber string) (*Subscription, error)
	List(ctx context.Context, productID id.ProductID, opts ListOpts) ([]*Subscription, error)
	Cancel(ctx context.Context, subID id.SubscriptionID, at time.Time) error
	RecordFailure(ctx context.Context, subID id.SubscriptionID, failures int, evict bool, at time.Time) error
}

// ListOpts filters a product's subscriptions. Results are ordered by Seq.
type ListOpts struct {
	Status       Status
	BillableOnly bool
	Limit        int
	Offset       int
}

// Match reports whether s passes the filter.
func (o ListOpts) Match(s *Subscription) bool {
	if o.BillableOnly && !s.Billable() {
		return false
	}
	return o.Status == "" || s.Status == o.Status
}
