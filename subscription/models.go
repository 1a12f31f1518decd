package subscription

import (
	"time"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/types"
)

type Status string

const (
	// StatusPending is a fresh enrollment that has not been charged yet.
	StatusPending Status = "pending"
	// StatusActive has been charged at least once.
	StatusActive Status = "active"
	// StatusEvicted was removed after failed charges. Terminal.
	StatusEvicted Status = "evicted"
	// StatusCanceled was ended by the subscriber. Terminal.
	StatusCanceled Status = "canceled"
)

// Billable reports whether subscriptions in this status are charged.
func (s Status) Billable() bool {
	return s == StatusPending || s == StatusActive
}

type Subscription struct {
	types.Entity
	ID           id.SubscriptionID `json:"id"`
	ProductID    id.ProductID      `json:"product_id"`
	Subscriber   string            `json:"subscriber"`
	Email        string            `json:"email,omitempty"`
	Status       Status            `json:"status"`
	Seq          int64             `json:"seq"`
	NextChargeAt time.Time         `json:"next_charge_at"`
	Failures     int               `json:"failures"`
	EndedAt      *time.Time        `json:"ended_at,omitempty"`
}

// Billable reports whether the subscription is pending or active.
func (s *Subscription) Billable() bool { return s.Status.Billable() }

// Due reports whether a billable subscription's next charge has come due at now.
func (s *Subscription) Due(now time.Time) bool {
	return s.Billable() && !s.NextChargeAt.After(now)
}
