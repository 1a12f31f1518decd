// Package payment defines the Payment Mirror: a derived, queryable history of
// successful charges indexed by product. The mirror is eventually consistent
// with the charge journal and can always be rebuilt from it.
package payment

import (
	"time"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/types"
)

// Record is one mirrored payment.
type Record struct {
	ChargeID   id.ChargeID  `json:"charge_id"`
	ProductID  id.ProductID `json:"product_id"`
	Subscriber string       `json:"subscriber"`
	ChargedAt  time.Time    `json:"charged_at"`
	Amount     types.Amount `json:"amount"`
	Token      string       `json:"token"`
	Email      *string      `json:"email"`
}

// FromCharge projects a journal entry into a mirror record.
func FromCharge(c *charge.Charge) *Record {
	r := &Record{
		ChargeID:   c.ID,
		ProductID:  c.ProductID,
		Subscriber: c.Subscriber,
		ChargedAt:  c.ChargedAt.UTC(),
		Amount:     c.Amount,
		Token:      c.Token,
	}
	if c.Email != "" {
		email := c.Email
		r.Email = &email
	}
	return r
}

// Less orders records by (ChargedAt, Subscriber, ChargeID).
func Less(a, b *Record) bool {
	if !a.ChargedAt.Equal(b.ChargedAt) {
		return a.ChargedAt.Before(b.ChargedAt)
	}
	if a.Subscriber != b.Subscriber {
		return a.Subscriber < b.Subscriber
	}
	return a.ChargeID.String() < b.ChargeID.String()
}
