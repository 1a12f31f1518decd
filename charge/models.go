// Package charge defines the charge journal: one entry per successful pull
// from a subscriber wallet. The journal is authoritative for product balances.
package charge

import (
	"time"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/types"
)

type Charge struct {
	ID             id.ChargeID       `json:"id"`
	ProductID      id.ProductID      `json:"product_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Subscriber     string            `json:"subscriber"`
	Amount         types.Amount      `json:"amount"`
	Token          string            `json:"token"`
	// ChargedAt is the billing slot this charge settles: the subscription's
	// NextChargeAt before the charge was applied.
	ChargedAt  time.Time `json:"charged_at"`
	Email      string    `json:"email,omitempty"`
	TxRef      string    `json:"tx_ref,omitempty"`
	RunID      id.RunID  `json:"run_id"`
	RecordedAt time.Time `json:"recorded_at"`
}
