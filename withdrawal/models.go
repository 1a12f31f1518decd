// Package withdrawal defines the owner payout journal.
package withdrawal

import (
	"time"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/types"
)

type Withdrawal struct {
	ID        id.WithdrawalID `json:"id"`
	ProductID id.ProductID    `json:"product_id"`
	Owner     string          `json:"owner"`
	Amount    types.Amount    `json:"amount"`
	TxRef     string          `json:"tx_ref,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
