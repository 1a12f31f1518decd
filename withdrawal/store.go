package withdrawal

import (
	"context"

	"github.com/xraph/pullpay/id"
)

type Store interface {
	// Apply journals w and debits the product balance, failing without
	// effect if the balance is below w.Amount.
	Apply(ctx context.Context, w *Withdrawal) error
	// Settle records the payout reference once the transfer has gone through.
	Settle(ctx context.Context, wID id.WithdrawalID, txRef string) error
	// Revert removes an unsettled withdrawal and credits its amount back.
	Revert(ctx context.Context, w *Withdrawal) error
	List(ctx context.Context, productID id.ProductID) ([]*Withdrawal, error)
}
