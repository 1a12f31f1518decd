// Package token defines the Token Mover: the conditional, allowance-gated
// value transfer primitive the billing engine uses to pull funds from
// subscriber wallets and pay out product balances.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/pullpay/types"
)

var (
	// ErrInsufficientFunds means the payer's balance is below the amount.
	ErrInsufficientFunds = errors.New("pullpay: insufficient funds")
	// ErrInsufficientAuthorization means the payer has not authorized the
	// operator to move at least the amount on its behalf.
	ErrInsufficientAuthorization = errors.New("pullpay: insufficient authorization")
	// ErrInvalidAmount means a transfer of zero or a negative amount was requested.
	ErrInvalidAmount = errors.New("pullpay: transfer amount must be positive")
)

// Receipt describes a completed transfer.
type Receipt struct {
	Ref    string       `json:"ref"`
	Token  string       `json:"token"`
	From   string       `json:"from"`
	To     string       `json:"to"`
	Amount types.Amount `json:"amount"`
	At     time.Time    `json:"at"`
}

// Mover moves fungible token value between accounts.
//
// Transfer is atomic: it either moves exactly amount from -> to or changes
// nothing. When from is not the mover's operator account the transfer spends
// from's allowance to the operator.
type Mover interface {
	Transfer(ctx context.Context, token, from, to string, amount types.Amount) (*Receipt, error)
	Allowance(ctx context.Context, token, owner, spender string) (types.Amount, error)
}
