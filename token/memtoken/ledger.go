// Package memtoken provides an in-memory fungible token ledger implementing
// token.Mover with ERC-20 style balances and allowances. It backs tests and
// the development daemon.
package memtoken

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xraph/pullpay/token"
	"github.com/xraph/pullpay/types"
)

// Compile-time interface check.
var _ token.Mover = (*Ledger)(nil)

// Ledger holds balances and allowances for any number of tokens.
// Account and token identifiers are compared case-insensitively, as
// hex addresses are.
type Ledger struct {
	mu sync.Mutex

	operator   string
	balances   map[string]map[string]types.Amount            // token -> account -> balance
	allowances map[string]map[string]map[string]types.Amount // token -> owner -> spender -> allowance
	faults     map[string]error
	seq        uint64
	now        func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source used to stamp receipts.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger whose operator account is operator. The operator
// spends subscriber allowances and holds collected funds.
func New(operator string, opts ...Option) *Ledger {
	l := &Ledger{
		operator:   norm(operator),
		balances:   make(map[string]map[string]types.Amount),
		allowances: make(map[string]map[string]map[string]types.Amount),
		faults:     make(map[string]error),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Operator returns the operator account.
func (l *Ledger) Operator() string { return l.operator }

// Mint credits amount of tok to account.
func (l *Ledger) Mint(tok, account string, amount types.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setBalance(tok, account, l.balance(tok, account).Add(amount))
}

// Approve sets owner's allowance to spender. A zero amount revokes it.
func (l *Ledger) Approve(tok, owner, spender string, amount types.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setAllowance(tok, owner, spender, amount)
}

// BalanceOf returns account's balance of tok.
func (l *Ledger) BalanceOf(tok, account string) types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balance(tok, account)
}

// Fail makes every transfer out of account return err until cleared with a
// nil err. It simulates transport or chain failures.
func (l *Ledger) Fail(account string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		delete(l.faults, norm(account))
		return
	}
	l.faults[norm(account)] = err
}

// Allowance implements token.Mover.
func (l *Ledger) Allowance(_ context.Context, tok, owner, spender string) (types.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.allowance(tok, owner, spender), nil
}

// Transfer implements token.Mover. Transfers out of any account other than
// the operator spend that account's allowance to the operator.
func (l *Ledger) Transfer(ctx context.Context, tok, from, to string, amount types.Amount) (*token.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, token.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.faults[norm(from)]; err != nil {
		return nil, err
	}

	spendAllowance := norm(from) != l.operator
	if spendAllowance {
		if l.allowance(tok, from, l.operator).LessThan(amount) {
			return nil, token.ErrInsufficientAuthorization
		}
	}

	bal := l.balance(tok, from)
	if bal.LessThan(amount) {
		return nil, token.ErrInsufficientFunds
	}

	if spendAllowance {
		l.setAllowance(tok, from, l.operator, l.allowance(tok, from, l.operator).Sub(amount))
	}
	l.setBalance(tok, from, bal.Sub(amount))
	l.setBalance(tok, to, l.balance(tok, to).Add(amount))

	l.seq++
	return &token.Receipt{
		Ref:    fmt.Sprintf("memtx-%d", l.seq),
		Token:  tok,
		From:   from,
		To:     to,
		Amount: amount,
		At:     l.now().UTC(),
	}, nil
}

func (l *Ledger) balance(tok, account string) types.Amount {
	return l.balances[norm(tok)][norm(account)]
}

func (l *Ledger) setBalance(tok, account string, amount types.Amount) {
	byAccount, ok := l.balances[norm(tok)]
	if !ok {
		byAccount = make(map[string]types.Amount)
		l.balances[norm(tok)] = byAccount
	}
	byAccount[norm(account)] = amount
}

func (l *Ledger) allowance(tok, owner, spender string) types.Amount {
	return l.allowances[norm(tok)][norm(owner)][norm(spender)]
}

func (l *Ledger) setAllowance(tok, owner, spender string, amount types.Amount) {
	byOwner, ok := l.allowances[norm(tok)]
	if !ok {
		byOwner = make(map[string]map[string]types.Amount)
		l.allowances[norm(tok)] = byOwner
	}
	bySpender, ok := byOwner[norm(owner)]
	if !ok {
		bySpender = make(map[string]types.Amount)
		byOwner[norm(owner)] = bySpender
	}
	bySpender[norm(spender)] = amount
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
