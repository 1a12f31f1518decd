package pullpay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/metadata"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/types"
	"github.com/xraph/pullpay/withdrawal"
)

// ──────────────────────────────────────────────────
// Product Management
// ──────────────────────────────────────────────────

// CreateProduct registers a new product and assigns its ID. Balance starts
// at zero. Invalid input is rejected before any state change.
func (e *Engine) CreateProduct(ctx context.Context, p *product.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}

	p.Entity = types.NewEntityAt(e.now())
	p.Balance = types.Amount{}

	if err := e.store.CreateProduct(ctx, p); err != nil {
		return err
	}

	e.logger.Info("product created",
		"product_id", p.ID,
		"owner", p.Owner,
		"token", p.Token,
		"cost", p.Cost.String(),
		"period", p.Period,
	)

	e.plugins.EmitProductCreated(ctx, p)
	return nil
}

// MaxPeriod is the longest billing period a product may have.
const MaxPeriod = 100 * 365 * 24 * time.Hour

func validateProduct(p *product.Product) error {
	switch {
	case strings.TrimSpace(p.Owner) == "":
		return ValidationError{Field: "owner", Message: "required"}
	case strings.TrimSpace(p.Token) == "":
		return ValidationError{Field: "token", Message: "required"}
	case !p.Cost.IsPositive():
		return ValidationError{Field: "cost", Message: "must be positive"}
	case p.Period < time.Second:
		return ValidationError{Field: "period", Message: "must be at least one second"}
	case p.Period%time.Second != 0:
		return ValidationError{Field: "period", Message: "must be whole seconds"}
	case p.Period > MaxPeriod:
		return ValidationError{Field: "period", Message: "must be at most 100 years"}
	}
	return nil
}

// GetProduct retrieves a product with its current balance.
func (e *Engine) GetProduct(ctx context.Context, productID id.ProductID) (*product.Product, error) {
	return e.store.GetProduct(ctx, productID)
}

// ListProducts lists products ordered by ID.
func (e *Engine) ListProducts(ctx context.Context, opts product.ListOpts) ([]*product.Product, error) {
	return e.store.ListProducts(ctx, opts)
}

// Withdraw pays amount out of the product balance to the owner. Only the
// owner may withdraw, and never more than the balance.
func (e *Engine) Withdraw(ctx context.Context, productID id.ProductID, caller string, amount types.Amount) (*withdrawal.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}

	release, err := e.lockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if caller != p.Owner {
		return nil, ErrUnauthorized
	}
	if p.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	// Journal before paying out: a transfer that fails is reverted, while a
	// ledger write that fails never leaves money moved without a record.
	w := &withdrawal.Withdrawal{
		ID:        id.NewWithdrawalID(),
		ProductID: p.ID,
		Owner:     p.Owner,
		Amount:    amount,
		CreatedAt: e.now(),
	}
	if err := e.store.ApplyWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	rcpt, err := e.mover.Transfer(ctx, p.Token, e.escrow, p.Owner, amount)
	if err != nil {
		if rerr := e.store.RevertWithdrawal(context.WithoutCancel(ctx), w); rerr != nil {
			e.logger.Error("withdrawal journaled but neither paid nor reverted",
				"product_id", p.ID,
				"withdrawal_id", w.ID,
				"amount", amount.String(),
				"error", err,
				"revert_error", rerr,
			)
			return nil, fmt.Errorf("pullpay: withdraw transfer: %w", errors.Join(err, rerr))
		}
		return nil, fmt.Errorf("pullpay: withdraw transfer: %w", err)
	}

	w.TxRef = rcpt.Ref
	if err := e.store.SettleWithdrawal(context.WithoutCancel(ctx), w.ID, rcpt.Ref); err != nil {
		e.logger.Warn("withdrawal paid but tx ref not recorded",
			"product_id", p.ID,
			"withdrawal_id", w.ID,
			"tx_ref", rcpt.Ref,
			"error", err,
		)
	}

	e.logger.Info("withdrawal applied",
		"product_id", p.ID,
		"amount", amount.String(),
		"tx_ref", rcpt.Ref,
	)

	e.plugins.EmitWithdrawn(ctx, w)
	return w, nil
}

// ListWithdrawals returns a product's withdrawal journal.
func (e *Engine) ListWithdrawals(ctx context.Context, productID id.ProductID) ([]*withdrawal.Withdrawal, error) {
	return e.store.ListWithdrawals(ctx, productID)
}

// ResolveMetadata resolves the product's metadata reference through the
// configured resolver. Failures never touch ledger state.
func (e *Engine) ResolveMetadata(ctx context.Context, productID id.ProductID) (*metadata.Metadata, error) {
	p, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.MetadataRef == "" {
		return nil, fmt.Errorf("%w: product %s has no metadata", ErrUnresolvable, productID)
	}
	if e.resolver == nil {
		return nil, fmt.Errorf("%w: no resolver configured", ErrUnresolvable)
	}
	return e.resolver.Resolve(ctx, p.MetadataRef)
}

// Reconciliation compares a product's stored balance with its journals.
type Reconciliation struct {
	ProductID   id.ProductID `json:"product_id"`
	Balance     types.Amount `json:"balance"`
	Charged     types.Amount `json:"charged"`
	Withdrawn   types.Amount `json:"withdrawn"`
	Consistent  bool         `json:"consistent"`
	Charges     int          `json:"charges"`
	Withdrawals int          `json:"withdrawals"`
}

// Reconcile checks balance == sum(charges) - sum(withdrawals) for a product.
func (e *Engine) Reconcile(ctx context.Context, productID id.ProductID) (*Reconciliation, error) {
	release, err := e.lockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	charges, err := e.store.ListCharges(ctx, productID, charge.ListOpts{})
	if err != nil {
		return nil, err
	}
	withdrawals, err := e.store.ListWithdrawals(ctx, productID)
	if err != nil {
		return nil, err
	}

	r := &Reconciliation{
		ProductID:   productID,
		Balance:     p.Balance,
		Charges:     len(charges),
		Withdrawals: len(withdrawals),
	}
	for _, c := range charges {
		r.Charged = r.Charged.Add(c.Amount)
	}
	for _, w := range withdrawals {
		r.Withdrawn = r.Withdrawn.Add(w.Amount)
	}
	r.Consistent = r.Charged.Sub(r.Withdrawn).Equal(p.Balance)

	if !r.Consistent {
		e.logger.Error("product balance does not match journals",
			"product_id", productID,
			"balance", p.Balance.String(),
			"charged", r.Charged.String(),
			"withdrawn", r.Withdrawn.String(),
		)
	}
	return r, nil
}
