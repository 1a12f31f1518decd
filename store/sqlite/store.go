package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/product"
	pullpaystore "github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/types"
	"github.com/xraph/pullpay/withdrawal"
)

// compile-time interface check
var _ pullpaystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
//
// SQLite has no integer type wide enough for token amounts, so amounts are
// TEXT and product balances are derived from the journals on read. Charge
// application is a single INSERT whose triggers enforce the next_charge_at
// compare-and-set and advance the subscription.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("pullpay/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", pullpay.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Product Store ====================

func (s *Store) CreateProduct(ctx context.Context, p *product.Product) error {
	var productID int64
	err := s.sdb.NewRaw(`
		INSERT INTO pullpay_products (owner, token, cost, period_seconds, metadata_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, p.Owner, p.Token, p.Cost.String(), p.PeriodSeconds(), p.MetadataRef, unix(p.CreatedAt), unix(p.UpdatedAt)).
		Scan(ctx, &productID)
	if err != nil {
		return err
	}
	p.ID = id.ProductID(productID) //nolint:gosec // rowids are positive
	return nil
}

func (s *Store) GetProduct(ctx context.Context, productID id.ProductID) (*product.Product, error) {
	m := new(productModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(productID)). //nolint:gosec // product ids fit int64
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, pullpay.ErrProductNotFound
		}
		return nil, err
	}
	return s.withBalance(ctx, m)
}

func (s *Store) ListProducts(ctx context.Context, opts product.ListOpts) ([]*product.Product, error) {
	var models []productModel
	q := s.sdb.NewSelect(&models)

	if opts.Owner != "" {
		q = q.Where("owner = ?", opts.Owner)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*product.Product, len(models))
	for i := range models {
		p, err := s.withBalance(ctx, &models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) withBalance(ctx context.Context, m *productModel) (*product.Product, error) {
	p, err := fromProductModel(m)
	if err != nil {
		return nil, err
	}
	p.Balance, err = s.balance(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// balance sums the product's charge journal minus its withdrawals.
func (s *Store) balance(ctx context.Context, productID int64) (types.Amount, error) {
	var charges []chargeModel
	if err := s.sdb.NewSelect(&charges).Where("product_id = ?", productID).Scan(ctx); err != nil {
		return types.Amount{}, err
	}
	var withdrawals []withdrawalModel
	if err := s.sdb.NewSelect(&withdrawals).Where("product_id = ?", productID).Scan(ctx); err != nil {
		return types.Amount{}, err
	}

	total := types.Amount{}
	for i := range charges {
		a, err := types.ParseAmount(charges[i].Amount)
		if err != nil {
			return types.Amount{}, err
		}
		total = total.Add(a)
	}
	for i := range withdrawals {
		a, err := types.ParseAmount(withdrawals[i].Amount)
		if err != nil {
			return types.Amount{}, err
		}
		total = total.Sub(a)
	}
	return total, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	var seq int64
	err := s.sdb.NewRaw(`
		INSERT INTO pullpay_subscriptions (id, product_id, subscriber, email, status, seq, next_charge_at, failures, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, COALESCE((SELECT MAX(seq) FROM pullpay_subscriptions), 0) + 1, ?, 0, ?, ?
		WHERE EXISTS (SELECT 1 FROM pullpay_products WHERE id = ?)
		RETURNING seq
	`,
		sub.ID.String(),
		int64(sub.ProductID), //nolint:gosec // product ids fit int64
		sub.Subscriber,
		sub.Email,
		string(sub.Status),
		unix(sub.NextChargeAt),
		unix(sub.CreatedAt),
		unix(sub.UpdatedAt),
		int64(sub.ProductID), //nolint:gosec // product ids fit int64
	).Scan(ctx, &seq)
	switch {
	case isNoRows(err):
		return pullpay.ErrProductNotFound
	case isUniqueViolation(err):
		return pullpay.ErrAlreadySubscribed
	case err != nil:
		return err
	}

	sub.Seq = seq
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, pullpay.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, productID id.ProductID, subscriber string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("product_id = ?", int64(productID)). //nolint:gosec // product ids fit int64
		Where("subscriber = ?", subscriber).
		Where("status IN (?, ?)", string(subscription.StatusPending), string(subscription.StatusActive)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, pullpay.ErrNotSubscribed
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, productID id.ProductID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models).
		Where("product_id = ?", int64(productID)) //nolint:gosec // product ids fit int64

	if opts.BillableOnly {
		q = q.Where("status IN (?, ?)", string(subscription.StatusPending), string(subscription.StatusActive))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", string(subscription.StatusCanceled)).
		Set("ended_at = ?", unix(at)).
		Set("updated_at = ?", unix(at)).
		Where("id = ?", subID.String()).
		Where("status IN (?, ?)", string(subscription.StatusPending), string(subscription.StatusActive)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.missingSubscription(ctx, subID, pullpay.ErrNotSubscribed)
	}
	return nil
}

func (s *Store) RecordChargeFailure(ctx context.Context, subID id.SubscriptionID, failures int, evict bool, at time.Time) error {
	q := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("failures = ?", failures).
		Set("updated_at = ?", unix(at))
	if evict {
		q = q.Set("status = ?", string(subscription.StatusEvicted)).
			Set("ended_at = ?", unix(at))
	}
	res, err := q.
		Where("id = ?", subID.String()).
		Where("status IN (?, ?)", string(subscription.StatusPending), string(subscription.StatusActive)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.missingSubscription(ctx, subID, pullpay.ErrChargeConflict)
	}
	return nil
}

func (s *Store) missingSubscription(ctx context.Context, subID id.SubscriptionID, conflict error) error {
	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return err
	}
	return conflict
}

// ==================== Charge Store ====================

// ApplyCharge inserts the charge. The insert triggers reject it unless the
// subscription is billable at exactly c.ChargedAt, and then advance the
// subscription by one period.
func (s *Store) ApplyCharge(ctx context.Context, c *charge.Charge) error {
	_, err := s.sdb.NewInsert(toChargeModel(c)).Exec(ctx)
	if err != nil {
		if isChargeConflict(err) {
			return s.missingSubscription(ctx, c.SubscriptionID, pullpay.ErrChargeConflict)
		}
		return err
	}
	return nil
}

func (s *Store) ListCharges(ctx context.Context, productID id.ProductID, opts charge.ListOpts) ([]*charge.Charge, error) {
	var models []chargeModel
	q := s.sdb.NewSelect(&models).
		Where("product_id = ?", int64(productID)) //nolint:gosec // product ids fit int64

	if opts.Subscriber != "" {
		q = q.Where("subscriber = ?", opts.Subscriber)
	}
	if !opts.Since.IsZero() {
		q = q.Where("charged_at >= ?", unix(opts.Since))
	}
	if !opts.Until.IsZero() {
		q = q.Where("charged_at < ?", unix(opts.Until))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("charged_at ASC, subscriber ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*charge.Charge, len(models))
	for i := range models {
		c, err := fromChargeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Withdrawal Store ====================

// ApplyWithdrawal checks the derived balance and journals the withdrawal.
// The check and the insert are two statements; the engine's product lock
// keeps them from interleaving with other mutations of the product.
func (s *Store) ApplyWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error {
	if _, err := s.GetProduct(ctx, w.ProductID); err != nil {
		return err
	}
	bal, err := s.balance(ctx, int64(w.ProductID)) //nolint:gosec // product ids fit int64
	if err != nil {
		return err
	}
	if bal.LessThan(w.Amount) {
		return pullpay.ErrInsufficientBalance
	}

	_, err = s.sdb.NewInsert(toWithdrawalModel(w)).Exec(ctx)
	return err
}

func (s *Store) SettleWithdrawal(ctx context.Context, wID id.WithdrawalID, txRef string) error {
	res, err := s.sdb.NewUpdate((*withdrawalModel)(nil)).
		Set("tx_ref = ?", txRef).
		Where("id = ?", wID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pullpay.ErrWithdrawalNotFound
	}
	return nil
}

// RevertWithdrawal deletes the journal row. The balance is derived from the
// journals, so that alone credits the amount back.
func (s *Store) RevertWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error {
	var removed string
	err := s.sdb.NewRaw(`DELETE FROM pullpay_withdrawals WHERE id = ? RETURNING id`, w.ID.String()).Scan(ctx, &removed)
	if err != nil {
		if isNoRows(err) {
			return pullpay.ErrWithdrawalNotFound
		}
		return err
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, productID id.ProductID) ([]*withdrawal.Withdrawal, error) {
	var models []withdrawalModel
	err := s.sdb.NewSelect(&models).
		Where("product_id = ?", int64(productID)). //nolint:gosec // product ids fit int64
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*withdrawal.Withdrawal, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = w
	}
	return result, nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isChargeConflict matches the RAISE(ABORT) message of the charge trigger.
func isChargeConflict(err error) bool {
	return strings.Contains(err.Error(), chargeConflictMessage)
}
