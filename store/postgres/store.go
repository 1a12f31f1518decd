package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/product"
	pullpaystore "github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/withdrawal"
)

// compile-time interface check
var _ pullpaystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Balances are kept as NUMERIC(78,0) on the product row. Every mutation that
// touches more than one table is a single statement built from
// data-modifying CTEs, so it commits or fails as a whole.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("pullpay/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", pullpay.ErrMigrationFailed, err)
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
	err := s.pg.NewRaw(`
		INSERT INTO pullpay_products (owner, token, cost, period_seconds, balance, metadata_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7)
		RETURNING id
	`, p.Owner, p.Token, p.Cost.String(), p.PeriodSeconds(), p.MetadataRef, p.CreatedAt.UTC(), p.UpdatedAt.UTC()).
		Scan(ctx, &productID)
	if err != nil {
		return err
	}
	p.ID = id.ProductID(productID) //nolint:gosec // serial ids are positive
	return nil
}

func (s *Store) GetProduct(ctx context.Context, productID id.ProductID) (*product.Product, error) {
	m := new(productModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", int64(productID)). //nolint:gosec // product ids fit int64
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, pullpay.ErrProductNotFound
		}
		return nil, err
	}
	return fromProductModel(m)
}

func (s *Store) ListProducts(ctx context.Context, opts product.ListOpts) ([]*product.Product, error) {
	var models []productModel
	q := s.pg.NewSelect(&models)

	if opts.Owner != "" {
		q = q.Where("owner = $1", opts.Owner)
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
		p, err := fromProductModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)

	var seq int64
	err := s.pg.NewRaw(`
		INSERT INTO pullpay_subscriptions (id, product_id, subscriber, email, status, next_charge_at, failures, created_at, updated_at)
		SELECT $1, $2::BIGINT, $3, $4, $5, $6::TIMESTAMPTZ, 0, $7::TIMESTAMPTZ, $8::TIMESTAMPTZ
		WHERE EXISTS (SELECT 1 FROM pullpay_products WHERE id = $2::BIGINT)
		RETURNING seq
	`, m.ID, m.ProductID, m.Subscriber, m.Email, m.Status, m.NextChargeAt, m.CreatedAt, m.UpdatedAt).
		Scan(ctx, &seq)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
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
	err := s.pg.NewSelect(m).
		Where("product_id = $1", int64(productID)). //nolint:gosec // product ids fit int64
		Where("subscriber = $2", subscriber).
		Where("status IN ($3, $4)", string(subscription.StatusPending), string(subscription.StatusActive)).
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
	q := s.pg.NewSelect(&models).
		Where("product_id = $1", int64(productID)) //nolint:gosec // product ids fit int64

	argIdx := 1
	if opts.BillableOnly {
		q = q.Where(fmt.Sprintf("status IN ($%d, $%d)", argIdx+1, argIdx+2),
			string(subscription.StatusPending), string(subscription.StatusActive))
		argIdx += 2
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
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
	at = at.UTC()
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(subscription.StatusCanceled)).
		Set("ended_at = $2", at).
		Set("updated_at = $3", at).
		Where("id = $4", subID.String()).
		Where("status IN ($5, $6)", string(subscription.StatusPending), string(subscription.StatusActive)).
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
	at = at.UTC()
	q := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("failures = $1", failures).
		Set("updated_at = $2", at)
	if evict {
		q = q.Set("status = $3", string(subscription.StatusEvicted)).
			Set("ended_at = $4", at).
			Where("id = $5", subID.String()).
			Where("status IN ($6, $7)", string(subscription.StatusPending), string(subscription.StatusActive))
	} else {
		q = q.Where("id = $3", subID.String()).
			Where("status IN ($4, $5)", string(subscription.StatusPending), string(subscription.StatusActive))
	}

	res, err := q.Exec(ctx)
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

// missingSubscription tells a nonexistent subscription apart from one that
// exists but no longer qualified for the update.
func (s *Store) missingSubscription(ctx context.Context, subID id.SubscriptionID, conflict error) error {
	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return err
	}
	return conflict
}

// ==================== Charge Store ====================

// ApplyCharge advances the subscription, journals the charge and credits the
// product in one statement. The subscription update is a compare-and-set on
// next_charge_at; when it matches no row nothing else is written.
func (s *Store) ApplyCharge(ctx context.Context, c *charge.Charge) error {
	var chargeID string
	err := s.pg.NewRaw(`
		WITH advanced AS (
			UPDATE pullpay_subscriptions AS s
			SET next_charge_at = s.next_charge_at + p.period_seconds * INTERVAL '1 second',
			    failures = 0,
			    status = $10,
			    updated_at = $9
			FROM pullpay_products AS p
			WHERE s.id = $1 AND p.id = s.product_id AND p.id = $2
			  AND s.next_charge_at = $6
			  AND s.status IN ($10, $11)
			RETURNING s.id
		), journaled AS (
			INSERT INTO pullpay_charges (id, product_id, subscription_id, subscriber, amount, token, charged_at, email, tx_ref, run_id, recorded_at)
			SELECT $12, $2::BIGINT, advanced.id, $3, $4::NUMERIC, $5, $6::TIMESTAMPTZ, $7, $8, $13, $9::TIMESTAMPTZ FROM advanced
			RETURNING id, amount
		)
		UPDATE pullpay_products AS p
		SET balance = p.balance + journaled.amount, updated_at = $9
		FROM journaled
		WHERE p.id = $2
		RETURNING journaled.id
	`,
		c.SubscriptionID.String(),          // $1
		int64(c.ProductID),                 //nolint:gosec // $2
		c.Subscriber,                       // $3
		c.Amount.String(),                  // $4
		c.Token,                            // $5
		c.ChargedAt.UTC(),                  // $6
		c.Email,                            // $7
		c.TxRef,                            // $8
		c.RecordedAt.UTC(),                 // $9
		string(subscription.StatusActive),  // $10
		string(subscription.StatusPending), // $11
		c.ID.String(),                      // $12
		runIDString(c.RunID),               // $13
	).Scan(ctx, &chargeID)
	if err != nil {
		if isNoRows(err) {
			return s.missingSubscription(ctx, c.SubscriptionID, pullpay.ErrChargeConflict)
		}
		return err
	}
	return nil
}

func (s *Store) ListCharges(ctx context.Context, productID id.ProductID, opts charge.ListOpts) ([]*charge.Charge, error) {
	var models []chargeModel
	q := s.pg.NewSelect(&models).
		Where("product_id = $1", int64(productID)) //nolint:gosec // product ids fit int64

	argIdx := 1
	if opts.Subscriber != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("subscriber = $%d", argIdx), opts.Subscriber)
	}
	if !opts.Since.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("charged_at >= $%d", argIdx), opts.Since.UTC())
	}
	if !opts.Until.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("charged_at < $%d", argIdx), opts.Until.UTC())
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

// ApplyWithdrawal debits the product and journals the withdrawal in one
// statement. The debit only matches when the balance covers the amount.
func (s *Store) ApplyWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error {
	var wID string
	err := s.pg.NewRaw(`
		WITH debited AS (
			UPDATE pullpay_products
			SET balance = balance - $3::NUMERIC, updated_at = $5
			WHERE id = $2 AND balance >= $3::NUMERIC
			RETURNING id
		)
		INSERT INTO pullpay_withdrawals (id, product_id, owner, amount, tx_ref, created_at)
		SELECT $1, debited.id, $4, $3::NUMERIC, $6, $5::TIMESTAMPTZ FROM debited
		RETURNING id
	`,
		w.ID.String(),
		int64(w.ProductID), //nolint:gosec // product ids fit int64
		w.Amount.String(),
		w.Owner,
		w.CreatedAt.UTC(),
		w.TxRef,
	).Scan(ctx, &wID)
	if err != nil {
		if isNoRows(err) {
			if _, err := s.GetProduct(ctx, w.ProductID); err != nil {
				return err
			}
			return pullpay.ErrInsufficientBalance
		}
		return err
	}
	return nil
}

func (s *Store) SettleWithdrawal(ctx context.Context, wID id.WithdrawalID, txRef string) error {
	res, err := s.pg.NewUpdate((*withdrawalModel)(nil)).
		Set("tx_ref = $1", txRef).
		Where("id = $2", wID.String()).
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

// RevertWithdrawal deletes the journal row and credits the product back in
// one statement.
func (s *Store) RevertWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error {
	var productID int64
	err := s.pg.NewRaw(`
		WITH removed AS (
			DELETE FROM pullpay_withdrawals
			WHERE id = $1
			RETURNING product_id, amount
		)
		UPDATE pullpay_products
		SET balance = balance + removed.amount
		FROM removed
		WHERE pullpay_products.id = removed.product_id
		RETURNING pullpay_products.id
	`, w.ID.String()).Scan(ctx, &productID)
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
	err := s.pg.NewSelect(&models).
		Where("product_id = $1", int64(productID)). //nolint:gosec // product ids fit int64
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

func runIDString(runID id.RunID) string {
	if runID.IsNil() {
		return ""
	}
	return runID.String()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a unique_violation (23505) from postgres.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
