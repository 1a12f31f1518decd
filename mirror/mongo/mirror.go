// Package mongo implements payment.Mirror on MongoDB via Grove ORM. Each
// record is a document keyed by its charge ID, which makes appends
// idempotent.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/payment"
)

const colPayments = "pullpay_payments"

// compile-time interface check
var _ payment.Mirror = (*Mirror)(nil)

// Mirror stores payment records in MongoDB.
type Mirror struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB mirror backed by Grove ORM.
func New(db *grove.DB) *Mirror {
	return &Mirror{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates the collection indexes.
func (m *Mirror) Migrate(ctx context.Context) error {
	_, err := m.mdb.Collection(colPayments).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "product_id", Value: 1},
			{Key: "charged_at", Value: 1},
			{Key: "subscriber", Value: 1},
			{Key: "_id", Value: 1},
		}},
		{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "subscriber", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("pullpay/mongo: migrate %s indexes: %w", colPayments, err)
	}
	return nil
}

// Ping checks database connectivity.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.db.Ping(ctx)
}

// Close closes the database connection.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Append implements payment.Mirror.
func (m *Mirror) Append(ctx context.Context, r *payment.Record) error {
	_, err := m.mdb.NewInsert(toPaymentModel(r)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("pullpay/mongo: append payment: %w", err)
	}
	return nil
}

// QueryByProduct implements payment.Mirror.
func (m *Mirror) QueryByProduct(ctx context.Context, productID id.ProductID, opts payment.QueryOpts) ([]*payment.Record, error) {
	var models []paymentModel

	filter := bson.M{"product_id": int64(productID)} //nolint:gosec // product ids fit int64
	if opts.Subscriber != "" {
		filter["subscriber"] = opts.Subscriber
	}
	window := bson.M{}
	if !opts.Since.IsZero() {
		window["$gte"] = opts.Since.UTC()
	}
	if !opts.Until.IsZero() {
		window["$lt"] = opts.Until.UTC()
	}
	if len(window) > 0 {
		filter["charged_at"] = window
	}

	q := m.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{
			{Key: "charged_at", Value: 1},
			{Key: "subscriber", Value: 1},
			{Key: "_id", Value: 1},
		})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("pullpay/mongo: query payments: %w", err)
	}

	result := make([]*payment.Record, len(models))
	for i := range models {
		r, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// Reset implements payment.Mirror.
func (m *Mirror) Reset(ctx context.Context, productID id.ProductID) error {
	_, err := m.mdb.NewDelete((*paymentModel)(nil)).
		Filter(bson.M{"product_id": int64(productID)}). //nolint:gosec // product ids fit int64
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("pullpay/mongo: reset payments: %w", err)
	}
	return nil
}
