package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/types"
	"github.com/xraph/pullpay/withdrawal"
)

// ==================== Product models ====================

type productModel struct {
	grove.BaseModel `grove:"table:pullpay_products"`

	ID            int64     `grove:"id,pk"`
	Owner         string    `grove:"owner"`
	Token         string    `grove:"token"`
	Cost          string    `grove:"cost"`
	PeriodSeconds int64     `grove:"period_seconds"`
	Balance       string    `grove:"balance"`
	MetadataRef   string    `grove:"metadata_ref"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func fromProductModel(m *productModel) (*product.Product, error) {
	cost, err := types.ParseAmount(m.Cost)
	if err != nil {
		return nil, err
	}
	balance, err := types.ParseAmount(m.Balance)
	if err != nil {
		return nil, err
	}

	return &product.Product{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          id.ProductID(m.ID), //nolint:gosec // serial ids are positive
		Owner:       m.Owner,
		Token:       m.Token,
		Cost:        cost,
		Period:      time.Duration(m.PeriodSeconds) * time.Second,
		Balance:     balance,
		MetadataRef: m.MetadataRef,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:pullpay_subscriptions"`

	ID           string     `grove:"id,pk"`
	ProductID    int64      `grove:"product_id"`
	Subscriber   string     `grove:"subscriber"`
	Email        string     `grove:"email"`
	Status       string     `grove:"status"`
	Seq          int64      `grove:"seq"`
	NextChargeAt time.Time  `grove:"next_charge_at"`
	Failures     int        `grove:"failures"`
	EndedAt      *time.Time `grove:"ended_at"`
	CreatedAt    time.Time  `grove:"created_at"`
	UpdatedAt    time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:           s.ID.String(),
		ProductID:    int64(s.ProductID), //nolint:gosec // product ids fit int64
		Subscriber:   s.Subscriber,
		Email:        s.Email,
		Status:       string(s.Status),
		NextChargeAt: s.NextChargeAt.UTC(),
		Failures:     s.Failures,
		EndedAt:      s.EndedAt,
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	var ended *time.Time
	if m.EndedAt != nil {
		t := m.EndedAt.UTC()
		ended = &t
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           subID,
		ProductID:    id.ProductID(m.ProductID), //nolint:gosec // serial ids are positive
		Subscriber:   m.Subscriber,
		Email:        m.Email,
		Status:       subscription.Status(m.Status),
		Seq:          m.Seq,
		NextChargeAt: m.NextChargeAt.UTC(),
		Failures:     m.Failures,
		EndedAt:      ended,
	}, nil
}

// ==================== Charge models ====================

type chargeModel struct {
	grove.BaseModel `grove:"table:pullpay_charges"`

	ID             string    `grove:"id,pk"`
	ProductID      int64     `grove:"product_id"`
	SubscriptionID string    `grove:"subscription_id"`
	Subscriber     string    `grove:"subscriber"`
	Amount         string    `grove:"amount"`
	Token          string    `grove:"token"`
	ChargedAt      time.Time `grove:"charged_at"`
	Email          string    `grove:"email"`
	TxRef          string    `grove:"tx_ref"`
	RunID          string    `grove:"run_id"`
	RecordedAt     time.Time `grove:"recorded_at"`
}

func fromChargeModel(m *chargeModel) (*charge.Charge, error) {
	chargeID, err := id.ParseChargeID(m.ID)
	if err != nil {
		return nil, err
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}

	c := &charge.Charge{
		ID:             chargeID,
		ProductID:      id.ProductID(m.ProductID), //nolint:gosec // serial ids are positive
		SubscriptionID: subID,
		Subscriber:     m.Subscriber,
		Amount:         amount,
		Token:          m.Token,
		ChargedAt:      m.ChargedAt.UTC(),
		Email:          m.Email,
		TxRef:          m.TxRef,
		RecordedAt:     m.RecordedAt.UTC(),
	}
	if m.RunID != "" {
		if c.RunID, err = id.ParseRunID(m.RunID); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ==================== Withdrawal models ====================

type withdrawalModel struct {
	grove.BaseModel `grove:"table:pullpay_withdrawals"`

	ID        string    `grove:"id,pk"`
	ProductID int64     `grove:"product_id"`
	Owner     string    `grove:"owner"`
	Amount    string    `grove:"amount"`
	TxRef     string    `grove:"tx_ref"`
	CreatedAt time.Time `grove:"created_at"`
}

func fromWithdrawalModel(m *withdrawalModel) (*withdrawal.Withdrawal, error) {
	wID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}

	return &withdrawal.Withdrawal{
		ID:        wID,
		ProductID: id.ProductID(m.ProductID), //nolint:gosec // serial ids are positive
		Owner:     m.Owner,
		Amount:    amount,
		TxRef:     m.TxRef,
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}
