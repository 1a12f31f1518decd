package sqlite

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

// Times are stored as unix seconds so triggers can do period arithmetic.

func unix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(s int64) time.Time { return time.Unix(s, 0).UTC() }

// ==================== Product models ====================

type productModel struct {
	grove.BaseModel `grove:"table:pullpay_products"`

	ID            int64  `grove:"id,pk"`
	Owner         string `grove:"owner"`
	Token         string `grove:"token"`
	Cost          string `grove:"cost"`
	PeriodSeconds int64  `grove:"period_seconds"`
	MetadataRef   string `grove:"metadata_ref"`
	CreatedAt     int64  `grove:"created_at"`
	UpdatedAt     int64  `grove:"updated_at"`
}

// fromProductModel converts the row; the caller fills in the derived balance.
func fromProductModel(m *productModel) (*product.Product, error) {
	cost, err := types.ParseAmount(m.Cost)
	if err != nil {
		return nil, err
	}

	return &product.Product{
		Entity: types.Entity{
			CreatedAt: fromUnix(m.CreatedAt),
			UpdatedAt: fromUnix(m.UpdatedAt),
		},
		ID:          id.ProductID(m.ID), //nolint:gosec // rowids are positive
		Owner:       m.Owner,
		Token:       m.Token,
		Cost:        cost,
		Period:      time.Duration(m.PeriodSeconds) * time.Second,
		MetadataRef: m.MetadataRef,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:pullpay_subscriptions"`

	ID           string `grove:"id,pk"`
	ProductID    int64  `grove:"product_id"`
	Subscriber   string `grove:"subscriber"`
	Email        string `grove:"email"`
	Status       string `grove:"status"`
	Seq          int64  `grove:"seq"`
	NextChargeAt int64  `grove:"next_charge_at"`
	Failures     int    `grove:"failures"`
	EndedAt      *int64 `grove:"ended_at"`
	CreatedAt    int64  `grove:"created_at"`
	UpdatedAt    int64  `grove:"updated_at"`
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	var ended *time.Time
	if m.EndedAt != nil {
		t := fromUnix(*m.EndedAt)
		ended = &t
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: fromUnix(m.CreatedAt),
			UpdatedAt: fromUnix(m.UpdatedAt),
		},
		ID:           subID,
		ProductID:    id.ProductID(m.ProductID), //nolint:gosec // rowids are positive
		Subscriber:   m.Subscriber,
		Email:        m.Email,
		Status:       subscription.Status(m.Status),
		Seq:          m.Seq,
		NextChargeAt: fromUnix(m.NextChargeAt),
		Failures:     m.Failures,
		EndedAt:      ended,
	}, nil
}

// ==================== Charge models ====================

type chargeModel struct {
	grove.BaseModel `grove:"table:pullpay_charges"`

	ID             string `grove:"id,pk"`
	ProductID      int64  `grove:"product_id"`
	SubscriptionID string `grove:"subscription_id"`
	Subscriber     string `grove:"subscriber"`
	Amount         string `grove:"amount"`
	Token          string `grove:"token"`
	ChargedAt      int64  `grove:"charged_at"`
	Email          string `grove:"email"`
	TxRef          string `grove:"tx_ref"`
	RunID          string `grove:"run_id"`
	RecordedAt     int64  `grove:"recorded_at"`
}

func toChargeModel(c *charge.Charge) *chargeModel {
	m := &chargeModel{
		ID:             c.ID.String(),
		ProductID:      int64(c.ProductID), //nolint:gosec // product ids fit int64
		SubscriptionID: c.SubscriptionID.String(),
		Subscriber:     c.Subscriber,
		Amount:         c.Amount.String(),
		Token:          c.Token,
		ChargedAt:      unix(c.ChargedAt),
		Email:          c.Email,
		TxRef:          c.TxRef,
		RecordedAt:     unix(c.RecordedAt),
	}
	if !c.RunID.IsNil() {
		m.RunID = c.RunID.String()
	}
	return m
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
		ProductID:      id.ProductID(m.ProductID), //nolint:gosec // rowids are positive
		SubscriptionID: subID,
		Subscriber:     m.Subscriber,
		Amount:         amount,
		Token:          m.Token,
		ChargedAt:      fromUnix(m.ChargedAt),
		Email:          m.Email,
		TxRef:          m.TxRef,
		RecordedAt:     fromUnix(m.RecordedAt),
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

	ID        string `grove:"id,pk"`
	ProductID int64  `grove:"product_id"`
	Owner     string `grove:"owner"`
	Amount    string `grove:"amount"`
	TxRef     string `grove:"tx_ref"`
	CreatedAt int64  `grove:"created_at"`
}

func toWithdrawalModel(w *withdrawal.Withdrawal) *withdrawalModel {
	return &withdrawalModel{
		ID:        w.ID.String(),
		ProductID: int64(w.ProductID), //nolint:gosec // product ids fit int64
		Owner:     w.Owner,
		Amount:    w.Amount.String(),
		TxRef:     w.TxRef,
		CreatedAt: unix(w.CreatedAt),
	}
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
		ProductID: id.ProductID(m.ProductID), //nolint:gosec // rowids are positive
		Owner:     m.Owner,
		Amount:    amount,
		TxRef:     m.TxRef,
		CreatedAt: fromUnix(m.CreatedAt),
	}, nil
}
