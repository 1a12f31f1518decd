package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/payment"
	"github.com/xraph/pullpay/types"
)

type paymentModel struct {
	grove.BaseModel `grove:"table:pullpay_payments"`

	ChargeID   string    `grove:"id,pk"      bson:"_id"`
	ProductID  int64     `grove:"product_id" bson:"product_id"`
	Subscriber string    `grove:"subscriber" bson:"subscriber"`
	ChargedAt  time.Time `grove:"charged_at" bson:"charged_at"`
	Amount     string    `grove:"amount"     bson:"amount"`
	Token      string    `grove:"token"      bson:"token"`
	Email      *string   `grove:"email"      bson:"email"`
}

func toPaymentModel(r *payment.Record) *paymentModel {
	return &paymentModel{
		ChargeID:   r.ChargeID.String(),
		ProductID:  int64(r.ProductID), //nolint:gosec // product ids fit int64
		Subscriber: r.Subscriber,
		ChargedAt:  r.ChargedAt.UTC(),
		Amount:     r.Amount.String(),
		Token:      r.Token,
		Email:      r.Email,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Record, error) {
	chargeID, err := id.ParseChargeID(m.ChargeID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}

	return &payment.Record{
		ChargeID:   chargeID,
		ProductID:  id.ProductID(m.ProductID), //nolint:gosec // product ids are positive
		Subscriber: m.Subscriber,
		ChargedAt:  m.ChargedAt.UTC(),
		Amount:     amount,
		Token:      m.Token,
		Email:      m.Email,
	}, nil
}
