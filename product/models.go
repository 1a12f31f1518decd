// Package product defines the billable product: a price in a fungible token,
// charged once per period, accumulating a withdrawable balance.
package product

import (
	"time"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/types"
)

// Preset billing periods offered by the dashboard.
const (
	Every10Minutes = 10 * time.Minute
	Daily          = 24 * time.Hour
	Weekly         = 7 * Daily
	Every30Days    = 30 * Daily
)

// Product is a recurring price owned by a creator.
//
// Balance is derived by the store from the charge and withdrawal journals and
// is populated on every read; it is ignored on create.
type Product struct {
	types.Entity
	ID          id.ProductID  `json:"id"`
	Owner       string        `json:"owner"`
	Cost        types.Amount  `json:"cost"`
	Token       string        `json:"token"`
	Period      time.Duration `json:"period"`
	Balance     types.Amount  `json:"balance"`
	MetadataRef string        `json:"metadata_ref,omitempty"`
}

// PeriodSeconds returns the billing period in whole seconds.
func (p *Product) PeriodSeconds() int64 {
	return int64(p.Period / time.Second)
}
