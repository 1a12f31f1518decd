// Package storetest is a conformance suite every store.Store implementation
// must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/types"
	"github.com/xraph/pullpay/withdrawal"
)

// T0 is the suite's reference time. Stores may keep whole seconds only.
var T0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

// Run runs the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"ProductLifecycle", testProductLifecycle},
		{"AlreadySubscribed", testAlreadySubscribed},
		{"ApplyChargeCompareAndSet", testApplyChargeCompareAndSet},
		{"ApplyChargeTerminal", testApplyChargeTerminal},
		{"ListChargesWindow", testListChargesWindow},
		{"Withdrawals", testWithdrawals},
		{"RecordChargeFailure", testRecordChargeFailure},
		{"NotFound", testNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			if err := s.Migrate(context.Background()); err != nil {
				t.Fatalf("Migrate: %v", err)
			}
			tt.fn(t, s)
		})
	}
}

func newProduct(t *testing.T, s store.Store, owner string) *product.Product {
	t.Helper()
	p := &product.Product{
		Entity:      types.NewEntityAt(T0),
		Owner:       owner,
		Cost:        types.NewAmount(5),
		Token:       "0xUSD",
		Period:      10 * time.Minute,
		MetadataRef: "ipfs://bafy",
	}
	if err := s.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

func newSubscription(t *testing.T, s store.Store, productID id.ProductID, subscriber string) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		Entity:       types.NewEntityAt(T0),
		ID:           id.NewSubscriptionID(),
		ProductID:    productID,
		Subscriber:   subscriber,
		Email:        subscriber + "@example.com",
		Status:       subscription.StatusPending,
		NextChargeAt: T0,
	}
	if err := s.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	return sub
}

func newCharge(p *product.Product, sub *subscription.Subscription, at time.Time) *charge.Charge {
	return &charge.Charge{
		ID:             id.NewChargeID(),
		ProductID:      p.ID,
		SubscriptionID: sub.ID,
		Subscriber:     sub.Subscriber,
		Amount:         p.Cost,
		Token:          p.Token,
		ChargedAt:      at,
		Email:          sub.Email,
		TxRef:          "tx-" + at.Format(time.RFC3339),
		RunID:          id.NewRunID(),
		RecordedAt:     at,
	}
}

func mustBalance(t *testing.T, s store.Store, productID id.ProductID, want int64) {
	t.Helper()
	p, err := s.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if !p.Balance.Equal(types.NewAmount(want)) {
		t.Fatalf("balance %v, want %d", p.Balance, want)
	}
}

func testProductLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []id.ProductID
	for i := 0; i < 3; i++ {
		owner := "0xOwner"
		if i == 2 {
			owner = "0xOther"
		}
		ids = append(ids, newProduct(t, s, owner).ID)
	}
	if ids[0] == 0 || ids[1] <= ids[0] || ids[2] <= ids[1] {
		t.Fatalf("product ids not increasing: %v", ids)
	}

	got, err := s.GetProduct(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Owner != "0xOwner" || got.Token != "0xUSD" || got.Period != 10*time.Minute || got.MetadataRef != "ipfs://bafy" {
		t.Errorf("product round trip: %+v", got)
	}
	if !got.Cost.Equal(types.NewAmount(5)) || !got.Balance.IsZero() {
		t.Errorf("cost %v balance %v", got.Cost, got.Balance)
	}

	page, err := s.ListProducts(ctx, product.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[1] || page[1].ID != ids[2] {
		t.Errorf("unexpected page: %+v", page)
	}

	mine, _ := s.ListProducts(ctx, product.ListOpts{Owner: "0xOther"})
	if len(mine) != 1 || mine[0].ID != ids[2] {
		t.Errorf("owner filter: %+v", mine)
	}
}

func testAlreadySubscribed(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newProduct(t, s, "0xOwner")
	first := newSubscription(t, s, p.ID, "0xAlice")
	second := newSubscription(t, s, p.ID, "0xBob")
	if second.Seq <= first.Seq {
		t.Fatalf("seq not increasing: %d <= %d", second.Seq, first.Seq)
	}

	dup := &subscription.Subscription{
		Entity:       types.NewEntityAt(T0),
		ID:           id.NewSubscriptionID(),
		ProductID:    p.ID,
		Subscriber:   "0xAlice",
		Status:       subscription.StatusPending,
		NextChargeAt: T0,
	}
	if err := s.CreateSubscription(ctx, dup); !errors.Is(err, pullpay.ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}

	active, err := s.GetActiveSubscription(ctx, p.ID, "0xAlice")
	if err != nil || active.ID != first.ID {
		t.Fatalf("GetActiveSubscription: %v %+v", err, active)
	}

	// A canceled subscription frees the pair.
	if err := s.CancelSubscription(ctx, first.ID, T0); err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	if err := s.CancelSubscription(ctx, first.ID, T0); !errors.Is(err, pullpay.ErrNotSubscribed) {
		t.Errorf("second cancel: expected ErrNotSubscribed, got %v", err)
	}
	if _, err := s.GetActiveSubscription(ctx, p.ID, "0xAlice"); !errors.Is(err, pullpay.ErrNotSubscribed) {
		t.Errorf("expected ErrNotSubscribed, got %v", err)
	}
	if err := s.CreateSubscription(ctx, dup); err != nil {
		t.Fatalf("re-subscribe after cancel: %v", err)
	}
	if dup.Seq <= second.Seq {
		t.Errorf("seq not increasing: %d <= %d", dup.Seq, second.Seq)
	}

	billable, _ := s.ListSubscriptions(ctx, p.ID, subscription.ListOpts{BillableOnly: true})
	if len(billable) != 2 || billable[0].ID != second.ID || billable[1].ID != dup.ID {
		t.Errorf("billable in enrollment order: %+v", billable)
	}
	all, _ := s.ListSubscriptions(ctx, p.ID, subscription.ListOpts{})
	if len(all) != 3 || all[0].Status != subscription.StatusCanceled || all[0].EndedAt == nil {
		t.Errorf("full list: %+v", all)
	}
}

func testApplyChargeCompareAndSet(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newProduct(t, s, "0xOwner")
	sub := newSubscription(t, s, p.ID, "0xAlice")

	c := newCharge(p, sub, T0)
	if err := s.ApplyCharge(ctx, c); err != nil {
		t.Fatalf("ApplyCharge: %v", err)
	}

	got, _ := s.GetSubscription(ctx, sub.ID)
	if !got.NextChargeAt.Equal(T0.Add(p.Period)) {
		t.Errorf("next charge: got %v", got.NextChargeAt)
	}
	if got.Status != subscription.StatusActive || got.Failures != 0 {
		t.Errorf("status %s failures %d", got.Status, got.Failures)
	}

	// Same slot again must conflict and change nothing.
	replay := newCharge(p, sub, T0)
	if err := s.ApplyCharge(ctx, replay); !errors.Is(err, pullpay.ErrChargeConflict) {
		t.Fatalf("expected ErrChargeConflict, got %v", err)
	}
	// So must a slot that is not the next one.
	ahead := newCharge(p, sub, T0.Add(2*p.Period))
	if err := s.ApplyCharge(ctx, ahead); !errors.Is(err, pullpay.ErrChargeConflict) {
		t.Fatalf("expected ErrChargeConflict, got %v", err)
	}
	mustBalance(t, s, p.ID, 5)

	next := newCharge(p, sub, T0.Add(p.Period))
	if err := s.ApplyCharge(ctx, next); err != nil {
		t.Fatalf("ApplyCharge next slot: %v", err)
	}
	mustBalance(t, s, p.ID, 10)

	charges, _ := s.ListCharges(ctx, p.ID, charge.ListOpts{})
	if len(charges) != 2 {
		t.Fatalf("expected 2 charges, got %d", len(charges))
	}
	if charges[0].ID != c.ID || charges[0].TxRef != c.TxRef || !charges[0].Amount.Equal(p.Cost) {
		t.Errorf("charge round trip: %+v", charges[0])
	}
}

func testApplyChargeTerminal(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newProduct(t, s, "0xOwner")
	sub := newSubscription(t, s, p.ID, "0xAlice")

	if err := s.CancelSubscription(ctx, sub.ID, T0); err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	if err := s.ApplyCharge(ctx, newCharge(p, sub, T0)); !errors.Is(err, pullpay.ErrChargeConflict) {
		t.Fatalf("expected ErrChargeConflict on canceled subscription, got %v", err)
	}
	mustBalance(t, s, p.ID, 0)
}

func testListChargesWindow(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newProduct(t, s, "0xOwner")
	alice := newSubscription(t, s, p.ID, "0xAlice")
	bob := newSubscription(t, s, p.ID, "0xBob")

	for i := 0; i < 3; i++ {
		at := T0.Add(time.Duration(i) * p.Period)
		for _, sub := range []*subscription.Subscription{bob, alice} {
			if err := s.ApplyCharge(ctx, newCharge(p, sub, at)); err != nil {
				t.Fatalf("ApplyCharge: %v", err)
			}
		}
	}

	all, _ := s.ListCharges(ctx, p.ID, charge.ListOpts{})
	if len(all) != 6 || all[0].Subscriber != "0xAlice" || all[1].Subscriber != "0xBob" {
		t.Fatalf("ordering by (charged_at, subscriber): %+v", all)
	}

	window, _ := s.ListCharges(ctx, p.ID, charge.ListOpts{
		Since: T0.Add(p.Period),
		Until: T0.Add(2 * p.Period),
	})
	if len(window) != 2 || !window[0].ChargedAt.Equal(T0.Add(p.Period)) {
		t.Errorf("window: %+v", window)
	}

	bobs, _ := s.ListCharges(ctx, p.ID, charge.ListOpts{Subscriber: "0xBob", Limit: 2, Offset: 1})
	if len(bobs) != 2 || !bobs[0].ChargedAt.Equal(T0.Add(p.Period)) {
		t.Errorf("subscriber page: %+v", bobs)
	}
}

func testWithdrawals(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newProduct(t, s, "0xOwner")
	sub := newSubscription(t, s, p.ID, "0xAlice")
	if err := s.ApplyCharge(ctx, newCharge(p, sub, T0)); err != nil {
		t.Fatalf("ApplyCharge: %v", err)
	}

	over := &withdrawal.Withdrawal{ID: id.NewWithdrawalID(), ProductID: p.ID, Owner: p.Owner, Amount: types.NewAmount(6), CreatedAt: T0}
	if err := s.ApplyWithdrawal(ctx, over); !errors.Is(err, pullpay.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	mustBalance(t, s, p.ID, 5)

	w := &withdrawal.Withdrawal{ID: id.NewWithdrawalID(), ProductID: p.ID, Owner: p.Owner, Amount: types.NewAmount(3), CreatedAt: T0}
	if err := s.ApplyWithdrawal(ctx, w); err != nil {
		t.Fatalf("ApplyWithdrawal: %v", err)
	}
	mustBalance(t, s, p.ID, 2)

	if err := s.SettleWithdrawal(ctx, w.ID, "tx-payout"); err != nil {
		t.Fatalf("SettleWithdrawal: %v", err)
	}
	ws, _ := s.ListWithdrawals(ctx, p.ID)
	if len(ws) != 1 || ws[0].TxRef != "tx-payout" || !ws[0].Amount.Equal(types.NewAmount(3)) {
		t.Fatalf("withdrawal journal: %+v", ws)
	}

	if err := s.RevertWithdrawal(ctx, w); err != nil {
		t.Fatalf("RevertWithdrawal: %v", err)
	}
	mustBalance(t, s, p.ID, 5)
	if ws, _ := s.ListWithdrawals(ctx, p.ID); len(ws) != 0 {
		t.Errorf("reverted withdrawal still journaled: %+v", ws)
	}
	if err := s.RevertWithdrawal(ctx, w); !errors.Is(err, pullpay.ErrNotFound) {
		t.Errorf("expected ErrNotFound reverting twice, got %v", err)
	}
	if err := s.SettleWithdrawal(ctx, w.ID, "tx"); !errors.Is(err, pullpay.ErrNotFound) {
		t.Errorf("expected ErrNotFound settling a reverted withdrawal, got %v", err)
	}
}

func testRecordChargeFailure(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newProduct(t, s, "0xOwner")
	sub := newSubscription(t, s, p.ID, "0xAlice")

	if err := s.RecordChargeFailure(ctx, sub.ID, 1, false, T0); err != nil {
		t.Fatalf("RecordChargeFailure: %v", err)
	}
	got, _ := s.GetSubscription(ctx, sub.ID)
	if got.Failures != 1 || !got.Billable() {
		t.Fatalf("after retryable failure: %+v", got)
	}

	if err := s.RecordChargeFailure(ctx, sub.ID, 2, true, T0); err != nil {
		t.Fatalf("RecordChargeFailure evict: %v", err)
	}
	got, _ = s.GetSubscription(ctx, sub.ID)
	if got.Status != subscription.StatusEvicted || got.EndedAt == nil || got.Failures != 2 {
		t.Errorf("expected evicted with end time, got %+v", got)
	}
	if !got.NextChargeAt.Equal(T0) {
		t.Errorf("eviction moved next charge: %v", got.NextChargeAt)
	}

	billable, _ := s.ListSubscriptions(ctx, p.ID, subscription.ListOpts{BillableOnly: true})
	if len(billable) != 0 {
		t.Errorf("evicted subscription still billable")
	}
	if err := s.RecordChargeFailure(ctx, sub.ID, 3, true, T0); !errors.Is(err, pullpay.ErrChargeConflict) {
		t.Errorf("expected ErrChargeConflict on terminal subscription, got %v", err)
	}
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	missingSub := id.NewSubscriptionID()

	checks := []struct {
		name string
		err  error
		want error
	}{
		{"GetProduct", func() error { _, err := s.GetProduct(ctx, 99); return err }(), pullpay.ErrProductNotFound},
		{"GetSubscription", func() error { _, err := s.GetSubscription(ctx, missingSub); return err }(), pullpay.ErrSubscriptionNotFound},
		{"CancelSubscription", s.CancelSubscription(ctx, missingSub, T0), pullpay.ErrSubscriptionNotFound},
		{"RecordChargeFailure", s.RecordChargeFailure(ctx, missingSub, 1, false, T0), pullpay.ErrSubscriptionNotFound},
		{"CreateSubscription", s.CreateSubscription(ctx, &subscription.Subscription{
			Entity: types.NewEntityAt(T0), ID: missingSub, ProductID: 99, Subscriber: "0xAlice",
			Status: subscription.StatusPending, NextChargeAt: T0,
		}), pullpay.ErrProductNotFound},
	}
	for _, c := range checks {
		if !errors.Is(c.err, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.err)
		}
		if !errors.Is(c.err, pullpay.ErrNotFound) {
			t.Errorf("%s: %v does not match ErrNotFound", c.name, c.err)
		}
	}
}
