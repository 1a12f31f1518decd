package pullpay_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/payment"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/store/memory"
	"github.com/xraph/pullpay/subscription"
	"github.com/xraph/pullpay/token/memtoken"
	"github.com/xraph/pullpay/types"
)

const (
	usd    = "0xUSD"
	escrow = "0xEscrow"
	owner  = "0xOwner"
	alice  = "0xAlice"
	bob    = "0xBob"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epoch.Add(d)
}

type harness struct {
	engine *pullpay.Engine
	store  *memory.Store
	tokens *memtoken.Ledger
	clock  *fakeClock
}

func newHarness(t *testing.T, opts ...pullpay.Option) *harness {
	t.Helper()
	return newWrappedHarness(t, nil, opts...)
}

// newWrappedHarness builds a harness whose engine sees wrap(store) instead
// of the memory store itself.
func newWrappedHarness(t *testing.T, wrap func(*memory.Store) store.Store, opts ...pullpay.Option) *harness {
	t.Helper()

	h := &harness{
		store:  memory.New(),
		tokens: memtoken.New(escrow),
		clock:  &fakeClock{now: epoch},
	}
	opts = append([]pullpay.Option{
		pullpay.WithClock(h.clock.Now),
		pullpay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	var s store.Store = h.store
	if wrap != nil {
		s = wrap(h.store)
	}
	h.engine = pullpay.New(s, h.tokens, opts...)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.engine.Stop() })
	return h
}

func (h *harness) product(t *testing.T, cost int64, period time.Duration) *product.Product {
	t.Helper()
	p := &product.Product{
		Owner:  owner,
		Cost:   types.NewAmount(cost),
		Token:  usd,
		Period: period,
	}
	if err := h.engine.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

// fund mints balance to the subscriber and authorizes the escrow for allowance.
func (h *harness) fund(subscriber string, balance, allowance int64) {
	h.tokens.Mint(usd, subscriber, types.NewAmount(balance))
	h.tokens.Approve(usd, subscriber, escrow, types.NewAmount(allowance))
}

func (h *harness) subscribe(t *testing.T, productID id.ProductID, subscriber string) *subscription.Subscription {
	t.Helper()
	sub, err := h.engine.Subscribe(context.Background(), productID, subscriber, subscriber+"@example.com")
	if err != nil {
		t.Fatalf("Subscribe(%s): %v", subscriber, err)
	}
	return sub
}

func (h *harness) process(t *testing.T, productID id.ProductID) *pullpay.ProcessResult {
	t.Helper()
	res, err := h.engine.ProcessDue(context.Background(), productID)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	return res
}

func (h *harness) balance(t *testing.T, productID id.ProductID) types.Amount {
	t.Helper()
	p, err := h.engine.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	return p.Balance
}

func (h *harness) nextChargeAt(t *testing.T, productID id.ProductID, subscriber string) time.Time {
	t.Helper()
	sub, err := h.engine.GetSubscription(context.Background(), productID, subscriber)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	return sub.NextChargeAt
}

func (h *harness) assertReconciled(t *testing.T, productID id.ProductID) {
	t.Helper()
	r, err := h.engine.Reconcile(context.Background(), productID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !r.Consistent {
		t.Fatalf("balance %v != charged %v - withdrawn %v", r.Balance, r.Charged, r.Withdrawn)
	}
}

func TestCreateProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.product(t, 5, 10*time.Minute)
	second := h.product(t, 7, time.Hour)
	if first.ID != 1 || second.ID != 2 {
		t.Errorf("expected sequential ids 1,2; got %d,%d", first.ID, second.ID)
	}
	if !first.Balance.IsZero() {
		t.Errorf("new product balance: %v", first.Balance)
	}

	tests := []struct {
		name  string
		p     product.Product
		field string
	}{
		{"zero cost", product.Product{Owner: owner, Token: usd, Cost: types.NewAmount(0), Period: time.Minute}, "cost"},
		{"negative cost", product.Product{Owner: owner, Token: usd, Cost: types.NewAmount(-1), Period: time.Minute}, "cost"},
		{"zero period", product.Product{Owner: owner, Token: usd, Cost: types.NewAmount(1)}, "period"},
		{"fractional period", product.Product{Owner: owner, Token: usd, Cost: types.NewAmount(1), Period: 1500 * time.Millisecond}, "period"},
		{"period too long", product.Product{Owner: owner, Token: usd, Cost: types.NewAmount(1), Period: pullpay.MaxPeriod + time.Second}, "period"},
		{"no token", product.Product{Owner: owner, Cost: types.NewAmount(1), Period: time.Minute}, "token"},
		{"no owner", product.Product{Token: usd, Cost: types.NewAmount(1), Period: time.Minute}, "owner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			err := h.engine.CreateProduct(ctx, &p)
			if !errors.Is(err, pullpay.ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
			var verr pullpay.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}

	list, err := h.engine.ListProducts(ctx, product.ListOpts{})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("rejected products were stored: %d", len(list))
	}
}

// cost=5, period=600s, enroll at t=0.
func TestBillingCadence(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 5, 600*time.Second)
	h.fund(alice, 100, 100)
	sub := h.subscribe(t, p.ID, alice)

	if !sub.NextChargeAt.Equal(epoch) || sub.Status != subscription.StatusPending {
		t.Fatalf("enrollment: next=%v status=%s", sub.NextChargeAt, sub.Status)
	}

	res := h.process(t, p.ID)
	if res.Charged != 1 {
		t.Fatalf("t=0: expected 1 charge, got %d", res.Charged)
	}
	if got := h.balance(t, p.ID); !got.Equal(types.NewAmount(5)) {
		t.Errorf("t=0: balance %v, want 5", got)
	}
	if got := h.nextChargeAt(t, p.ID, alice); !got.Equal(epoch.Add(600 * time.Second)) {
		t.Errorf("t=0: next %v, want +600s", got)
	}

	h.clock.Set(300 * time.Second)
	res = h.process(t, p.ID)
	if res.Charged != 0 || res.Skipped != 1 {
		t.Errorf("t=300: expected no-op, got charged=%d skipped=%d", res.Charged, res.Skipped)
	}
	if got := h.balance(t, p.ID); !got.Equal(types.NewAmount(5)) {
		t.Errorf("t=300: balance %v, want 5", got)
	}

	h.clock.Set(600 * time.Second)
	res = h.process(t, p.ID)
	if res.Charged != 1 {
		t.Fatalf("t=600: expected 1 charge, got %d", res.Charged)
	}
	if got := h.balance(t, p.ID); !got.Equal(types.NewAmount(10)) {
		t.Errorf("t=600: balance %v, want 10", got)
	}
	if got := h.nextChargeAt(t, p.ID, alice); !got.Equal(epoch.Add(1200 * time.Second)) {
		t.Errorf("t=600: next %v, want +1200s", got)
	}
	if got := h.tokens.BalanceOf(usd, alice); !got.Equal(types.NewAmount(90)) {
		t.Errorf("subscriber wallet %v, want 90", got)
	}

	h.assertReconciled(t, p.ID)
}

func TestProcessDueIdempotent(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 5, time.Minute)
	h.fund(alice, 100, 100)
	h.fund(bob, 100, 100)
	h.subscribe(t, p.ID, alice)
	h.subscribe(t, p.ID, bob)

	first := h.process(t, p.ID)
	if first.Charged != 2 {
		t.Fatalf("first run: expected 2 charges, got %d", first.Charged)
	}
	before := h.balance(t, p.ID)

	second := h.process(t, p.ID)
	if second.Charged != 0 || second.Failed != 0 || second.Evicted != 0 {
		t.Errorf("second run changed state: %+v", second)
	}
	if after := h.balance(t, p.ID); !after.Equal(before) {
		t.Errorf("balance changed: %v -> %v", before, after)
	}

	records, _ := h.engine.QueryPayments(context.Background(), p.ID, payment.QueryOpts{})
	if len(records) != 2 {
		t.Errorf("expected 2 mirrored payments, got %d", len(records))
	}
}

func TestFailureIsolation(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 5, time.Minute)
	h.fund(alice, 100, 100)
	h.fund(bob, 100, 100)
	h.subscribe(t, p.ID, alice)
	h.subscribe(t, p.ID, bob)

	// Alice revokes her allowance after enrolling.
	h.tokens.Approve(usd, alice, escrow, types.NewAmount(0))

	res := h.process(t, p.ID)
	if res.Charged != 1 || res.Evicted != 1 {
		t.Fatalf("expected bob charged and alice evicted, got %+v", res)
	}
	if res.Outcomes[0].Subscriber != alice || res.Outcomes[0].ErrorKind != pullpay.KindInsufficientAuthorization {
		t.Errorf("unexpected first outcome: %+v", res.Outcomes[0])
	}
	if got := h.nextChargeAt(t, p.ID, bob); !got.Equal(epoch.Add(time.Minute)) {
		t.Errorf("bob next %v", got)
	}

	if _, err := h.engine.GetSubscription(context.Background(), p.ID, alice); !pullpay.IsNotFound(err) {
		t.Errorf("evicted subscription still billable: %v", err)
	}
	subs, _ := h.engine.ListSubscriptions(context.Background(), p.ID, subscription.ListOpts{Status: subscription.StatusEvicted})
	if len(subs) != 1 || !subs[0].NextChargeAt.Equal(epoch) {
		t.Errorf("eviction must not advance next charge: %+v", subs)
	}

	records, _ := h.engine.QueryPayments(context.Background(), p.ID, payment.QueryOpts{})
	if len(records) != 1 || records[0].Subscriber != bob {
		t.Errorf("expected only bob mirrored, got %+v", records)
	}
	h.assertReconciled(t, p.ID)
}

func TestRetryBeforeEviction(t *testing.T) {
	h := newHarness(t, pullpay.WithEvictAfter(3))
	p := h.product(t, 5, time.Minute)
	h.fund(alice, 0, 100) // authorized, but an empty wallet
	h.subscribe(t, p.ID, alice)

	for run := 1; run <= 2; run++ {
		res := h.process(t, p.ID)
		if res.Failed != 1 || res.Evicted != 0 {
			t.Fatalf("run %d: expected retryable failure, got %+v", run, res)
		}
		sub, err := h.engine.GetSubscription(context.Background(), p.ID, alice)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if sub.Failures != run || !sub.NextChargeAt.Equal(epoch) {
			t.Errorf("run %d: failures=%d next=%v", run, sub.Failures, sub.NextChargeAt)
		}
	}

	// Funds arrive before the third attempt: counter resets.
	h.tokens.Mint(usd, alice, types.NewAmount(5))
	res := h.process(t, p.ID)
	if res.Charged != 1 {
		t.Fatalf("expected charge after top-up, got %+v", res)
	}
	sub, _ := h.engine.GetSubscription(context.Background(), p.ID, alice)
	if sub.Failures != 0 || sub.Status != subscription.StatusActive {
		t.Errorf("after success: failures=%d status=%s", sub.Failures, sub.Status)
	}
}

func TestTransportFailureLeavesCounter(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 5, time.Minute)
	h.fund(alice, 100, 100)
	h.subscribe(t, p.ID, alice)

	h.tokens.Fail(alice, errors.New("rpc unavailable"))
	res := h.process(t, p.ID)
	if res.Failed != 1 || res.Evicted != 0 {
		t.Fatalf("expected one non-evicting failure, got %+v", res)
	}
	sub, _ := h.engine.GetSubscription(context.Background(), p.ID, alice)
	if sub.Failures != 0 {
		t.Errorf("transport failure counted toward eviction: %d", sub.Failures)
	}

	h.tokens.Fail(alice, nil)
	if res := h.process(t, p.ID); res.Charged != 1 {
		t.Errorf("expected retry to charge, got %+v", res)
	}
}

func TestCatchUp(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		wantRun  int
		wantNext time.Duration
	}{
		{"capped at one", 1, 1, 1 * time.Minute},
		{"catch up three", 3, 3, 3 * time.Minute},
		{"catch up beyond due", 10, 4, 4 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, pullpay.WithMaxChargesPerRun(tt.max))
			p := h.product(t, 5, time.Minute)
			h.fund(alice, 1000, 1000)
			h.subscribe(t, p.ID, alice)

			// Slots at 0,1,2,3 minutes are due at 3m30s.
			h.clock.Set(3*time.Minute + 30*time.Second)
			res := h.process(t, p.ID)
			if res.Charged != tt.wantRun {
				t.Errorf("charged %d, want %d", res.Charged, tt.wantRun)
			}
			if got := h.nextChargeAt(t, p.ID, alice); !got.Equal(epoch.Add(tt.wantNext)) {
				t.Errorf("next %v, want %v", got, epoch.Add(tt.wantNext))
			}

			records, _ := h.engine.QueryPayments(context.Background(), p.ID, payment.QueryOpts{})
			for i := 1; i < len(records); i++ {
				if gap := records[i].ChargedAt.Sub(records[i-1].ChargedAt); gap < p.Period {
					t.Errorf("charges %v apart, closer than period", gap)
				}
			}
			h.assertReconciled(t, p.ID)
		})
	}
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product(t, 5, time.Minute)
	h.fund(alice, 100, 100)
	h.subscribe(t, p.ID, alice)

	if _, err := h.engine.Subscribe(ctx, p.ID, alice, ""); !errors.Is(err, pullpay.ErrAlreadySubscribed) {
		t.Errorf("expected ErrAlreadySubscribed, got %v", err)
	}
	subs, _ := h.engine.ListSubscriptions(ctx, p.ID, subscription.ListOpts{})
	if len(subs) != 1 {
		t.Errorf("duplicate subscription created: %d", len(subs))
	}

	if _, err := h.engine.Subscribe(ctx, 42, alice, ""); !errors.Is(err, pullpay.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}

	h.fund(bob, 100, 4) // allowance below one period's cost
	if _, err := h.engine.Subscribe(ctx, p.ID, bob, ""); !errors.Is(err, pullpay.ErrInsufficientAuthorization) {
		t.Errorf("expected ErrInsufficientAuthorization, got %v", err)
	}

	if _, err := h.engine.Subscribe(ctx, p.ID, " ", ""); !errors.Is(err, pullpay.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product(t, 5, time.Minute)
	h.fund(alice, 100, 100)
	h.subscribe(t, p.ID, alice)
	h.process(t, p.ID)

	sub, err := h.engine.Unsubscribe(ctx, p.ID, alice)
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if sub.Status != subscription.StatusCanceled || sub.EndedAt == nil {
		t.Errorf("unexpected subscription: %+v", sub)
	}

	h.clock.Set(time.Hour)
	if res := h.process(t, p.ID); res.Charged != 0 {
		t.Errorf("canceled subscription charged: %+v", res)
	}
	if _, err := h.engine.Unsubscribe(ctx, p.ID, alice); !errors.Is(err, pullpay.ErrNotSubscribed) {
		t.Errorf("expected ErrNotSubscribed, got %v", err)
	}

	// History stays attributable and the pair can enroll again.
	records, _ := h.engine.QueryPayments(ctx, p.ID, payment.QueryOpts{Subscriber: alice})
	if len(records) != 1 {
		t.Errorf("expected history kept, got %d", len(records))
	}
	again := h.subscribe(t, p.ID, alice)
	if again.ID == sub.ID {
		t.Error("re-subscribe reused the canceled subscription")
	}
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product(t, 5, time.Minute)
	h.fund(alice, 100, 100)
	h.subscribe(t, p.ID, alice)
	h.process(t, p.ID)

	if _, err := h.engine.Withdraw(ctx, p.ID, owner, types.NewAmount(6)); !errors.Is(err, pullpay.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := h.balance(t, p.ID); !got.Equal(types.NewAmount(5)) {
		t.Errorf("failed withdrawal changed balance: %v", got)
	}

	if _, err := h.engine.Withdraw(ctx, p.ID, alice, types.NewAmount(1)); !errors.Is(err, pullpay.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.Withdraw(ctx, p.ID, owner, types.NewAmount(0)); !errors.Is(err, pullpay.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}

	w, err := h.engine.Withdraw(ctx, p.ID, owner, types.NewAmount(3))
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if w.TxRef == "" {
		t.Error("withdrawal missing tx ref")
	}
	if got := h.balance(t, p.ID); !got.Equal(types.NewAmount(2)) {
		t.Errorf("balance %v, want 2", got)
	}
	if got := h.tokens.BalanceOf(usd, owner); !got.Equal(types.NewAmount(3)) {
		t.Errorf("owner wallet %v, want 3", got)
	}
	h.assertReconciled(t, p.ID)
}

func TestRebuildMirror(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product(t, 5, time.Minute)
	h.fund(alice, 100, 100)
	h.fund(bob, 100, 100)
	h.subscribe(t, p.ID, alice)
	h.subscribe(t, p.ID, bob)
	for i := 0; i < 3; i++ {
		h.clock.Set(time.Duration(i) * time.Minute)
		h.process(t, p.ID)
	}

	before, _ := h.engine.QueryPayments(ctx, p.ID, payment.QueryOpts{})
	if len(before) != 6 {
		t.Fatalf("expected 6 records, got %d", len(before))
	}

	// Simulate loss of the projection.
	_ = h.engine.Mirror().Reset(ctx, p.ID)
	if lost, _ := h.engine.QueryPayments(ctx, p.ID, payment.QueryOpts{}); len(lost) != 0 {
		t.Fatalf("reset left %d records", len(lost))
	}

	n, err := h.engine.RebuildMirror(ctx, p.ID)
	if err != nil {
		t.Fatalf("RebuildMirror: %v", err)
	}
	if n != 6 {
		t.Errorf("replayed %d, want 6", n)
	}

	after, _ := h.engine.QueryPayments(ctx, p.ID, payment.QueryOpts{})
	if len(after) != len(before) {
		t.Fatalf("rebuilt %d records, want %d", len(after), len(before))
	}
	sum := types.Amount{}
	for i := range after {
		if after[i].ChargeID != before[i].ChargeID {
			t.Errorf("record %d differs after rebuild", i)
		}
		sum = sum.Add(after[i].Amount)
	}
	if !sum.Equal(h.balance(t, p.ID)) {
		t.Errorf("mirror sum %v != balance %v", sum, h.balance(t, p.ID))
	}

	if n, err := h.engine.SyncMirror(ctx); err != nil || n != 6 {
		t.Errorf("SyncMirror: n=%d err=%v", n, err)
	}
	if again, _ := h.engine.QueryPayments(ctx, p.ID, payment.QueryOpts{}); len(again) != 6 {
		t.Errorf("sync duplicated records: %d", len(again))
	}
}

func TestProcessAll(t *testing.T) {
	h := newHarness(t, pullpay.WithConcurrency(2))
	var products []*product.Product
	for i := 0; i < 5; i++ {
		products = append(products, h.product(t, int64(i+1), time.Minute))
	}
	h.fund(alice, 1000, 1000)
	for _, p := range products {
		h.subscribe(t, p.ID, alice)
	}

	sum, err := h.engine.ProcessAll(context.Background())
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if sum.Charged != 5 || len(sum.Products) != 5 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if !sum.Collected.Equal(types.NewAmount(15)) {
		t.Errorf("collected %v, want 15", sum.Collected)
	}
	for _, p := range products {
		h.assertReconciled(t, p.ID)
	}
}

func TestConcurrentProcessNeverDoubleCharges(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 5, time.Minute)
	subscribers := []string{"0x01", "0x02", "0x03", "0x04", "0x05", "0x06", "0x07", "0x08"}
	for _, s := range subscribers {
		h.fund(s, 100, 100)
		h.subscribe(t, p.ID, s)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.ProcessDue(context.Background(), p.ID); err != nil {
				t.Errorf("ProcessDue: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := h.balance(t, p.ID); !got.Equal(types.NewAmount(5 * int64(len(subscribers)))) {
		t.Errorf("balance %v, want %d", got, 5*len(subscribers))
	}
	for _, s := range subscribers {
		if got := h.tokens.BalanceOf(usd, s); !got.Equal(types.NewAmount(95)) {
			t.Errorf("%s charged more than once: wallet %v", s, got)
		}
	}
	h.assertReconciled(t, p.ID)
}

func TestProcessDueCanceled(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 5, time.Minute)
	h.fund(alice, 100, 100)
	h.subscribe(t, p.ID, alice)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled context fails lock acquisition for the snapshot.
	if _, err := h.engine.ProcessDue(ctx, p.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := h.balance(t, p.ID); !got.IsZero() {
		t.Errorf("canceled run charged: %v", got)
	}

	if res := h.process(t, p.ID); res.Charged != 1 {
		t.Errorf("resumed run: expected 1 charge, got %+v", res)
	}
}

func TestQueryPaymentsUnknownProduct(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.QueryPayments(context.Background(), 7, payment.QueryOpts{}); !errors.Is(err, pullpay.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := h.engine.ProcessDue(context.Background(), 7); !errors.Is(err, pullpay.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}
