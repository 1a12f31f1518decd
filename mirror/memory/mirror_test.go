package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/mirror/memory"
	"github.com/xraph/pullpay/payment"
	"github.com/xraph/pullpay/types"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func record(productID id.ProductID, subscriber string, at time.Duration) *payment.Record {
	return &payment.Record{
		ChargeID:   id.NewChargeID(),
		ProductID:  productID,
		Subscriber: subscriber,
		ChargedAt:  t0.Add(at),
		Amount:     types.NewAmount(5),
		Token:      "0xUSD",
	}
}

func TestQueryOrder(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	// Appended out of order.
	in := []*payment.Record{
		record(1, "0xB", 600*time.Second),
		record(1, "0xB", 0),
		record(1, "0xA", 600*time.Second),
		record(2, "0xA", 0),
		record(1, "0xA", 0),
	}
	for _, r := range in {
		if err := m.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := m.QueryByProduct(ctx, 1, payment.QueryOpts{})
	if err != nil {
		t.Fatalf("QueryByProduct: %v", err)
	}
	want := []struct {
		sub string
		at  time.Duration
	}{{"0xA", 0}, {"0xB", 0}, {"0xA", 600 * time.Second}, {"0xB", 600 * time.Second}}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Subscriber != w.sub || !got[i].ChargedAt.Equal(t0.Add(w.at)) {
			t.Errorf("record %d: got %s@%v, want %s@%v", i, got[i].Subscriber, got[i].ChargedAt, w.sub, t0.Add(w.at))
		}
	}
}

func TestAppendIdempotent(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	r := record(1, "0xA", 0)

	for i := 0; i < 3; i++ {
		if err := m.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 record, got %d", m.Len())
	}
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	for i := 0; i < 5; i++ {
		_ = m.Append(ctx, record(1, "0xA", time.Duration(i)*time.Minute))
		_ = m.Append(ctx, record(1, "0xB", time.Duration(i)*time.Minute))
	}

	tests := []struct {
		name string
		opts payment.QueryOpts
		want int
	}{
		{"all", payment.QueryOpts{}, 10},
		{"subscriber", payment.QueryOpts{Subscriber: "0xA"}, 5},
		{"since", payment.QueryOpts{Since: t0.Add(3 * time.Minute)}, 4},
		{"until", payment.QueryOpts{Until: t0.Add(time.Minute)}, 2},
		{"page", payment.QueryOpts{Offset: 8, Limit: 5}, 2},
		{"limit", payment.QueryOpts{Subscriber: "0xB", Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.QueryByProduct(ctx, 1, tt.opts)
			if err != nil {
				t.Fatalf("QueryByProduct: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d, got %d", tt.want, len(got))
			}
		})
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	keep := record(2, "0xA", time.Minute)
	_ = m.Append(ctx, record(1, "0xA", 0))
	_ = m.Append(ctx, keep)
	_ = m.Append(ctx, record(1, "0xB", 0))

	if err := m.Reset(ctx, 1); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if got, _ := m.QueryByProduct(ctx, 1, payment.QueryOpts{}); len(got) != 0 {
		t.Errorf("expected product 1 empty, got %d", len(got))
	}
	got, _ := m.QueryByProduct(ctx, 2, payment.QueryOpts{})
	if len(got) != 1 || got[0].ChargeID != keep.ChargeID {
		t.Fatalf("product 2 damaged by reset: %+v", got)
	}

	// The kept record is still deduplicated after compaction.
	_ = m.Append(ctx, keep)
	if m.Len() != 1 {
		t.Errorf("expected 1 record, got %d", m.Len())
	}
}
