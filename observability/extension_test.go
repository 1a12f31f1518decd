package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/pullpay/charge"
	"github.com/xraph/pullpay/observability"
	"github.com/xraph/pullpay/subscription"
)

type fakeCounter struct{ n float64 }

func (c *fakeCounter) Inc()          { c.n++ }
func (c *fakeCounter) Add(v float64) { c.n += v }

type fakeHistogram struct{ values []float64 }

func (h *fakeHistogram) Observe(v float64) { h.values = append(h.values, v) }

type fakeFactory struct {
	counters   map[string]*fakeCounter
	histograms map[string]*fakeHistogram
}

func (f *fakeFactory) Counter(name string) observability.Counter {
	c := &fakeCounter{}
	f.counters[name] = c
	return c
}

func (f *fakeFactory) Histogram(name string) observability.Histogram {
	h := &fakeHistogram{}
	f.histograms[name] = h
	return h
}

func TestMetricsExtensionCounts(t *testing.T) {
	f := &fakeFactory{counters: map[string]*fakeCounter{}, histograms: map[string]*fakeHistogram{}}
	m := observability.NewMetricsExtension(f)
	ctx := context.Background()

	_ = m.OnCharged(ctx, &charge.Charge{})
	_ = m.OnCharged(ctx, &charge.Charge{})
	_ = m.OnChargeFailed(ctx, &subscription.Subscription{}, nil)
	_ = m.OnEvicted(ctx, &subscription.Subscription{}, nil)
	_ = m.OnProcessCompleted(ctx, 1, 2, 1, 1, 40*time.Millisecond)

	tests := []struct {
		name string
		want float64
	}{
		{"pullpay.charge.applied", 2},
		{"pullpay.charge.failed", 1},
		{"pullpay.subscription.evicted", 1},
		{"pullpay.process.runs", 1},
		{"pullpay.subscription.created", 0},
	}
	for _, tt := range tests {
		if got := f.counters[tt.name].n; got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	if got := f.histograms["pullpay.process.latency_ms"].values; len(got) != 1 || got[0] != 40 {
		t.Errorf("latency observations: %v", got)
	}
}

func TestPrometheusFactory(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	c := f.Counter("pullpay.charge.applied")
	c.Inc()
	c.Add(2)

	if same := f.Counter("pullpay.charge.applied"); same != c {
		t.Error("expected the same counter for the same name")
	}

	// A second factory on the same registry shares collectors.
	other := observability.NewPrometheusFactory(reg).Counter("pullpay.charge.applied")
	other.Inc()

	if got := testutil.ToFloat64(c.(prometheus.Counter)); got != 4 {
		t.Errorf("counter = %v, want 4", got)
	}

	f.Histogram("pullpay.process.latency_ms").Observe(12)
	if n, err := testutil.GatherAndCount(reg, "pullpay_process_latency_ms"); err != nil || n != 1 {
		t.Errorf("histogram gather: n=%d err=%v", n, err)
	}
}
