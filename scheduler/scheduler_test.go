package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/scheduler"
)

type fakeProcessor struct {
	runs atomic.Int32
	err  error
}

func (f *fakeProcessor) ProcessAll(ctx context.Context) (*pullpay.Summary, error) {
	f.runs.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("run without deadline")
	}
	return &pullpay.Summary{Charged: 2}, f.err
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{"default", "", false},
		{"six fields", "*/10 * * * * *", false},
		{"descriptor", "@every 30s", false},
		{"five fields", "* * * * *", true},
		{"garbage", "whenever", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scheduler.New(&fakeProcessor{}, tt.spec, scheduler.WithLogger(discard))
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) err = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}

	if _, err := scheduler.New(nil, ""); err == nil {
		t.Error("expected error for nil processor")
	}
}

func TestRunOnce(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("store down")}

	var hookErr error
	s, err := scheduler.New(proc, "", scheduler.WithLogger(discard),
		scheduler.WithRunHook(func(_ *pullpay.Summary, err error) { hookErr = err }),
	)
	if err != nil {
		t.Fatal(err)
	}

	sum, err := s.RunOnce(context.Background())
	if err == nil || sum.Charged != 2 {
		t.Fatalf("RunOnce = %+v, %v", sum, err)
	}
	if hookErr == nil {
		t.Error("run hook did not see the error")
	}
	if proc.runs.Load() != 1 {
		t.Errorf("runs = %d", proc.runs.Load())
	}
}

func TestScheduledRuns(t *testing.T) {
	proc := &fakeProcessor{}
	ran := make(chan struct{}, 8)

	s, err := scheduler.New(proc, "@every 1s", scheduler.WithLogger(discard),
		scheduler.WithRunHook(func(*pullpay.Summary, error) { ran <- struct{}{} }),
	)
	if err != nil {
		t.Fatal(err)
	}

	s.Start()
	if s.Next().IsZero() {
		t.Error("expected a next run after Start")
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
