package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/pullpay/metadata"
	"github.com/xraph/pullpay/types"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewDevLedgerSeeds(t *testing.T) {
	cfg := &config{
		Escrow:          "escrow",
		DevSeedToken:    "0xUSD",
		DevSeedAccounts: []string{"0xAlice", "0xBob"},
		DevSeedAmount:   types.NewAmount(1000),
	}
	tokens := newDevLedger(cfg, discard)

	for _, account := range cfg.DevSeedAccounts {
		if got := tokens.BalanceOf("0xUSD", account); !got.Equal(types.NewAmount(1000)) {
			t.Errorf("%s balance %v, want 1000", account, got)
		}
	}
	if tokens.Operator() != "escrow" {
		t.Errorf("operator %q, want escrow", tokens.Operator())
	}
}

func TestNewResolverHTTPPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"label":"Internal"}`))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		cfg  config
		ok   bool
	}{
		{"default", config{}, false},
		{"http allowed, private blocked", config{MetadataHTTP: true}, false},
		{"http and private allowed", config{MetadataHTTP: true, MetadataPrivate: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newResolver(context.Background(), &tt.cfg)
			if err != nil {
				t.Fatalf("newResolver: %v", err)
			}
			_, err = r.Resolve(context.Background(), srv.URL+"/doc")
			if tt.ok && err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !tt.ok && !errors.Is(err, metadata.ErrUnresolvable) {
				t.Fatalf("expected ErrUnresolvable, got %v", err)
			}
		})
	}
}
