package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/api"
	"github.com/xraph/pullpay/metadata"
	"github.com/xraph/pullpay/payment"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/store/memory"
	"github.com/xraph/pullpay/token/memtoken"
	"github.com/xraph/pullpay/types"
)

const (
	usd    = "0xUSD"
	escrow = "0xEscrow"
	owner  = "0xOwner"
	alice  = "0xAlice"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type server struct {
	handler http.Handler
	engine  *pullpay.Engine
	tokens  *memtoken.Ledger
}

func newServer(t *testing.T, opts ...api.Option) *server {
	t.Helper()

	tokens := memtoken.New(escrow)
	resolver := metadata.ResolverFunc(func(_ context.Context, ref string) (*metadata.Metadata, error) {
		if ref != "ipfs://cid" {
			return nil, metadata.ErrUnresolvable
		}
		return &metadata.Metadata{Label: "Pro plan", Icon: "ipfs://icon"}, nil
	})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := pullpay.New(memory.New(), tokens,
		pullpay.WithLogger(discard),
		pullpay.WithResolver(resolver),
		pullpay.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop() })

	opts = append([]api.Option{api.WithLogger(discard)}, opts...)
	return &server{handler: api.New(engine, opts...), engine: engine, tokens: tokens}
}

func (s *server) do(t *testing.T, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if caller != "" {
		req.Header.Set(api.CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

type errorResponse struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error.Kind
}

func (s *server) createProduct(t *testing.T) *product.Product {
	t.Helper()
	w := s.do(t, http.MethodPost, "/products", owner,
		`{"cost":"5","token":"0xUSD","period_seconds":600,"metadata_ref":"ipfs://cid"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p product.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return &p
}

func TestBillingFlow(t *testing.T) {
	s := newServer(t)
	p := s.createProduct(t)
	assert.Equal(t, "1", p.ID.String())
	assert.Equal(t, owner, p.Owner)
	assert.Equal(t, 10*time.Minute, p.Period)

	s.tokens.Mint(usd, alice, types.NewAmount(100))
	s.tokens.Approve(usd, alice, escrow, types.NewAmount(100))

	w := s.do(t, http.MethodPost, "/products/1/subscriptions", alice, `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/products/1/subscriptions", alice, "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, pullpay.KindAlreadySubscribed, errorKind(t, w))

	w = s.do(t, http.MethodPost, "/products/1/process", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res pullpay.ProcessResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Charged)
	assert.Equal(t, "5", res.Collected.String())

	w = s.do(t, http.MethodGet, "/products/1/payments?subscriber=0xAlice", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var records []*payment.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, alice, records[0].Subscriber)
	require.NotNil(t, records[0].Email)
	assert.Equal(t, "alice@example.com", *records[0].Email)

	w = s.do(t, http.MethodPost, "/products/1/withdrawals", alice, `{"amount":"5"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/products/1/withdrawals", owner, `{"amount":"6"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, pullpay.KindInsufficientBalance, errorKind(t, w))

	w = s.do(t, http.MethodPost, "/products/1/withdrawals", owner, `{"amount":"5"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/products/1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got product.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Balance.IsZero())
	assert.Equal(t, "5", s.tokens.BalanceOf(usd, owner).String())

	w = s.do(t, http.MethodDelete, "/products/1/subscriptions", alice, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/products/1/subscriptions?status=canceled", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), alice)
}

func TestErrors(t *testing.T) {
	s := newServer(t)
	s.createProduct(t)

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   string
		status int
		kind   string
	}{
		{"missing caller", http.MethodPost, "/products", "", `{}`, http.StatusUnauthorized, pullpay.KindUnauthorized},
		{"unknown field", http.MethodPost, "/products", owner, `{"price":"5"}`, http.StatusBadRequest, pullpay.KindInvalidParameter},
		{"missing token", http.MethodPost, "/products", owner, `{"cost":"5","period_seconds":60}`, http.StatusBadRequest, pullpay.KindInvalidParameter},
		{"period overflow", http.MethodPost, "/products", owner, `{"cost":"5","token":"0xUSD","period_seconds":9300000000}`, http.StatusBadRequest, pullpay.KindInvalidParameter},
		{"period too long", http.MethodPost, "/products", owner, `{"cost":"5","token":"0xUSD","period_seconds":3153600001}`, http.StatusBadRequest, pullpay.KindInvalidParameter},
		{"bad product id", http.MethodGet, "/products/abc", "", "", http.StatusBadRequest, pullpay.KindInvalidParameter},
		{"unknown product", http.MethodGet, "/products/99", "", "", http.StatusNotFound, pullpay.KindNotFound},
		{"bad limit", http.MethodGet, "/products?limit=-1", "", "", http.StatusBadRequest, pullpay.KindInvalidParameter},
		{"bad since", http.MethodGet, "/products/1/payments?since=yesterday", "", "", http.StatusBadRequest, pullpay.KindInvalidParameter},
		{"no allowance", http.MethodPost, "/products/1/subscriptions", alice, "", http.StatusUnprocessableEntity, pullpay.KindInsufficientAuthorization},
		{"bad email", http.MethodPost, "/products/1/subscriptions", alice, `{"email":"nope"}`, http.StatusBadRequest, pullpay.KindInvalidParameter},
		{"not subscribed", http.MethodDelete, "/products/1/subscriptions", alice, "", http.StatusNotFound, pullpay.KindNotFound},
		{"zero withdrawal", http.MethodPost, "/products/1/withdrawals", owner, `{"amount":"0"}`, http.StatusBadRequest, pullpay.KindInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.kind, errorKind(t, w))
		})
	}
}

func TestMetadata(t *testing.T) {
	s := newServer(t)
	s.createProduct(t)

	w := s.do(t, http.MethodGet, "/products/1/metadata", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var md metadata.Metadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &md))
	assert.Equal(t, "Pro plan", md.Label)

	w = s.do(t, http.MethodPost, "/products", owner, `{"cost":"1","token":"0xUSD","period_seconds":60,"metadata_ref":"ipfs://gone"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/products/2/metadata", "", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, pullpay.KindUnresolvable, errorKind(t, w))
}

func TestCostInWholeTokens(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/products", owner, `{"cost":"2","decimals":18,"token":"0xUSD","period_seconds":86400}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p product.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "2000000000000000000", p.Cost.String())
}

func TestProcessAllAndHealth(t *testing.T) {
	s := newServer(t, api.WithBasePath("/pullpay/"))

	w := s.do(t, http.MethodGet, "/pullpay/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/pullpay/process", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sum pullpay.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 0, sum.Charged)
	assert.NotEmpty(t, sum.RunID.String())
}

func TestFaucet(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/dev/mint", alice, `{"token":"0xUSD","amount":"100"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "faucet must be opt-in")

	s.handler = api.New(s.engine, api.WithLogger(discard), api.WithFaucet(s.tokens))
	s.createProduct(t)

	w = s.do(t, http.MethodPost, "/products/1/subscriptions", alice, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPost, "/dev/mint", alice, `{"token":"0xUSD","amount":"1000","decimals":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1000", s.tokens.BalanceOf(usd, alice).String())

	w = s.do(t, http.MethodPost, "/dev/approve", alice, `{"token":"0xUSD","amount":"50"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Spender string `json:"spender"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.EqualFold(escrow, resp.Spender), resp.Spender)

	w = s.do(t, http.MethodPost, "/products/1/subscriptions", alice, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/products/1/process", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "995", s.tokens.BalanceOf(usd, alice).String())

	for _, tc := range []struct {
		name, caller, body string
		status             int
	}{
		{"no caller", "", `{"token":"0xUSD","amount":"1"}`, http.StatusUnauthorized},
		{"negative", alice, `{"token":"0xUSD","amount":"-1"}`, http.StatusBadRequest},
		{"no token", alice, `{"amount":"1"}`, http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/dev/mint", tc.caller, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}
