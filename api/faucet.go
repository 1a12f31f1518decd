package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/types"
)

// Faucet credits balances and allowances on a development token ledger,
// such as memtoken.Ledger.
type Faucet interface {
	Mint(tok, account string, amount types.Amount)
	Approve(tok, owner, spender string, amount types.Amount)
}

// WithFaucet mounts POST /dev/mint and POST /dev/approve over f. Never enable
// this in front of a real token.
func WithFaucet(f Faucet) Option {
	return func(h *Handler) { h.faucet = f }
}

type faucetRequest struct {
	Token    string `json:"token" validate:"required,max=128"`
	Amount   string `json:"amount" validate:"required,numeric"`
	Decimals int    `json:"decimals" validate:"min=0,max=36"`
}

type faucetResponse struct {
	Account string       `json:"account"`
	Spender string       `json:"spender,omitempty"`
	Token   string       `json:"token"`
	Amount  types.Amount `json:"amount"`
}

func (h *Handler) faucetRoutes(r chi.Router) {
	r.Use(requireCaller)
	r.Post("/mint", h.mint)
	r.Post("/approve", h.approve)
}

func (h *Handler) decodeFaucet(w http.ResponseWriter, r *http.Request) (*faucetRequest, types.Amount, bool) {
	var req faucetRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return nil, types.Amount{}, false
	}

	var (
		amount types.Amount
		err    error
	)
	if req.Decimals > 0 {
		amount, err = types.ParseUnits(req.Amount, req.Decimals)
	} else {
		amount, err = types.ParseAmount(req.Amount)
	}
	if err != nil {
		h.writeError(w, r, pullpay.ValidationError{Field: "amount", Message: err.Error()})
		return nil, types.Amount{}, false
	}
	if amount.IsNegative() {
		h.writeError(w, r, pullpay.ValidationError{Field: "amount", Message: "must not be negative"})
		return nil, types.Amount{}, false
	}
	return &req, amount, true
}

// mint credits the caller's wallet.
func (h *Handler) mint(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := h.decodeFaucet(w, r)
	if !ok {
		return
	}

	account := callerFrom(r)
	h.faucet.Mint(req.Token, account, amount)
	h.logger.Info("faucet mint", "account", account, "token", req.Token, "amount", amount.String())

	writeJSON(w, http.StatusOK, faucetResponse{Account: account, Token: req.Token, Amount: amount})
}

// approve sets the caller's allowance to the escrow, replacing any previous one.
func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := h.decodeFaucet(w, r)
	if !ok {
		return
	}

	account := callerFrom(r)
	spender := h.engine.Escrow()
	h.faucet.Approve(req.Token, account, spender, amount)
	h.logger.Info("faucet approve", "account", account, "spender", spender, "token", req.Token, "amount", amount.String())

	writeJSON(w, http.StatusOK, faucetResponse{Account: account, Spender: spender, Token: req.Token, Amount: amount})
}
