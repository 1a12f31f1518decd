package api

import (
	"net/http"
	"time"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/types"
)

type createProductRequest struct {
	// Cost in base units, or in whole tokens when Decimals is set.
	Cost          string `json:"cost" validate:"required,numeric"`
	Decimals      int    `json:"decimals" validate:"min=0,max=36"`
	Token         string `json:"token" validate:"required,max=128"`
	// Capped at pullpay.MaxPeriod so the conversion to time.Duration cannot overflow.
	PeriodSeconds int64  `json:"period_seconds" validate:"required,gt=0,max=3153600000"`
	MetadataRef   string `json:"metadata_ref" validate:"omitempty,max=2048"`
}

func (req *createProductRequest) amount() (types.Amount, error) {
	if req.Decimals > 0 {
		return types.ParseUnits(req.Cost, req.Decimals)
	}
	return types.ParseAmount(req.Cost)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	cost, err := req.amount()
	if err != nil {
		h.writeError(w, r, pullpay.ValidationError{Field: "cost", Message: err.Error()})
		return
	}

	p := &product.Product{
		Owner:       callerFrom(r),
		Cost:        cost,
		Token:       req.Token,
		Period:      time.Duration(req.PeriodSeconds) * time.Second,
		MetadataRef: req.MetadataRef,
	}
	if err := h.engine.CreateProduct(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	products, err := h.engine.ListProducts(r.Context(), product.ListOpts{
		Owner:  r.URL.Query().Get("owner"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if products == nil {
		products = []*product.Product{}
	}

	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	pid, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.engine.GetProduct(r.Context(), pid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) getMetadata(w http.ResponseWriter, r *http.Request) {
	pid, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	md, err := h.engine.ResolveMetadata(r.Context(), pid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, md)
}

type withdrawRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	pid, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req withdrawRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, err := types.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, r, pullpay.ValidationError{Field: "amount", Message: err.Error()})
		return
	}

	wd, err := h.engine.Withdraw(r.Context(), pid, callerFrom(r), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, wd)
}
