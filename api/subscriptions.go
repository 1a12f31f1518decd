package api

import (
	"net/http"
	"time"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/payment"
	"github.com/xraph/pullpay/subscription"
)

type subscribeRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	pid, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req subscribeRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	sub, err := h.engine.Subscribe(r.Context(), pid, callerFrom(r), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	pid, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sub, err := h.engine.Unsubscribe(r.Context(), pid, callerFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	pid, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	opts := subscription.ListOpts{
		Status: subscription.Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	subs, err := h.engine.ListSubscriptions(r.Context(), pid, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []*subscription.Subscription{}
	}

	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) queryPayments(w http.ResponseWriter, r *http.Request) {
	pid, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	opts := payment.QueryOpts{
		Subscriber: q.Get("subscriber"),
		Limit:      limit,
		Offset:     offset,
	}
	if opts.Since, err = timeParam(q.Get("since"), "since"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if opts.Until, err = timeParam(q.Get("until"), "until"); err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := h.engine.QueryPayments(r.Context(), pid, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*payment.Record{}
	}

	writeJSON(w, http.StatusOK, records)
}

func timeParam(v, field string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, pullpay.ValidationError{Field: field, Message: "must be an RFC 3339 timestamp"}
	}
	return t, nil
}
