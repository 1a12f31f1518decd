package api

import (
	"net/http"

	"github.com/xraph/pullpay"
)

func (h *Handler) processProduct(w http.ResponseWriter, r *http.Request) {
	pid, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.engine.ProcessDue(r.Context(), pid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type processAllResponse struct {
	*pullpay.Summary
	Errors []errorDetail `json:"errors,omitempty"`
}

// processAll reports product-level failures next to the summary; the run
// itself only fails when the product list cannot be read.
func (h *Handler) processAll(w http.ResponseWriter, r *http.Request) {
	sum, err := h.engine.ProcessAll(r.Context())
	if sum == nil {
		h.writeError(w, r, err)
		return
	}

	resp := processAllResponse{Summary: sum}
	if err != nil {
		h.logger.Warn("billing run finished with errors", "error", err)
		for _, e := range unwrapAll(err) {
			resp.Errors = append(resp.Errors, errorDetail{Kind: pullpay.Kind(e), Message: e.Error()})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func unwrapAll(err error) []error {
	if m, ok := err.(interface{ Unwrap() []error }); ok { //nolint:errorlint // flattening one level
		return m.Unwrap()
	}
	return []error{err}
}
