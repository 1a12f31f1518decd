package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/id"
)

const maxBodySize = 64 << 10

var errMissingCaller = fmt.Errorf("%w: missing %s header", pullpay.ErrUnauthorized, CallerHeader)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := pullpay.Kind(err)
	status := statusFor(err, kind)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		if kind == pullpay.KindInternal {
			msg = "internal error"
		}
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: msg}})
}

func statusFor(err error, kind string) int {
	switch kind {
	case pullpay.KindInvalidParameter:
		return http.StatusBadRequest
	case pullpay.KindUnauthorized:
		return http.StatusForbidden
	case pullpay.KindNotFound:
		return http.StatusNotFound
	case pullpay.KindAlreadySubscribed, pullpay.KindConflict:
		return http.StatusConflict
	case pullpay.KindInsufficientBalance, pullpay.KindInsufficientFunds, pullpay.KindInsufficientAuthorization:
		return http.StatusUnprocessableEntity
	case pullpay.KindUnresolvable:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set.
func (h *Handler) decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return pullpay.ValidationError{Field: "body", Message: err.Error()}
		}
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return pullpay.ValidationError{
				Field:   strings.ToLower(fe.Field()),
				Message: fmt.Sprintf("failed %q check", fe.Tag()),
			}
		}
		return pullpay.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

type callerKey struct{}

// requireCaller rejects requests without an X-Caller header.
func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := strings.TrimSpace(r.Header.Get(CallerHeader))
		if caller == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
				Kind:    pullpay.KindUnauthorized,
				Message: errMissingCaller.Error(),
			}})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func callerFrom(r *http.Request) string {
	caller, _ := r.Context().Value(callerKey{}).(string) //nolint:errcheck // set by requireCaller
	return caller
}

func productIDParam(r *http.Request) (id.ProductID, error) {
	pid, err := id.ParseProductID(chi.URLParam(r, "productID"))
	if err != nil {
		return 0, pullpay.ValidationError{Field: "product_id", Message: err.Error()}
	}
	return pid, nil
}

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func intParam(v, field string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, pullpay.ValidationError{Field: field, Message: "must be a non-negative integer"}
	}
	return n, nil
}
