// Package api exposes the billing engine over HTTP.
//
// Callers identify themselves with the X-Caller header; the value is the
// account that owns products, subscribes, and withdraws. Authenticating
// that header is left to whatever sits in front of this handler.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/xraph/pullpay"
)

// CallerHeader carries the caller's account.
const CallerHeader = "X-Caller"

// Handler serves the pullpay HTTP API.
type Handler struct {
	engine   *pullpay.Engine
	logger   *slog.Logger
	validate *validator.Validate
	basePath string
	faucet   Faucet
	router   chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithBasePath mounts every route under path.
func WithBasePath(path string) Option {
	return func(h *Handler) { h.basePath = strings.TrimRight(path, "/") }
}

// New builds the router over engine.
func New(engine *pullpay.Engine, opts ...Option) *Handler {
	h := &Handler{
		engine:   engine,
		logger:   slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	if h.basePath == "" {
		h.routes(r)
	} else {
		r.Route(h.basePath, h.routes)
	}
	h.router = r

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes(r chi.Router) {
	r.Get("/healthz", h.health)
	r.Post("/process", h.processAll)
	if h.faucet != nil {
		r.Route("/dev", h.faucetRoutes)
	}

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.With(requireCaller).Post("/", h.createProduct)

		r.Route("/{productID}", func(r chi.Router) {
			r.Get("/", h.getProduct)
			r.Get("/metadata", h.getMetadata)
			r.Get("/payments", h.queryPayments)
			r.Get("/subscriptions", h.listSubscriptions)
			r.Post("/process", h.processProduct)

			r.Group(func(r chi.Router) {
				r.Use(requireCaller)
				r.Post("/subscriptions", h.subscribe)
				r.Delete("/subscriptions", h.unsubscribe)
				r.Post("/withdrawals", h.withdraw)
			})
		})
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
