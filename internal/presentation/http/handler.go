package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	domcart "github.com/Parth18062003/E-Commerce-sub000/internal/domain/cart"
	domledger "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	ledger LedgerService
	cart   CartService
	mirror MirrorReader

	log          observability.Logger
	reqCounter   observability.Counter   // http_requests_total{method,route,status}
	durHistogram observability.Histogram // http_request_duration_seconds{method,route,status}
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerCaller         = "X-Caller-Service"
)

type Option func(*Handler)

// WithLedger mounts the ledger management routes.
func WithLedger(svc LedgerService) Option { return func(h *Handler) { h.ledger = svc } }

// WithCart mounts the cart routes.
func WithCart(svc CartService) Option { return func(h *Handler) { h.cart = svc } }

// WithMirror mounts the read-only mirrored stock routes.
func WithMirror(r MirrorReader) Option { return func(h *Handler) { h.mirror = r } }

func NewHandler(tel observability.Observability, opts ...Option) *Handler {
	tel = observability.OrNop(tel)
	m := tel.Metrics()
	h := &Handler{
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		reqCounter:   m.Counter(observability.MHTTPRequests),
		durHistogram: m.Histogram(observability.MHTTPRequestDuration),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → request logger → HTTP metrics → access log → handler
	if h.ledger != nil {
		h.ledgerRoutes(mux)
	}
	if h.cart != nil {
		h.cartRoutes(mux)
	}
	if h.mirror != nil {
		h.mirrorRoutes(mux)
	}
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	wrapped := h.withTrace(
		requestLogger(h.log)(
			h.withHTTPMetrics(
				h.withAccessLog(handler),
			),
		),
	)
	mux.Handle(method+" "+route, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Store stable route template for low-cardinality labels
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), route)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by requestLogger.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("inventory.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := r.Method + " " + route
		if route == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

// withHTTPMetrics records RED-ish HTTP metrics using injected vectors.
// DO NOT new metrics inside the middleware.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeFromContext(r.Context())),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		h.reqCounter.Add(1, labels...)
		h.durHistogram.Observe(time.Since(start).Seconds(), labels...)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Reason: domledger.Reason(err)})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domledger.ErrVariantNotFound),
		errors.Is(err, domledger.ErrSizeNotFound),
		errors.Is(err, domcart.ErrNotFound),
		errors.Is(err, domcart.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domledger.ErrInvalidQuantity),
		errors.Is(err, domledger.ErrInvalidKey),
		errors.Is(err, domcart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domledger.ErrInsufficientStock),
		errors.Is(err, domledger.ErrNoReservationToRelease),
		errors.Is(err, domledger.ErrSKUInUse),
		errors.Is(err, domcart.ErrInsufficientStock),
		errors.Is(err, domcart.ErrReservationFailed):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domledger.ErrConcurrentModification),
		errors.Is(err, domcart.ErrReservationUnknown):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
