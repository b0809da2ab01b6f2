package httppresentation

import (
	"net/http"

	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"
	"github.com/google/uuid"
)

// pathFields are route parameters copied onto the request logger so every
// entry for one product or cart can be grepped together.
var pathFields = []struct{ param, field string }{
	{"productId", "product_id"},
	{"variantSku", "variant_sku"},
	{"cartId", "cart_id"},
}

// requestLogger puts a logger tagged with the request id, trace ids and the
// matched path parameters on the request context. The X-Request-ID header is
// echoed back, or generated when the caller sent none.
func requestLogger(base observability.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get(headerRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(headerRequestID, rid)

			fields := append([]observability.Field{observability.F("request_id", rid)},
				observability.TraceFields(r.Context())...)
			if caller := r.Header.Get(headerCaller); caller != "" {
				fields = append(fields, observability.F("caller", caller))
			}
			for _, p := range pathFields {
				if v := r.PathValue(p.param); v != "" {
					fields = append(fields, observability.F(p.field, v))
				}
			}
			next.ServeHTTP(w, r.WithContext(logctx.Enrich(r.Context(), base, fields...)))
		})
	}
}

// statusRecorder remembers the status code for access logs and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
