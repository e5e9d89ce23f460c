package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyperterse/widgetquery/core/observability"
	sharedctx "github.com/hyperterse/widgetquery/core/shared/context"
)

// Tracing middleware for OpenTelemetry tracing
func Tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"http.server",
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// RequestContext copies chi's request id into the shared context and onto the
// active span, so logs and envelopes can be correlated with access logs
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := chimiddleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = sharedctx.GenerateID()
		}
		w.Header().Set("X-Request-Id", requestID)

		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String(observability.AttrRequestID, requestID))
		next.ServeHTTP(w, r.WithContext(sharedctx.WithRequestID(r.Context(), requestID)))
	})
}
