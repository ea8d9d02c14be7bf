package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"arcade-backend/internal/auth"
)

// AuthMiddleware rejects requests without a valid bearer token and stores the
// account id on the request context.
func AuthMiddleware(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Verify(auth.BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				hlog.FromRequest(r).Debug().Err(err).Msg("Rejected unauthenticated request")
				writeStatus(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAccount(r.Context(), id)))
		})
	}
}

// OptionalAuthMiddleware attaches the account id when a token is present.
// A present but invalid token is still rejected.
func OptionalAuthMiddleware(v TokenVerifier) func(http.Handler) http.Handler {
	required := AuthMiddleware(v)
	return func(next http.Handler) http.Handler {
		withAuth := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			withAuth.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware attaches logger to each request and logs one line per request.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		hlog.NewHandler(logger),
		hlog.RequestIDHandler("request_id", ""),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Str("chi_request_id", middleware.GetReqID(r.Context())).
				Msg("Request handled")
		}),
	}
	return func(next http.Handler) http.Handler {
		for i := len(chain) - 1; i >= 0; i-- {
			next = chain[i](next)
		}
		return next
	}
}

// RecoveryMiddleware turns a handler panic into a 500.
func RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					hlog.FromRequest(r).Error().
						Interface("panic", rec).
						Str("path", r.URL.Path).
						Msg("Recovered from panic in handler")
					writeStatus(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// MetricsMiddleware records request counts and latency by route pattern.
func MetricsMiddleware() func(http.Handler) http.Handler {
	meter := otel.Meter("arcade-backend/http")
	requests, _ := meter.Int64Counter("arcade_http_requests_total",
		metric.WithDescription("HTTP requests by route and status"),
		metric.WithUnit("{request}"))
	latency, _ := meter.Float64Histogram("arcade_http_request_duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.String("status", strconv.Itoa(ww.Status())),
			)
			if requests != nil {
				requests.Add(r.Context(), 1, attrs)
			}
			if latency != nil {
				latency.Record(r.Context(), float64(time.Since(start).Microseconds())/1000, attrs)
			}
		})
	}
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	key := "status"
	if status >= http.StatusBadRequest {
		key = "error"
	}
	_ = json.NewEncoder(w).Encode(map[string]string{key: message})
}
