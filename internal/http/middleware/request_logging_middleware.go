package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// StructuredRequestLogger emits one log line per request. Health probes are
// logged at debug so they do not drown the access log.
func StructuredRequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger
			if log == nil {
				log = slog.Default()
			}
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// handlers deeper in the chain attach the account id here
			holder := &accountHolder{}
			next.ServeHTTP(ww, r.WithContext(withAccountHolder(r.Context(), holder)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"request_id", chimiddleware.GetReqID(r.Context()),
				"client_ip", ClientIP(r),
				"user_agent", r.UserAgent(),
			}
			if holder.id != "" {
				attrs = append(attrs, "account_id", holder.id)
			}

			switch {
			case status >= http.StatusInternalServerError:
				log.ErrorContext(r.Context(), "http.request", attrs...)
			case strings.HasPrefix(r.URL.Path, "/health/"):
				log.DebugContext(r.Context(), "http.request", attrs...)
			default:
				log.InfoContext(r.Context(), "http.request", attrs...)
			}
		})
	}
}

// ClientIP prefers the first X-Forwarded-For hop, then RemoteAddr without port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return clientIPKey(r)
}
