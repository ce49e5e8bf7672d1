package httpglue

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hearthdav/caldavd/internal/auth"
)

// requestLogger records one structured log line per request (spec.md §10
// AMBIENT STACK "Logging"), at Debug for read-only methods and Info for
// mutating ones, the way the teacher's router.routeDAVMethod does — method,
// path, status, bytes, duration, remote IP, user agent, and a user field when
// r's own context carries a principal id. requireAuth binds the principal on
// a derived request further down the chain, so authenticated routes are
// logged without that field.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			dur := time.Since(start)
			logEvent := logger.Debug()
			switch r.Method {
			case "PROPFIND", "REPORT", http.MethodGet, http.MethodHead, http.MethodOptions:
			default:
				logEvent = logger.Info()
			}

			entry := logEvent.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", statusOrDefault(ww.Status())).
				Int("bytes", ww.BytesWritten()).
				Float64("duration_ms", float64(dur.Microseconds())/1000.0).
				Str("ip", r.RemoteAddr).
				Str("user_agent", r.Header.Get("User-Agent"))

			if id, ok := auth.PrincipalIDFrom(r.Context()); ok {
				entry = entry.Str("user", id)
			}
			entry.Msg("http request")
		})
	}
}

func statusOrDefault(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}
