// Package httpglue wires the CalDAV/CardDAV method handlers (internal/dav,
// C4) onto an HTTP routing tree (spec.md §4.9, C9): go-chi for its custom-
// method registration, the way jw6ventures-calcard/internal/http/router.go
// mounts PROPFIND/PROPPATCH/MKCOL/MKCALENDAR/REPORT, with request
// authentication, metrics, and structured logging layered the way the
// teacher's internal/router does.
package httpglue

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hearthdav/caldavd/internal/config"
	"github.com/hearthdav/caldavd/internal/dav"
	"github.com/hearthdav/caldavd/internal/metrics"
	"github.com/hearthdav/caldavd/internal/store"
)

func init() {
	for _, method := range []string{"PROPFIND", "PROPPATCH", "MKCOL", "MKCALENDAR", "REPORT", "MOVE", "COPY"} {
		chi.RegisterMethod(method)
	}
}

// NewRouter assembles the full server mux: health checks, /.well-known
// discovery redirects, and the /caldav and /carddav method trees.
func NewRouter(cfg *config.Config, s store.Store, h *dav.Handlers, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	})

	// RFC 4791 §5.2/RFC 6352 §6.2 well-known discovery: redirect to this
	// tree's own service root rather than a single shared /dav mount, since
	// CalDAV and CardDAV are separate routing trees here (paths.go).
	r.Get("/.well-known/caldav", wellKnownRedirect("/caldav/"))
	r.Get("/.well-known/carddav", wellKnownRedirect("/carddav/"))

	mountTree(r, "/caldav", h)
	mountTree(r, "/carddav", h)

	return r
}

func wellKnownRedirect(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	}
}

// mountTree registers one tree's method set. OPTIONS stays outside the auth
// group so clients can probe server capabilities before presenting
// credentials (RFC 4918 §9.1); every other method requires a bound
// principal.
func mountTree(r chi.Router, prefix string, h *dav.Handlers) {
	r.Route(prefix, func(r chi.Router) {
		r.MethodFunc(http.MethodOptions, "/*", h.Options)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth(h))
			r.MethodFunc(http.MethodGet, "/*", h.Get)
			r.MethodFunc(http.MethodHead, "/*", h.Head)
			r.MethodFunc(http.MethodPut, "/*", h.Put)
			r.MethodFunc(http.MethodDelete, "/*", h.Delete)
			r.MethodFunc("MOVE", "/*", h.Move)
			r.MethodFunc("COPY", "/*", h.Copy)
			r.MethodFunc("PROPFIND", "/*", h.Propfind)
			r.MethodFunc("PROPPATCH", "/*", h.Proppatch)
			r.MethodFunc("MKCOL", "/*", h.Mkcol)
			r.MethodFunc("MKCALENDAR", "/*", h.Mkcol)
			r.MethodFunc("REPORT", "/*", h.Report)
		})
	})
}
