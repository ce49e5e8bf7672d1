package httpglue

import (
	"net/http"

	"github.com/hearthdav/caldavd/internal/auth"
	"github.com/hearthdav/caldavd/internal/dav"
)

// requireAuth binds a Principal from the Authorization header (spec.md
// §4.7) before letting a method handler run, mirroring the teacher's
// router.authenticate/handleDAVRequest split: OPTIONS stays public, every
// other DAV method is gated here rather than in each handler.
func requireAuth(h *dav.Handlers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := h.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="DAV", charset="UTF-8"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipalID(r.Context(), id)))
		})
	}
}
