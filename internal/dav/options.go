package dav

import "net/http"

// Options answers CalDAV/CardDAV client discovery (RFC 4918 §9.1, RFC 4791
// §5.1) without requiring authentication, the way httpglue's router leaves
// OPTIONS outside the auth-required group so clients can probe server
// capabilities before presenting credentials.
func (h *Handlers) Options(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "OPTIONS, GET, HEAD, PUT, DELETE, MOVE, COPY, PROPFIND, PROPPATCH, MKCOL, MKCALENDAR, REPORT")
	w.Header().Set("DAV", "1, 3, access-control, calendar-access, addressbook, extended-mkcol, sync-collection")
	w.WriteHeader(http.StatusOK)
}
