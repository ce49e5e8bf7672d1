// Package webdavxml is a namespace-aware, schema-directed XML codec for the
// WebDAV/CalDAV/CardDAV wire format. Go has no derive macros, so the
// per-type schema that a generator would otherwise emit at compile time is
// instead declared with struct tags and read by reflection at call time.
package webdavxml

import "fmt"

// Name is a qualified XML name: an XML namespace URI plus a local name.
// Empty Space means "no namespace" (used for XML attributes without a
// namespace prefix, as is conventional for DAV property attributes).
type Name struct {
	Space string
	Local string
}

func (n Name) String() string {
	if n.Space == "" {
		return n.Local
	}
	return fmt.Sprintf("{%s}%s", n.Space, n.Local)
}

func (n Name) IsZero() bool { return n.Space == "" && n.Local == "" }

// Well-known namespaces used throughout the CalDAV/CardDAV wire protocol.
const (
	NSDAV      = "DAV:"
	NSCalDAV   = "urn:ietf:params:xml:ns:caldav"
	NSCardDAV  = "urn:ietf:params:xml:ns:carddav"
	NSCS       = "http://calendarserver.org/ns/"
	NSAppleIcal = "http://apple.com/ns/ical/"
	NSWebDAVPush = "https://bitfire.at/webdav-push"
)

// DefaultPrefixes is the prefix map a root document registers by default;
// individual roots may override it via Root.Prefixes.
var DefaultPrefixes = map[string]string{
	NSDAV:        "D",
	NSCalDAV:     "C",
	NSCardDAV:    "CARD",
	NSCS:         "CS",
	NSAppleIcal:  "ICAL",
	NSWebDAVPush: "PUSH",
}
