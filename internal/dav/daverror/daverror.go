// Package daverror is the error taxonomy shared by every method handler
// (spec.md §7): a domain-level Kind, the HTTP status it maps to, and an
// optional DAV precondition element name to embed in the error body.
package daverror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hearthdav/caldavd/pkg/webdavxml"
)

type Kind int

const (
	KindBadRequest Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindPreconditionFailed
	KindReadOnly
	KindInvalidCalendarData
	KindInvalidAddressData
	KindUIDConflict
	KindUnsupportedComponent
	KindStorage
	KindInternal
	KindInsufficientStorage
)

var statusByKind = map[Kind]int{
	KindBadRequest:           http.StatusBadRequest,
	KindUnauthorized:         http.StatusUnauthorized,
	KindForbidden:            http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindConflict:             http.StatusConflict,
	KindPreconditionFailed:   http.StatusPreconditionFailed,
	KindReadOnly:             http.StatusForbidden,
	KindInvalidCalendarData:  http.StatusForbidden,
	KindInvalidAddressData:   http.StatusForbidden,
	KindUIDConflict:          http.StatusForbidden,
	KindUnsupportedComponent: http.StatusForbidden,
	KindStorage:              http.StatusInternalServerError,
	KindInternal:             http.StatusInternalServerError,
	KindInsufficientStorage:  http.StatusInsufficientStorage,
}

// preconditionByKind maps a Kind to the precondition element name spec.md
// §7 says a non-Multi-Status error body should carry, where one exists.
var preconditionByKind = map[Kind]string{
	KindInvalidCalendarData:  "valid-calendar-data",
	KindInvalidAddressData:   "valid-address-data",
	KindUIDConflict:          "no-uid-conflict",
	KindUnsupportedComponent: "supported-calendar-component",
	KindInsufficientStorage:  "number-of-matches-within-limits",
}

// preconditionNSByKind carries the namespace each precondition element
// belongs to: most CalDAV preconditions live in NSCalDAV, but
// valid-address-data is a CardDAV precondition (RFC 6352 §6.3.2.1) and
// number-of-matches-within-limits is plain DAV: (RFC 6578 §3.2.1).
var preconditionNSByKind = map[Kind]string{
	KindInvalidCalendarData:  webdavxml.NSCalDAV,
	KindInvalidAddressData:   webdavxml.NSCardDAV,
	KindUIDConflict:          webdavxml.NSCalDAV,
	KindUnsupportedComponent: webdavxml.NSCalDAV,
	KindInsufficientStorage:  webdavxml.NSDAV,
}

// Error is the typed error every handler returns; httpglue maps it to a
// status code and renders its precondition element into the <D:error> body.
type Error struct {
	Kind    Kind
	Field   webdavxml.Name // set for bad-request errors naming an offending field
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return fmt.Sprintf("daverror: %v", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Precondition returns the DAV precondition element name for e's Kind, and
// whether one is defined at all.
func (e *Error) Precondition() (string, bool) {
	p, ok := preconditionByKind[e.Kind]
	return p, ok
}

// PreconditionNS returns the namespace the precondition element (if any)
// belongs to, defaulting to webdavxml.NSDAV.
func (e *Error) PreconditionNS() string {
	if ns, ok := preconditionNSByKind[e.Kind]; ok {
		return ns
	}
	return webdavxml.NSDAV
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, err error) *Error { return &Error{Kind: kind, Cause: err} }

func BadRequest(field webdavxml.Name, msg string) *Error {
	return &Error{Kind: KindBadRequest, Field: field, Message: msg}
}

// As unwraps err into an *Error, defaulting to KindInternal when err isn't
// already one of ours (e.g. an unexpected Store failure).
func As(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Kind: KindInternal, Cause: err}
}
