package webdavxml

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for the decode contract described in SPEC_FULL §4.1.
var (
	ErrMissingField    = errors.New("webdavxml: missing required field")
	ErrInvalidFieldName = errors.New("webdavxml: invalid field name")
	ErrInvalidValue    = errors.New("webdavxml: invalid value")
	ErrInvalidVariant  = errors.New("webdavxml: invalid enum variant")
	ErrEOF             = errors.New("webdavxml: unexpected end of input")
)

// FieldError wraps one of the sentinel kinds with the offending field/element
// name so callers (the HTTP glue layer) can build a precondition element.
type FieldError struct {
	Kind error
	Name Name
	Msg  string
}

func (e *FieldError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%v: %s (%s)", e.Kind, e.Msg, e.Name)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Name)
}

func (e *FieldError) Unwrap() error { return e.Kind }

func missingField(n Name) error {
	return &FieldError{Kind: ErrMissingField, Name: n}
}

func invalidFieldName(n Name) error {
	return &FieldError{Kind: ErrInvalidFieldName, Name: n}
}

func invalidValue(n Name, msg string) error {
	return &FieldError{Kind: ErrInvalidValue, Name: n, Msg: msg}
}
