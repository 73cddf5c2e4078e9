package docmap

import (
	"errors"
	"fmt"

	"github.com/nonibytes/docmap/docmap/index"
)

type ErrorKind string

const (
	// ErrConfig reports a type that cannot be mapped to a schema.
	ErrConfig   ErrorKind = "config"
	ErrIO       ErrorKind = "io"
	ErrDecode   ErrorKind = "decode"
	ErrParse    ErrorKind = "parse"
	ErrNotFound ErrorKind = "not_found"
	ErrClosed   ErrorKind = "closed"
	ErrFeature  ErrorKind = "feature_missing"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != "" {
		base = fmt.Sprintf("%s (field=%s)", base, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func ConfigError(field, msg string) *Error {
	return &Error{Kind: ErrConfig, Field: field, Message: msg}
}

func DecodeError(field, msg string, cause error) *Error {
	return &Error{Kind: ErrDecode, Field: field, Message: msg, Cause: cause}
}

func ParseError(msg string, cause error) *Error {
	return &Error{Kind: ErrParse, Message: msg, Cause: cause}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// StoreError classifies an error returned by the index store. Errors that
// already carry a kind pass through unchanged.
func StoreError(msg string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, index.ErrClosed) {
		return Wrap(ErrClosed, msg, err)
	}
	return Wrap(ErrIO, msg, err)
}
