package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds recognised at the component boundary. Callers compare with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateScan    = errors.New("duplicate scan")
	ErrInvalidFormat    = errors.New("invalid format")
	ErrAlreadyExists    = errors.New("already exists")
	ErrProtected        = errors.New("protected")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// expected lists the kinds whose message is shown to the user verbatim.
var expected = []error{
	ErrNotFound,
	ErrDuplicateScan,
	ErrInvalidFormat,
	ErrAlreadyExists,
	ErrProtected,
}

// Error carries a kind plus a message suitable for direct display.
type Error struct {
	Kind    error
	Message string
}

// New creates an error of the given kind with a display message.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with a formatted message.
func Newf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

// Unwrap exposes the kind to errors.Is.
func (e *Error) Unwrap() error {
	return e.Kind
}

// IsExpected reports whether err belongs to one of the recoverable kinds.
func IsExpected(err error) bool {
	for _, kind := range expected {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Kind returns the sentinel kind err belongs to, or nil if it is unclassified.
func Kind(err error) error {
	for _, kind := range append(expected, ErrQuotaExceeded, ErrStoreUnavailable) {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Message renders err for display. Expected kinds yield their own message,
// store problems a short explanation, anything else a generic prefix plus the
// error text so nothing is swallowed.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var appErr *Error
	if errors.As(err, &appErr) && IsExpected(err) {
		return appErr.Message
	}

	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return "The store is throttling requests, try again in a minute: " + err.Error()
	case errors.Is(err, ErrStoreUnavailable):
		return "The store is unavailable: " + err.Error()
	}

	return "Operation failed: " + err.Error()
}
