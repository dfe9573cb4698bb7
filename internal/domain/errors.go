package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness constraint was violated.
	ErrAlreadyExists = errors.New("already exists")
)

// Error kinds surfaced to storefront callers. Test with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrEmptyCart       = errors.New("empty cart")
	ErrRemoteRejection = errors.New("remote rejection")
	ErrServer          = errors.New("server error")
	ErrNetwork         = errors.New("network error")
	ErrAuthExpired     = errors.New("auth expired")
)

var kindNames = []struct {
	kind error
	name string
}{
	{ErrValidation, "ValidationError"},
	{ErrEmptyCart, "EmptyCartError"},
	{ErrRemoteRejection, "RemoteRejection"},
	{ErrServer, "ServerError"},
	{ErrNetwork, "NetworkError"},
	{ErrAuthExpired, "AuthExpired"},
}

// Error is a classified failure. Kind is one of the sentinel kinds above.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NewError builds a classified error with a formatted message.
func NewError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies cause under kind.
func WrapError(kind error, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindName returns the taxonomy name for err, or "InternalError" when unclassified.
func KindName(err error) string {
	var de *Error
	if errors.As(err, &de) {
		for _, k := range kindNames {
			if de.Kind == k.kind {
				return k.name
			}
		}
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "InternalError"
}

// Retryable reports whether err is transient.
func Retryable(err error) bool {
	return errors.Is(err, ErrServer) || errors.Is(err, ErrNetwork)
}

// UserMessage renders err for display. Business rejections and validation
// failures are shown verbatim; transient failures get a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrServer):
		return "Server error. Please try again later."
	case errors.Is(err, ErrNetwork):
		return "Cannot connect to server. Please try again."
	case errors.Is(err, ErrAuthExpired):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrEmptyCart):
		return "Your cart is empty."
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "Something went wrong."
}
