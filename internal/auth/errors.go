package auth

import (
	"errors"
	"fmt"
)

// Error kinds. Handlers map them to HTTP status codes; the message is user facing.
var (
	ErrValidation      = errors.New("auth: validation failed")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrNotFound        = errors.New("auth: not found")
	ErrConflict        = errors.New("auth: conflict")
	ErrInvalidToken    = errors.New("auth: token is invalid or has expired")
)

// Token verification failures surface as unauthenticated errors.
var (
	ErrExpiredToken     = &Error{Kind: ErrUnauthenticated, Message: "Your token has expired. Please log in again."}
	ErrInvalidSignature = &Error{Kind: ErrUnauthenticated, Message: "Invalid token. Please log in again."}
)

// Error carries a user-facing message alongside a sentinel kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message returns the user-facing message for err, or fallback when err carries none.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// ErrDelivery marks a failed out-of-band delivery (email). The pending token has been rolled back.
var ErrDelivery = errors.New("auth: delivery failed")

var errDeliveryFailed = &Error{Kind: ErrDelivery, Message: "There was an error sending the email. Try again later!"}
