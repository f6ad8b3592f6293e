package service

import (
	"errors"
	"fmt"
)

// Kind classifies service failures for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindNotFound
	KindConflict
	KindServerConfig
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindServerConfig:
		return "server_config"
	default:
		return "internal"
	}
}

// Error is returned by every service operation. Message is safe to show to
// clients; Err carries the underlying cause for server-side logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrInvalidCredentials is deliberately shared by unknown users and wrong passwords.
	ErrInvalidCredentials  = &Error{Kind: KindAuthentication, Message: "Invalid credentials"}
	ErrUnauthorized        = &Error{Kind: KindAuthentication, Message: "Unauthorized"}
	ErrUsernameTaken       = &Error{Kind: KindConflict, Message: "Username already taken"}
	ErrMissingCredentials  = &Error{Kind: KindValidation, Message: "Username and password are required"}
	ErrContentRequired     = &Error{Kind: KindValidation, Message: "Content is required"}
	ErrEntryNotFound       = &Error{Kind: KindNotFound, Message: "Entry not found"}
	ErrNothingToExport     = &Error{Kind: KindNotFound, Message: "No entries to export"}
	ErrServerMisconfigured = &Error{Kind: KindServerConfig, Message: "Server misconfigured"}
)

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func internalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf reports the Kind of err; errors that are not *Error are internal.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// PublicMessage returns the client facing message of err.
func PublicMessage(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return "Internal server error"
}
