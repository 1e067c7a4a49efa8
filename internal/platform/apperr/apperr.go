// Package apperr defines the error kinds shared by services and the transports that map them
// to HTTP status codes and gRPC codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/grpc/codes"
)

// Kinds. Compare with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrBadRequest      = errors.New("bad request")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// Error is a kind plus a caller-facing message.
type Error struct {
	Kind    error
	Message string
	// RequiredRoles is set on Forbidden errors raised by role guards.
	RequiredRoles []string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

// Unwrap returns the kind so errors.Is(err, ErrForbidden) works on wrapped errors.
func (e *Error) Unwrap() error { return e.Kind }

// New returns an *Error of kind with a formatted message.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated returns an Unauthenticated error with msg.
func Unauthenticated(msg string) *Error { return &Error{Kind: ErrUnauthenticated, Message: msg} }

// BadRequest returns a BadRequest error with msg.
func BadRequest(msg string) *Error { return &Error{Kind: ErrBadRequest, Message: msg} }

// Forbidden returns a Forbidden error with msg.
func Forbidden(msg string) *Error { return &Error{Kind: ErrForbidden, Message: msg} }

// NotFound returns a NotFound error with msg.
func NotFound(msg string) *Error { return &Error{Kind: ErrNotFound, Message: msg} }

// Conflict returns a Conflict error with msg.
func Conflict(msg string) *Error { return &Error{Kind: ErrConflict, Message: msg} }

// IsUniqueViolation reports whether err is a Postgres unique_violation (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// FromDB converts a unique violation into a Conflict carrying msg; other errors are returned as is.
func FromDB(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return &Error{Kind: ErrConflict, Message: msg}
	}
	return err
}

// HTTPStatus maps err to an HTTP status code. Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps err to a gRPC status code. Unknown errors map to Internal.
func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrUnauthenticated):
		return codes.Unauthenticated
	case errors.Is(err, ErrBadRequest):
		return codes.InvalidArgument
	case errors.Is(err, ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrConflict):
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

// PublicMessage returns the message safe to show a client. Internal errors get a generic text.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal error"
}
