package auth

import (
	"errors"
	"net/http"

	"github.com/redmonkez12/printcost-auth/internal/httputil"
)

// Kind classifies an Error for transport mapping.
type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
	KindInternal
)

// HTTPStatus maps the kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a client-facing failure. Message and Code are safe to return as-is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrNameRequired       = &Error{KindValidation, httputil.CodeNameRequired, "name is required"}
	ErrEmailRequired      = &Error{KindValidation, httputil.CodeEmailRequired, "email is required"}
	ErrPasswordRequired   = &Error{KindValidation, httputil.CodePasswordRequired, "password is required"}
	ErrPasswordTooLong    = &Error{KindValidation, httputil.CodePasswordTooLong, "password must be at most 72 bytes"}
	ErrInvalidEmailFormat = &Error{KindValidation, httputil.CodeInvalidEmailFormat, "invalid email format"}
	ErrInvalidRequestBody = &Error{KindValidation, httputil.CodeInvalidRequestBody, "invalid request body"}
	ErrTokenRequired      = &Error{KindValidation, httputil.CodeTokenRequired, "token is required"}

	ErrInvalidToken     = &Error{KindValidation, httputil.CodeInvalidToken, "invalid token"}
	ErrTokenAlreadyUsed = &Error{KindValidation, httputil.CodeTokenAlreadyUsed, "token has already been used"}
	ErrTokenExpired     = &Error{KindValidation, httputil.CodeTokenExpired, "token has expired"}

	ErrEmailTaken = &Error{KindConflict, httputil.CodeEmailAlreadyExists, "email is already registered"}

	ErrInvalidCredentials = &Error{KindUnauthorized, httputil.CodeInvalidCredentials, "invalid email or password"}
	ErrUnauthorized       = &Error{KindUnauthorized, httputil.CodeUnauthorized, "unauthorized"}
	ErrEmailNotVerified   = &Error{KindForbidden, httputil.CodeEmailNotVerified, "please verify your email before logging in"}
)

// Storage-level sentinels. The service translates them into *Error values.
var (
	ErrTokenNotFound       = errors.New("one-time token not found")
	ErrTokenConsumed       = errors.New("one-time token already consumed")
	ErrSessionNotFound     = errors.New("session not found or no longer active")
	ErrInvalidSessionToken = errors.New("invalid session token")
)

// asError unwraps err to a client-facing *Error.
func asError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
