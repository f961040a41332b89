// Package errors carries coded domain errors and how each code is rendered
// over HTTP.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeAlreadyResolved   Code = "ALREADY_RESOLVED"
	CodeAlreadyReviewed   Code = "ALREADY_REVIEWED"
	CodeLedgerUnavailable Code = "LEDGER_UNAVAILABLE"
)

// Metadata is how a code surfaces over HTTP. Client errors expose their own
// message; server errors only ever show PublicMessage.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ExposeMessage  bool
}

func client(status int, public string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, ExposeMessage: true}
}

func server(status int, public string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, Retryable: true}
}

func (m Metadata) withDetails() Metadata {
	m.DetailsAllowed = true
	return m
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        client(http.StatusBadRequest, "validation failed").withDetails(),
	CodeUnauthorized:      client(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:         client(http.StatusForbidden, "access denied"),
	CodeNotFound:          client(http.StatusNotFound, "resource not found"),
	CodeConflict:          client(http.StatusConflict, "conflict detected"),
	CodeStateConflict:     client(http.StatusUnprocessableEntity, "state transition disallowed").withDetails(),
	CodeIdempotency:       client(http.StatusConflict, "idempotency key reused").withDetails(),
	CodeRateLimit:         client(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInvalidTransition: client(http.StatusUnprocessableEntity, "invalid state transition").withDetails(),
	CodeAlreadyResolved:   client(http.StatusConflict, "payout already resolved").withDetails(),
	CodeAlreadyReviewed:   client(http.StatusConflict, "review already submitted").withDetails(),

	CodeInternal:          server(http.StatusInternalServerError, "internal server error"),
	CodeDependency:        server(http.StatusServiceUnavailable, "dependency unavailable").withDetails(),
	CodeLedgerUnavailable: server(http.StatusServiceUnavailable, "payment ledger unavailable").withDetails(),
}

// MetadataFor returns the rendering of code; unknown codes render as internal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with an optional cause and public details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := string(e.code) + ": " + e.message
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error with the same code, so sentinel values built
// with New work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	return As(err).Code()
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
