/*
Package apperr defines the error taxonomy of spec.md §7.

Every error that the compiler (sqlfrag/fkresolver/querybuilder) or the
database layer can produce is wrapped as an [*Error] so the Request Adapter
can render it as the structured {"error", "message"} envelope spec.md §6
specifies, without any component below the adapter touching HTTP.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the machine-readable error kinds spec.md §7 enumerates.
type Kind string

const (
	InvalidIdentifier    Kind = "InvalidIdentifier"
	SyntaxError          Kind = "SyntaxError"
	UnknownTable         Kind = "UnknownTable"
	UnknownColumn        Kind = "UnknownColumn"
	UnknownForeignKey    Kind = "UnknownForeignKey"
	CycleDetected        Kind = "CycleDetected"
	DepthExceeded        Kind = "DepthExceeded"
	UnsupportedFeature   Kind = "UnsupportedFeature"
	ConfirmationRequired Kind = "ConfirmationRequired"
	DatabaseError        Kind = "DatabaseError"
	Timeout              Kind = "Timeout"
	ServiceUnavailable   Kind = "ServiceUnavailable"
)

// Error is the canonical error type for pgrest.
//
// Cause is for server-side logging only; it is never serialized into the
// client-facing envelope.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Cause      error

	// SQLSTATE is populated only for Kind == DatabaseError, per spec.md §7
	// "Database errors are returned verbatim in their SQLSTATE category."
	SQLSTATE string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// As extracts the [*Error] from err's chain, or nil if err does not wrap one.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

func new_(kind Kind, status int, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, HTTPStatus: status, Cause: cause}
}

// InvalidIdentifierf builds an InvalidIdentifier error (spec.md §7).
func InvalidIdentifierf(format string, args ...any) *Error {
	return new_(InvalidIdentifier, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

// SyntaxErrorAt builds a SyntaxError carrying the parser's byte offset.
func SyntaxErrorAt(offset int, cause error) *Error {
	return new_(SyntaxError, http.StatusBadRequest,
		fmt.Sprintf("syntax error at byte offset %d: %v", offset, cause), cause)
}

// UnknownTablef builds an UnknownTable error; the adapter renders this as 404.
func UnknownTablef(format string, args ...any) *Error {
	return new_(UnknownTable, http.StatusNotFound, fmt.Sprintf(format, args...), nil)
}

// UnknownColumnf builds an UnknownColumn compile error.
func UnknownColumnf(format string, args ...any) *Error {
	return new_(UnknownColumn, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

// UnknownForeignKeyf builds an UnknownForeignKey compile error.
func UnknownForeignKeyf(format string, args ...any) *Error {
	return new_(UnknownForeignKey, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

// CycleDetectedf builds a CycleDetected structural-limit error.
func CycleDetectedf(format string, args ...any) *Error {
	return new_(CycleDetected, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

// DepthExceededf builds a DepthExceeded structural-limit error.
func DepthExceededf(format string, args ...any) *Error {
	return new_(DepthExceeded, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

// UnsupportedFeaturef builds an UnsupportedFeature error (e.g. BETWEEN,
// bit literals, multi-statement fragments, dotted RETURNING on INSERT).
func UnsupportedFeaturef(format string, args ...any) *Error {
	return new_(UnsupportedFeature, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

// ConfirmationRequiredf builds the DELETE-without-confirm_delete error.
func ConfirmationRequiredf(format string, args ...any) *Error {
	return new_(ConfirmationRequired, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

// Database wraps a driver error as a DatabaseError, attaching its SQLSTATE.
func Database(sqlstate, message string, cause error) *Error {
	e := new_(DatabaseError, http.StatusInternalServerError, message, cause)
	e.SQLSTATE = sqlstate
	return e
}

// TimeoutErr builds a Timeout error.
func TimeoutErr(cause error) *Error {
	return new_(Timeout, http.StatusGatewayTimeout, "statement timeout exceeded", cause)
}

// Unavailable builds a ServiceUnavailable error (e.g. pool acquire timeout).
func Unavailable(cause error) *Error {
	return new_(ServiceUnavailable, http.StatusServiceUnavailable, "service temporarily unavailable", cause)
}
