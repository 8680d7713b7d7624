// Package domainerrors defines coded errors shared by services, stores and transports.
//
// Services return coded errors; transports translate the code into a status and a
// stable error kind. Wrapped causes stay available to errors.Is/As but never reach
// the client.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code is the stable, client-visible kind of an error.
type Code string

const (
	CodeValidation              Code = "validation_error"
	CodeBadRequest              Code = "bad_request"
	CodeUnauthorized            Code = "unauthorized"
	CodeForbidden               Code = "forbidden"
	CodeNotFound                Code = "not_found"
	CodeNotOwned                Code = "not_owned"
	CodeInvalidState            Code = "invalid_state"
	CodeDuplicateActive         Code = "duplicate_active"
	CodeDuplicatePendingRenewal Code = "duplicate_pending_renewal"
	CodeAlreadyProcessed        Code = "already_processed"
	CodeConflict                Code = "conflict"
	CodeSignatureInvalid        Code = "signature_invalid"
	CodeNoPayableRecord         Code = "no_payable_record"
	CodeOrderNotFound           Code = "order_not_found"
	CodeStorage                 Code = "storage_error"
	CodeProvider                Code = "provider_error"
	CodeTimeout                 Code = "timeout"
	CodeInternal                Code = "internal_error"

	// CodeInvariantViolation is raised by domain constructors. Services convert it
	// to a client-facing code before it leaves the module.
	CodeInvariantViolation Code = "invariant_violation"
)

// Error carries a code, a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Is reports whether err is, or wraps, target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the outermost coded error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error in err's chain has the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the code of err, or CodeInternal when err is not a coded error.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto a response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeSignatureInvalid, CodeInvalidState,
		CodeDuplicateActive, CodeDuplicatePendingRenewal:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeNotOwned, CodeOrderNotFound, CodeNoPayableRecord:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyProcessed:
		return http.StatusConflict
	case CodeStorage, CodeProvider:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsClientFacing reports whether the message of an error with this code may be shown to callers.
func IsClientFacing(code Code) bool {
	switch code {
	case CodeInternal, CodeInvariantViolation:
		return false
	default:
		return true
	}
}
