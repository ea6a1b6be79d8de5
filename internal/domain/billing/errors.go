package billing

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code surfaced to API callers.
type Code string

const (
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeAlreadyConverted   Code = "ALREADY_CONVERTED"
	CodeAlreadyApplied     Code = "ALREADY_APPLIED"
	CodeOverpayment        Code = "OVERPAYMENT"
	CodeGatewayUnavailable Code = "GATEWAY_UNAVAILABLE"
	CodeDispatchFailed     Code = "DISPATCH_FAILED"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
)

// Error carries a stable code plus a human-readable message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func NewError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the billing code from err, or CodeUnknown semantics:
// an empty code when err is not a billing error.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsCode reports whether err carries the given billing code.
func IsCode(err error, code Code) bool { return CodeOf(err) == code }
