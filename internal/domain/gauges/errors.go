package gauges

import (
	"errors"
	"fmt"
	"strings"
)

// Code standardizes failure semantics across the store and service layers.
type Code string

const (
	// Validation family: rejected input, never retried.
	CodeOwnershipMismatch Code = "OWNERSHIP_MISMATCH"
	CodeCustomerMismatch  Code = "CUSTOMER_MISMATCH"
	CodeSpecMismatch      Code = "SPEC_MISMATCH"
	CodeMissingConnection Code = "MISSING_CONNECTION"
	CodeValidation        Code = "VALIDATION"

	// State preconditions: the operation is legal, the current state is not.
	CodePrecondition Code = "STATE_PRECONDITION"

	CodeNotFound Code = "NOT_FOUND"

	// Transient storage contention (deadlock, lock wait timeout); eligible
	// for retry. RetryExhausted wraps the last transient failure once the
	// retry budget is spent.
	CodeTransient      Code = "TRANSIENT"
	CodeRetryExhausted Code = "RETRY_EXHAUSTED"

	CodeInternal Code = "INTERNAL"
)

// DomainError is the canonical error wrapper for gauge operations. Code is
// machine-readable; Op names the operation that failed; Message is for
// humans; Cause preserves the underlying error for errors.Is/As.
type DomainError struct {
	Code    Code
	Op      string
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *DomainError) Unwrap() error { return e.Cause }

// NewError builds a DomainError with explicit code + operation.
func NewError(code Code, op, message string, cause error) error {
	return &DomainError{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates err with an operation name, preserving its code when it
// already carries one so callers can still branch on the original kind.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		code = de.Code
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or a wrapped err) carries the given code.
func IsCode(err error, code Code) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// CodeOf extracts the domain code when available.
func CodeOf(err error) Code {
	var de *DomainError
	if !errors.As(err, &de) {
		return ""
	}
	return de.Code
}

// IsRetryable reports whether err represents transient storage contention
// that the retry policy may re-attempt.
func IsRetryable(err error) bool {
	return IsCode(err, CodeTransient)
}
