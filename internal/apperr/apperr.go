// Package apperr holds the stable internal error codes shared across
// components, per the error-handling design: user-visible text is
// localizable, but the codes beneath it never change shape.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable internal error identifier. Never rename an existing
// Code; callers and telemetry pipelines key off the string value.
type Code string

const (
	CodeInvalidInput    Code = "E_INVALID_INPUT"
	CodeStorageWrite    Code = "E_STORAGE_WRITE"
	CodeStorageRead     Code = "E_STORAGE_READ"
	CodeLeaseConflict   Code = "E_LEASE_CONFLICT"
	CodeTransportTimeout Code = "E_TRANSPORT_TIMEOUT"
	CodeTransportTransient Code = "E_TRANSPORT_TRANSIENT"
	CodeTransportPermanent Code = "E_TRANSPORT_PERMANENT"
	CodeRateRejectPrefix Code = "E_RATE_REJECT_PREFIX"
	CodeComplianceBlocked Code = "E_COMPLIANCE_BLOCKED"
	CodeFatalPanic       Code = "E_FATAL_PANIC"
)

// Kind classifies an error for the executor's recover/fail decision,
// per §7: only Invalid, Storage and Fatal surface to the control-surface
// caller; the rest are internal telemetry.
type Kind int

const (
	KindInvalidInput Kind = iota
	KindStorage
	KindTransportTransient
	KindTransportPermanent
	KindRateLimiterDefer
	KindComplianceReject
	KindFatalPanic
)

// Error is the typed error carried between components and the executor.
type Error struct {
	Code Code
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, kind Kind, msg string, cause error) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg, Err: cause}
}

func Storage(msg string, cause error) *Error {
	return New(CodeStorageWrite, KindStorage, msg, cause)
}

func InvalidInput(msg string) *Error {
	return New(CodeInvalidInput, KindInvalidInput, msg, nil)
}

func Fatal(msg string, cause error) *Error {
	return New(CodeFatalPanic, KindFatalPanic, msg, cause)
}

// IsKind reports whether err (or something it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
