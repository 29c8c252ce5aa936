package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure for the caller.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindConflict           Kind = "Conflict"
	KindValidation         Kind = "Validation"
	KindUnauthorized       Kind = "Unauthorized"
	KindExternalDependency Kind = "ExternalDependencyFailure"
	KindConfiguration      Kind = "ConfigurationError"
)

// Error is a classified domain failure. Two Errors match under errors.Is when
// their codes are equal, so wrapped copies still match the sentinels below.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Err       error
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

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrRequestNotFound      = &Error{Kind: KindNotFound, Code: "REQUEST_NOT_FOUND", Message: "request not found"}
	ErrSubjectNotFound      = &Error{Kind: KindNotFound, Code: "SUBJECT_NOT_FOUND", Message: "subject not found"}
	ErrRequestAlreadyClosed = &Error{Kind: KindConflict, Code: "REQUEST_ALREADY_CLOSED", Message: "request is already closed"}
	ErrLevelAlreadyResolved = &Error{Kind: KindConflict, Code: "LEVEL_ALREADY_RESOLVED", Message: "approval level already resolved"}
	ErrStaleState           = &Error{Kind: KindConflict, Code: "STALE_STATE", Message: "request changed concurrently, re-fetch and retry", Retryable: true}
	ErrSubjectNotEditable   = &Error{Kind: KindConflict, Code: "SUBJECT_NOT_EDITABLE", Message: "subject can no longer be modified"}
	ErrMissingReason        = &Error{Kind: KindValidation, Code: "MISSING_REASON", Message: "a reason is required to reject"}
	ErrInvalidDecision      = &Error{Kind: KindValidation, Code: "INVALID_DECISION", Message: "decision must be Approve or Reject"}
	ErrInvalidInput         = &Error{Kind: KindValidation, Code: "INVALID_INPUT", Message: "invalid input"}
	ErrNotCurrentApprover   = &Error{Kind: KindUnauthorized, Code: "NOT_CURRENT_APPROVER", Message: "user is not an eligible approver for the current level"}
	ErrMediaUpload          = &Error{Kind: KindExternalDependency, Code: "MEDIA_UPLOAD_FAILED", Message: "media upload failed", Retryable: true}
	ErrNoApproverConfigured = &Error{Kind: KindConfiguration, Code: "NO_APPROVER_CONFIGURED", Message: "no approval chain configured"}
	ErrUnmappedProjection   = &Error{Kind: KindConfiguration, Code: "UNMAPPED_PROJECTION", Message: "no subject status mapped for outcome"}
)

// Newf returns a copy of sentinel with a specific message.
func Newf(sentinel *Error, format string, args ...interface{}) error {
	return &Error{
		Kind:      sentinel.Kind,
		Code:      sentinel.Code,
		Message:   fmt.Sprintf(format, args...),
		Retryable: sentinel.Retryable,
	}
}

// Wrap returns a copy of sentinel carrying cause.
func Wrap(sentinel *Error, cause error) error {
	return &Error{
		Kind:      sentinel.Kind,
		Code:      sentinel.Code,
		Message:   sentinel.Message,
		Retryable: sentinel.Retryable,
		Err:       cause,
	}
}

// KindOf returns the classification of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
