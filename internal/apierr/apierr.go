package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable codes
const (
	CodeResponseSetNotFound = "PRE_RESPONSE_SET_NOT_FOUND"
	CodeScreenNotFound      = "PRE_SCREEN_NOT_FOUND"
	CodeQuestionNotFound    = "PRE_QUESTION_NOT_FOUND"
	CodeIfMatchMissing      = "PRE_IF_MATCH_MISSING"
	CodeIfMatchMismatch     = "PRE_IF_MATCH_ETAG_MISMATCH"
	CodeBatchItemMismatch   = "PRE_BATCH_ITEM_ETAG_MISMATCH"

	CodeBadRequest      = "VAL_BAD_REQUEST"
	CodePayloadShape    = "VAL_PAYLOAD_SHAPE"
	CodeTypeMismatch    = "VAL_TYPE_MISMATCH"
	CodeNotFinite       = "VAL_NUMBER_NOT_FINITE"
	CodeTokenUnknown    = "VAL_TOKEN_UNKNOWN"
	CodeOptionMalformed = "VAL_OPTION_ID_MALFORMED"
	CodeIncompatible    = "VAL_INCOMPATIBLE_WITH_PARENT_ANSWER_KIND"

	CodeRepositoryFailure = "RUN_REPOSITORY_FAILURE"
	CodeInternal          = "RUN_INTERNAL"
)

type Error struct {
	Status int
	Code   string
	Title  string
	Detail string
	Err    error

	// ETag is re-exposed on concurrency conflicts so clients can resynchronize
	ETag string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Detail != "" {
		return e.Code + ": " + e.Detail
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code, title string, err error) *Error {
	e := &Error{Status: status, Code: code, Title: title, Err: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

// WithDetail returns e with a human-readable detail
func (e *Error) WithDetail(format string, args ...interface{}) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// As extracts an *Error from err, wrapping unknown errors as 500
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(http.StatusInternalServerError, CodeInternal, "Internal error", err)
}

func NotFound(code, title string) *Error {
	return New(http.StatusNotFound, code, title, nil)
}

func Validation(code, format string, args ...interface{}) *Error {
	return New(http.StatusUnprocessableEntity, code, "Validation failed", nil).WithDetail(format, args...)
}

func BadRequest(err error) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, "Malformed request", err)
}

func IfMatchMissing() *Error {
	return New(http.StatusPreconditionRequired, CodeIfMatchMissing, "If-Match header required", nil).
		WithDetail("send the current screen etag in If-Match")
}

func Mismatch(code, currentETag string) *Error {
	e := New(http.StatusConflict, code, "Screen has changed", nil).
		WithDetail("If-Match does not match the current screen etag")
	e.ETag = currentETag
	return e
}

func Repository(err error) *Error {
	return New(http.StatusInternalServerError, CodeRepositoryFailure, "Answer store failure", err)
}
