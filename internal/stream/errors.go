package stream

import (
	"errors"
	"fmt"
)

// Code classifies pipeline failures. The string form is used in logs and
// metric attributes; it never reaches the client.
type Code string

const (
	CodeResource       Code = "resource_error"
	CodeClosedBuffer   Code = "closed_buffer"
	CodeEmptyInput     Code = "empty_input"
	CodeDecodeFailed   Code = "decode_failed"
	CodeMatchFailed    Code = "match_failed"
	CodeTimeout        Code = "timeout"
	CodeDeliveryFailed Code = "delivery_failed"
)

// Error is a classified pipeline failure. Two Errors match under errors.Is
// when their codes are equal, so the Err* sentinels below can be used as
// targets.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrResource       = &Error{Code: CodeResource}
	ErrClosedBuffer   = &Error{Code: CodeClosedBuffer}
	ErrEmptyInput     = &Error{Code: CodeEmptyInput}
	ErrDecodeFailed   = &Error{Code: CodeDecodeFailed}
	ErrMatchFailed    = &Error{Code: CodeMatchFailed}
	ErrTimeout        = &Error{Code: CodeTimeout}
	ErrDeliveryFailed = &Error{Code: CodeDeliveryFailed}
)

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}
