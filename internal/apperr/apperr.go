// Package apperr provides the error-kind taxonomy shared by every
// service's HTTP layer, generalized from the teacher's internal/types
// AppError.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	BadRequest Code = "bad_request"
	NotFound   Code = "not_found"
	Conflict   Code = "conflict"
	Dependency Code = "dependency_failure"
	Internal   Code = "internal"
)

// HTTPStatus maps an error kind to the transport status spec.md §7 assigns it.
func (c Code) HTTPStatus() int {
	switch c {
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Dependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}
