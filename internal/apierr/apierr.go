// Package apierr maps internal failure conditions to the HTTP status
// codes the router surfaces to clients, keeping that mapping in one place
// instead of scattered across handlers.
package apierr

import (
	"errors"
	"net/http"
)

// Error pairs a wrapped cause with the HTTP status a handler should return
// for it.
type Error struct {
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Status)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with an HTTP status.
func New(status int, err error) *Error {
	return &Error{Status: status, Err: err}
}

// Status returns the HTTP status code associated with err via an *Error in
// its chain, or http.StatusInternalServerError if none is found.
func Status(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

var (
	// ErrBadBucket marks a syntactically invalid bucket name.
	ErrBadBucket = New(http.StatusBadRequest, errors.New("apierr: invalid bucket name"))
	// ErrForbidden marks a SigV4 validation failure (Invalid or Unsupported).
	ErrForbidden = New(http.StatusForbidden, errors.New("apierr: authorization rejected"))
	// ErrMethodNotAllowed marks an unrecognized HTTP method.
	ErrMethodNotAllowed = New(http.StatusMethodNotAllowed, errors.New("apierr: method not allowed"))
	// ErrNotFound marks an absent or tombstoned object.
	ErrNotFound = New(http.StatusNotFound, errors.New("apierr: object not found"))
	// ErrInternal marks a server-side failure that should not leak detail
	// to the client (logged separately by the caller).
	ErrInternal = New(http.StatusInternalServerError, errors.New("apierr: internal error"))
)
