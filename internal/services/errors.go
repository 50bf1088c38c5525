// Package services defines the business logic for sessions and try-on
// generation. This file centralizes the service-level error taxonomy so that
// errors can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when caller input is missing or
	// malformed. It is detected before any external call is made.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSessionNotFound indicates that the requested session does not
	// exist or has expired. The two cases are deliberately
	// indistinguishable.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSession is returned when an operation targets a session
	// that is absent or expired at time of use.
	ErrInvalidSession = errors.New("session invalid or expired")

	// ErrRateLimited is returned when admission control denies a request.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// StorageError wraps a record- or blob-store failure. It propagates to the
// caller unmodified during single user-facing operations; cleanup sweeps
// catch it per item instead.
type StorageError struct {
	Op  string // the failing operation, e.g. "create session"
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying store error.
func (e *StorageError) Unwrap() error { return e.Err }

// GenerationError indicates the external model produced no usable image for
// one pose, or an explicit error. Message carries the upstream model's text
// when one exists.
type GenerationError struct {
	Pose    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed for pose %s: %v", e.Pose, e.Err)
	}
	return fmt.Sprintf("generation failed for pose %s: %s", e.Pose, e.Message)
}

// Unwrap exposes the underlying model error, if any.
func (e *GenerationError) Unwrap() error { return e.Err }
