package secretstore

import (
	"errors"
	"fmt"
	"net/http"
)

// Operation names used in Error.Op.
const (
	OpFetch    = "fetch"
	OpUpsert   = "upsert"
	OpValidate = "validate"
)

// NotFoundError indicates that the requested secret does not exist.
//
// This is distinct from authorization failures: a store that hides existence
// behind a 403 yields an Error with StatusCode 403, not a NotFoundError.
type NotFoundError struct {
	// Store is the name of the store that was queried.
	Store string

	// Name is the secret that could not be found.
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret not found: %s in %s", e.Name, e.Store)
}

// StatusCode reports the HTTP-equivalent status for a missing secret.
func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }

// Error is a store failure carrying the HTTP-equivalent status code.
//
// StatusCode is 0 when the failure never reached the store (DNS, TLS,
// connection refused). Code holds the store's own error code when it has one,
// e.g. "Forbidden" or "ThrottlingException".
type Error struct {
	Store      string
	Op         string
	Name       string
	StatusCode int
	Code       string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Store, e.Op)
	if e.Name != "" {
		msg += fmt.Sprintf(" %q", e.Name)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d", e.StatusCode)
		if e.Code != "" {
			msg += ", " + e.Code
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying SDK error.
func (e *Error) Unwrap() error { return e.Err }

// StatusCoder is implemented by errors that carry an HTTP-equivalent status.
type StatusCoder interface {
	error
	StatusCode() int
}

// StatusFrom extracts the HTTP-equivalent status from err, or 0 if none.
func StatusFrom(err error) int {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.StatusCode
	}
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.StatusCode()
	}
	return 0
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
