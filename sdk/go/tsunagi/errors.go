// Package tsunagi provides a Go client for the tsunagi function host.
package tsunagi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an error from the tsunagi API with the HTTP status code
// and the server's error message. Function failures are not Errors; they
// arrive in the response, see Response.Err.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tsunagi: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// FunctionError is a failure a function reported in-band.
type FunctionError struct {
	Function string
	Message  string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("tsunagi: function %s failed: %s", e.Function, e.Message)
}

func hasStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == status
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool { return hasStatus(err, http.StatusUnauthorized) }

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool { return hasStatus(err, http.StatusTooManyRequests) }
