package rest

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCircuitOpen is returned without a request being sent when the host's
// circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

// StatusError is a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string // "message" field of a JSON error body, if any
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
}

// StatusCode returns the status of a wrapped StatusError, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsClientError reports whether err is a 4xx response other than 429.
// Client errors are not retried and do not trip the breaker.
func IsClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}
