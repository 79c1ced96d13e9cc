package lbacclient

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResourcePath is returned before any request is issued.
	ErrEmptyResourcePath = errors.New("lbacclient: empty resource path")

	// ErrMalformedResponse marks a 2xx response whose body is not
	// {"results": {<label>: <number>, ...}}.
	ErrMalformedResponse = errors.New("lbacclient: malformed response")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %s", e.URL, e.Status)
}

// TransportError is returned when no response reached the client: dial
// failures, timeouts, cancellation, or a body cut short.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a
// StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
