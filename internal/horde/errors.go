package horde

import (
	"errors"
	"fmt"
)

// Lifecycle errors
var (
	// ErrConnectionExhausted indicates the poll retry budget was spent on connection failures
	ErrConnectionExhausted = errors.New("connection retries exhausted")

	// ErrMissingJobID indicates an operation needed a job id that was never assigned
	ErrMissingJobID = errors.New("job id is required")

	// errInterrupted is returned by waits that were cut short by the interrupt channel
	errInterrupted = errors.New("interrupted")
)

// APIError is a non-success HTTP response from the service. Body holds the raw
// response text so it can be surfaced to the user verbatim.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// ConnectionError is a transport-level failure: the request never produced an
// HTTP response. Only this kind of failure is retried while polling.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ParseError indicates a response body that was not valid JSON or was missing
// required fields.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response from %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FaultError reports a job the service marked as faulted. Request is the
// redacted request summary, never the raw image payloads.
type FaultError struct {
	JobID   string
	Kudos   float64
	Request string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("job %s faulted after %g kudos. Something went wrong when generating the request. "+
		"Please contact the horde administrator with your request details: %s", e.JobID, e.Kudos, e.Request)
}

// IsConnectionError reports whether err is a retryable transport failure.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
