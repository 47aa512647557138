package upload

import (
	"errors"
	"fmt"
)

// TransportError means the request never produced an HTTP response:
// DNS failure, refused connection, reset, or a configured timeout.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError means the endpoint answered with a non-2xx status.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// ResponseShapeError means a 2xx response body could not be decoded as the
// expected JSON object. It is reported alongside a successful Response and
// never fails an upload.
type ResponseShapeError struct {
	ContentType string
	Err         error
}

func (e *ResponseShapeError) Error() string {
	return fmt.Sprintf("unexpected response body (content-type %q): %v", e.ContentType, e.Err)
}

func (e *ResponseShapeError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status from a ServerError, or 0.
func StatusCode(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
