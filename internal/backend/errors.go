package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport matches every TransportError.
var ErrTransport = errors.New("backend unreachable")

// TransportError reports that a request never produced a backend response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RejectedError is a non-2xx backend response.
type RejectedError struct {
	Op         string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *RejectedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("failed to %s: backend returned %d: %s", e.Op, e.StatusCode, msg)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected) && rejected.StatusCode == http.StatusNotFound
}
