// Package apierror defines the classified error surfaced by the request
// pipeline and the session manager. Callers switch on Type to map failures to
// user facing behaviour without inspecting transport details.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Type is the stable discriminant of a classified failure.
type Type string

const (
	TypeNetwork    Type = "network"    // no response received
	TypeTimeout    Type = "timeout"    // response exceeded its deadline
	TypeAuth       Type = "auth"       // 401, credential rejected
	TypeServer     Type = "server"     // any other non-2xx status
	TypeValidation Type = "validation" // malformed caller input
	TypeRefresh    Type = "refresh"    // the refresh cycle itself failed
)

// Error is a classified failure with the original status and message.
type Error struct {
	Type    Type
	Status  int
	Message string
	Method  string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Path == "" {
		return fmt.Sprintf("%s error: %s", e.Type, msg)
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s error: %s %s: %d %s", e.Type, e.Method, e.Path, e.Status, msg)
	}
	return fmt.Sprintf("%s error: %s %s: %s", e.Type, e.Method, e.Path, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether the caller should send the user back to re-authentication.
func (e *Error) IsAuthError() bool {
	return e.Type == TypeAuth || e.Type == TypeRefresh
}

// Transient reports whether the failure happened below the HTTP layer.
func (e *Error) Transient() bool {
	return e.Type == TypeNetwork || e.Type == TypeTimeout
}

// New builds an Error of the given type.
func New(t Type, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// FromStatus classifies a completed non-2xx response.
func FromStatus(method, path string, status int, body []byte) *Error {
	t := TypeServer
	if status == http.StatusUnauthorized {
		t = TypeAuth
	}
	return &Error{
		Type:    t,
		Status:  status,
		Message: statusMessage(status, body),
		Method:  method,
		Path:    path,
	}
}

// FromTransport classifies an error returned by the transport before any
// response was received.
func FromTransport(method, path string, err error) *Error {
	t := TypeNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		t = TypeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		t = TypeTimeout
	}
	return &Error{Type: t, Method: method, Path: path, Message: transportMessage(t), Err: err}
}

// TypeOf returns the classification of err, or "" when err is not an *Error.
func TypeOf(err error) Type {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ""
}

// IsAuth reports whether err carries an auth or refresh classification.
func IsAuth(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.IsAuthError()
}

const maxBodyMessage = 256

func statusMessage(status int, body []byte) string {
	text := http.StatusText(status)
	if len(body) == 0 {
		return text
	}
	if len(body) > maxBodyMessage {
		body = body[:maxBodyMessage]
	}
	return text + ": " + string(body)
}

func transportMessage(t Type) string {
	if t == TypeTimeout {
		return "request timed out"
	}
	return "network unavailable"
}
