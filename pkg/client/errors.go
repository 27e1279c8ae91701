package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// NetworkError reports a transport failure: no HTTP response was received.
type NetworkError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *NetworkError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("network error during %s: %v", strings.TrimSpace(e.Op), e.Err)
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ServerError reports a non-2xx response.
type ServerError struct {
	Status  int
	Message string
}

// Error implements error.
func (e *ServerError) Error() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
}

// ValidationError reports input rejected by the remote API. It is produced by
// create and update calls for 4xx responses that carry a message.
type ValidationError struct {
	Status  int
	Message string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("rejected by server (%d): %s", e.Status, strings.TrimSpace(e.Message))
}

// IsNotFound reports whether err is a 404 from the remote API.
func IsNotFound(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Status == http.StatusNotFound
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Status == http.StatusNotFound
	}
	return false
}

// UserMessage returns the text to show staff for err. Server-provided messages
// win; otherwise fallback is returned.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var messenger interface{ UserMessage() string }
	if errors.As(err, &messenger) {
		if msg := strings.TrimSpace(messenger.UserMessage()); msg != "" {
			return msg
		}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		if msg := strings.TrimSpace(validationErr.Message); msg != "" {
			return msg
		}
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		if msg := strings.TrimSpace(serverErr.Message); msg != "" {
			return msg
		}
	}

	return fallback
}

// asValidation turns a 4xx ServerError carrying a message into a
// ValidationError. Authentication and not-found responses stay ServerErrors:
// they do not describe a problem with the submitted fields.
func asValidation(err error) error {
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	if serverErr.Status < 400 || serverErr.Status >= 500 {
		return err
	}
	switch serverErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return err
	}
	if strings.TrimSpace(serverErr.Message) == "" {
		return err
	}
	return &ValidationError{Status: serverErr.Status, Message: serverErr.Message}
}
