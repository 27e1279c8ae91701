package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionOpen is returned when opening a session while one is open.
	ErrSessionOpen = errors.New("an edit session is already open")
	// ErrNoSession is returned by draft operations when no session is open.
	ErrNoSession = errors.New("no edit session is open")
	// ErrSubmitting is returned while a submit is in flight.
	ErrSubmitting = errors.New("the edit session is being submitted")
)

// LocalValidationError rejects a draft before any request is made.
type LocalValidationError struct {
	Field   string
	Message string
}

func (e *LocalValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid draft: %s", e.Message)
	}
	return fmt.Sprintf("invalid draft: %s: %s", e.Field, e.Message)
}

// UserMessage returns the text shown to staff.
func (e *LocalValidationError) UserMessage() string {
	return e.Message
}

// Invalid builds a LocalValidationError.
func Invalid(field, format string, args ...any) error {
	return &LocalValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsLocalValidation reports whether err was produced by local validation.
func IsLocalValidation(err error) bool {
	var lve *LocalValidationError
	return errors.As(err, &lve)
}
