// Package policy defines local guardrails for back-office mutations.
package policy

import (
	"fmt"
	"strings"
)

const (
	// ModeReadOnly allows browsing only.
	ModeReadOnly = "read-only"
	// ModeReadWrite allows create, update and delete.
	ModeReadWrite = "read-write"
)

// Action is what a command does to a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Mutates reports whether the action changes remote state.
func (a Action) Mutates() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// Error is a refusal by a local guardrail. No request was made.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func refuse(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Guard enforces the configured mode.
type Guard struct {
	mode string
}

// NewGuard validates mode and returns a guard. An empty mode is read-write.
func NewGuard(mode string) (*Guard, error) {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		normalized = ModeReadWrite
	}

	switch normalized {
	case ModeReadOnly, ModeReadWrite:
		return &Guard{mode: normalized}, nil
	default:
		return nil, fmt.Errorf("invalid mode %q (allowed: %s|%s)", normalized, ModeReadOnly, ModeReadWrite)
	}
}

// Mode returns the resolved mode. A nil guard is read-only.
func (g *Guard) Mode() string {
	if g == nil {
		return ModeReadOnly
	}
	return g.mode
}

// Authorize allows or denies action on resource.
func (g *Guard) Authorize(action Action, resource string) error {
	name := strings.TrimSpace(resource)
	if name == "" {
		name = "record"
	}

	switch action {
	case ActionRead:
		return nil
	case ActionCreate, ActionUpdate, ActionDelete:
		if g.Mode() == ModeReadWrite {
			return nil
		}
		return refuse("%s %s requires read-write mode", action, name)
	default:
		return fmt.Errorf("%s has unknown action %q", name, string(action))
	}
}
