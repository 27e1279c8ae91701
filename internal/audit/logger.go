// Package audit provides structured audit logging for committed mutations.
package audit

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`)
	keyValuePattern    = regexp.MustCompile(`(?i)\b(token|secret|password|authorization)\s*[:=]\s*([^\s,;]+)`)
	sensitiveKeys      = []string{"password", "token", "secret", "authorization"}
)

const redacted = "[REDACTED]"

// Mutation captures one finished create, update or delete.
type Mutation struct {
	RequestID   string
	Action      string
	Resource    string
	ID          int64
	Mode        string
	Subject     string
	Changes     map[string]any
	Result      string
	ErrorDetail string
	Duration    time.Duration
}

// Logger emits structured audit entries.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record writes a single entry for one mutation. A nil Logger is a no-op.
func (l *Logger) Record(event Mutation) {
	if l == nil {
		return
	}

	result := strings.TrimSpace(event.Result)
	if result == "" {
		result = "error"
	}
	action := strings.TrimSpace(event.Action)
	if action == "" {
		action = "unknown"
	}
	mode := strings.TrimSpace(event.Mode)
	if mode == "" {
		mode = "read-write"
	}
	duration := event.Duration
	if duration < 0 {
		duration = 0
	}

	entry := l.logger.Info().
		Str("event", "backoffice.mutation.completed").
		Str("request_id", strings.TrimSpace(event.RequestID)).
		Str("action", action).
		Str("resource", strings.TrimSpace(event.Resource)).
		Str("mode", mode).
		Str("caller_subject", strings.TrimSpace(event.Subject)).
		Str("result", result).
		Int64("duration_ms", duration.Milliseconds())

	if event.ID > 0 {
		entry = entry.Int64("id", event.ID)
	}
	if len(event.Changes) > 0 {
		entry = entry.
			Strs("changed_fields", ChangedFields(event.Changes)).
			Interface("changes", RedactFields(event.Changes))
	}
	if detail := RedactSensitiveText(event.ErrorDetail); detail != "" {
		entry = entry.Str("error_detail", detail)
	}

	entry.Msg("mutation completed")
}

// ChangedFields returns the sorted field names of changes.
func ChangedFields(changes map[string]any) []string {
	names := make([]string, 0, len(changes))
	for name := range changes {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	slices.Sort(names)
	return names
}

// RedactFields copies changes with the values of secret-looking keys replaced.
func RedactFields(changes map[string]any) map[string]any {
	if changes == nil {
		return nil
	}
	out := make(map[string]any, len(changes))
	for key, value := range changes {
		if isSensitiveKey(key) {
			out[key] = redacted
			continue
		}
		if text, ok := value.(string); ok {
			out[key] = RedactSensitiveText(text)
			continue
		}
		out[key] = value
	}
	return out
}

// RedactSensitiveText removes obvious secrets from free text.
func RedactSensitiveText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	out := bearerTokenPattern.ReplaceAllString(trimmed, "Bearer "+redacted)
	out = keyValuePattern.ReplaceAllStringFunc(out, func(match string) string {
		if key, _, ok := strings.Cut(match, ":"); ok {
			return fmt.Sprintf("%s: %s", strings.TrimSpace(key), redacted)
		}
		if key, _, ok := strings.Cut(match, "="); ok {
			return fmt.Sprintf("%s=%s", strings.TrimSpace(key), redacted)
		}
		return redacted
	})
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
