// Package auth resolves and persists the bearer token used for API calls.
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TokenEnv overrides any persisted session.
const TokenEnv = "BACKOFFICE_TOKEN"

// TokenSource identifies where a token was resolved from.
type TokenSource string

const (
	// TokenSourceNone means no token was found.
	TokenSourceNone TokenSource = "none"
	// TokenSourceEnv is BACKOFFICE_TOKEN.
	TokenSourceEnv TokenSource = "backoffice_token"
	// TokenSourceSession is the session file written by login.
	TokenSourceSession TokenSource = "session_file"
)

// TokenResolution contains the resolved token and source.
type TokenResolution struct {
	Token  string
	Source TokenSource
	// Email is the login recorded in the session file, if any.
	Email string
}

// ResolveToken resolves the token using deterministic precedence:
// 1) BACKOFFICE_TOKEN
// 2) the session file at sessionPath
func ResolveToken(sessionPath string) (TokenResolution, error) {
	if token := strings.TrimSpace(os.Getenv(TokenEnv)); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceEnv}, nil
	}

	sess, found, err := LoadSession(sessionPath)
	if err != nil {
		return TokenResolution{}, fmt.Errorf("reading session token source: %w", err)
	}
	token := strings.TrimSpace(sess.Auth.Token)
	if !found || token == "" {
		return TokenResolution{Source: TokenSourceNone}, nil
	}
	return TokenResolution{Token: token, Source: TokenSourceSession, Email: sess.Auth.Email}, nil
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return filepath.Clean(path)
}
