package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.cscs.ch/openchami/backoffice/pkg/types"
)

// SessionFile is the YAML document persisted by login.
type SessionFile struct {
	Auth struct {
		Token   string    `yaml:"token"`
		Email   string    `yaml:"email,omitempty"`
		APIURL  string    `yaml:"api_url,omitempty"`
		SavedAt time.Time `yaml:"saved_at,omitempty"`
	} `yaml:"auth"`
}

// LoadSession reads the session file. A missing file is not an error; found
// reports whether it existed.
func LoadSession(path string) (SessionFile, bool, error) {
	var sess SessionFile
	if strings.TrimSpace(path) == "" {
		return sess, false, nil
	}

	data, err := os.ReadFile(expandPath(path))
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return sess, false, nil
	default:
		return sess, false, fmt.Errorf("reading session file: %w", err)
	}

	if err := yaml.Unmarshal(data, &sess); err != nil {
		return SessionFile{}, false, fmt.Errorf("decoding session file: %w", err)
	}
	return sess, true, nil
}

// SaveSession writes the session file readable by the owner only.
func SaveSession(path string, sess SessionFile) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("session path is empty")
	}
	resolved := expandPath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := yaml.Marshal(&sess)
	if err != nil {
		return fmt.Errorf("encoding session file: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// DeleteSession removes the session file. A missing file is not an error.
func DeleteSession(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	err := os.Remove(expandPath(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// Authenticator performs the login exchange.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*types.LoginResponse, error)
	BaseURL() string
}

// Login exchanges credentials for a token and persists it at sessionPath.
func Login(ctx context.Context, authn Authenticator, email, password, sessionPath string) (*types.LoginResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	resp, err := authn.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	var sess SessionFile
	sess.Auth.Token = resp.Token
	sess.Auth.Email = email
	sess.Auth.APIURL = authn.BaseURL()
	sess.Auth.SavedAt = time.Now().UTC().Truncate(time.Second)
	if err := SaveSession(sessionPath, sess); err != nil {
		return nil, err
	}
	return resp, nil
}
