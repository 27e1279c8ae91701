// Package config loads backoffice configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

const (
	// ModeReadOnly refuses create, edit and delete locally.
	ModeReadOnly = "read-only"
	// ModeReadWrite allows every operation.
	ModeReadWrite = "read-write"

	envPrefix = "BACKOFFICE"

	defaultAPIURL      = "http://localhost:4000"
	defaultSessionFile = ".backoffice/session.yaml"
	defaultMockAddr    = ":4000"
	maxPageSize        = 100
)

// Config holds runtime configuration.
type Config struct {
	APIURL      string        `envconfig:"API_URL" default:"http://localhost:4000"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	PageSize    int           `envconfig:"PAGE_SIZE" default:"10"`
	Mode        string        `envconfig:"MODE" default:"read-write"`
	SessionPath string        `envconfig:"SESSION_PATH"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"0s"`
	AssumeYes   bool          `envconfig:"ASSUME_YES" default:"false"`

	MockListenAddr string `envconfig:"MOCK_LISTEN_ADDR" default:":4000"`
	MockJWTSecret  string `envconfig:"MOCK_JWT_SECRET" default:"dev-secret"`
}

// Load returns configuration parsed from BACKOFFICE_* environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	return cfg.normalize()
}

func (cfg Config) normalize() (Config, error) {
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	parsed, err := url.Parse(cfg.APIURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Config{}, fmt.Errorf("invalid BACKOFFICE_API_URL %q (expected an absolute http(s) URL)", cfg.APIURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Config{}, fmt.Errorf("invalid BACKOFFICE_API_URL scheme %q (allowed: http|https)", parsed.Scheme)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("invalid BACKOFFICE_LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	if err := CheckPageSize(cfg.PageSize); err != nil {
		return Config{}, fmt.Errorf("invalid BACKOFFICE_PAGE_SIZE: %w", err)
	}

	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeReadWrite
	case ModeReadOnly, ModeReadWrite:
	default:
		return Config{}, fmt.Errorf("invalid BACKOFFICE_MODE %q (allowed: %s|%s)", cfg.Mode, ModeReadOnly, ModeReadWrite)
	}

	if cfg.Timeout < 0 {
		return Config{}, fmt.Errorf("invalid BACKOFFICE_TIMEOUT %s (must not be negative)", cfg.Timeout)
	}

	cfg.SessionPath = strings.TrimSpace(cfg.SessionPath)
	if cfg.SessionPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolving home directory for session file: %w", err)
		}
		cfg.SessionPath = filepath.Join(home, defaultSessionFile)
	} else if strings.HasPrefix(cfg.SessionPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolving home directory for session file: %w", err)
		}
		cfg.SessionPath = filepath.Join(home, cfg.SessionPath[2:])
	}

	if strings.TrimSpace(cfg.MockListenAddr) == "" {
		cfg.MockListenAddr = defaultMockAddr
	}
	if strings.TrimSpace(cfg.MockJWTSecret) == "" {
		return Config{}, fmt.Errorf("BACKOFFICE_MOCK_JWT_SECRET must not be empty")
	}

	return cfg, nil
}

// CheckPageSize rejects page sizes the API does not serve.
func CheckPageSize(n int) error {
	if n < 1 || n > maxPageSize {
		return fmt.Errorf("page size %d out of range (allowed: 1-%d)", n, maxPageSize)
	}
	return nil
}
