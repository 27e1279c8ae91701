package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:4000", cfg.APIURL)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 10, cfg.PageSize)
	require.Equal(t, ModeReadWrite, cfg.Mode)
	require.Equal(t, filepath.Join(home, ".backoffice", "session.yaml"), cfg.SessionPath)
	require.Zero(t, cfg.Timeout)
	require.False(t, cfg.AssumeYes)
	require.Equal(t, ":4000", cfg.MockListenAddr)
	require.Equal(t, "dev-secret", cfg.MockJWTSecret)
}

func TestLoad_Overrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("BACKOFFICE_API_URL", "https://shop.example.com/api/")
	t.Setenv("BACKOFFICE_LOG_LEVEL", "DEBUG")
	t.Setenv("BACKOFFICE_PAGE_SIZE", "25")
	t.Setenv("BACKOFFICE_MODE", " Read-Only ")
	t.Setenv("BACKOFFICE_SESSION_PATH", "~/custom/session.yaml")
	t.Setenv("BACKOFFICE_TIMEOUT", "15s")
	t.Setenv("BACKOFFICE_ASSUME_YES", "true")
	t.Setenv("BACKOFFICE_MOCK_LISTEN_ADDR", "127.0.0.1:5000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://shop.example.com/api", cfg.APIURL)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 25, cfg.PageSize)
	require.Equal(t, ModeReadOnly, cfg.Mode)
	require.Equal(t, filepath.Join(home, "custom", "session.yaml"), cfg.SessionPath)
	require.Equal(t, 15*time.Second, cfg.Timeout)
	require.True(t, cfg.AssumeYes)
	require.Equal(t, "127.0.0.1:5000", cfg.MockListenAddr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "mode", key: "BACKOFFICE_MODE", val: "admin", want: "invalid BACKOFFICE_MODE"},
		{name: "page size too large", key: "BACKOFFICE_PAGE_SIZE", val: "500", want: "invalid BACKOFFICE_PAGE_SIZE"},
		{name: "page size zero", key: "BACKOFFICE_PAGE_SIZE", val: "0", want: "invalid BACKOFFICE_PAGE_SIZE"},
		{name: "page size not a number", key: "BACKOFFICE_PAGE_SIZE", val: "ten", want: "reading environment"},
		{name: "url scheme", key: "BACKOFFICE_API_URL", val: "ftp://example.com", want: "scheme"},
		{name: "relative url", key: "BACKOFFICE_API_URL", val: "localhost", want: "invalid BACKOFFICE_API_URL"},
		{name: "log level", key: "BACKOFFICE_LOG_LEVEL", val: "loud", want: "invalid BACKOFFICE_LOG_LEVEL"},
		{name: "timeout", key: "BACKOFFICE_TIMEOUT", val: "-1s", want: "invalid BACKOFFICE_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckPageSize(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckPageSize(1))
	require.NoError(t, CheckPageSize(100))
	require.EqualError(t, CheckPageSize(101), "page size 101 out of range (allowed: 1-100)")
	require.Error(t, CheckPageSize(0))
}
