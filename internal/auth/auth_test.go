package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"git.cscs.ch/openchami/backoffice/pkg/types"
)

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func TestResolveToken_PrefersEnv(t *testing.T) {
	t.Setenv(TokenEnv, " env-token ")
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, writeFile(path, []byte("auth:\n  token: file-token\n")))

	resolved, err := ResolveToken(path)
	require.NoError(t, err)
	require.Equal(t, "env-token", resolved.Token)
	require.Equal(t, TokenSourceEnv, resolved.Source)
}

func TestResolveToken_UsesSessionFile(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, writeFile(path, []byte("auth:\n  token: file-token\n  email: admin@example.com\n")))

	resolved, err := ResolveToken(path)
	require.NoError(t, err)
	require.Equal(t, "file-token", resolved.Token)
	require.Equal(t, TokenSourceSession, resolved.Source)
	require.Equal(t, "admin@example.com", resolved.Email)
}

func TestResolveToken_MissingFileIsNone(t *testing.T) {
	t.Setenv(TokenEnv, "")

	resolved, err := ResolveToken(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Empty(t, resolved.Token)
	require.Equal(t, TokenSourceNone, resolved.Source)
}

func TestResolveToken_InvalidYAML(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, writeFile(path, []byte("auth: [unterminated\n")))

	_, err := ResolveToken(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decoding session file")
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")

	var sess SessionFile
	sess.Auth.Token = "abc"
	sess.Auth.Email = "admin@example.com"
	require.NoError(t, SaveSession(path, sess))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, found, err := LoadSession(path)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "abc", loaded.Auth.Token)

	require.NoError(t, DeleteSession(path))
	require.NoError(t, DeleteSession(path))
	_, found, err = LoadSession(path)
	require.NoError(t, err)
	require.False(t, found)
}

type fakeAuthenticator struct {
	LoginFn func(ctx context.Context, email, password string) (*types.LoginResponse, error)
}

func (f fakeAuthenticator) Login(ctx context.Context, email, password string) (*types.LoginResponse, error) {
	return f.LoginFn(ctx, email, password)
}

func (f fakeAuthenticator) BaseURL() string { return "http://api.test" }

func TestLogin_PersistsToken(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := filepath.Join(t.TempDir(), "session.yaml")
	authn := fakeAuthenticator{LoginFn: func(_ context.Context, email, password string) (*types.LoginResponse, error) {
		require.Equal(t, "admin@example.com", email)
		require.Equal(t, "pw", password)
		return &types.LoginResponse{Token: "issued"}, nil
	}}

	resp, err := Login(context.Background(), authn, " admin@example.com ", "pw", path)
	require.NoError(t, err)
	require.Equal(t, "issued", resp.Token)

	resolved, err := ResolveToken(path)
	require.NoError(t, err)
	require.Equal(t, "issued", resolved.Token)

	sess, _, err := LoadSession(path)
	require.NoError(t, err)
	require.Equal(t, "http://api.test", sess.Auth.APIURL)
}

func TestLogin_Failures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	authn := fakeAuthenticator{LoginFn: func(context.Context, string, string) (*types.LoginResponse, error) {
		return nil, errors.New("unauthorized")
	}}

	_, err := Login(context.Background(), authn, "", "pw", path)
	require.Error(t, err)

	_, err = Login(context.Background(), authn, "a@b.c", "pw", path)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "admin@example.com",
		"role": "admin",
		"exp":  exp.Unix(),
	}).SignedString([]byte("anything"))
	require.NoError(t, err)

	claims, err := Inspect(token)
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", claims.Subject)
	require.Equal(t, "admin", claims.Role)
	require.True(t, claims.ExpiresAt.Equal(exp))
	require.False(t, claims.Expired(time.Now()))
	require.True(t, claims.Expired(exp.Add(time.Second)))

	legacy, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 12}).SignedString([]byte("x"))
	require.NoError(t, err)
	claims, err = Inspect(legacy)
	require.NoError(t, err)
	require.Equal(t, "12", claims.Subject)
	require.False(t, claims.Expired(time.Now()))

	_, err = Inspect("not-a-jwt")
	require.Error(t, err)
}
