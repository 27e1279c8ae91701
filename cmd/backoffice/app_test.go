package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"git.cscs.ch/openchami/backoffice/internal/mockapi"
)

func startMock(t *testing.T) *mockapi.Store {
	t.Helper()
	st := mockapi.NewStore(bcrypt.MinCost)
	require.NoError(t, mockapi.Seed(st))
	srv := httptest.NewServer(mockapi.New(st, mockapi.Options{
		Secret: []byte("s"), RequireAuth: true, Logger: zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)

	t.Setenv("HOME", t.TempDir())
	t.Setenv("BACKOFFICE_API_URL", srv.URL)
	t.Setenv("BACKOFFICE_SESSION_PATH", filepath.Join(t.TempDir(), "session.yaml"))
	t.Setenv("BACKOFFICE_TOKEN", "")
	t.Setenv("BACKOFFICE_PASSWORD", "")
	t.Setenv("BACKOFFICE_LOG_LEVEL", "error")
	return st
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	app := newApp(strings.NewReader(stdin), &out, &logs)
	err := app.RunContext(context.Background(), append([]string{"backoffice"}, args...))
	return out.String(), err
}

func TestCLI_LoginWhoamiLogout(t *testing.T) {
	startMock(t)

	out, err := run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "not signed in")

	_, err = run(t, "", "orders", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")

	out, err = run(t, mockapi.SeedAdminPassword+"\n", "login", "--email", mockapi.SeedAdminEmail)
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as Back Office")

	out, err = run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "token source: session_file")
	assert.Contains(t, out, "subject:      "+mockapi.SeedAdminEmail)
	assert.Contains(t, out, "role:         admin")
	assert.Contains(t, out, "(valid)")

	_, err = run(t, "", "login", "--email", mockapi.SeedAdminEmail, "--password", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid email or password")

	out, err = run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")

	out, err = run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "not signed in")
}

func TestCLI_ListAndDelete(t *testing.T) {
	st := startMock(t)
	_, err := run(t, "", "login", "--email", mockapi.SeedAdminEmail, "--password", mockapi.SeedAdminPassword)
	require.NoError(t, err)

	out, err := run(t, "", "products", "list", "--limit", "5", "--page", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "products  page 3/3  showing 2 of 12")
	assert.Contains(t, out, "Desk lamp")

	out, err = run(t, "", "orders", "list", "--query", "turing")
	require.NoError(t, err)
	assert.Contains(t, out, "showing 1 of 1")

	_, err = run(t, "", "orders", "delete", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires confirmation")

	out, err = run(t, "", "orders", "delete", "3", "--confirm")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted order 3")
	_, err = st.GetOrder(3)
	require.ErrorIs(t, err, mockapi.ErrNotFound)

	out, err = run(t, "", "orders", "delete", "--confirm", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted order 2")

	out, err = run(t, "", "orders", "delete", "1", "confirm")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted order 1")

	// Already gone on the server.
	_, err = run(t, "", "orders", "delete", "1", "--confirm")
	require.NoError(t, err)

	_, err = run(t, "", "orders", "delete", "1", "--force")
	require.EqualError(t, err, "usage: backoffice orders delete <id> --confirm")

	_, err = run(t, "", "--mode", "read-only", "products", "delete", "2", "--confirm")
	require.EqualError(t, err, "delete product requires read-write mode")
	_, err = st.GetProduct(2)
	require.NoError(t, err)
}

func TestCLI_ListRejectsOutOfRangeLimit(t *testing.T) {
	startMock(t)
	_, err := run(t, "", "login", "--email", mockapi.SeedAdminEmail, "--password", mockapi.SeedAdminPassword)
	require.NoError(t, err)

	_, err = run(t, "", "products", "list", "--limit", "500")
	require.EqualError(t, err, "invalid --limit: page size 500 out of range (allowed: 1-100)")
}

func TestCLI_ConsoleSession(t *testing.T) {
	startMock(t)
	_, err := run(t, "", "login", "--email", mockapi.SeedAdminEmail, "--password", mockapi.SeedAdminPassword)
	require.NoError(t, err)

	out, err := run(t, "use users\nnew\nset firstname Kim\nset lastname Lee\nset email KIM@example.com\nset password secret1\nsubmit\nquit\n", "console")
	require.NoError(t, err)
	assert.Contains(t, out, "created user 5")
	assert.Contains(t, out, "kim@example.com")
}
