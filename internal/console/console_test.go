package console

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"git.cscs.ch/openchami/backoffice/internal/audit"
	"git.cscs.ch/openchami/backoffice/internal/backoffice"
	"git.cscs.ch/openchami/backoffice/internal/collection"
	"git.cscs.ch/openchami/backoffice/internal/editor"
	"git.cscs.ch/openchami/backoffice/internal/mockapi"
	"git.cscs.ch/openchami/backoffice/internal/policy"
	"git.cscs.ch/openchami/backoffice/pkg/client"
)

type harness struct {
	console *Console
	store   *mockapi.Store
	out     *bytes.Buffer
	audit   *bytes.Buffer
}

func newHarness(t *testing.T, mode string) *harness {
	t.Helper()

	st := mockapi.NewStore(bcrypt.MinCost)
	require.NoError(t, mockapi.Seed(st))
	srv := httptest.NewServer(mockapi.New(st, mockapi.Options{Secret: []byte("s"), Logger: zerolog.Nop()}))
	t.Cleanup(srv.Close)

	c, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	guard, err := policy.NewGuard(mode)
	require.NoError(t, err)

	auditBuf := &bytes.Buffer{}
	screens, catalog, err := Screens(c, backoffice.Options{
		Limit:   5,
		Logger:  zerolog.Nop(),
		Audit:   audit.NewLogger(zerolog.New(auditBuf)),
		Mode:    guard.Mode(),
		Subject: "admin@example.com",
	})
	require.NoError(t, err)

	con, err := New(Options{
		Screens:  screens,
		Guard:    guard,
		Catalog:  catalog,
		Products: c.Products(),
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Now().Add(time.Minute) },
	})
	require.NoError(t, err)
	require.NoError(t, con.Start(context.Background()))

	out := &bytes.Buffer{}
	con.SetOutput(out)
	return &harness{console: con, store: st, out: out, audit: auditBuf}
}

// exec runs line and returns what it printed.
func (h *harness) exec(t *testing.T, line string) (string, error) {
	t.Helper()
	h.out.Reset()
	err := h.console.Exec(context.Background(), line)
	return h.out.String(), err
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestConsole_ListAndNavigate(t *testing.T) {
	h := newHarness(t, policy.ModeReadWrite)

	out, err := h.exec(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "products  page 1/3  showing 5 of 12  [read-write]")
	assert.Contains(t, out, "Pen set")

	out, err = h.exec(t, "next")
	require.NoError(t, err)
	assert.Contains(t, out, "page 2/3")

	_, err = h.exec(t, "page 9")
	require.ErrorIs(t, err, collection.ErrPageOutOfRange)

	out, err = h.exec(t, "search lamp")
	require.NoError(t, err)
	assert.Contains(t, out, `page 1/1  showing 1 of 1  search "lamp"`)
	assert.Contains(t, out, "Desk lamp")

	out, err = h.exec(t, "search")
	require.NoError(t, err)
	assert.Contains(t, out, "showing 5 of 12")

	out, err = h.exec(t, "use users")
	require.NoError(t, err)
	assert.Contains(t, out, "users  page 1/1  showing 4 of 4")

	_, err = h.exec(t, "use widgets")
	require.Error(t, err)
	_, err = h.exec(t, "frobnicate")
	require.Error(t, err)
}

func TestConsole_CreateOrder(t *testing.T) {
	h := newHarness(t, policy.ModeReadWrite)

	_, err := h.exec(t, "use orders")
	require.NoError(t, err)

	out, err := h.exec(t, "new")
	require.NoError(t, err)
	assert.Contains(t, out, "create order (open)")

	for _, line := range []string{
		"set firstname Jo",
		"set lastname Doe",
		"set email jo@example.com",
		"set phoneNumber 555 0100",
		"set address 1 Main Street",
		"line product 1 1",
		"line qty 1 2",
		"line add",
		"line product 2 2",
	} {
		_, err := h.exec(t, line)
		require.NoError(t, err, line)
	}

	out, err = h.exec(t, "draft")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 Desk lamp")
	assert.Contains(t, out, "24.98")

	_, err = h.exec(t, "line product 2 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "This product is already added to the order")

	_, err = h.exec(t, "line product 2 999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Product 999 does not exist")

	out, err = h.exec(t, "submit")
	require.NoError(t, err)
	assert.Contains(t, out, "created order 4")
	assert.Contains(t, out, "showing 4 of 4")
	assert.Contains(t, out, "24.98")

	_, err = h.exec(t, "draft")
	require.Error(t, err)

	assert.Contains(t, h.audit.String(), `"action":"create"`)
	assert.Contains(t, h.audit.String(), `"request_id":"`)
}

func TestConsole_SubmitRejectedKeepsSession(t *testing.T) {
	h := newHarness(t, policy.ModeReadWrite)
	_, err := h.exec(t, "use orders")
	require.NoError(t, err)

	_, err = h.exec(t, "edit 2")
	require.NoError(t, err)
	_, err = h.exec(t, "set status shipped")
	require.Error(t, err)

	_, err = h.exec(t, "set address Somewhere else")
	require.NoError(t, err)
	require.NoError(t, h.store.DeleteOrder(2))

	_, err = h.exec(t, "submit")
	require.Error(t, err)
	assert.Equal(t, "Order not found", err.Error())

	out, err := h.exec(t, "draft")
	require.NoError(t, err)
	assert.Contains(t, out, "edit order 2 (open)")
	assert.Contains(t, out, "! Order not found")

	out, err = h.exec(t, "cancel")
	require.NoError(t, err)
	assert.Contains(t, out, "draft discarded")
}

func TestConsole_UnchangedEditClosesWithoutRequest(t *testing.T) {
	h := newHarness(t, policy.ModeReadWrite)

	_, err := h.exec(t, "edit 12")
	require.NoError(t, err)
	out, err := h.exec(t, "submit")
	require.NoError(t, err)
	assert.Contains(t, out, "no changes to product 12")
}

func TestConsole_OneDraftAcrossScreens(t *testing.T) {
	h := newHarness(t, policy.ModeReadWrite)

	_, err := h.exec(t, "new")
	require.NoError(t, err)
	_, err = h.exec(t, "use orders")
	require.NoError(t, err)

	_, err = h.exec(t, "new")
	require.ErrorIs(t, err, editor.ErrSessionOpen)
	assert.Contains(t, err.Error(), "create product draft on products")
	_, err = h.exec(t, "edit 1")
	require.ErrorIs(t, err, editor.ErrSessionOpen)

	open := 0
	for _, s := range h.console.screens {
		if _, ok := s.Draft(); ok {
			open++
		}
	}
	assert.Equal(t, 1, open)

	_, err = h.exec(t, "use products")
	require.NoError(t, err)
	_, err = h.exec(t, "cancel")
	require.NoError(t, err)
	_, err = h.exec(t, "use orders")
	require.NoError(t, err)
	out, err := h.exec(t, "edit 1")
	require.NoError(t, err)
	assert.Contains(t, out, "edit order 1 (open)")
}

func TestConsole_DeleteRequiresConfirmation(t *testing.T) {
	h := newHarness(t, policy.ModeReadWrite)

	_, err := h.exec(t, "delete 12")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires confirmation")

	out, err := h.exec(t, "delete 12 confirm")
	require.NoError(t, err)
	assert.Contains(t, out, "showing 4 of 11")
	assert.NotContains(t, out, "Pen set")

	// Already gone on the server: treated as success.
	_, err = h.exec(t, "delete 12 confirm")
	require.NoError(t, err)
	assert.Contains(t, h.audit.String(), `"action":"delete"`)
}

func TestConsole_ReadOnlyBlocksMutations(t *testing.T) {
	h := newHarness(t, policy.ModeReadOnly)

	out, err := h.exec(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "[read-only]")

	_, err = h.exec(t, "new")
	require.EqualError(t, err, "create product requires read-write mode")
	_, err = h.exec(t, "edit 1")
	require.EqualError(t, err, "update product requires read-write mode")
	_, err = h.exec(t, "delete 1 confirm")
	require.EqualError(t, err, "delete product requires read-write mode")

	_, err = h.exec(t, "show 12")
	require.NoError(t, err)
}

func TestConsole_Run(t *testing.T) {
	h := newHarness(t, policy.ModeReadWrite)

	var out bytes.Buffer
	err := h.console.Run(context.Background(), strings.NewReader("use orders\nbogus\nquit\nlist\n"), &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "products> ")
	assert.Contains(t, text, "orders> ")
	assert.Contains(t, text, `error: unknown command "bogus"`)
	assert.Equal(t, 1, strings.Count(text, "orders  page"), "commands after quit must not run")
}
