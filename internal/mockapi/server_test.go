package mockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.cscs.ch/openchami/backoffice/pkg/client"
	"git.cscs.ch/openchami/backoffice/pkg/types"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	opts.Secret = testSecret
	opts.Logger = zerolog.Nop()
	srv := httptest.NewServer(New(seededStore(t), opts))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, token string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func login(t *testing.T, baseURL, email, password string) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(types.LoginRequest{Email: email, Password: password})
	require.NoError(t, err)
	resp, payload := doRequest(t, http.MethodPost, baseURL+"/auth/login", "", bytes.NewReader(body), "application/json")
	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	return resp, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Options{Version: "test"})

	resp, payload := doRequest(t, http.MethodGet, srv.URL+"/health", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, string(payload))
}

func TestListProducts_Envelope(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, payload := doRequest(t, http.MethodGet, srv.URL+"/product/all?page=1&limit=5", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page types.Page[types.Product]
	require.NoError(t, json.Unmarshal(payload, &page))
	assert.Len(t, page.Items, 5)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 5, page.Limit)
	assert.Equal(t, 3, page.PageCount)
	assert.Equal(t, 12, page.Total)

	_, payload = doRequest(t, http.MethodGet, srv.URL+"/product/all?page=9&limit=5", "", nil, "")
	require.NoError(t, json.Unmarshal(payload, &page))
	assert.Empty(t, page.Items)
	assert.Equal(t, 12, page.Total)

	_, payload = doRequest(t, http.MethodGet, srv.URL+"/product/all?searchQuery=zzz", "", nil, "")
	require.NoError(t, json.Unmarshal(payload, &page))
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 1, page.PageCount)
	assert.Contains(t, string(payload), `"data":[]`)
}

func TestListProducts_BadQuery(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, payload := doRequest(t, http.MethodGet, srv.URL+"/product/all?page=0", "", nil, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"statusCode":400,"message":"page must be a positive integer","error":"Bad Request"}`, string(payload))
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, body := login(t, srv.URL, SeedAdminEmail, SeedAdminPassword)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["accessToken"])

	resp, _ = login(t, srv.URL, SeedAdminEmail, "nope")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = login(t, srv.URL, "ada@example.com", "engine42")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Only staff accounts can sign in", body["message"])
}

func TestRequireAuth(t *testing.T) {
	srv := newTestServer(t, Options{RequireAuth: true})

	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/order", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/order", "garbage", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, body := login(t, srv.URL, SeedAdminEmail, SeedAdminPassword)
	token, _ := body["accessToken"].(string)
	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/order", token, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateProduct_Multipart(t *testing.T) {
	srv := newTestServer(t, Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Lamp"))
	require.NoError(t, mw.WriteField("description", "Bright"))
	require.NoError(t, mw.WriteField("price", "12.5"))
	part, err := mw.CreateFormFile("image", "lamp.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, payload := doRequest(t, http.MethodPost, srv.URL+"/product", "", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(payload))

	var p types.Product
	require.NoError(t, json.Unmarshal(payload, &p))
	assert.Equal(t, int64(13), p.ID)
	assert.Equal(t, types.Amount(12.5), p.Price)
	assert.True(t, strings.HasPrefix(p.Image, "/uploads/"))
	assert.True(t, strings.HasSuffix(p.Image, ".png"))
}

func TestCreateProduct_ValidationMessages(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, payload := doRequest(t, http.MethodPost, srv.URL+"/product", "", strings.NewReader(`{"price":0}`), "application/json")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body types.ErrorBody
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Len(t, body.Message, 3)
	assert.Equal(t, "Bad Request", body.Error)
}

func TestOrders_TotalAsStringAndLegacyList(t *testing.T) {
	srv := newTestServer(t, Options{})
	_, payload := doRequest(t, http.MethodGet, srv.URL+"/order/1", "", nil, "")
	assert.Contains(t, string(payload), `"totalPrice":"24.98"`)

	legacy := newTestServer(t, Options{LegacyOrderList: true})
	resp, payload := doRequest(t, http.MethodGet, legacy.URL+"/order", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []map[string]any
	require.NoError(t, json.Unmarshal(payload, &orders))
	assert.Len(t, orders, 3)
}

func TestDeleteMissing(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, _ := doRequest(t, http.MethodDelete, srv.URL+"/order/3", "", nil, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, payload := doRequest(t, http.MethodDelete, srv.URL+"/order/3", "", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"statusCode":404,"message":"Order not found","error":"Not Found"}`, string(payload))

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/order/abc", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})

	doRequest(t, http.MethodGet, srv.URL+"/product/all", "", nil, "")
	resp, payload := doRequest(t, http.MethodGet, srv.URL+"/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(payload), `backoffice_mockapi_http_requests_total{method="GET",route="/product/all",status="200"} 1`)
}

func TestClientAgainstMockAPI(t *testing.T) {
	srv := newTestServer(t, Options{RequireAuth: true})
	ctx := context.Background()

	c, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Login(ctx, SeedAdminEmail, SeedAdminPassword)
	require.NoError(t, err)

	page, err := c.Products().List(ctx, client.ListOptions{Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.PageCount)
	assert.Len(t, page.Items, 5)

	order, err := c.Orders().Create(ctx, types.OrderDraft{
		Firstname: "Jo", Lastname: "Doe", Email: "jo@example.com", PhoneNumber: "555", Address: "Main St",
		Lines: []types.LineItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.Amount(24.98), order.TotalPrice)
	assert.Equal(t, types.OrderStatusOnProcess, order.Status)

	done := types.OrderStatusDone
	updated, err := c.Orders().Update(ctx, order.ID, types.OrderPatch{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusDone, updated.Status)

	_, err = c.Orders().Update(ctx, 999, types.OrderPatch{Status: &done})
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))

	_, err = c.Users().Create(ctx, types.UserDraft{
		Firstname: "Ada", Lastname: "Twice", Email: "ada@example.com", Password: "secret1",
	})
	require.Error(t, err)
	assert.Equal(t, "email already exists", client.UserMessage(err, "fallback"))

	require.NoError(t, c.Orders().Delete(ctx, order.ID))
	err = c.Orders().Delete(ctx, order.ID)
	assert.True(t, client.IsNotFound(err))
}
