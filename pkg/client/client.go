// Package client provides the typed HTTP client SDK for the back-office API.
//
// Conventions:
//   - One Resource per remote collection: List, Create, Update, Delete.
//   - Every method accepts context.Context for cancellation and trace
//     propagation.
//   - Every call is a single attempt. Nothing is retried automatically.
//   - Non-2xx responses become *ServerError; create/update turn 4xx
//     responses carrying a message into *ValidationError; transport failures
//     become *NetworkError.
//   - The client holds no resource state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"git.cscs.ch/openchami/backoffice/pkg/types"
)

const (
	loginPath       = "/auth/login"
	productPath     = "/product"
	productListPath = "/product/all"
	userPath        = "/user"
	userListPath    = "/user/all"
	orderPath       = "/order"
	orderListPath   = "/order"

	requestIDHeader = "X-Request-ID"
	maxResponseSize = 8 << 20
)

type contextKey string

// RequestIDKey is the context key holding a caller-provided request ID. When
// absent a new ID is generated per request.
const RequestIDKey contextKey = "request_id"

// WithRequestID returns a context that propagates id as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDFromContext returns the request ID set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return strings.TrimSpace(id)
}

// Config holds client configuration.
type Config struct {
	// TokenRefresh optionally resolves a token dynamically when no token is set.
	TokenRefresh func(ctx context.Context) (string, error)
	// BaseURL is the root URL of the API (for example: http://localhost:4000).
	BaseURL string
	// Token is the bearer token used for API requests.
	Token string
	// Timeout is the per-request timeout. Zero keeps the transport default.
	Timeout time.Duration
	// HTTPClient is an optional custom http.Client. If nil, an instrumented
	// default is used.
	HTTPClient *http.Client
}

// Client is the typed HTTP SDK for the back-office API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        Config

	mu    sync.RWMutex
	token string

	products *Resource[types.Product, types.ProductDraft, types.ProductPatch]
	users    *Resource[types.User, types.UserDraft, types.UserPatch]
	orders   *Resource[types.Order, types.OrderDraft, types.OrderPatch]
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("client: Timeout must not be negative")
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		cfg:        cfg,
		token:      strings.TrimSpace(cfg.Token),
	}
	c.products = newResource[types.Product, types.ProductDraft, types.ProductPatch](c, "product", productPath, productListPath)
	c.users = newResource[types.User, types.UserDraft, types.UserPatch](c, "user", userPath, userListPath)
	c.orders = newResource[types.Order, types.OrderDraft, types.OrderPatch](c, "order", orderPath, orderListPath)
	return c, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Products returns the product collection gateway.
func (c *Client) Products() *Resource[types.Product, types.ProductDraft, types.ProductPatch] {
	return c.products
}

// Users returns the user collection gateway.
func (c *Client) Users() *Resource[types.User, types.UserDraft, types.UserPatch] {
	return c.users
}

// Orders returns the order collection gateway.
func (c *Client) Orders() *Resource[types.Order, types.OrderDraft, types.OrderPatch] {
	return c.orders
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a bearer token. On success the token is
// attached to every subsequent request made by this client.
func (c *Client) Login(ctx context.Context, email, password string) (*types.LoginResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("logging in: email and password are required")
	}

	body, err := json.Marshal(types.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encoding login request: %w", err)
	}

	var result types.LoginResponse
	if err := c.do(ctx, http.MethodPost, loginPath, bytes.NewReader(body), "application/json", &result); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}
	if strings.TrimSpace(result.Token) == "" {
		return nil, fmt.Errorf("logging in: response did not include a token")
	}

	c.SetToken(result.Token)
	return &result, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	if token := c.Token(); token != "" {
		return token, nil
	}
	if c.cfg.TokenRefresh == nil {
		return "", nil
	}
	token, err := c.cfg.TokenRefresh(ctx)
	if err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	return strings.TrimSpace(token), nil
}

// do performs one request. out may be nil when the response body is ignored.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	op := method + " " + path

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(requestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeServerError(resp.StatusCode, payload)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding response of %s: %w", op, err)
	}
	return nil
}

func decodeServerError(status int, payload []byte) *ServerError {
	result := &ServerError{Status: status}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return result
	}

	var body types.ErrorBody
	if err := json.Unmarshal(trimmed, &body); err != nil {
		// Plain-text bodies are short messages from proxies; keep them.
		if trimmed[0] != '{' && trimmed[0] != '[' && len(trimmed) <= 512 {
			result.Message = string(trimmed)
		}
		return result
	}

	switch {
	case body.Message.Text() != "":
		result.Message = body.Message.Text()
	case strings.TrimSpace(body.Detail) != "":
		result.Message = strings.TrimSpace(body.Detail)
	case strings.TrimSpace(body.Error) != "":
		result.Message = strings.TrimSpace(body.Error)
	}
	return result
}
