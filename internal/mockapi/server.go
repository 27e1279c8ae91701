// Package mockapi is an in-memory stand-in for the back-office HTTP API. It
// serves the same paths and payload shapes so the console and the tests can
// run without the real backend. It is a development fixture: it keeps no data
// across restarts and its validation only approximates the real service.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTokenTTL = 24 * time.Hour
	shutdownTimeout = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	// Secret signs and verifies HS256 tokens.
	Secret []byte
	// RequireAuth rejects API calls without a valid bearer token.
	RequireAuth bool
	// LegacyOrderList serves GET /order as a bare JSON array.
	LegacyOrderList bool
	TokenTTL        time.Duration
	Logger          zerolog.Logger
	Version         string
}

// Server holds the router and the backing store.
type Server struct {
	store   *Store
	opts    Options
	logger  zerolog.Logger
	metrics *metrics
	router  chi.Router
}

// New constructs a Server with its middleware stack and routes mounted.
func New(st *Store, opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	s := &Server{
		store:   st,
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "mockapi").Logger(),
		metrics: newMetrics(),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the underlying chi.Router.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("version", s.opts.Version).Msg("mock API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving mock API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("shutting down mock API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down mock API: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "backoffice-mockapi")
	})
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.handler())
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		if s.opts.RequireAuth {
			r.Use(s.requireBearer)
		}

		r.Route("/product", func(r chi.Router) {
			r.Get("/all", s.handleListProducts)
			r.Post("/", s.handleCreateProduct)
			r.Get("/{id}", s.handleGetProduct)
			r.Patch("/{id}", s.handlePatchProduct)
			r.Delete("/{id}", s.handleDeleteProduct)
		})
		r.Route("/user", func(r chi.Router) {
			r.Get("/all", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Get("/{id}", s.handleGetUser)
			r.Patch("/{id}", s.handlePatchUser)
			r.Delete("/{id}", s.handleDeleteUser)
		})
		r.Route("/order", func(r chi.Router) {
			r.Get("/", s.handleListOrders)
			r.Post("/", s.handleCreateOrder)
			r.Get("/{id}", s.handleGetOrder)
			r.Patch("/{id}", s.handlePatchOrder)
			r.Delete("/{id}", s.handleDeleteOrder)
		})
	})

	return r
}

// requestLogger logs every request and puts a request-scoped logger in the
// context for handlers.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLogger := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(reqLogger.WithContext(r.Context()))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		reqLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type subjectKey struct{}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
			return s.opts.Secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("rejecting bearer token")
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		sub, _ := claims.GetSubject()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub)))
	})
}

func (s *Server) issueToken(email, role string, userID int64) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     email,
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(s.opts.TokenTTL).Unix(),
	})
	return token.SignedString(s.opts.Secret)
}
