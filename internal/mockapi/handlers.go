package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"git.cscs.ch/openchami/backoffice/pkg/types"
)

const (
	defaultLimit   = 10
	maxLimit       = 100
	maxUploadBytes = 10 << 20
)

// orderView serialises the total as a decimal string, the way the remote API
// emits numeric columns.
type orderView struct {
	types.Order
	TotalPrice string `json:"totalPrice"`
}

func viewOrder(o types.Order) orderView {
	return orderView{Order: o, TotalPrice: strconv.FormatFloat(float64(o.TotalPrice), 'f', 2, 64)}
}

func viewOrders(orders []types.Order) []orderView {
	out := make([]orderView, len(orders))
	for i, o := range orders {
		out[i] = viewOrder(o)
	}
	return out
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, messages ...string) {
	respondJSON(w, status, types.ErrorBody{
		StatusCode: status,
		Message:    types.Messages(messages),
		Error:      http.StatusText(status),
	})
}

// respondStoreError maps store errors onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, r *http.Request, kind string, err error) {
	var inv *InvalidError
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, kind+" not found")
	case errors.Is(err, ErrConflict):
		respondError(w, http.StatusConflict, "email already exists")
	case errors.As(err, &inv):
		respondError(w, http.StatusBadRequest, inv.Messages...)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("kind", kind).Msg("store failure")
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("id must be a positive integer")
	}
	return id, nil
}

func positiveParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

func parseListOptions(r *http.Request) (ListOptions, error) {
	page, err := positiveParam(r, "page", 1)
	if err != nil {
		return ListOptions{}, err
	}
	limit, err := positiveParam(r, "limit", defaultLimit)
	if err != nil {
		return ListOptions{}, err
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return ListOptions{
		Page:  page,
		Limit: limit,
		Query: strings.TrimSpace(r.URL.Query().Get("searchQuery")),
	}, nil
}

func newPage[T any](items []T, opts ListOptions, total int) types.Page[T] {
	if items == nil {
		items = []T{}
	}
	pageCount := (total + opts.Limit - 1) / opts.Limit
	if pageCount < 1 {
		pageCount = 1
	}
	return types.Page[T]{Items: items, Page: opts.Page, Limit: opts.Limit, PageCount: pageCount, Total: total}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("request body must be valid JSON")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Health and auth
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.opts.Version})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if user.Role != "admin" {
		respondError(w, http.StatusForbidden, "Only staff accounts can sign in")
		return
	}

	token, err := s.issueToken(user.Email, user.Role, user.ID)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("signing token")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("subject", user.Email).Msg("issued token")
	respondJSON(w, http.StatusCreated, map[string]any{"accessToken": token, "user": user})
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total := s.store.ListProducts(opts)
	respondJSON(w, http.StatusOK, newPage(items, opts, total))
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.store.GetProduct(id)
	if err != nil {
		respondStoreError(w, r, "Product", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleCreateProduct accepts multipart/form-data with an optional "image"
// file part, or a JSON body without an image.
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		draft types.ProductDraft
		image string
	)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			respondError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}
		draft.Name = r.FormValue("name")
		draft.Description = r.FormValue("description")
		if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
			price, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "price must be a number")
				return
			}
			draft.Price = price
		}
		if file, header, err := r.FormFile("image"); err == nil {
			_ = file.Close()
			image = "/uploads/" + uuid.NewString() + filepath.Ext(header.Filename)
		} else if !errors.Is(err, http.ErrMissingFile) {
			respondError(w, http.StatusBadRequest, "malformed image part")
			return
		}
	} else if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.store.CreateProduct(draft.Name, draft.Description, draft.Price, image)
	if err != nil {
		respondStoreError(w, r, "Product", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePatchProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch types.ProductPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.store.PatchProduct(id, patch)
	if err != nil {
		respondStoreError(w, r, "Product", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "Product", s.store.DeleteProduct)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, kind string, del func(int64) error) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := del(id); err != nil {
		respondStoreError(w, r, kind, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total := s.store.ListUsers(opts)
	respondJSON(w, http.StatusOK, newPage(items, opts, total))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.GetUser(id)
	if err != nil {
		respondStoreError(w, r, "User", err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var draft types.UserDraft
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.CreateUser(draft, "customer")
	if err != nil {
		respondStoreError(w, r, "User", err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (s *Server) handlePatchUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch types.UserPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.PatchUser(id, patch)
	if err != nil {
		respondStoreError(w, r, "User", err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "User", s.store.DeleteUser)
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.LegacyOrderList {
		all, _ := s.store.ListOrders(ListOptions{Page: 1, Query: opts.Query})
		respondJSON(w, http.StatusOK, viewOrders(all))
		return
	}
	items, total := s.store.ListOrders(opts)
	respondJSON(w, http.StatusOK, newPage(viewOrders(items), opts, total))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := s.store.GetOrder(id)
	if err != nil {
		respondStoreError(w, r, "Order", err)
		return
	}
	respondJSON(w, http.StatusOK, viewOrder(o))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var draft types.OrderDraft
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := s.store.CreateOrder(draft)
	if err != nil {
		respondStoreError(w, r, "Order", err)
		return
	}
	respondJSON(w, http.StatusCreated, viewOrder(o))
}

func (s *Server) handlePatchOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch types.OrderPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := s.store.PatchOrder(id, patch)
	if err != nil {
		respondStoreError(w, r, "Order", err)
		return
	}
	respondJSON(w, http.StatusOK, viewOrder(o))
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "Order", s.store.DeleteOrder)
}
