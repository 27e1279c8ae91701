package mockapi

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"git.cscs.ch/openchami/backoffice/pkg/types"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write would duplicate a unique field.
	ErrConflict = errors.New("record conflict")
	// ErrUnauthorized is returned for bad credentials.
	ErrUnauthorized = errors.New("invalid credentials")
)

// InvalidError carries the field messages of a rejected write.
type InvalidError struct {
	Messages []string
}

func (e *InvalidError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func invalid(format string, args ...any) error {
	return &InvalidError{Messages: []string{fmt.Sprintf(format, args...)}}
}

// ListOptions carries pagination and the search filter.
type ListOptions struct {
	Page  int
	Limit int
	Query string
}

// table is an auto-increment collection of one record type.
type table[T any] struct {
	rows   map[int64]T
	nextID int64
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[int64]T), nextID: 1}
}

func (t *table[T]) insert(set func(id int64) T) T {
	id := t.nextID
	t.nextID++
	row := set(id)
	t.rows[id] = row
	return row
}

func (t *table[T]) get(id int64) (T, error) {
	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return row, nil
}

func (t *table[T]) remove(id int64) error {
	if _, ok := t.rows[id]; !ok {
		return ErrNotFound
	}
	delete(t.rows, id)
	return nil
}

// list returns the page of rows matching query, newest first, and the match
// count. A zero Limit returns every match.
func (t *table[T]) list(opts ListOptions, matches func(T, string) bool) ([]T, int) {
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	query := strings.ToLower(strings.TrimSpace(opts.Query))
	filtered := make([]T, 0, len(ids))
	for _, id := range ids {
		row := t.rows[id]
		if query == "" || matches(row, query) {
			filtered = append(filtered, row)
		}
	}

	if opts.Limit <= 0 {
		return filtered, len(filtered)
	}
	start := (opts.Page - 1) * opts.Limit
	if start >= len(filtered) {
		return []T{}, len(filtered)
	}
	end := start + opts.Limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], len(filtered)
}

func contains(query string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

type userRow struct {
	user         types.User
	passwordHash []byte
}

// Store is the in-memory data behind the fake API.
type Store struct {
	mu         sync.RWMutex
	products   *table[types.Product]
	users      *table[userRow]
	orders     *table[types.Order]
	bcryptCost int
	now        func() time.Time
}

// NewStore returns an empty store. bcryptCost 0 uses bcrypt.DefaultCost.
func NewStore(bcryptCost int) *Store {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Store{
		products:   newTable[types.Product](),
		users:      newTable[userRow](),
		orders:     newTable[types.Order](),
		bcryptCost: bcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// ListProducts matches the query against name and description.
func (s *Store) ListProducts(opts ListOptions) ([]types.Product, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.list(opts, func(p types.Product, q string) bool {
		return contains(q, p.Name, p.Description)
	})
}

// GetProduct returns one product.
func (s *Store) GetProduct(id int64) (types.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.get(id)
}

// CreateProduct validates and inserts a product.
func (s *Store) CreateProduct(name, description string, price float64, image string) (types.Product, error) {
	name, description = strings.TrimSpace(name), strings.TrimSpace(description)
	var msgs []string
	if name == "" {
		msgs = append(msgs, "name should not be empty")
	}
	if description == "" {
		msgs = append(msgs, "description should not be empty")
	}
	if price <= 0 {
		msgs = append(msgs, "price must be a positive number")
	}
	if len(msgs) > 0 {
		return types.Product{}, &InvalidError{Messages: msgs}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	return s.products.insert(func(id int64) types.Product {
		return types.Product{
			ID: id, Name: name, Description: description, Price: types.Amount(price),
			Image: image, CreatedAt: now, ModifiedAt: now,
		}
	}), nil
}

// PatchProduct applies the non-nil fields of patch.
func (s *Store) PatchProduct(id int64, patch types.ProductPatch) (types.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.products.get(id)
	if err != nil {
		return p, err
	}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return p, invalid("name should not be empty")
		}
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		if strings.TrimSpace(*patch.Description) == "" {
			return p, invalid("description should not be empty")
		}
		p.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Price != nil {
		if *patch.Price <= 0 {
			return p, invalid("price must be a positive number")
		}
		p.Price = types.Amount(*patch.Price)
	}
	p.ModifiedAt = s.now()
	s.products.rows[id] = p
	return p, nil
}

// DeleteProduct removes a product.
func (s *Store) DeleteProduct(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products.remove(id)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// ListUsers matches the query against names and email.
func (s *Store) ListUsers(opts ListOptions) ([]types.User, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, total := s.users.list(opts, func(u userRow, q string) bool {
		return contains(q, u.user.Firstname, u.user.Lastname, u.user.Email)
	})
	out := make([]types.User, len(rows))
	for i, r := range rows {
		out[i] = r.user
	}
	return out, total
}

// GetUser returns one user.
func (s *Store) GetUser(id int64) (types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, err := s.users.get(id)
	return row.user, err
}

// CreateUser validates and inserts a user with a hashed password.
func (s *Store) CreateUser(draft types.UserDraft, role string) (types.User, error) {
	draft.Email = strings.ToLower(strings.TrimSpace(draft.Email))
	var msgs []string
	if strings.TrimSpace(draft.Firstname) == "" {
		msgs = append(msgs, "firstname should not be empty")
	}
	if strings.TrimSpace(draft.Lastname) == "" {
		msgs = append(msgs, "lastname should not be empty")
	}
	if !strings.Contains(draft.Email, "@") {
		msgs = append(msgs, "email must be an email")
	}
	if len(draft.Password) < 6 {
		msgs = append(msgs, "password must be longer than or equal to 6 characters")
	}
	if len(msgs) > 0 {
		return types.User{}, &InvalidError{Messages: msgs}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(draft.Password), s.bcryptCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTakenLocked(draft.Email, 0) {
		return types.User{}, ErrConflict
	}
	now := s.now()
	row := s.users.insert(func(id int64) userRow {
		return userRow{
			user: types.User{
				ID: id, Firstname: strings.TrimSpace(draft.Firstname), Lastname: strings.TrimSpace(draft.Lastname),
				Email: draft.Email, Role: role, CreatedAt: now, ModifiedAt: now,
			},
			passwordHash: hash,
		}
	})
	return row.user, nil
}

// PatchUser applies the non-nil fields of patch.
func (s *Store) PatchUser(id int64, patch types.UserPatch) (types.User, error) {
	var hash []byte
	if patch.Password != nil {
		if len(*patch.Password) < 6 {
			return types.User{}, invalid("password must be longer than or equal to 6 characters")
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(*patch.Password), s.bcryptCost)
		if err != nil {
			return types.User{}, fmt.Errorf("hashing password: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.users.get(id)
	if err != nil {
		return types.User{}, err
	}
	if patch.Firstname != nil {
		row.user.Firstname = strings.TrimSpace(*patch.Firstname)
	}
	if patch.Lastname != nil {
		row.user.Lastname = strings.TrimSpace(*patch.Lastname)
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if !strings.Contains(email, "@") {
			return types.User{}, invalid("email must be an email")
		}
		if s.emailTakenLocked(email, id) {
			return types.User{}, ErrConflict
		}
		row.user.Email = email
	}
	if hash != nil {
		row.passwordHash = hash
	}
	row.user.ModifiedAt = s.now()
	s.users.rows[id] = row
	return row.user, nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.remove(id)
}

// Authenticate checks credentials against the stored hash.
func (s *Store) Authenticate(email, password string) (types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	var found *userRow
	for _, row := range s.users.rows {
		if row.user.Email == email {
			r := row
			found = &r
			break
		}
	}
	s.mu.RUnlock()

	if found == nil {
		return types.User{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(found.passwordHash, []byte(password)); err != nil {
		return types.User{}, ErrUnauthorized
	}
	return found.user, nil
}

func (s *Store) emailTakenLocked(email string, except int64) bool {
	for id, row := range s.users.rows {
		if id != except && row.user.Email == email {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// ListOrders matches the query against customer, email and status.
func (s *Store) ListOrders(opts ListOptions) ([]types.Order, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.list(opts, func(o types.Order, q string) bool {
		return contains(q, o.Firstname, o.Lastname, o.Email, string(o.Status))
	})
}

// GetOrder returns one order.
func (s *Store) GetOrder(id int64) (types.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.get(id)
}

// CreateOrder validates and inserts an order. Line prices come from the
// product table and the total is computed here.
func (s *Store) CreateOrder(draft types.OrderDraft) (types.Order, error) {
	var msgs []string
	for _, f := range []struct{ name, value string }{
		{"firstname", draft.Firstname}, {"lastname", draft.Lastname}, {"email", draft.Email},
		{"phoneNumber", draft.PhoneNumber}, {"address", draft.Address},
	} {
		if strings.TrimSpace(f.value) == "" {
			msgs = append(msgs, f.name+" should not be empty")
		}
	}
	status := draft.Status
	if status == "" {
		status = types.OrderStatusOnProcess
	}
	if !status.Valid() {
		msgs = append(msgs, "status must be one of the following values: onProcess, done")
	}
	if len(msgs) > 0 {
		return types.Order{}, &InvalidError{Messages: msgs}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lines, total, err := s.priceLinesLocked(draft.Lines)
	if err != nil {
		return types.Order{}, err
	}
	now := s.now()
	return s.orders.insert(func(id int64) types.Order {
		return types.Order{
			ID: id, Firstname: strings.TrimSpace(draft.Firstname), Lastname: strings.TrimSpace(draft.Lastname),
			Email: strings.TrimSpace(draft.Email), PhoneNumber: strings.TrimSpace(draft.PhoneNumber),
			Address: strings.TrimSpace(draft.Address), Products: lines, TotalPrice: total,
			Status: status, CreatedAt: now, ModifiedAt: now,
		}
	}), nil
}

// PatchOrder applies the non-nil fields of patch and recomputes the total
// when the lines change. Bare ProductIDs select one of each product; when
// Products is also present its quantities win.
func (s *Store) PatchOrder(id int64, patch types.OrderPatch) (types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.orders.get(id)
	if err != nil {
		return o, err
	}

	set := func(dst *string, src *string, name string) error {
		if src == nil {
			return nil
		}
		if strings.TrimSpace(*src) == "" {
			return invalid("%s should not be empty", name)
		}
		*dst = strings.TrimSpace(*src)
		return nil
	}
	for _, f := range []struct {
		dst  *string
		src  *string
		name string
	}{
		{&o.Firstname, patch.Firstname, "firstname"}, {&o.Lastname, patch.Lastname, "lastname"},
		{&o.Email, patch.Email, "email"}, {&o.PhoneNumber, patch.PhoneNumber, "phoneNumber"},
		{&o.Address, patch.Address, "address"},
	} {
		if err := set(f.dst, f.src, f.name); err != nil {
			return types.Order{}, err
		}
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return types.Order{}, invalid("status must be one of the following values: onProcess, done")
		}
		o.Status = *patch.Status
	}
	if items := patchLines(patch); items != nil {
		lines, total, err := s.priceLinesLocked(items)
		if err != nil {
			return types.Order{}, err
		}
		o.Products, o.TotalPrice = lines, total
	}
	o.ModifiedAt = s.now()
	s.orders.rows[id] = o
	return o, nil
}

func patchLines(patch types.OrderPatch) []types.LineItem {
	if patch.Products != nil || patch.ProductIDs == nil {
		return patch.Products
	}
	lines := make([]types.LineItem, len(patch.ProductIDs))
	for i, id := range patch.ProductIDs {
		lines[i] = types.LineItem{ProductID: id, Quantity: 1}
	}
	return lines
}

// DeleteOrder removes an order.
func (s *Store) DeleteOrder(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders.remove(id)
}

func (s *Store) priceLinesLocked(items []types.LineItem) ([]types.OrderProduct, types.Amount, error) {
	if len(items) == 0 {
		return nil, 0, invalid("products should not be empty")
	}
	seen := make(map[int64]struct{}, len(items))
	lines := make([]types.OrderProduct, 0, len(items))
	var total float64
	for _, item := range items {
		if _, dup := seen[item.ProductID]; dup {
			return nil, 0, invalid("product %d is listed twice", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		if item.Quantity < 1 {
			return nil, 0, invalid("quantity must not be less than 1")
		}
		p, err := s.products.get(item.ProductID)
		if err != nil {
			return nil, 0, invalid("product %d does not exist", item.ProductID)
		}
		lines = append(lines, types.OrderProduct{
			ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price, Quantity: item.Quantity,
		})
		total += float64(p.Price) * float64(item.Quantity)
	}
	return lines, types.Amount(roundCents(total)), nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
