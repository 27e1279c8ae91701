// Package types defines the wire format of the back-office API.
//
// These types are shared by the client SDK, the console, the fake API used in
// development, and the tests. They must stay compatible with the remote API.
//
// Conventions:
//   - Read models carry the server-assigned numeric ID and audit timestamps.
//   - Draft types are the bodies sent on create. Required fields carry
//     `validate` tags checked locally before any request is made.
//   - Patch types use pointer fields: nil means "do not change".
//   - JSON tags follow the remote API verbatim, including its mixed
//     snake_case/camelCase timestamp names.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ===========================================================================
// Page envelope
// ===========================================================================

// Page is one bounded slice of a resource collection plus pagination metadata.
type Page[T any] struct {
	// Items holds at most Limit records.
	Items []T `json:"data"`

	// Page is the 1-based page number of this slice.
	Page int `json:"page"`

	// Limit is the maximum number of items per page.
	Limit int `json:"limit"`

	// PageCount is the number of pages for the current filter (at least 1).
	PageCount int `json:"pageCount"`

	// Total is the authoritative number of matching records.
	Total int `json:"total"`
}

// ===========================================================================
// Amount
// ===========================================================================

// Amount is a monetary value. The remote API serialises decimals either as
// JSON numbers or as numeric strings; both decode into Amount. Strings that
// are not numeric decode to zero.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = 0
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("decoding amount: %w", err)
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			*a = 0
			return nil
		}
		*a = Amount(parsed)
		return nil
	}
	var value float64
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return fmt.Errorf("decoding amount: %w", err)
	}
	*a = Amount(value)
	return nil
}

// String formats the amount with two decimals.
func (a Amount) String() string {
	return strconv.FormatFloat(float64(a), 'f', 2, 64)
}

// ===========================================================================
// Products
// ===========================================================================

// Product is a catalogue entry.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       Amount    `json:"price"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// Attachment is a binary file uploaded alongside a draft.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProductDraft is the body for creating a product. It is sent as
// multipart/form-data because it may carry an image.
type ProductDraft struct {
	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description" validate:"required"`
	Price       float64     `json:"price" validate:"gte=1"`
	Image       *Attachment `json:"-"`
}

// MultipartFields returns the text parts of the multipart body.
func (d ProductDraft) MultipartFields() map[string]string {
	return map[string]string{
		"name":        d.Name,
		"description": d.Description,
		"price":       strconv.FormatFloat(d.Price, 'f', -1, 64),
	}
}

// MultipartFile returns the file part of the multipart body, if any.
func (d ProductDraft) MultipartFile() (string, *Attachment) {
	return "image", d.Image
}

// ProductPatch is a partial product update.
type ProductPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil
}

// ===========================================================================
// Users
// ===========================================================================

// User is a staff or customer account. Passwords are never returned.
type User struct {
	ID         int64     `json:"id"`
	Firstname  string    `json:"firstname"`
	Lastname   string    `json:"lastname"`
	Email      string    `json:"email"`
	Role       string    `json:"role,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.Firstname + " " + u.Lastname)
}

// UserDraft is the body for creating a user.
type UserDraft struct {
	Firstname string `json:"firstname" validate:"required"`
	Lastname  string `json:"lastname" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password,omitempty"`
}

// UserPatch is a partial user update.
type UserPatch struct {
	Firstname *string `json:"firstname,omitempty"`
	Lastname  *string `json:"lastname,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Firstname == nil && p.Lastname == nil && p.Email == nil && p.Password == nil
}

// ===========================================================================
// Orders
// ===========================================================================

// OrderStatus is the processing state of an order.
type OrderStatus string

const (
	// OrderStatusOnProcess is the state of a freshly created order.
	OrderStatusOnProcess OrderStatus = "onProcess"
	// OrderStatusDone marks a fulfilled order.
	OrderStatusDone OrderStatus = "done"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	return s == OrderStatusOnProcess || s == OrderStatusDone
}

// OrderProduct is a product line as embedded in an order read model.
type OrderProduct struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       Amount `json:"price"`
	Quantity    int    `json:"quantity,omitempty"`
}

// Order is a customer order. TotalPrice is computed by the server.
type Order struct {
	ID          int64          `json:"id"`
	Firstname   string         `json:"firstname"`
	Lastname    string         `json:"lastname"`
	Email       string         `json:"email"`
	PhoneNumber string         `json:"phoneNumber,omitempty"`
	Address     string         `json:"address,omitempty"`
	Products    []OrderProduct `json:"products"`
	TotalPrice  Amount         `json:"totalPrice"`
	Status      OrderStatus    `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ModifiedAt  time.Time      `json:"modifiedAt"`
}

// LineItem selects a quantity of one product in an order draft. A zero
// ProductID is an empty row that has not been filled in yet.
type LineItem struct {
	ProductID int64 `json:"id"`
	Quantity  int   `json:"quantity" validate:"gte=1"`
}

// OrderDraft is the body for creating an order.
type OrderDraft struct {
	Firstname   string      `json:"firstname" validate:"required"`
	Lastname    string      `json:"lastname" validate:"required"`
	Email       string      `json:"email" validate:"required,email"`
	PhoneNumber string      `json:"phoneNumber" validate:"required"`
	Address     string      `json:"address" validate:"required"`
	Status      OrderStatus `json:"status,omitempty"`
	Lines       []LineItem  `json:"products" validate:"dive"`
}

// OrderPatch is a partial order update. Line changes travel as ProductIDs,
// the field the API reads, with Products carrying the same lines plus their
// quantities. Both nil leaves the order lines untouched.
type OrderPatch struct {
	Firstname   *string      `json:"firstname,omitempty"`
	Lastname    *string      `json:"lastname,omitempty"`
	Email       *string      `json:"email,omitempty"`
	PhoneNumber *string      `json:"phoneNumber,omitempty"`
	Address     *string      `json:"address,omitempty"`
	Status      *OrderStatus `json:"status,omitempty"`
	ProductIDs  []int64      `json:"productIds,omitempty"`
	Products    []LineItem   `json:"products,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p OrderPatch) IsEmpty() bool {
	return p.Firstname == nil && p.Lastname == nil && p.Email == nil &&
		p.PhoneNumber == nil && p.Address == nil && p.Status == nil &&
		p.ProductIDs == nil && p.Products == nil
}

// ===========================================================================
// Authentication
// ===========================================================================

// LoginRequest is the credential exchange body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token issued on login.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// UnmarshalJSON accepts the token under "token", "accessToken" or
// "access_token".
func (r *LoginResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
		AccessSnake string `json:"access_token"`
		User        *User  `json:"user"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.User = raw.User
	switch {
	case raw.Token != "":
		r.Token = raw.Token
	case raw.AccessToken != "":
		r.Token = raw.AccessToken
	default:
		r.Token = raw.AccessSnake
	}
	return nil
}

// ===========================================================================
// Errors
// ===========================================================================

// ErrorBody is the error payload returned by the remote API on non-2xx
// responses.
type ErrorBody struct {
	StatusCode int      `json:"statusCode,omitempty"`
	Message    Messages `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

// Messages decodes either a single message string or a list of messages.
type Messages []string

// UnmarshalJSON implements json.Unmarshaler.
func (m *Messages) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = nil
		return nil
	}
	if trimmed[0] == '[' {
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*m = list
		return nil
	}
	var single string
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	*m = Messages{single}
	return nil
}

// MarshalJSON writes a single message as a string and several as a list.
func (m Messages) MarshalJSON() ([]byte, error) {
	if len(m) == 1 {
		return json.Marshal(m[0])
	}
	return json.Marshal([]string(m))
}

// Text joins all messages with "; ".
func (m Messages) Text() string {
	parts := make([]string, 0, len(m))
	for _, msg := range m {
		if trimmed := strings.TrimSpace(msg); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "; ")
}
