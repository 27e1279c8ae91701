// Package backoffice binds the products, users and orders collections to
// the generic collection store and edit controller. Each resource supplies
// only its columns, editable fields, validation and patch diffing.
package backoffice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"git.cscs.ch/openchami/backoffice/internal/audit"
	"git.cscs.ch/openchami/backoffice/internal/collection"
	"git.cscs.ch/openchami/backoffice/internal/editor"
	"git.cscs.ch/openchami/backoffice/pkg/client"
	"git.cscs.ch/openchami/backoffice/pkg/types"
)

// ErrNoLines is returned by line operations on resources without line items.
var ErrNoLines = errors.New("this resource has no order lines")

// Column renders one table column.
type Column[T any] struct {
	Header string
	Value  func(item T, now time.Time) string
}

// Field is one editable draft attribute.
type Field[D any] struct {
	Name string
	// Required marks fields that must be filled in. RequiredOnCreate limits
	// the requirement to create sessions.
	Required         bool
	RequiredOnCreate bool
	// CreateOnly fields cannot be changed in an edit session.
	CreateOnly bool
	Get        func(D) string
	Set        func(D, string) (D, error)
}

// FieldInfo describes a field for help output.
type FieldInfo struct {
	Name       string
	Required   string
	CreateOnly bool
}

// Detail is one labelled value.
type Detail struct {
	Label string
	Value string
}

// Status summarises the collection for the header line.
type Status struct {
	Page      int
	PageCount int
	Limit     int
	Total     int
	Count     int
	Query     string
	Err       string
	Loading   bool
	Loaded    bool
}

// LineView is one rendered order line.
type LineView struct {
	Index     int
	ProductID int64
	Product   string
	UnitPrice string
	Quantity  int
}

// DraftView is a rendered edit session.
type DraftView struct {
	Mode            string
	ID              int64
	State           string
	Fields          []Detail
	Lines           []LineView
	Total           string
	ValidationError string
}

// SubmitResult reports what Submit did.
type SubmitResult struct {
	ID int64
	// Sent is false when an unchanged edit was closed without a request.
	Sent bool
}

// Definition is the resource-specific configuration of a Binding.
type Definition[T, D any] struct {
	Name    string
	Kind    string
	ID      func(T) int64
	Columns []Column[T]
	Details func(T, time.Time) []Detail
	Fields  []Field[D]
	// Lines exposes the order lines of a draft. Nil for resources without.
	Lines func(*D) *[]types.LineItem
	// Changes lists what a submit sends, for the audit log.
	Changes func(mode editor.Mode, baseline, draft D) map[string]any
	// OnCommit and OnRemove observe successful mutations.
	OnCommit func(T)
	OnRemove func(id int64)
}

// Options are shared by all bindings.
type Options struct {
	Limit   int
	Logger  zerolog.Logger
	Audit   *audit.Logger
	Mode    string
	Subject string
	Catalog *Catalog
}

// Binding is one resource screen: its page, its edit session and how both
// are presented.
type Binding[T, D any] struct {
	def     Definition[T, D]
	store   *collection.Store[T]
	editor  *editor.Controller[T, D]
	audit   *audit.Logger
	catalog *Catalog
	mode    string
	subject string
	logger  zerolog.Logger
}

func newBinding[T, D any](def Definition[T, D], source collection.Source[T], eb editor.Binding[T, D], opts Options) (*Binding[T, D], error) {
	store, err := collection.New(source, collection.Config[T]{Name: def.Kind, Limit: opts.Limit, ID: def.ID}, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s store: %w", def.Kind, err)
	}
	eb.Kind = def.Kind
	eb.ID = def.ID
	ctrl, err := editor.New(eb, store, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s editor: %w", def.Kind, err)
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Binding[T, D]{
		def:     def,
		store:   store,
		editor:  ctrl,
		audit:   opts.Audit,
		catalog: catalog,
		mode:    opts.Mode,
		subject: opts.Subject,
		logger:  opts.Logger.With().Str("component", "backoffice").Str("resource", def.Kind).Logger(),
	}, nil
}

// Name returns the plural collection name ("products").
func (b *Binding[T, D]) Name() string { return b.def.Name }

// Kind returns the singular resource name ("product").
func (b *Binding[T, D]) Kind() string { return b.def.Kind }

// Store exposes the underlying collection store.
func (b *Binding[T, D]) Store() *collection.Store[T] { return b.store }

// Editor exposes the underlying edit controller.
func (b *Binding[T, D]) Editor() *editor.Controller[T, D] { return b.editor }

// SetSubject records who is acting, for the audit log.
func (b *Binding[T, D]) SetSubject(subject string) { b.subject = strings.TrimSpace(subject) }

func (b *Binding[T, D]) Status() Status {
	v := b.store.View()
	return Status{
		Page:      v.Page,
		PageCount: v.PageCount,
		Limit:     v.Limit,
		Total:     v.Total,
		Count:     len(v.Items),
		Query:     v.Query,
		Err:       v.Err,
		Loading:   v.Loading,
		Loaded:    v.Loaded,
	}
}

// Table renders the current page.
func (b *Binding[T, D]) Table(now time.Time) ([]string, [][]string) {
	headers := make([]string, len(b.def.Columns))
	for i, col := range b.def.Columns {
		headers[i] = col.Header
	}
	items := b.store.View().Items
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		row := make([]string, len(b.def.Columns))
		for i, col := range b.def.Columns {
			row[i] = col.Value(item, now)
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func (b *Binding[T, D]) Refresh(ctx context.Context) error { return b.store.Refresh(ctx) }

func (b *Binding[T, D]) SetFilter(ctx context.Context, query string) error {
	return b.store.SetFilter(ctx, query)
}

func (b *Binding[T, D]) SetPage(ctx context.Context, n int) error { return b.store.SetPage(ctx, n) }

func (b *Binding[T, D]) NextPage(ctx context.Context) error { return b.store.NextPage(ctx) }

func (b *Binding[T, D]) PrevPage(ctx context.Context) error { return b.store.PrevPage(ctx) }

func (b *Binding[T, D]) DismissError() { b.store.DismissError() }

// Show returns the details of a record on the current page.
func (b *Binding[T, D]) Show(id int64, now time.Time) ([]Detail, error) {
	item, ok := b.store.Find(id)
	if !ok {
		return nil, b.notOnPage(id)
	}
	return b.def.Details(item, now), nil
}

// Remove deletes a record, optimistically hiding it first.
func (b *Binding[T, D]) Remove(ctx context.Context, id int64) error {
	started := time.Now()
	err := b.store.Remove(ctx, id)
	b.record(ctx, "delete", id, nil, started, err)
	if err == nil && b.def.OnRemove != nil {
		b.def.OnRemove(id)
	}
	return err
}

// Fields describes the editable fields.
func (b *Binding[T, D]) Fields() []FieldInfo {
	out := make([]FieldInfo, 0, len(b.def.Fields))
	for _, f := range b.def.Fields {
		required := ""
		switch {
		case f.Required:
			required = "required"
		case f.RequiredOnCreate:
			required = "required on create"
		}
		out = append(out, FieldInfo{Name: f.Name, Required: required, CreateOnly: f.CreateOnly})
	}
	return out
}

// HasLines reports whether drafts of this resource carry order lines.
func (b *Binding[T, D]) HasLines() bool { return b.def.Lines != nil }

func (b *Binding[T, D]) OpenCreate() error { return b.editor.OpenCreate() }

// OpenEdit starts editing a record from the current page.
func (b *Binding[T, D]) OpenEdit(id int64) error {
	item, ok := b.store.Find(id)
	if !ok {
		return b.notOnPage(id)
	}
	return b.editor.OpenEdit(item)
}

// Set assigns a field of the open draft from raw input.
func (b *Binding[T, D]) Set(name, value string) error {
	field, ok := b.field(name)
	if !ok {
		return fmt.Errorf("unknown %s field %q (fields: %s)", b.def.Kind, name, b.fieldNames())
	}
	if field.CreateOnly {
		if sess, open := b.editor.Session(); open && sess.Mode == editor.ModeEdit {
			return fmt.Errorf("%s can only be set when creating a %s", field.Name, b.def.Kind)
		}
	}
	return b.editor.Edit(func(d D) (D, error) {
		return field.Set(d, value)
	})
}

// AddLine appends an empty order line.
func (b *Binding[T, D]) AddLine() error {
	return b.editLines(func(lines []types.LineItem) ([]types.LineItem, error) {
		return editor.AddLine(lines), nil
	})
}

// SetLineProduct selects a product on line i (1-based).
func (b *Binding[T, D]) SetLineProduct(i int, productID int64) error {
	if productID != 0 && b.catalog.Loaded() {
		if _, ok := b.catalog.Lookup(productID); !ok {
			return b.editor.Edit(func(d D) (D, error) {
				return d, editor.Invalid("products", "Product %d does not exist", productID)
			})
		}
	}
	return b.editLines(func(lines []types.LineItem) ([]types.LineItem, error) {
		return editor.SetLineProduct(lines, i-1, productID)
	})
}

// SetLineQuantity sets the quantity of line i (1-based).
func (b *Binding[T, D]) SetLineQuantity(i int, raw string) error {
	return b.editLines(func(lines []types.LineItem) ([]types.LineItem, error) {
		return editor.SetLineQuantity(lines, i-1, raw)
	})
}

// RemoveLine drops line i (1-based).
func (b *Binding[T, D]) RemoveLine(i int) error {
	return b.editLines(func(lines []types.LineItem) ([]types.LineItem, error) {
		return editor.RemoveLine(lines, i-1)
	})
}

func (b *Binding[T, D]) editLines(fn func([]types.LineItem) ([]types.LineItem, error)) error {
	if b.def.Lines == nil {
		return ErrNoLines
	}
	return b.editor.Edit(func(d D) (D, error) {
		lines := b.def.Lines(&d)
		next, err := fn(*lines)
		if err != nil {
			return d, err
		}
		*lines = next
		return d, nil
	})
}

// Draft renders the open session.
func (b *Binding[T, D]) Draft() (DraftView, bool) {
	sess, open := b.editor.Session()
	if !open {
		return DraftView{}, false
	}

	view := DraftView{
		Mode:            sess.Mode.String(),
		ID:              sess.ID,
		State:           sess.State.String(),
		ValidationError: sess.ValidationError,
	}
	for _, f := range b.def.Fields {
		view.Fields = append(view.Fields, Detail{Label: f.Name, Value: f.Get(sess.Draft)})
	}
	if b.def.Lines != nil {
		lines := *b.def.Lines(&sess.Draft)
		for i, line := range lines {
			lv := LineView{Index: i + 1, ProductID: line.ProductID, Quantity: line.Quantity, Product: "-", UnitPrice: "-"}
			if p, ok := b.catalog.Lookup(line.ProductID); ok {
				lv.Product = p.Name
				lv.UnitPrice = p.Price.String()
			}
			view.Lines = append(view.Lines, lv)
		}
		view.Total = Money(editor.Total(lines, b.catalog.Prices()))
	}
	return view, true
}

// Submit sends the open draft.
func (b *Binding[T, D]) Submit(ctx context.Context) (SubmitResult, error) {
	sess, open := b.editor.Session()
	action := "create"
	if open && sess.Mode == editor.ModeEdit {
		action = "update"
	}

	started := time.Now()
	record, err := b.editor.Submit(ctx)
	if err != nil {
		if open && !editor.IsLocalValidation(err) && !errors.Is(err, editor.ErrSubmitting) {
			b.record(ctx, action, sess.ID, b.changes(sess), started, err)
		}
		return SubmitResult{}, err
	}
	if record == nil {
		return SubmitResult{ID: sess.ID}, nil
	}

	id := b.def.ID(*record)
	b.record(ctx, action, id, b.changes(sess), started, nil)
	if b.def.OnCommit != nil {
		b.def.OnCommit(*record)
	}
	return SubmitResult{ID: id, Sent: true}, nil
}

func (b *Binding[T, D]) Cancel() error { return b.editor.Cancel() }

func (b *Binding[T, D]) changes(sess editor.Session[D]) map[string]any {
	if b.def.Changes == nil {
		return nil
	}
	return b.def.Changes(sess.Mode, sess.Baseline, sess.Draft)
}

func (b *Binding[T, D]) record(ctx context.Context, action string, id int64, changes map[string]any, started time.Time, err error) {
	event := audit.Mutation{
		RequestID: client.RequestIDFromContext(ctx),
		Action:    action,
		Resource:  b.def.Kind,
		ID:        id,
		Mode:      b.mode,
		Subject:   b.subject,
		Changes:   changes,
		Result:    "success",
		Duration:  time.Since(started),
	}
	if err != nil {
		event.Result = "error"
		event.ErrorDetail = err.Error()
	}
	b.audit.Record(event)
}

func (b *Binding[T, D]) field(name string) (Field[D], bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, f := range b.def.Fields {
		if strings.ToLower(f.Name) == want {
			return f, true
		}
	}
	return Field[D]{}, false
}

func (b *Binding[T, D]) fieldNames() string {
	names := make([]string, 0, len(b.def.Fields))
	for _, f := range b.def.Fields {
		names = append(names, f.Name)
	}
	return strings.Join(names, ", ")
}

func (b *Binding[T, D]) notOnPage(id int64) error {
	return fmt.Errorf("%s %d is not on the current page", b.def.Kind, id)
}

// asChanges flattens a JSON-encodable body into a map for the audit log.
func asChanges(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
