package backoffice

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.cscs.ch/openchami/backoffice/internal/editor"
	"git.cscs.ch/openchami/backoffice/pkg/client"
	"git.cscs.ch/openchami/backoffice/pkg/types"
)

// Gateway is the remote collection a binding reads and writes.
type Gateway[T, D, P any] interface {
	List(ctx context.Context, opts client.ListOptions) (*types.Page[T], error)
	Create(ctx context.Context, draft D) (*T, error)
	Update(ctx context.Context, id int64, patch P) (*T, error)
	Delete(ctx context.Context, id int64) error
}

// Products is the products screen.
type Products = Binding[types.Product, types.ProductDraft]

// NewProducts binds the product gateway. Committed and deleted products are
// reflected in the options' catalog.
func NewProducts(gw Gateway[types.Product, types.ProductDraft, types.ProductPatch], opts Options) (*Products, error) {
	if opts.Catalog == nil {
		opts.Catalog = NewCatalog()
	}
	catalog := opts.Catalog
	v := editor.NewValidator()

	def := Definition[types.Product, types.ProductDraft]{
		Name: "products",
		Kind: "product",
		ID:   func(p types.Product) int64 { return p.ID },
		Columns: []Column[types.Product]{
			{Header: "ID", Value: func(p types.Product, _ time.Time) string { return idString(p.ID) }},
			{Header: "NAME", Value: func(p types.Product, _ time.Time) string { return truncate(p.Name, 32) }},
			{Header: "DESCRIPTION", Value: func(p types.Product, _ time.Time) string { return truncate(p.Description, 40) }},
			{Header: "PRICE", Value: func(p types.Product, _ time.Time) string { return p.Price.String() }},
			{Header: "CREATED", Value: func(p types.Product, now time.Time) string { return Ago(p.CreatedAt, now) }},
			{Header: "MODIFIED", Value: func(p types.Product, now time.Time) string { return Ago(p.ModifiedAt, now) }},
		},
		Details: func(p types.Product, now time.Time) []Detail {
			image := p.Image
			if image == "" {
				image = "-"
			}
			return []Detail{
				{Label: "id", Value: idString(p.ID)},
				{Label: "name", Value: p.Name},
				{Label: "description", Value: p.Description},
				{Label: "price", Value: p.Price.String()},
				{Label: "image", Value: image},
				{Label: "created", Value: Ago(p.CreatedAt, now)},
				{Label: "modified", Value: Ago(p.ModifiedAt, now)},
			}
		},
		Fields: []Field[types.ProductDraft]{
			{
				Name: "name", Required: true,
				Get: func(d types.ProductDraft) string { return d.Name },
				Set: func(d types.ProductDraft, s string) (types.ProductDraft, error) {
					d.Name = strings.TrimSpace(s)
					return d, nil
				},
			},
			{
				Name: "description", Required: true,
				Get: func(d types.ProductDraft) string { return d.Description },
				Set: func(d types.ProductDraft, s string) (types.ProductDraft, error) {
					d.Description = strings.TrimSpace(s)
					return d, nil
				},
			},
			{
				Name: "price", Required: true,
				Get: func(d types.ProductDraft) string { return Money(d.Price) },
				Set: func(d types.ProductDraft, s string) (types.ProductDraft, error) {
					d.Price = editor.CoercePrice(s)
					return d, nil
				},
			},
			{
				Name: "image", CreateOnly: true,
				Get: func(d types.ProductDraft) string {
					if d.Image == nil {
						return "-"
					}
					return fmt.Sprintf("%s (%s, %d bytes)", d.Image.Filename, d.Image.ContentType, len(d.Image.Data))
				},
				Set: func(d types.ProductDraft, s string) (types.ProductDraft, error) {
					path := strings.TrimSpace(s)
					if path == "" {
						d.Image = nil
						return d, nil
					}
					att, err := readAttachment(path)
					if err != nil {
						return d, editor.Invalid("image", "Cannot read image: %v", err)
					}
					d.Image = att
					return d, nil
				},
			},
		},
		Changes: func(mode editor.Mode, baseline, draft types.ProductDraft) map[string]any {
			if mode == editor.ModeEdit {
				return asChanges(productPatch(baseline, draft))
			}
			changes := asChanges(draft)
			if changes != nil && draft.Image != nil {
				changes["image"] = draft.Image.Filename
			}
			return changes
		},
		OnCommit: catalog.Put,
		OnRemove: catalog.Delete,
	}

	eb := editor.Binding[types.Product, types.ProductDraft]{
		Blank: func() types.ProductDraft { return types.ProductDraft{Price: 1} },
		FromResource: func(p types.Product) types.ProductDraft {
			return types.ProductDraft{Name: p.Name, Description: p.Description, Price: float64(p.Price)}
		},
		Validate: func(_ editor.Mode, d types.ProductDraft) error { return v.Struct(d) },
		Changed: func(baseline, draft types.ProductDraft) bool {
			return !productPatch(baseline, draft).IsEmpty()
		},
		Create: gw.Create,
		Update: func(ctx context.Context, id int64, baseline, draft types.ProductDraft) (*types.Product, error) {
			return gw.Update(ctx, id, productPatch(baseline, draft))
		},
	}

	return newBinding(def, gw, eb, opts)
}

func productPatch(baseline, draft types.ProductDraft) types.ProductPatch {
	var patch types.ProductPatch
	if draft.Name != baseline.Name {
		patch.Name = &draft.Name
	}
	if draft.Description != baseline.Description {
		patch.Description = &draft.Description
	}
	if editor.RoundCents(draft.Price) != editor.RoundCents(baseline.Price) {
		patch.Price = &draft.Price
	}
	return patch
}

func readAttachment(path string) (*types.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &types.Attachment{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
