package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"git.cscs.ch/openchami/backoffice/pkg/types"
)

// ListOptions configures list pagination and search.
type ListOptions struct {
	Page  int
	Limit int
	Query string
}

// MultipartPayload is implemented by drafts that must be sent as
// multipart/form-data (for example, because they carry a file).
type MultipartPayload interface {
	MultipartFields() map[string]string
	MultipartFile() (string, *types.Attachment)
}

// Resource is the gateway for one remote collection. T is the read model, D
// the create body and P the partial update body.
type Resource[T any, D any, P any] struct {
	client   *Client
	name     string
	itemPath string
	listPath string
}

func newResource[T any, D any, P any](c *Client, name, itemPath, listPath string) *Resource[T, D, P] {
	return &Resource[T, D, P]{
		client:   c,
		name:     name,
		itemPath: itemPath,
		listPath: listPath,
	}
}

// Name returns the singular resource name (for example "product").
func (r *Resource[T, D, P]) Name() string {
	return r.name
}

// List returns one page of the collection. The page is returned exactly as
// the server sent it; a bare JSON array is accepted as a single page.
func (r *Resource[T, D, P]) List(ctx context.Context, opts ListOptions) (*types.Page[T], error) {
	var raw json.RawMessage
	if err := r.client.do(ctx, http.MethodGet, r.buildListPath(opts), nil, "", &raw); err != nil {
		return nil, fmt.Errorf("listing %ss: %w", r.name, err)
	}

	page, err := decodePage[T](raw, opts)
	if err != nil {
		return nil, fmt.Errorf("listing %ss: %w", r.name, err)
	}
	return page, nil
}

// Create submits a new record. The returned record is authoritative for
// server-computed fields such as IDs, totals and timestamps.
func (r *Resource[T, D, P]) Create(ctx context.Context, draft D) (*T, error) {
	body, contentType, err := encodeDraft(draft)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", r.name, err)
	}

	var result T
	if err := r.client.do(ctx, http.MethodPost, r.itemPath, body, contentType, &result); err != nil {
		return nil, fmt.Errorf("creating %s: %w", r.name, asValidation(err))
	}
	return &result, nil
}

// Update applies a partial update to the record with the given ID.
func (r *Resource[T, D, P]) Update(ctx context.Context, id int64, patch P) (*T, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%s id is required", r.name)
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encoding %s patch: %w", r.name, err)
	}

	var result T
	if err := r.client.do(ctx, http.MethodPatch, r.buildItemPath(id), bytes.NewReader(payload), "application/json", &result); err != nil {
		return nil, fmt.Errorf("updating %s %d: %w", r.name, id, asValidation(err))
	}
	return &result, nil
}

// Delete removes the record with the given ID.
func (r *Resource[T, D, P]) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%s id is required", r.name)
	}
	if err := r.client.do(ctx, http.MethodDelete, r.buildItemPath(id), nil, "", nil); err != nil {
		return fmt.Errorf("deleting %s %d: %w", r.name, id, err)
	}
	return nil
}

func (r *Resource[T, D, P]) buildItemPath(id int64) string {
	return r.itemPath + "/" + url.PathEscape(strconv.FormatInt(id, 10))
}

func (r *Resource[T, D, P]) buildListPath(opts ListOptions) string {
	params := url.Values{}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if query := strings.TrimSpace(opts.Query); query != "" {
		params.Set("searchQuery", query)
	}

	if encoded := params.Encode(); encoded != "" {
		return r.listPath + "?" + encoded
	}
	return r.listPath
}

func decodePage[T any](raw json.RawMessage, opts ListOptions) (*types.Page[T], error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decoding item list: %w", err)
		}
		limit := opts.Limit
		if limit < len(items) || limit <= 0 {
			limit = len(items)
		}
		return &types.Page[T]{
			Items:     items,
			Page:      1,
			Limit:     limit,
			PageCount: 1,
			Total:     len(items),
		}, nil
	}

	var page types.Page[T]
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("decoding page: %w", err)
		}
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return &page, nil
}

func encodeDraft(draft any) (*bytes.Buffer, string, error) {
	if form, ok := draft.(MultipartPayload); ok {
		return encodeMultipart(form)
	}

	payload, err := json.Marshal(draft)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewBuffer(payload), "application/json", nil
}

func encodeMultipart(form MultipartPayload) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	for key, value := range form.MultipartFields() {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", key, err)
		}
	}

	if field, file := form.MultipartFile(); file != nil && len(file.Data) > 0 {
		contentType := strings.TrimSpace(file.ContentType)
		if contentType == "" {
			contentType = http.DetectContentType(file.Data)
		}
		filename := strings.TrimSpace(file.Filename)
		if filename == "" {
			filename = field
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("creating file part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("writing file part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf, writer.FormDataContentType(), nil
}
