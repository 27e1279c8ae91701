// Package collection keeps one page of a remote collection in memory and
// decides when to refetch it.
//
// The remote API is the source of truth. A Store replaces its page wholesale
// on every successful list call and never merges pages. The only local edit
// it allows is the optimistic removal of a deleted row, which the next
// refresh reconciles.
//
// Overlapping refreshes are not serialised. Each list call takes a sequence
// number and only the response to the most recently issued call is applied;
// slower responses to superseded calls are dropped.
package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"git.cscs.ch/openchami/backoffice/pkg/client"
	"git.cscs.ch/openchami/backoffice/pkg/types"
)

// DefaultLimit is the page size used when none is configured.
const DefaultLimit = 10

// ErrPageOutOfRange is returned by SetPage when the requested page is outside
// 1..PageCount. The store is left untouched.
var ErrPageOutOfRange = errors.New("page out of range")

// Source is the part of the gateway the store depends on.
type Source[T any] interface {
	List(ctx context.Context, opts client.ListOptions) (*types.Page[T], error)
	Delete(ctx context.Context, id int64) error
}

// Config configures a Store.
type Config[T any] struct {
	// Name is the singular resource name used in messages ("product").
	Name string
	// Limit is the page size. Defaults to DefaultLimit.
	Limit int
	// ID extracts the identifier of an item.
	ID func(T) int64
}

// View is an immutable snapshot of the store for rendering.
type View[T any] struct {
	Items     []T
	Page      int
	Limit     int
	PageCount int
	Total     int
	// Query is the filter the held page was fetched with. A filter whose
	// fetch failed shows up only once a later fetch succeeds.
	Query string
	// Err is the banner message of the last failed operation, empty when
	// there is nothing to show.
	Err     string
	Loading bool
	Loaded  bool
}

// Store holds the current page of one collection.
type Store[T any] struct {
	source Source[T]
	name   string
	id     func(T) int64
	logger zerolog.Logger

	mu            sync.Mutex
	query         string
	applied       string
	page          int
	limit         int
	current       types.Page[T]
	loaded        bool
	errMsg        string
	issued        uint64
	inFlight      int
	failedDeletes map[int64]struct{}
	subscribers   map[int]func(View[T])
	nextSubID     int
}

// New creates a store. Nothing is fetched until the first Refresh.
func New[T any](source Source[T], cfg Config[T], logger zerolog.Logger) (*Store[T], error) {
	if source == nil {
		return nil, fmt.Errorf("collection: source is required")
	}
	if cfg.ID == nil {
		return nil, fmt.Errorf("collection: ID func is required")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "item"
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	return &Store[T]{
		source: source,
		name:   name,
		id:     cfg.ID,
		logger: logger.With().Str("component", "collection").Str("resource", name).Logger(),
		page:   1,
		limit:  limit,
		current: types.Page[T]{
			Items:     []T{},
			Page:      1,
			Limit:     limit,
			PageCount: 1,
		},
		failedDeletes: make(map[int64]struct{}),
		subscribers:   make(map[int]func(View[T])),
	}, nil
}

// Name returns the singular resource name.
func (s *Store[T]) Name() string {
	return s.name
}

// View returns a snapshot of the current state.
func (s *Store[T]) View() View[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Find returns the item with the given ID if it is on the current page.
func (s *Store[T]) Find(id int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.current.Items {
		if s.id(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Subscribe registers fn to be called with a fresh snapshot after every state
// change. The returned func unregisters it.
func (s *Store[T]) Subscribe(fn func(View[T])) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// SetFilter sets the search query, resets to page 1 and refetches.
func (s *Store[T]) SetFilter(ctx context.Context, query string) error {
	s.mu.Lock()
	s.query = strings.TrimSpace(query)
	s.page = 1
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// SetPage moves to page n and refetches. Pages outside 1..PageCount are
// rejected with ErrPageOutOfRange without any request being made.
func (s *Store[T]) SetPage(ctx context.Context, n int) error {
	s.mu.Lock()
	if n < 1 || n > s.current.PageCount {
		pageCount := s.current.PageCount
		s.mu.Unlock()
		return fmt.Errorf("%w: %d (pages: 1-%d)", ErrPageOutOfRange, n, pageCount)
	}
	s.page = n
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// NextPage moves one page forward.
func (s *Store[T]) NextPage(ctx context.Context) error {
	return s.SetPage(ctx, s.View().Page+1)
}

// PrevPage moves one page back.
func (s *Store[T]) PrevPage(ctx context.Context) error {
	return s.SetPage(ctx, s.View().Page-1)
}

// Refresh re-lists with the current filter, page and limit. On success the
// held page is replaced. On failure the previous page stays and the error is
// recorded for the banner. A response that arrives after a newer Refresh was
// issued is discarded and nil is returned.
func (s *Store[T]) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	opts := client.ListOptions{Page: s.page, Limit: s.limit, Query: s.query}
	s.inFlight++
	s.mu.Unlock()
	s.notify()

	page, err := s.source.List(ctx, opts)

	s.mu.Lock()
	s.inFlight--
	if seq != s.issued {
		s.mu.Unlock()
		s.logger.Debug().Uint64("seq", seq).Int("page", opts.Page).Str("query", opts.Query).Msg("discarding stale list response")
		s.notify()
		return nil
	}

	if err != nil {
		s.errMsg = client.UserMessage(err, fmt.Sprintf("Failed to fetch %ss", s.name))
		s.mu.Unlock()
		s.logger.Warn().Err(err).Int("page", opts.Page).Str("query", opts.Query).Msg("list failed; keeping previous page")
		s.notify()
		return err
	}

	normalized := normalizePage(page, opts)
	overshoot := opts.Page > normalized.PageCount && len(normalized.Items) == 0 && normalized.Total > 0

	s.current = normalized
	s.applied = opts.Query
	s.page = normalized.Page
	s.loaded = true
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()

	if overshoot {
		s.logger.Debug().Int("requested", opts.Page).Int("page_count", normalized.PageCount).Msg("requested page past the end; refetching last page")
		return s.Refresh(ctx)
	}
	return nil
}

// RemoveLocally drops the item from the current page and decrements the total
// without asking the server. It reports whether the item was on the page.
func (s *Store[T]) RemoveLocally(id int64) bool {
	s.mu.Lock()
	removed := false
	items := make([]T, 0, len(s.current.Items))
	for _, item := range s.current.Items {
		if s.id(item) == id {
			removed = true
			continue
		}
		items = append(items, item)
	}
	if removed {
		s.current.Items = items
		if s.current.Total > 0 {
			s.current.Total--
		}
	}
	s.mu.Unlock()

	if removed {
		s.notify()
	}
	return removed
}

// Remove deletes the record remotely after removing it locally. The local
// removal is never rolled back. A 404 means the record is already gone and
// counts as success. Any other failure is surfaced on the banner the first
// time it happens for an ID; a repeated failing delete of the same ID is
// tolerated silently.
func (s *Store[T]) Remove(ctx context.Context, id int64) error {
	s.RemoveLocally(id)

	err := s.source.Delete(ctx, id)
	if err == nil {
		s.mu.Lock()
		delete(s.failedDeletes, id)
		s.mu.Unlock()
		return nil
	}

	if client.IsNotFound(err) {
		s.logger.Debug().Int64("id", id).Msg("delete target already gone")
		return nil
	}

	s.mu.Lock()
	_, failedBefore := s.failedDeletes[id]
	s.failedDeletes[id] = struct{}{}
	if failedBefore {
		s.mu.Unlock()
		s.logger.Debug().Err(err).Int64("id", id).Msg("repeated delete failure tolerated")
		return nil
	}
	s.errMsg = client.UserMessage(err, fmt.Sprintf("Failed to delete the %s. Please try again.", s.name))
	s.mu.Unlock()

	s.logger.Warn().Err(err).Int64("id", id).Msg("delete failed; row stays hidden until next refresh")
	s.notify()
	return err
}

// DismissError clears the banner message.
func (s *Store[T]) DismissError() {
	s.mu.Lock()
	changed := s.errMsg != ""
	s.errMsg = ""
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Store[T]) viewLocked() View[T] {
	items := make([]T, len(s.current.Items))
	copy(items, s.current.Items)
	return View[T]{
		Items:     items,
		Page:      s.current.Page,
		Limit:     s.current.Limit,
		PageCount: s.current.PageCount,
		Total:     s.current.Total,
		Query:     s.applied,
		Err:       s.errMsg,
		Loading:   s.inFlight > 0,
		Loaded:    s.loaded,
	}
}

func (s *Store[T]) notify() {
	s.mu.Lock()
	if len(s.subscribers) == 0 {
		s.mu.Unlock()
		return
	}
	view := s.viewLocked()
	fns := make([]func(View[T]), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(view)
	}
}

// normalizePage enforces 1 <= Page <= PageCount and len(Items) <= Limit.
func normalizePage[T any](page *types.Page[T], opts client.ListOptions) types.Page[T] {
	out := types.Page[T]{}
	if page != nil {
		out = *page
	}

	if out.Limit <= 0 {
		out.Limit = opts.Limit
	}
	if out.Limit <= 0 {
		out.Limit = DefaultLimit
	}
	if out.PageCount < 1 {
		out.PageCount = 1
	}
	if out.Page < 1 {
		out.Page = opts.Page
	}
	if out.Page < 1 {
		out.Page = 1
	}
	if out.Page > out.PageCount {
		out.Page = out.PageCount
	}
	if out.Total < 0 {
		out.Total = 0
	}

	items := out.Items
	if len(items) > out.Limit {
		items = items[:out.Limit]
	}
	out.Items = make([]T, len(items))
	copy(out.Items, items)
	return out
}
