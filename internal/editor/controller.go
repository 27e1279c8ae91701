// Package editor drives the single in-progress create or edit of a resource.
//
// A Controller holds at most one session. The session moves from Open to
// Submitting when the draft passes local validation and back to Open if the
// remote API rejects it, with the draft kept as entered. A successful submit
// closes the session and asks the collection to refresh. Cancel closes an
// open session without any request.
package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"git.cscs.ch/openchami/backoffice/pkg/client"
)

// Mode distinguishes a create session from an edit session.
type Mode int

const (
	ModeCreate Mode = iota + 1
	ModeEdit
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeEdit:
		return "edit"
	default:
		return "none"
	}
}

// State is the lifecycle state of the controller.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// Refresher is notified after a committed change.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Binding supplies the resource-specific parts of a Controller.
type Binding[T, D any] struct {
	// Kind is the singular resource name used in messages ("order").
	Kind string
	// Blank returns the initial draft of a create session.
	Blank func() D
	// FromResource converts a committed record into an edit draft.
	FromResource func(T) D
	// ID extracts the identifier of a record.
	ID func(T) int64
	// Clone deep-copies a draft. Optional when D holds no reference types.
	Clone func(D) D
	// Validate checks the draft before submit.
	Validate func(mode Mode, draft D) error
	// Changed reports whether an edit draft differs from its baseline. When
	// nil every edit submit is sent.
	Changed func(baseline, draft D) bool
	// Create and Update call the gateway.
	Create func(ctx context.Context, draft D) (*T, error)
	Update func(ctx context.Context, id int64, baseline, draft D) (*T, error)
}

// Session is a snapshot of the open session.
type Session[D any] struct {
	Mode            Mode
	State           State
	ID              int64
	Draft           D
	Baseline        D
	ValidationError string
}

// Controller owns at most one edit session for one resource type.
type Controller[T, D any] struct {
	binding   Binding[T, D]
	refresher Refresher
	logger    zerolog.Logger

	mu      sync.Mutex
	state   State
	session Session[D]
}

// New returns a closed controller. refresher may be nil.
func New[T, D any](binding Binding[T, D], refresher Refresher, logger zerolog.Logger) (*Controller[T, D], error) {
	if binding.Blank == nil || binding.FromResource == nil || binding.ID == nil {
		return nil, fmt.Errorf("editor: Blank, FromResource and ID are required")
	}
	if binding.Create == nil || binding.Update == nil {
		return nil, fmt.Errorf("editor: Create and Update are required")
	}
	if strings.TrimSpace(binding.Kind) == "" {
		binding.Kind = "record"
	}
	if binding.Clone == nil {
		binding.Clone = func(d D) D { return d }
	}
	return &Controller[T, D]{
		binding:   binding,
		refresher: refresher,
		logger:    logger.With().Str("component", "editor").Str("resource", binding.Kind).Logger(),
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller[T, D]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the session and whether one exists.
func (c *Controller[T, D]) Session() (Session[D], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return Session[D]{}, false
	}
	return c.snapshotLocked(), true
}

// OpenCreate starts a create session with a blank draft.
func (c *Controller[T, D]) OpenCreate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		return ErrSessionOpen
	}
	c.state = StateOpen
	c.session = Session[D]{Mode: ModeCreate, Draft: c.binding.Blank()}
	c.logger.Debug().Msg("create session opened")
	return nil
}

// OpenEdit starts an edit session seeded from record.
func (c *Controller[T, D]) OpenEdit(record T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		return ErrSessionOpen
	}
	baseline := c.binding.FromResource(record)
	c.state = StateOpen
	c.session = Session[D]{
		Mode:     ModeEdit,
		ID:       c.binding.ID(record),
		Draft:    c.binding.Clone(baseline),
		Baseline: baseline,
	}
	c.logger.Debug().Int64("id", c.session.ID).Msg("edit session opened")
	return nil
}

// Edit applies fn to a copy of the draft. If fn fails the draft is left
// unchanged and the failure becomes the session's validation error.
func (c *Controller[T, D]) Edit(fn func(D) (D, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOpenLocked(); err != nil {
		return err
	}

	next, err := fn(c.binding.Clone(c.session.Draft))
	if err != nil {
		c.session.ValidationError = client.UserMessage(err, fmt.Sprintf("Invalid %s", c.binding.Kind))
		return err
	}
	c.session.Draft = next
	c.session.ValidationError = ""
	return nil
}

// Cancel discards the open session without calling the gateway.
func (c *Controller[T, D]) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOpenLocked(); err != nil {
		return err
	}
	c.closeLocked()
	c.logger.Debug().Msg("session cancelled")
	return nil
}

// Submit validates the draft and sends it. On success the session closes, the
// refresher is asked to refetch and the committed record is returned. An edit
// with no changes closes the session and returns (nil, nil) without a
// request. On failure the session stays open with its draft and the error
// message recorded.
func (c *Controller[T, D]) Submit(ctx context.Context) (*T, error) {
	c.mu.Lock()
	if err := c.requireOpenLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	sess := c.session
	draft := c.binding.Clone(sess.Draft)
	if c.binding.Validate != nil {
		if err := c.binding.Validate(sess.Mode, draft); err != nil {
			c.session.ValidationError = client.UserMessage(err, fmt.Sprintf("Invalid %s", c.binding.Kind))
			c.mu.Unlock()
			return nil, err
		}
	}

	if sess.Mode == ModeEdit && c.binding.Changed != nil && !c.binding.Changed(sess.Baseline, draft) {
		c.closeLocked()
		c.mu.Unlock()
		c.logger.Debug().Int64("id", sess.ID).Msg("no changes; session closed")
		return nil, nil
	}

	c.state = StateSubmitting
	c.session.ValidationError = ""
	c.mu.Unlock()

	var (
		record *T
		err    error
		verb   string
	)
	switch sess.Mode {
	case ModeCreate:
		verb = "create"
		record, err = c.binding.Create(ctx, draft)
	default:
		verb = "update"
		record, err = c.binding.Update(ctx, sess.ID, sess.Baseline, draft)
	}

	c.mu.Lock()
	if err != nil {
		c.state = StateOpen
		c.session.ValidationError = client.UserMessage(err, fmt.Sprintf("Failed to %s the %s. Please try again.", verb, c.binding.Kind))
		c.mu.Unlock()
		c.logger.Warn().Err(err).Str("mode", sess.Mode.String()).Int64("id", sess.ID).Msg("submit rejected; session kept open")
		return nil, err
	}
	c.closeLocked()
	c.mu.Unlock()

	ev := c.logger.Info().Str("mode", sess.Mode.String())
	if record != nil {
		ev = ev.Int64("id", c.binding.ID(*record))
	}
	ev.Msg("submit committed")

	if c.refresher != nil {
		if rerr := c.refresher.Refresh(ctx); rerr != nil {
			c.logger.Warn().Err(rerr).Msg("refresh after submit failed")
		}
	}
	return record, nil
}

func (c *Controller[T, D]) requireOpenLocked() error {
	switch c.state {
	case StateClosed:
		return ErrNoSession
	case StateSubmitting:
		return ErrSubmitting
	}
	return nil
}

func (c *Controller[T, D]) closeLocked() {
	c.state = StateClosed
	c.session = Session[D]{}
}

func (c *Controller[T, D]) snapshotLocked() Session[D] {
	out := c.session
	out.State = c.state
	out.Draft = c.binding.Clone(c.session.Draft)
	if c.session.Mode == ModeEdit {
		out.Baseline = c.binding.Clone(c.session.Baseline)
	}
	return out
}
