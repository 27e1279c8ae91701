// Package console is the interactive back-office shell. Each line read from
// the input is one command acting on the active resource screen.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"git.cscs.ch/openchami/backoffice/internal/backoffice"
	"git.cscs.ch/openchami/backoffice/internal/policy"
	"git.cscs.ch/openchami/backoffice/pkg/client"
)

// maxLine bounds a single command line.
const maxLine = 1024 * 1024

// errQuit ends the read loop.
var errQuit = errors.New("quit")

// Screen is one resource screen. *backoffice.Binding satisfies it for every
// resource type.
type Screen interface {
	Name() string
	Kind() string
	SetSubject(subject string)

	Status() backoffice.Status
	Table(now time.Time) ([]string, [][]string)
	Show(id int64, now time.Time) ([]backoffice.Detail, error)

	Refresh(ctx context.Context) error
	SetFilter(ctx context.Context, query string) error
	SetPage(ctx context.Context, n int) error
	NextPage(ctx context.Context) error
	PrevPage(ctx context.Context) error
	DismissError()
	Remove(ctx context.Context, id int64) error

	Fields() []backoffice.FieldInfo
	HasLines() bool
	OpenCreate() error
	OpenEdit(id int64) error
	Set(name, value string) error
	AddLine() error
	SetLineProduct(i int, productID int64) error
	SetLineQuantity(i int, raw string) error
	RemoveLine(i int) error
	Draft() (backoffice.DraftView, bool)
	Submit(ctx context.Context) (backoffice.SubmitResult, error)
	Cancel() error
}

// Options configures a Console.
type Options struct {
	// Screens in display order. The first one is active at start.
	Screens []Screen
	Guard   *policy.Guard
	// AssumeYes skips delete confirmation.
	AssumeYes bool
	// Catalog and Products preload the product lookup used by order lines.
	Catalog  *backoffice.Catalog
	Products backoffice.ProductLister
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Console dispatches commands to screens and renders the result.
type Console struct {
	screens   []Screen
	active    Screen
	guard     *policy.Guard
	assumeYes bool
	catalog   *backoffice.Catalog
	products  backoffice.ProductLister
	logger    zerolog.Logger
	now       func() time.Time
	commands  map[string]*command
	out       io.Writer
}

// New validates opts and builds a console.
func New(opts Options) (*Console, error) {
	if len(opts.Screens) == 0 {
		return nil, fmt.Errorf("console: at least one screen is required")
	}
	seen := make(map[string]struct{}, len(opts.Screens))
	for _, s := range opts.Screens {
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("console: duplicate screen %q", s.Name())
		}
		seen[s.Name()] = struct{}{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Console{
		screens:   opts.Screens,
		active:    opts.Screens[0],
		guard:     opts.Guard,
		assumeYes: opts.AssumeYes,
		catalog:   opts.Catalog,
		products:  opts.Products,
		logger:    opts.Logger.With().Str("component", "console").Logger(),
		now:       opts.Now,
		out:       io.Discard,
	}
	c.commands = c.buildCommands()
	return c, nil
}

// Active returns the active screen.
func (c *Console) Active() Screen {
	return c.active
}

// Start loads the product catalog and the first page of every screen
// concurrently. Fetch failures are left on the screens' banners; the first
// one is returned.
func (c *Console) Start(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(4)

	if c.catalog != nil && c.products != nil {
		g.Go(func() error {
			if err := c.catalog.Load(ctx, c.products); err != nil {
				c.logger.Warn().Err(err).Msg("product catalog not loaded; order lines are not checked locally")
				return err
			}
			return nil
		})
	}
	for _, s := range c.screens {
		s := s
		g.Go(func() error {
			return s.Refresh(client.WithRequestID(ctx, uuid.NewString()))
		})
	}
	return g.Wait()
}

// Run reads commands from in until EOF, "quit" or ctx is cancelled.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	writer := bufio.NewWriter(out)
	defer writer.Flush()
	c.out = writer

	c.renderList()
	c.prompt()
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("writing console output: %w", err)
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.Exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %s\n", err)
		}
		c.prompt()
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("writing console output: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading console input: %w", err)
	}
	return nil
}

// Exec runs one command line against the active screen. Every call carries a
// fresh request ID that is sent to the API and written to the audit log.
func (c *Console) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	rest = strings.TrimSpace(rest)

	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try \"help\")", name)
	}
	if cmd.action.Mutates() {
		if err := c.guard.Authorize(cmd.action, c.active.Kind()); err != nil {
			return err
		}
	}

	requestID := uuid.NewString()
	ctx = client.WithRequestID(ctx, requestID)
	logger := c.logger.With().Str("request_id", requestID).Str("command", cmd.name).Str("screen", c.active.Name()).Logger()
	ctx = logger.WithContext(ctx)

	logger.Debug().Msg("executing command")
	return cmd.run(ctx, rest)
}

// SetOutput directs command output to w. Run sets it to its own writer.
func (c *Console) SetOutput(w io.Writer) {
	c.out = w
}

func (c *Console) prompt() {
	fmt.Fprintf(c.out, "%s> ", c.active.Name())
}

func (c *Console) screen(name string) (Screen, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, s := range c.screens {
		if s.Name() == want || s.Kind() == want {
			return s, true
		}
	}
	return nil, false
}

func (c *Console) screenNames() string {
	names := make([]string, len(c.screens))
	for i, s := range c.screens {
		names[i] = s.Name()
	}
	return strings.Join(names, ", ")
}
