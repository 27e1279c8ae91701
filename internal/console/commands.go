package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"git.cscs.ch/openchami/backoffice/internal/editor"
	"git.cscs.ch/openchami/backoffice/internal/policy"
)

type command struct {
	name    string
	usage   string
	summary string
	// action is checked against the guard before run. Commands whose action
	// depends on their arguments use ActionRead and authorize inside run.
	action policy.Action
	run    func(ctx context.Context, args string) error
}

func (c *Console) buildCommands() map[string]*command {
	list := []*command{
		{name: "help", usage: "help", summary: "show commands", action: policy.ActionRead, run: c.cmdHelp},
		{name: "quit", usage: "quit", summary: "leave the console", action: policy.ActionRead, run: c.cmdQuit},
		{name: "use", usage: "use <resource>", summary: "switch screen", action: policy.ActionRead, run: c.cmdUse},
		{name: "list", usage: "list", summary: "show the current page", action: policy.ActionRead, run: c.cmdList},
		{name: "refresh", usage: "refresh", summary: "refetch the current page", action: policy.ActionRead, run: c.cmdRefresh},
		{name: "search", usage: "search [text]", summary: "filter and go to page 1; no text clears", action: policy.ActionRead, run: c.cmdSearch},
		{name: "page", usage: "page <n>", summary: "go to page n", action: policy.ActionRead, run: c.cmdPage},
		{name: "next", usage: "next", summary: "next page", action: policy.ActionRead, run: c.cmdNext},
		{name: "prev", usage: "prev", summary: "previous page", action: policy.ActionRead, run: c.cmdPrev},
		{name: "dismiss", usage: "dismiss", summary: "clear the error banner", action: policy.ActionRead, run: c.cmdDismiss},
		{name: "show", usage: "show <id>", summary: "details of a record on the page", action: policy.ActionRead, run: c.cmdShow},
		{name: "fields", usage: "fields", summary: "editable fields", action: policy.ActionRead, run: c.cmdFields},
		{name: "new", usage: "new", summary: "open a create session", action: policy.ActionCreate, run: c.cmdNew},
		{name: "edit", usage: "edit <id>", summary: "open an edit session", action: policy.ActionUpdate, run: c.cmdEdit},
		{name: "set", usage: "set <field> <value>", summary: "change a draft field", action: policy.ActionRead, run: c.cmdSet},
		{name: "line", usage: "line add | line product <n> <id> | line qty <n> <q> | line rm <n>", summary: "edit order lines", action: policy.ActionRead, run: c.cmdLine},
		{name: "draft", usage: "draft", summary: "show the open session", action: policy.ActionRead, run: c.cmdDraft},
		{name: "submit", usage: "submit", summary: "send the draft", action: policy.ActionRead, run: c.cmdSubmit},
		{name: "cancel", usage: "cancel", summary: "discard the draft", action: policy.ActionRead, run: c.cmdCancel},
		{name: "delete", usage: "delete <id> [confirm]", summary: "delete a record", action: policy.ActionDelete, run: c.cmdDelete},
	}

	out := make(map[string]*command, len(list)+2)
	for _, cmd := range list {
		out[cmd.name] = cmd
	}
	out["exit"] = out["quit"]
	out["ls"] = out["list"]
	return out
}

func (c *Console) cmdHelp(context.Context, string) error {
	names := make([]string, 0, len(c.commands))
	for name, cmd := range c.commands {
		if name == cmd.name {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	tw := newTabWriter(c.out)
	for _, name := range names {
		cmd := c.commands[name]
		fmt.Fprintf(tw, "  %s\t%s\n", cmd.usage, cmd.summary)
	}
	fmt.Fprintf(tw, "  resources:\t%s\n", c.screenNames())
	return tw.Flush()
}

func (c *Console) cmdQuit(context.Context, string) error {
	if _, open := c.active.Draft(); open {
		fmt.Fprintln(c.out, "discarding open draft")
	}
	return errQuit
}

func (c *Console) cmdUse(_ context.Context, args string) error {
	s, ok := c.screen(args)
	if !ok {
		return fmt.Errorf("unknown resource %q (resources: %s)", args, c.screenNames())
	}
	c.active = s
	c.renderList()
	return nil
}

func (c *Console) cmdList(context.Context, string) error {
	c.renderList()
	return nil
}

// Fetch failures land on the banner, which renderList prints, so the
// navigation commands return only argument errors.
func (c *Console) cmdRefresh(ctx context.Context, _ string) error {
	c.logFetch(ctx, c.active.Refresh(ctx))
	c.renderList()
	return nil
}

func (c *Console) cmdSearch(ctx context.Context, args string) error {
	c.logFetch(ctx, c.active.SetFilter(ctx, args))
	c.renderList()
	return nil
}

func (c *Console) cmdPage(ctx context.Context, args string) error {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return fmt.Errorf("usage: page <n>")
	}
	return c.navigate(ctx, c.active.SetPage(ctx, n))
}

func (c *Console) cmdNext(ctx context.Context, _ string) error {
	return c.navigate(ctx, c.active.NextPage(ctx))
}

func (c *Console) cmdPrev(ctx context.Context, _ string) error {
	return c.navigate(ctx, c.active.PrevPage(ctx))
}

func (c *Console) navigate(ctx context.Context, err error) error {
	if isOutOfRange(err) {
		return err
	}
	c.logFetch(ctx, err)
	c.renderList()
	return nil
}

func (c *Console) cmdDismiss(context.Context, string) error {
	c.active.DismissError()
	c.renderList()
	return nil
}

func (c *Console) cmdShow(_ context.Context, args string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	details, err := c.active.Show(id, c.now())
	if err != nil {
		return err
	}
	renderDetails(c.out, details)
	return nil
}

func (c *Console) cmdFields(context.Context, string) error {
	tw := newTabWriter(c.out)
	for _, f := range c.active.Fields() {
		note := f.Required
		if f.CreateOnly {
			note = strings.TrimSpace(note + " create only")
		}
		fmt.Fprintf(tw, "  %s\t%s\n", f.Name, note)
	}
	if c.active.HasLines() {
		fmt.Fprintln(tw, "  lines\tuse the line command")
	}
	return tw.Flush()
}

func (c *Console) cmdNew(context.Context, string) error {
	if err := c.requireNoSession(); err != nil {
		return err
	}
	if err := c.active.OpenCreate(); err != nil {
		return err
	}
	c.renderDraft()
	return nil
}

func (c *Console) cmdEdit(_ context.Context, args string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := c.requireNoSession(); err != nil {
		return err
	}
	if err := c.active.OpenEdit(id); err != nil {
		return err
	}
	c.renderDraft()
	return nil
}

// requireNoSession keeps at most one draft open across all screens.
func (c *Console) requireNoSession() error {
	for _, s := range c.screens {
		if view, open := s.Draft(); open {
			return fmt.Errorf("%w: %s %s draft on %s (submit or cancel it first)", editor.ErrSessionOpen, view.Mode, s.Kind(), s.Name())
		}
	}
	return nil
}

func (c *Console) cmdSet(_ context.Context, args string) error {
	field, value, _ := strings.Cut(args, " ")
	if strings.TrimSpace(field) == "" {
		return fmt.Errorf("usage: set <field> <value>")
	}
	if err := c.active.Set(field, strings.TrimSpace(value)); err != nil {
		return err
	}
	c.renderDraft()
	return nil
}

func (c *Console) cmdLine(_ context.Context, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return fmt.Errorf("usage: %s", c.commands["line"].usage)
	}

	var err error
	switch strings.ToLower(fields[0]) {
	case "add":
		err = c.active.AddLine()
	case "product":
		if len(fields) != 3 {
			return fmt.Errorf("usage: line product <n> <id>")
		}
		var i int
		var id int64
		if i, err = strconv.Atoi(fields[1]); err != nil {
			return fmt.Errorf("line number must be an integer")
		}
		if id, err = strconv.ParseInt(fields[2], 10, 64); err != nil || id < 0 {
			return fmt.Errorf("product id must be a non-negative integer")
		}
		err = c.active.SetLineProduct(i, id)
	case "qty", "quantity":
		if len(fields) != 3 {
			return fmt.Errorf("usage: line qty <n> <quantity>")
		}
		i, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			return fmt.Errorf("line number must be an integer")
		}
		err = c.active.SetLineQuantity(i, fields[2])
	case "rm", "remove":
		if len(fields) != 2 {
			return fmt.Errorf("usage: line rm <n>")
		}
		i, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			return fmt.Errorf("line number must be an integer")
		}
		err = c.active.RemoveLine(i)
	default:
		return fmt.Errorf("usage: %s", c.commands["line"].usage)
	}
	if err != nil {
		return err
	}
	c.renderDraft()
	return nil
}

func (c *Console) cmdDraft(context.Context, string) error {
	if _, open := c.active.Draft(); !open {
		return editor.ErrNoSession
	}
	c.renderDraft()
	return nil
}

func (c *Console) cmdSubmit(ctx context.Context, _ string) error {
	view, open := c.active.Draft()
	if !open {
		return editor.ErrNoSession
	}
	action := policy.ActionCreate
	if view.Mode == editor.ModeEdit.String() {
		action = policy.ActionUpdate
	}
	if err := c.guard.Authorize(action, c.active.Kind()); err != nil {
		return err
	}

	result, err := c.active.Submit(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("submit failed")
		// The session stays open with the message to show.
		if after, stillOpen := c.active.Draft(); stillOpen && after.ValidationError != "" {
			return errors.New(after.ValidationError)
		}
		return err
	}

	switch {
	case !result.Sent:
		fmt.Fprintf(c.out, "no changes to %s %d\n", c.active.Kind(), result.ID)
	case view.Mode == editor.ModeEdit.String():
		fmt.Fprintf(c.out, "updated %s %d\n", c.active.Kind(), result.ID)
	default:
		fmt.Fprintf(c.out, "created %s %d\n", c.active.Kind(), result.ID)
	}
	c.renderList()
	return nil
}

func (c *Console) cmdCancel(context.Context, string) error {
	if err := c.active.Cancel(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "draft discarded")
	return nil
}

func (c *Console) cmdDelete(ctx context.Context, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return fmt.Errorf("usage: delete <id> [confirm]")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return err
	}
	confirmed := len(fields) == 2 && IsConfirmation(fields[1])
	if len(fields) == 2 && !confirmed {
		return fmt.Errorf("usage: delete <id> [confirm]")
	}
	if err := c.authorizeDelete(id, confirmed); err != nil {
		return err
	}

	c.logFetch(ctx, c.active.Remove(ctx, id))
	c.renderList()
	return nil
}

// Delete removes one record of the active screen after the same mode and
// confirmation checks as the delete command. Unlike the command it returns
// the removal error instead of leaving it on the banner.
func (c *Console) Delete(ctx context.Context, id int64, confirmed bool) error {
	if err := c.authorizeDelete(id, confirmed); err != nil {
		return err
	}
	return c.active.Remove(ctx, id)
}

func (c *Console) authorizeDelete(id int64, confirmed bool) error {
	if err := c.guard.Authorize(policy.ActionDelete, c.active.Kind()); err != nil {
		return err
	}
	return policy.RequireConfirmation(policy.ActionDelete, c.active.Kind(), id, confirmed, c.assumeYes)
}

// IsConfirmation reports whether arg confirms a destructive command.
func IsConfirmation(arg string) bool {
	return arg == "confirm" || arg == "--confirm"
}

func (c *Console) logFetch(ctx context.Context, err error) {
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("request failed; shown on banner")
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("id must be a positive integer")
	}
	return id, nil
}
