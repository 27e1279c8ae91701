package console

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"git.cscs.ch/openchami/backoffice/internal/backoffice"
	"git.cscs.ch/openchami/backoffice/internal/collection"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func isOutOfRange(err error) bool {
	return errors.Is(err, collection.ErrPageOutOfRange)
}

// renderList prints the status line, the error banner and the page table.
func (c *Console) renderList() {
	st := c.active.Status()

	header := fmt.Sprintf("%s  page %d/%d  showing %d of %d", c.active.Name(), st.Page, st.PageCount, st.Count, st.Total)
	if st.Query != "" {
		header += fmt.Sprintf("  search %q", st.Query)
	}
	header += "  [" + c.guard.Mode() + "]"
	fmt.Fprintln(c.out, header)

	if st.Err != "" {
		fmt.Fprintf(c.out, "! %s (dismiss to clear)\n", st.Err)
	}
	if !st.Loaded {
		fmt.Fprintln(c.out, "  not loaded yet; try refresh")
		return
	}

	headers, rows := c.active.Table(c.now())
	if len(rows) == 0 {
		fmt.Fprintf(c.out, "  no %s\n", c.active.Name())
		return
	}
	tw := newTabWriter(c.out)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

func (c *Console) renderDraft() {
	view, open := c.active.Draft()
	if !open {
		fmt.Fprintln(c.out, "no open session")
		return
	}

	if view.ID > 0 {
		fmt.Fprintf(c.out, "%s %s %d (%s)\n", view.Mode, c.active.Kind(), view.ID, view.State)
	} else {
		fmt.Fprintf(c.out, "%s %s (%s)\n", view.Mode, c.active.Kind(), view.State)
	}
	renderDetails(c.out, view.Fields)

	if c.active.HasLines() {
		tw := newTabWriter(c.out)
		fmt.Fprintln(tw, "  #\tPRODUCT\tUNIT\tQTY")
		for _, l := range view.Lines {
			product := l.Product
			if l.ProductID != 0 {
				product = fmt.Sprintf("#%d %s", l.ProductID, l.Product)
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%d\n", l.Index, product, l.UnitPrice, l.Quantity)
		}
		fmt.Fprintf(tw, "  \ttotal\t%s\t\n", view.Total)
		_ = tw.Flush()
	}

	if view.ValidationError != "" {
		fmt.Fprintf(c.out, "! %s\n", view.ValidationError)
	}
}

func renderDetails(w io.Writer, details []backoffice.Detail) {
	tw := newTabWriter(w)
	for _, d := range details {
		fmt.Fprintf(tw, "  %s:\t%s\n", d.Label, d.Value)
	}
	_ = tw.Flush()
}
