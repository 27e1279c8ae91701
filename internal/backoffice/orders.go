package backoffice

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"git.cscs.ch/openchami/backoffice/internal/editor"
	"git.cscs.ch/openchami/backoffice/pkg/types"
)

// Orders is the orders screen.
type Orders = Binding[types.Order, types.OrderDraft]

// NewOrders binds the order gateway. Drafts are priced from the options'
// catalog; the total shown before submit is advisory and the server's
// totalPrice replaces it once committed.
func NewOrders(gw Gateway[types.Order, types.OrderDraft, types.OrderPatch], opts Options) (*Orders, error) {
	v := editor.NewValidator()

	text := func(get func(*types.OrderDraft) *string) func(types.OrderDraft, string) (types.OrderDraft, error) {
		return func(d types.OrderDraft, s string) (types.OrderDraft, error) {
			*get(&d) = strings.TrimSpace(s)
			return d, nil
		}
	}

	def := Definition[types.Order, types.OrderDraft]{
		Name: "orders",
		Kind: "order",
		ID:   func(o types.Order) int64 { return o.ID },
		Columns: []Column[types.Order]{
			{Header: "ID", Value: func(o types.Order, _ time.Time) string { return idString(o.ID) }},
			{Header: "CUSTOMER", Value: func(o types.Order, _ time.Time) string {
				return truncate(strings.TrimSpace(o.Firstname+" "+o.Lastname), 28)
			}},
			{Header: "EMAIL", Value: func(o types.Order, _ time.Time) string { return o.Email }},
			{Header: "ITEMS", Value: func(o types.Order, _ time.Time) string { return fmt.Sprint(itemCount(o)) }},
			{Header: "TOTAL", Value: func(o types.Order, _ time.Time) string { return o.TotalPrice.String() }},
			{Header: "STATUS", Value: func(o types.Order, _ time.Time) string { return string(o.Status) }},
			{Header: "CREATED", Value: func(o types.Order, now time.Time) string { return Ago(o.CreatedAt, now) }},
		},
		Details: func(o types.Order, now time.Time) []Detail {
			details := []Detail{
				{Label: "id", Value: idString(o.ID)},
				{Label: "customer", Value: strings.TrimSpace(o.Firstname + " " + o.Lastname)},
				{Label: "email", Value: o.Email},
				{Label: "phoneNumber", Value: o.PhoneNumber},
				{Label: "address", Value: o.Address},
				{Label: "status", Value: string(o.Status)},
			}
			for i, p := range o.Products {
				details = append(details, Detail{
					Label: fmt.Sprintf("product %d", i+1),
					Value: fmt.Sprintf("#%d %s x%d @ %s", p.ID, p.Name, p.Quantity, p.Price.String()),
				})
			}
			return append(details,
				Detail{Label: "totalPrice", Value: o.TotalPrice.String()},
				Detail{Label: "created", Value: Ago(o.CreatedAt, now)},
				Detail{Label: "modified", Value: Ago(o.ModifiedAt, now)},
			)
		},
		Fields: []Field[types.OrderDraft]{
			{Name: "firstname", Required: true, Get: func(d types.OrderDraft) string { return d.Firstname },
				Set: text(func(d *types.OrderDraft) *string { return &d.Firstname })},
			{Name: "lastname", Required: true, Get: func(d types.OrderDraft) string { return d.Lastname },
				Set: text(func(d *types.OrderDraft) *string { return &d.Lastname })},
			{Name: "email", Required: true, Get: func(d types.OrderDraft) string { return d.Email },
				Set: text(func(d *types.OrderDraft) *string { return &d.Email })},
			{Name: "phoneNumber", Required: true, Get: func(d types.OrderDraft) string { return d.PhoneNumber },
				Set: text(func(d *types.OrderDraft) *string { return &d.PhoneNumber })},
			{Name: "address", Required: true, Get: func(d types.OrderDraft) string { return d.Address },
				Set: text(func(d *types.OrderDraft) *string { return &d.Address })},
			{
				Name: "status",
				Get:  func(d types.OrderDraft) string { return string(d.Status) },
				Set: func(d types.OrderDraft, s string) (types.OrderDraft, error) {
					status, err := parseStatus(s)
					if err != nil {
						return d, err
					}
					d.Status = status
					return d, nil
				},
			},
		},
		Lines: func(d *types.OrderDraft) *[]types.LineItem { return &d.Lines },
		Changes: func(mode editor.Mode, baseline, draft types.OrderDraft) map[string]any {
			if mode == editor.ModeEdit {
				return asChanges(orderPatch(baseline, draft))
			}
			return asChanges(outgoing(draft))
		},
	}

	eb := editor.Binding[types.Order, types.OrderDraft]{
		Blank: func() types.OrderDraft {
			return types.OrderDraft{Status: types.OrderStatusOnProcess, Lines: []types.LineItem{{Quantity: 1}}}
		},
		FromResource: func(o types.Order) types.OrderDraft {
			lines := make([]types.LineItem, 0, len(o.Products))
			for _, p := range o.Products {
				qty := p.Quantity
				if qty < 1 {
					qty = 1
				}
				lines = append(lines, types.LineItem{ProductID: p.ID, Quantity: qty})
			}
			if len(lines) == 0 {
				lines = append(lines, types.LineItem{Quantity: 1})
			}
			return types.OrderDraft{
				Firstname:   o.Firstname,
				Lastname:    o.Lastname,
				Email:       o.Email,
				PhoneNumber: o.PhoneNumber,
				Address:     o.Address,
				Status:      o.Status,
				Lines:       lines,
			}
		},
		Clone: func(d types.OrderDraft) types.OrderDraft {
			d.Lines = slices.Clone(d.Lines)
			return d
		},
		Validate: func(_ editor.Mode, d types.OrderDraft) error {
			if err := v.Struct(d); err != nil {
				return err
			}
			if d.Status != "" && !d.Status.Valid() {
				return editor.Invalid("status", "status must be %s or %s", types.OrderStatusOnProcess, types.OrderStatusDone)
			}
			return editor.ValidateLines(d.Lines)
		},
		Changed: func(baseline, draft types.OrderDraft) bool {
			return !orderPatch(baseline, draft).IsEmpty()
		},
		Create: func(ctx context.Context, d types.OrderDraft) (*types.Order, error) {
			return gw.Create(ctx, outgoing(d))
		},
		Update: func(ctx context.Context, id int64, baseline, draft types.OrderDraft) (*types.Order, error) {
			return gw.Update(ctx, id, orderPatch(baseline, draft))
		},
	}

	return newBinding(def, gw, eb, opts)
}

// outgoing drops the empty rows of a draft before it is sent.
func outgoing(d types.OrderDraft) types.OrderDraft {
	d.Lines = editor.SelectedLines(d.Lines)
	return d
}

func orderPatch(baseline, draft types.OrderDraft) types.OrderPatch {
	var patch types.OrderPatch
	str := func(before, after string) *string {
		if before == after {
			return nil
		}
		return &after
	}
	patch.Firstname = str(baseline.Firstname, draft.Firstname)
	patch.Lastname = str(baseline.Lastname, draft.Lastname)
	patch.Email = str(baseline.Email, draft.Email)
	patch.PhoneNumber = str(baseline.PhoneNumber, draft.PhoneNumber)
	patch.Address = str(baseline.Address, draft.Address)
	if draft.Status != baseline.Status {
		status := draft.Status
		patch.Status = &status
	}
	before := editor.SelectedLines(baseline.Lines)
	after := editor.SelectedLines(draft.Lines)
	if !slices.Equal(before, after) {
		patch.ProductIDs = make([]int64, len(after))
		for i, l := range after {
			patch.ProductIDs[i] = l.ProductID
		}
		patch.Products = after
	}
	return patch
}

func parseStatus(raw string) (types.OrderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case strings.ToLower(string(types.OrderStatusOnProcess)), "on-process", "processing":
		return types.OrderStatusOnProcess, nil
	case string(types.OrderStatusDone):
		return types.OrderStatusDone, nil
	default:
		return "", editor.Invalid("status", "status must be %s or %s", types.OrderStatusOnProcess, types.OrderStatusDone)
	}
}

func itemCount(o types.Order) int {
	n := 0
	for _, p := range o.Products {
		if p.Quantity > 0 {
			n += p.Quantity
		} else {
			n++
		}
	}
	return n
}
