package editor

import (
	"git.cscs.ch/openchami/backoffice/pkg/types"
)

// Messages shown for order line problems.
const (
	MsgDuplicateProduct = "This product is already added to the order"
	MsgNoProduct        = "Please select at least one product"
)

// Line operations never mutate their input; they return a fresh slice so a
// rejected change leaves the draft untouched.

// AddLine appends an empty line with quantity 1.
func AddLine(lines []types.LineItem) []types.LineItem {
	out := cloneLines(lines)
	return append(out, types.LineItem{Quantity: 1})
}

// SetLineProduct selects productID on line i. Selecting a product already
// chosen on another line is rejected.
func SetLineProduct(lines []types.LineItem, i int, productID int64) ([]types.LineItem, error) {
	if i < 0 || i >= len(lines) {
		return nil, Invalid("products", "line %d does not exist", i+1)
	}
	if productID < 0 {
		return nil, Invalid("products", "product id must be positive")
	}
	if productID != 0 {
		for j, line := range lines {
			if j != i && line.ProductID == productID {
				return nil, Invalid("products", MsgDuplicateProduct)
			}
		}
	}
	out := cloneLines(lines)
	out[i].ProductID = productID
	if out[i].Quantity < 1 {
		out[i].Quantity = 1
	}
	return out, nil
}

// SetLineQuantity sets the quantity of line i from raw input, floored to 1.
func SetLineQuantity(lines []types.LineItem, i int, raw string) ([]types.LineItem, error) {
	if i < 0 || i >= len(lines) {
		return nil, Invalid("products", "line %d does not exist", i+1)
	}
	out := cloneLines(lines)
	out[i].Quantity = CoercePositive(raw)
	return out, nil
}

// RemoveLine drops line i. Removing the only line leaves one empty line.
func RemoveLine(lines []types.LineItem, i int) ([]types.LineItem, error) {
	if i < 0 || i >= len(lines) {
		return nil, Invalid("products", "line %d does not exist", i+1)
	}
	out := make([]types.LineItem, 0, len(lines))
	out = append(out, lines[:i]...)
	out = append(out, lines[i+1:]...)
	if len(out) == 0 {
		out = append(out, types.LineItem{Quantity: 1})
	}
	return out, nil
}

// SelectedLines returns the lines that have a product chosen.
func SelectedLines(lines []types.LineItem) []types.LineItem {
	out := make([]types.LineItem, 0, len(lines))
	for _, line := range lines {
		if line.ProductID != 0 {
			out = append(out, line)
		}
	}
	return out
}

// ValidateLines requires at least one chosen product and no duplicates.
func ValidateLines(lines []types.LineItem) error {
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range SelectedLines(lines) {
		if _, dup := seen[line.ProductID]; dup {
			return Invalid("products", MsgDuplicateProduct)
		}
		seen[line.ProductID] = struct{}{}
	}
	if len(seen) == 0 {
		return Invalid("products", MsgNoProduct)
	}
	return nil
}

// Total is the advisory sum of unit price times quantity over chosen lines,
// rounded to cents. Lines whose product has no known price count as zero.
func Total(lines []types.LineItem, prices map[int64]float64) float64 {
	var sum float64
	for _, line := range SelectedLines(lines) {
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		sum += prices[line.ProductID] * float64(qty)
	}
	return RoundCents(sum)
}

func cloneLines(lines []types.LineItem) []types.LineItem {
	out := make([]types.LineItem, len(lines))
	copy(out, lines)
	return out
}
