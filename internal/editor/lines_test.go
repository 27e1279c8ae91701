package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.cscs.ch/openchami/backoffice/pkg/types"
)

func TestLineOperations(t *testing.T) {
	t.Parallel()

	lines := []types.LineItem{{Quantity: 1}}
	lines, err := SetLineProduct(lines, 0, 1)
	require.NoError(t, err)
	lines = AddLine(lines)
	require.Len(t, lines, 2)
	assert.Equal(t, types.LineItem{Quantity: 1}, lines[1])

	original := append([]types.LineItem(nil), lines...)
	_, err = SetLineProduct(lines, 1, 1)
	require.Error(t, err)
	assert.True(t, IsLocalValidation(err))
	assert.Equal(t, original, lines)

	lines, err = SetLineProduct(lines, 1, 2)
	require.NoError(t, err)
	lines, err = SetLineQuantity(lines, 1, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, lines[1].Quantity)
	lines, err = SetLineQuantity(lines, 0, "3")
	require.NoError(t, err)
	assert.Equal(t, 3, lines[0].Quantity)

	_, err = SetLineQuantity(lines, 5, "1")
	require.Error(t, err)

	lines, err = RemoveLine(lines, 0)
	require.NoError(t, err)
	assert.Equal(t, []types.LineItem{{ProductID: 2, Quantity: 1}}, lines)
	lines, err = RemoveLine(lines, 0)
	require.NoError(t, err)
	assert.Equal(t, []types.LineItem{{Quantity: 1}}, lines)
}

func TestValidateLines(t *testing.T) {
	t.Parallel()

	err := ValidateLines([]types.LineItem{{Quantity: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgNoProduct)

	err = ValidateLines([]types.LineItem{{ProductID: 3, Quantity: 1}, {ProductID: 3, Quantity: 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgDuplicateProduct)

	require.NoError(t, ValidateLines([]types.LineItem{{ProductID: 3, Quantity: 1}, {Quantity: 1}}))
}

func TestTotal(t *testing.T) {
	t.Parallel()

	lines := []types.LineItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}, {Quantity: 4}}
	assert.InDelta(t, 24.98, Total(lines, map[int64]float64{1: 9.99, 2: 5.00}), 1e-9)
	assert.InDelta(t, 19.98, Total(lines, map[int64]float64{1: 9.99}), 1e-9)
	assert.Zero(t, Total(nil, nil))
}

func TestCoercion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, CoercePositive(""))
	assert.Equal(t, 1, CoercePositive("NaN"))
	assert.Equal(t, 1, CoercePositive("-4"))
	assert.Equal(t, 1, CoercePositive("0"))
	assert.Equal(t, 7, CoercePositive(" 7 "))
	assert.Equal(t, 2, CoercePositive("2.9"))

	assert.InDelta(t, 1.0, CoercePrice("abc"), 1e-9)
	assert.InDelta(t, 1.0, CoercePrice("0.5"), 1e-9)
	assert.InDelta(t, 12.35, CoercePrice("12.345"), 1e-9)
}

func TestValidator(t *testing.T) {
	t.Parallel()

	v := NewValidator()
	require.NoError(t, v.Struct(types.ProductDraft{Name: "Lamp", Description: "LED", Price: 2}))

	err := v.Struct(types.ProductDraft{Name: "Lamp", Price: 2})
	var lve *LocalValidationError
	require.ErrorAs(t, err, &lve)
	assert.Equal(t, "description", lve.Field)
	assert.Equal(t, "description is required", lve.UserMessage())

	err = v.Struct(types.ProductDraft{Name: "Lamp", Description: "LED", Price: 0.5})
	require.ErrorAs(t, err, &lve)
	assert.Equal(t, "price must be at least 1", lve.Message)

	err = v.Struct(types.UserDraft{Firstname: "A", Lastname: "B", Email: "not-an-email"})
	require.ErrorAs(t, err, &lve)
	assert.Equal(t, "email must be a valid email address", lve.Message)
}
