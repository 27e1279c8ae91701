package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var out struct {
		Number  Amount `json:"number"`
		Text    Amount `json:"text"`
		Garbage Amount `json:"garbage"`
		Null    Amount `json:"null"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"number":9.99,"text":" 24.98 ","garbage":"n/a","null":null}`), &out))

	assert.InDelta(t, 9.99, float64(out.Number), 1e-9)
	assert.InDelta(t, 24.98, float64(out.Text), 1e-9)
	assert.Zero(t, out.Garbage)
	assert.Zero(t, out.Null)
	assert.Equal(t, "24.98", out.Text.String())
}

func TestMessages(t *testing.T) {
	t.Parallel()

	var single ErrorBody
	require.NoError(t, json.Unmarshal([]byte(`{"message":"Product not found"}`), &single))
	assert.Equal(t, "Product not found", single.Message.Text())

	var list ErrorBody
	require.NoError(t, json.Unmarshal([]byte(`{"message":["name should not be empty"," ","price must be a number"]}`), &list))
	assert.Equal(t, "name should not be empty; price must be a number", list.Message.Text())

	encoded, err := json.Marshal(ErrorBody{Message: Messages{"only"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"only"}`, string(encoded))
}

func TestLoginResponse_TokenAliases(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{
		`{"token":"abc"}`,
		`{"accessToken":"abc"}`,
		`{"access_token":"abc","user":{"id":1,"email":"a@b.c"}}`,
	} {
		var resp LoginResponse
		require.NoError(t, json.Unmarshal([]byte(payload), &resp), payload)
		assert.Equal(t, "abc", resp.Token, payload)
	}
}

func TestPatchIsEmpty(t *testing.T) {
	t.Parallel()

	name := "x"
	status := OrderStatusDone
	assert.True(t, ProductPatch{}.IsEmpty())
	assert.False(t, ProductPatch{Name: &name}.IsEmpty())
	assert.True(t, UserPatch{}.IsEmpty())
	assert.True(t, OrderPatch{}.IsEmpty())
	assert.False(t, OrderPatch{Status: &status}.IsEmpty())
	assert.False(t, OrderPatch{Products: []LineItem{}}.IsEmpty())
	assert.False(t, OrderPatch{ProductIDs: []int64{1}}.IsEmpty())
}

func TestProductDraft_Multipart(t *testing.T) {
	t.Parallel()

	draft := ProductDraft{Name: "Lamp", Description: "LED", Price: 12.5}
	assert.Equal(t, map[string]string{"name": "Lamp", "description": "LED", "price": "12.5"}, draft.MultipartFields())
	field, file := draft.MultipartFile()
	assert.Equal(t, "image", field)
	assert.Nil(t, file)
}
