package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarik02-org/mediabot/errors"
)

type payload struct {
	URL   string `json:"url" validate:"required,url"`
	Limit int    `json:"limit" validate:"omitempty,min=1"`
}

func TestStruct_ParseValidates(t *testing.T) {
	s := Struct[payload]()

	value, err := s.Parse(json.RawMessage(`{"url":"https://example.com","limit":3}`))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", value.URL)
	assert.Equal(t, 3, value.Limit)

	_, err = s.Parse(json.RawMessage(`{"limit":3}`))
	assert.True(t, errors.IsInvalidPayload(err), "missing required field")

	_, err = s.Parse(json.RawMessage(`{"url":"not a url"}`))
	assert.True(t, errors.IsInvalidPayload(err), "url tag violation")

	_, err = s.Parse(json.RawMessage(`{`))
	assert.True(t, errors.IsInvalidPayload(err), "malformed JSON")
}

func TestStruct_MarshalValidates(t *testing.T) {
	s := Struct[payload]()

	raw, err := s.Marshal(payload{URL: "https://example.com"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com","limit":0}`, string(raw))

	_, err = s.Marshal(payload{})
	assert.True(t, errors.IsInvalidPayload(err))
}

func TestJSON_NoValidation(t *testing.T) {
	s := JSON[map[string]int]()

	value, err := s.Parse(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, value["a"])

	_, err = s.Parse(json.RawMessage(`[1,2]`))
	assert.True(t, errors.IsInvalidPayload(err), "shape mismatch")

	raw, err := s.Marshal(map[string]int{"b": 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(raw))
}

func TestAny_Passthrough(t *testing.T) {
	s := Any()

	raw, err := s.Parse(json.RawMessage(`{"anything":["goes",1]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"anything":["goes",1]}`, string(raw))

	_, err = s.Parse(json.RawMessage(`{broken`))
	assert.True(t, errors.IsInvalidPayload(err))

	_, err = s.Marshal(json.RawMessage(`not json`))
	assert.True(t, errors.IsInvalidPayload(err))
}
