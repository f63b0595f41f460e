package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarik02-org/mediabot/core"
	"github.com/tarik02-org/mediabot/errors"
)

func TestCreateRequest(t *testing.T) {
	store := NewStore()

	request, err := store.CreateRequest(context.Background(), json.RawMessage(`{"url":"x"}`), map[string]any{"source": "chat"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, request.ID)
	assert.Equal(t, core.StatusPending, request.Status)
	assert.Nil(t, request.ResultID)
	assert.JSONEq(t, `{"url":"x"}`, string(request.Query))
	assert.Equal(t, "chat", request.Extra["source"])
	assert.False(t, request.CreatedAt.IsZero())
}

func TestCreateRequest_IDsAreOrdered(t *testing.T) {
	store := NewStore()

	a, err := store.CreateRequest(context.Background(), json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	b, err := store.CreateRequest(context.Background(), json.RawMessage(`{}`), nil)
	require.NoError(t, err)

	// v7 ids sort by creation time.
	assert.Less(t, a.ID.String(), b.ID.String())
}

func TestUpdateRequestStatus(t *testing.T) {
	store := NewStore()

	request, err := store.CreateRequest(context.Background(), json.RawMessage(`{}`), nil)
	require.NoError(t, err)

	result, err := store.CreateResult(context.Background(), json.RawMessage(`{"v":1}`))
	require.NoError(t, err)

	updated, err := store.UpdateRequestStatus(context.Background(), request.ID, core.StatusSuccess, &result.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, updated.Status)
	require.NotNil(t, updated.ResultID)
	assert.Equal(t, result.ID, *updated.ResultID)

	// Transitioning away from SUCCESS clears the result pointer.
	updated, err = store.UpdateRequestStatus(context.Background(), request.ID, core.StatusPending, nil)
	require.NoError(t, err)
	assert.Nil(t, updated.ResultID)
}

func TestUpdateRequestStatus_NotFound(t *testing.T) {
	store := NewStore()

	id, err := uuid.NewV7()
	require.NoError(t, err)

	_, err = store.UpdateRequestStatus(context.Background(), id, core.StatusProcessing, nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetRequest_JoinsResult(t *testing.T) {
	store := NewStore()

	request, err := store.CreateRequest(context.Background(), json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	result, err := store.CreateResult(context.Background(), json.RawMessage(`{"v":2}`))
	require.NoError(t, err)
	_, err = store.UpdateRequestStatus(context.Background(), request.ID, core.StatusSuccess, &result.ID)
	require.NoError(t, err)

	plain, err := store.GetRequest(context.Background(), request.ID, false)
	require.NoError(t, err)
	assert.Nil(t, plain.Result)

	joined, err := store.GetRequest(context.Background(), request.ID, true)
	require.NoError(t, err)
	require.NotNil(t, joined.Result)
	assert.JSONEq(t, `{"v":2}`, string(joined.Result.Payload))
}

func TestGetResult_NotFound(t *testing.T) {
	store := NewStore()

	id, err := uuid.NewV7()
	require.NoError(t, err)

	_, err = store.GetResult(context.Background(), id)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteResult(t *testing.T) {
	store := NewStore()

	result, err := store.CreateResult(context.Background(), json.RawMessage(`{"v":3}`))
	require.NoError(t, err)

	store.DeleteResult(result.ID)

	_, err = store.GetResult(context.Background(), result.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestClonesAreIsolated(t *testing.T) {
	store := NewStore()

	request, err := store.CreateRequest(context.Background(), json.RawMessage(`{}`), map[string]any{"k": "v"})
	require.NoError(t, err)

	// Mutating the returned copy must not affect the stored row.
	request.Extra["k"] = "mutated"
	request.Status = core.StatusFailed

	stored, err := store.GetRequest(context.Background(), request.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "v", stored.Extra["k"])
	assert.Equal(t, core.StatusPending, stored.Status)
}
