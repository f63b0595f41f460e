package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarik02-org/mediabot/errors"
)

func newTestEngine(t *testing.T) (*Engine, *testSetup) {
	t.Helper()

	setup := newTestSetup()
	engine := NewEngine(setup.substrate, setup.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithShutdownTimeout(5*time.Second),
	)
	return engine, setup
}

func TestEngine_RejectsDuplicateProcessor(t *testing.T) {
	engine, _ := newTestEngine(t)
	processor := newTestProcessor(t)

	compute := func(ctx context.Context, q testQuery) (testResult, error) {
		return testResult{}, nil
	}

	require.NoError(t, RegisterRunner(engine, processor, compute))

	err := RegisterRunner(engine, processor, compute)
	assert.ErrorIs(t, err, errors.ErrDuplicateName)
}

func TestEngine_RejectsDuplicateCallback(t *testing.T) {
	engine, _ := newTestEngine(t)
	processor := newTestProcessor(t)
	callback := newTestCallback(t, processor)

	handle := func(ctx context.Context, outcome Outcome[testContext]) {}

	require.NoError(t, RegisterConsumer(engine, callback, 1, handle))

	err := RegisterConsumer(engine, callback, 1, handle)
	assert.ErrorIs(t, err, errors.ErrDuplicateName)
}

func TestEngine_RegistryListsRegistrations(t *testing.T) {
	engine, _ := newTestEngine(t)
	processor := newTestProcessor(t)
	callback := newTestCallback(t, processor)

	require.NoError(t, RegisterRunner(engine, processor,
		func(ctx context.Context, q testQuery) (testResult, error) {
			return testResult{}, nil
		}))
	require.NoError(t, RegisterConsumer(engine, callback, 1,
		func(ctx context.Context, outcome Outcome[testContext]) {}))

	assert.Equal(t, []string{processor.Name()}, engine.Registry().Processors())
	assert.Equal(t, []string{callback.Name()}, engine.Registry().Callbacks())
}

func TestEngine_ProcessesEndToEnd(t *testing.T) {
	engine, setup := newTestEngine(t)
	processor := newTestProcessor(t)
	callback := newTestCallback(t, processor)

	require.NoError(t, RegisterRunner(engine, processor,
		func(ctx context.Context, q testQuery) (testResult, error) {
			return testResult{V: 11}, nil
		},
		WithPollTimeout(20*time.Millisecond),
	))

	outcomes := make(chan Outcome[testContext], 1)
	require.NoError(t, RegisterConsumer(engine, callback, 1,
		func(ctx context.Context, outcome Outcome[testContext]) {
			outcomes <- outcome
		},
		WithConsumerPollTimeout(20*time.Millisecond),
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, engine.Start(ctx))

	request, err := Submit(ctx, engine.Deps(), processor, testQuery{Key: "x"},
		WithCallback(Bind(callback, testContext{Chat: 5})))
	require.NoError(t, err)

	select {
	case outcome := <-outcomes:
		require.NoError(t, outcome.Err)
		result, ok := outcome.Result.(testResult)
		require.True(t, ok)
		assert.Equal(t, 11, result.V)
		assert.Equal(t, int64(5), outcome.Context.Chat)
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome delivered")
	}

	assert.Equal(t, StatusSuccess, setup.store.statusOf(request.ID))
	require.NoError(t, engine.Stop())
}

func TestEngine_Health(t *testing.T) {
	engine, _ := newTestEngine(t)
	assert.NoError(t, engine.Health())
}
