package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tarik02-org/mediabot/schema"
)

type testQuery struct {
	Key string `json:"key" validate:"required"`
}

type testResult struct {
	V int `json:"v"`
}

type testContext struct {
	Chat int64 `json:"chat" validate:"required"`
}

// testSetup provides common test dependencies
type testSetup struct {
	substrate *mockSubstrate
	store     *mockStore
	deps      Deps
}

func newTestSetup() *testSetup {
	substrate := newMockSubstrate()
	store := newMockStore()

	return &testSetup{
		substrate: substrate,
		store:     store,
		deps: Deps{
			Store:     store,
			Substrate: substrate,
			Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	}
}

func newTestProcessor(t *testing.T) *Processor[testQuery, testResult] {
	t.Helper()

	processor, err := NewProcessor(
		"test",
		schema.Struct[testQuery](),
		schema.Struct[testResult](),
		func(q testQuery) string { return q.Key },
	)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return processor
}

func newTestCallback(t *testing.T, processors ...ProcessorRef) *Callback[testContext] {
	t.Helper()

	callback, err := NewCallback("test-cb", schema.Struct[testContext](), processors...)
	if err != nil {
		t.Fatalf("NewCallback: %v", err)
	}
	return callback
}

// startRunner launches runner.Run and returns a stop function that
// cancels it and waits for the drain
func startRunner(t *testing.T, runner interface {
	Run(ctx context.Context) error
}) (stop func() error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx)
	}()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("runner did not stop in time")
			return nil
		}
	}
}

// waitForStatus polls the store until the request reaches want
func waitForStatus(t *testing.T, store *mockStore, id uuid.UUID, want Status) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if store.statusOf(id) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("request %s never reached %s (last was %s)", id, want, store.statusOf(id))
}

// waitForTerminal polls the store until the request reaches any end state
func waitForTerminal(t *testing.T, store *mockStore, id uuid.UUID) Status {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if status := store.statusOf(id); status.Terminal() {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("request %s never reached a terminal state (last was %s)", id, store.statusOf(id))
	return ""
}
