package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Queue interface defines the named-list half of the queue substrate
type Queue interface {
	// Push appends a message to the named queue
	Push(ctx context.Context, queue string, payload []byte) error

	// BlockingPop removes and returns one message, blocking for up to
	// timeout. Returns (nil, nil) when the queue stayed empty.
	BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)

	// Connection management
	Connect(ctx context.Context) error
	Close() error
	Health() error
}

// KV interface defines the expiring key-value half of the queue substrate
type KV interface {
	// Get returns the value for key, or (nil, nil) when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithExpiry stores value under key for ttl
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Locker interface defines the distributed mutual-exclusion half of the
// queue substrate. Locks are what guarantee at most one concurrent
// computation per canonical key across the whole deployment.
type Locker interface {
	// WithLock runs fn while holding every key, releasing on exit.
	// Errors from fn propagate after the locks are released.
	WithLock(ctx context.Context, keys []string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Substrate combines the three substrate capabilities. Implementations
// that cannot provide all of them (e.g. an AMQP transport) expose the
// part they have and are assembled with brokers.Composite.
type Substrate interface {
	Queue
	KV
	Locker
}

// Store interface defines what core needs from the durable store.
// All operations must be atomic at row granularity; in particular a
// request's (status, resultId) pair must never be observable half-written.
type Store interface {
	// CreateRequest persists a new request in state PENDING
	CreateRequest(ctx context.Context, query json.RawMessage, extra map[string]any) (*Request, error)

	// UpdateRequestStatus transitions a request, replacing resultID
	// (nil clears it), and returns the updated row
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, status Status, resultID *uuid.UUID) (*Request, error)

	// GetRequest fetches a request, optionally with its result joined
	GetRequest(ctx context.Context, id uuid.UUID, includeResult bool) (*Request, error)

	// CreateResult persists an immutable result payload
	CreateResult(ctx context.Context, payload json.RawMessage) (*Result, error)

	// GetResult fetches a result by id
	GetResult(ctx context.Context, id uuid.UUID) (*Result, error)
}

// Deps bundles the collaborators shared by submission, worker loops and
// callback consumers. An explicit value is passed around instead of any
// package-level singleton.
type Deps struct {
	Store     Store
	Substrate Substrate
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
