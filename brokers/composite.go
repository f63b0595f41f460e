// Package brokers assembles substrate implementations. Most deployments
// use the Redis broker for everything; Composite exists for setups that
// move the queues onto another transport (e.g. RabbitMQ) while keeping
// the result cache and dedupe locks on Redis.
package brokers

import (
	"context"
	"time"

	"github.com/tarik02-org/mediabot/core"
)

// connector is implemented by substrate parts that manage a connection
type connector interface {
	Connect(ctx context.Context) error
	Close() error
	Health() error
}

// Composite combines independent Queue, KV and Locker implementations
// into one core.Substrate.
type Composite struct {
	Queues core.Queue
	Keys   core.KV
	Locks  core.Locker
}

// Push appends a message to the named queue
func (c Composite) Push(ctx context.Context, queue string, payload []byte) error {
	return c.Queues.Push(ctx, queue, payload)
}

// BlockingPop removes one message, blocking for up to timeout
func (c Composite) BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	return c.Queues.BlockingPop(ctx, queue, timeout)
}

// Get returns the value for key, or (nil, nil) when absent
func (c Composite) Get(ctx context.Context, key string) ([]byte, error) {
	return c.Keys.Get(ctx, key)
}

// SetWithExpiry stores value under key for ttl
func (c Composite) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.Keys.SetWithExpiry(ctx, key, value, ttl)
}

// WithLock runs fn while holding every key
func (c Composite) WithLock(ctx context.Context, keys []string, ttl time.Duration, fn func(ctx context.Context) error) error {
	return c.Locks.WithLock(ctx, keys, ttl, fn)
}

// Connect connects each distinct part that manages a connection
func (c Composite) Connect(ctx context.Context) error {
	for _, part := range c.parts() {
		if err := part.Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes each distinct part, returning the first error
func (c Composite) Close() error {
	var first error
	for _, part := range c.parts() {
		if err := part.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Health checks each distinct part
func (c Composite) Health() error {
	for _, part := range c.parts() {
		if err := part.Health(); err != nil {
			return err
		}
	}
	return nil
}

// parts lists the distinct connectors behind the three roles; the same
// value serving several roles (a Redis broker as KV and Locker) is
// connected once.
func (c Composite) parts() []connector {
	var parts []connector
	seen := make(map[connector]bool)

	for _, candidate := range []any{c.Queues, c.Keys, c.Locks} {
		part, ok := candidate.(connector)
		if !ok || part == nil || seen[part] {
			continue
		}
		seen[part] = true
		parts = append(parts, part)
	}

	return parts
}
