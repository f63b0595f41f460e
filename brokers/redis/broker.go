// Package redis implements the full queue substrate on Redis: lists for
// queues, SETEX for the result cache and NX locks for dedupe.
package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"

	"github.com/tarik02-org/mediabot/errors"
	redisUtils "github.com/tarik02-org/mediabot/internal/redis"
)

// releaseScript deletes a lock key only if it still holds our token, so
// a lock that expired and was re-acquired elsewhere is never released by
// the old holder.
var releaseScript = redis.NewScript(1, `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisBroker implements the core.Substrate interface on Redis
type RedisBroker struct {
	pool      *redis.Pool
	namespace string
	options   Options
}

// NewBroker creates a new Redis substrate
func NewBroker(options Options) *RedisBroker {
	return &RedisBroker{
		namespace: options.Namespace,
		options:   options,
	}
}

// Connect establishes connection to Redis
func (r *RedisBroker) Connect(ctx context.Context) error {
	pool, err := redisUtils.CreatePool(r.options)
	if err != nil {
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("failed to create Redis pool: %w", err))
	}

	r.pool = pool

	// Test connection
	conn := r.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("ping failed: %w", err))
	}

	return nil
}

// Close closes the Redis connection pool
func (r *RedisBroker) Close() error {
	if r.pool != nil {
		return r.pool.Close()
	}
	return nil
}

// Health checks the Redis connection health
func (r *RedisBroker) Health() error {
	if r.pool == nil {
		return errors.ErrNotConnected
	}

	conn := r.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("health check failed: %w", err))
	}

	return nil
}

// Type returns the broker type
func (r *RedisBroker) Type() string {
	return "redis"
}

// Push appends a message to the named queue
func (r *RedisBroker) Push(ctx context.Context, queue string, payload []byte) error {
	if r.pool == nil {
		return errors.ErrNotConnected
	}

	conn := r.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("LPUSH", r.key(queue), payload); err != nil {
		return errors.NewBrokerError("push", queue, err)
	}

	return nil
}

// BlockingPop removes one message from the named queue, blocking for up
// to timeout. Returns (nil, nil) when the queue stayed empty.
func (r *RedisBroker) BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	if r.pool == nil {
		return nil, errors.ErrNotConnected
	}

	conn := r.pool.Get()
	defer conn.Close()

	// BRPOP takes whole seconds; zero would block forever.
	seconds := int(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	reply, err := conn.Do("BRPOP", r.key(queue), seconds)
	if err != nil {
		return nil, errors.NewBrokerError("pop", queue, err)
	}
	if reply == nil {
		return nil, nil // timed out, queue empty
	}

	values, err := redis.ByteSlices(reply, nil)
	if err != nil || len(values) != 2 {
		return nil, errors.NewBrokerError("pop", queue,
			fmt.Errorf("unexpected BRPOP reply: %v", err))
	}

	return values[1], nil
}

// Get returns the value stored under key, or (nil, nil) when absent
func (r *RedisBroker) Get(ctx context.Context, key string) ([]byte, error) {
	if r.pool == nil {
		return nil, errors.ErrNotConnected
	}

	conn := r.pool.Get()
	defer conn.Close()

	value, err := redis.Bytes(conn.Do("GET", r.key(key)))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewBrokerError("get", key, err)
	}

	return value, nil
}

// SetWithExpiry stores value under key for ttl
func (r *RedisBroker) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.pool == nil {
		return errors.ErrNotConnected
	}

	conn := r.pool.Get()
	defer conn.Close()

	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	if _, err := conn.Do("SETEX", r.key(key), seconds, value); err != nil {
		return errors.NewBrokerError("setex", key, err)
	}

	return nil
}

// WithLock acquires every key (sorted, to keep multi-key acquisition
// deadlock-free), runs fn, and releases on exit. Each lock carries a ttl
// so a crashed holder cannot wedge the key forever; acquisition itself
// also gives up after ttl.
func (r *RedisBroker) WithLock(ctx context.Context, keys []string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if r.pool == nil {
		return errors.ErrNotConnected
	}

	sorted := slices.Clone(keys)
	slices.Sort(sorted)

	token := uuid.NewString()
	acquired := make([]string, 0, len(sorted))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			r.release(acquired[i], token)
		}
	}()

	deadline := time.Now().Add(ttl)
	for _, key := range sorted {
		if err := r.acquire(ctx, key, token, ttl, deadline); err != nil {
			return err
		}
		acquired = append(acquired, key)
	}

	return fn(ctx)
}

func (r *RedisBroker) acquire(ctx context.Context, key, token string, ttl time.Duration, deadline time.Time) error {
	for {
		conn := r.pool.Get()
		reply, err := redis.String(conn.Do("SET", r.key(key), token, "NX", "PX", ttl.Milliseconds()))
		conn.Close()

		if err == nil && reply == "OK" {
			return nil
		}
		if err != nil && err != redis.ErrNil {
			return errors.NewBrokerError("lock", key, err)
		}

		if time.Now().After(deadline) {
			return errors.NewBrokerError("lock", key,
				fmt.Errorf("acquire: %w", errors.ErrTimeout))
		}

		select {
		case <-ctx.Done():
			return errors.NewBrokerError("lock", key, ctx.Err())
		case <-time.After(r.options.LockRetryInterval):
		}
	}
}

func (r *RedisBroker) release(key, token string) {
	conn := r.pool.Get()
	defer conn.Close()

	// Best effort: an expired lock is already gone.
	releaseScript.Do(conn, r.key(key), token)
}

func (r *RedisBroker) key(name string) string {
	return r.namespace + name
}
