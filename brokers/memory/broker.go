// Package memory implements the queue substrate in process memory. It
// backs tests and the basic example; nothing about it survives a restart.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tarik02-org/mediabot/errors"
)

// Options for the memory substrate
type Options struct {
	// QueueSize is the buffered capacity of each queue
	QueueSize int
}

// DefaultOptions returns default memory options
func DefaultOptions() Options {
	return Options{QueueSize: 1024}
}

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBroker implements the core.Substrate interface in memory
type MemoryBroker struct {
	mu        sync.Mutex
	queues    map[string]chan []byte
	kv        map[string]kvEntry
	locks     map[string]chan struct{}
	queueSize int
	connected bool
}

// NewBroker creates a new in-memory substrate
func NewBroker(options Options) *MemoryBroker {
	size := options.QueueSize
	if size < 1 {
		size = DefaultOptions().QueueSize
	}

	return &MemoryBroker{
		queues:    make(map[string]chan []byte),
		kv:        make(map[string]kvEntry),
		locks:     make(map[string]chan struct{}),
		queueSize: size,
	}
}

// Connect establishes connection (no-op for memory)
func (m *MemoryBroker) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = true
	return nil
}

// Close discards all queues and keys
func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queues = make(map[string]chan []byte)
	m.kv = make(map[string]kvEntry)
	m.locks = make(map[string]chan struct{})
	m.connected = false
	return nil
}

// Health checks the broker health
func (m *MemoryBroker) Health() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return errors.ErrNotConnected
	}
	return nil
}

// Type returns the broker type
func (m *MemoryBroker) Type() string {
	return "memory"
}

func (m *MemoryBroker) queue(name string) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.queues[name]
	if !ok {
		// Queues are created on demand
		ch = make(chan []byte, m.queueSize)
		m.queues[name] = ch
	}
	return ch
}

// Push appends a message to the named queue
func (m *MemoryBroker) Push(ctx context.Context, queue string, payload []byte) error {
	select {
	case m.queue(queue) <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.NewBrokerError("push", queue, errors.ErrTimeout)
	}
}

// BlockingPop removes one message, blocking for up to timeout. Returns
// (nil, nil) when the queue stayed empty.
func (m *MemoryBroker) BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-m.queue(queue):
		return payload, nil
	case <-ctx.Done():
		return nil, nil
	case <-timer.C:
		return nil, nil
	}
}

// Get returns the value for key, or (nil, nil) when absent or expired
func (m *MemoryBroker) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.kv[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.kv, key)
		return nil, nil
	}

	return entry.value, nil
}

// SetWithExpiry stores value under key for ttl
func (m *MemoryBroker) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.kv[key] = kvEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryBroker) lock(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	sem, ok := m.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[key] = sem
	}
	return sem
}

// WithLock acquires every key in sorted order, runs fn and releases on
// exit. Acquisition gives up after ttl per key.
func (m *MemoryBroker) WithLock(ctx context.Context, keys []string, ttl time.Duration, fn func(ctx context.Context) error) error {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)

	acquired := make([]chan struct{}, 0, len(sorted))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i]
		}
	}

	for _, key := range sorted {
		sem := m.lock(key)

		timer := time.NewTimer(ttl)
		select {
		case sem <- struct{}{}:
			timer.Stop()
			acquired = append(acquired, sem)
		case <-ctx.Done():
			timer.Stop()
			release()
			return errors.NewBrokerError("lock", key, ctx.Err())
		case <-timer.C:
			release()
			return errors.NewBrokerError("lock", key, errors.ErrTimeout)
		}
	}

	defer release()
	return fn(ctx)
}
