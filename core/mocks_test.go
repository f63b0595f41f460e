package core

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tarik02-org/mediabot/errors"
)

// Mock implementations for testing

// mockSubstrate implements Substrate in memory
type mockSubstrate struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	kv     map[string]mockEntry
	locks  map[string]chan struct{}

	pushErr error
	popErr  error
}

type mockEntry struct {
	value     []byte
	expiresAt time.Time
}

func newMockSubstrate() *mockSubstrate {
	return &mockSubstrate{
		queues: make(map[string]chan []byte),
		kv:     make(map[string]mockEntry),
		locks:  make(map[string]chan struct{}),
	}
}

func (m *mockSubstrate) queue(name string) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.queues[name]
	if !ok {
		ch = make(chan []byte, 128)
		m.queues[name] = ch
	}
	return ch
}

func (m *mockSubstrate) Push(ctx context.Context, queue string, payload []byte) error {
	m.mu.Lock()
	err := m.pushErr
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.queue(queue) <- payload
	return nil
}

func (m *mockSubstrate) BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	err := m.popErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

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

func (m *mockSubstrate) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.kv[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return entry.value, nil
}

func (m *mockSubstrate) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.kv[key] = mockEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *mockSubstrate) WithLock(ctx context.Context, keys []string, ttl time.Duration, fn func(ctx context.Context) error) error {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)

	acquired := make([]chan struct{}, 0, len(sorted))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i]
		}
	}

	for _, key := range sorted {
		m.mu.Lock()
		sem, ok := m.locks[key]
		if !ok {
			sem = make(chan struct{}, 1)
			m.locks[key] = sem
		}
		m.mu.Unlock()

		timer := time.NewTimer(ttl)
		select {
		case sem <- struct{}{}:
			timer.Stop()
			acquired = append(acquired, sem)
		case <-timer.C:
			release()
			return errors.NewBrokerError("lock", key, errors.ErrTimeout)
		}
	}

	defer release()
	return fn(ctx)
}

func (m *mockSubstrate) Connect(ctx context.Context) error { return nil }
func (m *mockSubstrate) Close() error                      { return nil }
func (m *mockSubstrate) Health() error                     { return nil }

// queueLen reports how many messages are waiting on queue
func (m *mockSubstrate) queueLen(queue string) int {
	return len(m.queue(queue))
}

// mockStore implements Store in memory and records every status
// transition per request for monotonicity assertions
type mockStore struct {
	mu          sync.Mutex
	requests    map[uuid.UUID]*Request
	results     map[uuid.UUID]*Result
	transitions map[uuid.UUID][]Status

	updateErr error
	createErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		requests:    make(map[uuid.UUID]*Request),
		results:     make(map[uuid.UUID]*Result),
		transitions: make(map[uuid.UUID][]Status),
	}
}

func (s *mockStore) CreateRequest(ctx context.Context, query json.RawMessage, extra map[string]any) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return nil, s.createErr
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.NewStoreError("create_request", err)
	}

	now := time.Now()
	request := &Request{
		ID:        id,
		Query:     slices.Clone(query),
		Status:    StatusPending,
		Extra:     maps.Clone(extra),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.requests[id] = request
	s.transitions[id] = append(s.transitions[id], StatusPending)
	return cloneRequestForTest(request), nil
}

func (s *mockStore) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status Status, resultID *uuid.UUID) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return nil, s.updateErr
	}

	request, ok := s.requests[id]
	if !ok {
		return nil, errors.NewStoreError("update_request", errors.ErrNotFound)
	}

	request.Status = status
	request.ResultID = resultID
	request.UpdatedAt = time.Now()
	s.transitions[id] = append(s.transitions[id], status)
	return cloneRequestForTest(request), nil
}

func (s *mockStore) GetRequest(ctx context.Context, id uuid.UUID, includeResult bool) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, errors.NewStoreError("get_request", errors.ErrNotFound)
	}

	clone := cloneRequestForTest(request)
	if includeResult && request.ResultID != nil {
		if result, ok := s.results[*request.ResultID]; ok {
			copied := *result
			clone.Result = &copied
		}
	}
	return clone, nil
}

func (s *mockStore) CreateResult(ctx context.Context, payload json.RawMessage) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.NewStoreError("create_result", err)
	}

	result := &Result{
		ID:        id,
		Payload:   slices.Clone(payload),
		CreatedAt: time.Now(),
	}
	s.results[id] = result
	copied := *result
	return &copied, nil
}

func (s *mockStore) GetResult(ctx context.Context, id uuid.UUID) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[id]
	if !ok {
		return nil, errors.NewStoreError("get_result", errors.ErrNotFound)
	}

	copied := *result
	return &copied, nil
}

// deleteResult simulates an expired/cleaned-up result row
func (s *mockStore) deleteResult(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, id)
}

// statusOf returns the current status of a request
func (s *mockStore) statusOf(id uuid.UUID) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok {
		return ""
	}
	return request.Status
}

// transitionsOf returns the recorded status history of a request
func (s *mockStore) transitionsOf(id uuid.UUID) []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.transitions[id])
}

func cloneRequestForTest(request *Request) *Request {
	clone := *request
	if request.ResultID != nil {
		id := *request.ResultID
		clone.ResultID = &id
	}
	clone.Extra = maps.Clone(request.Extra)
	return &clone
}
