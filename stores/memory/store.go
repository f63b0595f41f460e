// Package memory implements the durable store in process memory for
// tests and examples.
package memory

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tarik02-org/mediabot/core"
	"github.com/tarik02-org/mediabot/errors"
)

// Store implements the core.Store interface in memory
type Store struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*core.Request
	results  map[uuid.UUID]*core.Result
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		requests: make(map[uuid.UUID]*core.Request),
		results:  make(map[uuid.UUID]*core.Result),
	}
}

// CreateRequest persists a new request in state PENDING
func (s *Store) CreateRequest(ctx context.Context, query json.RawMessage, extra map[string]any) (*core.Request, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.NewStoreError("create_request", err)
	}

	now := time.Now()
	request := &core.Request{
		ID:        id,
		Query:     json.RawMessage(append([]byte(nil), query...)),
		Status:    core.StatusPending,
		Extra:     maps.Clone(extra),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[id] = request
	return cloneRequest(request), nil
}

// UpdateRequestStatus transitions a request atomically
func (s *Store) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status core.Status, resultID *uuid.UUID) (*core.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, errors.NewStoreError("update_request", errors.ErrNotFound)
	}

	request.Status = status
	request.ResultID = resultID
	request.UpdatedAt = time.Now()

	return cloneRequest(request), nil
}

// GetRequest fetches a request, optionally joining its result
func (s *Store) GetRequest(ctx context.Context, id uuid.UUID, includeResult bool) (*core.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, errors.NewStoreError("get_request", errors.ErrNotFound)
	}

	clone := cloneRequest(request)
	if includeResult && request.ResultID != nil {
		if result, ok := s.results[*request.ResultID]; ok {
			clone.Result = cloneResult(result)
		}
	}

	return clone, nil
}

// CreateResult persists an immutable result payload
func (s *Store) CreateResult(ctx context.Context, payload json.RawMessage) (*core.Result, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.NewStoreError("create_result", err)
	}

	result := &core.Result{
		ID:        id,
		Payload:   json.RawMessage(append([]byte(nil), payload...)),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[id] = result
	return cloneResult(result), nil
}

// GetResult fetches a result by id
func (s *Store) GetResult(ctx context.Context, id uuid.UUID) (*core.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[id]
	if !ok {
		return nil, errors.NewStoreError("get_result", errors.ErrNotFound)
	}

	return cloneResult(result), nil
}

// DeleteResult removes a result row. The broker core never deletes;
// tests use this to simulate a stale cache hint.
func (s *Store) DeleteResult(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, id)
}

func cloneRequest(request *core.Request) *core.Request {
	clone := *request
	if request.ResultID != nil {
		id := *request.ResultID
		clone.ResultID = &id
	}
	clone.Extra = maps.Clone(request.Extra)
	return &clone
}

func cloneResult(result *core.Result) *core.Result {
	clone := *result
	return &clone
}
