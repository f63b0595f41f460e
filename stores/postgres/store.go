// Package postgres implements the durable store on PostgreSQL via pgx.
//
// Expected schema:
//
//	CREATE TABLE requests (
//	    id         UUID PRIMARY KEY,
//	    query      JSONB NOT NULL,
//	    status     TEXT NOT NULL,
//	    result_id  UUID REFERENCES request_results (id),
//	    extra      JSONB,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE request_results (
//	    id         UUID PRIMARY KEY,
//	    payload    JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//
// Row lifecycle and retention are owned by the operator, not this package.
package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tarik02-org/mediabot/core"
	"github.com/tarik02-org/mediabot/errors"
)

// Store implements the core.Store interface on a pgx connection pool
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateRequest persists a new request in state PENDING
func (s *Store) CreateRequest(ctx context.Context, query json.RawMessage, extra map[string]any) (*core.Request, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.NewStoreError("create_request", err)
	}

	var rawExtra []byte
	if extra != nil {
		rawExtra, err = json.Marshal(extra)
		if err != nil {
			return nil, errors.NewStoreError("create_request", err)
		}
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO requests (id, query, status, extra, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		id, []byte(query), core.StatusPending, rawExtra, now)
	if err != nil {
		return nil, errors.NewStoreError("create_request", err)
	}

	return &core.Request{
		ID:        id,
		Query:     query,
		Status:    core.StatusPending,
		Extra:     extra,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateRequestStatus transitions a request in a single statement so the
// (status, result_id) pair is never observable half-written
func (s *Store) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status core.Status, resultID *uuid.UUID) (*core.Request, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE requests
		SET status = $2, result_id = $3, updated_at = $4
		WHERE id = $1
		RETURNING id, query, status, result_id, extra, created_at, updated_at`,
		id, status, resultID, time.Now().UTC())

	request, err := scanRequest(row)
	if err != nil {
		return nil, translate("update_request", err)
	}
	return request, nil
}

// GetRequest fetches a request, optionally joining its result
func (s *Store) GetRequest(ctx context.Context, id uuid.UUID, includeResult bool) (*core.Request, error) {
	if !includeResult {
		row := s.pool.QueryRow(ctx, `
			SELECT id, query, status, result_id, extra, created_at, updated_at
			FROM requests WHERE id = $1`, id)

		request, err := scanRequest(row)
		if err != nil {
			return nil, translate("get_request", err)
		}
		return request, nil
	}

	row := s.pool.QueryRow(ctx, `
		SELECT r.id, r.query, r.status, r.result_id, r.extra, r.created_at, r.updated_at,
		       res.id, res.payload, res.created_at
		FROM requests r
		LEFT JOIN request_results res ON res.id = r.result_id
		WHERE r.id = $1`, id)

	var (
		request         core.Request
		rawExtra        []byte
		resultID        *uuid.UUID
		resultPayload   []byte
		resultCreatedAt *time.Time
	)
	err := row.Scan(
		&request.ID, &request.Query, &request.Status, &request.ResultID,
		&rawExtra, &request.CreatedAt, &request.UpdatedAt,
		&resultID, &resultPayload, &resultCreatedAt)
	if err != nil {
		return nil, translate("get_request", err)
	}

	if err := decodeExtra(rawExtra, &request); err != nil {
		return nil, errors.NewStoreError("get_request", err)
	}

	if resultID != nil {
		request.Result = &core.Result{
			ID:        *resultID,
			Payload:   resultPayload,
			CreatedAt: *resultCreatedAt,
		}
	}

	return &request, nil
}

// CreateResult persists an immutable result payload
func (s *Store) CreateResult(ctx context.Context, payload json.RawMessage) (*core.Result, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.NewStoreError("create_result", err)
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO request_results (id, payload, created_at)
		VALUES ($1, $2, $3)`,
		id, []byte(payload), now)
	if err != nil {
		return nil, errors.NewStoreError("create_result", err)
	}

	return &core.Result{ID: id, Payload: payload, CreatedAt: now}, nil
}

// GetResult fetches a result by id
func (s *Store) GetResult(ctx context.Context, id uuid.UUID) (*core.Result, error) {
	var result core.Result
	err := s.pool.QueryRow(ctx, `
		SELECT id, payload, created_at FROM request_results WHERE id = $1`, id).
		Scan(&result.ID, &result.Payload, &result.CreatedAt)
	if err != nil {
		return nil, translate("get_result", err)
	}

	return &result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*core.Request, error) {
	var (
		request  core.Request
		rawExtra []byte
	)
	err := row.Scan(
		&request.ID, &request.Query, &request.Status, &request.ResultID,
		&rawExtra, &request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := decodeExtra(rawExtra, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

func decodeExtra(raw []byte, request *core.Request) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &request.Extra)
}

func translate(op string, err error) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NewStoreError(op, errors.ErrNotFound)
	}
	return errors.NewStoreError(op, err)
}
