package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a request. The worker loop is the
// only component that moves a request out of PENDING, strictly through
// PENDING → PROCESSING → (SUCCESS | FAILED | PENDING again on retry).
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// Valid reports whether s is a known status value
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is an end state
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Request is the durable record of one submitted unit of work.
// ResultID is non-nil if and only if Status is SUCCESS.
type Request struct {
	ID        uuid.UUID
	Query     json.RawMessage
	Status    Status
	ResultID  *uuid.UUID
	Extra     map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time

	// Result is populated by Store.GetRequest when includeResult is
	// set and the request has one; nil otherwise.
	Result *Result
}

// Result is an immutable computation outcome. Many requests sharing a
// canonical key within the cache window may reference the same row.
type Result struct {
	ID        uuid.UUID
	Payload   json.RawMessage
	CreatedAt time.Time
}
