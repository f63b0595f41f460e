package core

import (
	"encoding/json"

	"github.com/tarik02-org/mediabot/errors"
	"github.com/tarik02-org/mediabot/schema"
)

// Processor is the static description of one class of work: validated
// query and result shapes plus the canonicalization function that gives
// two equivalent queries the same dedupe/cache key.
//
// Names address physical queues, so they must be unique across the whole
// deployment; a collision silently cross-feeds unrelated job types. The
// registry enforces this within one process, uniqueness across processes
// is an operator responsibility.
type Processor[Q, R any] struct {
	name         string
	querySchema  schema.Schema[Q]
	resultSchema schema.Schema[R]
	createKey    func(Q) string
}

// ProcessorRef is the type-erased view of a processor used by callbacks
// and the registry.
type ProcessorRef interface {
	// Name returns the processor's queue-addressing name
	Name() string

	// ParseResult validates a stored result payload against the
	// processor's result schema
	ParseResult(raw json.RawMessage) (any, error)
}

// NewProcessor creates a processor descriptor. It performs no I/O.
func NewProcessor[Q, R any](
	name string,
	querySchema schema.Schema[Q],
	resultSchema schema.Schema[R],
	createKey func(Q) string,
) (*Processor[Q, R], error) {
	if name == "" {
		return nil, errors.ErrEmptyName
	}
	if querySchema == nil || resultSchema == nil {
		return nil, errors.ErrNilSchema
	}
	if createKey == nil {
		return nil, errors.ErrNilCompute
	}

	return &Processor[Q, R]{
		name:         name,
		querySchema:  querySchema,
		resultSchema: resultSchema,
		createKey:    createKey,
	}, nil
}

// Name returns the processor name
func (p *Processor[Q, R]) Name() string {
	return p.name
}

// Key canonicalizes a query into its dedupe/cache key
func (p *Processor[Q, R]) Key(query Q) string {
	return p.createKey(query)
}

// ParseQuery validates a stored query payload
func (p *Processor[Q, R]) ParseQuery(raw json.RawMessage) (Q, error) {
	return p.querySchema.Parse(raw)
}

// ParseResult validates a stored result payload
func (p *Processor[Q, R]) ParseResult(raw json.RawMessage) (any, error) {
	return p.resultSchema.Parse(raw)
}

// MarshalQuery encodes a query for persistence
func (p *Processor[Q, R]) MarshalQuery(query Q) (json.RawMessage, error) {
	return p.querySchema.Marshal(query)
}

// MarshalResult encodes a computed result for persistence
func (p *Processor[Q, R]) MarshalResult(result R) (json.RawMessage, error) {
	return p.resultSchema.Marshal(result)
}
