// Package errors provides error types and utilities for the mediabot broker.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrNotConnected     = errors.New("not connected")
	ErrNotFound         = errors.New("not found")
	ErrClosed           = errors.New("closed")
	ErrTimeout          = errors.New("operation timed out")
	ErrUnknownProcessor = errors.New("unknown processor")
	ErrNoResult         = errors.New("request has no result")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNilCompute       = errors.New("compute function cannot be nil")
	ErrNilSchema        = errors.New("schema cannot be nil")
	ErrDuplicateName    = errors.New("name already registered")
)

// BrokerError represents queue substrate errors
type BrokerError struct {
	Op    string // operation being performed
	Queue string // queue or key name (if applicable)
	Err   error  // underlying error
}

func (e *BrokerError) Error() string {
	if e.Queue != "" {
		return fmt.Sprintf("broker %s on %s: %v", e.Op, e.Queue, e.Err)
	}
	return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// StoreError represents durable store errors
type StoreError struct {
	Op  string // operation being performed
	Err error  // underlying error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ConnectionError represents connection-related errors
type ConnectionError struct {
	URI string // connection URI (may be redacted)
	Err error  // underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Temporary() bool {
	// Implement net.Error interface for timeout detection
	if t, ok := e.Err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}
	return false
}

func (e *ConnectionError) Timeout() bool {
	// Implement net.Error interface for timeout detection
	if t, ok := e.Err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return false
}

// InvalidPayloadError represents a payload that failed schema validation.
// A stored query that fails validation is terminal for its request; a
// callback context that fails validation is dropped by the consumer.
type InvalidPayloadError struct {
	Kind string // payload kind, e.g. the Go type being decoded into
	Err  error  // underlying decode/validation error
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid payload (%s): %v", e.Kind, e.Err)
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Err
}

// RetryError signals that a job should be re-enqueued rather than failed.
// It is the only mechanism for a compute function to request a retry; any
// other error is terminal for that request.
type RetryError struct {
	Err error
}

func (e *RetryError) Error() string {
	if e.Err == nil {
		return "retry requested"
	}
	return fmt.Sprintf("retry requested: %v", e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Helper functions for creating errors

// NewBrokerError creates a new broker error
func NewBrokerError(op, queue string, err error) error {
	return &BrokerError{Op: op, Queue: queue, Err: err}
}

// NewStoreError creates a new store error
func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// NewConnectionError creates a new connection error
func NewConnectionError(uri string, err error) error {
	return &ConnectionError{URI: uri, Err: err}
}

// NewInvalidPayloadError creates a new invalid payload error
func NewInvalidPayloadError(kind string, err error) error {
	return &InvalidPayloadError{Kind: kind, Err: err}
}

// NewRetryError wraps err so the worker loop re-enqueues the job
func NewRetryError(err error) error {
	return &RetryError{Err: err}
}

// IsRetryable checks if an error requests a retry
func IsRetryable(err error) bool {
	var re *RetryError
	return errors.As(err, &re)
}

// IsInvalidPayload checks if an error is a schema validation failure
func IsInvalidPayload(err error) bool {
	var ipe *InvalidPayloadError
	return errors.As(err, &ipe)
}

// IsNotFound checks if an error indicates a missing row or key
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout checks if an error is a timeout
func IsTimeout(err error) bool {
	if t, ok := err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return errors.Is(err, ErrTimeout)
}
