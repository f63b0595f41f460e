package core

import (
	"encoding/json"

	"github.com/tarik02-org/mediabot/errors"
	"github.com/tarik02-org/mediabot/schema"
)

// Callback is the static description of a notification channel: a
// validated routing context shape and the set of processors whose
// results it may receive. Like processor names, callback names address
// physical queues and must stay unique across the deployment.
type Callback[C any] struct {
	name          string
	contextSchema schema.Schema[C]
	processors    map[string]ProcessorRef
}

// CallbackRef is the type-erased view of a callback used by the registry.
type CallbackRef interface {
	Name() string
}

// NewCallback creates a callback descriptor. It performs no I/O.
func NewCallback[C any](name string, contextSchema schema.Schema[C], processors ...ProcessorRef) (*Callback[C], error) {
	if name == "" {
		return nil, errors.ErrEmptyName
	}
	if contextSchema == nil {
		return nil, errors.ErrNilSchema
	}

	byName := make(map[string]ProcessorRef, len(processors))
	for _, p := range processors {
		byName[p.Name()] = p
	}

	return &Callback[C]{
		name:          name,
		contextSchema: contextSchema,
		processors:    byName,
	}, nil
}

// Name returns the callback name
func (c *Callback[C]) Name() string {
	return c.name
}

// Processor looks up a member processor by name
func (c *Callback[C]) Processor(name string) (ProcessorRef, bool) {
	p, ok := c.processors[name]
	return p, ok
}

// BoundCallback pairs a callback with the routing context a caller wants
// replayed once the request resolves. It is produced at submission time
// and opaque to the worker loop.
type BoundCallback[C any] struct {
	callback *Callback[C]
	context  C
}

// Bound is the type-erased view of a bound callback accepted by Submit.
type Bound interface {
	// CallbackName returns the name of the callback queue
	CallbackName() string

	// EncodeContext serializes the routing context for the round trip
	EncodeContext() (json.RawMessage, error)
}

// Bind attaches routing context to a callback for submission
func Bind[C any](callback *Callback[C], context C) BoundCallback[C] {
	return BoundCallback[C]{callback: callback, context: context}
}

// CallbackName returns the callback queue name
func (b BoundCallback[C]) CallbackName() string {
	return b.callback.name
}

// EncodeContext serializes the bound context against the context schema
func (b BoundCallback[C]) EncodeContext() (json.RawMessage, error) {
	return b.callback.contextSchema.Marshal(b.context)
}
