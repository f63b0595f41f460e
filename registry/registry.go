// Package registry holds the processor and callback descriptors known to
// one process. An explicit Registry value is constructed at startup and
// handed to the engine; there is no package-level registration.
package registry

import (
	"encoding/json"
	"sync"

	"github.com/tarik02-org/mediabot/errors"
)

// ProcessorRef is the registry's view of a processor descriptor
type ProcessorRef interface {
	Name() string
	ParseResult(raw json.RawMessage) (any, error)
}

// CallbackRef is the registry's view of a callback descriptor
type CallbackRef interface {
	Name() string
}

// Registry is a thread-safe collection of processor and callback
// descriptors. Names address physical queues, so duplicates are rejected
// rather than overwritten.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]ProcessorRef
	callbacks  map[string]CallbackRef
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]ProcessorRef),
		callbacks:  make(map[string]CallbackRef),
	}
}

// AddProcessor registers a processor descriptor
func (r *Registry) AddProcessor(processor ProcessorRef) error {
	if processor == nil || processor.Name() == "" {
		return errors.ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.processors[processor.Name()]; ok {
		return errors.ErrDuplicateName
	}

	r.processors[processor.Name()] = processor
	return nil
}

// Processor retrieves a processor descriptor by name
func (r *Registry) Processor(name string) (ProcessorRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	processor, ok := r.processors[name]
	return processor, ok
}

// Processors returns all registered processor names
func (r *Registry) Processors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}

	return names
}

// AddCallback registers a callback descriptor
func (r *Registry) AddCallback(callback CallbackRef) error {
	if callback == nil || callback.Name() == "" {
		return errors.ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.callbacks[callback.Name()]; ok {
		return errors.ErrDuplicateName
	}

	r.callbacks[callback.Name()] = callback
	return nil
}

// Callback retrieves a callback descriptor by name
func (r *Registry) Callback(name string) (CallbackRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	callback, ok := r.callbacks[name]
	return callback, ok
}

// Callbacks returns all registered callback names
func (r *Registry) Callbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.callbacks))
	for name := range r.callbacks {
		names = append(names, name)
	}

	return names
}
