package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tarik02-org/mediabot/errors"
)

// SubmitOption configures a single submission
type SubmitOption func(*submitOptions)

type submitOptions struct {
	callback Bound
	extra    map[string]any
}

// WithCallback attaches a bound callback whose queue receives a
// notification once the request reaches a terminal state
func WithCallback(b Bound) SubmitOption {
	return func(o *submitOptions) {
		o.callback = b
	}
}

// WithExtra persists caller-supplied metadata on the request row
func WithExtra(extra map[string]any) SubmitOption {
	return func(o *submitOptions) {
		o.extra = extra
	}
}

// Submit creates a PENDING request row for query and enqueues one job
// message on the processor's queue, then returns the created request
// without waiting for completion.
//
// The two side effects are not transactional: a crash or push failure
// after the row is created leaves a permanently PENDING request that is
// never picked up. Callers relying on completion must treat such rows as
// an operational concern, not a broker guarantee.
func Submit[Q, R any](
	ctx context.Context,
	deps Deps,
	processor *Processor[Q, R],
	query Q,
	opts ...SubmitOption,
) (*Request, error) {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	rawQuery, err := processor.MarshalQuery(query)
	if err != nil {
		return nil, fmt.Errorf("encode query for %s: %w", processor.Name(), err)
	}

	request, err := deps.Store.CreateRequest(ctx, rawQuery, o.extra)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", processor.Name(), err)
	}

	msg := jobMessage{RequestID: request.ID}
	if o.callback != nil {
		rawContext, err := o.callback.EncodeContext()
		if err != nil {
			return nil, fmt.Errorf("encode callback context for %s: %w", processor.Name(), err)
		}
		msg.Callback = &callbackRef{
			Name: o.callback.CallbackName(),
			Data: callbackMessage{
				ID:      request.ID,
				Name:    processor.Name(),
				Context: rawContext,
			},
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode job message for %s: %w", processor.Name(), err)
	}

	queue := jobQueueKey(processor.Name())
	if err := deps.Substrate.Push(ctx, queue, payload); err != nil {
		return nil, errors.NewBrokerError("push", queue, err)
	}

	return request, nil
}
