package core

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tarik02-org/mediabot/errors"
)

// Outcome is one resolved notification: the processor name and routing
// context from the callback message, plus either the validated result or
// the error that prevented resolving it. The external presentation layer
// is solely responsible for rendering Err outcomes to users.
type Outcome[C any] struct {
	Name    string
	Context C
	Result  any
	Err     error
}

// ConsumerOption configures a callback consumer
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	pollTimeout time.Duration
}

// WithConsumerPollTimeout bounds each blocking pop so cancellation is
// observed promptly on an empty callback queue
func WithConsumerPollTimeout(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.pollTimeout = d
	}
}

// Consumer is a pull iterator over the outcomes of one callback
// definition. Independent consumers for different callbacks are safe to
// run concurrently; each owns a distinct queue. A consumer never mutates
// the request or result rows it reads.
type Consumer[C any] struct {
	deps     Deps
	callback *Callback[C]
	opts     consumerOptions
	log      *slog.Logger
	closed   atomic.Bool
}

// NewConsumer creates a consumer for callback
func NewConsumer[C any](deps Deps, callback *Callback[C], opts ...ConsumerOption) *Consumer[C] {
	o := consumerOptions{pollTimeout: time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	return &Consumer[C]{
		deps:     deps,
		callback: callback,
		opts:     o,
		log:      deps.logger().With("callback", callback.Name()),
	}
}

// Next blocks until an outcome is available or ctx is cancelled.
// Structurally invalid messages and contexts that fail schema validation
// are dropped and logged rather than yielded. After cancellation or
// Close the consumer is terminal: every further call returns
// errors.ErrClosed.
func (c *Consumer[C]) Next(ctx context.Context) (Outcome[C], error) {
	var zero Outcome[C]
	if c.closed.Load() {
		return zero, errors.ErrClosed
	}

	queue := callbackQueueKey(c.callback.Name())

	for {
		if ctx.Err() != nil {
			c.closed.Store(true)
			return zero, errors.ErrClosed
		}

		raw, err := c.deps.Substrate.BlockingPop(ctx, queue, c.opts.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				c.closed.Store(true)
				return zero, errors.ErrClosed
			}
			return zero, errors.NewBrokerError("pop", queue, err)
		}
		if raw == nil {
			continue
		}

		var msg callbackMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.ID == uuid.Nil || msg.Name == "" {
			c.log.Warn("Invalid item in queue", "payload", string(raw), "error", err)
			continue
		}

		cbContext, err := c.callback.contextSchema.Parse(msg.Context)
		if err != nil {
			c.log.Warn("Invalid callback context", "request", msg.ID, "error", err)
			continue
		}

		return c.resolve(ctx, msg, cbContext), nil
	}
}

// resolve turns a callback message into an outcome by reading the
// request and validating its result against the named processor's schema
func (c *Consumer[C]) resolve(ctx context.Context, msg callbackMessage, cbContext C) Outcome[C] {
	out := Outcome[C]{Name: msg.Name, Context: cbContext}

	processor, ok := c.callback.Processor(msg.Name)
	if !ok {
		out.Err = errors.ErrUnknownProcessor
		return out
	}

	request, err := c.deps.Store.GetRequest(ctx, msg.ID, true)
	if err != nil {
		out.Err = err
		return out
	}

	if request.Result == nil {
		out.Err = errors.ErrNoResult
		return out
	}

	result, err := processor.ParseResult(request.Result.Payload)
	if err != nil {
		out.Err = err
		return out
	}

	out.Result = result
	return out
}

// Close makes the consumer terminal without cancelling a context
func (c *Consumer[C]) Close() {
	c.closed.Store(true)
}

// Dispatch drains consumer onto a bounded pool of handler invocations,
// mirroring the worker loop's admission model: one sequential Next loop
// that only pulls once a handler slot is free. It returns nil once the
// consumer is closed or ctx is cancelled, after running handlers drain.
func Dispatch[C any](
	ctx context.Context,
	consumer *Consumer[C],
	concurrency int,
	handle func(ctx context.Context, outcome Outcome[C]),
) error {
	if concurrency < 1 {
		concurrency = 1
	}

	slots := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case slots <- struct{}{}:
		}

		outcome, err := consumer.Next(ctx)
		if err != nil {
			<-slots
			wg.Wait()
			if stderrors.Is(err, errors.ErrClosed) {
				return nil
			}
			return err
		}

		wg.Add(1)
		handlerCtx := context.WithoutCancel(ctx)
		go func(outcome Outcome[C]) {
			defer wg.Done()
			defer func() { <-slots }()
			handle(handlerCtx, outcome)
		}(outcome)
	}
}
