package core

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tarik02-org/mediabot/errors"
)

// ComputeFunc produces a result for a validated query. It may return an
// error wrapped with errors.NewRetryError to request re-enqueueing; any
// other error is terminal for the request. It must be safe to call
// concurrently for different keys and idempotent enough to be skipped
// via the result cache on a later duplicate call.
type ComputeFunc[Q, R any] func(ctx context.Context, query Q) (R, error)

// RunnerOption configures a worker loop
type RunnerOption func(*runnerOptions)

type runnerOptions struct {
	concurrency  int
	lockTimeout  time.Duration
	cacheTimeout time.Duration
	pollTimeout  time.Duration
	retryBackoff time.Duration
	maxAttempts  int
}

func defaultRunnerOptions() runnerOptions {
	return runnerOptions{
		concurrency:  1,
		lockTimeout:  30 * time.Second,
		cacheTimeout: 60 * time.Second,
		pollTimeout:  time.Second,
	}
}

// WithConcurrency sets the maximum number of simultaneously in-flight jobs
func WithConcurrency(n int) RunnerOption {
	return func(o *runnerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLockTimeout sets the TTL of the per-key dedupe lock
func WithLockTimeout(d time.Duration) RunnerOption {
	return func(o *runnerOptions) {
		o.lockTimeout = d
	}
}

// WithCacheTimeout sets how long a result id stays reusable in the cache
func WithCacheTimeout(d time.Duration) RunnerOption {
	return func(o *runnerOptions) {
		o.cacheTimeout = d
	}
}

// WithPollTimeout bounds each blocking pop so cancellation is observed
// promptly even when the queue stays empty
func WithPollTimeout(d time.Duration) RunnerOption {
	return func(o *runnerOptions) {
		o.pollTimeout = d
	}
}

// WithRetryBackoff delays each retry re-enqueue. Zero keeps the original
// immediate re-enqueue behavior.
func WithRetryBackoff(d time.Duration) RunnerOption {
	return func(o *runnerOptions) {
		o.retryBackoff = d
	}
}

// WithMaxAttempts caps retryable failures; a job exhausting the cap is
// marked FAILED and its callback still fires. Zero means unbounded.
func WithMaxAttempts(n int) RunnerOption {
	return func(o *runnerOptions) {
		o.maxAttempts = n
	}
}

// Runner is the per-processor worker loop. A single sequential pop loop
// admits jobs into a bounded set of in-flight executions; the dedupe
// lock, not queue ordering, is what provides correctness under
// concurrency.
type Runner[Q, R any] struct {
	deps      Deps
	processor *Processor[Q, R]
	compute   ComputeFunc[Q, R]
	opts      runnerOptions
	log       *slog.Logger

	failOnce sync.Once
	infraErr chan error
}

// NewRunner creates a worker loop for processor driven by compute
func NewRunner[Q, R any](
	deps Deps,
	processor *Processor[Q, R],
	compute ComputeFunc[Q, R],
	opts ...RunnerOption,
) (*Runner[Q, R], error) {
	if compute == nil {
		return nil, errors.ErrNilCompute
	}

	o := defaultRunnerOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Runner[Q, R]{
		deps:      deps,
		processor: processor,
		compute:   compute,
		opts:      o,
		log:       deps.logger().With("processor", processor.Name()),
		infraErr:  make(chan error, 1),
	}, nil
}

// Run drains the processor's queue until ctx is cancelled, then waits
// for in-flight jobs to finish before returning. Store unavailability
// propagates out as an error after the drain; the process is expected to
// restart rather than limp along (fail fast, rely on supervision).
func (r *Runner[Q, R]) Run(ctx context.Context) error {
	queue := jobQueueKey(r.processor.Name())
	slots := make(chan struct{}, r.opts.concurrency)
	var wg sync.WaitGroup

	r.log.Info("Worker loop started", "concurrency", r.opts.concurrency)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			r.log.Info("Worker loop stopped")
			return nil
		case err := <-r.infraErr:
			wg.Wait()
			return err
		case slots <- struct{}{}:
		}

		raw, err := r.deps.Substrate.BlockingPop(ctx, queue, r.opts.pollTimeout)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				wg.Wait()
				r.log.Info("Worker loop stopped")
				return nil
			}
			wg.Wait()
			return errors.NewBrokerError("pop", queue, err)
		}
		if raw == nil {
			<-slots
			continue
		}

		wg.Add(1)
		// In-flight jobs run to completion even after cancellation;
		// only the pop loop observes ctx.
		jobCtx := context.WithoutCancel(ctx)
		go func(raw []byte) {
			defer wg.Done()
			defer func() { <-slots }()
			r.processJob(jobCtx, raw)
		}(raw)
	}
}

func (r *Runner[Q, R]) processJob(ctx context.Context, raw []byte) {
	var msg jobMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.RequestID == uuid.Nil {
		r.log.Warn("Invalid item in queue", "payload", string(raw), "error", err)
		return
	}

	log := r.log.With("request", msg.RequestID)

	request, err := r.deps.Store.UpdateRequestStatus(ctx, msg.RequestID, StatusProcessing, nil)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Warn("Job references unknown request", "error", err)
			return
		}
		r.handleInfraError(err)
		return
	}

	result, err := r.resolve(ctx, request)

	switch {
	case err == nil:
		if _, uerr := r.deps.Store.UpdateRequestStatus(ctx, msg.RequestID, StatusSuccess, &result.ID); uerr != nil {
			r.handleInfraError(uerr)
			return
		}
		log.Debug("Request resolved", "result", result.ID)

	case errors.IsRetryable(err) && !r.attemptsExhausted(msg.Attempt):
		if _, uerr := r.deps.Store.UpdateRequestStatus(ctx, msg.RequestID, StatusPending, nil); uerr != nil {
			r.handleInfraError(uerr)
			return
		}
		log.Warn("Request retried", "attempt", msg.Attempt+1, "error", err)
		r.requeue(ctx, msg)
		// No callback on retry; the job is back in the queue.
		return

	case isInfraError(err):
		r.handleInfraError(err)
		return

	default:
		if _, uerr := r.deps.Store.UpdateRequestStatus(ctx, msg.RequestID, StatusFailed, nil); uerr != nil {
			r.handleInfraError(uerr)
			return
		}
		log.Error("Request failed", "error", err)
	}

	if msg.Callback != nil {
		r.notify(ctx, msg.Callback)
	}
}

// resolve runs the dedupe-lock critical section: reuse a cached result
// if its row still exists, otherwise compute, persist and cache a new
// one. Errors propagate out of the lock and are classified by the caller.
func (r *Runner[Q, R]) resolve(ctx context.Context, request *Request) (*Result, error) {
	query, err := r.processor.ParseQuery(request.Query)
	if err != nil {
		return nil, err
	}
	key := r.processor.Key(query)

	var result *Result
	lerr := r.deps.Substrate.WithLock(
		ctx,
		[]string{lockKey(r.processor.Name(), key)},
		r.opts.lockTimeout,
		func(ctx context.Context) error {
			ck := cacheKey(r.processor.Name(), key)

			if cached, err := r.lookupCached(ctx, ck); err != nil {
				return err
			} else if cached != nil {
				result = cached
				return nil
			}

			data, err := r.execute(ctx, query)
			if err != nil {
				return err
			}

			payload, err := r.processor.MarshalResult(data)
			if err != nil {
				return err
			}

			created, err := r.deps.Store.CreateResult(ctx, payload)
			if err != nil {
				return err
			}
			result = created

			if raw, err := json.Marshal(created.ID); err == nil {
				if serr := r.deps.Substrate.SetWithExpiry(ctx, ck, raw, r.opts.cacheTimeout); serr != nil {
					r.log.Warn("Failed to cache result id", "key", ck, "error", serr)
				}
			}
			return nil
		},
	)
	if lerr != nil {
		return nil, lerr
	}
	return result, nil
}

// lookupCached resolves the cached result id to a live row. The cache is
// a hint only: a missing key, undecodable value or deleted row all fall
// through to recomputation.
func (r *Runner[Q, R]) lookupCached(ctx context.Context, key string) (*Result, error) {
	raw, err := r.deps.Substrate.Get(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}

	var id uuid.UUID
	if json.Unmarshal(raw, &id) != nil {
		return nil, nil
	}

	result, err := r.deps.Store.GetResult(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

// execute runs the compute function with panic recovery
func (r *Runner[Q, R]) execute(ctx context.Context, query Q) (result R, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("compute %s: panic: %v", r.processor.Name(), rec)
		}
	}()

	return r.compute(ctx, query)
}

func (r *Runner[Q, R]) attemptsExhausted(attempt int) bool {
	return r.opts.maxAttempts > 0 && attempt+1 >= r.opts.maxAttempts
}

// requeue puts the job back on its queue with the attempt count bumped
func (r *Runner[Q, R]) requeue(ctx context.Context, msg jobMessage) {
	if r.opts.retryBackoff > 0 {
		time.Sleep(r.opts.retryBackoff)
	}

	msg.Attempt++
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("Failed to encode retry message", "request", msg.RequestID, "error", err)
		return
	}

	queue := jobQueueKey(r.processor.Name())
	if err := r.deps.Substrate.Push(ctx, queue, payload); err != nil {
		r.handleInfraError(errors.NewBrokerError("push", queue, err))
	}
}

// notify forwards the callback message regardless of success or failure;
// the consumer inspects the request to determine the outcome.
func (r *Runner[Q, R]) notify(ctx context.Context, ref *callbackRef) {
	payload, err := json.Marshal(ref.Data)
	if err != nil {
		r.log.Error("Failed to encode callback message", "callback", ref.Name, "error", err)
		return
	}

	queue := callbackQueueKey(ref.Name)
	if err := r.deps.Substrate.Push(ctx, queue, payload); err != nil {
		r.handleInfraError(errors.NewBrokerError("push", queue, err))
	}
}

// handleInfraError records the first store/substrate failure so Run can
// surface it once in-flight jobs drain
func (r *Runner[Q, R]) handleInfraError(err error) {
	r.log.Error("Infrastructure failure", "error", err)
	r.failOnce.Do(func() {
		r.infraErr <- err
	})
}

func isInfraError(err error) bool {
	if errors.IsNotFound(err) {
		return false
	}
	var se *errors.StoreError
	return stderrors.As(err, &se)
}
