package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tarik02-org/mediabot/registry"
)

type service struct {
	name string
	run  func(ctx context.Context) error
}

// Engine wires the substrate, store and registry together and supervises
// the registered worker loops and callback consumers.
type Engine struct {
	substrate Substrate
	store     Store
	reg       *registry.Registry
	config    *EngineConfig

	services []service

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a new engine with dependency injection
func NewEngine(substrate Substrate, store Store, options ...EngineOption) *Engine {
	config := defaultEngineConfig()
	for _, opt := range options {
		opt(config)
	}

	return &Engine{
		substrate: substrate,
		store:     store,
		reg:       registry.NewRegistry(),
		config:    config,
	}
}

// Deps returns the dependency bundle handed to runners and consumers
func (e *Engine) Deps() Deps {
	return Deps{
		Store:     e.store,
		Substrate: e.substrate,
		Logger:    e.config.Logger,
	}
}

// Registry exposes the engine's descriptor registry
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// RegisterRunner attaches a worker loop for processor to the engine.
// The processor name is claimed in the registry; duplicates are rejected.
func RegisterRunner[Q, R any](
	e *Engine,
	processor *Processor[Q, R],
	compute ComputeFunc[Q, R],
	opts ...RunnerOption,
) error {
	if err := e.reg.AddProcessor(processor); err != nil {
		return fmt.Errorf("register processor %q: %w", processor.Name(), err)
	}

	runner, err := NewRunner(e.Deps(), processor, compute, opts...)
	if err != nil {
		return err
	}

	e.services = append(e.services, service{
		name: "runner:" + processor.Name(),
		run:  runner.Run,
	})
	return nil
}

// RegisterConsumer attaches a callback consumer drained onto a bounded
// handler pool of the given concurrency.
func RegisterConsumer[C any](
	e *Engine,
	callback *Callback[C],
	concurrency int,
	handle func(ctx context.Context, outcome Outcome[C]),
	opts ...ConsumerOption,
) error {
	if err := e.reg.AddCallback(callback); err != nil {
		return fmt.Errorf("register callback %q: %w", callback.Name(), err)
	}

	consumer := NewConsumer(e.Deps(), callback, opts...)
	e.services = append(e.services, service{
		name: "consumer:" + callback.Name(),
		run: func(ctx context.Context) error {
			return Dispatch(ctx, consumer, concurrency, handle)
		},
	})
	return nil
}

// Start begins all registered services
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.substrate.Connect(e.ctx); err != nil {
		return fmt.Errorf("connect substrate: %w", err)
	}

	log := e.logger()
	for _, svc := range e.services {
		e.wg.Add(1)
		go func(svc service) {
			defer e.wg.Done()
			if err := svc.run(e.ctx); err != nil {
				log.Error("Service error", "service", svc.name, "error", err)
			}
		}(svc)
	}

	log.Info("Engine started", "services", len(e.services))
	return nil
}

// Stop gracefully shuts down the engine, letting in-flight jobs drain
func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}

	log := e.logger()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("Engine stopped gracefully")
	case <-time.After(e.config.ShutdownTimeout):
		log.Warn("Engine shutdown timeout exceeded")
	}

	if err := e.substrate.Close(); err != nil {
		log.Error("Error closing substrate", "error", err)
	}

	return nil
}

// Health reports substrate health
func (e *Engine) Health() error {
	return e.substrate.Health()
}

// Run starts the engine and blocks until shutdown signals are received.
// This is a convenience method that combines Start() + signal handling + Stop().
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	log := e.logger()
	select {
	case <-ctx.Done():
		log.Info("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info("Received signal, shutting down...", "signal", sig.String())
	}

	return e.Stop()
}

func (e *Engine) logger() *slog.Logger {
	if e.config.Logger != nil {
		return e.config.Logger
	}
	return slog.Default()
}
