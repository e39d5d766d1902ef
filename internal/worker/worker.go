// Package worker serializes state changes through a single consumer goroutine.
// Poll completions, layer toggles, marker clicks and nearby requests are all
// submitted as events and applied one at a time, in submission order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

var ErrStopped = errors.New("dispatcher stopped")

// Event mutates view state. It runs on the dispatcher goroutine and must not
// call Do on the same dispatcher.
type Event func(ctx context.Context) error

type envelope struct {
	name   string
	fn     Event
	result chan error
}

type Dispatcher struct {
	events chan envelope
	logger *slog.Logger
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

func NewDispatcher(bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize < 0 {
		bufferSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		events: make(chan envelope, bufferSize),
		logger: logger,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	d.wg.Add(1)
	go d.consume(ctx)
}

func (d *Dispatcher) consume(ctx context.Context) {
	defer d.wg.Done()

	for env := range d.events {
		err := d.execute(ctx, env)
		if env.result != nil {
			env.result <- err
		} else if err != nil {
			d.logger.Error("event failed", "event", env.name, "error", err)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, env envelope) (err error) {
	var catcher panics.Catcher
	catcher.Try(func() { err = env.fn(ctx) })
	if r := catcher.Recovered(); r != nil {
		d.logger.Error("event panicked", "event", env.name, "panic", r.Value, "stack", string(r.Stack))
		return fmt.Errorf("event %s: %w", env.name, r.AsError())
	}
	return err
}

// Submit queues ev without waiting for it to run.
func (d *Dispatcher) Submit(name string, ev Event) error {
	return d.enqueue(envelope{name: name, fn: ev})
}

// Do queues ev and waits for it to finish or for ctx to end. When ctx ends
// first the event still runs; only the wait is abandoned.
func (d *Dispatcher) Do(ctx context.Context, name string, ev Event) error {
	result := make(chan error, 1)
	if err := d.enqueue(envelope{name: name, fn: ev, result: result}); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(env envelope) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped || !d.started {
		return ErrStopped
	}
	d.events <- env
	return nil
}

// Stop rejects new events, runs the ones already queued, and waits for the
// consumer to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.events)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}
