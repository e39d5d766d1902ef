// Package poller runs named tasks on a fixed interval until stopped.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/mr1hm/go-relief-map/internal/observability"
)

var (
	ErrRunning     = errors.New("scheduler already running")
	ErrInvalidTask = errors.New("invalid task")
)

// Task is run once when the scheduler starts and then every Interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	tasks   []Task
	cancel  context.CancelFunc
	wg      *conc.WaitGroup
	running bool
}

type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a task. Tasks added while running take effect on the next Start.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil || t.Interval <= 0 {
		return fmt.Errorf("%w: %q interval=%s", ErrInvalidTask, t.Name, t.Interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg = conc.NewWaitGroup()
	s.running = true

	for _, t := range s.tasks {
		s.wg.Go(func() { s.loop(ctx, t) })
	}
	if s.metrics != nil {
		s.metrics.PollerRunning.Set(1)
	}
	return nil
}

// Stop cancels every task and waits for in-flight runs to return.
// Once Stop returns no task callback fires again. Stop is safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, wg := s.cancel, s.wg
	s.mu.Unlock()

	cancel()
	wg.Wait()

	if s.metrics != nil {
		s.metrics.PollerRunning.Set(0)
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	s.logger.Info("starting task", "task", t.Name, "interval", t.Interval)

	ticker := s.clock.NewTicker(t.Interval)
	defer ticker.Stop()

	s.run(ctx, t)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("task shutting down", "task", t.Name)
			return
		case <-ticker.Chan():
			s.run(ctx, t)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, t Task) {
	if ctx.Err() != nil {
		return
	}

	s.logger.Debug("running task", "task", t.Name)

	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() { err = t.Run(ctx) })

	if r := catcher.Recovered(); r != nil {
		s.logger.Error("task panicked", "task", t.Name, "panic", r.Value, "stack", string(r.Stack))
		return
	}
	if err != nil {
		s.logger.Error("task failed", "task", t.Name, "error", err)
	}
}
