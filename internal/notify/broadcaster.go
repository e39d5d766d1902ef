// Package notify fans transient user notifications (toasts) out to
// subscribers and keeps the ones still on screen.
package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-relief-map/internal/models"
	"github.com/mr1hm/go-relief-map/internal/observability"
)

const (
	DefaultLifetime  = 5 * time.Second
	DefaultMaxRecent = 50
	subscriberBuffer = 100
)

type Broadcaster struct {
	clock     clockwork.Clock
	lifetime  time.Duration
	maxRecent int
	logger    *slog.Logger
	metrics   *observability.Metrics

	nextID      atomic.Uint64
	nextSubID   atomic.Uint64
	mu          sync.RWMutex
	subscribers map[uint64]chan models.Notification
	recent      []models.Notification
	closed      bool
}

type Option func(*Broadcaster)

func WithClock(c clockwork.Clock) Option {
	return func(b *Broadcaster) { b.clock = c }
}

// WithLifetime sets how long a notification stays in Recent.
func WithLifetime(d time.Duration) Option {
	return func(b *Broadcaster) { b.lifetime = d }
}

func WithMaxRecent(n int) Option {
	return func(b *Broadcaster) { b.maxRecent = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) { b.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		clock:       clockwork.NewRealClock(),
		lifetime:    DefaultLifetime,
		maxRecent:   DefaultMaxRecent,
		logger:      slog.Default(),
		subscribers: make(map[uint64]chan models.Notification),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a channel receiving every notification published after
// the call. After Close the returned channel is already closed.
func (b *Broadcaster) Subscribe() (uint64, <-chan models.Notification) {
	id := b.nextSubID.Add(1)
	ch := make(chan models.Notification, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Notify publishes a notification and returns it.
func (b *Broadcaster) Notify(level models.NotificationLevel, message string) models.Notification {
	n := models.Notification{
		ID:        b.nextID.Add(1),
		Level:     level,
		Message:   message,
		CreatedAt: b.clock.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return n
	}

	b.recent = append(b.recent, n)
	if over := len(b.recent) - b.maxRecent; over > 0 {
		b.recent = append(b.recent[:0:0], b.recent[over:]...)
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- n:
		default:
			// Skip slow subscribers
		}
	}

	if b.metrics != nil {
		b.metrics.Notifications.WithLabelValues(string(level)).Inc()
	}
	b.logger.Debug("notification", "level", level, "message", message)
	return n
}

func (b *Broadcaster) Error(message string) models.Notification {
	return b.Notify(models.LevelError, message)
}

func (b *Broadcaster) Warning(message string) models.Notification {
	return b.Notify(models.LevelWarning, message)
}

func (b *Broadcaster) Success(message string) models.Notification {
	return b.Notify(models.LevelSuccess, message)
}

func (b *Broadcaster) Info(message string) models.Notification {
	return b.Notify(models.LevelInfo, message)
}

// Recent returns the notifications younger than the lifetime, oldest first.
func (b *Broadcaster) Recent() []models.Notification {
	cutoff := b.clock.Now().Add(-b.lifetime)

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Notification, 0, len(b.recent))
	for _, n := range b.recent {
		if n.CreatedAt.After(cutoff) {
			out = append(out, n)
		}
	}
	return out
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully.
// Later notifications are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.recent = nil
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
