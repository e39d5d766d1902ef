package notify

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-relief-map/internal/models"
	"github.com/mr1hm/go-relief-map/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestBroadcaster(opts ...Option) *Broadcaster {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewBroadcaster(opts...)
}

func TestBroadcaster_SubscribeUnsubscribe(t *testing.T) {
	b := newTestBroadcaster()

	id, ch := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	b.Unsubscribe(id)
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	default:
		t.Error("channel should be closed and readable")
	}
}

func TestBroadcaster_Notify(t *testing.T) {
	b := newTestBroadcaster()

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	sent := b.Error("Failed to load map data")

	select {
	case received := <-ch:
		if received.ID != sent.ID {
			t.Errorf("expected ID %d, got %d", sent.ID, received.ID)
		}
		if received.Level != models.LevelError {
			t.Errorf("expected level error, got %s", received.Level)
		}
		if received.Message != "Failed to load map data" {
			t.Errorf("unexpected message %q", received.Message)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for notification")
	}
}

func TestBroadcaster_RecentExpiresAfterLifetime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBroadcaster(WithClock(clock))

	b.Warning("first")
	clock.Advance(3 * time.Second)
	b.Success("second")

	if got := len(b.Recent()); got != 2 {
		t.Fatalf("expected 2 recent notifications, got %d", got)
	}

	clock.Advance(2 * time.Second)
	recent := b.Recent()
	if len(recent) != 1 || recent[0].Message != "second" {
		t.Fatalf("expected only the second notification, got %+v", recent)
	}

	clock.Advance(3 * time.Second)
	if got := len(b.Recent()); got != 0 {
		t.Errorf("expected no recent notifications, got %d", got)
	}
}

func TestBroadcaster_RecentIsBounded(t *testing.T) {
	b := newTestBroadcaster(WithClock(clockwork.NewFakeClock()), WithMaxRecent(3))

	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		b.Info(msg)
	}

	recent := b.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent notifications, got %d", len(recent))
	}
	if recent[0].Message != "c" || recent[2].Message != "e" {
		t.Errorf("expected the newest three in order, got %+v", recent)
	}
}

func TestBroadcaster_ConcurrentSubscribeNotify(t *testing.T) {
	b := newTestBroadcaster()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ch := b.Subscribe()
			go func() {
				for range ch {
				}
			}()
			time.Sleep(5 * time.Millisecond)
			b.Unsubscribe(id)
		}()
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Info("refresh")
		}()
	}

	wg.Wait()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBroadcaster_SlowSubscriber(t *testing.T) {
	b := newTestBroadcaster()

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	// Fill the buffer (100) + 1 more
	for i := 0; i < 101; i++ {
		b.Info("tick")
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:

	if count != 100 {
		t.Errorf("expected 100 buffered notifications, got %d", count)
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := newTestBroadcaster()

	var channels []<-chan models.Notification
	for i := 0; i < 5; i++ {
		_, ch := b.Subscribe()
		channels = append(channels, ch)
	}
	b.Info("before close")

	b.Close()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", b.SubscriberCount())
	}
	if len(b.Recent()) != 0 {
		t.Error("expected recent list to be cleared on close")
	}

	for i, ch := range channels {
		<-ch // the notification sent before close
		select {
		case _, ok := <-ch:
			if ok {
				t.Errorf("channel %d should be closed", i)
			}
		default:
			t.Errorf("channel %d should be closed and readable", i)
		}
	}

	_, late := b.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribe after close should return a closed channel")
	}
	b.Error("dropped")
	if len(b.Recent()) != 0 {
		t.Error("notifications after close should be dropped")
	}
}

func TestBroadcaster_Metrics(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	b := newTestBroadcaster(WithMetrics(metrics))

	b.Error("one")
	b.Error("two")
	b.Warning("three")

	if got := testutil.ToFloat64(metrics.Notifications.WithLabelValues("error")); got != 2 {
		t.Errorf("expected 2 error notifications, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Notifications.WithLabelValues("warning")); got != 1 {
		t.Errorf("expected 1 warning notification, got %v", got)
	}
}
