// Package app mounts one map and dashboard view: it owns the overlay engine,
// the refresh scheduler and the event dispatcher for as long as the view is
// mounted, and tears them down in order on unmount.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-relief-map/internal/dashboard"
	"github.com/mr1hm/go-relief-map/internal/geo"
	"github.com/mr1hm/go-relief-map/internal/models"
	"github.com/mr1hm/go-relief-map/internal/notify"
	"github.com/mr1hm/go-relief-map/internal/observability"
	"github.com/mr1hm/go-relief-map/internal/overlay"
	"github.com/mr1hm/go-relief-map/internal/poller"
	"github.com/mr1hm/go-relief-map/internal/source"
	"github.com/mr1hm/go-relief-map/internal/surface"
	"github.com/mr1hm/go-relief-map/internal/worker"
)

const (
	DefaultMapInterval    = 2 * time.Minute
	DefaultStatsInterval  = 30 * time.Second
	DefaultNearbyRadiusKm = 100.0
	DefaultEventBuffer    = 20

	MapLoadFailedMessage = "Failed to load map data"
)

var ErrMarkerNotFound = errors.New("marker not found")

type Deps struct {
	Source   source.Source
	Notifier *notify.Broadcaster
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	MapInterval    time.Duration
	StatsInterval  time.Duration
	NearbyRadiusKm float64
	FitPadding     int
	EventBuffer    int
}

// View is one mounted map view. All state changes run on its dispatcher.
type View struct {
	source     source.Source
	engine     *overlay.Engine
	surface    *surface.GeoJSON
	board      *dashboard.Board
	notifier   *notify.Broadcaster
	dispatcher *worker.Dispatcher
	scheduler  *poller.Scheduler
	logger     *slog.Logger
	radiusKm   float64

	cancel      context.CancelFunc
	unmountOnce sync.Once
}

// Mount builds a view and starts its refresh tasks. Each task fetches once
// right away and then on its interval until Unmount.
func Mount(ctx context.Context, deps Deps) (*View, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("mount: source is required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetricsForTesting()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewBroadcaster(
			notify.WithClock(deps.Clock),
			notify.WithLogger(deps.Logger),
			notify.WithMetrics(deps.Metrics),
		)
	}
	if deps.MapInterval <= 0 {
		deps.MapInterval = DefaultMapInterval
	}
	if deps.StatsInterval <= 0 {
		deps.StatsInterval = DefaultStatsInterval
	}
	if deps.NearbyRadiusKm <= 0 {
		deps.NearbyRadiusKm = DefaultNearbyRadiusKm
	}
	if deps.EventBuffer <= 0 {
		deps.EventBuffer = DefaultEventBuffer
	}

	surf := surface.NewGeoJSON()
	v := &View{
		source:  deps.Source,
		surface: surf,
		engine: overlay.NewEngine(surf, overlay.Options{
			Padding: deps.FitPadding,
			Logger:  deps.Logger,
			Metrics: deps.Metrics,
		}),
		board:      dashboard.NewBoard(deps.Notifier, deps.Clock),
		notifier:   deps.Notifier,
		dispatcher: worker.NewDispatcher(deps.EventBuffer, deps.Logger),
		scheduler: poller.New(
			poller.WithClock(deps.Clock),
			poller.WithLogger(deps.Logger),
			poller.WithMetrics(deps.Metrics),
		),
		logger:   deps.Logger,
		radiusKm: deps.NearbyRadiusKm,
	}

	tasks := []poller.Task{
		{Name: "map_data", Interval: deps.MapInterval, Run: v.RefreshMap},
		{Name: "dashboard_stats", Interval: deps.StatsInterval, Run: v.RefreshStats},
	}
	for _, t := range tasks {
		if err := v.scheduler.Add(t); err != nil {
			return nil, fmt.Errorf("mount: %w", err)
		}
	}

	ctx, v.cancel = context.WithCancel(ctx)
	v.dispatcher.Start(ctx)
	if err := v.scheduler.Start(ctx); err != nil {
		v.cancel()
		v.dispatcher.Stop()
		return nil, fmt.Errorf("mount: %w", err)
	}

	v.logger.Info("view mounted",
		"map_interval", deps.MapInterval,
		"stats_interval", deps.StatsInterval,
		"nearby_radius_km", deps.NearbyRadiusKm,
	)
	return v, nil
}

// Unmount stops the refresh tasks, drains the dispatcher, detaches the
// layers and closes notification streams. Later calls are no-ops.
func (v *View) Unmount() {
	v.unmountOnce.Do(func() {
		v.scheduler.Stop()
		v.dispatcher.Stop()
		v.cancel()
		v.engine.Close()
		v.notifier.Close()
		v.logger.Info("view unmounted")
	})
}

// RefreshMap fetches map data and applies it. On failure the rendered state
// is left as it was and an error notification is published.
func (v *View) RefreshMap(ctx context.Context) error {
	snap, err := v.source.FetchMapData(ctx)
	if err != nil {
		if ctx.Err() == nil {
			v.logger.Error("error loading map data", "error", err)
			v.notifier.Error(MapLoadFailedMessage)
		}
		return fmt.Errorf("refresh map: %w", err)
	}

	return v.dispatcher.Do(ctx, "apply_map_data", func(ctx context.Context) error {
		disasters, centers := v.engine.Apply(snap)
		v.logger.Debug("map data applied",
			"disasters", disasters.Rendered,
			"centers", centers.Rendered,
			"skipped", disasters.Skipped+centers.Skipped,
		)
		return nil
	})
}

// RefreshStats fetches dashboard statistics and applies them.
func (v *View) RefreshStats(ctx context.Context) error {
	stats, err := v.source.FetchDashboard(ctx)
	if err != nil {
		if ctx.Err() == nil {
			v.logger.Error("error loading dashboard data", "error", err)
			v.board.Failed()
		}
		return fmt.Errorf("refresh stats: %w", err)
	}

	return v.dispatcher.Do(ctx, "apply_dashboard_stats", func(ctx context.Context) error {
		v.board.Update(stats)
		return nil
	})
}

func (v *View) SetLayerVisible(ctx context.Context, kind overlay.LayerKind, visible bool) error {
	return v.dispatcher.Do(ctx, "set_layer_visible", func(ctx context.Context) error {
		return v.engine.SetLayerVisible(kind, visible)
	})
}

// Click delivers a marker click. Markers on hidden layers cannot be clicked.
func (v *View) Click(ctx context.Context, kind overlay.LayerKind, id int64) error {
	return v.dispatcher.Do(ctx, "click", func(ctx context.Context) error {
		if !v.surface.Click(kind, id) {
			return fmt.Errorf("%s %d: %w", kind, id, ErrMarkerNotFound)
		}
		return nil
	})
}

func (v *View) SetPopupOpen(ctx context.Context, kind overlay.LayerKind, id int64, open bool) error {
	return v.dispatcher.Do(ctx, "popup", func(ctx context.Context) error {
		if !v.surface.SetPopupOpen(kind, id, open) {
			return fmt.Errorf("%s %d: %w", kind, id, ErrMarkerNotFound)
		}
		return nil
	})
}

// ShowNearby narrows the center layer to the centers near a disaster. A
// radius of zero or less uses the configured default.
func (v *View) ShowNearby(ctx context.Context, disasterID int64, radiusKm float64) ([]overlay.NearbyCenter, error) {
	if radiusKm <= 0 {
		radiusKm = v.radiusKm
	}

	var nearby []overlay.NearbyCenter
	err := v.dispatcher.Do(ctx, "show_nearby", func(ctx context.Context) error {
		var err error
		nearby, err = v.engine.ShowNearby(disasterID, radiusKm)
		return err
	})
	return nearby, err
}

func (v *View) DisasterDetail(ctx context.Context, id int64) (overlay.DisasterDetail, error) {
	var detail overlay.DisasterDetail
	err := v.dispatcher.Do(ctx, "disaster_detail", func(ctx context.Context) error {
		var err error
		detail, err = v.engine.DisasterDetail(id)
		return err
	})
	return detail, err
}

func (v *View) CenterDetail(ctx context.Context, id int64) (overlay.CenterDetail, error) {
	var detail overlay.CenterDetail
	err := v.dispatcher.Do(ctx, "center_detail", func(ctx context.Context) error {
		var err error
		detail, err = v.engine.CenterDetail(id)
		return err
	})
	return detail, err
}

// Nearby ranks the current snapshot's centers around an arbitrary point
// without touching the map. A radius of zero or less uses the default.
func (v *View) Nearby(origin geo.Point, radiusKm float64) []overlay.NearbyCenter {
	if radiusKm <= 0 {
		radiusKm = v.radiusKm
	}
	return overlay.RankNearby(origin, v.engine.Snapshot().Centers, radiusKm)
}

// MapState is the overlay state plus the current viewport.
type MapState struct {
	overlay.State
	Viewport *surface.Viewport `json:"viewport,omitempty"`
}

func (v *View) State() MapState {
	st := MapState{State: v.engine.State()}
	if vp, ok := v.surface.Viewport(); ok {
		st.Viewport = &vp
	}
	return st
}

func (v *View) FeatureCollection() *geojson.FeatureCollection {
	return v.surface.FeatureCollection()
}

func (v *View) Dashboard() dashboard.View {
	return v.board.View()
}

// DismissAlert hides the dashboard emergency banner.
func (v *View) DismissAlert(ctx context.Context) error {
	return v.dispatcher.Do(ctx, "dismiss_alert", func(ctx context.Context) error {
		v.board.DismissAlert()
		return nil
	})
}

func (v *View) Notifications() []models.Notification {
	return v.notifier.Recent()
}

// Subscribe streams notifications until the returned cancel func is called
// or the view is unmounted.
func (v *View) Subscribe() (<-chan models.Notification, func()) {
	id, ch := v.notifier.Subscribe()
	return ch, func() { v.notifier.Unsubscribe(id) }
}
