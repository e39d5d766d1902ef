package overlay

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/mr1hm/go-relief-map/internal/display"
	"github.com/mr1hm/go-relief-map/internal/geo"
	"github.com/mr1hm/go-relief-map/internal/models"
	"github.com/mr1hm/go-relief-map/internal/observability"
)

var ErrNotFound = errors.New("not found")

const DefaultFitPadding = 20

// RenderResult summarizes one render pass over a layer.
type RenderResult struct {
	Layer    LayerKind `json:"layer"`
	Rendered int       `json:"rendered"`
	Skipped  int       `json:"skipped"`
	Added    int       `json:"added"`
	Kept     int       `json:"kept"`
	Removed  int       `json:"removed"`
}

// Selection holds the IDs of the currently selected disaster and center.
type Selection struct {
	DisasterID *int64 `json:"disaster_id"`
	CenterID   *int64 `json:"center_id"`
}

// State is a point-in-time copy of the overlay state.
type State struct {
	Visible   map[LayerKind]bool `json:"visible"`
	Markers   map[LayerKind]int  `json:"markers"`
	Selection Selection          `json:"selection"`
	Disasters int                `json:"disasters"`
	Centers   int                `json:"centers"`
	FetchedAt string             `json:"fetched_at,omitempty"`
}

type Options struct {
	Padding int
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Engine owns the overlay state for one mounted map view: the current
// snapshot, layer visibility, and selection. It is created on mount and
// discarded on unmount; nothing is kept at package scope.
type Engine struct {
	surface Surface
	padding int
	logger  *slog.Logger
	metrics *observability.Metrics

	layers map[LayerKind]*Layer

	mu               sync.RWMutex
	visible          map[LayerKind]bool
	snapshot         models.Snapshot
	selectedDisaster *int64
	selectedCenter   *int64
}

// NewEngine creates an engine drawing on surface. Both layers start
// attached and empty.
func NewEngine(surface Surface, opts Options) *Engine {
	if opts.Padding <= 0 {
		opts.Padding = DefaultFitPadding
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}

	e := &Engine{
		surface: surface,
		padding: opts.Padding,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		layers: map[LayerKind]*Layer{
			DisasterLayer: NewLayer(DisasterLayer),
			CenterLayer:   NewLayer(CenterLayer),
		},
		visible: make(map[LayerKind]bool),
	}

	for _, kind := range []LayerKind{DisasterLayer, CenterLayer} {
		e.visible[kind] = true
		surface.AttachLayer(e.layers[kind])
		e.metrics.LayerVisible.WithLabelValues(string(kind)).Set(1)
	}
	return e
}

// Layer returns the engine's layer of the given kind.
func (e *Engine) Layer(kind LayerKind) (*Layer, bool) {
	l, ok := e.layers[kind]
	return l, ok
}

// Apply replaces the current snapshot and re-renders both layers from it.
// A selection whose record is absent from the new snapshot is cleared.
func (e *Engine) Apply(snap models.Snapshot) (disasters, centers RenderResult) {
	e.mu.Lock()
	e.snapshot = snap
	if e.selectedDisaster != nil && !hasDisaster(snap.Disasters, *e.selectedDisaster) {
		e.selectedDisaster = nil
	}
	if e.selectedCenter != nil && !hasCenter(snap.Centers, *e.selectedCenter) {
		e.selectedCenter = nil
	}
	e.mu.Unlock()

	disasters = e.RenderDisasters(snap.Disasters)
	centers = e.RenderCenters(snap.Centers)
	return disasters, centers
}

// RenderDisasters replaces the disaster layer's markers with one marker per
// point. Points with invalid coordinates are skipped and counted.
func (e *Engine) RenderDisasters(points []models.DisasterPoint) RenderResult {
	markers := make([]Marker, 0, len(points))
	skipped := 0
	for _, p := range points {
		if !p.Location.Valid() {
			skipped++
			continue
		}
		markers = append(markers, e.disasterMarker(p))
	}
	return e.replace(DisasterLayer, "disaster", markers, skipped)
}

// RenderCenters replaces the center layer's markers with one marker per
// point. Points with invalid coordinates are skipped and counted.
func (e *Engine) RenderCenters(points []models.CenterPoint) RenderResult {
	markers := make([]Marker, 0, len(points))
	skipped := 0
	for _, p := range points {
		if !p.Location.Valid() {
			skipped++
			continue
		}
		markers = append(markers, e.centerMarker(p))
	}
	return e.replace(CenterLayer, "center", markers, skipped)
}

func (e *Engine) replace(kind LayerKind, recordKind string, markers []Marker, skipped int) RenderResult {
	stats := e.layers[kind].Replace(markers)

	e.metrics.RenderPasses.WithLabelValues(string(kind)).Inc()
	e.metrics.Markers.WithLabelValues(string(kind)).Set(float64(e.layers[kind].Len()))
	if skipped > 0 {
		e.metrics.RecordsSkipped.WithLabelValues(recordKind, "render").Add(float64(skipped))
		e.logger.Warn("skipped malformed points", "layer", kind, "skipped", skipped)
	}

	res := RenderResult{
		Layer:    kind,
		Rendered: stats.Added + stats.Kept,
		Skipped:  skipped,
		Added:    stats.Added,
		Kept:     stats.Kept,
		Removed:  stats.Removed,
	}
	e.logger.Debug("layer rendered", "layer", kind, "rendered", res.Rendered,
		"added", res.Added, "kept", res.Kept, "removed", res.Removed)
	return res
}

func (e *Engine) disasterMarker(p models.DisasterPoint) Marker {
	id := p.ID
	return Marker{
		ID:       p.ID,
		Position: p.Location,
		Title:    p.Name,
		Label:    strconv.Itoa(p.Severity),
		Shape:    "circle",
		Color:    SeverityColor(p.Severity),
		Size:     SeveritySize(p.Severity),
		Properties: map[string]any{
			"name":     p.Name,
			"type":     display.Capitalize(string(p.Category)),
			"severity": fmt.Sprintf("Level %d", p.Severity),
			"affected": display.FormatNumber(p.AffectedPopulation) + " people",
		},
		OnClick: func() { e.SelectDisaster(id) },
	}
}

func (e *Engine) centerMarker(p models.CenterPoint) Marker {
	id := p.ID
	rate, known := OccupancyRate(p.Occupancy, p.Capacity)
	props := map[string]any{
		"name":           p.Name,
		"type":           display.Capitalize(string(p.Category)),
		"capacity":       p.Capacity,
		"occupancy":      occupancyLabel(p.Occupancy, rate, known),
		"occupancy_rate": rate,
	}
	if !known {
		props["capacity_unknown"] = true
	}

	return Marker{
		ID:         p.ID,
		Position:   p.Location,
		Title:      p.Name,
		Shape:      "square",
		Color:      CenterColor(p.Category),
		Size:       24,
		Accent:     OccupancyColor(rate),
		Properties: props,
		OnClick:    func() { e.SelectCenter(id) },
	}
}

func occupancyLabel(occupancy int, rate float64, known bool) string {
	if !known {
		return fmt.Sprintf("%d (capacity unknown)", occupancy)
	}
	return fmt.Sprintf("%d (%.0f%%)", occupancy, math.Round(rate))
}

// SetLayerVisible attaches or detaches a layer. Setting the current state
// again does nothing.
func (e *Engine) SetLayerVisible(kind LayerKind, visible bool) error {
	layer, ok := e.layers[kind]
	if !ok {
		return fmt.Errorf("unknown layer: %q", kind)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.visible[kind] == visible {
		return nil
	}
	e.visible[kind] = visible

	if visible {
		e.surface.AttachLayer(layer)
		e.metrics.LayerVisible.WithLabelValues(string(kind)).Set(1)
	} else {
		e.surface.DetachLayer(kind)
		e.metrics.LayerVisible.WithLabelValues(string(kind)).Set(0)
	}
	e.logger.Info("layer visibility changed", "layer", kind, "visible", visible)
	return nil
}

func (e *Engine) LayerVisible(kind LayerKind) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.visible[kind]
}

func (e *Engine) SelectDisaster(id int64) {
	e.mu.Lock()
	e.selectedDisaster = &id
	e.mu.Unlock()
}

func (e *Engine) SelectCenter(id int64) {
	e.mu.Lock()
	e.selectedCenter = &id
	e.mu.Unlock()
}

func (e *Engine) Selection() Selection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Selection{
		DisasterID: copyID(e.selectedDisaster),
		CenterID:   copyID(e.selectedCenter),
	}
}

// Snapshot returns the snapshot last passed to Apply.
func (e *Engine) Snapshot() models.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := State{
		Visible: map[LayerKind]bool{},
		Markers: map[LayerKind]int{},
		Selection: Selection{
			DisasterID: copyID(e.selectedDisaster),
			CenterID:   copyID(e.selectedCenter),
		},
		Disasters: len(e.snapshot.Disasters),
		Centers:   len(e.snapshot.Centers),
	}
	for kind, l := range e.layers {
		st.Visible[kind] = e.visible[kind]
		st.Markers[kind] = l.Len()
	}
	if !e.snapshot.FetchedAt.IsZero() {
		st.FetchedAt = e.snapshot.FetchedAt.UTC().Format(time.RFC3339)
	}
	return st
}

// ShowNearby narrows the center layer to the centers within radiusKm of
// the disaster and fits the viewport to the disaster and those centers.
// The next Apply restores the full center layer.
func (e *Engine) ShowNearby(disasterID int64, radiusKm float64) ([]NearbyCenter, error) {
	e.mu.RLock()
	d, ok := findDisaster(e.snapshot.Disasters, disasterID)
	centers := e.snapshot.Centers
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("disaster %d: %w", disasterID, ErrNotFound)
	}

	nearby := RankNearby(d.Location, centers, radiusKm)
	points := make([]models.CenterPoint, len(nearby))
	coords := make([]geo.Point, 0, len(nearby)+1)
	coords = append(coords, d.Location)
	for i, n := range nearby {
		points[i] = n.Center
		coords = append(coords, n.Center.Location)
	}

	e.RenderCenters(points)
	e.SelectDisaster(disasterID)

	if len(nearby) > 0 {
		if b, ok := geo.BoundsOf(coords...); ok {
			e.surface.FitBounds(b, e.padding)
		}
	}

	e.logger.Info("showing nearby centers", "disaster_id", disasterID, "radius_km", radiusKm, "count", len(nearby))
	return nearby, nil
}

// Close detaches every visible layer from the surface.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for kind, visible := range e.visible {
		if visible {
			e.surface.DetachLayer(kind)
			e.visible[kind] = false
			e.metrics.LayerVisible.WithLabelValues(string(kind)).Set(0)
		}
	}
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func hasDisaster(points []models.DisasterPoint, id int64) bool {
	_, ok := findDisaster(points, id)
	return ok
}

func hasCenter(points []models.CenterPoint, id int64) bool {
	_, ok := findCenter(points, id)
	return ok
}

func findDisaster(points []models.DisasterPoint, id int64) (models.DisasterPoint, bool) {
	for _, p := range points {
		if p.ID == id {
			return p, true
		}
	}
	return models.DisasterPoint{}, false
}

func findCenter(points []models.CenterPoint, id int64) (models.CenterPoint, bool) {
	for _, p := range points {
		if p.ID == id {
			return p, true
		}
	}
	return models.CenterPoint{}, false
}
