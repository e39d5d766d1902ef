package overlay

import (
	"fmt"
	"sync"

	"github.com/mr1hm/go-relief-map/internal/geo"
)

// LayerKind names one of the two marker layers.
type LayerKind string

const (
	DisasterLayer LayerKind = "disasters"
	CenterLayer   LayerKind = "centers"
)

// ParseLayerKind accepts the plural layer name or its singular form.
func ParseLayerKind(s string) (LayerKind, error) {
	switch s {
	case "disasters", "disaster":
		return DisasterLayer, nil
	case "centers", "center":
		return CenterLayer, nil
	default:
		return "", fmt.Errorf("unknown layer: %q", s)
	}
}

// Marker is one point drawn on a layer. Everything except PopupOpen is
// derived from the source record on every render pass.
type Marker struct {
	ID         int64
	Layer      LayerKind
	Position   geo.Point
	Title      string
	Label      string
	Shape      string
	Color      string
	Size       int
	Accent     string
	Properties map[string]any
	PopupOpen  bool
	OnClick    func()
}

// ReconcileStats describes how a Replace call changed a layer.
type ReconcileStats struct {
	Added   int
	Kept    int
	Removed int
}

// Layer is a keyed group of markers. Replace swaps the whole marker set
// under one write lock, so readers never observe a partially updated layer.
type Layer struct {
	kind LayerKind

	mu      sync.RWMutex
	markers map[int64]*Marker
	order   []int64
}

func NewLayer(kind LayerKind) *Layer {
	return &Layer{
		kind:    kind,
		markers: make(map[int64]*Marker),
	}
}

func (l *Layer) Kind() LayerKind {
	return l.kind
}

// Replace reconciles the layer against markers by ID. Markers whose ID is
// already present keep their popup state; IDs not in markers are dropped.
// When an ID repeats, the last occurrence wins.
func (l *Layer) Replace(markers []Marker) ReconcileStats {
	next := make(map[int64]*Marker, len(markers))
	order := make([]int64, 0, len(markers))
	for i := range markers {
		m := markers[i]
		m.Layer = l.kind
		if _, seen := next[m.ID]; !seen {
			order = append(order, m.ID)
		}
		next[m.ID] = &m
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var stats ReconcileStats
	for id, m := range next {
		if old, ok := l.markers[id]; ok {
			m.PopupOpen = old.PopupOpen
			stats.Kept++
		} else {
			stats.Added++
		}
	}
	for id := range l.markers {
		if _, ok := next[id]; !ok {
			stats.Removed++
		}
	}

	l.markers = next
	l.order = order
	return stats
}

// Markers returns a copy of the current markers in render order.
func (l *Layer) Markers() []Marker {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Marker, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.markers[id])
	}
	return out
}

func (l *Layer) Marker(id int64) (Marker, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.markers[id]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.markers)
}

// SetPopupOpen records whether the marker's popup is showing.
func (l *Layer) SetPopupOpen(id int64, open bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.markers[id]
	if !ok {
		return false
	}
	m.PopupOpen = open
	return true
}

// Click runs the marker's click handler. The handler is invoked without the
// layer lock held so it may call back into the engine.
func (l *Layer) Click(id int64) bool {
	l.mu.RLock()
	m, ok := l.markers[id]
	var onClick func()
	if ok {
		onClick = m.OnClick
	}
	l.mu.RUnlock()

	if !ok {
		return false
	}
	if onClick != nil {
		onClick()
	}
	return true
}
