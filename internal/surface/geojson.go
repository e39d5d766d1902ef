// Package surface provides the map surface the overlay engine draws on when
// the map widget lives in a browser: attached layers are published as a
// GeoJSON FeatureCollection and clicks are routed back to the markers.
package surface

import (
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-relief-map/internal/geo"
	"github.com/mr1hm/go-relief-map/internal/overlay"
)

// Viewport is the area the map was last asked to show.
type Viewport struct {
	Bounds  geo.Bounds `json:"bounds"`
	Padding int        `json:"padding"`
}

type GeoJSON struct {
	mu       sync.RWMutex
	layers   map[overlay.LayerKind]*overlay.Layer
	viewport *Viewport
}

func NewGeoJSON() *GeoJSON {
	return &GeoJSON{
		layers: make(map[overlay.LayerKind]*overlay.Layer),
	}
}

func (s *GeoJSON) AttachLayer(l *overlay.Layer) {
	s.mu.Lock()
	s.layers[l.Kind()] = l
	s.mu.Unlock()
}

func (s *GeoJSON) DetachLayer(kind overlay.LayerKind) {
	s.mu.Lock()
	delete(s.layers, kind)
	s.mu.Unlock()
}

func (s *GeoJSON) FitBounds(b geo.Bounds, padding int) {
	s.mu.Lock()
	s.viewport = &Viewport{Bounds: b, Padding: padding}
	s.mu.Unlock()
}

// Attached returns the kinds of the attached layers in name order.
func (s *GeoJSON) Attached() []overlay.LayerKind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]overlay.LayerKind, 0, len(s.layers))
	for k := range s.layers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (s *GeoJSON) Viewport() (Viewport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.viewport == nil {
		return Viewport{}, false
	}
	return *s.viewport, true
}

// FeatureCollection renders every marker of every attached layer as a point
// feature. The collection's bbox is the current viewport, if any.
func (s *GeoJSON) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, kind := range s.Attached() {
		l, ok := s.layer(kind)
		if !ok {
			continue
		}
		for _, m := range l.Markers() {
			fc.Append(markerFeature(m))
		}
	}

	if vp, ok := s.Viewport(); ok {
		fc.BBox = geojson.NewBBox(orb.Bound{
			Min: orb.Point{vp.Bounds.SouthWest.Lon, vp.Bounds.SouthWest.Lat},
			Max: orb.Point{vp.Bounds.NorthEast.Lon, vp.Bounds.NorthEast.Lat},
		})
	}
	return fc
}

// Click forwards a click to the marker on an attached layer.
func (s *GeoJSON) Click(kind overlay.LayerKind, id int64) bool {
	l, ok := s.layer(kind)
	if !ok {
		return false
	}
	return l.Click(id)
}

// SetPopupOpen records a popup opening or closing on an attached layer.
func (s *GeoJSON) SetPopupOpen(kind overlay.LayerKind, id int64, open bool) bool {
	l, ok := s.layer(kind)
	if !ok {
		return false
	}
	return l.SetPopupOpen(id, open)
}

func (s *GeoJSON) layer(kind overlay.LayerKind) (*overlay.Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[kind]
	return l, ok
}

func markerFeature(m overlay.Marker) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{m.Position.Lon, m.Position.Lat})
	f.ID = m.ID

	for k, v := range m.Properties {
		f.Properties[k] = v
	}
	f.Properties["id"] = m.ID
	f.Properties["layer"] = string(m.Layer)
	f.Properties["title"] = m.Title
	f.Properties["shape"] = m.Shape
	f.Properties["color"] = m.Color
	f.Properties["size"] = m.Size
	f.Properties["popup_open"] = m.PopupOpen
	if m.Label != "" {
		f.Properties["label"] = m.Label
	}
	if m.Accent != "" {
		f.Properties["accent"] = m.Accent
	}
	return f
}
