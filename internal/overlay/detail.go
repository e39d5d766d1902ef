package overlay

import (
	"fmt"
	"math"
	"time"

	"github.com/mr1hm/go-relief-map/internal/display"
)

// DisasterDetail is the content of the disaster detail view.
type DisasterDetail struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	Severity           int       `json:"severity"`
	SeverityLabel      string    `json:"severity_label"`
	BadgeClass         string    `json:"badge_class"`
	Color              string    `json:"color"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Location           string    `json:"location"`
	AffectedPopulation int64     `json:"affected_population"`
	AffectedLabel      string    `json:"affected_label"`
	CreatedAt          time.Time `json:"created_at"`
}

// CenterDetail is the content of the relief center detail view.
type CenterDetail struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Color          string  `json:"color"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Location       string  `json:"location"`
	Capacity       int     `json:"capacity"`
	Occupancy      int     `json:"occupancy"`
	OccupancyRate  float64 `json:"occupancy_rate"`
	OccupancyLabel string  `json:"occupancy_label"`
	OccupancyColor string  `json:"occupancy_color"`
	CapacityKnown  bool    `json:"capacity_known"`
}

// DisasterDetail looks up a disaster in the current snapshot and selects it.
func (e *Engine) DisasterDetail(id int64) (DisasterDetail, error) {
	e.mu.RLock()
	d, ok := findDisaster(e.snapshot.Disasters, id)
	e.mu.RUnlock()
	if !ok {
		return DisasterDetail{}, fmt.Errorf("disaster %d: %w", id, ErrNotFound)
	}
	e.SelectDisaster(id)

	return DisasterDetail{
		ID:                 d.ID,
		Name:               d.Name,
		Type:               string(d.Category),
		Severity:           d.Severity,
		SeverityLabel:      fmt.Sprintf("Level %d", d.Severity),
		BadgeClass:         SeverityBadgeClass(d.Severity),
		Color:              SeverityColor(d.Severity),
		Latitude:           d.Location.Lat,
		Longitude:          d.Location.Lon,
		Location:           display.Coordinates(d.Location.Lat, d.Location.Lon),
		AffectedPopulation: d.AffectedPopulation,
		AffectedLabel:      display.FormatNumber(d.AffectedPopulation),
		CreatedAt:          d.CreatedAt,
	}, nil
}

// CenterDetail looks up a relief center in the current snapshot and selects it.
func (e *Engine) CenterDetail(id int64) (CenterDetail, error) {
	e.mu.RLock()
	c, ok := findCenter(e.snapshot.Centers, id)
	e.mu.RUnlock()
	if !ok {
		return CenterDetail{}, fmt.Errorf("center %d: %w", id, ErrNotFound)
	}
	e.SelectCenter(id)

	rate, known := OccupancyRate(c.Occupancy, c.Capacity)
	return CenterDetail{
		ID:             c.ID,
		Name:           c.Name,
		Type:           string(c.Category),
		Color:          CenterColor(c.Category),
		Latitude:       c.Location.Lat,
		Longitude:      c.Location.Lon,
		Location:       display.Coordinates(c.Location.Lat, c.Location.Lon),
		Capacity:       c.Capacity,
		Occupancy:      c.Occupancy,
		OccupancyRate:  math.Round(rate),
		OccupancyLabel: occupancyLabel(c.Occupancy, rate, known),
		OccupancyColor: OccupancyColor(rate),
		CapacityKnown:  known,
	}, nil
}
