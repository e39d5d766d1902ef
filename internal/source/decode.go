package source

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-relief-map/internal/geo"
	"github.com/mr1hm/go-relief-map/internal/models"
)

// DecodeReport counts the records that were dropped while decoding.
type DecodeReport struct {
	SkippedDisasters   int
	SkippedCenters     int
	SkippedAllocations int
}

func (r DecodeReport) Skipped() int {
	return r.SkippedDisasters + r.SkippedCenters + r.SkippedAllocations
}

type mapDataResponse struct {
	Disasters []json.RawMessage `json:"disasters"`
	Centers   []json.RawMessage `json:"centers"`
}

type dashboardResponse struct {
	Stats             models.Stats      `json:"stats"`
	RecentDisasters   []json.RawMessage `json:"recent_disasters"`
	RecentAllocations []json.RawMessage `json:"recent_allocations"`
}

type disasterRecord struct {
	ID                 *int64   `json:"id"`
	Name               string   `json:"name"`
	Type               string   `json:"type"`
	DisasterType       string   `json:"disaster_type"`
	Severity           int      `json:"severity"`
	AffectedPopulation int64    `json:"affected_population"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	CreatedAt          string   `json:"created_at"`
}

type centerRecord struct {
	ID        *int64   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Capacity  int      `json:"capacity"`
	Occupancy int      `json:"occupancy"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// DecodeMapData parses a /api/map_data body. Each record is decoded on its
// own so one malformed record is skipped without failing the batch. Only a
// body that is not a JSON object returns an error.
func DecodeMapData(data []byte) (models.Snapshot, DecodeReport, error) {
	var resp mapDataResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.Snapshot{}, DecodeReport{}, fmt.Errorf("error decoding map data: %w", err)
	}

	var report DecodeReport
	snap := models.Snapshot{
		Disasters: make([]models.DisasterPoint, 0, len(resp.Disasters)),
		Centers:   make([]models.CenterPoint, 0, len(resp.Centers)),
	}

	for _, raw := range resp.Disasters {
		d, err := decodeDisaster(raw)
		if err != nil {
			report.SkippedDisasters++
			continue
		}
		snap.Disasters = append(snap.Disasters, d)
	}
	for _, raw := range resp.Centers {
		c, err := decodeCenter(raw)
		if err != nil {
			report.SkippedCenters++
			continue
		}
		snap.Centers = append(snap.Centers, c)
	}

	return snap, report, nil
}

// DecodeDashboard parses a /api/dashboard_stats body. Recent disasters go
// through the same validation as map records; recent disasters without
// coordinates are kept since the list does not place them on the map.
func DecodeDashboard(data []byte) (models.DashboardStats, DecodeReport, error) {
	var resp dashboardResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.DashboardStats{}, DecodeReport{}, fmt.Errorf("error decoding dashboard stats: %w", err)
	}

	var report DecodeReport
	stats := models.DashboardStats{
		Stats:             resp.Stats,
		RecentDisasters:   make([]models.DisasterPoint, 0, len(resp.RecentDisasters)),
		RecentAllocations: make([]models.Allocation, 0, len(resp.RecentAllocations)),
	}

	for _, raw := range resp.RecentDisasters {
		var rec disasterRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ID == nil {
			report.SkippedDisasters++
			continue
		}
		stats.RecentDisasters = append(stats.RecentDisasters, rec.toPoint())
	}
	for _, raw := range resp.RecentAllocations {
		var a models.Allocation
		if err := json.Unmarshal(raw, &a); err != nil {
			report.SkippedAllocations++
			continue
		}
		stats.RecentAllocations = append(stats.RecentAllocations, a)
	}

	return stats, report, nil
}

func decodeDisaster(raw json.RawMessage) (models.DisasterPoint, error) {
	var rec disasterRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.DisasterPoint{}, err
	}
	if rec.ID == nil {
		return models.DisasterPoint{}, fmt.Errorf("disaster without id")
	}
	if rec.Latitude == nil || rec.Longitude == nil {
		return models.DisasterPoint{}, fmt.Errorf("disaster %d: missing coordinates", *rec.ID)
	}

	d := rec.toPoint()
	if !d.Location.Valid() {
		return models.DisasterPoint{}, fmt.Errorf("disaster %d: invalid coordinates %v", d.ID, d.Location)
	}
	return d, nil
}

func (rec disasterRecord) toPoint() models.DisasterPoint {
	category := rec.Type
	if category == "" {
		category = rec.DisasterType
	}

	d := models.DisasterPoint{
		Name:               rec.Name,
		Category:           models.ParseDisasterCategory(category),
		Severity:           rec.Severity,
		AffectedPopulation: max(rec.AffectedPopulation, 0),
		CreatedAt:          parseTimestamp(rec.CreatedAt),
	}
	if rec.ID != nil {
		d.ID = *rec.ID
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		d.Location = geo.Point{Lat: *rec.Latitude, Lon: *rec.Longitude}
	}
	return d
}

func decodeCenter(raw json.RawMessage) (models.CenterPoint, error) {
	var rec centerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.CenterPoint{}, err
	}
	if rec.ID == nil {
		return models.CenterPoint{}, fmt.Errorf("center without id")
	}
	if rec.Latitude == nil || rec.Longitude == nil {
		return models.CenterPoint{}, fmt.Errorf("center %d: missing coordinates", *rec.ID)
	}

	c := models.CenterPoint{
		ID:        *rec.ID,
		Name:      rec.Name,
		Category:  models.ParseCenterCategory(rec.Type),
		Capacity:  rec.Capacity,
		Occupancy: max(rec.Occupancy, 0),
		Location:  geo.Point{Lat: *rec.Latitude, Lon: *rec.Longitude},
	}
	if !c.Location.Valid() {
		return models.CenterPoint{}, fmt.Errorf("center %d: invalid coordinates %v", c.ID, c.Location)
	}
	return c, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts RFC 3339 and zone-less ISO-8601 (read as UTC).
// Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
