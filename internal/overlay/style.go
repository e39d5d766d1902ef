package overlay

import "github.com/mr1hm/go-relief-map/internal/models"

const (
	colorGreen  = "#28a745"
	colorYellow = "#ffc107"
	colorOrange = "#fd7e14"
	colorRed    = "#dc3545"
	colorPurple = "#6f42c1"
	colorCyan   = "#17a2b8"
)

var severityColors = map[int]string{
	1: colorGreen,
	2: colorYellow,
	3: colorOrange,
	4: colorRed,
	5: colorPurple,
}

var severitySizes = map[int]int{
	1: 20,
	2: 25,
	3: 30,
	4: 35,
	5: 40,
}

var severityBadges = map[int]string{
	1: "success",
	2: "warning",
	3: "info",
	4: "danger",
	5: "dark",
}

var centerColors = map[models.CenterCategory]string{
	models.CenterShelter:      colorGreen,
	models.CenterMedical:      colorYellow,
	models.CenterDistribution: colorCyan,
	models.CenterEmergency:    colorRed,
}

// SeverityColor maps a severity level to its marker color. Levels outside
// 1-5 get the level-4 color so unknown severities read as high danger.
func SeverityColor(severity int) string {
	if c, ok := severityColors[severity]; ok {
		return c
	}
	return colorRed
}

// SeveritySize maps a severity level to a marker diameter in pixels.
func SeveritySize(severity int) int {
	if s, ok := severitySizes[severity]; ok {
		return s
	}
	return 30
}

// SeverityBadgeClass maps a severity level to a badge style name.
func SeverityBadgeClass(severity int) string {
	if b, ok := severityBadges[severity]; ok {
		return b
	}
	return "danger"
}

// CenterColor maps a center category to its marker color.
func CenterColor(category models.CenterCategory) string {
	if c, ok := centerColors[category]; ok {
		return c
	}
	return colorCyan
}

// OccupancyRate returns occupancy as a percentage of capacity. ok is false
// when capacity is not positive, in which case the rate is 0.
func OccupancyRate(occupancy, capacity int) (rate float64, ok bool) {
	if capacity <= 0 {
		return 0, false
	}
	return float64(occupancy) / float64(capacity) * 100, true
}

// OccupancyColor maps an occupancy percentage to an accent color.
func OccupancyColor(rate float64) string {
	switch {
	case rate < 50:
		return colorGreen
	case rate < 75:
		return colorYellow
	case rate < 90:
		return colorOrange
	default:
		return colorRed
	}
}
