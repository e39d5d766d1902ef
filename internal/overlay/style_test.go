package overlay

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mr1hm/go-relief-map/internal/models"
)

func TestSeverityColor(t *testing.T) {
	tests := []struct {
		severity int
		want     string
	}{
		{1, "#28a745"},
		{2, "#ffc107"},
		{3, "#fd7e14"},
		{4, "#dc3545"},
		{5, "#6f42c1"},
		{0, "#dc3545"},
		{-1, "#dc3545"},
		{99, "#dc3545"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityColor(tt.severity), "severity %d", tt.severity)
	}
}

func TestSeveritySize(t *testing.T) {
	for sev, want := range map[int]int{1: 20, 2: 25, 3: 30, 4: 35, 5: 40, 0: 30, 6: 30} {
		assert.Equal(t, want, SeveritySize(sev), "severity %d", sev)
	}
}

func TestCenterColor(t *testing.T) {
	assert.Equal(t, "#28a745", CenterColor(models.CenterShelter))
	assert.Equal(t, "#ffc107", CenterColor(models.CenterMedical))
	assert.Equal(t, "#17a2b8", CenterColor(models.CenterDistribution))
	assert.Equal(t, "#dc3545", CenterColor(models.CenterEmergency))
	assert.Equal(t, "#17a2b8", CenterColor("field-hospital"))
}

func TestOccupancyRate(t *testing.T) {
	rate, ok := OccupancyRate(50, 200)
	assert.True(t, ok)
	assert.Equal(t, 25.0, rate)

	rate, ok = OccupancyRate(50, 0)
	assert.False(t, ok)
	assert.False(t, math.IsNaN(rate) || math.IsInf(rate, 0))
	assert.Equal(t, 0.0, rate)

	rate, ok = OccupancyRate(0, -5)
	assert.False(t, ok)
	assert.Equal(t, 0.0, rate)

	rate, ok = OccupancyRate(120, 100)
	assert.True(t, ok)
	assert.Equal(t, 120.0, rate)
}

func TestOccupancyColor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "#28a745"},
		{49.9, "#28a745"},
		{50, "#ffc107"},
		{74.9, "#ffc107"},
		{75, "#fd7e14"},
		{89.9, "#fd7e14"},
		{90, "#dc3545"},
		{150, "#dc3545"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OccupancyColor(tt.rate), "rate %v", tt.rate)
	}
}

func TestSeverityBadgeClass(t *testing.T) {
	assert.Equal(t, "success", SeverityBadgeClass(1))
	assert.Equal(t, "dark", SeverityBadgeClass(5))
	assert.Equal(t, "danger", SeverityBadgeClass(42))
}
