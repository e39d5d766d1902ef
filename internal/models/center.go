package models

import (
	"strings"

	"github.com/mr1hm/go-relief-map/internal/geo"
)

type CenterCategory string

const (
	CenterShelter      CenterCategory = "shelter"
	CenterMedical      CenterCategory = "medical"
	CenterDistribution CenterCategory = "distribution"
	CenterEmergency    CenterCategory = "emergency"
)

// ParseCenterCategory normalizes a backend type string. Unknown values are
// kept as-is so they can still be displayed.
func ParseCenterCategory(s string) CenterCategory {
	return CenterCategory(strings.ToLower(strings.TrimSpace(s)))
}

type CenterPoint struct {
	ID        int64
	Name      string
	Category  CenterCategory
	Capacity  int
	Occupancy int // may exceed Capacity, not enforced here
	Location  geo.Point
}
