package models

import (
	"strings"
	"time"

	"github.com/mr1hm/go-relief-map/internal/geo"
)

type DisasterCategory string

const (
	DisasterFlood      DisasterCategory = "flood"
	DisasterFire       DisasterCategory = "fire"
	DisasterEarthquake DisasterCategory = "earthquake"
	DisasterStorm      DisasterCategory = "storm"
	DisasterOther      DisasterCategory = "other"
)

// ParseDisasterCategory maps a backend type string to a category.
// Unrecognized values map to DisasterOther.
func ParseDisasterCategory(s string) DisasterCategory {
	switch c := DisasterCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case DisasterFlood, DisasterFire, DisasterEarthquake, DisasterStorm:
		return c
	default:
		return DisasterOther
	}
}

type DisasterPoint struct {
	ID                 int64
	Name               string
	Category           DisasterCategory
	Severity           int   // 1 (least) to 5 (most); not clamped
	AffectedPopulation int64 // never negative
	Location           geo.Point
	CreatedAt          time.Time
}
