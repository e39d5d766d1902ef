package overlay

import (
	"sort"

	"github.com/mr1hm/go-relief-map/internal/geo"
	"github.com/mr1hm/go-relief-map/internal/models"
)

// NearbyCenter is a center paired with its distance from the query origin.
type NearbyCenter struct {
	Center     models.CenterPoint
	DistanceKm float64
}

// RankNearby returns the centers whose great-circle distance from origin is
// at most radiusKm, nearest first. Centers at equal distance keep their
// input order. An invalid origin or a negative or NaN radius matches nothing.
func RankNearby(origin geo.Point, centers []models.CenterPoint, radiusKm float64) []NearbyCenter {
	out := make([]NearbyCenter, 0)
	if !origin.Valid() || !(radiusKm >= 0) {
		return out
	}

	for _, c := range centers {
		if !c.Location.Valid() {
			continue
		}
		d := geo.Haversine(origin, c.Location)
		if d <= radiusKm {
			out = append(out, NearbyCenter{Center: c, DistanceKm: d})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}

// FindNearby is RankNearby without the distances.
func FindNearby(origin geo.Point, centers []models.CenterPoint, radiusKm float64) []models.CenterPoint {
	ranked := RankNearby(origin, centers, radiusKm)
	out := make([]models.CenterPoint, len(ranked))
	for i, r := range ranked {
		out[i] = r.Center
	}
	return out
}
