package geo

import (
	"github.com/golang/geo/s2"
)

// Bounds is a lat/lon rectangle given by its south-west and north-east corners.
// When the rectangle crosses the antimeridian SouthWest.Lon > NorthEast.Lon.
type Bounds struct {
	SouthWest Point `json:"south_west"`
	NorthEast Point `json:"north_east"`
}

// BoundsOf returns the smallest rectangle containing every valid point.
// Invalid points are ignored; ok is false when no valid point remains.
func BoundsOf(points ...Point) (b Bounds, ok bool) {
	rect := s2.EmptyRect()
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		rect = rect.AddPoint(s2.LatLngFromDegrees(p.Lat, p.Lon))
	}
	if rect.IsEmpty() {
		return Bounds{}, false
	}

	lo, hi := rect.Lo(), rect.Hi()
	return Bounds{
		SouthWest: Point{Lat: lo.Lat.Degrees(), Lon: lo.Lng.Degrees()},
		NorthEast: Point{Lat: hi.Lat.Degrees(), Lon: hi.Lng.Degrees()},
	}, true
}
