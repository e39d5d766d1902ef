package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine_SamePointIsZero(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 39.8283, Lon: -98.5795},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 90, Lon: 0},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, Haversine(p, p), "distance from %v to itself", p)
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	pairs := [][2]Point{
		{{Lat: 40.7128, Lon: -74.0060}, {Lat: 34.0522, Lon: -118.2437}},
		{{Lat: 51.5074, Lon: -0.1278}, {Lat: 48.8566, Lon: 2.3522}},
		{{Lat: -10, Lon: 179.5}, {Lat: 10, Lon: -179.5}},
	}
	for _, pair := range pairs {
		assert.InDelta(t, Haversine(pair[0], pair[1]), Haversine(pair[1], pair[0]), 1e-9)
	}
}

func TestHaversine_KnownDistances(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
	}{
		{"one degree of latitude", Point{Lat: 0, Lon: 0}, Point{Lat: 1, Lon: 0}, 111.195},
		{"one degree of longitude at equator", Point{Lat: 0, Lon: 0}, Point{Lat: 0, Lon: 1}, 111.195},
		{"quarter meridian", Point{Lat: 0, Lon: 0}, Point{Lat: 90, Lon: 0}, math.Pi / 2 * EarthRadiusKm},
		{"new york to los angeles", Point{Lat: 40.7128, Lon: -74.0060}, Point{Lat: 34.0522, Lon: -118.2437}, 3935.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Haversine(tt.a, tt.b), 0.5)
		})
	}
}

func TestHaversine_AntipodesAreFinite(t *testing.T) {
	halfCircumference := math.Pi * EarthRadiusKm

	assert.InDelta(t, halfCircumference, Haversine(Point{Lat: -86.78, Lon: -179}, Point{Lat: 86.78, Lon: 1}), 0.01)

	for lat := -90.0; lat <= 90; lat += 0.73 {
		for lon := -180.0; lon <= 0; lon += 1.37 {
			a := Point{Lat: lat, Lon: lon}
			b := Point{Lat: -lat, Lon: lon + 180}
			d := Haversine(a, b)
			if math.IsNaN(d) || math.Abs(d-halfCircumference) > 0.01 {
				t.Fatalf("Haversine(%v, %v) = %v, want %.3f", a, b, d, halfCircumference)
			}
		}
	}
}

func TestPoint_Valid(t *testing.T) {
	tests := []struct {
		p    Point
		want bool
	}{
		{Point{Lat: 0, Lon: 0}, true},
		{Point{Lat: 90, Lon: 180}, true},
		{Point{Lat: -90, Lon: -180}, true},
		{Point{Lat: 90.1, Lon: 0}, false},
		{Point{Lat: 0, Lon: -180.5}, false},
		{Point{Lat: math.NaN(), Lon: 0}, false},
		{Point{Lat: 0, Lon: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.Valid(), "%v", tt.p)
	}
}

func TestBoundsOf(t *testing.T) {
	b, ok := BoundsOf(
		Point{Lat: 10, Lon: 20},
		Point{Lat: 30, Lon: 40},
		Point{Lat: 15, Lon: 25},
	)
	assert.True(t, ok)
	assert.InDelta(t, 10, b.SouthWest.Lat, 1e-9)
	assert.InDelta(t, 20, b.SouthWest.Lon, 1e-9)
	assert.InDelta(t, 30, b.NorthEast.Lat, 1e-9)
	assert.InDelta(t, 40, b.NorthEast.Lon, 1e-9)
}

func TestBoundsOf_SkipsInvalid(t *testing.T) {
	b, ok := BoundsOf(Point{Lat: math.NaN(), Lon: 0}, Point{Lat: 5, Lon: 6})
	assert.True(t, ok)
	assert.InDelta(t, 5, b.SouthWest.Lat, 1e-9)
	assert.InDelta(t, 5, b.NorthEast.Lat, 1e-9)

	_, ok = BoundsOf()
	assert.False(t, ok)

	_, ok = BoundsOf(Point{Lat: 100, Lon: 0})
	assert.False(t, ok)
}
