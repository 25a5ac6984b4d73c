package geo

import (
	"fmt"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/mmcloughlin/geohash"
)

const (
	earthRadiusMeters = 6371000.0

	// Precision 6 cells are roughly 1.2km x 0.6km
	DefaultPrecision = 6
)

// CacheKey builds "{purpose}:geohash:{hash}:{radius}". Points in the same cell with the same
// radius share a key.
func CacheKey(purpose string, lat, lng float64, precision uint, radiusMeters int) string {
	if precision == 0 {
		precision = DefaultPrecision
	}
	return fmt.Sprintf("%s:geohash:%s:%d", purpose, geohash.EncodeWithPrecision(lat, lng, precision), radiusMeters)
}

// PurposePattern matches every cache key written for purpose.
func PurposePattern(purpose string) string {
	return purpose + ":geohash:*"
}

// DistanceMeters is the great-circle distance between two points.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	p1 := s2.PointFromLatLng(s2.LatLngFromDegrees(lat1, lng1))
	p2 := s2.PointFromLatLng(s2.LatLngFromDegrees(lat2, lng2))

	angle := s1.Angle(s2.ChordAngleBetweenPoints(p1, p2).Angle())
	return angle.Radians() * earthRadiusMeters
}
