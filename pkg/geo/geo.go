// Package geo provides the geofence math used to decide how close a walker is to a stop.
package geo

import (
	"math"
)

const earthRadius = 6371000 // meters

// Default geofence radii in meters.
const (
	ArriveRadius   = 18.0
	ApproachRadius = 60.0
)

// Point represents a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// DestinationPoint calculates the point reached from start after distMeters along bearing (degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lon * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)
	ang := distMeters / earthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) +
		math.Cos(lat1)*math.Sin(ang)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lon: lon2 * (180.0 / math.Pi),
	}
}

// Bearing calculates the initial bearing from p1 to p2 in degrees [0, 360).
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return math.Mod(math.Atan2(y, x)*(180.0/math.Pi)+360.0, 360.0)
}

// Zone is the proximity classification of a walker relative to a stop.
type Zone string

const (
	ZoneFar      Zone = "far"
	ZoneApproach Zone = "approach"
	ZoneArrive   Zone = "arrive"
)

// Radii holds the geofence thresholds in meters.
type Radii struct {
	Arrive   float64
	Approach float64
}

// DefaultRadii returns the standard walking-tour geofence.
func DefaultRadii() Radii {
	return Radii{Arrive: ArriveRadius, Approach: ApproachRadius}
}

// Classify maps a distance in meters onto a proximity zone.
// Both bounds are inclusive on the near side.
func (r Radii) Classify(distMeters float64) Zone {
	switch {
	case distMeters <= r.Arrive:
		return ZoneArrive
	case distMeters <= r.Approach:
		return ZoneApproach
	default:
		return ZoneFar
	}
}
