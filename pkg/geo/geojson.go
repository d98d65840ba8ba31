package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// OrbPoint converts to an orb point (lon, lat order).
func (p Point) OrbPoint() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// PointFeature creates a GeoJSON point feature with the given properties.
func PointFeature(p Point, props map[string]interface{}) *geojson.Feature {
	f := geojson.NewFeature(p.OrbPoint())
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}
