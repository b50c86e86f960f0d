package geo

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// polygonsOf flattens a Polygon or MultiPolygon. The boundary files
// carry no other geometry types.
func polygonsOf(geom orb.Geometry) []orb.Polygon {
	switch g := geom.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		return g
	}
	return nil
}

func containsPoint(geom orb.Geometry, p orb.Point) bool {
	for _, poly := range polygonsOf(geom) {
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

// boundaryDistance is the planar distance from p to the nearest ring
// edge of the geometry. Interior points still report their distance to
// the boundary, so callers check containment first.
func boundaryDistance(p orb.Point, geom orb.Geometry) float64 {
	min := math.MaxFloat64
	for _, poly := range polygonsOf(geom) {
		for _, ring := range poly {
			for i := 1; i < len(ring); i++ {
				if d := segmentDistance(p, ring[i-1], ring[i]); d < min {
					min = d
				}
			}
		}
	}
	return min
}

// segmentDistance is the distance from p to the closest point on the
// segment ab, clamping the projection to the segment's ends.
func segmentDistance(p, a, b orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	if dx == 0 && dy == 0 {
		return planar.Distance(p, a)
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)
	switch {
	case t < 0:
		return planar.Distance(p, a)
	case t > 1:
		return planar.Distance(p, b)
	}
	return planar.Distance(p, orb.Point{a[0] + t*dx, a[1] + t*dy})
}

// degreesToMeters converts a planar degree distance to approximate
// meters at the given latitude. Good enough for maritime zone bands;
// nothing downstream needs survey accuracy.
func degreesToMeters(degrees, lat float64) float64 {
	return degrees * 111320 * math.Cos(lat*math.Pi/180)
}

// getStringProp reads a property that may arrive as a string or as a
// JSON number.
func getStringProp(props geojson.Properties, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case json.Number:
		return string(v)
	}
	return ""
}

// getISOCode resolves the two-letter country code. Natural Earth writes
// -99 where a code is disputed (France, Norway, Kosovo); ISO_A2_EH
// usually carries the real value, and lowercase keys appear in some
// exports.
func getISOCode(props geojson.Properties) string {
	for _, key := range []string{"ISO_A2", "iso_a2", "ISO_A2_EH", "iso_a2_eh"} {
		if code := getStringProp(props, key); code != "" && code != "-99" {
			return code
		}
	}
	return ""
}

func getCountryName(props geojson.Properties) string {
	if name := getStringProp(props, "NAME"); name != "" {
		return name
	}
	return getStringProp(props, "name")
}
