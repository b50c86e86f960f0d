package zones

import (
	"math"
	"sort"

	"argusgo/pkg/model"
)

// Cluster agglomerates signals by planar proximity. Signals are
// visited in descending score order so the strongest ones seed
// clusters; a candidate joins the first cluster it fits entirely.
// Requiring the full pairwise fit keeps every member within the
// radius of the final centroid, which single-linkage chaining would
// not.
func Cluster(signals []model.ConflictSignal, radiusDeg float64) [][]model.ConflictSignal {
	if radiusDeg <= 0 {
		radiusDeg = 0.5
	}
	sorted := make([]model.ConflictSignal, len(signals))
	copy(sorted, signals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var clusters [][]model.ConflictSignal
next:
	for _, sig := range sorted {
		for i, members := range clusters {
			if fits(sig, members, radiusDeg) {
				clusters[i] = append(members, sig)
				continue next
			}
		}
		clusters = append(clusters, []model.ConflictSignal{sig})
	}
	return clusters
}

func fits(sig model.ConflictSignal, members []model.ConflictSignal, radiusDeg float64) bool {
	for _, m := range members {
		if degreeDistance(sig.Lat, sig.Lon, m.Lat, m.Lon) > radiusDeg {
			return false
		}
	}
	return true
}

// degreeDistance is the planar distance in degrees used for zone
// clustering. Half a degree is roughly 50 km at mid latitudes, which
// matches the granularity of the upstream geocoding.
func degreeDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat1 - lat2
	dLon := lon1 - lon2
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// centroid returns the mean position of the members.
func centroid(members []model.ConflictSignal) (lat, lon float64) {
	if len(members) == 0 {
		return 0, 0
	}
	for _, m := range members {
		lat += m.Lat
		lon += m.Lon
	}
	n := float64(len(members))
	return lat / n, lon / n
}

// bounds returns the west, south, east, north box covering the
// members.
func bounds(members []model.ConflictSignal) model.BBox {
	if len(members) == 0 {
		return model.BBox{}
	}
	b := model.BBox{members[0].Lon, members[0].Lat, members[0].Lon, members[0].Lat}
	for _, m := range members[1:] {
		b[0] = math.Min(b[0], m.Lon)
		b[1] = math.Min(b[1], m.Lat)
		b[2] = math.Max(b[2], m.Lon)
		b[3] = math.Max(b[3], m.Lat)
	}
	return b
}
