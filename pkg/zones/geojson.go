package zones

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"argusgo/pkg/model"
)

// Collection status values surfaced to map consumers.
const (
	StatusReady     = "ready"
	StatusWarmingUp = "warming_up"
)

// Collection renders the zone set as the GeoJSON feature collection
// served at /api/zones.geojson. published reports whether any
// consolidation pass has completed yet: an empty collection before the
// first pass is flagged warming_up so consumers can tell "no data yet"
// from "world at peace".
func Collection(zs []*model.ConflictZone, generatedAt time.Time, published bool) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	var (
		priority   int
		sources    = make(map[model.SignalKind]bool)
		monitoring = map[model.MonitoringFrequency]int{}
		global     model.BBox
		haveBox    bool
	)
	for _, z := range zs {
		if !z.IsPrediction && z.RiskLevel.Rank() >= model.RiskHigh.Rank() {
			priority++
		}
		for _, k := range z.SourceKinds() {
			sources[k] = true
		}
		monitoring[z.MonitoringFrequency]++
		if !haveBox {
			global, haveBox = z.BBox, true
		} else {
			global = unionBBox(global, z.BBox)
		}
		fc.Append(zoneFeature(z))
	}

	meta := map[string]any{
		"generated_at":        generatedAt.UTC().Format(time.RFC3339),
		"total_zones":         len(zs),
		"priority_zones":      priority,
		"data_sources":        sortedKinds(sources),
		"monitoring_strategy": monitoringCounts(monitoring),
		"status":              StatusReady,
	}
	if len(zs) == 0 && !published {
		meta["status"] = StatusWarmingUp
	}
	if haveBox {
		meta["bbox_global"] = []float64{global[0], global[1], global[2], global[3]}
	}
	fc.ExtraMembers = geojson.Properties{"metadata": meta}
	return fc
}

func zoneFeature(z *model.ConflictZone) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{z.CentroidLon, z.CentroidLat})
	f.ID = z.ZoneID
	f.BBox = geojson.BBox{z.BBox[0], z.BBox[1], z.BBox[2], z.BBox[3]}

	kinds := z.SourceKinds()
	srcs := make([]string, 0, len(kinds))
	scores := make(map[string]float64, len(kinds))
	for _, k := range kinds {
		srcs = append(srcs, string(k))
		scores[string(k)] = z.SourceScores[k]
	}
	sort.Strings(srcs)

	f.Properties = geojson.Properties{
		"zone_id":              z.ZoneID,
		"location_label":       z.LocationLabel,
		"country":              z.Country,
		"risk_score":           z.FinalRiskScore,
		"risk_level":           string(z.RiskLevel),
		"sources":              srcs,
		"source_scores":        scores,
		"total_events":         z.TotalEvents,
		"total_fatalities":     z.TotalFatalities,
		"actors":               z.Actors,
		"event_types":          z.EventTypes,
		"monitoring_frequency": string(z.MonitoringFrequency),
		"is_prediction":        z.IsPrediction,
		"bbox":                 []float64{z.BBox[0], z.BBox[1], z.BBox[2], z.BBox[3]},
	}
	if !z.LatestEventAt.IsZero() {
		f.Properties["latest_event_at"] = z.LatestEventAt.UTC().Format(time.RFC3339)
	}
	return f
}

func unionBBox(a, b model.BBox) model.BBox {
	if b[0] < a[0] {
		a[0] = b[0]
	}
	if b[1] < a[1] {
		a[1] = b[1]
	}
	if b[2] > a[2] {
		a[2] = b[2]
	}
	if b[3] > a[3] {
		a[3] = b[3]
	}
	return a
}

func sortedKinds(kinds map[model.SignalKind]bool) []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

func monitoringCounts(m map[model.MonitoringFrequency]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
