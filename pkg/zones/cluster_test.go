package zones

import (
	"testing"

	"argusgo/pkg/model"
)

func sig(lat, lon, score float64) model.ConflictSignal {
	return model.ConflictSignal{
		Lat:    lat,
		Lon:    lon,
		Kind:   model.SignalNews,
		Weight: model.SignalWeight(model.SignalNews),
		Score:  score,
	}
}

func TestCluster_JoinsWithinRadius(t *testing.T) {
	signals := []model.ConflictSignal{
		sig(48.50, 37.50, 0.9),
		sig(48.70, 37.60, 0.7),
		sig(48.40, 37.30, 0.6),
	}
	clusters := Cluster(signals, 0.5)
	if len(clusters) != 1 {
		t.Fatalf("clusters = %d, want 1", len(clusters))
	}
	if len(clusters[0]) != 3 {
		t.Errorf("members = %d, want 3", len(clusters[0]))
	}
}

func TestCluster_SeparatesBeyondRadius(t *testing.T) {
	signals := []model.ConflictSignal{
		sig(48.5, 37.5, 0.9),
		sig(15.5, 32.5, 0.8), // different continent
		sig(48.6, 37.6, 0.5),
	}
	clusters := Cluster(signals, 0.5)
	if len(clusters) != 2 {
		t.Fatalf("clusters = %d, want 2", len(clusters))
	}
}

func TestCluster_StrongestSeedsFirst(t *testing.T) {
	signals := []model.ConflictSignal{
		sig(10.0, 10.0, 0.2),
		sig(20.0, 20.0, 0.95),
	}
	clusters := Cluster(signals, 0.5)
	if len(clusters) != 2 {
		t.Fatalf("clusters = %d, want 2", len(clusters))
	}
	if clusters[0][0].Score != 0.95 {
		t.Errorf("first cluster seeded by score %.2f, want the strongest signal", clusters[0][0].Score)
	}
}

func TestCluster_MembersStayWithinRadiusOfCentroid(t *testing.T) {
	// A chain of signals each 0.4 apart. Single-linkage would merge
	// the whole chain and push the ends past the radius; the pairwise
	// fit must not.
	signals := []model.ConflictSignal{
		sig(10.0, 10.0, 0.9),
		sig(10.4, 10.0, 0.8),
		sig(10.8, 10.0, 0.7),
		sig(11.2, 10.0, 0.6),
	}
	clusters := Cluster(signals, 0.5)
	for _, members := range clusters {
		lat, lon := centroid(members)
		for _, m := range members {
			if d := degreeDistance(lat, lon, m.Lat, m.Lon); d > 0.5 {
				t.Errorf("member at (%.2f, %.2f) is %.3f degrees from centroid (%.2f, %.2f)",
					m.Lat, m.Lon, d, lat, lon)
			}
		}
	}
}

func TestBounds(t *testing.T) {
	members := []model.ConflictSignal{
		sig(48.4, 37.3, 0.5),
		sig(48.7, 37.6, 0.5),
		sig(48.5, 37.5, 0.5),
	}
	b := bounds(members)
	want := model.BBox{37.3, 48.4, 37.6, 48.7}
	if b != want {
		t.Errorf("bounds = %v, want %v", b, want)
	}
	if !b.Contains(48.5, 37.5) {
		t.Error("box does not contain an interior member")
	}
}

func TestCluster_Empty(t *testing.T) {
	if clusters := Cluster(nil, 0.5); len(clusters) != 0 {
		t.Errorf("clusters = %d, want 0", len(clusters))
	}
}
