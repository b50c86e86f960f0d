package model

import (
	"math"
	"testing"
	"time"
)

func TestRiskLevelForScore(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  RiskLevel
	}{
		{"Zero", 0.0, RiskLow},
		{"BelowMedium", 0.39, RiskLow},
		{"MediumBoundary", 0.4, RiskMedium},
		{"Medium", 0.55, RiskMedium},
		{"HighBoundary", 0.6, RiskHigh},
		{"High", 0.79, RiskHigh},
		{"CriticalBoundary", 0.8, RiskCritical},
		{"Max", 1.0, RiskCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskLevelForScore(tt.score); got != tt.want {
				t.Errorf("RiskLevelForScore(%v) = %q, want %q", tt.score, got, tt.want)
			}
		})
	}
}

func TestRiskLevelRank(t *testing.T) {
	order := []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("Rank(%q) = %d not above Rank(%q) = %d",
				order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
}

func TestSignalWeights(t *testing.T) {
	tests := []struct {
		kind SignalKind
		want float64
	}{
		{SignalNews, 0.4},
		{SignalEvents, 0.3},
		{SignalTone, 0.2},
		{SignalRiskIndex, 0.1},
	}
	var sum float64
	for _, tt := range tests {
		got := SignalWeight(tt.kind)
		if got != tt.want {
			t.Errorf("SignalWeight(%q) = %v, want %v", tt.kind, got, tt.want)
		}
		sum += got
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("weights sum to %v, want 1.0", sum)
	}
}

func TestMonitoringFrequencyForLevel(t *testing.T) {
	tests := []struct {
		level RiskLevel
		want  MonitoringFrequency
	}{
		{RiskCritical, MonitorDaily},
		{RiskHigh, MonitorWeekly},
		{RiskMedium, MonitorMonthly},
		{RiskLow, MonitorMonthly},
	}
	for _, tt := range tests {
		if got := MonitoringFrequencyForLevel(tt.level); got != tt.want {
			t.Errorf("MonitoringFrequencyForLevel(%q) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestArticleCoordinates(t *testing.T) {
	a := Article{URL: "https://example.com/a"}
	if a.HasCoordinates() {
		t.Error("fresh article should have no coordinates")
	}
	a.SetCoordinates(48.5, 37.5)
	if !a.HasCoordinates() {
		t.Error("coordinates not set")
	}
	if *a.Latitude != 48.5 || *a.Longitude != 37.5 {
		t.Errorf("got (%v, %v), want (48.5, 37.5)", *a.Latitude, *a.Longitude)
	}
}

func TestEntitiesEmpty(t *testing.T) {
	var e *Entities
	if !e.Empty() {
		t.Error("nil entities should be empty")
	}
	e = &Entities{}
	if !e.Empty() {
		t.Error("zero entities should be empty")
	}
	e.Locations = []string{"Kharkiv"}
	if e.Empty() {
		t.Error("entities with a location should not be empty")
	}
}

func TestBBoxContains(t *testing.T) {
	b := BBox{37.0, 48.0, 38.0, 49.0} // west, south, east, north
	if !b.Contains(48.5, 37.5) {
		t.Error("interior point not contained")
	}
	if b.Contains(50.0, 37.5) {
		t.Error("point north of box contained")
	}
}

func TestZoneSourceKinds(t *testing.T) {
	z := ConflictZone{
		SourceScores: map[SignalKind]float64{
			SignalTone:   0.4,
			SignalNews:   0.8,
			SignalEvents: 0.7,
		},
		LatestEventAt: time.Now(),
	}
	kinds := z.SourceKinds()
	want := []SignalKind{SignalEvents, SignalNews, SignalTone}
	if len(kinds) != len(want) {
		t.Fatalf("got %d kinds, want %d", len(kinds), len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}
