// Package zones fuses news articles, curated conflict events, media
// tone aggregates and the global risk index into the published
// conflict zone collection. Consolidation runs as a whole-world pass:
// signals are snapshotted, clustered by proximity, scored, optionally
// second-guessed by a generative model, extended with predicted
// neighbors and then swapped into the store in a single transaction.
package zones

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"argusgo/pkg/config"
	"argusgo/pkg/geo"
	"argusgo/pkg/logging"
	"argusgo/pkg/model"
	"argusgo/pkg/tracker"
)

// ErrBusy reports a consolidation run that is still in flight.
var ErrBusy = errors.New("consolidation already running")

// Writer is the store write side. Zones are only ever replaced
// wholesale.
type Writer interface {
	ReplaceZones(ctx context.Context, zones []*model.ConflictZone) error
}

// Labeler resolves a human-readable place for a zone centroid.
type Labeler interface {
	Reverse(lat, lon float64) *geo.Location
}

// RiskAssessor provides the optional second opinion on high-risk
// zones.
type RiskAssessor interface {
	Assess(ctx context.Context, z *model.ConflictZone) (Verdict, error)
}

// RunStats summarizes one consolidation pass.
type RunStats struct {
	Signals     int           `json:"signals"`
	Zones       int           `json:"zones"`
	Predictions int           `json:"predictions"`
	Duration    time.Duration `json:"duration"`
}

// Consolidator owns the zone collection. At most one run executes at
// a time; scheduled and operator-requested runs share the same lock.
type Consolidator struct {
	reader   Reader
	writer   Writer
	labeler  Labeler
	assessor RiskAssessor
	trk      *tracker.Tracker
	cfg      config.ConsolidatorConfig
	now      func() time.Time

	running int32

	mu      sync.Mutex
	last    RunStats
	lastAt  time.Time
	haveRun bool
}

// New creates a Consolidator. The labeler may be nil; zones then fall
// back to coordinate labels.
func New(r Reader, w Writer, lab Labeler, cfg config.ConsolidatorConfig, trk *tracker.Tracker) *Consolidator {
	return &Consolidator{
		reader:  r,
		writer:  w,
		labeler: lab,
		trk:     trk,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetAssessor enables the generative second opinion for zones scoring
// at high or above.
func (c *Consolidator) SetAssessor(a RiskAssessor) { c.assessor = a }

// LastRun returns the outcome of the most recent pass.
func (c *Consolidator) LastRun() (RunStats, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.lastAt, c.haveRun
}

// Run executes one consolidation pass and atomically publishes the
// new zone collection.
func (c *Consolidator) Run(ctx context.Context) (RunStats, error) {
	if !atomic.CompareAndSwapInt32(&c.running, 0, 1) {
		return RunStats{}, ErrBusy
	}
	defer atomic.StoreInt32(&c.running, 0)

	started := c.now()
	now := started.UTC()
	since := now.AddDate(0, 0, -c.lookbackDays())

	signals, gctx, err := collectSignals(ctx, c.reader, c.cfg, since)
	if err != nil {
		if c.trk != nil {
			c.trk.TrackAPIFailure("consolidator")
		}
		return RunStats{}, err
	}

	clusters := Cluster(signals, c.cfg.ProximityRadiusDegrees)
	zones := make([]*model.ConflictZone, 0, len(clusters))
	seen := make(map[string]int)
	for _, members := range clusters {
		zones = append(zones, c.buildZone(members, gctx, now, seen))
	}

	c.amplify(ctx, zones)

	predictions := c.predictions(zones, now)
	zones = append(zones, predictions...)

	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].FinalRiskScore > zones[j].FinalRiskScore
	})

	if err := c.writer.ReplaceZones(ctx, zones); err != nil {
		if c.trk != nil {
			c.trk.TrackAPIFailure("consolidator")
		}
		return RunStats{}, fmt.Errorf("replace zones: %w", err)
	}

	stats := RunStats{
		Signals:     len(signals),
		Zones:       len(zones),
		Predictions: len(predictions),
		Duration:    c.now().Sub(started),
	}
	c.mu.Lock()
	c.last, c.lastAt, c.haveRun = stats, now, true
	c.mu.Unlock()

	if c.trk != nil {
		c.trk.TrackAPISuccess("consolidator")
		c.trk.TrackItems("zones", stats.Zones, 0)
	}
	slog.Info("Zone consolidation finished",
		"signals", stats.Signals, "zones", stats.Zones,
		"predictions", stats.Predictions, "duration", stats.Duration.Round(time.Millisecond))
	logging.LogEvent(&model.PipelineEvent{
		Type:      model.EventZonesReplaced,
		Title:     "Zones replaced",
		Summary:   fmt.Sprintf("zones=%d predictions=%d signals=%d", stats.Zones, stats.Predictions, stats.Signals),
		Timestamp: now,
	})
	return stats, nil
}

func (c *Consolidator) lookbackDays() int {
	if c.cfg.LookbackDays <= 0 {
		return 7
	}
	return c.cfg.LookbackDays
}

// buildZone aggregates one cluster. An elevated global backdrop joins
// as a synthetic signal at the centroid so it shows up in the zone's
// sources and the weighted base.
func (c *Consolidator) buildZone(members []model.ConflictSignal, gctx GlobalContext, now time.Time, seen map[string]int) *model.ConflictZone {
	lat, lon := centroid(members)
	box := bounds(members)

	if gctx.Elevated() {
		members = append(members, model.ConflictSignal{
			Lat:    lat,
			Lon:    lon,
			Kind:   model.SignalRiskIndex,
			Weight: model.SignalWeight(model.SignalRiskIndex),
			Score:  gctx.Score,
		})
	}

	bd := Score(members, gctx, now)

	scores := make(map[model.SignalKind]float64)
	counts := make(map[model.SignalKind]int)
	actorSet := make(map[string]bool)
	typeSet := make(map[string]bool)
	var (
		articleIDs      []int64
		totalEvents     int
		totalFatalities int
		latest          time.Time
	)
	for _, s := range members {
		scores[s.Kind] += s.Score
		counts[s.Kind]++
		totalEvents += s.EventCount
		totalFatalities += s.Fatalities
		for _, a := range s.Actors {
			actorSet[a] = true
		}
		for _, t := range s.EventTypes {
			typeSet[t] = true
		}
		if s.ArticleID != 0 {
			articleIDs = append(articleIDs, s.ArticleID)
		}
		if s.OccurredAt.After(latest) {
			latest = s.OccurredAt
		}
	}
	for k := range scores {
		scores[k] /= float64(counts[k])
	}
	sort.Slice(articleIDs, func(i, j int) bool { return articleIDs[i] < articleIDs[j] })

	level := model.RiskLevelForScore(bd.Final)
	z := &model.ConflictZone{
		ZoneID:              c.uniqueZoneID(lat, lon, seen),
		CentroidLat:         lat,
		CentroidLon:         lon,
		BBox:                box,
		SourceScores:        scores,
		TotalEvents:         totalEvents,
		TotalFatalities:     totalFatalities,
		Actors:              sortedSet(actorSet),
		EventTypes:          sortedSet(typeSet),
		LatestEventAt:       latest,
		FinalRiskScore:      bd.Final,
		RiskLevel:           level,
		MonitoringFrequency: model.MonitoringFrequencyForLevel(level),
		MemberArticleIDs:    articleIDs,
		GeneratedAt:         now,
	}
	c.label(z, members)
	return z
}

// label fills the human-readable location fields.
func (c *Consolidator) label(z *model.ConflictZone, members []model.ConflictSignal) {
	if c.labeler != nil {
		loc := c.labeler.Reverse(z.CentroidLat, z.CentroidLon)
		if loc != nil {
			z.LocationLabel = loc.Name
			z.Country = loc.CountryName
			if z.Country == "" {
				z.Country = loc.CountryCode
			}
			z.Region = loc.Region
		}
	}
	if z.Country == "" {
		// Fall back to the country the strongest signal reported.
		for _, s := range members {
			if s.Label != "" {
				z.Country = s.Label
				break
			}
		}
	}
	if z.LocationLabel == "" {
		z.LocationLabel = coordLabel(z.CentroidLat, z.CentroidLon)
	}
}

// amplify applies the generative second opinion. It can only raise a
// zone's score; assessor failures leave the zone untouched.
func (c *Consolidator) amplify(ctx context.Context, zones []*model.ConflictZone) {
	if !c.cfg.AIAmplification || c.assessor == nil {
		return
	}
	for _, z := range zones {
		if z.FinalRiskScore < 0.6 {
			continue
		}
		verdict, err := c.assessor.Assess(ctx, z)
		if err != nil {
			slog.Warn("Zone assessment failed", "zone", z.ZoneID, "error", err)
			if c.trk != nil {
				c.trk.TrackAPIFailure("assessor")
			}
			continue
		}
		if c.trk != nil {
			c.trk.TrackAPISuccess("assessor")
		}
		bonus := Amplification(verdict)
		if bonus <= 0 {
			continue
		}
		z.FinalRiskScore = math.Min(1.0, z.FinalRiskScore+bonus)
		z.RiskLevel = model.RiskLevelForScore(z.FinalRiskScore)
		z.MonitoringFrequency = model.MonitoringFrequencyForLevel(z.RiskLevel)
		slog.Debug("Zone amplified", "zone", z.ZoneID, "bonus", bonus, "verdict", verdict.RiskLevel)
	}
}

// predictions emits an adjacent predicted zone northeast of every
// multi-source zone that cleared the prediction threshold.
func (c *Consolidator) predictions(zones []*model.ConflictZone, now time.Time) []*model.ConflictZone {
	if !c.cfg.PredictionsEnabled {
		return nil
	}
	offset := c.cfg.PredictionOffsetDegrees
	if offset == 0 {
		offset = 0.5
	}

	var out []*model.ConflictZone
	for _, z := range zones {
		if z.FinalRiskScore <= 0.4 || len(z.SourceKinds()) < 2 {
			continue
		}
		score := 0.6 * z.FinalRiskScore
		level := model.RiskLevelForScore(score)
		lat := z.CentroidLat + offset
		lon := z.CentroidLon + offset
		p := &model.ConflictZone{
			ZoneID:      z.ZoneID + "-pred",
			CentroidLat: lat,
			CentroidLon: lon,
			BBox: model.BBox{
				z.BBox[0] + offset, z.BBox[1] + offset,
				z.BBox[2] + offset, z.BBox[3] + offset,
			},
			LocationLabel:       "Projected spread from " + z.LocationLabel,
			Country:             z.Country,
			Region:              z.Region,
			SourceScores:        map[model.SignalKind]float64{model.SignalPrediction: score},
			LatestEventAt:       z.LatestEventAt,
			FinalRiskScore:      score,
			RiskLevel:           level,
			MonitoringFrequency: model.MonitoringFrequencyForLevel(level),
			IsPrediction:        true,
			GeneratedAt:         now,
		}
		out = append(out, p)
	}
	return out
}

// uniqueZoneID derives a stable identifier from the centroid so
// consumers can track a zone across runs, with a numeric suffix when
// two centroids round to the same grid cell.
func (c *Consolidator) uniqueZoneID(lat, lon float64, seen map[string]int) string {
	id := zoneID(lat, lon)
	seen[id]++
	if n := seen[id]; n > 1 {
		return fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

func zoneID(lat, lon float64) string {
	ns, ew := "n", "e"
	if lat < 0 {
		ns = "s"
	}
	if lon < 0 {
		ew = "w"
	}
	return fmt.Sprintf("zone-%05.2f%s-%06.2f%s", math.Abs(lat), ns, math.Abs(lon), ew)
}

func coordLabel(lat, lon float64) string {
	ns, ew := "N", "E"
	if lat < 0 {
		ns = "S"
	}
	if lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.2f%s %.2f%s", math.Abs(lat), ns, math.Abs(lon), ew)
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
