package zones

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/uber/h3-go/v4"

	"argusgo/pkg/config"
	"argusgo/pkg/model"
)

// conflictEventTypes is the curated-event subset that forms zones.
// Protests and strategic developments stay out; they dominate the feed
// without indicating armed conflict.
var conflictEventTypes = map[string]float64{
	"Battles":                    0.80,
	"Explosions/Remote violence": 0.75,
	"Violence against civilians": 0.70,
	"Riots":                      0.50,
}

// toneCellResolution buckets tone rows into hex cells of roughly the
// proximity-radius scale before they become signals. One cell at this
// resolution spans about 60 km.
const toneCellResolution = 3

// Reader is the store read side the consolidator snapshots.
type Reader interface {
	ConflictCandidates(ctx context.Context, since time.Time, minRisk, maxSentiment float64) ([]*model.Article, error)
	QueryEventsSince(ctx context.Context, since time.Time) ([]*model.EventRecord, error)
	QueryToneSince(ctx context.Context, since time.Time) ([]*model.ToneEvent, error)
	GetRiskIndex(ctx context.Context) ([]model.RiskIndexPoint, error)
}

// GlobalContext is the risk-index backdrop applied to every zone.
// It has no coordinates of its own, so it is folded into each formed
// zone rather than clustered.
type GlobalContext struct {
	Level string  // very_high, high, medium, low
	Score float64 // normalized to [0,1]
	OK    bool
}

// ContextBonus is the additive term the global backdrop contributes
// to every zone score.
func (g GlobalContext) ContextBonus() float64 {
	if !g.OK {
		return 0
	}
	switch g.Level {
	case "very_high":
		return 0.15
	case "high":
		return 0.10
	case "medium":
		return 0.05
	default:
		return 0
	}
}

// Elevated reports whether the backdrop is strong enough to count as
// a zone source of its own.
func (g GlobalContext) Elevated() bool {
	return g.OK && g.Level != "low"
}

// collectSignals reads all four inputs within the lookback window and
// normalizes them into the common signal shape.
func collectSignals(ctx context.Context, r Reader, cfg config.ConsolidatorConfig, since time.Time) ([]model.ConflictSignal, GlobalContext, error) {
	var signals []model.ConflictSignal

	news, err := newsSignals(ctx, r, cfg, since)
	if err != nil {
		return nil, GlobalContext{}, err
	}
	signals = append(signals, news...)

	events, err := eventSignals(ctx, r, since)
	if err != nil {
		return nil, GlobalContext{}, err
	}
	signals = append(signals, events...)

	tone, err := toneSignals(ctx, r, cfg, since)
	if err != nil {
		return nil, GlobalContext{}, err
	}
	signals = append(signals, tone...)

	gctx, err := riskContext(ctx, r)
	if err != nil {
		return nil, GlobalContext{}, err
	}

	slog.Debug("Collected conflict signals",
		"news", len(news), "events", len(events), "tone", len(tone),
		"risk_level", gctx.Level)
	return signals, gctx, nil
}

func newsSignals(ctx context.Context, r Reader, cfg config.ConsolidatorConfig, since time.Time) ([]model.ConflictSignal, error) {
	articles, err := r.ConflictCandidates(ctx, since, cfg.NewsRiskThreshold, cfg.NewsSentimentThreshold)
	if err != nil {
		return nil, fmt.Errorf("news candidates: %w", err)
	}

	signals := make([]model.ConflictSignal, 0, len(articles))
	for _, a := range articles {
		if !a.HasCoordinates() {
			continue
		}
		score := 0.0
		if a.RiskScore != nil {
			score = *a.RiskScore
		}
		// Articles admitted on sentiment alone still carry weight.
		if a.SentimentScore != nil && *a.SentimentScore < 0 {
			if s := -*a.SentimentScore * 0.8; s > score {
				score = s
			}
		}
		occurred := a.PublishedAt
		if occurred.IsZero() {
			occurred = a.FetchedAt
		}
		signals = append(signals, model.ConflictSignal{
			Lat:        *a.Latitude,
			Lon:        *a.Longitude,
			Kind:       model.SignalNews,
			Weight:     model.SignalWeight(model.SignalNews),
			Score:      clamp01(score),
			ArticleID:  a.ID,
			OccurredAt: occurred,
			Label:      a.Country,
		})
	}
	return signals, nil
}

func eventSignals(ctx context.Context, r Reader, since time.Time) ([]model.ConflictSignal, error) {
	events, err := r.QueryEventsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("event records: %w", err)
	}

	var signals []model.ConflictSignal
	for _, ev := range events {
		base, ok := conflictEventTypes[ev.EventType]
		if !ok {
			continue
		}
		if ev.Latitude == 0 && ev.Longitude == 0 {
			continue
		}
		score := clamp01(base + math.Min(0.2, 0.01*float64(ev.Fatalities)))
		var actors []string
		if ev.Actor1 != "" {
			actors = append(actors, ev.Actor1)
		}
		if ev.Actor2 != "" {
			actors = append(actors, ev.Actor2)
		}
		signals = append(signals, model.ConflictSignal{
			Lat:        ev.Latitude,
			Lon:        ev.Longitude,
			Kind:       model.SignalEvents,
			Weight:     model.SignalWeight(model.SignalEvents),
			Score:      score,
			EventCount: 1,
			Fatalities: ev.Fatalities,
			Actors:     actors,
			EventTypes: []string{ev.EventType},
			OccurredAt: ev.EventDate,
			Label:      ev.Country,
		})
	}
	return signals, nil
}

// toneCell aggregates negative-tone rows sharing one hex cell.
type toneCell struct {
	sumLat, sumLon float64
	sumTone        float64
	count          int
	latest         time.Time
}

func toneSignals(ctx context.Context, r Reader, cfg config.ConsolidatorConfig, since time.Time) ([]model.ConflictSignal, error) {
	rows, err := r.QueryToneSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("tone events: %w", err)
	}

	cells := make(map[h3.Cell]*toneCell)
	for _, ev := range rows {
		if ev.AvgTone >= 0 {
			continue
		}
		cell, err := h3.LatLngToCell(h3.NewLatLng(ev.Latitude, ev.Longitude), toneCellResolution)
		if err != nil {
			continue
		}
		c := cells[cell]
		if c == nil {
			c = &toneCell{}
			cells[cell] = c
		}
		c.sumLat += ev.Latitude
		c.sumLon += ev.Longitude
		c.sumTone += ev.AvgTone
		c.count++
		if ev.SQLDate.After(c.latest) {
			c.latest = ev.SQLDate
		}
	}

	minEvents := cfg.ToneMinEvents
	if minEvents <= 0 {
		minEvents = 3
	}
	var signals []model.ConflictSignal
	for _, c := range cells {
		if c.count < minEvents {
			continue
		}
		n := float64(c.count)
		meanTone := c.sumTone / n
		// Tone sits mostly in [-20, 0] for conflict coverage; -10 or
		// worse saturates the signal.
		signals = append(signals, model.ConflictSignal{
			Lat:        c.sumLat / n,
			Lon:        c.sumLon / n,
			Kind:       model.SignalTone,
			Weight:     model.SignalWeight(model.SignalTone),
			Score:      clamp01(-meanTone / 10),
			EventCount: c.count,
			OccurredAt: c.latest,
		})
	}
	return signals, nil
}

// riskContext classifies the latest index value against the series
// mean. An empty series leaves the backdrop off.
func riskContext(ctx context.Context, r Reader) (GlobalContext, error) {
	series, err := r.GetRiskIndex(ctx)
	if err != nil {
		return GlobalContext{}, fmt.Errorf("risk index: %w", err)
	}
	if len(series) == 0 {
		return GlobalContext{Level: "low"}, nil
	}

	var sum float64
	for _, p := range series {
		sum += p.GPRValue
	}
	mean := sum / float64(len(series))
	latest := series[len(series)-1]

	g := GlobalContext{OK: true}
	if mean <= 0 {
		g.Level = "low"
		return g, nil
	}
	ratio := latest.GPRValue / mean
	switch {
	case ratio >= 1.5:
		g.Level = "very_high"
	case ratio >= 1.2:
		g.Level = "high"
	case ratio >= 1.0:
		g.Level = "medium"
	default:
		g.Level = "low"
	}
	g.Score = clamp01(ratio / 2)
	return g, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
