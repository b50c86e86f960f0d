package zones

import (
	"fmt"
	"math"
	"time"

	"argusgo/pkg/model"
)

// Breakdown itemizes the fused zone score with the factor trail that
// produced it.
type Breakdown struct {
	Base          float64
	MultiSource   float64
	Volume        float64
	Fatality      float64
	GlobalContext float64
	Recency       float64
	Final         float64
	Factors       []string
}

// Score fuses a cluster into one zone risk score. Base is the
// weight-normalized mean of the member scores; the remaining terms are
// additive bonuses, each individually capped so the final score stays
// monotone in the inputs, then clamped to 1.
func Score(members []model.ConflictSignal, gctx GlobalContext, now time.Time) Breakdown {
	var (
		weighted, weights float64
		kinds             = make(map[model.SignalKind]bool)
		totalEvents       int
		totalFatalities   int
		latest            time.Time
	)
	for _, s := range members {
		weighted += s.Score * s.Weight
		weights += s.Weight
		kinds[s.Kind] = true
		totalEvents += s.EventCount
		totalFatalities += s.Fatalities
		if s.OccurredAt.After(latest) {
			latest = s.OccurredAt
		}
	}

	var bd Breakdown
	if weights > 0 {
		bd.Base = weighted / weights
	}
	bd.Factors = append(bd.Factors, fmt.Sprintf("weighted base (%d signals): %.2f", len(members), bd.Base))

	bd.MultiSource = math.Min(0.2, 0.05*float64(len(kinds)))
	if bd.MultiSource > 0 {
		bd.Factors = append(bd.Factors, fmt.Sprintf("source kinds (%d): +%.2f", len(kinds), bd.MultiSource))
	}

	bd.Volume = math.Min(0.3, float64(totalEvents)/20)
	if bd.Volume > 0 {
		bd.Factors = append(bd.Factors, fmt.Sprintf("event volume (%d): +%.2f", totalEvents, bd.Volume))
	}

	bd.Fatality = math.Min(0.2, float64(totalFatalities)/50)
	if bd.Fatality > 0 {
		bd.Factors = append(bd.Factors, fmt.Sprintf("fatalities (%d): +%.2f", totalFatalities, bd.Fatality))
	}

	bd.GlobalContext = gctx.ContextBonus()
	if bd.GlobalContext > 0 {
		bd.Factors = append(bd.Factors, fmt.Sprintf("global risk backdrop (%s): +%.2f", gctx.Level, bd.GlobalContext))
	}

	if !latest.IsZero() {
		days := now.Sub(latest).Hours() / 24
		if days < 0 {
			days = 0
		}
		bd.Recency = math.Max(0, 0.1-0.01*days)
		if bd.Recency > 0 {
			bd.Factors = append(bd.Factors, fmt.Sprintf("recency (%.1f days): +%.2f", days, bd.Recency))
		}
	}

	bd.Final = math.Min(1.0, bd.Base+bd.MultiSource+bd.Volume+bd.Fatality+bd.GlobalContext+bd.Recency)
	return bd
}
