package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"argusgo/pkg/store"
)

// MetricsHandler serves point-in-time pipeline gauges as JSON: queue
// depths by processing state, zone count, last consolidation outcome
// and per-integrator run status.
type MetricsHandler struct {
	articles    store.ArticleStore
	zones       store.ZoneStore
	feeds       store.FeedRunStore
	consol      ConsolidationInfo
	integrators []string
	started     time.Time
}

func NewMetricsHandler(arts store.ArticleStore, zns store.ZoneStore, feeds store.FeedRunStore, consol ConsolidationInfo, integrators []string) *MetricsHandler {
	return &MetricsHandler{
		articles:    arts,
		zones:       zns,
		feeds:       feeds,
		consol:      consol,
		integrators: integrators,
		started:     time.Now(),
	}
}

type ConsolidationMetric struct {
	LastRunAt   time.Time `json:"last_run_at"`
	DurationMS  int64     `json:"duration_ms"`
	Signals     int       `json:"signals"`
	Zones       int       `json:"zones"`
	Predictions int       `json:"predictions"`
}

type IntegratorMetric struct {
	LastRunAt time.Time `json:"last_run_at"`
	Status    string    `json:"status"`
	Records   int       `json:"records"`
	Error     string    `json:"error,omitempty"`
}

type MetricsResponse struct {
	UptimeSeconds int64                        `json:"uptime_seconds"`
	Articles      map[string]int               `json:"articles"`
	ZoneCount     int                          `json:"zone_count"`
	Consolidation *ConsolidationMetric         `json:"consolidation,omitempty"`
	Integrators   map[string]*IntegratorMetric `json:"integrators"`
}

func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := MetricsResponse{
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Articles:      map[string]int{},
		Integrators:   make(map[string]*IntegratorMetric, len(h.integrators)),
	}

	states, err := h.articles.CountArticlesByState(ctx)
	if err != nil {
		slog.Error("article state count failed", "error", err)
	} else {
		for state, n := range states {
			resp.Articles[string(state)] = n
		}
	}

	if n, err := h.zones.CountZones(ctx); err != nil {
		slog.Error("zone count failed", "error", err)
	} else {
		resp.ZoneCount = n
	}

	if h.consol != nil {
		if stats, at, ok := h.consol.LastRun(); ok {
			resp.Consolidation = &ConsolidationMetric{
				LastRunAt:   at,
				DurationMS:  stats.Duration.Milliseconds(),
				Signals:     stats.Signals,
				Zones:       stats.Zones,
				Predictions: stats.Predictions,
			}
		}
	}

	for _, name := range h.integrators {
		run, err := h.feeds.LastFeedRun(ctx, name)
		if err != nil {
			slog.Error("feed run lookup failed", "integrator", name, "error", err)
			continue
		}
		if run == nil {
			continue
		}
		resp.Integrators[name] = &IntegratorMetric{
			LastRunAt: run.StartedAt,
			Status:    string(run.Status),
			Records:   run.RecordsIngested,
			Error:     run.ErrorMessage,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode metrics", "error", err)
	}
}
