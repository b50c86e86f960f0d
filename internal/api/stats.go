package api

import (
	"encoding/json"
	"net/http"

	"argusgo/pkg/tracker"
)

// StatsHandler exposes the tracker's per-component counters.
type StatsHandler struct {
	tracker *tracker.Tracker
	chain   []string
}

// NewStatsHandler creates the stats endpoint. chain is the configured
// translation provider order, surfaced so operators can see which
// fallbacks are active.
func NewStatsHandler(t *tracker.Tracker, chain []string) *StatsHandler {
	return &StatsHandler{tracker: t, chain: chain}
}

type ProviderStatsDTO struct {
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	APISuccess     int64 `json:"api_success"`
	APIZeroResult  int64 `json:"api_zero"`
	APIFailures    int64 `json:"api_errors"`
	ItemsNew       int64 `json:"items_new"`
	ItemsDuplicate int64 `json:"items_duplicate"`
	HitRate        int64 `json:"hit_rate"`
	FreeTier       bool  `json:"free_tier"`
	BreakerOpen    bool  `json:"breaker_open"`
}

type StatsResponse struct {
	Providers        map[string]ProviderStatsDTO `json:"providers"`
	TranslationChain []string                    `json:"translation_chain"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Providers:        make(map[string]ProviderStatsDTO, len(snapshot)),
		TranslationChain: h.chain,
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:      stats.CacheHits,
			CacheMisses:    stats.CacheMisses,
			APISuccess:     stats.APISuccess,
			APIZeroResult:  stats.APIZeroResult,
			APIFailures:    stats.APIFailures,
			ItemsNew:       stats.ItemsNew,
			ItemsDuplicate: stats.ItemsDuplicate,
			HitRate:        hitRate,
			FreeTier:       stats.FreeTier,
			BreakerOpen:    stats.BreakerOpen,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
