package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"argusgo/pkg/store"
)

// defaultAggregateWindow bounds aggregate queries when the caller gives
// no window; matches the consolidator's default lookback.
const defaultAggregateWindow = 7 * 24 * time.Hour

// AggregatesHandler serves grouped counts and per-country risk
// averages over enriched articles.
type AggregatesHandler struct {
	store store.ArticleStore
}

func NewAggregatesHandler(st store.ArticleStore) *AggregatesHandler {
	return &AggregatesHandler{store: st}
}

type AggregateResponse struct {
	By     string         `json:"by"`
	Since  time.Time      `json:"since"`
	Counts map[string]int `json:"counts"`
}

type RiskByCountryResponse struct {
	Since time.Time          `json:"since"`
	Risk  map[string]float64 `json:"risk"`
}

// HandleAggregates handles GET /api/aggregates?by=country|category|language.
func (h *AggregatesHandler) HandleAggregates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	by := q.Get("by")
	switch by {
	case "country", "category", "language":
	default:
		http.Error(w, "invalid by: want country, category or language", http.StatusBadRequest)
		return
	}

	since, err := aggregateWindow(q.Get("since"), q.Get("window_days"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	counts, err := h.store.AggregateArticles(r.Context(), by, since)
	if err != nil {
		slog.Error("aggregate query failed", "by", by, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(AggregateResponse{By: by, Since: since, Counts: counts}); err != nil {
		slog.Error("Failed to encode aggregates", "error", err)
	}
}

// HandleRiskByCountry handles GET /api/risk/countries.
func (h *AggregatesHandler) HandleRiskByCountry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since, err := aggregateWindow(q.Get("since"), q.Get("window_days"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	risk, err := h.store.RiskByCountry(r.Context(), since)
	if err != nil {
		slog.Error("risk aggregate failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(RiskByCountryResponse{Since: since, Risk: risk}); err != nil {
		slog.Error("Failed to encode risk by country", "error", err)
	}
}

// aggregateWindow resolves the query window: an explicit since wins,
// then window_days, then the default.
func aggregateWindow(since, windowDays string) (time.Time, error) {
	if since != "" {
		t, err := parseTimeParam(since)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
	if windowDays != "" {
		days, err := strconv.Atoi(windowDays)
		if err != nil || days < 1 {
			return time.Time{}, fmt.Errorf("invalid window_days %q", windowDays)
		}
		return time.Now().UTC().AddDate(0, 0, -days), nil
	}
	return time.Now().UTC().Add(-defaultAggregateWindow), nil
}
