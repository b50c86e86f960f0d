package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"argusgo/pkg/model"
	"argusgo/pkg/store"
)

const defaultFeedRunLimit = 20

// FeedsHandler serves the integrator run log.
type FeedsHandler struct {
	store store.FeedRunStore
}

func NewFeedsHandler(st store.FeedRunStore) *FeedsHandler {
	return &FeedsHandler{store: st}
}

type FeedStatusResponse struct {
	Integrator string           `json:"integrator,omitempty"`
	Count      int              `json:"count"`
	Runs       []*model.FeedRun `json:"runs"`
}

// HandleStatus handles GET /api/feeds/status. Without an integrator
// parameter the log covers all integrators, newest first.
func (h *FeedsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	integrator := q.Get("integrator")
	limit := defaultFeedRunLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.ListFeedRuns(r.Context(), integrator, limit)
	if err != nil {
		slog.Error("feed run query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(FeedStatusResponse{Integrator: integrator, Count: len(runs), Runs: runs}); err != nil {
		slog.Error("Failed to encode feed runs", "error", err)
	}
}
