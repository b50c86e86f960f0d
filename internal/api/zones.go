package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"argusgo/pkg/model"
	"argusgo/pkg/store"
	"argusgo/pkg/zones"
)

// ConsolidationInfo reports the outcome of the most recent zone
// consolidation pass.
type ConsolidationInfo interface {
	LastRun() (zones.RunStats, time.Time, bool)
}

// ZonesHandler serves the consolidated conflict zone collection.
type ZonesHandler struct {
	store  store.ZoneStore
	consol ConsolidationInfo
}

func NewZonesHandler(st store.ZoneStore, consol ConsolidationInfo) *ZonesHandler {
	return &ZonesHandler{store: st, consol: consol}
}

type ZoneListResponse struct {
	Count int                   `json:"count"`
	Zones []*model.ConflictZone `json:"zones"`
}

// HandleList handles GET /api/zones with filters risk_level, since,
// priority and limit. priority=true narrows to high and critical zones.
func (h *ZonesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f store.ZoneFilter

	if v := q.Get("risk_level"); v != "" {
		lvl, err := parseRiskLevel(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.RiskLevel = lvl
	}

	if v := q.Get("priority"); v != "" {
		p, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid priority", http.StatusBadRequest)
			return
		}
		if p {
			f.MinRank = model.RiskHigh.Rank()
		}
	}

	if v := q.Get("predictions"); v != "" {
		p, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid predictions", http.StatusBadRequest)
			return
		}
		f.ExcludePredictions = !p
	}

	var err error
	if f.Since, err = parseTimeParam(q.Get("since")); err != nil {
		http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
		return
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	zs, err := h.store.QueryZones(r.Context(), f)
	if err != nil {
		slog.Error("zone query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ZoneListResponse{Count: len(zs), Zones: zs}); err != nil {
		slog.Error("Failed to encode zone list", "error", err)
	}
}

// HandleGeoJSON handles GET /api/zones.geojson. The collection always
// reflects the last published snapshot; before the first consolidation
// it is empty with metadata.status=warming_up.
func (h *ZonesHandler) HandleGeoJSON(w http.ResponseWriter, r *http.Request) {
	zs, err := h.store.QueryZones(r.Context(), store.ZoneFilter{})
	if err != nil {
		slog.Error("zone query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	generatedAt := time.Now()
	published := len(zs) > 0
	if h.consol != nil {
		if _, at, ok := h.consol.LastRun(); ok {
			generatedAt = at
			published = true
		}
	}

	fc := zones.Collection(zs, generatedAt, published)

	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		slog.Error("Failed to encode zone collection", "error", err)
	}
}
