package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"argusgo/pkg/model"
	"argusgo/pkg/registry"
)

// SourcesHandler exposes the source catalog.
type SourcesHandler struct {
	reg *registry.Registry
}

func NewSourcesHandler(reg *registry.Registry) *SourcesHandler {
	return &SourcesHandler{reg: reg}
}

type SourceListResponse struct {
	Enabled int            `json:"enabled"`
	Total   int            `json:"total"`
	Sources []model.Source `json:"sources"`
}

// HandleList handles GET /api/sources with optional language, region
// and enabled filters.
func (h *SourcesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var sources []model.Source
	switch {
	case q.Get("language") != "":
		sources = h.reg.ByLanguage(q.Get("language"))
	case q.Get("region") != "":
		sources = h.reg.ByRegion(q.Get("region"))
	default:
		sources = h.reg.All()
	}

	if v := q.Get("enabled"); v != "" {
		want, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid enabled", http.StatusBadRequest)
			return
		}
		filtered := sources[:0:0]
		for _, s := range sources {
			if s.Enabled == want {
				filtered = append(filtered, s)
			}
		}
		sources = filtered
	}

	enabled, total := h.reg.Count()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(SourceListResponse{Enabled: enabled, Total: total, Sources: sources}); err != nil {
		slog.Error("Failed to encode sources", "error", err)
	}
}
