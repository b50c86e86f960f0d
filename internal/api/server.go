// Package api serves the read-side of the pipeline: article and zone
// queries, aggregates, operational stats, the live event stream and the
// operator control surface. Handlers are constructed over narrow store
// interfaces so tests can run against a real sqlite file or small fakes.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"argusgo/pkg/version"
)

// NewServer wires all endpoint handlers into one http.Server. The
// control handler and the live hub may be nil when those surfaces are
// disabled; their routes are then not registered.
func NewServer(addr string, arts *ArticlesHandler, zns *ZonesHandler, agg *AggregatesHandler, stats *StatsHandler, metrics *MetricsHandler, feeds *FeedsHandler, srcs *SourcesHandler, ctl *ControlHandler, live *Hub) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	mux.HandleFunc("GET /api/articles", arts.HandleList)
	mux.HandleFunc("GET /api/articles/{id}", arts.HandleGet)

	mux.HandleFunc("GET /api/zones", zns.HandleList)
	mux.HandleFunc("GET /api/zones.geojson", zns.HandleGeoJSON)

	mux.HandleFunc("GET /api/aggregates", agg.HandleAggregates)
	mux.HandleFunc("GET /api/risk/countries", agg.HandleRiskByCountry)

	mux.Handle("GET /api/stats", stats)
	mux.Handle("GET /metrics", metrics)

	mux.HandleFunc("GET /api/feeds/status", feeds.HandleStatus)
	mux.HandleFunc("GET /api/sources", srcs.HandleList)

	if ctl != nil {
		mux.HandleFunc("POST /api/control/fetch", ctl.HandleFetch)
		mux.HandleFunc("POST /api/control/enrich", ctl.HandleEnrich)
		mux.HandleFunc("POST /api/control/integrate", ctl.HandleIntegrate)
		mux.HandleFunc("POST /api/control/consolidate", ctl.HandleConsolidate)
		mux.HandleFunc("POST /api/control/reload", ctl.HandleReload)
		mux.HandleFunc("POST /api/control/shutdown", ctl.HandleShutdown)
	}

	if live != nil {
		mux.HandleFunc("GET /api/events/live", live.HandleLive)
	}

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
