package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"argusgo/pkg/core"
)

// ControlHandler translates operator requests into pipeline commands.
// Commands run asynchronously; accepted requests return 202 and the
// outcome lands in the feed run log, the event stream and /metrics.
type ControlHandler struct {
	bus         *core.Bus
	integrators map[string]bool
}

// NewControlHandler creates the control surface. integrators is the set
// of names POST /api/control/integrate accepts.
func NewControlHandler(bus *core.Bus, integrators []string) *ControlHandler {
	known := make(map[string]bool, len(integrators))
	for _, name := range integrators {
		known[name] = true
	}
	return &ControlHandler{bus: bus, integrators: known}
}

type fetchRequest struct {
	Sources []string `json:"sources"`
}

type integrateRequest struct {
	Integrator string `json:"integrator"`
}

// HandleFetch handles POST /api/control/fetch. An optional body narrows
// the round to named sources.
func (h *ControlHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	h.submit(w, core.Command{Kind: core.CmdRunFetch, Sources: req.Sources})
}

// HandleEnrich handles POST /api/control/enrich.
func (h *ControlHandler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	h.submit(w, core.Command{Kind: core.CmdRunEnrich})
}

// HandleIntegrate handles POST /api/control/integrate with body
// {"integrator": "<name>"}.
func (h *ControlHandler) HandleIntegrate(w http.ResponseWriter, r *http.Request) {
	var req integrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !h.integrators[req.Integrator] {
		http.Error(w, fmt.Sprintf("unknown integrator %q", req.Integrator), http.StatusBadRequest)
		return
	}
	h.submit(w, core.Command{Kind: core.CmdRunIntegrator, Integrator: req.Integrator})
}

// HandleConsolidate handles POST /api/control/consolidate.
func (h *ControlHandler) HandleConsolidate(w http.ResponseWriter, r *http.Request) {
	h.submit(w, core.Command{Kind: core.CmdRunConsolidate})
}

// HandleReload handles POST /api/control/reload.
func (h *ControlHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	h.submit(w, core.Command{Kind: core.CmdReloadSources})
}

// HandleShutdown handles POST /api/control/shutdown.
func (h *ControlHandler) HandleShutdown(w http.ResponseWriter, r *http.Request) {
	slog.Info("Graceful shutdown initiated via API")
	if err := h.bus.Submit(core.Command{Kind: core.CmdShutdown}); err != nil {
		http.Error(w, "pipeline busy, retry shortly", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("Shutting down...")); err != nil {
		slog.Error("Failed to write shutdown response", "error", err)
	}
}

func (h *ControlHandler) submit(w http.ResponseWriter, cmd core.Command) {
	if err := h.bus.Submit(cmd); err != nil {
		if errors.Is(err, core.ErrBusFull) {
			http.Error(w, "pipeline busy, retry shortly", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "command": string(cmd.Kind)}); err != nil {
		slog.Error("Failed to encode control response", "error", err)
	}
}
