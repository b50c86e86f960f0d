package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"argusgo/pkg/model"

	"github.com/google/uuid"
)

func seedFeedRun(t *testing.T, st interface {
	AppendFeedRun(ctx context.Context, run *model.FeedRun) error
}, integrator string, started time.Time, status model.FeedStatus, records int,
) {
	t.Helper()
	run := &model.FeedRun{
		ID:              uuid.NewString(),
		Integrator:      integrator,
		StartedAt:       started,
		EndedAt:         started.Add(30 * time.Second),
		RecordsIngested: records,
		Status:          status,
	}
	if err := st.AppendFeedRun(context.Background(), run); err != nil {
		t.Fatalf("append feed run: %v", err)
	}
}

func TestFeedsHandleStatus(t *testing.T) {
	st := setupTestStore(t)
	h := NewFeedsHandler(st)

	base := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	seedFeedRun(t, st, "events", base, model.FeedOK, 120)
	seedFeedRun(t, st, "events", base.Add(24*time.Hour), model.FeedError, 0)
	seedFeedRun(t, st, "tone", base.Add(time.Hour), model.FeedOK, 4500)

	req := httptest.NewRequest("GET", "/api/feeds/status", nil)
	w := httptest.NewRecorder()
	h.HandleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp FeedStatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 3 {
		t.Fatalf("expected 3 runs, got %d", resp.Count)
	}
	if resp.Runs[0].Integrator != "events" || resp.Runs[0].Status != model.FeedError {
		t.Errorf("runs should be newest first, got %+v", resp.Runs[0])
	}
}

func TestFeedsHandleStatus_IntegratorFilter(t *testing.T) {
	st := setupTestStore(t)
	h := NewFeedsHandler(st)

	base := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	seedFeedRun(t, st, "events", base, model.FeedOK, 120)
	seedFeedRun(t, st, "tone", base.Add(time.Hour), model.FeedOK, 4500)

	req := httptest.NewRequest("GET", "/api/feeds/status?integrator=tone&limit=5", nil)
	w := httptest.NewRecorder()
	h.HandleStatus(w, req)

	var resp FeedStatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Runs[0].Integrator != "tone" {
		t.Errorf("filter not applied: %+v", resp.Runs)
	}
	if resp.Runs[0].RecordsIngested != 4500 {
		t.Errorf("records lost in round trip: %d", resp.Runs[0].RecordsIngested)
	}
}
