// Package ingest pulls external conflict datasets into the store. Each
// integrator wraps one upstream feed (event database, tone export, risk
// index series) and is executed through the Runner, which records every
// attempt in the feed_runs log so operators can see when a feed last
// succeeded and why it failed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"argusgo/pkg/logging"
	"argusgo/pkg/model"
	"argusgo/pkg/store"
	"argusgo/pkg/tracker"
)

// ErrSchema reports an upstream payload whose layout no longer matches
// what the parser expects. Schema drift aborts the run before any row
// is written.
var ErrSchema = errors.New("upstream schema mismatch")

// ErrAlreadyRunning reports an integrator that is still busy with a
// previous run.
var ErrAlreadyRunning = errors.New("integrator already running")

// SchemaError wraps ErrSchema with the columns that went missing.
type SchemaError struct {
	Integrator string
	Missing    []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing columns: %s", e.Integrator, strings.Join(e.Missing, ", "))
}

// Unwrap makes errors.Is(err, ErrSchema) work.
func (e *SchemaError) Unwrap() error { return ErrSchema }

// Result summarizes one successful pull.
type Result struct {
	Records  int
	DataFrom time.Time
	DataTo   time.Time
}

// Integrator is one external dataset pull. Pull fetches, validates and
// upserts in a single pass; it must not leave partial state behind on
// error.
type Integrator interface {
	Name() string
	Pull(ctx context.Context) (Result, error)
}

// Runner executes integrators, guards against overlapping runs of the
// same feed and writes the feed_runs audit row. The row is inserted
// with status running when the pull starts and replaced with the final
// outcome when it ends, so a crash mid-run stays visible.
type Runner struct {
	store store.FeedRunStore
	trk   *tracker.Tracker

	mu      sync.Mutex
	running map[string]bool
}

// NewRunner creates a Runner on top of the feed run log.
func NewRunner(st store.FeedRunStore, trk *tracker.Tracker) *Runner {
	return &Runner{
		store:   st,
		trk:     trk,
		running: make(map[string]bool),
	}
}

// Running reports whether the named integrator is currently mid-run.
func (r *Runner) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[name]
}

func (r *Runner) tryLock(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *Runner) unlock(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[name] = false
}

// Run executes one integrator under its run lock and returns the final
// feed run row. The row is persisted even when the pull fails.
func (r *Runner) Run(ctx context.Context, ig Integrator) (*model.FeedRun, error) {
	name := ig.Name()
	if !r.tryLock(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	defer r.unlock(name)

	run := &model.FeedRun{
		ID:         uuid.NewString(),
		Integrator: name,
		StartedAt:  time.Now().UTC(),
		Status:     model.FeedRunning,
	}
	if err := r.store.AppendFeedRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record feed run start: %w", err)
	}

	slog.Info("Integrator run started", "integrator", name)
	res, pullErr := ig.Pull(ctx)

	run.EndedAt = time.Now().UTC()
	run.RecordsIngested = res.Records
	run.DataFrom = res.DataFrom
	run.DataTo = res.DataTo
	if pullErr != nil {
		run.Status = model.FeedError
		run.ErrorMessage = pullErr.Error()
		if r.trk != nil {
			r.trk.TrackAPIFailure("ingest." + name)
		}
		slog.Error("Integrator run failed", "integrator", name, "error", pullErr)
	} else {
		run.Status = model.FeedOK
		if r.trk != nil {
			if res.Records == 0 {
				r.trk.TrackAPIZero("ingest." + name)
			} else {
				r.trk.TrackAPISuccess("ingest." + name)
			}
			r.trk.TrackItems("ingest."+name, res.Records, 0)
		}
		slog.Info("Integrator run finished", "integrator", name,
			"records", res.Records, "duration", run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}

	// The final row replaces the provisional "running" one.
	if err := r.store.AppendFeedRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Error("Failed to record feed run outcome", "integrator", name, "error", err)
	}

	logging.LogEvent(&model.PipelineEvent{
		Type:      model.EventIntegratorRun,
		Title:     "Integrator " + name,
		Summary:   fmt.Sprintf("status=%s records=%d", run.Status, run.RecordsIngested),
		Timestamp: run.EndedAt,
	})

	return run, pullErr
}
