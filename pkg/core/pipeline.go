package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"argusgo/pkg/config"
	"argusgo/pkg/fetch"
	"argusgo/pkg/ingest"
	"argusgo/pkg/logging"
	"argusgo/pkg/model"
	"argusgo/pkg/nlp"
	"argusgo/pkg/zones"
)

// ErrFetchPaused reports a fetch round refused because the operator
// paused polling.
var ErrFetchPaused = errors.New("fetching is paused")

// Claims older than this multiple of the per-article budget belong to
// workers that disappeared.
const stuckClaimMultiple = 4

// Articles re-queued for re-enrichment per maintenance sweep.
const requeueBatchSize = 64

// Fetcher runs one polling round over the given sources.
type Fetcher interface {
	Run(ctx context.Context, sources []model.Source) fetch.Stats
}

// Enricher drains the raw article queue.
type Enricher interface {
	Drain(ctx context.Context) (nlp.Stats, error)
}

// Consolidator rebuilds the zone collection.
type Consolidator interface {
	Run(ctx context.Context) (zones.RunStats, error)
}

// SourceCatalog is the registry surface the pipeline needs.
type SourceCatalog interface {
	Enabled() []model.Source
	Get(name string) (model.Source, bool)
	Reload() error
	Count() (enabled, total int)
}

// MaintenanceStore is the store surface of the maintenance sweep.
type MaintenanceStore interface {
	ReleaseStuckClaims(ctx context.Context, olderThan time.Duration) (int, error)
	ReleaseFailedArticles(ctx context.Context, cooldown time.Duration, maxAttempts int) (int, error)
	RequeueEnrichedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
	PruneArticles(ctx context.Context, olderThan time.Duration) (int, error)
	PruneFeedRuns(ctx context.Context, olderThan time.Duration) (int, error)
}

// CachePruner drops outbound-request cache entries past retention.
type CachePruner interface {
	PruneCache(olderThan time.Duration) error
}

// Pipeline bundles the components the scheduler and the control bus
// drive. Jobs and control commands are thin triggers over the same
// methods, so an operator-requested run behaves exactly like a
// scheduled one.
type Pipeline struct {
	Cfg         *config.Config
	Provider    config.Provider
	Sources     SourceCatalog
	Fetcher     Fetcher
	Enricher    Enricher
	Runner      *ingest.Runner
	Integrators map[string]ingest.Integrator
	Consolidate Consolidator
	Maint       MaintenanceStore
	Cache       CachePruner
	State       StateStore
}

// RunFetch polls the named sources, or every enabled source when names
// is empty. Naming a source explicitly bypasses its enabled flag.
func (p *Pipeline) RunFetch(ctx context.Context, names []string) (fetch.Stats, error) {
	if p.Provider != nil && p.Provider.FetchPaused(ctx) {
		return fetch.Stats{}, ErrFetchPaused
	}

	var sources []model.Source
	if len(names) == 0 {
		sources = p.Sources.Enabled()
	} else {
		for _, name := range names {
			src, ok := p.Sources.Get(name)
			if !ok {
				return fetch.Stats{}, fmt.Errorf("unknown source %q", name)
			}
			sources = append(sources, src)
		}
	}

	st := p.Fetcher.Run(ctx, sources)
	p.setState(ctx, config.KeyLastFetchAt, time.Now().UTC().Format(time.RFC3339))
	logging.LogEvent(&model.PipelineEvent{
		Type:      model.EventFetchRound,
		Title:     "Fetch round",
		Summary:   fmt.Sprintf("sources=%d fresh=%d failed=%d", st.Sources, st.Fresh, st.Failed),
		Timestamp: time.Now().UTC(),
	})
	return st, nil
}

// RunEnrich drains the raw queue.
func (p *Pipeline) RunEnrich(ctx context.Context) (nlp.Stats, error) {
	st, err := p.Enricher.Drain(ctx)
	if err != nil {
		return st, err
	}
	p.setState(ctx, config.KeyLastEnrichAt, time.Now().UTC().Format(time.RFC3339))
	if st.Claimed > 0 {
		logging.LogEvent(&model.PipelineEvent{
			Type:      model.EventEnrichBatch,
			Title:     "Enrichment pass",
			Summary:   fmt.Sprintf("claimed=%d enriched=%d failed=%d", st.Claimed, st.Enriched, st.Failed),
			Timestamp: time.Now().UTC(),
		})
	}
	return st, nil
}

// RunIntegrator pulls one external dataset by integrator name.
func (p *Pipeline) RunIntegrator(ctx context.Context, name string) (*model.FeedRun, error) {
	ig, ok := p.Integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator %q (have %s)", name, strings.Join(p.integratorNames(), ", "))
	}
	return p.Runner.Run(ctx, ig)
}

// RunConsolidate rebuilds the zone collection. zones.ErrBusy passes
// through so callers can report the overlap.
func (p *Pipeline) RunConsolidate(ctx context.Context) (zones.RunStats, error) {
	st, err := p.Consolidate.Run(ctx)
	if err != nil {
		return st, err
	}
	p.setState(ctx, config.KeyLastConsolidation, time.Now().UTC().Format(time.RFC3339))
	return st, nil
}

// ReloadSources re-reads the source catalog from disk.
func (p *Pipeline) ReloadSources(ctx context.Context) error {
	if err := p.Sources.Reload(); err != nil {
		return fmt.Errorf("reload sources: %w", err)
	}
	enabled, total := p.Sources.Count()
	slog.Info("Source catalog reloaded", "enabled", enabled, "total", total)
	logging.LogEvent(&model.PipelineEvent{
		Type:      model.EventSourceReload,
		Title:     "Source catalog reloaded",
		Summary:   fmt.Sprintf("enabled=%d total=%d", enabled, total),
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// RunMaintenance runs the cleanup sweep: stuck and failed claims back
// to the queue, stale articles re-queued, caches and old rows pruned.
// Individual sweep failures are logged, never fatal.
func (p *Pipeline) RunMaintenance(ctx context.Context) {
	mcfg := p.Cfg.Maintenance
	ecfg := p.Cfg.Enricher

	if p.Maint != nil {
		stuckAfter := stuckClaimMultiple * time.Duration(ecfg.Timeout)
		if n, err := p.Maint.ReleaseStuckClaims(ctx, stuckAfter); err != nil {
			slog.Error("Maintenance: stuck claim sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("Maintenance: released stuck claims", "count", n)
		}

		if n, err := p.Maint.ReleaseFailedArticles(ctx, time.Duration(ecfg.RetryCooldown), ecfg.MaxRetries); err != nil {
			slog.Error("Maintenance: failed article sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("Maintenance: released failed articles for retry", "count", n)
		}

		if ecfg.ReEnrichAfter > 0 {
			cutoff := time.Now().UTC().Add(-time.Duration(ecfg.ReEnrichAfter))
			if n, err := p.Maint.RequeueEnrichedBefore(ctx, cutoff, requeueBatchSize); err != nil {
				slog.Error("Maintenance: re-enrichment sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("Maintenance: re-queued stale articles", "count", n)
			}
		}

		if mcfg.ArticleRetention > 0 {
			if n, err := p.Maint.PruneArticles(ctx, time.Duration(mcfg.ArticleRetention)); err != nil {
				slog.Error("Maintenance: article prune failed", "error", err)
			} else if n > 0 {
				slog.Info("Maintenance: pruned old articles", "count", n)
			}
		}

		if mcfg.FeedRunRetention > 0 {
			if n, err := p.Maint.PruneFeedRuns(ctx, time.Duration(mcfg.FeedRunRetention)); err != nil {
				slog.Error("Maintenance: feed run prune failed", "error", err)
			} else if n > 0 {
				slog.Info("Maintenance: pruned old feed runs", "count", n)
			}
		}
	}

	if p.Cache != nil && mcfg.CacheRetention > 0 {
		if err := p.Cache.PruneCache(time.Duration(mcfg.CacheRetention)); err != nil {
			slog.Error("Maintenance: cache prune failed", "error", err)
		}
	}
}

// Jobs assembles the scheduled job set from the configuration. Daily
// and monthly schedules persist their cursors so a restart does not
// repeat a day's pull.
func (p *Pipeline) Jobs() ([]Job, error) {
	icfg := p.Cfg.Integrators

	jobs := []Job{
		NewIntervalJob("fetch", time.Duration(p.Cfg.Fetcher.Interval), func(ctx context.Context, _ time.Time) {
			if _, err := p.RunFetch(ctx, nil); err != nil {
				if errors.Is(err, ErrFetchPaused) {
					slog.Info("Fetch round skipped, polling is paused")
					return
				}
				slog.Error("Scheduled fetch failed", "error", err)
			}
		}),
		NewIntervalJob("enrich", time.Duration(p.Cfg.Enricher.Interval), func(ctx context.Context, _ time.Time) {
			if _, err := p.RunEnrich(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Scheduled enrichment failed", "error", err)
			}
		}),
		NewIntervalJob("consolidate", time.Duration(p.Cfg.Consolidator.Interval), func(ctx context.Context, _ time.Time) {
			if _, err := p.RunConsolidate(ctx); err != nil && !errors.Is(err, zones.ErrBusy) {
				slog.Error("Scheduled consolidation failed", "error", err)
			}
		}),
		NewIntervalJob("maintenance", time.Duration(p.Cfg.Maintenance.Interval), func(ctx context.Context, _ time.Time) {
			p.RunMaintenance(ctx)
		}),
	}

	events, err := NewDailyJob("events", icfg.Events.At, p.State, config.KeyLastEventsRunAt, p.integratorAction("events"))
	if err != nil {
		return nil, err
	}
	tone, err := NewDailyJob("tone", icfg.Tone.At, p.State, config.KeyLastToneDate, p.integratorAction("tone"))
	if err != nil {
		return nil, err
	}
	risk, err := NewMonthlyJob("risk_index", icfg.RiskIndex.DayOfMonth, icfg.RiskIndex.At, p.State, config.KeyLastRiskRunAt, p.integratorAction("risk_index"))
	if err != nil {
		return nil, err
	}
	return append(jobs, events, tone, risk), nil
}

// integratorAction wraps RunIntegrator for a schedule. The Runner
// already records and logs the outcome; wiring trouble still surfaces.
func (p *Pipeline) integratorAction(name string) func(context.Context, time.Time) {
	return func(ctx context.Context, _ time.Time) {
		if _, err := p.RunIntegrator(ctx, name); err != nil && !errors.Is(err, ingest.ErrAlreadyRunning) {
			slog.Debug("Scheduled integrator run ended with error", "integrator", name, "error", err)
		}
	}
}

func (p *Pipeline) integratorNames() []string {
	names := make([]string, 0, len(p.Integrators))
	for name := range p.Integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Pipeline) setState(ctx context.Context, key, val string) {
	if p.State == nil {
		return
	}
	if err := p.State.SetState(ctx, key, val); err != nil {
		slog.Warn("State not persisted", "key", key, "error", err)
	}
}
