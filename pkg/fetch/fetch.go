// Package fetch polls the configured news sources concurrently,
// normalizes feed entries into articles, and offers them to the
// store. One call to Pool.Run is one polling round; the scheduler
// decides the cadence.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"argusgo/pkg/config"
	"argusgo/pkg/model"
	"argusgo/pkg/request"
	"argusgo/pkg/tracker"
)

const (
	defaultWorkers    = 8
	defaultTimeout    = 30 * time.Second
	defaultQPS        = 1.0
	defaultDrainGrace = 20 * time.Second

	// A source that keeps failing is skipped for entire rounds once
	// its backoff delay exceeds the polling interval.
	sourceBackoffBase = time.Minute
	sourceBackoffMax  = 2 * time.Hour

	// Upper bound on the in-round dedup set. At 64 bytes per key this
	// caps the set at roughly a megabyte.
	maxDedupEntries = 16384
)

// Store is the subset of the article store the pool writes to.
type Store interface {
	InsertArticle(ctx context.Context, a *model.Article) (bool, error)
}

// Stats summarizes one polling round.
type Stats struct {
	Sources    int `json:"sources"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Fresh      int `json:"fresh"`
	Duplicates int `json:"duplicates"`
}

// Pool fans source polls out over a bounded worker group. Per-host
// politeness (QPS, serialization) lives in the request client; the
// pool only decides which sources to poll and how to interpret the
// results.
type Pool struct {
	client  *request.Client
	store   Store
	trk     *tracker.Tracker
	backoff *request.ProviderBackoff

	workers       int
	timeout       time.Duration
	qps           float64
	drainGrace    time.Duration
	canonicalLang string

	mu         sync.Mutex
	registered map[string]bool
}

func New(client *request.Client, st Store, trk *tracker.Tracker, cfg config.FetcherConfig, canonicalLang string) *Pool {
	p := &Pool{
		client:        client,
		store:         st,
		trk:           trk,
		backoff:       request.NewProviderBackoff(sourceBackoffBase, sourceBackoffMax),
		workers:       cfg.Workers,
		timeout:       time.Duration(cfg.Timeout),
		qps:           cfg.QPSPerHost,
		drainGrace:    time.Duration(cfg.DrainGrace),
		canonicalLang: canonicalLang,
		registered:    make(map[string]bool),
	}
	if p.workers <= 0 {
		p.workers = defaultWorkers
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.qps <= 0 {
		p.qps = defaultQPS
	}
	if p.drainGrace <= 0 {
		p.drainGrace = defaultDrainGrace
	}
	return p
}

// Run polls the given sources once and returns the round summary.
// Individual source failures are counted and logged, never fatal.
// When ctx is canceled no new polls start and in-flight requests get
// the drain grace to finish before they are cut off.
func (p *Pool) Run(ctx context.Context, sources []model.Source) Stats {
	start := time.Now()
	var (
		mu sync.Mutex
		st Stats
	)
	st.Sources = len(sources)

	// fetchCtx outlives ctx by at most the drain grace.
	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stopDrain := context.AfterFunc(ctx, func() {
		select {
		case <-time.After(p.drainGrace):
			cancel()
		case <-fetchCtx.Done():
		}
	})
	defer stopDrain()

	seen := newDedupSet(maxDedupEntries)
	g, gctx := errgroup.WithContext(fetchCtx)
	g.SetLimit(p.workers)

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		if !p.backoff.Ready(src.Name) {
			mu.Lock()
			st.Skipped++
			mu.Unlock()
			slog.Debug("Source backed off, skipping this round", "source", src.Name)
			continue
		}
		g.Go(func() error {
			fresh, dup, err := p.fetchSource(gctx, src, seen)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				st.Failed++
				slog.Warn("Feed poll failed", "source", src.Name, "error", err)
				return nil
			}
			st.Succeeded++
			st.Fresh += fresh
			st.Duplicates += dup
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("Fetch round complete",
		"sources", st.Sources,
		"succeeded", st.Succeeded,
		"failed", st.Failed,
		"skipped", st.Skipped,
		"fresh", st.Fresh,
		"duplicates", st.Duplicates,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return st
}

// fetchSource polls one feed and offers its entries to the store.
// Feed order is preserved, which keeps entries newest-first for the
// common case.
func (p *Pool) fetchSource(ctx context.Context, src model.Source, seen *dedupSet) (fresh, dup int, err error) {
	p.ensureHostQPS(src.FeedURL)
	counter := "fetch." + src.Name

	reqCtx, cancelReq := context.WithTimeout(ctx, p.timeout)
	body, err := p.client.Get(reqCtx, src.FeedURL, "")
	cancelReq()
	if err != nil {
		p.backoff.RecordFailure(src.Name)
		p.trk.TrackAPIFailure(counter)
		host := hostOf(src.FeedURL)
		if errors.Is(err, request.ErrRateLimited) {
			return 0, 0, &RateLimitedError{Host: host, Err: err}
		}
		return 0, 0, &FetchError{Host: host, Err: err}
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		p.backoff.RecordFailure(src.Name)
		p.trk.TrackAPIFailure(counter)
		return 0, 0, &ParseError{Source: src.Name, Err: err}
	}

	p.backoff.RecordSuccess(src.Name)
	p.trk.TrackAPISuccess(counter)

	for _, item := range feed.Items {
		a := p.normalizeItem(src, item)
		if a == nil {
			continue
		}
		if seen.seen(a.ContentHash) {
			dup++
			continue
		}
		inserted, ierr := p.store.InsertArticle(ctx, a)
		if ierr != nil {
			slog.Warn("Article insert failed", "source", src.Name, "url", a.URL, "error", ierr)
			continue
		}
		if inserted {
			fresh++
		} else {
			dup++
		}
	}

	p.trk.TrackItems(counter, fresh, dup)
	return fresh, dup, nil
}

// ensureHostQPS registers the per-host rate once per distinct feed
// host. Later sources on the same host share the bucket.
func (p *Pool) ensureHostQPS(feedURL string) {
	prov := request.ProviderFor(feedURL)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.registered[prov] {
		p.client.SetProviderQPS(prov, p.qps)
		p.registered[prov] = true
	}
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

// dedupSet drops repeats within a single round before they reach the
// store. It is cleared wholesale when full, trading a few extra
// storage-level duplicate checks for a hard memory bound.
type dedupSet struct {
	mu   sync.Mutex
	max  int
	keys map[string]struct{}
}

func newDedupSet(max int) *dedupSet {
	return &dedupSet{max: max, keys: make(map[string]struct{})}
}

// seen reports whether the key was already offered this round, and
// records it if not.
func (d *dedupSet) seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.keys[key]; ok {
		return true
	}
	if len(d.keys) >= d.max {
		d.keys = make(map[string]struct{})
	}
	d.keys[key] = struct{}{}
	return false
}
