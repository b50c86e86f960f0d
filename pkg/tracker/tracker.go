package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks usage statistics per named component: news sources,
// translation providers, integrators and the geocoder all report here.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*componentStats
}

// componentStats holds live counters. Numeric fields are accessed
// atomically; the flag fields too, as 0/1 values.
type componentStats struct {
	cacheHits     int64
	cacheMisses   int64
	apiSuccess    int64
	apiFailures   int64
	apiZeroResult int64
	itemsNew      int64
	itemsDup      int64
	freeTier      int64
	breakerOpen   int64
}

// Stats is a point-in-time copy of one component's counters.
type Stats struct {
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	APISuccess     int64 `json:"api_success"`
	APIFailures    int64 `json:"api_failures"`
	APIZeroResult  int64 `json:"api_zero_result"`
	ItemsNew       int64 `json:"items_new"`
	ItemsDuplicate int64 `json:"items_duplicate"`
	FreeTier       bool  `json:"free_tier,omitempty"`
	BreakerOpen    bool  `json:"breaker_open,omitempty"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*componentStats),
	}
}

// getStats returns the stats object for a component, creating it if needed.
func (t *Tracker) getStats(name string) *componentStats {
	t.mu.RLock()
	s, ok := t.stats[name]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[name]; ok {
		return s
	}
	s = &componentStats{}
	t.stats[name] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(name string) {
	atomic.AddInt64(&t.getStats(name).cacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(name string) {
	atomic.AddInt64(&t.getStats(name).cacheMisses, 1)
}

func (t *Tracker) TrackAPISuccess(name string) {
	atomic.AddInt64(&t.getStats(name).apiSuccess, 1)
}

func (t *Tracker) TrackAPIFailure(name string) {
	atomic.AddInt64(&t.getStats(name).apiFailures, 1)
}

func (t *Tracker) TrackAPIZero(name string) {
	atomic.AddInt64(&t.getStats(name).apiZeroResult, 1)
}

// TrackItems records the outcome of one ingest round for a component:
// how many items were new and how many were deduplicated away.
func (t *Tracker) TrackItems(name string, fresh, duplicate int) {
	s := t.getStats(name)
	atomic.AddInt64(&s.itemsNew, int64(fresh))
	atomic.AddInt64(&s.itemsDup, int64(duplicate))
}

// SetFreeTier marks a component as not incurring API cost. The flag
// survives Reset.
func (t *Tracker) SetFreeTier(name string, free bool) {
	var v int64
	if free {
		v = 1
	}
	atomic.StoreInt64(&t.getStats(name).freeTier, v)
}

// SetBreakerOpen records a circuit breaker state change. The flag
// survives Reset.
func (t *Tracker) SetBreakerOpen(name string, open bool) {
	var v int64
	if open {
		v = 1
	}
	atomic.StoreInt64(&t.getStats(name).breakerOpen, v)
}

// Reset zeroes all counters while preserving component flags.
func (t *Tracker) Reset() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.stats {
		atomic.StoreInt64(&s.cacheHits, 0)
		atomic.StoreInt64(&s.cacheMisses, 0)
		atomic.StoreInt64(&s.apiSuccess, 0)
		atomic.StoreInt64(&s.apiFailures, 0)
		atomic.StoreInt64(&s.apiZeroResult, 0)
		atomic.StoreInt64(&s.itemsNew, 0)
		atomic.StoreInt64(&s.itemsDup, 0)
	}
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]Stats)
	for k, v := range t.stats {
		result[k] = Stats{
			CacheHits:      atomic.LoadInt64(&v.cacheHits),
			CacheMisses:    atomic.LoadInt64(&v.cacheMisses),
			APISuccess:     atomic.LoadInt64(&v.apiSuccess),
			APIFailures:    atomic.LoadInt64(&v.apiFailures),
			APIZeroResult:  atomic.LoadInt64(&v.apiZeroResult),
			ItemsNew:       atomic.LoadInt64(&v.itemsNew),
			ItemsDuplicate: atomic.LoadInt64(&v.itemsDup),
			FreeTier:       atomic.LoadInt64(&v.freeTier) == 1,
			BreakerOpen:    atomic.LoadInt64(&v.breakerOpen) == 1,
		}
	}
	return result
}
