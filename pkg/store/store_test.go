package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"argusgo/pkg/db"
	"argusgo/pkg/model"
)

// setupTestStore creates a test database and store for each test.
func setupTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}

	store := NewSQLiteStore(d)
	cleanup := func() { d.Close() }
	return store, cleanup
}

func newRawArticle(url string) *model.Article {
	return &model.Article{
		URL:               url,
		Title:             "Title for " + url,
		Content:           "Content for " + url,
		SourceName:        "Test Wire",
		SourceURL:         "https://example.com",
		PublishedAt:       time.Now().Add(-time.Hour),
		FetchedAt:         time.Now().Add(-time.Minute),
		ContentHash:       "hash-" + url,
		OriginalLanguage:  "en",
		CanonicalLanguage: "en",
	}
}

func mustInsert(t *testing.T, ctx context.Context, s *SQLiteStore, a *model.Article) {
	t.Helper()
	inserted, err := s.InsertArticle(ctx, a)
	if err != nil {
		t.Fatalf("InsertArticle(%s) error = %v", a.URL, err)
	}
	if !inserted {
		t.Fatalf("InsertArticle(%s) unexpectedly deduplicated", a.URL)
	}
}

func mustClaimOne(t *testing.T, ctx context.Context, s *SQLiteStore) *model.Article {
	t.Helper()
	claimed, err := s.ClaimForEnrichment(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ClaimForEnrichment() error = %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("ClaimForEnrichment() got %d articles, want 1", len(claimed))
	}
	return claimed[0]
}

// =============================================================================
// ArticleStore Tests
// =============================================================================

func TestArticleStore_ClaimForEnrichment(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setup     func(s *SQLiteStore)
		batchSize int
		olderThan time.Duration
		wantLen   int
	}{
		{
			name:      "empty database",
			setup:     func(s *SQLiteStore) {},
			batchSize: 10,
			wantLen:   0,
		},
		{
			name: "claims raw articles up to batch size",
			setup: func(s *SQLiteStore) {
				for i := 0; i < 5; i++ {
					_, _ = s.InsertArticle(ctx, newRawArticle(fmt.Sprintf("https://e.com/%d", i)))
				}
			},
			batchSize: 3,
			wantLen:   3,
		},
		{
			name: "skips articles fresher than the age floor",
			setup: func(s *SQLiteStore) {
				a := newRawArticle("https://e.com/fresh")
				a.FetchedAt = time.Now()
				_, _ = s.InsertArticle(ctx, a)
			},
			batchSize: 10,
			olderThan: time.Hour,
			wantLen:   0,
		},
		{
			name: "does not re-claim enriching articles",
			setup: func(s *SQLiteStore) {
				_, _ = s.InsertArticle(ctx, newRawArticle("https://e.com/once"))
				_, _ = s.ClaimForEnrichment(ctx, 10, 0)
			},
			batchSize: 10,
			wantLen:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, cleanup := setupTestStore(t)
			defer cleanup()
			tt.setup(store)

			got, err := store.ClaimForEnrichment(ctx, tt.batchSize, tt.olderThan)
			if err != nil {
				t.Fatalf("ClaimForEnrichment() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("ClaimForEnrichment() got %d articles, want %d", len(got), tt.wantLen)
			}
			for _, a := range got {
				if a.ProcessingState != model.StateEnriching {
					t.Errorf("claimed article %d state = %s, want enriching", a.ID, a.ProcessingState)
				}
				if a.ClaimToken == "" {
					t.Errorf("claimed article %d has no claim token", a.ID)
				}
			}
		})
	}
}

func TestArticleStore_CommitAfterRelease(t *testing.T) {
	// A worker that stalls past the stuck-claim window must not be able
	// to commit over a newer claim of the same row.
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	mustInsert(t, ctx, store, newRawArticle("https://e.com/stuck"))
	first := mustClaimOne(t, ctx, store)

	// Maintenance releases the stuck claim, another worker re-claims.
	released, err := store.ReleaseStuckClaims(ctx, 0)
	if err != nil {
		t.Fatalf("ReleaseStuckClaims() error = %v", err)
	}
	if released != 1 {
		t.Fatalf("ReleaseStuckClaims() released %d, want 1", released)
	}
	second := mustClaimOne(t, ctx, store)
	if second.ClaimToken == first.ClaimToken {
		t.Fatal("re-claim must issue a fresh token")
	}

	// The stalled worker reports back with its obsolete token.
	err = store.CommitEnrichment(ctx, first.ID, first.ClaimToken, EnrichmentFields{State: model.StateEnriched})
	if !errors.Is(err, ErrStaleClaim) {
		t.Errorf("stale commit error = %v, want ErrStaleClaim", err)
	}
	err = store.MarkArticleFailed(ctx, first.ID, first.ClaimToken, "timeout")
	if !errors.Is(err, ErrStaleClaim) {
		t.Errorf("stale failure report error = %v, want ErrStaleClaim", err)
	}

	// The current holder is unaffected.
	if err := store.CommitEnrichment(ctx, second.ID, second.ClaimToken, EnrichmentFields{State: model.StateEnriched}); err != nil {
		t.Errorf("current holder commit error = %v", err)
	}
}

func TestArticleStore_FailureAndRelease(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	mustInsert(t, ctx, store, newRawArticle("https://e.com/flaky"))
	claimed := mustClaimOne(t, ctx, store)

	if err := store.MarkArticleFailed(ctx, claimed.ID, claimed.ClaimToken, "translation timeout"); err != nil {
		t.Fatalf("MarkArticleFailed() error = %v", err)
	}

	failed, err := store.GetArticle(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetArticle() error = %v", err)
	}
	if failed.ProcessingState != model.StateFailed {
		t.Fatalf("state = %s, want failed", failed.ProcessingState)
	}
	if failed.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", failed.Attempts)
	}
	if failed.FailureReason != "translation timeout" {
		t.Errorf("failure reason = %q", failed.FailureReason)
	}

	// Under the attempt budget: released back to raw once cooled down.
	n, err := store.ReleaseFailedArticles(ctx, 0, 3)
	if err != nil {
		t.Fatalf("ReleaseFailedArticles() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("released %d, want 1", n)
	}
	again, _ := store.GetArticle(ctx, claimed.ID)
	if again.ProcessingState != model.StateRaw {
		t.Errorf("state after release = %s, want raw", again.ProcessingState)
	}
	if again.Attempts != 1 {
		t.Errorf("attempts must survive release, got %d", again.Attempts)
	}

	// Burn the remaining budget; the article then stays failed.
	for i := 0; i < 2; i++ {
		c := mustClaimOne(t, ctx, store)
		if err := store.MarkArticleFailed(ctx, c.ID, c.ClaimToken, "still broken"); err != nil {
			t.Fatalf("MarkArticleFailed() round %d error = %v", i, err)
		}
		released, err := store.ReleaseFailedArticles(ctx, 0, 3)
		if err != nil {
			t.Fatalf("ReleaseFailedArticles() round %d error = %v", i, err)
		}
		if i == 0 && released != 1 {
			t.Fatalf("round %d released %d, want 1", i, released)
		}
		if i == 1 && released != 0 {
			t.Fatalf("exhausted budget still released %d articles", released)
		}
	}
	final, _ := store.GetArticle(ctx, claimed.ID)
	if final.ProcessingState != model.StateFailed {
		t.Errorf("state after exhausted budget = %s, want failed", final.ProcessingState)
	}
	if final.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", final.Attempts)
	}
}

func TestArticleStore_PartialCommitOnFailure(t *testing.T) {
	// A failed enrichment still persists the fields that did succeed.
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	mustInsert(t, ctx, store, newRawArticle("https://e.com/partial"))
	claimed := mustClaimOne(t, ctx, store)

	sentiment := -0.4
	err := store.CommitEnrichment(ctx, claimed.ID, claimed.ClaimToken, EnrichmentFields{
		State:            model.StateFailed,
		FailureReason:    "risk scoring failed",
		OriginalLanguage: "de",
		SentimentScore:   &sentiment,
	})
	if err != nil {
		t.Fatalf("CommitEnrichment() error = %v", err)
	}

	got, _ := store.GetArticle(ctx, claimed.ID)
	if got.ProcessingState != model.StateFailed {
		t.Errorf("state = %s, want failed", got.ProcessingState)
	}
	if got.OriginalLanguage != "de" {
		t.Errorf("partial language not persisted: %q", got.OriginalLanguage)
	}
	if got.SentimentScore == nil || *got.SentimentScore != -0.4 {
		t.Errorf("partial sentiment not persisted: %v", got.SentimentScore)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
}

func TestArticleStore_QueryArticles(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t)
	defer cleanup()

	seed := []struct {
		url     string
		lang    string
		country string
		level   model.RiskLevel
	}{
		{"https://e.com/ua-1", "uk", "Ukraine", model.RiskCritical},
		{"https://e.com/ua-2", "en", "Ukraine", model.RiskMedium},
		{"https://e.com/sd-1", "ar", "Sudan", model.RiskHigh},
	}
	for _, s := range seed {
		a := newRawArticle(s.url)
		a.OriginalLanguage = s.lang
		mustInsert(t, ctx, store, a)
		claimed, err := store.ClaimForEnrichment(ctx, 1, 0)
		if err != nil || len(claimed) != 1 {
			t.Fatalf("claim for %s failed: %v", s.url, err)
		}
		score := 0.5
		if err := store.CommitEnrichment(ctx, claimed[0].ID, claimed[0].ClaimToken, EnrichmentFields{
			State:            model.StateEnriched,
			OriginalLanguage: s.lang,
			Country:          s.country,
			RiskLevel:        s.level,
			RiskScore:        &score,
		}); err != nil {
			t.Fatalf("commit for %s failed: %v", s.url, err)
		}
	}

	tests := []struct {
		name    string
		filter  ArticleFilter
		wantLen int
	}{
		{"no filter", ArticleFilter{}, 3},
		{"by country", ArticleFilter{Country: "Ukraine"}, 2},
		{"by language", ArticleFilter{Language: "ar"}, 1},
		{"by risk level", ArticleFilter{RiskLevel: model.RiskCritical}, 1},
		{"by state", ArticleFilter{State: model.StateEnriched}, 3},
		{"country and level", ArticleFilter{Country: "Ukraine", RiskLevel: model.RiskMedium}, 1},
		{"limit", ArticleFilter{Limit: 2}, 2},
		{"since excludes all", ArticleFilter{Since: time.Now().Add(time.Hour)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.QueryArticles(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryArticles() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("QueryArticles() got %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestArticleStore_ConflictCandidates(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t)
	defer cleanup()

	commit := func(url string, risk, sentiment float64, withCoords bool) {
		a := newRawArticle(url)
		mustInsert(t, ctx, store, a)
		claimed := mustClaimOne(t, ctx, store)
		f := EnrichmentFields{
			State:            model.StateEnriched,
			OriginalLanguage: "en",
			RiskScore:        &risk,
			SentimentScore:   &sentiment,
		}
		if withCoords {
			lat, lon := 10.0, 20.0
			f.Latitude = &lat
			f.Longitude = &lon
		}
		if err := store.CommitEnrichment(ctx, claimed.ID, claimed.ClaimToken, f); err != nil {
			t.Fatalf("commit %s: %v", url, err)
		}
	}

	commit("https://e.com/hot", 0.9, 0.0, true)        // risk qualifies
	commit("https://e.com/grim", 0.2, -0.6, true)      // sentiment qualifies
	commit("https://e.com/calm", 0.1, 0.3, true)       // neither
	commit("https://e.com/nowhere", 0.9, -0.9, false)  // no coordinates

	got, err := store.ConflictCandidates(ctx, time.Now().Add(-time.Hour), 0.5, -0.3)
	if err != nil {
		t.Fatalf("ConflictCandidates() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ConflictCandidates() got %d, want 2", len(got))
	}
	urls := map[string]bool{}
	for _, a := range got {
		urls[a.URL] = true
	}
	if !urls["https://e.com/hot"] || !urls["https://e.com/grim"] {
		t.Errorf("unexpected candidate set: %v", urls)
	}
}

func TestArticleStore_Aggregates(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t)
	defer cleanup()

	seed := []struct {
		url      string
		lang     string
		country  string
		category string
		risk     float64
	}{
		{"https://e.com/a", "en", "Ukraine", "armed_conflict", 0.8},
		{"https://e.com/b", "uk", "Ukraine", "civil_unrest", 0.6},
		{"https://e.com/c", "ar", "Sudan", "armed_conflict", 0.9},
	}
	for _, s := range seed {
		a := newRawArticle(s.url)
		a.OriginalLanguage = s.lang
		mustInsert(t, ctx, store, a)
		claimed := mustClaimOne(t, ctx, store)
		risk := s.risk
		if err := store.CommitEnrichment(ctx, claimed.ID, claimed.ClaimToken, EnrichmentFields{
			State:            model.StateEnriched,
			OriginalLanguage: s.lang,
			Country:          s.country,
			Category:         s.category,
			RiskScore:        &risk,
		}); err != nil {
			t.Fatalf("commit %s: %v", s.url, err)
		}
	}
	since := time.Now().Add(-time.Hour)

	t.Run("by country", func(t *testing.T) {
		got, err := store.AggregateArticles(ctx, "country", since)
		if err != nil {
			t.Fatalf("AggregateArticles() error = %v", err)
		}
		if got["Ukraine"] != 2 || got["Sudan"] != 1 {
			t.Errorf("country counts = %v", got)
		}
	})

	t.Run("by category", func(t *testing.T) {
		got, err := store.AggregateArticles(ctx, "category", since)
		if err != nil {
			t.Fatalf("AggregateArticles() error = %v", err)
		}
		if got["armed_conflict"] != 2 {
			t.Errorf("category counts = %v", got)
		}
	})

	t.Run("by language", func(t *testing.T) {
		got, err := store.AggregateArticles(ctx, "language", since)
		if err != nil {
			t.Fatalf("AggregateArticles() error = %v", err)
		}
		if len(got) != 3 {
			t.Errorf("language counts = %v", got)
		}
	})

	t.Run("unknown dimension", func(t *testing.T) {
		if _, err := store.AggregateArticles(ctx, "publisher", since); err == nil {
			t.Error("expected error for unknown dimension")
		}
	})

	t.Run("risk by country", func(t *testing.T) {
		got, err := store.RiskByCountry(ctx, since)
		if err != nil {
			t.Fatalf("RiskByCountry() error = %v", err)
		}
		if got["Sudan"] != 0.9 {
			t.Errorf("Sudan risk = %v, want 0.9", got["Sudan"])
		}
		ua := got["Ukraine"]
		if ua < 0.69 || ua > 0.71 {
			t.Errorf("Ukraine risk = %v, want about 0.7", ua)
		}
	})

	t.Run("counts by state", func(t *testing.T) {
		counts, err := store.CountArticlesByState(ctx)
		if err != nil {
			t.Fatalf("CountArticlesByState() error = %v", err)
		}
		if counts[model.StateEnriched] != 3 {
			t.Errorf("state counts = %v", counts)
		}
	})
}

// =============================================================================
// EventStore Tests
// =============================================================================

func TestEventStore_UpsertIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	recs := []*model.EventRecord{
		{EventID: "E1", EventDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), Country: "Mali", Fatalities: 3},
		{EventID: "E2", EventDate: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), Country: "Mali", Fatalities: 0},
	}

	n, err := store.UpsertEventRecords(ctx, recs)
	if err != nil {
		t.Fatalf("first UpsertEventRecords() error = %v", err)
	}
	if n != 2 {
		t.Errorf("first upsert new rows = %d, want 2", n)
	}

	// Same window re-ingested with one revised row.
	recs[0].Fatalities = 5
	n, err = store.UpsertEventRecords(ctx, recs)
	if err != nil {
		t.Fatalf("second UpsertEventRecords() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second upsert new rows = %d, want 0", n)
	}

	got, err := store.QueryEventsSince(ctx, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("QueryEventsSince() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (no duplicates)", len(got))
	}
	if got[0].Fatalities != 5 {
		t.Errorf("revised fatalities = %d, want 5", got[0].Fatalities)
	}
}

// =============================================================================
// ToneStore Tests
// =============================================================================

func TestToneStore_UpsertIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	recs := []*model.ToneEvent{
		{GlobalEventID: 1, SQLDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), AvgTone: -4},
		{GlobalEventID: 2, SQLDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), AvgTone: -6},
	}
	if n, err := store.UpsertToneEvents(ctx, recs); err != nil || n != 2 {
		t.Fatalf("first upsert = (%d, %v), want (2, nil)", n, err)
	}
	if n, err := store.UpsertToneEvents(ctx, recs); err != nil || n != 0 {
		t.Fatalf("second upsert = (%d, %v), want (0, nil)", n, err)
	}
	got, err := store.QueryToneSince(ctx, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("QueryToneSince() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d tone events, want 2", len(got))
	}
}

// =============================================================================
// RiskIndexStore Tests
// =============================================================================

func TestRiskIndexStore_ReplaceWhole(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	first := []model.RiskIndexPoint{
		{Date: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), GPRValue: 90},
		{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), GPRValue: 100},
		{Date: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), GPRValue: 120},
	}
	if err := store.ReplaceRiskIndex(ctx, first); err != nil {
		t.Fatalf("first ReplaceRiskIndex() error = %v", err)
	}

	// The upstream file is authoritative, even when it shrinks.
	second := []model.RiskIndexPoint{
		{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), GPRValue: 101},
		{Date: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), GPRValue: 119},
	}
	if err := store.ReplaceRiskIndex(ctx, second); err != nil {
		t.Fatalf("second ReplaceRiskIndex() error = %v", err)
	}

	got, err := store.GetRiskIndex(ctx)
	if err != nil {
		t.Fatalf("GetRiskIndex() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d points, want 2", len(got))
	}
	if got[0].GPRValue != 101 {
		t.Errorf("first point = %v, want revised value 101", got[0].GPRValue)
	}
}

// =============================================================================
// ZoneStore Tests
// =============================================================================

func makeZone(id string, score float64, prediction bool) *model.ConflictZone {
	level := model.RiskLevelForScore(score)
	return &model.ConflictZone{
		ZoneID:              id,
		CentroidLat:         10,
		CentroidLon:         20,
		BBox:                model.BBox{19.75, 9.75, 20.25, 10.25},
		SourceScores:        map[model.SignalKind]float64{model.SignalNews: score},
		FinalRiskScore:      score,
		RiskLevel:           level,
		MonitoringFrequency: model.MonitoringFrequencyForLevel(level),
		IsPrediction:        prediction,
		GeneratedAt:         time.Now(),
	}
}

func TestZoneStore_ReplaceAndFilter(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	gen1 := []*model.ConflictZone{makeZone("old-1", 0.9, false), makeZone("old-2", 0.5, false)}
	if err := store.ReplaceZones(ctx, gen1); err != nil {
		t.Fatalf("first ReplaceZones() error = %v", err)
	}

	gen2 := []*model.ConflictZone{
		makeZone("z-crit", 0.85, false),
		makeZone("z-high", 0.65, false),
		makeZone("z-med", 0.45, false),
		makeZone("z-pred", 0.51, true),
	}
	if err := store.ReplaceZones(ctx, gen2); err != nil {
		t.Fatalf("second ReplaceZones() error = %v", err)
	}

	tests := []struct {
		name    string
		filter  ZoneFilter
		wantIDs []string
	}{
		{"all, risk descending", ZoneFilter{}, []string{"z-crit", "z-high", "z-pred", "z-med"}},
		{"by level", ZoneFilter{RiskLevel: model.RiskCritical}, []string{"z-crit"}},
		{"min rank high", ZoneFilter{MinRank: model.RiskHigh.Rank()}, []string{"z-crit", "z-high"}},
		{"without predictions", ZoneFilter{ExcludePredictions: true}, []string{"z-crit", "z-high", "z-med"}},
		{"limit", ZoneFilter{Limit: 2}, []string{"z-crit", "z-high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.QueryZones(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryZones() error = %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("QueryZones() got %d zones, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ZoneID != id {
					t.Errorf("QueryZones()[%d] = %s, want %s", i, got[i].ZoneID, id)
				}
			}
			for _, z := range got {
				if z.ZoneID == "old-1" || z.ZoneID == "old-2" {
					t.Errorf("previous generation leaked: %s", z.ZoneID)
				}
			}
		})
	}
}

func TestZoneStore_ReplaceIsAtomic(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	setA := []*model.ConflictZone{makeZone("a-1", 0.5, false), makeZone("a-2", 0.6, false), makeZone("a-3", 0.7, false)}
	setB := []*model.ConflictZone{
		makeZone("b-1", 0.5, false), makeZone("b-2", 0.6, false),
		makeZone("b-3", 0.7, false), makeZone("b-4", 0.8, false), makeZone("b-5", 0.9, false),
	}
	if err := store.ReplaceZones(ctx, setA); err != nil {
		t.Fatalf("seed ReplaceZones() error = %v", err)
	}

	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			set := setA
			if i%2 == 0 {
				set = setB
			}
			if err := store.ReplaceZones(ctx, set); err != nil {
				errCh <- err
				return
			}
		}
	}()

	// Readers must only ever observe a complete generation.
	for {
		select {
		case <-done:
			if len(errCh) > 0 {
				t.Fatalf("writer failed: %v", <-errCh)
			}
			return
		default:
			n, err := store.CountZones(ctx)
			if err != nil {
				t.Fatalf("CountZones() error = %v", err)
			}
			if n != len(setA) && n != len(setB) {
				t.Fatalf("observed partial zone set of size %d", n)
			}
		}
	}
}

// =============================================================================
// FeedRunStore Tests
// =============================================================================

func TestFeedRunStore_ListAndPrune(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	runs := []*model.FeedRun{
		{ID: "r1", Integrator: "events", StartedAt: now.Add(-48 * time.Hour), EndedAt: now.Add(-48 * time.Hour), Status: model.FeedOK},
		{ID: "r2", Integrator: "events", StartedAt: now.Add(-1 * time.Hour), EndedAt: now.Add(-1 * time.Hour), Status: model.FeedError, ErrorMessage: "http 500"},
		{ID: "r3", Integrator: "tone", StartedAt: now.Add(-30 * time.Minute), EndedAt: now.Add(-30 * time.Minute), Status: model.FeedOK},
	}
	for _, r := range runs {
		if err := store.AppendFeedRun(ctx, r); err != nil {
			t.Fatalf("AppendFeedRun(%s) error = %v", r.ID, err)
		}
	}

	all, err := store.ListFeedRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListFeedRuns() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListFeedRuns() got %d, want 3", len(all))
	}
	if all[0].ID != "r3" {
		t.Errorf("expected newest first, got %s", all[0].ID)
	}

	events, err := store.ListFeedRuns(ctx, "events", 0)
	if err != nil {
		t.Fatalf("ListFeedRuns(events) error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("ListFeedRuns(events) got %d, want 2", len(events))
	}

	last, err := store.LastFeedRun(ctx, "events")
	if err != nil {
		t.Fatalf("LastFeedRun() error = %v", err)
	}
	if last.ID != "r2" || last.Status != model.FeedError {
		t.Errorf("LastFeedRun() = %+v", last)
	}

	none, err := store.LastFeedRun(ctx, "risk_index")
	if err != nil {
		t.Fatalf("LastFeedRun(risk_index) error = %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for integrator without runs, got %+v", none)
	}

	pruned, err := store.PruneFeedRuns(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneFeedRuns() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("PruneFeedRuns() pruned %d, want 1", pruned)
	}
}

// =============================================================================
// CacheStore Tests
// =============================================================================

func TestCacheStore_Compression(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	// Large compressible payload round-trips through gzip.
	big := bytesRepeat("geopolitical ", 4096)
	if err := store.SetCache(ctx, "big", big); err != nil {
		t.Fatalf("SetCache() error = %v", err)
	}
	got, hit := store.GetCache(ctx, "big")
	if !hit {
		t.Fatal("expected cache hit")
	}
	if string(got) != string(big) {
		t.Error("large payload did not round-trip")
	}

	// Small payloads are stored uncompressed but read identically.
	if err := store.SetCache(ctx, "small", []byte("ok")); err != nil {
		t.Fatalf("SetCache(small) error = %v", err)
	}
	got, hit = store.GetCache(ctx, "small")
	if !hit || string(got) != "ok" {
		t.Errorf("small payload = (%q, %v)", got, hit)
	}
}

func bytesRepeat(s string, n int) []byte {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return out
}

func TestCacheStore_GetCacheFresh(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SetCache(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("SetCache() error = %v", err)
	}

	if _, hit := store.GetCacheFresh(ctx, "k", time.Hour); !hit {
		t.Error("expected fresh entry to hit")
	}

	// Backdate the entry past any reasonable TTL.
	old := time.Now().UTC().Add(-48 * time.Hour).Format("2006-01-02 15:04:05")
	if _, err := store.DB().Exec("UPDATE cache SET created_at = ? WHERE key = ?", old, "k"); err != nil {
		t.Fatalf("backdating cache entry failed: %v", err)
	}

	if _, hit := store.GetCacheFresh(ctx, "k", time.Hour); hit {
		t.Error("expected stale entry to miss")
	}
	if _, hit := store.GetCache(ctx, "k"); !hit {
		t.Error("plain GetCache must still hit stale entries")
	}
}

// =============================================================================
// StateStore Tests
// =============================================================================

func TestStateStore_Lifecycle(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, ok := store.GetState(ctx, "missing"); ok {
		t.Error("expected miss for unset key")
	}
	if err := store.SetState(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	if v, ok := store.GetState(ctx, "k"); !ok || v != "v1" {
		t.Errorf("GetState() = (%q, %v)", v, ok)
	}
	if err := store.SetState(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetState() overwrite error = %v", err)
	}
	if v, _ := store.GetState(ctx, "k"); v != "v2" {
		t.Errorf("overwrite not applied, got %q", v)
	}
	if err := store.DeleteState(ctx, "k"); err != nil {
		t.Fatalf("DeleteState() error = %v", err)
	}
	if _, ok := store.GetState(ctx, "k"); ok {
		t.Error("expected miss after delete")
	}
	if err := store.DeleteState(ctx, "k"); err != nil {
		t.Errorf("deleting absent key should not error: %v", err)
	}
}
