package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"argusgo/pkg/config"
	"argusgo/pkg/db"
	"argusgo/pkg/model"
	"argusgo/pkg/store"
)

func setupTest(t *testing.T) (*store.SQLiteStore, *db.DB, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}

	return store.NewSQLiteStore(d), d, func() { d.Close() }
}

func testConfig() *config.Config {
	return &config.Config{
		Maintenance: config.MaintenanceConfig{
			CacheRetention: config.Duration(7 * 24 * time.Hour),
		},
	}
}

func TestRun_ReleasesFreshClaims(t *testing.T) {
	ctx := context.Background()
	s, d, cleanup := setupTest(t)
	defer cleanup()

	a := &model.Article{
		URL:         "https://example.com/claimed",
		Title:       "Claimed article",
		SourceName:  "Test Wire",
		PublishedAt: time.Now().Add(-time.Hour),
		FetchedAt:   time.Now().Add(-time.Hour),
		ContentHash: "h1",
	}
	if _, err := s.InsertArticle(ctx, a); err != nil {
		t.Fatalf("InsertArticle() error = %v", err)
	}
	claimed, err := s.ClaimForEnrichment(ctx, 1, 0)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimForEnrichment() = %d articles, err %v", len(claimed), err)
	}

	// The claim is seconds old. A periodic sweep would leave it alone;
	// boot repair must not, because its worker no longer exists.
	if err := Run(ctx, s, d, testConfig()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := s.GetArticleByURL(ctx, a.URL)
	if err != nil {
		t.Fatalf("GetArticleByURL() error = %v", err)
	}
	if got.ProcessingState != model.StateRaw {
		t.Errorf("ProcessingState = %q, want %q", got.ProcessingState, model.StateRaw)
	}
	if got.ClaimToken != "" {
		t.Errorf("ClaimToken = %q, want cleared", got.ClaimToken)
	}
}

func TestRun_PrunesAgedCache(t *testing.T) {
	ctx := context.Background()
	s, d, cleanup := setupTest(t)
	defer cleanup()

	for _, key := range []string{"req:old", "req:fresh"} {
		if err := s.SetCache(ctx, key, []byte("payload")); err != nil {
			t.Fatalf("SetCache(%s) error = %v", key, err)
		}
	}
	stale := time.Now().Add(-30 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec(`UPDATE cache SET created_at = ? WHERE key = ?`, stale, "req:old"); err != nil {
		t.Fatalf("backdating cache entry: %v", err)
	}

	if err := Run(ctx, s, d, testConfig()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ok, _ := s.HasCache(ctx, "req:old"); ok {
		t.Error("stale cache entry survived pruning")
	}
	if ok, _ := s.HasCache(ctx, "req:fresh"); !ok {
		t.Error("fresh cache entry was pruned")
	}
}

func TestRun_ZeroRetentionKeepsCache(t *testing.T) {
	ctx := context.Background()
	s, d, cleanup := setupTest(t)
	defer cleanup()

	if err := s.SetCache(ctx, "req:keep", []byte("payload")); err != nil {
		t.Fatalf("SetCache() error = %v", err)
	}
	stale := time.Now().Add(-365 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec(`UPDATE cache SET created_at = ? WHERE key = ?`, stale, "req:keep"); err != nil {
		t.Fatalf("backdating cache entry: %v", err)
	}

	cfg := &config.Config{}
	if err := Run(ctx, s, d, cfg); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ok, _ := s.HasCache(ctx, "req:keep"); !ok {
		t.Error("cache pruned despite zero retention")
	}
}
