package nlp

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"argusgo/pkg/config"
	"argusgo/pkg/db"
	"argusgo/pkg/geo"
	"argusgo/pkg/model"
	"argusgo/pkg/store"
	"argusgo/pkg/tracker"
)

func newEnrichStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "enrich_test.db"))
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return store.NewSQLiteStore(d)
}

func seedArticle(t *testing.T, st *store.SQLiteStore, a *model.Article) *model.Article {
	t.Helper()
	if a.FetchedAt.IsZero() {
		a.FetchedAt = time.Now().Add(-time.Minute)
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = a.FetchedAt
	}
	inserted, err := st.InsertArticle(context.Background(), a)
	if err != nil {
		t.Fatalf("InsertArticle: %v", err)
	}
	if !inserted {
		t.Fatalf("article %q not inserted", a.URL)
	}
	return a
}

func enrichCfg() config.EnricherConfig {
	return config.EnricherConfig{Workers: 2, BatchSize: 8, BodyCap: 4096}
}

// mapTranslator serves fixed translations and errors on anything else.
type mapTranslator struct {
	out   map[string]string
	calls atomic.Int32
}

func (m *mapTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	m.calls.Add(1)
	if t, ok := m.out[text]; ok {
		return t, nil
	}
	return "", errors.New("no translation configured")
}

// failTranslator simulates all providers being down.
type failTranslator struct{}

func (failTranslator) Translate(context.Context, string, string, string) (string, error) {
	return "", errors.New("all providers failed")
}

// slowTranslator blocks until the caller's deadline fires.
type slowTranslator struct{}

func (slowTranslator) Translate(ctx context.Context, _, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeResolver struct {
	locs map[string]*geo.Location
}

func (f fakeResolver) Resolve(_ context.Context, place, _ string) (*geo.Location, error) {
	if l, ok := f.locs[place]; ok {
		return l, nil
	}
	return nil, geo.ErrNotFound
}

type fakeSources map[string]model.Source

func (f fakeSources) Get(name string) (model.Source, bool) {
	s, ok := f[name]
	return s, ok
}

func kharkivResolver() fakeResolver {
	return fakeResolver{locs: map[string]*geo.Location{
		"Kharkiv": {Name: "Kharkiv", Lat: 49.99, Lon: 36.23,
			CountryCode: "UA", CountryName: "Ukraine", Region: "Kharkiv Oblast"},
	}}
}

func TestEnricher_RunOnce(t *testing.T) {
	st := newEnrichStore(t)
	ctx := context.Background()
	a := seedArticle(t, st, &model.Article{
		URL:   "https://example.com/kharkiv-strike",
		Title: "Missile strike kills dozens in Kharkiv",
		Content: "The missile strike destroyed an apartment block in Kharkiv. " +
			"Officials said the attack killed twelve people and wounded dozens.",
		SourceName:        "test-wire",
		CanonicalLanguage: "en",
	})

	e := NewEnricher(st, nil, kharkivResolver(), nil, testIndex(), enrichCfg(), "en", tracker.New())
	stats, err := e.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Claimed != 1 || stats.Enriched != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 1 claimed, 1 enriched", stats)
	}

	got, err := st.GetArticle(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if got.ProcessingState != model.StateEnriched {
		t.Fatalf("state = %q (reason %q), want enriched", got.ProcessingState, got.FailureReason)
	}
	if got.OriginalLanguage != "en" {
		t.Errorf("OriginalLanguage = %q, want en", got.OriginalLanguage)
	}
	if got.TranslatedTitle != "" {
		t.Errorf("TranslatedTitle = %q, want empty for canonical-language article", got.TranslatedTitle)
	}
	if got.Country != "Ukraine" {
		t.Errorf("Country = %q, want Ukraine", got.Country)
	}
	if !got.HasCoordinates() {
		t.Fatal("coordinates not set")
	}
	if *got.Latitude != 49.99 || *got.Longitude != 36.23 {
		t.Errorf("coordinates = (%v, %v), want (49.99, 36.23)", *got.Latitude, *got.Longitude)
	}
	if got.SentimentScore == nil || *got.SentimentScore >= 0 {
		t.Errorf("SentimentScore = %v, want negative", got.SentimentScore)
	}
	if got.RiskScore == nil || *got.RiskScore < 0.8 {
		t.Errorf("RiskScore = %v, want >= 0.8", got.RiskScore)
	}
	if got.RiskLevel != model.RiskCritical {
		t.Errorf("RiskLevel = %q, want critical", got.RiskLevel)
	}
	if got.Category != "armed_conflict" {
		t.Errorf("Category = %q, want armed_conflict", got.Category)
	}
	if got.Entities == nil || !slices.Contains(got.Entities.Locations, "Kharkiv") {
		t.Errorf("Entities = %+v, want Kharkiv location", got.Entities)
	}
	if got.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", got.Attempts)
	}

	// Nothing left to claim.
	stats, err = e.RunOnce(ctx)
	if err != nil || stats.Claimed != 0 {
		t.Errorf("second pass = %+v, %v; want empty", stats, err)
	}
}

func TestEnricher_Translation(t *testing.T) {
	st := newEnrichStore(t)
	ctx := context.Background()
	a := seedArticle(t, st, &model.Article{
		URL:              "https://example.com/ataque-kharkiv",
		Title:            "Ataque con misiles contra Kharkiv",
		Content:          "El ataque destruyó un edificio residencial en Kharkiv.",
		SourceName:       "hispano-wire",
		OriginalLanguage: "es",
	})

	tr := &mapTranslator{out: map[string]string{
		"Ataque con misiles contra Kharkiv":                      "Missile attack on Kharkiv",
		"El ataque destruyó un edificio residencial en Kharkiv.": "The attack destroyed a residential building in Kharkiv.",
	}}
	e := NewEnricher(st, tr, kharkivResolver(), nil, testIndex(), enrichCfg(), "en", tracker.New())
	if _, err := e.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := st.GetArticle(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if got.ProcessingState != model.StateEnriched {
		t.Fatalf("state = %q (reason %q), want enriched", got.ProcessingState, got.FailureReason)
	}
	if got.OriginalLanguage != "es" {
		t.Errorf("OriginalLanguage = %q, want es", got.OriginalLanguage)
	}
	if got.TranslatedTitle != "Missile attack on Kharkiv" {
		t.Errorf("TranslatedTitle = %q", got.TranslatedTitle)
	}
	if !strings.Contains(got.TranslatedContent, "residential building") {
		t.Errorf("TranslatedContent = %q", got.TranslatedContent)
	}
	if tr.calls.Load() != 2 {
		t.Errorf("translator calls = %d, want 2", tr.calls.Load())
	}
	// Entities come from the translated text, so the geocoder still
	// finds the place.
	if got.Country != "Ukraine" {
		t.Errorf("Country = %q, want Ukraine", got.Country)
	}
}

func TestEnricher_TranslationFailureStillEnriches(t *testing.T) {
	st := newEnrichStore(t)
	ctx := context.Background()
	a := seedArticle(t, st, &model.Article{
		URL:              "https://example.com/sin-traduccion",
		Title:            "Ataque con misiles contra Kharkiv",
		Content:          "El ataque destruyó un edificio residencial en Kharkiv.",
		SourceName:       "hispano-wire",
		OriginalLanguage: "es",
	})

	e := NewEnricher(st, failTranslator{}, nil, nil, testIndex(), enrichCfg(), "en", tracker.New())
	stats, err := e.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Enriched != 1 {
		t.Fatalf("stats = %+v, want the article enriched despite translation failure", stats)
	}

	got, err := st.GetArticle(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if got.ProcessingState != model.StateEnriched {
		t.Fatalf("state = %q, want enriched", got.ProcessingState)
	}
	if got.TranslatedTitle != "" || got.TranslatedContent != "" {
		t.Errorf("translated fields = (%q, %q), want empty", got.TranslatedTitle, got.TranslatedContent)
	}
	if got.SentimentScore == nil || got.RiskScore == nil {
		t.Error("essential scores missing")
	}
}

func TestEnricher_Timeout(t *testing.T) {
	st := newEnrichStore(t)
	ctx := context.Background()
	a := seedArticle(t, st, &model.Article{
		URL:              "https://example.com/langsam",
		Title:            "Ataque con misiles contra Kharkiv",
		Content:          "El ataque destruyó un edificio residencial.",
		SourceName:       "hispano-wire",
		OriginalLanguage: "es",
	})

	cfg := enrichCfg()
	cfg.Timeout = config.Duration(50 * time.Millisecond)
	e := NewEnricher(st, slowTranslator{}, nil, nil, testIndex(), cfg, "en", tracker.New())
	stats, err := e.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 1 failed", stats)
	}

	got, err := st.GetArticle(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if got.ProcessingState != model.StateFailed {
		t.Fatalf("state = %q, want failed", got.ProcessingState)
	}
	if got.FailureReason != "timeout" {
		t.Errorf("FailureReason = %q, want timeout", got.FailureReason)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
}

func TestEnricher_Drain(t *testing.T) {
	st := newEnrichStore(t)
	ctx := context.Background()
	for i, title := range []string{
		"Ceasefire talks resume after the offensive stalls",
		"Protesters gather as the crackdown spreads",
		"Aid convoy reaches the displaced families",
	} {
		seedArticle(t, st, &model.Article{
			URL:        "https://example.com/drain-" + string(rune('a'+i)),
			Title:      title,
			Content:    "The situation was confirmed by officials from the region on Tuesday.",
			SourceName: "test-wire",
		})
	}

	cfg := enrichCfg()
	cfg.BatchSize = 2
	e := NewEnricher(st, nil, nil, nil, nil, cfg, "en", tracker.New())
	stats, err := e.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if stats.Claimed != 3 || stats.Enriched != 3 {
		t.Fatalf("stats = %+v, want all 3 enriched over two batches", stats)
	}

	counts, err := st.CountArticlesByState(ctx)
	if err != nil {
		t.Fatalf("CountArticlesByState: %v", err)
	}
	if counts[model.StateEnriched] != 3 {
		t.Errorf("enriched count = %d, want 3", counts[model.StateEnriched])
	}
}

func TestEnricher_ArticleLanguage(t *testing.T) {
	e := NewEnricher(nil, nil, nil,
		fakeSources{"somali-wire": {Name: "somali-wire", Language: "so"}},
		nil, config.EnricherConfig{}, "en", tracker.New())

	if got := e.articleLanguage(&model.Article{OriginalLanguage: "ukr"}); got != "uk" {
		t.Errorf("stamped language = %q, want uk", got)
	}
	if got := e.articleLanguage(&model.Article{
		Title:   "The troops were moved from the border",
		Content: "Talks have resumed and this was confirmed by officials.",
	}); got != "en" {
		t.Errorf("detected language = %q, want en", got)
	}
	if got := e.articleLanguage(&model.Article{
		SourceName: "somali-wire", Title: "Xxqzt blarg vroom",
	}); got != "so" {
		t.Errorf("source language = %q, want so", got)
	}
	if got := e.articleLanguage(&model.Article{Title: "Xxqzt blarg vroom"}); got != "en" {
		t.Errorf("fallback language = %q, want en", got)
	}

	// A low-confidence guess loses to the source but still beats the
	// canonical fallback.
	junk := strings.Repeat("zorp ", 24)
	if got := e.articleLanguage(&model.Article{Title: "el que " + junk}); got != "es" {
		t.Errorf("low-confidence language = %q, want es", got)
	}
}

func TestGazetteerIndex_Empty(t *testing.T) {
	if (GazetteerIndex{}).IsPlace("Paris") {
		t.Error("empty index claims to know Paris")
	}
}
