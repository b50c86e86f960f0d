package store

import (
	"context"
	"errors"
	"time"

	"argusgo/pkg/model"
)

// ErrStaleClaim is returned when a commit or failure report arrives for
// an article that is no longer held under the caller's claim token,
// usually because maintenance released the row and another worker
// reclaimed it.
var ErrStaleClaim = errors.New("stale enrichment claim")

// ArticleFilter narrows article queries. Zero values mean "any".
type ArticleFilter struct {
	Language  string
	Country   string
	RiskLevel model.RiskLevel
	State     model.ProcessingState
	Since     time.Time
	Until     time.Time
	Limit     int
}

// ZoneFilter narrows zone queries. MinRank filters by risk severity
// using model.RiskLevel.Rank.
type ZoneFilter struct {
	RiskLevel          model.RiskLevel
	MinRank            int
	Since              time.Time
	Limit              int
	ExcludePredictions bool
}

// EnrichmentFields is the single-commit payload of the enricher. State
// must be enriched or failed; partial results ride along either way.
type EnrichmentFields struct {
	State             model.ProcessingState
	FailureReason     string
	OriginalLanguage  string
	TranslatedTitle   string
	TranslatedContent string
	Country           string
	Region            string
	Latitude          *float64
	Longitude         *float64
	RiskLevel         model.RiskLevel
	RiskScore         *float64
	SentimentScore    *float64
	Category          string
	Entities          *model.Entities
}

// ArticleStore handles article persistence and the enrichment lifecycle.
type ArticleStore interface {
	// InsertArticle is idempotent on URL; it reports whether a new row
	// was created.
	InsertArticle(ctx context.Context, a *model.Article) (inserted bool, err error)
	GetArticle(ctx context.Context, id int64) (*model.Article, error)
	GetArticleByURL(ctx context.Context, url string) (*model.Article, error)

	// ClaimForEnrichment atomically moves up to batchSize raw rows
	// fetched at least olderThan ago into enriching and returns them
	// with their claim tokens set.
	ClaimForEnrichment(ctx context.Context, batchSize int, olderThan time.Duration) ([]*model.Article, error)
	// CommitEnrichment finalizes a claim. ErrStaleClaim when the row
	// is no longer held under the given token.
	CommitEnrichment(ctx context.Context, id int64, claimToken string, fields EnrichmentFields) error
	// MarkArticleFailed fails a claim outright (timeout, store trouble).
	MarkArticleFailed(ctx context.Context, id int64, claimToken, reason string) error

	// ReleaseFailedArticles returns failed rows under the attempt
	// budget to raw once their cooldown has passed.
	ReleaseFailedArticles(ctx context.Context, cooldown time.Duration, maxAttempts int) (int, error)
	// ReleaseStuckClaims returns enriching rows whose worker
	// disappeared back to raw.
	ReleaseStuckClaims(ctx context.Context, olderThan time.Duration) (int, error)
	// RequeueEnrichedBefore schedules old enriched rows for
	// re-enrichment.
	RequeueEnrichedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)

	QueryArticles(ctx context.Context, f ArticleFilter) ([]*model.Article, error)
	// ConflictCandidates returns enriched, geolocated articles in the
	// window that clear the risk threshold or sit at or below the
	// sentiment threshold.
	ConflictCandidates(ctx context.Context, since time.Time, minRisk, maxSentiment float64) ([]*model.Article, error)
	CountArticlesByState(ctx context.Context) (map[model.ProcessingState]int, error)
	// AggregateArticles counts enriched articles grouped by "country",
	// "category" or "language".
	AggregateArticles(ctx context.Context, by string, since time.Time) (map[string]int, error)
	// RiskByCountry averages risk scores of enriched articles per
	// country over the window.
	RiskByCountry(ctx context.Context, since time.Time) (map[string]float64, error)
	PruneArticles(ctx context.Context, olderThan time.Duration) (int, error)
}

// EventStore handles the external events dataset.
type EventStore interface {
	// UpsertEventRecords writes a batch in one transaction, idempotent
	// on (event_id, event_date). Returns the number of new rows.
	UpsertEventRecords(ctx context.Context, recs []*model.EventRecord) (int, error)
	QueryEventsSince(ctx context.Context, since time.Time) ([]*model.EventRecord, error)
	LatestEventDate(ctx context.Context) (time.Time, bool)
}

// ToneStore handles the global event-tone dataset.
type ToneStore interface {
	// UpsertToneEvents writes a batch in one transaction, idempotent
	// on global_event_id. Returns the number of new rows.
	UpsertToneEvents(ctx context.Context, recs []*model.ToneEvent) (int, error)
	QueryToneSince(ctx context.Context, since time.Time) ([]*model.ToneEvent, error)
}

// RiskIndexStore handles the global risk-index series.
type RiskIndexStore interface {
	// ReplaceRiskIndex swaps the whole series in one transaction.
	ReplaceRiskIndex(ctx context.Context, series []model.RiskIndexPoint) error
	GetRiskIndex(ctx context.Context) ([]model.RiskIndexPoint, error)
}

// ZoneStore handles the consolidated zone collection.
type ZoneStore interface {
	// ReplaceZones swaps the whole collection in one transaction, so
	// readers observe the old set or the new set, never a mixture.
	ReplaceZones(ctx context.Context, zones []*model.ConflictZone) error
	QueryZones(ctx context.Context, f ZoneFilter) ([]*model.ConflictZone, error)
	CountZones(ctx context.Context) (int, error)
}

// FeedRunStore handles the integrator run log.
type FeedRunStore interface {
	AppendFeedRun(ctx context.Context, run *model.FeedRun) error
	ListFeedRuns(ctx context.Context, integrator string, limit int) ([]*model.FeedRun, error)
	LastFeedRun(ctx context.Context, integrator string) (*model.FeedRun, error)
	PruneFeedRuns(ctx context.Context, olderThan time.Duration) (int, error)
}

// CacheStore handles generic key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	// GetCacheFresh is GetCache with an age ceiling.
	GetCacheFresh(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	SetCache(ctx context.Context, key string, val []byte) error
	ListCacheKeys(ctx context.Context, prefix string) ([]string, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
