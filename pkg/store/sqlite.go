package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"argusgo/pkg/db"
	"argusgo/pkg/model"
)

// Store defines the repository interface.
// It composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	ArticleStore
	EventStore
	ToneStore
	RiskIndexStore
	ZoneStore
	FeedRunStore
	CacheStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new store.
func NewSQLiteStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for maintenance tasks.
func (s *SQLiteStore) DB() *db.DB {
	return s.db
}

// --- Articles ---

// failed_at is deliberately absent: it only ever appears in WHERE
// clauses of the release and prune statements.
const articleColumns = `id, url, title, content, summary, source_name, source_url,
	published_at, fetched_at, content_hash, image_url,
	original_language, canonical_language, translated_title, translated_content,
	country, region, latitude, longitude,
	risk_level, risk_score, sentiment_score, category, entities,
	processing_state, failure_reason, attempts, claim_token, claimed_at, enriched_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*model.Article, error) {
	var a model.Article
	var title, content, summary, sourceName, sourceURL, contentHash, imageURL sql.NullString
	var origLang, canonLang, trTitle, trContent, country, region sql.NullString
	var riskLevel, category, entitiesJSON, state, failureReason, claimToken sql.NullString
	var lat, lon, riskScore, sentiment sql.NullFloat64
	var publishedAt, fetchedAt, claimedAt, enrichedAt sql.NullTime

	err := row.Scan(&a.ID, &a.URL, &title, &content, &summary, &sourceName, &sourceURL,
		&publishedAt, &fetchedAt, &contentHash, &imageURL,
		&origLang, &canonLang, &trTitle, &trContent,
		&country, &region, &lat, &lon,
		&riskLevel, &riskScore, &sentiment, &category, &entitiesJSON,
		&state, &failureReason, &a.Attempts, &claimToken, &claimedAt, &enrichedAt)
	if err != nil {
		return nil, err
	}

	a.Title = title.String
	a.Content = content.String
	a.Summary = summary.String
	a.SourceName = sourceName.String
	a.SourceURL = sourceURL.String
	a.ContentHash = contentHash.String
	a.ImageURL = imageURL.String
	a.OriginalLanguage = origLang.String
	a.CanonicalLanguage = canonLang.String
	a.TranslatedTitle = trTitle.String
	a.TranslatedContent = trContent.String
	a.Country = country.String
	a.Region = region.String
	a.RiskLevel = model.RiskLevel(riskLevel.String)
	a.Category = category.String
	a.ProcessingState = model.ProcessingState(state.String)
	a.FailureReason = failureReason.String
	a.ClaimToken = claimToken.String

	if publishedAt.Valid {
		a.PublishedAt = publishedAt.Time
	}
	if fetchedAt.Valid {
		a.FetchedAt = fetchedAt.Time
	}
	if claimedAt.Valid {
		a.ClaimedAt = claimedAt.Time
	}
	if enrichedAt.Valid {
		a.EnrichedAt = enrichedAt.Time
	}
	if lat.Valid && lon.Valid {
		a.SetCoordinates(lat.Float64, lon.Float64)
	}
	if riskScore.Valid {
		v := riskScore.Float64
		a.RiskScore = &v
	}
	if sentiment.Valid {
		v := sentiment.Float64
		a.SentimentScore = &v
	}
	if entitiesJSON.Valid && entitiesJSON.String != "" {
		var ents model.Entities
		if jerr := json.Unmarshal([]byte(entitiesJSON.String), &ents); jerr == nil {
			a.Entities = &ents
		}
	}

	return &a, nil
}

// InsertArticle is idempotent on URL. On insert the article's ID is
// filled in; on duplicate the existing row is left untouched.
func (s *SQLiteStore) InsertArticle(ctx context.Context, a *model.Article) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO articles
			(url, title, content, summary, source_name, source_url,
			 published_at, fetched_at, content_hash, image_url,
			 original_language, canonical_language, processing_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.URL, a.Title, a.Content, a.Summary, a.SourceName, a.SourceURL,
		a.PublishedAt.UTC(), a.FetchedAt.UTC(), a.ContentHash, a.ImageURL,
		a.OriginalLanguage, a.CanonicalLanguage, string(model.StateRaw))
	if err != nil {
		return false, fmt.Errorf("failed to insert article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	a.ID = id
	a.ProcessingState = model.StateRaw
	return true, nil
}

// GetArticle returns nil without error when the ID is unknown.
func (s *SQLiteStore) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %d: %w", id, err)
	}
	return a, nil
}

// GetArticleByURL returns nil without error when the URL is unknown.
func (s *SQLiteStore) GetArticleByURL(ctx context.Context, url string) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE url = ?`, url)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article by url: %w", err)
	}
	return a, nil
}

// ClaimForEnrichment tags a batch of raw rows with a fresh claim token
// and flips them to enriching. The single write connection makes the
// update-then-select pair atomic with respect to other claimers.
func (s *SQLiteStore) ClaimForEnrichment(ctx context.Context, batchSize int, olderThan time.Duration) ([]*model.Article, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	token := uuid.NewString()
	now := time.Now().UTC()
	deadline := now.Add(-olderThan)

	_, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET processing_state = ?, claim_token = ?, claimed_at = ?
		WHERE id IN (
			SELECT id FROM articles
			WHERE processing_state = ? AND fetched_at <= ?
			ORDER BY fetched_at ASC
			LIMIT ?
		)`,
		string(model.StateEnriching), token, now,
		string(model.StateRaw), deadline, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim articles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE claim_token = ? ORDER BY fetched_at ASC`, token)
	if err != nil {
		return nil, fmt.Errorf("failed to load claimed articles: %w", err)
	}
	defer rows.Close()

	var claimed []*model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, a)
	}
	return claimed, rows.Err()
}

// CommitEnrichment writes the enrichment outcome for a claimed row.
// Partial results are persisted on failure too; only the bookkeeping
// columns differ between the two target states.
func (s *SQLiteStore) CommitEnrichment(ctx context.Context, id int64, claimToken string, f EnrichmentFields) error {
	if f.State != model.StateEnriched && f.State != model.StateFailed {
		return fmt.Errorf("invalid enrichment target state %q", f.State)
	}

	var entitiesJSON any
	if !f.Entities.Empty() {
		raw, err := json.Marshal(f.Entities)
		if err != nil {
			return fmt.Errorf("failed to marshal entities: %w", err)
		}
		entitiesJSON = string(raw)
	}

	now := time.Now().UTC()
	args := []any{
		f.OriginalLanguage, f.TranslatedTitle, f.TranslatedContent,
		f.Country, f.Region, f.Latitude, f.Longitude,
		string(f.RiskLevel), f.RiskScore, f.SentimentScore,
		f.Category, entitiesJSON,
	}

	var query string
	if f.State == model.StateEnriched {
		query = `
			UPDATE articles SET
				original_language = ?, translated_title = ?, translated_content = ?,
				country = ?, region = ?, latitude = ?, longitude = ?,
				risk_level = ?, risk_score = ?, sentiment_score = ?,
				category = ?, entities = ?,
				processing_state = ?, failure_reason = NULL, attempts = 0,
				enriched_at = ?, failed_at = NULL,
				claim_token = NULL, claimed_at = NULL
			WHERE id = ? AND processing_state = ? AND claim_token = ?`
		args = append(args, string(model.StateEnriched), now,
			id, string(model.StateEnriching), claimToken)
	} else {
		query = `
			UPDATE articles SET
				original_language = ?, translated_title = ?, translated_content = ?,
				country = ?, region = ?, latitude = ?, longitude = ?,
				risk_level = ?, risk_score = ?, sentiment_score = ?,
				category = ?, entities = ?,
				processing_state = ?, failure_reason = ?, attempts = attempts + 1,
				failed_at = ?,
				claim_token = NULL, claimed_at = NULL
			WHERE id = ? AND processing_state = ? AND claim_token = ?`
		args = append(args, string(model.StateFailed), f.FailureReason, now,
			id, string(model.StateEnriching), claimToken)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to commit enrichment for article %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleClaim
	}
	return nil
}

// MarkArticleFailed fails a claimed row without touching enrichment
// columns. Used for worker timeouts and infrastructure trouble.
func (s *SQLiteStore) MarkArticleFailed(ctx context.Context, id int64, claimToken, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET processing_state = ?, failure_reason = ?, attempts = attempts + 1,
		    failed_at = ?, claim_token = NULL, claimed_at = NULL
		WHERE id = ? AND processing_state = ? AND claim_token = ?`,
		string(model.StateFailed), reason, time.Now().UTC(),
		id, string(model.StateEnriching), claimToken)
	if err != nil {
		return fmt.Errorf("failed to mark article %d failed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleClaim
	}
	return nil
}

// ReleaseFailedArticles re-queues failed rows whose cooldown has
// elapsed, as long as they are under the attempt budget.
func (s *SQLiteStore) ReleaseFailedArticles(ctx context.Context, cooldown time.Duration, maxAttempts int) (int, error) {
	deadline := time.Now().UTC().Add(-cooldown)
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET processing_state = ?, failure_reason = NULL, failed_at = NULL
		WHERE processing_state = ? AND attempts < ? AND failed_at <= ?`,
		string(model.StateRaw), string(model.StateFailed), maxAttempts, deadline)
	if err != nil {
		return 0, fmt.Errorf("failed to release failed articles: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ReleaseStuckClaims re-queues enriching rows whose claim is older
// than the given age. A reclaimed row carries a new token, so a worker
// that eventually reports back gets ErrStaleClaim instead of silently
// overwriting the newer claim.
func (s *SQLiteStore) ReleaseStuckClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	deadline := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET processing_state = ?, claim_token = NULL, claimed_at = NULL
		WHERE processing_state = ? AND claimed_at <= ?`,
		string(model.StateRaw), string(model.StateEnriching), deadline)
	if err != nil {
		return 0, fmt.Errorf("failed to release stuck claims: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// RequeueEnrichedBefore schedules old enriched rows for another pass.
func (s *SQLiteStore) RequeueEnrichedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles SET processing_state = ?
		WHERE id IN (
			SELECT id FROM articles
			WHERE processing_state = ? AND enriched_at <= ?
			ORDER BY enriched_at ASC
			LIMIT ?
		)`,
		string(model.StateRaw), string(model.StateEnriched), cutoff.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue enriched articles: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// QueryArticles returns articles matching the filter, newest first by
// publication time.
func (s *SQLiteStore) QueryArticles(ctx context.Context, f ArticleFilter) ([]*model.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	var conds []string
	var args []any

	if f.Language != "" {
		conds = append(conds, "original_language = ?")
		args = append(args, f.Language)
	}
	if f.Country != "" {
		conds = append(conds, "country = ?")
		args = append(args, f.Country)
	}
	if f.RiskLevel != "" {
		conds = append(conds, "risk_level = ?")
		args = append(args, string(f.RiskLevel))
	}
	if f.State != "" {
		conds = append(conds, "processing_state = ?")
		args = append(args, string(f.State))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "published_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "published_at <= ?")
		args = append(args, f.Until.UTC())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY published_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var out []*model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ConflictCandidates returns the enriched, geolocated articles in the
// window that clear the risk threshold or sit at or below the
// sentiment threshold.
func (s *SQLiteStore) ConflictCandidates(ctx context.Context, since time.Time, minRisk, maxSentiment float64) ([]*model.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE processing_state = ?
		  AND latitude IS NOT NULL AND longitude IS NOT NULL
		  AND fetched_at >= ?
		  AND (risk_score >= ? OR sentiment_score <= ?)
		ORDER BY risk_score DESC`,
		string(model.StateEnriched), since.UTC(), minRisk, maxSentiment)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflict candidates: %w", err)
	}
	defer rows.Close()

	var out []*model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountArticlesByState returns the processing queue depths.
func (s *SQLiteStore) CountArticlesByState(ctx context.Context) (map[model.ProcessingState]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT processing_state, COUNT(*) FROM articles GROUP BY processing_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count articles by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.ProcessingState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[model.ProcessingState(state)] = n
	}
	return counts, rows.Err()
}

var aggregateColumns = map[string]string{
	"country":  "country",
	"category": "category",
	"language": "original_language",
}

// AggregateArticles counts enriched articles grouped by country,
// category or language. The dimension is mapped through a whitelist,
// never interpolated from caller input.
func (s *SQLiteStore) AggregateArticles(ctx context.Context, by string, since time.Time) (map[string]int, error) {
	col, ok := aggregateColumns[by]
	if !ok {
		return nil, fmt.Errorf("unknown aggregate dimension %q", by)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+col+`, COUNT(*) FROM articles
		WHERE processing_state = ? AND fetched_at >= ? AND `+col+` IS NOT NULL AND `+col+` != ''
		GROUP BY `+col,
		string(model.StateEnriched), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate articles by %s: %w", by, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

// RiskByCountry averages risk scores of enriched articles per country
// over the window.
func (s *SQLiteStore) RiskByCountry(ctx context.Context, since time.Time) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT country, AVG(risk_score) FROM articles
		WHERE processing_state = ? AND fetched_at >= ?
		  AND country IS NOT NULL AND country != '' AND risk_score IS NOT NULL
		GROUP BY country`,
		string(model.StateEnriched), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate risk by country: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var country string
		var score float64
		if err := rows.Scan(&country, &score); err != nil {
			return nil, err
		}
		out[country] = score
	}
	return out, rows.Err()
}

// PruneArticles deletes articles fetched before the retention window.
func (s *SQLiteStore) PruneArticles(ctx context.Context, olderThan time.Duration) (int, error) {
	deadline := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM articles WHERE fetched_at <= ?`, deadline)
	if err != nil {
		return 0, fmt.Errorf("failed to prune articles: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Event records ---

// UpsertEventRecords writes a batch in one transaction, idempotent on
// (event_id, event_date). The returned count covers new rows only.
func (s *SQLiteStore) UpsertEventRecords(ctx context.Context, recs []*model.EventRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin event upsert: %w", err)
	}
	defer tx.Rollback()

	var before int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_records`).Scan(&before); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO event_records
			(event_id, event_date, country, region, latitude, longitude,
			 event_type, sub_event_type, actor1, actor2, fatalities, notes, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id, event_date) DO UPDATE SET
			country = excluded.country, region = excluded.region,
			latitude = excluded.latitude, longitude = excluded.longitude,
			event_type = excluded.event_type, sub_event_type = excluded.sub_event_type,
			actor1 = excluded.actor1, actor2 = excluded.actor2,
			fatalities = excluded.fatalities, notes = excluded.notes,
			imported_at = excluded.imported_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.EventID, r.EventDate.UTC(), r.Country, r.Region, r.Latitude, r.Longitude,
			r.EventType, r.SubEventType, r.Actor1, r.Actor2, r.Fatalities, r.Notes, now); err != nil {
			return 0, fmt.Errorf("failed to upsert event %s: %w", r.EventID, err)
		}
	}

	var after int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_records`).Scan(&after); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit event upsert: %w", err)
	}
	return after - before, nil
}

// QueryEventsSince returns event records dated on or after the cutoff.
func (s *SQLiteStore) QueryEventsSince(ctx context.Context, since time.Time) ([]*model.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, event_date, country, region, latitude, longitude,
		       event_type, sub_event_type, actor1, actor2, fatalities, notes, imported_at
		FROM event_records WHERE event_date >= ? ORDER BY event_date ASC`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*model.EventRecord
	for rows.Next() {
		var r model.EventRecord
		var country, region, eventType, subType, actor1, actor2, notes sql.NullString
		var eventDate, importedAt sql.NullTime
		if err := rows.Scan(&r.EventID, &eventDate, &country, &region, &r.Latitude, &r.Longitude,
			&eventType, &subType, &actor1, &actor2, &r.Fatalities, &notes, &importedAt); err != nil {
			return nil, err
		}
		r.Country = country.String
		r.Region = region.String
		r.EventType = eventType.String
		r.SubEventType = subType.String
		r.Actor1 = actor1.String
		r.Actor2 = actor2.String
		r.Notes = notes.String
		if eventDate.Valid {
			r.EventDate = eventDate.Time
		}
		if importedAt.Valid {
			r.ImportedAt = importedAt.Time
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// LatestEventDate reports the newest event date, if any. The column is
// selected directly because the driver only maps DATETIME text back to
// time.Time when the result column carries a declared type, which an
// aggregate expression does not.
func (s *SQLiteStore) LatestEventDate(ctx context.Context) (time.Time, bool) {
	var latest time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT event_date FROM event_records ORDER BY event_date DESC LIMIT 1`).Scan(&latest)
	if err != nil {
		return time.Time{}, false
	}
	return latest, true
}

// --- Tone events ---

// UpsertToneEvents writes a batch in one transaction, idempotent on
// global_event_id. The returned count covers new rows only.
func (s *SQLiteStore) UpsertToneEvents(ctx context.Context, recs []*model.ToneEvent) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tone upsert: %w", err)
	}
	defer tx.Rollback()

	var before int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tone_events`).Scan(&before); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO tone_events
			(global_event_id, sql_date, latitude, longitude, avg_tone, goldstein_scale,
			 event_code, event_root_code, num_mentions, num_sources, num_articles,
			 source_url, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare tone upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.GlobalEventID, r.SQLDate.UTC(), r.Latitude, r.Longitude, r.AvgTone, r.GoldsteinScale,
			r.EventCode, r.EventRootCode, r.NumMentions, r.NumSources, r.NumArticles,
			r.SourceURL, now); err != nil {
			return 0, fmt.Errorf("failed to upsert tone event %d: %w", r.GlobalEventID, err)
		}
	}

	var after int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tone_events`).Scan(&after); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit tone upsert: %w", err)
	}
	return after - before, nil
}

// QueryToneSince returns tone events dated on or after the cutoff.
func (s *SQLiteStore) QueryToneSince(ctx context.Context, since time.Time) ([]*model.ToneEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT global_event_id, sql_date, latitude, longitude, avg_tone, goldstein_scale,
		       event_code, event_root_code, num_mentions, num_sources, num_articles,
		       source_url, imported_at
		FROM tone_events WHERE sql_date >= ? ORDER BY sql_date ASC`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query tone events: %w", err)
	}
	defer rows.Close()

	var out []*model.ToneEvent
	for rows.Next() {
		var r model.ToneEvent
		var eventCode, rootCode, sourceURL sql.NullString
		var sqlDate, importedAt sql.NullTime
		if err := rows.Scan(&r.GlobalEventID, &sqlDate, &r.Latitude, &r.Longitude,
			&r.AvgTone, &r.GoldsteinScale, &eventCode, &rootCode,
			&r.NumMentions, &r.NumSources, &r.NumArticles, &sourceURL, &importedAt); err != nil {
			return nil, err
		}
		r.EventCode = eventCode.String
		r.EventRootCode = rootCode.String
		r.SourceURL = sourceURL.String
		if sqlDate.Valid {
			r.SQLDate = sqlDate.Time
		}
		if importedAt.Valid {
			r.ImportedAt = importedAt.Time
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- Risk index ---

// ReplaceRiskIndex swaps the whole series in one transaction.
func (s *SQLiteStore) ReplaceRiskIndex(ctx context.Context, series []model.RiskIndexPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin risk index replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM risk_index`); err != nil {
		return fmt.Errorf("failed to clear risk index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_index (date, gpr_value, gpr_threats, gpr_acts)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare risk index insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range series {
		if _, err := stmt.ExecContext(ctx, p.Date.UTC(), p.GPRValue, p.GPRThreats, p.GPRActs); err != nil {
			return fmt.Errorf("failed to insert risk index point: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit risk index replace: %w", err)
	}
	return nil
}

// GetRiskIndex returns the whole series, oldest first.
func (s *SQLiteStore) GetRiskIndex(ctx context.Context) ([]model.RiskIndexPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, gpr_value, gpr_threats, gpr_acts FROM risk_index ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk index: %w", err)
	}
	defer rows.Close()

	var out []model.RiskIndexPoint
	for rows.Next() {
		var p model.RiskIndexPoint
		var date sql.NullTime
		if err := rows.Scan(&date, &p.GPRValue, &p.GPRThreats, &p.GPRActs); err != nil {
			return nil, err
		}
		if date.Valid {
			p.Date = date.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Zones ---

// ReplaceZones swaps the whole zone collection in one transaction, so
// readers observe the old set or the new set, never a mixture.
func (s *SQLiteStore) ReplaceZones(ctx context.Context, zones []*model.ConflictZone) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin zone replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM zones`); err != nil {
		return fmt.Errorf("failed to clear zones: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO zones
			(zone_id, centroid_lat, centroid_lon, bbox, location_label, country, region,
			 source_scores, total_events, total_fatalities, actors, event_types,
			 latest_event_at, final_risk_score, risk_level, monitoring_frequency,
			 member_article_ids, is_prediction, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare zone insert: %w", err)
	}
	defer stmt.Close()

	for _, z := range zones {
		bbox, err := json.Marshal(z.BBox)
		if err != nil {
			return fmt.Errorf("failed to marshal bbox: %w", err)
		}
		scores, err := json.Marshal(z.SourceScores)
		if err != nil {
			return fmt.Errorf("failed to marshal source scores: %w", err)
		}
		actors, err := json.Marshal(z.Actors)
		if err != nil {
			return fmt.Errorf("failed to marshal actors: %w", err)
		}
		eventTypes, err := json.Marshal(z.EventTypes)
		if err != nil {
			return fmt.Errorf("failed to marshal event types: %w", err)
		}
		members, err := json.Marshal(z.MemberArticleIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal member ids: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			z.ZoneID, z.CentroidLat, z.CentroidLon, string(bbox), z.LocationLabel,
			z.Country, z.Region, string(scores), z.TotalEvents, z.TotalFatalities,
			string(actors), string(eventTypes), z.LatestEventAt.UTC(),
			z.FinalRiskScore, string(z.RiskLevel), string(z.MonitoringFrequency),
			string(members), z.IsPrediction, z.GeneratedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert zone %s: %w", z.ZoneID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit zone replace: %w", err)
	}
	return nil
}

func scanZone(row rowScanner) (*model.ConflictZone, error) {
	var z model.ConflictZone
	var bbox, label, country, region, scores, actors, eventTypes, riskLevel, freq, members sql.NullString
	var latestEventAt, generatedAt sql.NullTime

	err := row.Scan(&z.ZoneID, &z.CentroidLat, &z.CentroidLon, &bbox, &label, &country, &region,
		&scores, &z.TotalEvents, &z.TotalFatalities, &actors, &eventTypes,
		&latestEventAt, &z.FinalRiskScore, &riskLevel, &freq,
		&members, &z.IsPrediction, &generatedAt)
	if err != nil {
		return nil, err
	}

	z.LocationLabel = label.String
	z.Country = country.String
	z.Region = region.String
	z.RiskLevel = model.RiskLevel(riskLevel.String)
	z.MonitoringFrequency = model.MonitoringFrequency(freq.String)
	if latestEventAt.Valid {
		z.LatestEventAt = latestEventAt.Time
	}
	if generatedAt.Valid {
		z.GeneratedAt = generatedAt.Time
	}
	if bbox.Valid && bbox.String != "" {
		if jerr := json.Unmarshal([]byte(bbox.String), &z.BBox); jerr != nil {
			return nil, fmt.Errorf("corrupt bbox for zone %s: %w", z.ZoneID, jerr)
		}
	}
	if scores.Valid && scores.String != "" {
		if jerr := json.Unmarshal([]byte(scores.String), &z.SourceScores); jerr != nil {
			return nil, fmt.Errorf("corrupt source scores for zone %s: %w", z.ZoneID, jerr)
		}
	}
	if actors.Valid && actors.String != "" {
		_ = json.Unmarshal([]byte(actors.String), &z.Actors)
	}
	if eventTypes.Valid && eventTypes.String != "" {
		_ = json.Unmarshal([]byte(eventTypes.String), &z.EventTypes)
	}
	if members.Valid && members.String != "" {
		_ = json.Unmarshal([]byte(members.String), &z.MemberArticleIDs)
	}
	return &z, nil
}

// QueryZones returns zones matching the filter, highest risk first.
// MinRank is applied after the scan; the level ordering is not
// expressible as a column comparison.
func (s *SQLiteStore) QueryZones(ctx context.Context, f ZoneFilter) ([]*model.ConflictZone, error) {
	query := `
		SELECT zone_id, centroid_lat, centroid_lon, bbox, location_label, country, region,
		       source_scores, total_events, total_fatalities, actors, event_types,
		       latest_event_at, final_risk_score, risk_level, monitoring_frequency,
		       member_article_ids, is_prediction, generated_at
		FROM zones`
	var conds []string
	var args []any

	if f.RiskLevel != "" {
		conds = append(conds, "risk_level = ?")
		args = append(args, string(f.RiskLevel))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "generated_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.ExcludePredictions {
		conds = append(conds, "is_prediction = 0")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY final_risk_score DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	var out []*model.ConflictZone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		if f.MinRank > 0 && z.RiskLevel.Rank() < f.MinRank {
			continue
		}
		out = append(out, z)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, rows.Err()
}

// CountZones returns the current zone count.
func (s *SQLiteStore) CountZones(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM zones`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count zones: %w", err)
	}
	return n, nil
}

// --- Feed runs ---

// AppendFeedRun inserts or finalizes a run entry. The runner writes the
// row once at start and replaces it with the final status at the end.
func (s *SQLiteStore) AppendFeedRun(ctx context.Context, run *model.FeedRun) error {
	var endedAt, dataFrom, dataTo any
	if !run.EndedAt.IsZero() {
		endedAt = run.EndedAt.UTC()
	}
	if !run.DataFrom.IsZero() {
		dataFrom = run.DataFrom.UTC()
	}
	if !run.DataTo.IsZero() {
		dataTo = run.DataTo.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO feed_runs
			(id, integrator, started_at, ended_at, records_ingested, status, error_message, data_from, data_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Integrator, run.StartedAt.UTC(), endedAt,
		run.RecordsIngested, string(run.Status), run.ErrorMessage, dataFrom, dataTo)
	if err != nil {
		return fmt.Errorf("failed to write feed run: %w", err)
	}
	return nil
}

// ListFeedRuns returns run entries, newest first. An empty integrator
// matches all integrators.
func (s *SQLiteStore) ListFeedRuns(ctx context.Context, integrator string, limit int) ([]*model.FeedRun, error) {
	query := `
		SELECT id, integrator, started_at, ended_at, records_ingested, status, error_message, data_from, data_to
		FROM feed_runs`
	var args []any
	if integrator != "" {
		query += " WHERE integrator = ?"
		args = append(args, integrator)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed runs: %w", err)
	}
	defer rows.Close()

	var out []*model.FeedRun
	for rows.Next() {
		var r model.FeedRun
		var status, errMsg sql.NullString
		var startedAt, endedAt, dataFrom, dataTo sql.NullTime
		if err := rows.Scan(&r.ID, &r.Integrator, &startedAt, &endedAt,
			&r.RecordsIngested, &status, &errMsg, &dataFrom, &dataTo); err != nil {
			return nil, err
		}
		r.Status = model.FeedStatus(status.String)
		r.ErrorMessage = errMsg.String
		if startedAt.Valid {
			r.StartedAt = startedAt.Time
		}
		if endedAt.Valid {
			r.EndedAt = endedAt.Time
		}
		if dataFrom.Valid {
			r.DataFrom = dataFrom.Time
		}
		if dataTo.Valid {
			r.DataTo = dataTo.Time
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// LastFeedRun returns the most recent run for an integrator, or nil.
func (s *SQLiteStore) LastFeedRun(ctx context.Context, integrator string) (*model.FeedRun, error) {
	runs, err := s.ListFeedRuns(ctx, integrator, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// PruneFeedRuns deletes run entries older than the retention window.
func (s *SQLiteStore) PruneFeedRuns(ctx context.Context, olderThan time.Duration) (int, error) {
	deadline := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM feed_runs WHERE started_at <= ?`, deadline)
	if err != nil {
		return 0, fmt.Errorf("failed to prune feed runs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Cache ---

var gzipWriterPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(nil)
	},
}

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// compress gzips data for storage. Small payloads and payloads that do
// not shrink are stored as-is.
func compress(data []byte) []byte {
	if len(data) < 256 {
		return data
	}
	buf := bufferPool.Get().(*bytes.Buffer)
	defer bufferPool.Put(buf)
	buf.Reset()

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return data
	}
	if err := w.Close(); err != nil {
		return data
	}
	if buf.Len() >= len(data) {
		return data
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// decompress reverses compress. Entries written before compression was
// introduced pass through untouched; gzip is detected by magic bytes.
func decompress(data []byte) []byte {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return data
	}
	return out
}

// GetCache returns the cached value for a key, if present.
func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return nil, false
	}
	return decompress(value), true
}

// GetCacheFresh is GetCache with an age ceiling. created_at defaults to
// CURRENT_TIMESTAMP, which SQLite writes in UTC; the driver maps the
// DATETIME column back to time.Time on scan.
func (s *SQLiteStore) GetCacheFresh(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool) {
	var value []byte
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT value, created_at FROM cache WHERE key = ?`, key).Scan(&value, &createdAt)
	if err != nil {
		return nil, false
	}
	if maxAge > 0 && time.Since(createdAt) > maxAge {
		return nil, false
	}
	return decompress(value), true
}

// HasCache reports whether a key exists without loading the value.
func (s *SQLiteStore) HasCache(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM cache WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check cache key: %w", err)
	}
	return true, nil
}

// SetCache stores a value. Replacing a key refreshes its timestamp.
func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (key, value) VALUES (?, ?)`, key, compress(val))
	if err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

// ListCacheKeys returns all keys with the given prefix.
func (s *SQLiteStore) ListCacheKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache WHERE key LIKE ? ORDER BY key`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Persistent state ---

// GetState returns the stored value for a key, if present.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM persistent_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetState stores a value under a key.
func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO persistent_state (key, value) VALUES (?, ?)`, key, val)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// DeleteState removes a key. Removing an absent key is not an error.
func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM persistent_state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}
