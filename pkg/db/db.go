package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// ErrMigrate marks a schema migration failure. Callers treat it as
// fatal: the database exists but does not match the code.
var ErrMigrate = errors.New("migration failed")

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrMigrate, err)
	}

	return d, nil
}

// PruneCache removes cache entries older than the specified duration.
func (d *DB) PruneCache(olderThan time.Duration) error {
	// Format time compatible with SQLite DEFAULT CURRENT_TIMESTAMP (YYYY-MM-DD HH:MM:SS)
	deadline := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	_, err := d.Exec("DELETE FROM cache WHERE created_at < ?", deadline)
	return err
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL UNIQUE,
			title TEXT,
			content TEXT,
			summary TEXT,
			source_name TEXT,
			source_url TEXT,
			published_at DATETIME,
			fetched_at DATETIME,
			content_hash TEXT,
			image_url TEXT,
			original_language TEXT,
			canonical_language TEXT,
			translated_title TEXT,
			translated_content TEXT,
			country TEXT,
			region TEXT,
			latitude REAL,
			longitude REAL,
			risk_level TEXT,
			risk_score REAL,
			sentiment_score REAL,
			category TEXT,
			entities TEXT,
			processing_state TEXT NOT NULL DEFAULT 'raw',
			failure_reason TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			claim_token TEXT,
			claimed_at DATETIME,
			failed_at DATETIME,
			enriched_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_state_fetched ON articles(processing_state, fetched_at);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_country_published ON articles(country, published_at);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_latlon ON articles(latitude, longitude);`,
		`CREATE TABLE IF NOT EXISTS event_records (
			event_id TEXT NOT NULL,
			event_date DATE NOT NULL,
			country TEXT,
			region TEXT,
			latitude REAL,
			longitude REAL,
			event_type TEXT,
			sub_event_type TEXT,
			actor1 TEXT,
			actor2 TEXT,
			fatalities INTEGER DEFAULT 0,
			notes TEXT,
			imported_at DATETIME,
			PRIMARY KEY (event_id, event_date)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_event_records_date ON event_records(event_date);`,
		`CREATE TABLE IF NOT EXISTS tone_events (
			global_event_id INTEGER PRIMARY KEY,
			sql_date DATE,
			latitude REAL,
			longitude REAL,
			avg_tone REAL,
			goldstein_scale REAL,
			event_code TEXT,
			event_root_code TEXT,
			num_mentions INTEGER DEFAULT 0,
			num_sources INTEGER DEFAULT 0,
			num_articles INTEGER DEFAULT 0,
			source_url TEXT,
			imported_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tone_events_date ON tone_events(sql_date);`,
		`CREATE TABLE IF NOT EXISTS risk_index (
			date DATE PRIMARY KEY,
			gpr_value REAL,
			gpr_threats REAL,
			gpr_acts REAL
		);`,
		`CREATE TABLE IF NOT EXISTS zones (
			zone_id TEXT PRIMARY KEY,
			centroid_lat REAL,
			centroid_lon REAL,
			bbox TEXT,
			location_label TEXT,
			country TEXT,
			region TEXT,
			source_scores TEXT,
			total_events INTEGER DEFAULT 0,
			total_fatalities INTEGER DEFAULT 0,
			actors TEXT,
			event_types TEXT,
			latest_event_at DATETIME,
			final_risk_score REAL,
			risk_level TEXT,
			monitoring_frequency TEXT,
			member_article_ids TEXT,
			is_prediction BOOLEAN DEFAULT 0,
			generated_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_zones_risk ON zones(risk_level);`,
		`CREATE TABLE IF NOT EXISTS feed_runs (
			id TEXT PRIMARY KEY,
			integrator TEXT NOT NULL,
			started_at DATETIME,
			ended_at DATETIME,
			records_ingested INTEGER DEFAULT 0,
			status TEXT,
			error_message TEXT,
			data_from DATETIME,
			data_to DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_feed_runs_started ON feed_runs(integrator, started_at);`,
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			value BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Migration: add claim_token if missing (pre-0.3 databases)
	var colCount int
	err := d.QueryRow("SELECT count(*) FROM pragma_table_info('articles') WHERE name='claim_token'").Scan(&colCount)
	if err == nil && colCount == 0 {
		if _, err := d.Exec("ALTER TABLE articles ADD COLUMN claim_token TEXT"); err != nil {
			return fmt.Errorf("failed to add claim_token column: %w", err)
		}
	}

	return nil
}
