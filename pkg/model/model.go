package model

import (
	"sort"
	"time"
)

// Article is a single news item ingested from a source.
// URL is the natural key; ContentHash over the normalized (title, url)
// pair is the deduplication key.
type Article struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary,omitempty"`
	SourceName  string    `json:"source_name"`
	SourceURL   string    `json:"source_url"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
	ContentHash string    `json:"content_hash"`
	ImageURL    string    `json:"image_url,omitempty"`

	OriginalLanguage  string `json:"original_language"`
	CanonicalLanguage string `json:"canonical_language"`

	// Enrichment columns. Written exactly once by the enricher,
	// read-only thereafter until a scheduled re-enrichment.
	TranslatedTitle   string    `json:"translated_title,omitempty"`
	TranslatedContent string    `json:"translated_content,omitempty"`
	Country           string    `json:"country,omitempty"`
	Region            string    `json:"region,omitempty"`
	Latitude          *float64  `json:"latitude,omitempty"`
	Longitude         *float64  `json:"longitude,omitempty"`
	RiskLevel         RiskLevel `json:"risk_level,omitempty"`
	RiskScore         *float64  `json:"risk_score,omitempty"`
	SentimentScore    *float64  `json:"sentiment_score,omitempty"`
	Category          string    `json:"category,omitempty"`
	Entities          *Entities `json:"entities,omitempty"`

	ProcessingState ProcessingState `json:"processing_state"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	Attempts        int             `json:"attempts"`
	EnrichedAt      time.Time       `json:"enriched_at,omitempty"`

	// ClaimToken identifies the enrichment claim currently holding the
	// row. Internal to the store and the enricher.
	ClaimToken string    `json:"-"`
	ClaimedAt  time.Time `json:"-"`
}

// HasCoordinates reports whether both coordinates are set.
// They are either both present or both absent.
func (a *Article) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// SetCoordinates sets both coordinates at once.
func (a *Article) SetCoordinates(lat, lon float64) {
	a.Latitude = &lat
	a.Longitude = &lon
}

// Entities holds named entities extracted from the canonical text.
type Entities struct {
	Persons       []string `json:"persons,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	Misc          []string `json:"misc,omitempty"`
}

// Empty reports whether no entities were extracted at all.
func (e *Entities) Empty() bool {
	if e == nil {
		return true
	}
	return len(e.Persons) == 0 && len(e.Organizations) == 0 &&
		len(e.Locations) == 0 && len(e.Misc) == 0
}

// Source is a configured feed endpoint. Name is the identity.
type Source struct {
	Name            string   `json:"name"`
	FeedURL         string   `json:"feed_url" validate:"required,url"`
	Protocol        Protocol `json:"protocol" validate:"oneof=rss atom json-api"`
	Language        string   `json:"language" validate:"required"`
	Country         string   `json:"country"`
	Region          string   `json:"region"`
	Priority        Priority `json:"priority" validate:"oneof=critical high medium standard"`
	ConflictZoneTag string   `json:"conflict_zone_tag,omitempty"`
	Enabled         bool     `json:"enabled"`
}

// EventRecord is one row of the external events dataset
// (ACLED-shaped). Identity is (EventID, EventDate); upserts are
// idempotent on that pair.
type EventRecord struct {
	EventID      string    `json:"event_id"`
	EventDate    time.Time `json:"event_date"`
	Country      string    `json:"country"`
	Region       string    `json:"region"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	EventType    string    `json:"event_type"`
	SubEventType string    `json:"sub_event_type"`
	Actor1       string    `json:"actor1"`
	Actor2       string    `json:"actor2"`
	Fatalities   int       `json:"fatalities"`
	Notes        string    `json:"notes"`
	ImportedAt   time.Time `json:"imported_at"`
}

// ToneEvent is one row of the global event-tone dataset (GDELT v1
// daily export). Identity is GlobalEventID.
type ToneEvent struct {
	GlobalEventID  int64     `json:"global_event_id"`
	SQLDate        time.Time `json:"sql_date"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AvgTone        float64   `json:"avg_tone"`       // [-100, 100]
	GoldsteinScale float64   `json:"goldstein_scale"` // [-10, 10]
	EventCode      string    `json:"event_code"`
	EventRootCode  string    `json:"event_root_code"`
	NumMentions    int       `json:"num_mentions"`
	NumSources     int       `json:"num_sources"`
	NumArticles    int       `json:"num_articles"`
	SourceURL      string    `json:"source_url,omitempty"`
	ImportedAt     time.Time `json:"imported_at"`
}

// RiskIndexPoint is one monthly observation of the global risk index
// (GPR-shaped). Identity is Date; the series is replaced whole.
type RiskIndexPoint struct {
	Date       time.Time `json:"date"`
	GPRValue   float64   `json:"gpr_value"`
	GPRThreats float64   `json:"gpr_threats"`
	GPRActs    float64   `json:"gpr_acts"`
}

// ConflictZone is a clustered aggregation of spatially co-located
// conflict signals. Zones are replaced as a whole collection on every
// consolidator run.
type ConflictZone struct {
	ZoneID        string  `json:"zone_id"`
	CentroidLat   float64 `json:"centroid_lat"`
	CentroidLon   float64 `json:"centroid_lon"`
	BBox          BBox    `json:"bbox"`
	LocationLabel string  `json:"location_label"`
	Country       string  `json:"country,omitempty"`
	Region        string  `json:"region,omitempty"`

	SourceScores    map[SignalKind]float64 `json:"source_scores"`
	TotalEvents     int                    `json:"total_events"`
	TotalFatalities int                    `json:"total_fatalities"`
	Actors          []string               `json:"actors,omitempty"`
	EventTypes      []string               `json:"event_types,omitempty"`
	LatestEventAt   time.Time              `json:"latest_event_at"`

	FinalRiskScore      float64             `json:"final_risk_score"`
	RiskLevel           RiskLevel           `json:"risk_level"`
	MonitoringFrequency MonitoringFrequency `json:"monitoring_frequency"`
	MemberArticleIDs    []int64             `json:"member_article_ids,omitempty"`
	IsPrediction        bool                `json:"is_prediction"`
	GeneratedAt         time.Time           `json:"generated_at"`
}

// SourceKinds returns the distinct contributing signal kinds, sorted.
func (z *ConflictZone) SourceKinds() []SignalKind {
	kinds := make([]SignalKind, 0, len(z.SourceScores))
	for k := range z.SourceScores {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// BBox is a geographic bounding box in GeoJSON order
// [west, south, east, north].
type BBox [4]float64

// Contains reports whether the point lies inside the box.
func (b BBox) Contains(lat, lon float64) bool {
	return lon >= b[0] && lat >= b[1] && lon <= b[2] && lat <= b[3]
}

// ConflictSignal is the normalized contribution of one input to the
// consolidator. Weight comes from the fixed per-kind table.
type ConflictSignal struct {
	Lat    float64    `json:"lat"`
	Lon    float64    `json:"lon"`
	Kind   SignalKind `json:"kind"`
	Weight float64    `json:"weight"`
	Score  float64    `json:"score"` // [0,1]

	// Optional context carried into the zone.
	ArticleID  int64     `json:"article_id,omitempty"`
	EventCount int       `json:"event_count,omitempty"`
	Fatalities int       `json:"fatalities,omitempty"`
	Actors     []string  `json:"actors,omitempty"`
	EventTypes []string  `json:"event_types,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
	Label      string    `json:"label,omitempty"`
}

// FeedRun is one entry in the integrator run log: a single run from
// start to end.
type FeedRun struct {
	ID              string     `json:"id"`
	Integrator      string     `json:"integrator"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         time.Time  `json:"ended_at"`
	RecordsIngested int        `json:"records_ingested"`
	Status          FeedStatus `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	DataFrom        time.Time  `json:"data_from,omitempty"`
	DataTo          time.Time  `json:"data_to,omitempty"`
}
