package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Log          LogConfig          `yaml:"log"`
	DB           DBConfig           `yaml:"db"`
	Server       ServerConfig       `yaml:"server"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Request      RequestConfig      `yaml:"request"`
	Sources      SourcesConfig      `yaml:"sources"`
	Fetcher      FetcherConfig      `yaml:"fetcher"`
	Enricher     EnricherConfig     `yaml:"enricher"`
	Translation  TranslationConfig  `yaml:"translation"`
	Geocoder     GeocoderConfig     `yaml:"geocoder"`
	Integrators  IntegratorsConfig  `yaml:"integrators"`
	Consolidator ConsolidatorConfig `yaml:"consolidator"`
	Maintenance  MaintenanceConfig  `yaml:"maintenance"`
}

// PipelineConfig holds global pipeline settings.
type PipelineConfig struct {
	// CanonicalLanguage is the target language all articles are
	// translated into before downstream NLP.
	CanonicalLanguage string `yaml:"canonical_language" validate:"required,len=2"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address" validate:"required"`
}

// SchedulerConfig holds heartbeat settings.
type SchedulerConfig struct {
	Heartbeat Duration `yaml:"heartbeat"`
	// DrainGrace bounds how long running jobs may finish after a stop
	// signal.
	DrainGrace Duration `yaml:"drain_grace"`
}

// RequestConfig holds outbound HTTP settings.
type RequestConfig struct {
	Retries   int           `yaml:"retries" validate:"min=0,max=10"`
	Timeout   Duration      `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Backoff   BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// SourcesConfig points at the feed catalog.
type SourcesConfig struct {
	// CatalogPath overlays the built-in source catalog when present.
	CatalogPath string `yaml:"catalog_path"`
}

// FetcherConfig holds feed fetcher pool settings. The retry budget
// for feed requests comes from RequestConfig; the pool itself never
// re-fetches within a round.
type FetcherConfig struct {
	Workers    int      `yaml:"workers" validate:"min=1,max=64"`
	Interval   Duration `yaml:"interval"`
	Timeout    Duration `yaml:"timeout"`
	QPSPerHost float64  `yaml:"qps_per_host" validate:"gt=0"`
	// DrainGrace bounds how long in-flight requests may finish after
	// a stop signal.
	DrainGrace Duration `yaml:"drain_grace"`
}

// EnricherConfig holds NLP enrichment pool settings.
type EnricherConfig struct {
	Workers   int      `yaml:"workers" validate:"min=1,max=32"`
	Interval  Duration `yaml:"interval"`
	BatchSize int      `yaml:"batch_size" validate:"min=1"`
	// ClaimOlderThan keeps just-fetched rows out of a claim so a
	// batch can settle before workers pick it up.
	ClaimOlderThan Duration `yaml:"claim_older_than"`
	// Timeout bounds total time per article; beyond it the article
	// is marked failed with reason timeout.
	Timeout Duration `yaml:"timeout"`
	// BodyCap truncates content before translation, in bytes.
	BodyCap       int      `yaml:"body_cap" validate:"min=256"`
	MaxRetries    int      `yaml:"max_retries" validate:"min=0,max=10"`
	RetryCooldown Duration `yaml:"retry_cooldown"`
	// ReEnrichAfter re-queues enriched articles older than this.
	// Zero disables scheduled re-enrichment.
	ReEnrichAfter Duration `yaml:"re_enrich_after"`
}

// TranslationConfig holds the provider chain and per-provider settings.
type TranslationConfig struct {
	// Chain is the ordered provider fallback list.
	Chain    []string      `yaml:"chain" validate:"min=1,dive,oneof=libretranslate gemini openai deepl"`
	Timeout  Duration      `yaml:"timeout"`
	CacheTTL Duration      `yaml:"cache_ttl"`
	Breaker  BreakerConfig `yaml:"breaker"`

	LibreTranslate LibreTranslateConfig `yaml:"libretranslate"`
	Gemini         GeminiConfig         `yaml:"gemini"`
	OpenAI         OpenAIConfig         `yaml:"openai"`
	DeepL          DeepLConfig          `yaml:"deepl"`
}

// BreakerConfig holds circuit breaker settings shared by providers.
type BreakerConfig struct {
	// Failures is the consecutive-failure count that opens the breaker.
	Failures uint32 `yaml:"failures" validate:"min=1"`
	// Cooldown is how long an open breaker skips its provider.
	Cooldown Duration `yaml:"cooldown"`
}

// LibreTranslateConfig holds settings for a self-hosted LibreTranslate.
type LibreTranslateConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// GeminiConfig holds settings for the Gemini provider.
type GeminiConfig struct {
	Model string `yaml:"model"`
	Key   string `yaml:"key"`
}

// OpenAIConfig holds settings for an OpenAI-compatible provider.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Key     string `yaml:"key"`
}

// DeepLConfig holds settings for the DeepL provider.
type DeepLConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// GeocoderConfig holds geocoding settings.
type GeocoderConfig struct {
	// Provider order: "gazetteer" (offline), "nominatim" (HTTP).
	Chain         []string        `yaml:"chain" validate:"min=1,dive,oneof=gazetteer nominatim"`
	CitiesFile    string          `yaml:"cities_file"`
	CountriesFile string          `yaml:"countries_file"`
	Nominatim     NominatimConfig `yaml:"nominatim"`
	CacheTTL      Duration        `yaml:"cache_ttl"`
}

// NominatimConfig holds settings for a Nominatim-style endpoint.
type NominatimConfig struct {
	URL   string  `yaml:"url"`
	Email string  `yaml:"email"`
	QPS   float64 `yaml:"qps"`
}

// IntegratorsConfig holds external dataset settings.
type IntegratorsConfig struct {
	Events    EventsIntegratorConfig `yaml:"events"`
	Tone      ToneIntegratorConfig   `yaml:"tone"`
	RiskIndex RiskIndexConfig        `yaml:"risk_index"`
}

// EventsIntegratorConfig holds settings for the ACLED-style events pull.
type EventsIntegratorConfig struct {
	URL        string `yaml:"url"`
	Key        string `yaml:"key"`
	Email      string `yaml:"email"`
	WindowDays int    `yaml:"window_days" validate:"min=1,max=90"`
	At         string `yaml:"at"` // daily, "HH:MM" UTC
	PageSize   int    `yaml:"page_size"`
}

// ToneIntegratorConfig holds settings for the GDELT-style tone pull.
type ToneIntegratorConfig struct {
	BaseURL string `yaml:"base_url"`
	At      string `yaml:"at"` // daily, "HH:MM" UTC
	// RootCodes filters events to conflict-associated root codes.
	RootCodes []string `yaml:"root_codes"`
}

// RiskIndexConfig holds settings for the GPR-style index pull.
type RiskIndexConfig struct {
	URL        string `yaml:"url"`
	DayOfMonth int    `yaml:"day_of_month" validate:"min=1,max=28"`
	At         string `yaml:"at"` // "HH:MM" UTC
}

// ConsolidatorConfig holds zone consolidation settings.
type ConsolidatorConfig struct {
	Interval     Duration `yaml:"interval"`
	LookbackDays int      `yaml:"lookback_days" validate:"min=1,max=90"`
	// NewsRiskThreshold admits enriched articles as signals.
	NewsRiskThreshold float64 `yaml:"news_risk_threshold" validate:"gte=0,lte=1"`
	// NewsSentimentThreshold admits strongly negative articles even
	// below the risk threshold.
	NewsSentimentThreshold  float64 `yaml:"news_sentiment_threshold" validate:"gte=-1,lte=0"`
	ToneMinEvents           int     `yaml:"tone_min_events" validate:"min=1"`
	ProximityRadiusDegrees  float64 `yaml:"proximity_radius_degrees" validate:"gt=0"`
	AIAmplification         bool    `yaml:"ai_amplification"`
	PredictionsEnabled      bool    `yaml:"predictions_enabled"`
	PredictionOffsetDegrees float64 `yaml:"prediction_offset_degrees"`
}

// MaintenanceConfig holds retention and cleanup settings.
type MaintenanceConfig struct {
	Interval         Duration `yaml:"interval"`
	CacheRetention   Duration `yaml:"cache_retention"`
	ArticleRetention Duration `yaml:"article_retention"` // 0 keeps forever
	FeedRunRetention Duration `yaml:"feed_run_retention"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			CanonicalLanguage: "en",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/argus.db",
		},
		Server: ServerConfig{
			Address: "localhost:8642",
		},
		Scheduler: SchedulerConfig{
			Heartbeat:  Duration(1 * time.Second),
			DrainGrace: Duration(30 * time.Second),
		},
		Request: RequestConfig{
			Retries:   3,
			Timeout:   Duration(30 * time.Second),
			UserAgent: "argusgo/0.4",
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		Sources: SourcesConfig{
			CatalogPath: "./configs/sources.yaml",
		},
		Fetcher: FetcherConfig{
			Workers:    8,
			Interval:   Duration(15 * time.Minute),
			Timeout:    Duration(30 * time.Second),
			QPSPerHost: 1.0,
			DrainGrace: Duration(20 * time.Second),
		},
		Enricher: EnricherConfig{
			Workers:        4,
			Interval:       Duration(30 * time.Second),
			BatchSize:      16,
			ClaimOlderThan: Duration(10 * time.Second),
			Timeout:        Duration(60 * time.Second),
			BodyCap:        3072,
			MaxRetries:     3,
			RetryCooldown:  Duration(15 * time.Minute),
			ReEnrichAfter:  0,
		},
		Translation: TranslationConfig{
			Chain:    []string{"libretranslate", "gemini", "openai", "deepl"},
			Timeout:  Duration(15 * time.Second),
			CacheTTL: Duration(14 * Day),
			Breaker: BreakerConfig{
				Failures: 5,
				Cooldown: Duration(2 * time.Minute),
			},
			LibreTranslate: LibreTranslateConfig{
				URL: "http://localhost:5000",
			},
			Gemini: GeminiConfig{
				Model: "gemini-2.5-flash-lite",
			},
			OpenAI: OpenAIConfig{
				BaseURL: "https://api.groq.com/openai/v1",
				Model:   "llama-3.3-70b-versatile",
			},
			DeepL: DeepLConfig{
				URL: "https://api-free.deepl.com/v2/translate",
			},
		},
		Geocoder: GeocoderConfig{
			Chain:         []string{"gazetteer", "nominatim"},
			CitiesFile:    "./data/cities1000.txt",
			CountriesFile: "./data/countries.geojson",
			Nominatim: NominatimConfig{
				URL: "https://nominatim.openstreetmap.org/search",
				QPS: 1.0,
			},
			CacheTTL: Duration(30 * Day),
		},
		Integrators: IntegratorsConfig{
			Events: EventsIntegratorConfig{
				URL:        "https://api.acleddata.com/acled/read",
				WindowDays: 7,
				At:         "02:00",
				PageSize:   5000,
			},
			Tone: ToneIntegratorConfig{
				BaseURL: "http://data.gdeltproject.org/events",
				At:      "02:30",
				// CAMEO root codes for protest, assault, fight,
				// coercion, unconventional mass violence.
				RootCodes: []string{"13", "14", "18", "19", "20"},
			},
			RiskIndex: RiskIndexConfig{
				URL:        "https://www.matteoiacoviello.com/gpr_files/gpr_export.csv",
				DayOfMonth: 3,
				At:         "04:00",
			},
		},
		Consolidator: ConsolidatorConfig{
			Interval:                Duration(30 * time.Minute),
			LookbackDays:            7,
			NewsRiskThreshold:       0.5,
			NewsSentimentThreshold:  -0.3,
			ToneMinEvents:           3,
			ProximityRadiusDegrees:  0.5,
			AIAmplification:         false,
			PredictionsEnabled:      true,
			PredictionOffsetDegrees: 0.5,
		},
		Maintenance: MaintenanceConfig{
			Interval:         Duration(1 * time.Hour),
			CacheRetention:   Duration(7 * Day),
			ArticleRetention: Duration(90 * Day),
			FeedRunRetention: Duration(30 * Day),
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does
// NOT save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	applyEnv(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills secrets from the environment when the file leaves
// them empty. Env values are never written back to disk.
func applyEnv(cfg *Config) {
	if cfg.Translation.Gemini.Key == "" {
		cfg.Translation.Gemini.Key = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Translation.OpenAI.Key == "" {
		cfg.Translation.OpenAI.Key = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Translation.DeepL.Key == "" {
		cfg.Translation.DeepL.Key = os.Getenv("DEEPL_API_KEY")
	}
	if cfg.Translation.LibreTranslate.Key == "" {
		cfg.Translation.LibreTranslate.Key = os.Getenv("LIBRETRANSLATE_API_KEY")
	}
	if cfg.Integrators.Events.Key == "" {
		cfg.Integrators.Events.Key = os.Getenv("ACLED_API_KEY")
	}
	if cfg.Integrators.Events.Email == "" {
		cfg.Integrators.Events.Email = os.Getenv("ACLED_EMAIL")
	}
	if cfg.Geocoder.Nominatim.Email == "" {
		cfg.Geocoder.Nominatim.Email = os.Getenv("NOMINATIM_EMAIL")
	}
}

// expandPaths resolves $VAR and %VAR% references in filesystem paths.
func expandPaths(cfg *Config) {
	cfg.DB.Path = expandPath(cfg.DB.Path)
	cfg.Log.Server.Path = expandPath(cfg.Log.Server.Path)
	cfg.Log.Requests.Path = expandPath(cfg.Log.Requests.Path)
	cfg.Log.Events.Path = expandPath(cfg.Log.Events.Path)
	cfg.Sources.CatalogPath = expandPath(cfg.Sources.CatalogPath)
	cfg.Geocoder.CitiesFile = expandPath(cfg.Geocoder.CitiesFile)
	cfg.Geocoder.CountriesFile = expandPath(cfg.Geocoder.CountriesFile)
}

var winVarRe = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

func expandPath(p string) string {
	p = winVarRe.ReplaceAllStringFunc(p, func(m string) string {
		return os.Getenv(strings.Trim(m, "%"))
	})
	return os.ExpandEnv(p)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# ArgusGo Configuration
# ---------------------
# Durations accept: ns, us, ms, s, m, h, d (day), w (week)
# Secrets left empty here fall back to the environment:
#   GEMINI_API_KEY, OPENAI_API_KEY, DEEPL_API_KEY,
#   LIBRETRANSLATE_API_KEY, ACLED_API_KEY, ACLED_EMAIL

`)
	data = append(header, data...)

	// Inject comments for enum fields. Regex keeps the indentation so
	// the comment lands above the key.
	reChain := regexp.MustCompile(`(?m)^(\s+)chain:`)
	data = reChain.ReplaceAll(data, []byte("${1}# Ordered fallback; first non-empty result wins\n${1}chain:"))

	reCanon := regexp.MustCompile(`(?m)^(\s+)canonical_language:`)
	data = reCanon.ReplaceAll(data, []byte("${1}# ISO 639-1 code all articles are translated into\n${1}canonical_language:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
