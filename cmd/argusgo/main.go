package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"argusgo/internal/api"
	"argusgo/pkg/config"
	"argusgo/pkg/core"
	"argusgo/pkg/db"
	"argusgo/pkg/db/maintenance"
	"argusgo/pkg/fetch"
	"argusgo/pkg/geo"
	"argusgo/pkg/ingest"
	"argusgo/pkg/logging"
	"argusgo/pkg/nlp"
	"argusgo/pkg/probe"
	"argusgo/pkg/registry"
	"argusgo/pkg/request"
	"argusgo/pkg/store"
	"argusgo/pkg/tracker"
	"argusgo/pkg/translate"
	"argusgo/pkg/version"
	"argusgo/pkg/watcher"
	"argusgo/pkg/zones"
)

// Exit codes let a supervisor tell a bad config from unreachable
// storage without parsing stderr.
const (
	exitConfig  = 1
	exitStorage = 2
	exitSchema  = 3
)

// catalogPollInterval is how often the watcher checks the source
// catalog file for edits.
const catalogPollInterval = 30 * time.Second

var errStorage = errors.New("storage unavailable")

var (
	configPath  = flag.String("config", "configs/argus.yaml", "Path to the configuration file")
	initConfig  = flag.Bool("init-config", false, "Generate default config file and exit")
	checkConfig = flag.Bool("check-config", false, "Validate the configuration and exit")
)

func main() {
	flag.Parse()

	// Secrets may live in a .env next to the binary; absence is fine.
	_ = godotenv.Load()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(exitConfig)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if *checkConfig {
		if _, err := config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
			os.Exit(exitConfig)
		}
		fmt.Println("Config OK:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, db.ErrMigrate):
		return exitSchema
	case errors.Is(err, errStorage):
		return exitStorage
	default:
		return exitConfig
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("ArgusGo started", "version", version.Version, "canonical_language", appCfg.Pipeline.CanonicalLanguage)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, appCfg); err != nil {
		slog.Error("Startup maintenance failed", "error", err)
	}

	reg, err := registry.New(appCfg.Sources.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load source catalog: %w", err)
	}
	enabled, total := reg.Count()
	slog.Info("Source catalog loaded", "enabled", enabled, "total", total)

	tr := tracker.New()
	rc := request.NewWithOptions(st, tr, request.Options{
		Timeout:   time.Duration(appCfg.Request.Timeout),
		Retries:   appCfg.Request.Retries,
		BaseDelay: time.Duration(appCfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(appCfg.Request.Backoff.MaxDelay),
		UserAgent: appCfg.Request.UserAgent,
	})

	// The sqlite store doubles as the durable cache for outbound
	// requests and translations.
	translator := translate.NewFromConfig(ctx, appCfg.Translation, rc, st, tr)
	slog.Info("Translation chain ready", "providers", translator.Providers())

	geoSvcs := initGeo(appCfg, rc, tr)

	consol := zones.New(st, st, geoSvcs.Geocoder, appCfg.Consolidator, tr)
	if appCfg.Consolidator.AIAmplification {
		assessor, err := zones.NewGeminiAssessor(ctx, appCfg.Translation.Gemini)
		if err != nil {
			slog.Warn("AI amplification unavailable", "error", err)
		} else {
			consol.SetAssessor(assessor)
		}
	}

	pipe := &core.Pipeline{
		Cfg:      appCfg,
		Provider: config.NewProvider(appCfg, st),
		Sources:  reg,
		Fetcher:  fetch.New(rc, st, tr, appCfg.Fetcher, appCfg.Pipeline.CanonicalLanguage),
		Enricher: nlp.NewEnricher(st, translator, geoSvcs.Geocoder, reg, geoSvcs.Places, appCfg.Enricher, appCfg.Pipeline.CanonicalLanguage, tr),
		Runner:   ingest.NewRunner(st, tr),
		Integrators: map[string]ingest.Integrator{
			"events":     ingest.NewEventsClient(rc, st, appCfg.Integrators.Events),
			"tone":       ingest.NewToneClient(rc, st, appCfg.Integrators.Tone),
			"risk_index": ingest.NewRiskIndexClient(rc, st, appCfg.Integrators.RiskIndex),
		},
		Consolidate: consol,
		Maint:       st,
		Cache:       dbConn,
		State:       st,
	}

	sched, err := setupScheduler(appCfg, pipe)
	if err != nil {
		return fmt.Errorf("failed to assemble schedule: %w", err)
	}
	go sched.Start(ctx)

	probes := []probe.Probe{
		{
			Name:     "Storage",
			Check:    dbConn.PingContext,
			Critical: true,
		},
		{
			Name: "Source catalog",
			Check: func(context.Context) error {
				if enabled, _ := reg.Count(); enabled == 0 {
					return fmt.Errorf("no enabled sources")
				}
				return nil
			},
			Critical: true,
		},
		{
			Name:     "Translation chain",
			Check:    translator.HealthCheck,
			Critical: true,
			// Listing Gemini models is a real network round trip.
			Timeout: 15 * time.Second,
		},
	}
	if geoSvcs.Places.Gazetteer == nil {
		probes = append(probes, probe.Probe{
			Name:     "Geodata (cities)",
			Check:    func(context.Context) error { return fmt.Errorf("cities file not found or invalid") },
			Critical: false, // enrichment degrades to Nominatim or country-level
		})
	}

	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, appCfg, pipe, st, reg, consol, tr, translator.Providers())
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		if errors.Is(err, db.ErrMigrate) {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return nil, nil, fmt.Errorf("%w: %w", errStorage, err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// geoServices bundles the geocoding chain with the offline place index
// the extractor uses.
type geoServices struct {
	Geocoder *geo.Geocoder
	Places   nlp.GazetteerIndex
}

// initGeo loads the offline geodata and assembles the geocoding chain.
// Missing data files degrade the chain instead of failing startup.
func initGeo(cfg *config.Config, rc *request.Client, trk *tracker.Tracker) geoServices {
	var gaz *geo.Gazetteer
	if cfg.Geocoder.CitiesFile != "" {
		g, err := geo.LoadGazetteer(cfg.Geocoder.CitiesFile)
		if err != nil {
			slog.Warn("Gazetteer not loaded", "path", cfg.Geocoder.CitiesFile, "error", err)
		} else {
			gaz = g
			slog.Info("Gazetteer loaded", "cities", gaz.Size())
		}
	}

	var countries *geo.CountryService
	if cfg.Geocoder.CountriesFile != "" {
		cs, err := geo.NewCountryService(cfg.Geocoder.CountriesFile)
		if err != nil {
			slog.Warn("Country layer not loaded", "path", cfg.Geocoder.CountriesFile, "error", err)
		} else {
			countries = cs
		}
	}

	var nom *geo.NominatimClient
	if cfg.Geocoder.Nominatim.URL != "" {
		nom = geo.NewNominatim(rc, cfg.Geocoder.Nominatim, time.Duration(cfg.Geocoder.CacheTTL), trk)
	}

	return geoServices{
		Geocoder: geo.NewGeocoder(cfg.Geocoder, gaz, nom, countries, trk),
		Places:   nlp.GazetteerIndex{Gazetteer: gaz, Countries: countries},
	}
}

// setupScheduler assembles the job set: the pipeline's own jobs plus
// the catalog watcher when a catalog file is configured.
func setupScheduler(cfg *config.Config, pipe *core.Pipeline) (*core.Scheduler, error) {
	sched := core.NewScheduler(time.Duration(cfg.Scheduler.Heartbeat), time.Duration(cfg.Scheduler.DrainGrace))

	jobs, err := pipe.Jobs()
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		sched.AddJob(j)
	}

	if path := cfg.Sources.CatalogPath; path != "" {
		w := watcher.NewService(path)
		sched.AddJob(core.NewIntervalJob("catalog_watch", catalogPollInterval, func(ctx context.Context, _ time.Time) {
			if len(w.Changed()) == 0 {
				return
			}
			slog.Info("Source catalog changed on disk, reloading")
			if err := pipe.ReloadSources(ctx); err != nil {
				slog.Error("Catalog reload failed", "error", err)
			}
		}))
	}

	return sched, nil
}

func runServer(ctx context.Context, cfg *config.Config, pipe *core.Pipeline, st *store.SQLiteStore, reg *registry.Registry, consol *zones.Consolidator, tr *tracker.Tracker, chain []string) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	bus := core.NewBus()
	go pipe.Serve(ctx, bus, shutdownFunc)

	hub := api.NewHub()
	logging.AddEventSink(hub.Publish)

	integrators := make([]string, 0, len(pipe.Integrators))
	for name := range pipe.Integrators {
		integrators = append(integrators, name)
	}
	sort.Strings(integrators)

	srv := api.NewServer(cfg.Server.Address,
		api.NewArticlesHandler(st),
		api.NewZonesHandler(st, consol),
		api.NewAggregatesHandler(st),
		api.NewStatsHandler(tr, chain),
		api.NewMetricsHandler(st, st, st, consol, integrators),
		api.NewFeedsHandler(st),
		api.NewSourcesHandler(reg),
		api.NewControlHandler(bus, integrators),
		hub,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	err := runServerLifecycle(ctx, srv, quit)
	hub.Shutdown()
	return err
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
