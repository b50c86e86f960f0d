// Package nlp turns raw articles into enriched ones: language
// detection, translation into the canonical language, entity
// extraction, geolocation, sentiment and risk classification. The
// heuristics are deterministic and run offline; remote collaborators
// (translation, geocoding) enter through narrow interfaces so a dead
// provider degrades one step instead of failing the article.
package nlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"argusgo/pkg/config"
	"argusgo/pkg/geo"
	"argusgo/pkg/model"
	"argusgo/pkg/store"
	"argusgo/pkg/tracker"
)

const (
	defaultWorkers   = 4
	defaultBatchSize = 16
	defaultOlderThan = 10 * time.Second
	defaultTimeout   = 60 * time.Second
	defaultBodyCap   = 3072

	// minDetectConfidence gates the stopword detector; genuine text in
	// a covered language scores well above this.
	minDetectConfidence = 0.08
)

// Store is the article lifecycle subset the enricher drives.
type Store interface {
	ClaimForEnrichment(ctx context.Context, batchSize int, olderThan time.Duration) ([]*model.Article, error)
	CommitEnrichment(ctx context.Context, id int64, claimToken string, f store.EnrichmentFields) error
	MarkArticleFailed(ctx context.Context, id int64, claimToken, reason string) error
}

// Translator converts text between languages. translate.Chain
// implements it.
type Translator interface {
	Translate(ctx context.Context, text, src, dst string) (string, error)
}

// Resolver places a location name on the map. geo.Geocoder implements
// it.
type Resolver interface {
	Resolve(ctx context.Context, place, countryHint string) (*geo.Location, error)
}

// SourceLookup answers which source an article came from; the registry
// implements it.
type SourceLookup interface {
	Get(name string) (model.Source, bool)
}

// GazetteerIndex backs the extractor's place test with the offline
// gazetteer and the country layer. Either field may be nil.
type GazetteerIndex struct {
	Gazetteer *geo.Gazetteer
	Countries *geo.CountryService
}

func (x GazetteerIndex) IsPlace(name string) bool {
	if x.Countries != nil {
		if _, ok := x.Countries.CodeForName(name); ok {
			return true
		}
	}
	if x.Gazetteer != nil {
		if _, ok := x.Gazetteer.Lookup(name, ""); ok {
			return true
		}
	}
	return false
}

// Stats summarizes one enrichment pass.
type Stats struct {
	Claimed  int `json:"claimed"`
	Enriched int `json:"enriched"`
	Failed   int `json:"failed"`
}

// Enricher claims raw articles in batches and runs the enrichment
// steps on each, with a bounded worker pool and a per-article time
// budget. Exactly one worker handles a given article; the claim token
// guarantees the commit still owns the row.
type Enricher struct {
	store      Store
	translator Translator
	resolver   Resolver
	sources    SourceLookup
	extractor  *Extractor
	trk        *tracker.Tracker

	canonical string
	workers   int
	batchSize int
	olderThan time.Duration
	timeout   time.Duration
	bodyCap   int
}

// NewEnricher wires the enrichment pool. translator, resolver and
// sources may be nil; the corresponding steps then degrade instead of
// failing articles.
func NewEnricher(st Store, tr Translator, res Resolver, sources SourceLookup, places PlaceIndex, cfg config.EnricherConfig, canonicalLang string, trk *tracker.Tracker) *Enricher {
	e := &Enricher{
		store:      st,
		translator: tr,
		resolver:   res,
		sources:    sources,
		extractor:  NewExtractor(places),
		trk:        trk,
		canonical:  NormalizeLang(canonicalLang),
		workers:    cfg.Workers,
		batchSize:  cfg.BatchSize,
		olderThan:  time.Duration(cfg.ClaimOlderThan),
		timeout:    time.Duration(cfg.Timeout),
		bodyCap:    cfg.BodyCap,
	}
	if e.canonical == "" {
		e.canonical = "en"
	}
	if e.workers <= 0 {
		e.workers = defaultWorkers
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultBatchSize
	}
	if e.olderThan < 0 {
		e.olderThan = defaultOlderThan
	}
	if e.timeout <= 0 {
		e.timeout = defaultTimeout
	}
	if e.bodyCap <= 0 {
		e.bodyCap = defaultBodyCap
	}
	return e
}

// RunOnce claims one batch and enriches it. A zero Claimed means the
// raw queue had nothing old enough to take.
func (e *Enricher) RunOnce(ctx context.Context) (Stats, error) {
	claimed, err := e.store.ClaimForEnrichment(ctx, e.batchSize, e.olderThan)
	if err != nil {
		return Stats{}, fmt.Errorf("claim enrichment batch: %w", err)
	}
	if len(claimed) == 0 {
		return Stats{}, nil
	}

	var enriched, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, art := range claimed {
		g.Go(func() error {
			ok, err := e.enrichOne(ctx, art)
			switch {
			case err != nil:
				if !errors.Is(err, context.Canceled) && !errors.Is(err, store.ErrStaleClaim) {
					slog.Warn("Enrichment aborted", "article", art.ID, "error", err)
				}
			case ok:
				enriched.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	st := Stats{
		Claimed:  len(claimed),
		Enriched: int(enriched.Load()),
		Failed:   int(failed.Load()),
	}
	slog.Info("Enrichment batch complete",
		"claimed", st.Claimed, "enriched", st.Enriched, "failed", st.Failed)
	return st, nil
}

// Drain runs batches until the raw queue is empty or the context ends.
func (e *Enricher) Drain(ctx context.Context) (Stats, error) {
	var total Stats
	for {
		st, err := e.RunOnce(ctx)
		total.Claimed += st.Claimed
		total.Enriched += st.Enriched
		total.Failed += st.Failed
		if err != nil || st.Claimed == 0 {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// enrichOne runs the step pipeline for a single claimed article and
// commits the outcome. It reports whether the article ended enriched;
// a non-nil error means the claim was left for the stuck-claim sweep.
func (e *Enricher) enrichOne(ctx context.Context, a *model.Article) (enriched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Enrichment worker panicked", "article", a.ID, "panic", r)
			if mErr := e.store.MarkArticleFailed(ctx, a.ID, a.ClaimToken, fmt.Sprintf("panic: %v", r)); mErr != nil {
				slog.Warn("Failed to mark panicked article", "article", a.ID, "error", mErr)
			}
			enriched, err = false, nil
		}
	}()

	artCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	fields, stepErrs := e.buildFields(artCtx, a)

	if err := ctx.Err(); err != nil {
		// Shutting down; the stuck-claim sweep re-queues the row.
		return false, err
	}
	if artCtx.Err() != nil {
		e.trk.TrackAPIFailure("enrich")
		if err := e.store.MarkArticleFailed(ctx, a.ID, a.ClaimToken, "timeout"); err != nil {
			return false, fmt.Errorf("mark timed-out article %d: %w", a.ID, err)
		}
		slog.Warn("Article enrichment timed out", "article", a.ID, "url", a.URL)
		return false, nil
	}

	if fields.OriginalLanguage == "" || fields.SentimentScore == nil || fields.RiskScore == nil {
		fields.State = model.StateFailed
		fields.FailureReason = failureReason(stepErrs)
	} else if len(stepErrs) > 0 {
		slog.Debug("Article enriched with partial failures",
			"article", a.ID, "errors", strings.Join(stepErrs, "; "))
	}

	if err := e.store.CommitEnrichment(ctx, a.ID, a.ClaimToken, fields); err != nil {
		if errors.Is(err, store.ErrStaleClaim) {
			slog.Warn("Enrichment claim went stale", "article", a.ID)
		}
		return false, fmt.Errorf("commit article %d: %w", a.ID, err)
	}

	if fields.State == model.StateEnriched {
		e.trk.TrackAPISuccess("enrich")
		return true, nil
	}
	e.trk.TrackAPIFailure("enrich")
	return false, nil
}

// buildFields runs the ordered enrichment steps. Step failures land in
// the returned reasons instead of aborting; whatever succeeded is in
// the fields.
func (e *Enricher) buildFields(ctx context.Context, a *model.Article) (store.EnrichmentFields, []string) {
	var reasons []string
	fields := store.EnrichmentFields{State: model.StateEnriched}

	// 1. Language.
	lang := e.articleLanguage(a)
	fields.OriginalLanguage = lang

	// 2. Translation into the canonical language. The working title
	// and body from here on are canonical when translation succeeded,
	// original otherwise.
	title, body := a.Title, capBytes(a.Content, e.bodyCap)
	if lang != e.canonical && e.translator != nil {
		if tt, err := e.translator.Translate(ctx, a.Title, lang, e.canonical); err != nil {
			reasons = append(reasons, fmt.Sprintf("translate title: %v", err))
		} else {
			fields.TranslatedTitle = tt
			title = tt
		}
		if tb, err := e.translator.Translate(ctx, body, lang, e.canonical); err != nil {
			reasons = append(reasons, fmt.Sprintf("translate body: %v", err))
		} else {
			fields.TranslatedContent = tb
			body = tb
		}
	}

	// 3. Entities.
	ents := e.extractor.Extract(title, body)
	if !ents.Empty() {
		fields.Entities = ents
	}

	// 4. Geolocation from the location entities. The source's country
	// says where the newsroom sits, not where the event happened, so
	// it never feeds this step.
	if len(ents.Locations) > 0 && e.resolver != nil {
		e.locate(ctx, ents.Locations, title, body, &fields, &reasons)
	}

	// 5. Sentiment over the canonical text.
	text := title + "\n" + body
	s := Sentiment(text)
	fields.SentimentScore = &s

	// 6. Risk classification.
	as := AssessRisk(text, s, ents, nil)
	fields.RiskScore = &as.Score
	fields.RiskLevel = as.Level
	fields.Category = as.Category

	return fields, reasons
}

// articleLanguage settles step 1: trust the language stamped at fetch
// time, else detect, else fall back to the source's configured
// language and finally the canonical one.
func (e *Enricher) articleLanguage(a *model.Article) string {
	if lang := NormalizeLang(a.OriginalLanguage); lang != "" {
		return lang
	}

	det := Detect(a.Title + " " + a.Content)
	if det.Language != "" && det.Confidence >= minDetectConfidence {
		return det.Language
	}

	if e.sources != nil {
		if src, ok := e.sources.Get(a.SourceName); ok {
			if lang := NormalizeLang(src.Language); lang != "" {
				return lang
			}
		}
	}
	if det.Language != "" {
		return det.Language
	}
	return e.canonical
}

// locate resolves the primary location and fills the article's place
// fields. When the primary cannot be geocoded the remaining candidates
// are tried in selection order.
func (e *Enricher) locate(ctx context.Context, locations []string, title, body string, fields *store.EnrichmentFields, reasons *[]string) {
	primary := PrimaryLocation(locations, title, body)

	ordered := make([]string, 0, len(locations))
	ordered = append(ordered, primary)
	for _, loc := range locations {
		if loc != primary {
			ordered = append(ordered, loc)
		}
	}

	for _, place := range ordered {
		loc, err := e.resolver.Resolve(ctx, place, "")
		if err != nil {
			if errors.Is(err, geo.ErrNotFound) {
				continue
			}
			if ctx.Err() != nil {
				*reasons = append(*reasons, "geocode: canceled")
				return
			}
			*reasons = append(*reasons, fmt.Sprintf("geocode %q: %v", place, err))
			continue
		}

		if loc.CountryName != "" {
			fields.Country = loc.CountryName
		} else {
			fields.Country = loc.CountryCode
		}
		fields.Region = loc.Region
		fields.Latitude = &loc.Lat
		fields.Longitude = &loc.Lon
		return
	}
	*reasons = append(*reasons, "geocode: no location resolved")
}

func failureReason(reasons []string) string {
	if len(reasons) == 0 {
		return "no essential fields produced"
	}
	return strings.Join(reasons, "; ")
}
