// Package translate converts article text into the deployment's
// canonical language through an ordered chain of providers. Each
// provider sits behind its own circuit breaker; results are cached by
// content hash so a retried article never pays for the same call
// twice.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"argusgo/pkg/cache"
	"argusgo/pkg/config"
	"argusgo/pkg/logging"
	"argusgo/pkg/model"
	"argusgo/pkg/request"
	"argusgo/pkg/tracker"
)

// ErrAllProvidersFailed is returned when every provider in the chain
// was skipped or failed.
var ErrAllProvidersFailed = errors.New("all translation providers failed")

var errEmptyResult = errors.New("provider returned empty translation")

const (
	defaultTimeout         = 15 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 2 * time.Minute
)

// Provider translates text between two ISO 639-1 languages.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text, src, dst string) (string, error)
}

// Chain tries providers in order and returns the first non-empty
// result. A provider whose breaker is open is skipped without being
// called; an empty translation counts as a failure so a silently
// broken provider trips its breaker like a loud one.
type Chain struct {
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	cache     cache.Cacher
	ttl       time.Duration
	timeout   time.Duration
	trk       *tracker.Tracker
}

// NewChain wires the given providers in order. cfg supplies the
// per-call timeout, the cache TTL and the breaker thresholds.
func NewChain(providers []Provider, c cache.Cacher, cfg config.TranslationConfig, trk *tracker.Tracker) *Chain {
	if c == nil {
		c = cache.Null{}
	}
	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ch := &Chain{
		providers: providers,
		breakers:  make(map[string]*gobreaker.CircuitBreaker, len(providers)),
		cache:     c,
		ttl:       time.Duration(cfg.CacheTTL),
		timeout:   timeout,
		trk:       trk,
	}
	for _, p := range providers {
		ch.breakers[p.Name()] = newBreaker(p.Name(), cfg.Breaker, trk)
	}
	return ch
}

// NewFromConfig builds the chain in the configured order, skipping
// providers without credentials so a partial deployment still
// translates with whatever is available.
func NewFromConfig(ctx context.Context, cfg config.TranslationConfig, rc *request.Client, c cache.Cacher, trk *tracker.Tracker) *Chain {
	var providers []Provider
	for _, name := range cfg.Chain {
		switch name {
		case "libretranslate":
			if cfg.LibreTranslate.URL == "" {
				slog.Info("Translation provider not configured, skipping", "provider", name)
				continue
			}
			providers = append(providers, NewLibreTranslate(rc, cfg.LibreTranslate))
		case "gemini":
			if cfg.Gemini.Key == "" {
				slog.Info("Translation provider has no key, skipping", "provider", name)
				continue
			}
			g, err := NewGemini(ctx, cfg.Gemini)
			if err != nil {
				slog.Warn("Translation provider init failed", "provider", name, "error", err)
				continue
			}
			providers = append(providers, g)
		case "openai":
			if cfg.OpenAI.Key == "" {
				slog.Info("Translation provider has no key, skipping", "provider", name)
				continue
			}
			providers = append(providers, NewOpenAI(rc, cfg.OpenAI))
		case "deepl":
			if cfg.DeepL.Key == "" {
				slog.Info("Translation provider has no key, skipping", "provider", name)
				continue
			}
			providers = append(providers, NewDeepL(rc, cfg.DeepL))
		default:
			slog.Warn("Unknown translation provider in chain", "provider", name)
		}
	}
	return NewChain(providers, c, cfg, trk)
}

// Providers returns the active provider names in chain order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// healthChecker is implemented by providers that can verify their
// remote configuration up front.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck passes when at least one provider is usable. Providers
// without their own check count as usable; a failed check is logged
// and the chain moves on, exactly as Translate would.
func (c *Chain) HealthCheck(ctx context.Context) error {
	if len(c.providers) == 0 {
		return fmt.Errorf("no provider has credentials")
	}

	var firstErr error
	for _, p := range c.providers {
		hc, ok := p.(healthChecker)
		if !ok {
			return nil
		}
		if err := hc.HealthCheck(ctx); err != nil {
			slog.Warn("Translation provider failed health check", "provider", p.Name(), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", p.Name(), err)
			}
			continue
		}
		return nil
	}
	return firstErr
}

// Translate returns text in dst. Same-language and empty inputs pass
// through untouched. The result is a pure function of (text, src,
// dst), which is what makes the cache sound.
func (c *Chain) Translate(ctx context.Context, text, src, dst string) (string, error) {
	text = strings.TrimSpace(text)
	src = strings.ToLower(strings.TrimSpace(src))
	dst = strings.ToLower(strings.TrimSpace(dst))
	if text == "" || src == dst {
		return text, nil
	}

	key := cacheKey(text, src, dst)
	if val, hit := c.cache.GetCacheFresh(ctx, key, c.ttl); hit {
		c.trk.TrackCacheHit("translate")
		return string(val), nil
	}
	c.trk.TrackCacheMiss("translate")

	var lastErr error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := p.Name()

		res, err := c.breakers[name].Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			out, terr := p.Translate(callCtx, text, src, dst)
			if terr != nil {
				return nil, terr
			}
			out = strings.TrimSpace(out)
			if out == "" {
				return nil, errEmptyResult
			}
			return out, nil
		})
		if err != nil {
			lastErr = err
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				slog.Debug("Translation provider breaker open, skipping", "provider", name)
				continue
			}
			c.trk.TrackAPIFailure("translate." + name)
			slog.Debug("Translation provider failed, falling back", "provider", name, "error", err)
			continue
		}

		out := res.(string)
		c.trk.TrackAPISuccess("translate." + name)
		if cerr := c.cache.SetCache(ctx, key, []byte(out)); cerr != nil {
			slog.Warn("Failed to cache translation", "error", cerr)
		}
		return out, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
	}
	return "", ErrAllProvidersFailed
}

func newBreaker(name string, cfg config.BreakerConfig, trk *tracker.Tracker) *gobreaker.CircuitBreaker {
	failures := cfg.Failures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	cooldown := time.Duration(cfg.Cooldown)
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Translation provider breaker state change",
				"provider", name, "from", from.String(), "to", to.String())
			trk.SetBreakerOpen("translate."+name, to == gobreaker.StateOpen)
			if to == gobreaker.StateOpen {
				logging.LogEvent(&model.PipelineEvent{
					Type:      model.EventBreakerOpen,
					Title:     "Translation provider " + name + " suspended",
					Summary:   fmt.Sprintf("cooling down for %s", cooldown),
					Timestamp: time.Now().UTC(),
				})
			}
		},
	})
}

func cacheKey(text, src, dst string) string {
	sum := sha256.Sum256([]byte(src + "|" + dst + "|" + text))
	return "translate:" + hex.EncodeToString(sum[:])
}

// translationPrompt is shared by the LLM-backed providers. Spelled-out
// language names work noticeably better than bare ISO codes on small
// models.
func translationPrompt(text, src, dst string) string {
	return fmt.Sprintf("Translate the following text from %s to %s.\nReply with the translation only: no preamble, no quotes, no notes.\n\n%s",
		languageName(src), languageName(dst), text)
}

var languageNames = map[string]string{
	"am": "Amharic",
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fa": "Persian",
	"fr": "French",
	"he": "Hebrew",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"so": "Somali",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"zh": "Chinese",
}

func languageName(code string) string {
	if n, ok := languageNames[strings.ToLower(code)]; ok {
		return n
	}
	return code
}
