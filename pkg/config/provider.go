package config

import (
	"context"
	"strconv"
	"time"

	"argusgo/pkg/store"
)

// Provider exposes the runtime-tunable subset of the configuration.
// Values the operator can flip without a restart come from the
// persistent state store; everything else falls back to the file.
type Provider interface {
	CanonicalLanguage(ctx context.Context) string
	FetchPaused(ctx context.Context) bool
	AIAmplification(ctx context.Context) bool
	PredictionsEnabled(ctx context.Context) bool
	NewsRiskThreshold(ctx context.Context) float64
	ConsolidationLookback(ctx context.Context) time.Duration

	// Raw access for components that need deep settings.
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging the static Config
// and the persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{base: base, store: st}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

func (p *UnifiedProvider) CanonicalLanguage(ctx context.Context) string {
	return p.base.Pipeline.CanonicalLanguage
}

func (p *UnifiedProvider) FetchPaused(ctx context.Context) bool {
	return p.getBool(ctx, KeyFetchPaused, false)
}

func (p *UnifiedProvider) AIAmplification(ctx context.Context) bool {
	return p.getBool(ctx, KeyAIAmplification, p.base.Consolidator.AIAmplification)
}

func (p *UnifiedProvider) PredictionsEnabled(ctx context.Context) bool {
	return p.getBool(ctx, KeyPredictionsEnabled, p.base.Consolidator.PredictionsEnabled)
}

func (p *UnifiedProvider) NewsRiskThreshold(ctx context.Context) float64 {
	return p.getFloat64(ctx, KeyNewsRiskThreshold, p.base.Consolidator.NewsRiskThreshold)
}

func (p *UnifiedProvider) ConsolidationLookback(ctx context.Context) time.Duration {
	return time.Duration(p.base.Consolidator.LookbackDays) * 24 * time.Hour
}

// --- Helpers ---

func (p *UnifiedProvider) getBool(ctx context.Context, key string, fallback bool) bool {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val == "true"
		}
	}
	return fallback
}

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}
