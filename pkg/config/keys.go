package config

// Persistent state keys. Values live in the store's persistent_state
// table and survive restarts.
const (
	// Job cursors. Interval jobs store the RFC3339 time of their last
	// round; daily jobs store the UTC day, monthly jobs the UTC month.
	KeyLastFetchAt       = "last_fetch_at"
	KeyLastEnrichAt      = "last_enrich_at"
	KeyLastEventsRunAt   = "last_events_run_at"
	KeyLastToneDate      = "last_tone_date"
	KeyLastRiskRunAt     = "last_risk_run_at"
	KeyLastConsolidation = "last_consolidation_at"

	// Runtime toggles (operator-set via the control surface).
	KeyAIAmplification    = "ai_amplification"
	KeyPredictionsEnabled = "predictions_enabled"
	KeyFetchPaused        = "fetch_paused"
	KeyNewsRiskThreshold  = "news_risk_threshold"
)
