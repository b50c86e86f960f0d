package model

// ProcessingState tracks an article through the enrichment lifecycle.
// Transitions are raw, enriching, then enriched or failed; failed rows
// re-enter raw after a cooldown until the retry budget is spent.
type ProcessingState string

const (
	StateRaw       ProcessingState = "raw"
	StateEnriching ProcessingState = "enriching"
	StateEnriched  ProcessingState = "enriched"
	StateFailed    ProcessingState = "failed"
)

// RiskLevel classifies an article or zone by risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a score in [0,1] to its level: critical at
// 0.8 and above, high at 0.6, medium at 0.4, low otherwise.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Rank orders levels for comparison; higher is more severe.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Priority ranks a source for fetch ordering.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityStandard Priority = "standard"
)

// Protocol is the transport/format a source speaks.
type Protocol string

const (
	ProtocolRSS     Protocol = "rss"
	ProtocolAtom    Protocol = "atom"
	ProtocolJSONAPI Protocol = "json-api"
)

// SignalKind names the origin of a conflict signal.
type SignalKind string

const (
	SignalNews       SignalKind = "news"
	SignalEvents     SignalKind = "events"
	SignalTone       SignalKind = "tone"
	SignalRiskIndex  SignalKind = "risk_index"
	SignalPrediction SignalKind = "prediction"
)

// SignalWeight is the fixed fusion weight per kind.
func SignalWeight(k SignalKind) float64 {
	switch k {
	case SignalNews:
		return 0.4
	case SignalEvents:
		return 0.3
	case SignalTone:
		return 0.2
	case SignalRiskIndex:
		return 0.1
	default:
		return 0
	}
}

// MonitoringFrequency tells downstream consumers how often to revisit
// a zone.
type MonitoringFrequency string

const (
	MonitorHourly  MonitoringFrequency = "hourly"
	MonitorDaily   MonitoringFrequency = "daily"
	MonitorWeekly  MonitoringFrequency = "weekly"
	MonitorMonthly MonitoringFrequency = "monthly"
)

// MonitoringFrequencyForLevel derives the revisit cadence from risk:
// daily for critical, weekly for high, monthly otherwise.
func MonitoringFrequencyForLevel(r RiskLevel) MonitoringFrequency {
	switch r {
	case RiskCritical:
		return MonitorDaily
	case RiskHigh:
		return MonitorWeekly
	default:
		return MonitorMonthly
	}
}

// FeedStatus is the outcome of one integrator run.
type FeedStatus string

const (
	FeedOK      FeedStatus = "ok"
	FeedRunning FeedStatus = "running"
	FeedError   FeedStatus = "error"
)
