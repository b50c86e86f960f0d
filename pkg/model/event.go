package model

import "time"

// PipelineEventType labels a pipeline milestone.
type PipelineEventType string

const (
	EventFetchRound    PipelineEventType = "fetch_round"
	EventEnrichBatch   PipelineEventType = "enrich_batch"
	EventIntegratorRun PipelineEventType = "integrator_run"
	EventZonesReplaced PipelineEventType = "zones_replaced"
	EventBreakerOpen   PipelineEventType = "breaker_open"
	EventSourceReload  PipelineEventType = "source_reload"
)

// PipelineEvent is an operational milestone published to the event log
// and the live stream.
type PipelineEvent struct {
	Type      PipelineEventType `json:"type"`
	Title     string            `json:"title"`
	Summary   string            `json:"summary,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
