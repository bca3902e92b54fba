package models

// Per-event batch outcome statuses.
const (
	EventStatusAccepted = "accepted"
	EventStatusRejected = "rejected"
)

// Rejection reasons reported in batch responses.
const (
	RejectReasonMalformed = "malformed_event"
	RejectReasonStale     = "stale_event"
	RejectReasonDuplicate = "duplicate_event_id"
)

// EventBatchRequest is a bounded batch of raw events from one source.
type EventBatchRequest struct {
	TenantID string     `json:"tenant_id,omitempty"`
	Source   string     `json:"source,omitempty"`
	Events   []RawEvent `json:"events"`
}

// EventResult is the per-event outcome reported back to the event source.
// Status is "accepted" or "rejected:<reason>".
type EventResult struct {
	EventID    string                `json:"event_id"`
	Status     string                `json:"status"`
	Findings   []*Finding            `json:"findings,omitempty"`
	Suppressed []SuppressionDecision `json:"suppressed,omitempty"`
	RuleErrors []string              `json:"rule_errors,omitempty"`
}

// EventBatchResponse reports outcomes for every event in the batch.
// Nothing fails silently: suppressed matches are listed as suppressed.
type EventBatchResponse struct {
	Results []EventResult `json:"results"`
}
