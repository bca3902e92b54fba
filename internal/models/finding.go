package models

import "time"

// Finding lifecycle states. A finding is created open; downstream
// transitions are recorded here but driven by operators or escalation.
type FindingState string

const (
	FindingStateOpen             FindingState = "open"
	FindingStateEscalated        FindingState = "escalated"
	FindingStateEscalationFailed FindingState = "escalation_failed"
	FindingStateSuperseded       FindingState = "superseded"
	FindingStateDismissed        FindingState = "dismissed"
)

// Finding is an emitted, scored, deduplicated alert produced by a rule match.
type Finding struct {
	FindingID          string            `json:"finding_id"`
	RuleID             string            `json:"rule_id"`
	RuleVersion        string            `json:"rule_version"`
	FindingType        string            `json:"finding_type"`
	Severity           Severity          `json:"severity"`
	Confidence         float64           `json:"confidence"`
	Explanation        string            `json:"explanation"`
	SupportingEventIDs []string          `json:"supporting_event_ids"`
	CorrelationGraph   *CorrelationGraph `json:"correlation_graph,omitempty"`
	TenantID           string            `json:"tenant_id,omitempty"`
	AssetID            string            `json:"asset_id"`
	IdentityID         string            `json:"identity_id"`
	DedupeKey          string            `json:"dedupe_key"`
	State              FindingState      `json:"state"`
	CaseID             string            `json:"case_id,omitempty"`
	SupersededBy       string            `json:"superseded_by,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// SuppressionDecision records a match that was not emitted, with the
// reason. Suppressions are expected outcomes, kept for audit.
type SuppressionDecision struct {
	DecisionID   string    `json:"decision_id"`
	RuleID       string    `json:"rule_id"`
	EventID      string    `json:"event_id"`
	AssetID      string    `json:"asset_id"`
	IdentityID   string    `json:"identity_id"`
	DedupeKey    string    `json:"dedupe_key,omitempty"`
	Reason       string    `json:"reason"`
	SuppressedAt time.Time `json:"suppressed_at"`
}

// Suppression reasons.
const (
	SuppressReasonDedupe            = "duplicate_within_window"
	SuppressReasonMaintenanceWindow = "maintenance_window"
	SuppressReasonAssetAllowlist    = "asset_allowlist"
	SuppressReasonIdentityAllowlist = "identity_allowlist"
	SuppressReasonEventTypeAllowlist = "event_type_allowlist"
)

// Dismissal records an operator dismissing a finding with justification.
type Dismissal struct {
	DismissalID string    `json:"dismissal_id"`
	FindingID   string    `json:"finding_id"`
	IdentityID  string    `json:"identity_id"`
	Reason      string    `json:"reason"`
	DismissedAt time.Time `json:"dismissed_at"`
}
