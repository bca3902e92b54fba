package models

import "time"

// ProcessLineage captures the process chain attached to an execution event.
type ProcessLineage struct {
	ProcessName       string `json:"process_name"`
	PID               int    `json:"pid,omitempty"`
	ParentProcessName string `json:"parent_process_name,omitempty"`
	ParentPID         int    `json:"parent_pid,omitempty"`
}

// NetworkFlow captures the network dimension of an event.
type NetworkFlow struct {
	Destination string `json:"destination"`
	Port        int    `json:"port,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
}

// NormalizedEvent is the canonical event shape every rule evaluates against.
// It is immutable once produced by the normalizer.
type NormalizedEvent struct {
	EventID        string                 `json:"event_id"`
	TenantID       string                 `json:"tenant_id,omitempty"`
	EventType      string                 `json:"event_type"`
	AssetID        string                 `json:"asset_id"`
	IdentityID     string                 `json:"identity_id"`
	SourceSystem   string                 `json:"source_system,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
	ProcessLineage *ProcessLineage        `json:"process_lineage,omitempty"`
	NetworkFlow    *NetworkFlow           `json:"network_flow,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
}

// RawEvent is a loosely typed payload as delivered by an event source,
// before normalization.
type RawEvent struct {
	EventID        string                 `json:"event_id"`
	EventType      string                 `json:"event_type"`
	AssetID        string                 `json:"asset_id"`
	IdentityID     string                 `json:"identity_id"`
	SourceSystem   string                 `json:"source_system,omitempty"`
	OccurredAt     string                 `json:"occurred_at"`
	ProcessLineage *ProcessLineage        `json:"process_lineage,omitempty"`
	NetworkFlow    *NetworkFlow           `json:"network_flow,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
}
