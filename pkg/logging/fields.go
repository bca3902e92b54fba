package logging

import "log/slog"

// Common field names for consistent logging across the engine.
const (
	FieldService   = "service"
	FieldTenantID  = "tenant_id"
	FieldEventID   = "event_id"
	FieldRuleID    = "rule_id"
	FieldFindingID = "finding_id"
	FieldAssetID   = "asset_id"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
	FieldReason    = "reason"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// TenantID returns a slog attribute for the tenant identifier.
func TenantID(id string) slog.Attr {
	return slog.String(FieldTenantID, id)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// RuleID returns a slog attribute for a rule ID.
func RuleID(id string) slog.Attr {
	return slog.String(FieldRuleID, id)
}

// FindingID returns a slog attribute for a finding ID.
func FindingID(id string) slog.Attr {
	return slog.String(FieldFindingID, id)
}

// AssetID returns a slog attribute for an asset ID.
func AssetID(id string) slog.Attr {
	return slog.String(FieldAssetID, id)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Reason returns a slog attribute for a rejection or suppression reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}
