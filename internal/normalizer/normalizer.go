package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// RejectionError is a structured per-event rejection. It is reported in the
// batch response and never aborts processing of other events.
type RejectionError struct {
	Reason string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Normalizer converts loosely typed raw payloads into canonical
// NormalizedEvents, enforcing the required-field and freshness policy.
type Normalizer struct {
	maxEventAge time.Duration
	now         func() time.Time
}

// New creates a Normalizer. maxEventAge bounds how old occurred_at may be;
// older events are rejected as stale (recorded, not fatal).
func New(maxEventAge time.Duration) *Normalizer {
	return &Normalizer{
		maxEventAge: maxEventAge,
		now:         time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Normalize validates and converts one raw event. On failure it returns a
// *RejectionError with reason "malformed_event" or "stale_event".
func (n *Normalizer) Normalize(raw *models.RawEvent, tenantID string) (*models.NormalizedEvent, error) {
	if raw == nil {
		return nil, &RejectionError{Reason: models.RejectReasonMalformed, Detail: "empty payload"}
	}
	if strings.TrimSpace(raw.EventID) == "" {
		return nil, &RejectionError{Reason: models.RejectReasonMalformed, Detail: "event_id is required"}
	}
	if strings.TrimSpace(raw.EventType) == "" {
		return nil, &RejectionError{Reason: models.RejectReasonMalformed, Detail: "event_type is required"}
	}
	if strings.TrimSpace(raw.AssetID) == "" {
		return nil, &RejectionError{Reason: models.RejectReasonMalformed, Detail: "asset_id is required"}
	}
	if strings.TrimSpace(raw.IdentityID) == "" {
		return nil, &RejectionError{Reason: models.RejectReasonMalformed, Detail: "identity_id is required"}
	}

	occurredAt, err := parseTimestamp(raw.OccurredAt)
	if err != nil {
		return nil, &RejectionError{Reason: models.RejectReasonMalformed, Detail: fmt.Sprintf("occurred_at: %v", err)}
	}

	if n.maxEventAge > 0 && occurredAt.Before(n.now().Add(-n.maxEventAge)) {
		return nil, &RejectionError{
			Reason: models.RejectReasonStale,
			Detail: fmt.Sprintf("occurred_at %s exceeds max event age %s", occurredAt.Format(time.RFC3339), n.maxEventAge),
		}
	}

	// Attributes are copied so later caller mutations of the raw payload
	// cannot reach into the normalized event.
	attributes := make(map[string]interface{}, len(raw.Attributes))
	for key, value := range raw.Attributes {
		attributes[key] = value
	}

	return &models.NormalizedEvent{
		EventID:        raw.EventID,
		TenantID:       tenantID,
		EventType:      raw.EventType,
		AssetID:        raw.AssetID,
		IdentityID:     raw.IdentityID,
		SourceSystem:   raw.SourceSystem,
		OccurredAt:     occurredAt.UTC(),
		ProcessLineage: raw.ProcessLineage,
		NetworkFlow:    raw.NetworkFlow,
		Attributes:     attributes,
	}, nil
}

// parseTimestamp accepts RFC3339 with or without sub-second precision.
func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}
