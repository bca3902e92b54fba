package normalizer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratuswatch/detect-engine/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNormalizer_Normalize(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	n := New(1 * time.Hour).WithClock(fixedClock(now))

	tests := []struct {
		name       string
		raw        *models.RawEvent
		wantReason string
	}{
		{
			name: "valid event",
			raw: &models.RawEvent{
				EventID:    "evt-1",
				EventType:  "process.execute",
				AssetID:    "asset-1",
				IdentityID: "id-1",
				OccurredAt: now.Add(-5 * time.Minute).Format(time.RFC3339),
			},
		},
		{
			name:       "nil payload",
			raw:        nil,
			wantReason: models.RejectReasonMalformed,
		},
		{
			name: "missing event_id",
			raw: &models.RawEvent{
				EventType:  "process.execute",
				AssetID:    "asset-1",
				IdentityID: "id-1",
				OccurredAt: now.Format(time.RFC3339),
			},
			wantReason: models.RejectReasonMalformed,
		},
		{
			name: "missing asset_id",
			raw: &models.RawEvent{
				EventID:    "evt-2",
				EventType:  "process.execute",
				IdentityID: "id-1",
				OccurredAt: now.Format(time.RFC3339),
			},
			wantReason: models.RejectReasonMalformed,
		},
		{
			name: "missing identity_id",
			raw: &models.RawEvent{
				EventID:    "evt-3",
				EventType:  "process.execute",
				AssetID:    "asset-1",
				OccurredAt: now.Format(time.RFC3339),
			},
			wantReason: models.RejectReasonMalformed,
		},
		{
			name: "unparseable timestamp",
			raw: &models.RawEvent{
				EventID:    "evt-4",
				EventType:  "process.execute",
				AssetID:    "asset-1",
				IdentityID: "id-1",
				OccurredAt: "yesterday",
			},
			wantReason: models.RejectReasonMalformed,
		},
		{
			name: "stale event",
			raw: &models.RawEvent{
				EventID:    "evt-5",
				EventType:  "process.execute",
				AssetID:    "asset-1",
				IdentityID: "id-1",
				OccurredAt: now.Add(-2 * time.Hour).Format(time.RFC3339),
			},
			wantReason: models.RejectReasonStale,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := n.Normalize(tt.raw, "tenant-1")
			if tt.wantReason != "" {
				require.Error(t, err)
				var rej *RejectionError
				require.True(t, errors.As(err, &rej))
				assert.Equal(t, tt.wantReason, rej.Reason)
				assert.Nil(t, event)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, event)
			assert.Equal(t, tt.raw.EventID, event.EventID)
			assert.Equal(t, "tenant-1", event.TenantID)
			assert.NotNil(t, event.Attributes)
			assert.Equal(t, time.UTC, event.OccurredAt.Location())
		})
	}
}

func TestNormalizer_SubSecondTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	n := New(1 * time.Hour).WithClock(fixedClock(now))

	event, err := n.Normalize(&models.RawEvent{
		EventID:    "evt-nano",
		EventType:  "telemetry.cpu",
		AssetID:    "asset-1",
		IdentityID: "id-1",
		OccurredAt: now.Add(-time.Second).Format(time.RFC3339Nano),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "evt-nano", event.EventID)
}

func TestNormalizer_AttributesAreCopied(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	n := New(1 * time.Hour).WithClock(fixedClock(now))

	raw := &models.RawEvent{
		EventID:    "evt-copy",
		EventType:  "process.execute",
		AssetID:    "asset-1",
		IdentityID: "id-1",
		OccurredAt: now.Format(time.RFC3339),
		Attributes: map[string]interface{}{"image_path": "/tmp/payload"},
	}

	event, err := n.Normalize(raw, "tenant-1")
	require.NoError(t, err)

	raw.Attributes["image_path"] = "/usr/bin/legit"
	raw.Attributes["unsigned"] = true

	assert.Equal(t, "/tmp/payload", event.Attributes["image_path"])
	assert.NotContains(t, event.Attributes, "unsigned")
}

func TestNormalizer_ZeroMaxAgeDisablesStaleCheck(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	n := New(0).WithClock(fixedClock(now))

	_, err := n.Normalize(&models.RawEvent{
		EventID:    "evt-old",
		EventType:  "auth.login.failure",
		AssetID:    "asset-1",
		IdentityID: "id-1",
		OccurredAt: now.Add(-48 * time.Hour).Format(time.RFC3339),
	}, "")
	require.NoError(t, err)
}
