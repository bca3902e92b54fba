package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/models"
)

func testEvent(eventType string, attrs map[string]interface{}) *models.NormalizedEvent {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	return &models.NormalizedEvent{
		EventID:    "evt-1",
		TenantID:   "tenant-a",
		EventType:  eventType,
		AssetID:    "asset-1",
		IdentityID: "user-1",
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Attributes: attrs,
	}
}

func ruleByID(t *testing.T, ruleID string) *catalog.RuleDefinition {
	t.Helper()
	for _, rule := range catalog.DefaultRules() {
		if rule.RuleID == ruleID {
			return rule
		}
	}
	t.Fatalf("unknown rule %s", ruleID)
	return nil
}

func TestSingleEventEvaluator(t *testing.T) {
	evaluator := &SingleEventEvaluator{}
	rule := ruleByID(t, "unsigned_binary_temp")

	tests := []struct {
		name  string
		attrs map[string]interface{}
		match bool
	}{
		{
			name:  "unsigned binary in temp path matches",
			attrs: map[string]interface{}{"image_path": "C:\\Users\\x\\AppData\\Local\\Temp\\payload.exe", "unsigned": true},
			match: true,
		},
		{
			name:  "signed attribute false implies unsigned",
			attrs: map[string]interface{}{"image_path": "/tmp/payload", "signed": false},
			match: true,
		},
		{
			name:  "path outside temp does not match",
			attrs: map[string]interface{}{"image_path": "/usr/bin/ls", "unsigned": true},
			match: false,
		},
		{
			name:  "signed binary does not match",
			attrs: map[string]interface{}{"image_path": "/tmp/tool", "signed": true},
			match: false,
		},
		{
			name:  "conflicting signed and unsigned evidence does not match",
			attrs: map[string]interface{}{"image_path": "/tmp/tool", "signed": true, "unsigned": true},
			match: false,
		},
		{
			name:  "missing signing evidence does not match",
			attrs: map[string]interface{}{"image_path": "/tmp/tool"},
			match: false,
		},
		{
			name:  "missing image path does not match",
			attrs: map[string]interface{}{"unsigned": true},
			match: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := evaluator.Evaluate(context.Background(), rule, testEvent("process.execute", tt.attrs), nil)
			require.NoError(t, err)
			if tt.match {
				require.NotNil(t, match)
				assert.Len(t, match.SupportingEvents, 1)
			} else {
				assert.Nil(t, match)
			}
		})
	}
}

func TestSingleEventEvaluatorThreshold(t *testing.T) {
	threshold := 100.0
	rule := &catalog.RuleDefinition{
		RuleID:   "bytes_out_spike",
		Version:  "1.0.0",
		RuleType: catalog.TypeSingleEvent,
		Enabled:  true,
		SingleEvent: &catalog.SingleEventParams{
			EvidenceKey: "bytes_out",
			Operator:    ">=",
			Threshold:   &threshold,
		},
		Suppression: catalog.SuppressionPolicy{DedupeWindowSeconds: 60},
		Output: catalog.OutputTemplate{
			FindingType:    "bytes_out_spike",
			Severity:       models.SeverityLow,
			BaseConfidence: 0.5,
		},
	}
	evaluator := &SingleEventEvaluator{}

	t.Run("value over threshold matches", func(t *testing.T) {
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("network.flow", map[string]interface{}{"bytes_out": 150.0}), nil)
		require.NoError(t, err)
		assert.NotNil(t, match)
	})

	t.Run("numeric string coerces", func(t *testing.T) {
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("network.flow", map[string]interface{}{"bytes_out": "150"}), nil)
		require.NoError(t, err)
		assert.NotNil(t, match)
	})

	t.Run("missing evidence key is a non-match, not an error", func(t *testing.T) {
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("network.flow", nil), nil)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("non-numeric evidence is a non-match", func(t *testing.T) {
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("network.flow", map[string]interface{}{"bytes_out": "lots"}), nil)
		require.NoError(t, err)
		assert.Nil(t, match)
	})
}

func TestSequenceEvaluator(t *testing.T) {
	rule := ruleByID(t, "privileged_login_sequence")
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	newEvent := func(eventType string, at time.Time) *models.NormalizedEvent {
		e := testEvent(eventType, nil)
		e.EventID = eventType + at.String()
		e.OccurredAt = at
		return e
	}

	t.Run("failure failure success yields one match", func(t *testing.T) {
		evaluator := &SequenceEvaluator{states: NewMatchStateStore(64), defaultWindow: 15 * time.Minute}

		m, err := evaluator.Evaluate(context.Background(), rule, newEvent("auth.login.failure", base), nil)
		require.NoError(t, err)
		assert.Nil(t, m)

		m, err = evaluator.Evaluate(context.Background(), rule, newEvent("auth.login.failure", base.Add(time.Minute)), nil)
		require.NoError(t, err)
		assert.Nil(t, m)

		m, err = evaluator.Evaluate(context.Background(), rule, newEvent("auth.login.success", base.Add(2*time.Minute)), nil)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Len(t, m.SupportingEvents, 2)
		assert.Equal(t, "auth.login.failure", m.SupportingEvents[0].EventType)
		assert.Equal(t, "auth.login.success", m.SupportingEvents[1].EventType)
	})

	t.Run("success outside the rule window does not match", func(t *testing.T) {
		evaluator := &SequenceEvaluator{states: NewMatchStateStore(64), defaultWindow: 15 * time.Minute}

		_, err := evaluator.Evaluate(context.Background(), rule, newEvent("auth.login.failure", base), nil)
		require.NoError(t, err)

		// Rule window is 600s; 700s later is out.
		m, err := evaluator.Evaluate(context.Background(), rule, newEvent("auth.login.success", base.Add(700*time.Second)), nil)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("different identities do not correlate", func(t *testing.T) {
		evaluator := &SequenceEvaluator{states: NewMatchStateStore(64), defaultWindow: 15 * time.Minute}

		failure := newEvent("auth.login.failure", base)
		failure.IdentityID = "user-other"
		_, err := evaluator.Evaluate(context.Background(), rule, failure, nil)
		require.NoError(t, err)

		m, err := evaluator.Evaluate(context.Background(), rule, newEvent("auth.login.success", base.Add(time.Minute)), nil)
		require.NoError(t, err)
		assert.Nil(t, m)
	})
}

func TestDeviationEvaluator(t *testing.T) {
	rule := ruleByID(t, "cpu_deviation_off_hours")
	snapshot := &models.ContextSnapshot{
		Baseline: &models.Baseline{MetricName: "cpu_percent", ExpectedValue: 10.0},
	}

	t.Run("value at multiplier threshold matches", func(t *testing.T) {
		evaluator := &DeviationEvaluator{}
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("telemetry.cpu", map[string]interface{}{"metric_value": 40.0}), snapshot)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, 40.0, match.Details["metric_value"])
		assert.Equal(t, 10.0, match.Details["baseline_value"])
		assert.Equal(t, "cpu_percent", match.Details["metric_name"])
	})

	t.Run("value below multiplier does not match", func(t *testing.T) {
		evaluator := &DeviationEvaluator{}
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("telemetry.cpu", map[string]interface{}{"metric_value": 39.9}), snapshot)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("missing baseline suppresses match by default", func(t *testing.T) {
		evaluator := &DeviationEvaluator{}
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("telemetry.cpu", map[string]interface{}{"metric_value": 400.0}), &models.ContextSnapshot{})
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("missing baseline matches with reduced-context flag when allowed", func(t *testing.T) {
		evaluator := &DeviationEvaluator{allowWithoutContext: true}
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("telemetry.cpu", map[string]interface{}{"metric_value": 400.0}), &models.ContextSnapshot{})
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.True(t, match.WithoutContext)
	})

	t.Run("missing metric attribute does not match", func(t *testing.T) {
		evaluator := &DeviationEvaluator{}
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("telemetry.cpu", nil), snapshot)
		require.NoError(t, err)
		assert.Nil(t, match)
	})
}

func TestCrossDomainEvaluator(t *testing.T) {
	rule := ruleByID(t, "patch_missing_exploit_signal")
	evaluator := &CrossDomainEvaluator{}

	patched := &models.ContextSnapshot{PatchState: &models.PatchState{}}
	unpatched := &models.ContextSnapshot{
		PatchState: &models.PatchState{MissingPatches: []string{"CVE-2026-1234"}},
	}

	t.Run("missing patches with behaviour signal matches", func(t *testing.T) {
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("process.suspicious", map[string]interface{}{"suspicious_score": 0.9}), unpatched)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, []string{"CVE-2026-1234"}, match.Details["missing_patches"])
	})

	t.Run("fully patched asset does not match", func(t *testing.T) {
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("process.suspicious", map[string]interface{}{"suspicious_score": 0.9}), patched)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("zero behaviour signal does not match", func(t *testing.T) {
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("process.suspicious", map[string]interface{}{"suspicious_score": 0.0}), unpatched)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("absent patch state does not match", func(t *testing.T) {
		match, err := evaluator.Evaluate(context.Background(), rule,
			testEvent("process.suspicious", map[string]interface{}{"suspicious_score": 0.9}), &models.ContextSnapshot{})
		require.NoError(t, err)
		assert.Nil(t, match)
	})
}

func TestRegistryDispatch(t *testing.T) {
	registry := NewRegistry(NewMatchStateStore(64), false, 15*time.Minute)

	match, err := registry.Evaluate(context.Background(), ruleByID(t, "unsigned_binary_temp"),
		testEvent("process.execute", map[string]interface{}{"image_path": "/tmp/x", "unsigned": true}), nil)
	require.NoError(t, err)
	assert.NotNil(t, match)

	_, err = registry.Evaluate(context.Background(),
		&catalog.RuleDefinition{RuleID: "r", RuleType: catalog.RuleType("bogus")},
		testEvent("any", nil), nil)
	assert.Error(t, err)
}
