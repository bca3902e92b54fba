package catalog

import "github.com/stratuswatch/detect-engine/internal/models"

// DefaultRules seeds a minimal rule set exercising each rule type.
func DefaultRules() []*RuleDefinition {
	return []*RuleDefinition{
		{
			RuleID:            "unsigned_binary_temp",
			Version:           "1.0.0",
			Name:              "Unsigned binary executed from temp",
			Description:       "Detects execution of unsigned binaries from temporary paths.",
			RuleType:          TypeSingleEvent,
			Enabled:           true,
			TriggerEventTypes: []string{"process.execute"},
			RequiredContext:   []string{models.ContextKeyAsset, models.ContextKeyIdentity},
			SingleEvent: &SingleEventParams{
				ImageContains:   "temp",
				RequireUnsigned: true,
			},
			Suppression: SuppressionPolicy{DedupeWindowSeconds: 900},
			Output: OutputTemplate{
				FindingType:    "unsigned_binary_temp",
				Severity:       models.SeverityMedium,
				BaseConfidence: 0.6,
				ExplanationTemplate: "Process execution event '{event_type}' on asset '{asset_id}' " +
					"ran an unsigned binary from a temporary location. " +
					"This behaviour is uncommon and warrants review.",
			},
		},
		{
			RuleID:            "privileged_login_sequence",
			Version:           "1.0.0",
			Name:              "Failed login followed by privileged access",
			Description:       "Failed logins followed by a successful privileged login within 10 minutes.",
			RuleType:          TypeSequence,
			Enabled:           true,
			TriggerEventTypes: []string{"auth.login.failure", "auth.login.success"},
			RequiredContext:   []string{models.ContextKeyIdentity, models.ContextKeyAsset},
			Sequence: &SequenceParams{
				EventTypes:        []string{"auth.login.failure", "auth.login.success"},
				TimeWindowSeconds: 600,
			},
			Suppression: SuppressionPolicy{DedupeWindowSeconds: 1200},
			Output: OutputTemplate{
				FindingType:    "privileged_login_sequence",
				Severity:       models.SeverityHigh,
				BaseConfidence: 0.75,
				ExplanationTemplate: "Multiple failed logins were followed by a successful privileged login " +
					"for identity '{identity_id}' on asset '{asset_id}' within {time_window} seconds.",
			},
		},
		{
			RuleID:            "cpu_deviation_off_hours",
			Version:           "1.0.0",
			Name:              "CPU usage deviates from baseline",
			Description:       "CPU usage exceeds baseline during off-hours.",
			RuleType:          TypeBehaviouralDeviation,
			Enabled:           true,
			TriggerEventTypes: []string{"telemetry.cpu"},
			RequiredContext:   []string{models.ContextKeyBaseline, models.ContextKeyAsset},
			Deviation: &DeviationParams{
				Multiplier: 4.0,
			},
			Suppression: SuppressionPolicy{DedupeWindowSeconds: 1800},
			Output: OutputTemplate{
				FindingType:    "cpu_deviation_off_hours",
				Severity:       models.SeverityMedium,
				BaseConfidence: 0.55,
				ExplanationTemplate: "Telemetry '{metric_name}' on asset '{asset_id}' reported {metric_value}, " +
					"which is {multiplier}x above baseline {baseline_value}.",
			},
		},
		{
			RuleID:            "patch_missing_exploit_signal",
			Version:           "1.0.0",
			Name:              "Patch missing with exploit-like behaviour",
			Description:       "Combines missing patch context with exploit-like process behaviour.",
			RuleType:          TypeCrossDomain,
			Enabled:           true,
			TriggerEventTypes: []string{"process.suspicious"},
			RequiredContext:   []string{models.ContextKeyPatchState, models.ContextKeyAsset, models.ContextKeyIdentity},
			CrossDomain: &CrossDomainParams{
				RequireMissingPatches: true,
				BehaviourSignalKey:    "suspicious_score",
			},
			Suppression: SuppressionPolicy{DedupeWindowSeconds: 1800},
			Output: OutputTemplate{
				FindingType:    "patch_missing_exploit_signal",
				Severity:       models.SeverityHigh,
				BaseConfidence: 0.7,
				ExplanationTemplate: "Suspicious process behaviour on asset '{asset_id}' coincided with missing patches " +
					"({missing_patches}). This increases concern for exploitation.",
			},
		},
	}
}
