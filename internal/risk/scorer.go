// Package risk applies context-driven adjustments to finding confidence
// and severity. All functions are pure; the same inputs always produce the
// same outputs.
package risk

import "github.com/stratuswatch/detect-engine/internal/models"

const (
	criticalityBoost    = 0.10
	privilegeBoost      = 0.05
	missingPatchesBoost = 0.05

	// noContextPenalty is subtracted when a match fired without its
	// required context under the allow_findings_without_context policy.
	noContextPenalty = 0.15

	criticalityHigh  = "high"
	exposureInternet = "internet"
)

// Confidence adjusts the rule's base confidence using the context snapshot
// and clamps the result to [0, 1]. A nil snapshot applies no adjustment.
func Confidence(base float64, snapshot *models.ContextSnapshot, withoutContext bool) float64 {
	adjustment := 0.0
	if snapshot != nil {
		if snapshot.Asset != nil && snapshot.Asset.Criticality == criticalityHigh {
			adjustment += criticalityBoost
		}
		if snapshot.Identity != nil && len(snapshot.Identity.Privileges) > 0 {
			adjustment += privilegeBoost
		}
		if snapshot.PatchState != nil && len(snapshot.PatchState.MissingPatches) > 0 {
			adjustment += missingPatchesBoost
		}
	}
	if withoutContext {
		adjustment -= noContextPenalty
	}

	score := base + adjustment
	if score > 1.0 {
		return 1.0
	}
	if score < 0.0 {
		return 0.0
	}
	return score
}

// Severity escalates the rule's base severity one step when the asset is
// high criticality or internet-exposed. High is the ceiling; escalation is
// applied at most once so two risk factors do not jump low to high.
func Severity(base models.Severity, snapshot *models.ContextSnapshot) models.Severity {
	if snapshot == nil {
		return base
	}
	if snapshot.Asset != nil && snapshot.Asset.Criticality == criticalityHigh {
		return base.Escalate()
	}
	if snapshot.PatchState != nil && snapshot.PatchState.Exposure == exposureInternet {
		return base.Escalate()
	}
	return base
}
