// Package suppression decides which rule matches are withheld from
// emission: maintenance windows, per-rule allowlists, and time-windowed
// duplicate suppression keyed by rule and entity.
package suppression

import (
	"crypto/sha256"
	"fmt"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/models"
)

// DedupeKey derives the stable duplicate-suppression key for a rule match.
// The entity key is hashed so arbitrary asset and identity values cannot
// blow up key length in the backing store.
func DedupeKey(ruleID, ruleVersion, entityKey string) string {
	hash := sha256.Sum256([]byte(entityKey))
	return fmt.Sprintf("%s:%s:%x", ruleID, ruleVersion, hash[:8])
}

// Reason returns the non-dedupe suppression reason for a match, or empty
// when none applies. Checks run in precedence order: maintenance window
// first, then the rule's allowlists.
func Reason(rule *catalog.RuleDefinition, event *models.NormalizedEvent, snapshot *models.ContextSnapshot) string {
	if snapshot != nil && snapshot.MaintenanceWindow {
		return models.SuppressReasonMaintenanceWindow
	}
	if containsString(rule.Suppression.AllowlistAssets, event.AssetID) {
		return models.SuppressReasonAssetAllowlist
	}
	if containsString(rule.Suppression.AllowlistIdentities, event.IdentityID) {
		return models.SuppressReasonIdentityAllowlist
	}
	if containsString(rule.Suppression.AllowlistEventTypes, event.EventType) {
		return models.SuppressReasonEventTypeAllowlist
	}
	return ""
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
