package catalog

import (
	"fmt"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// RuleType represents the detection strategy of a rule. The set is closed:
// each type maps to a statically registered evaluator.
type RuleType string

const (
	TypeSingleEvent          RuleType = "single_event"
	TypeSequence             RuleType = "sequence"
	TypeBehaviouralDeviation RuleType = "behavioural_deviation"
	TypeCrossDomain          RuleType = "cross_domain"
)

// IsValid checks if the rule type is valid
func (rt RuleType) IsValid() bool {
	switch rt {
	case TypeSingleEvent, TypeSequence, TypeBehaviouralDeviation, TypeCrossDomain:
		return true
	default:
		return false
	}
}

// Comparison operators accepted in threshold conditions.
var validOperators = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true, "==": true, "!=": true,
}

// SingleEventParams parameters for single_event rules. All conditions are
// ANDed; at least one must be set.
type SingleEventParams struct {
	ImageContains   string   `json:"image_contains,omitempty" yaml:"image_contains,omitempty"`
	RequireUnsigned bool     `json:"require_unsigned,omitempty" yaml:"require_unsigned,omitempty"`
	EvidenceKey     string   `json:"evidence_key,omitempty" yaml:"evidence_key,omitempty"`
	Operator        string   `json:"operator,omitempty" yaml:"operator,omitempty"`
	Threshold       *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// Validate validates SingleEventParams
func (p *SingleEventParams) Validate() error {
	if p.ImageContains == "" && !p.RequireUnsigned && p.EvidenceKey == "" {
		return fmt.Errorf("single_event rule needs at least one condition")
	}
	if p.EvidenceKey != "" {
		if p.Operator == "" {
			return fmt.Errorf("operator is required with evidence_key")
		}
		if !validOperators[p.Operator] {
			return fmt.Errorf("invalid operator: %s", p.Operator)
		}
		if p.Threshold == nil {
			return fmt.Errorf("threshold is required with evidence_key")
		}
	}
	return nil
}

// SequenceParams parameters for sequence rules. EventTypes must appear as an
// ordered subsequence (not necessarily contiguous) within the time window.
type SequenceParams struct {
	EventTypes        []string `json:"event_types" yaml:"event_types"`
	TimeWindowSeconds int      `json:"time_window_seconds" yaml:"time_window_seconds"`
}

// Validate validates SequenceParams
func (p *SequenceParams) Validate() error {
	if len(p.EventTypes) < 2 {
		return fmt.Errorf("sequence must have at least 2 event types")
	}
	if p.TimeWindowSeconds <= 0 {
		return fmt.Errorf("time_window_seconds must be greater than 0")
	}
	return nil
}

// DeviationParams parameters for behavioural_deviation rules. The event's
// metric value is compared against baseline expected_value * multiplier.
type DeviationParams struct {
	Multiplier     float64 `json:"multiplier" yaml:"multiplier"`
	MetricValueKey string  `json:"metric_value_key,omitempty" yaml:"metric_value_key,omitempty"`
}

// Validate validates DeviationParams
func (p *DeviationParams) Validate() error {
	if p.Multiplier <= 0 {
		return fmt.Errorf("multiplier must be greater than 0")
	}
	return nil
}

// CrossDomainParams parameters for cross_domain rules. Each listed dimension
// must independently indicate risk (logical AND).
type CrossDomainParams struct {
	RequireMissingPatches bool   `json:"require_missing_patches,omitempty" yaml:"require_missing_patches,omitempty"`
	BehaviourSignalKey    string `json:"behaviour_signal_key,omitempty" yaml:"behaviour_signal_key,omitempty"`
}

// Validate validates CrossDomainParams
func (p *CrossDomainParams) Validate() error {
	if !p.RequireMissingPatches && p.BehaviourSignalKey == "" {
		return fmt.Errorf("cross_domain rule needs at least one risk dimension")
	}
	return nil
}

// SuppressionPolicy controls dedup and allowlist suppression for one rule.
type SuppressionPolicy struct {
	DedupeWindowSeconds int      `json:"dedupe_window_seconds" yaml:"dedupe_window_seconds"`
	AllowlistAssets     []string `json:"allowlist_assets,omitempty" yaml:"allowlist_assets,omitempty"`
	AllowlistIdentities []string `json:"allowlist_identities,omitempty" yaml:"allowlist_identities,omitempty"`
	AllowlistEventTypes []string `json:"allowlist_event_types,omitempty" yaml:"allowlist_event_types,omitempty"`
}

// Validate validates SuppressionPolicy
func (p *SuppressionPolicy) Validate() error {
	if p.DedupeWindowSeconds < 0 {
		return fmt.Errorf("dedupe_window_seconds must be non-negative")
	}
	return nil
}

// OutputTemplate shapes the finding a matching rule produces.
type OutputTemplate struct {
	FindingType         string          `json:"finding_type" yaml:"finding_type"`
	Severity            models.Severity `json:"severity" yaml:"severity"`
	BaseConfidence      float64         `json:"base_confidence" yaml:"base_confidence"`
	ExplanationTemplate string          `json:"explanation_template" yaml:"explanation_template"`
}

// Validate validates OutputTemplate
func (p *OutputTemplate) Validate() error {
	if p.FindingType == "" {
		return fmt.Errorf("finding_type is required")
	}
	if !p.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", p.Severity)
	}
	if p.BaseConfidence < 0 || p.BaseConfidence > 1 {
		return fmt.Errorf("base_confidence must be between 0.0 and 1.0")
	}
	return nil
}
