package catalog

import (
	"fmt"
	"strings"
	"time"
)

// RuleDefinition is an immutable, versioned detection rule. New behavior
// requires a new version; definitions are never mutated at runtime.
type RuleDefinition struct {
	RuleID            string             `json:"rule_id" yaml:"rule_id"`
	Version           string             `json:"version" yaml:"version"`
	Name              string             `json:"name,omitempty" yaml:"name,omitempty"`
	Description       string             `json:"description,omitempty" yaml:"description,omitempty"`
	RuleType          RuleType           `json:"rule_type" yaml:"rule_type"`
	Enabled           bool               `json:"enabled" yaml:"enabled"`
	TriggerEventTypes []string           `json:"trigger_event_types" yaml:"trigger_event_types"`
	RequiredContext   []string           `json:"required_context,omitempty" yaml:"required_context,omitempty"`
	Scope             []string           `json:"scope,omitempty" yaml:"scope,omitempty"`
	SingleEvent       *SingleEventParams `json:"single_event,omitempty" yaml:"single_event,omitempty"`
	Sequence          *SequenceParams    `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Deviation         *DeviationParams   `json:"deviation,omitempty" yaml:"deviation,omitempty"`
	CrossDomain       *CrossDomainParams `json:"cross_domain,omitempty" yaml:"cross_domain,omitempty"`
	Suppression       SuppressionPolicy  `json:"suppression" yaml:"suppression"`
	Output            OutputTemplate     `json:"output" yaml:"output"`
}

// Scope fields a rule may declare for its primary entity key.
const (
	ScopeAssetID    = "asset_id"
	ScopeIdentityID = "identity_id"
)

// TriggersOn reports whether the rule should evaluate the given event type.
// An empty trigger set matches every event type.
func (r *RuleDefinition) TriggersOn(eventType string) bool {
	if len(r.TriggerEventTypes) == 0 {
		return true
	}
	for _, t := range r.TriggerEventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// EntityKey derives the rule-scoped primary entity key for an event.
// Default scope is asset_id plus identity_id.
func (r *RuleDefinition) EntityKey(assetID, identityID string) string {
	scope := r.Scope
	if len(scope) == 0 {
		scope = []string{ScopeAssetID, ScopeIdentityID}
	}
	parts := make([]string, 0, len(scope))
	for _, field := range scope {
		switch field {
		case ScopeAssetID:
			parts = append(parts, assetID)
		case ScopeIdentityID:
			parts = append(parts, identityID)
		}
	}
	return strings.Join(parts, "|")
}

// DedupeWindow returns the suppression window as a duration.
func (r *RuleDefinition) DedupeWindow() time.Duration {
	return time.Duration(r.Suppression.DedupeWindowSeconds) * time.Second
}

// TimeWindow returns the sequence window, or the given default for rule
// types without one.
func (r *RuleDefinition) TimeWindow(defaultWindow time.Duration) time.Duration {
	if r.Sequence != nil && r.Sequence.TimeWindowSeconds > 0 {
		return time.Duration(r.Sequence.TimeWindowSeconds) * time.Second
	}
	return defaultWindow
}

// Validate checks the rule definition for deterministic evaluation.
// allowedVariables bounds the explanation template placeholders; pass nil
// to skip the template check.
func (r *RuleDefinition) Validate(allowedVariables []string) error {
	if r.RuleID == "" {
		return fmt.Errorf("rule_id is required")
	}
	if r.Version == "" {
		return fmt.Errorf("version is required")
	}
	if !r.RuleType.IsValid() {
		return fmt.Errorf("invalid rule_type: %s", r.RuleType)
	}

	for _, field := range r.Scope {
		if field != ScopeAssetID && field != ScopeIdentityID {
			return fmt.Errorf("invalid scope field: %s", field)
		}
	}

	if err := r.Suppression.Validate(); err != nil {
		return fmt.Errorf("suppression: %w", err)
	}
	if err := r.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	switch r.RuleType {
	case TypeSingleEvent:
		if r.SingleEvent == nil {
			return fmt.Errorf("single_event parameters are required")
		}
		if err := r.SingleEvent.Validate(); err != nil {
			return fmt.Errorf("single_event: %w", err)
		}
	case TypeSequence:
		if r.Sequence == nil {
			return fmt.Errorf("sequence parameters are required")
		}
		if err := r.Sequence.Validate(); err != nil {
			return fmt.Errorf("sequence: %w", err)
		}
	case TypeBehaviouralDeviation:
		if r.Deviation == nil {
			return fmt.Errorf("deviation parameters are required")
		}
		if err := r.Deviation.Validate(); err != nil {
			return fmt.Errorf("deviation: %w", err)
		}
		if !containsString(r.RequiredContext, "baseline") {
			return fmt.Errorf("behavioural_deviation requires baseline context")
		}
	case TypeCrossDomain:
		if r.CrossDomain == nil {
			return fmt.Errorf("cross_domain parameters are required")
		}
		if err := r.CrossDomain.Validate(); err != nil {
			return fmt.Errorf("cross_domain: %w", err)
		}
		if r.CrossDomain.RequireMissingPatches && !containsString(r.RequiredContext, "patch_state") {
			return fmt.Errorf("cross_domain requires patch_state context")
		}
	}

	if allowedVariables != nil {
		allowed := make(map[string]bool, len(allowedVariables))
		for _, v := range allowedVariables {
			allowed[v] = true
		}
		var invalid []string
		for _, placeholder := range Placeholders(r.Output.ExplanationTemplate) {
			if !allowed[placeholder] {
				invalid = append(invalid, placeholder)
			}
		}
		if len(invalid) > 0 {
			return fmt.Errorf("invalid explanation variables: %s", strings.Join(invalid, ","))
		}
	}

	return nil
}

// Placeholders extracts {variable} names from an explanation template.
func Placeholders(template string) []string {
	var names []string
	for {
		start := strings.IndexByte(template, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			return names
		}
		name := template[start+1 : start+end]
		if name != "" && !strings.ContainsAny(name, "{} ") {
			names = append(names, name)
		}
		template = template[start+end+1:]
	}
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
