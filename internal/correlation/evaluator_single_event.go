package correlation

import (
	"context"
	"fmt"
	"strings"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/models"
)

// SingleEventEvaluator evaluates stateless predicates over one event's
// fields and attributes. All configured conditions are ANDed.
type SingleEventEvaluator struct{}

// Evaluate checks the rule's conditions against the event. Missing evidence
// or conflicting signed/unsigned attributes make the rule non-evaluable for
// this event, which is a non-match, never an error.
func (e *SingleEventEvaluator) Evaluate(_ context.Context, rule *catalog.RuleDefinition, event *models.NormalizedEvent, _ *models.ContextSnapshot) (*Match, error) {
	params := rule.SingleEvent
	if params == nil {
		return nil, fmt.Errorf("rule %s: missing single_event parameters", rule.RuleID)
	}

	if params.ImageContains != "" {
		imagePath, ok := attributeString(event, "image_path")
		if !ok {
			return nil, nil
		}
		if !strings.Contains(strings.ToLower(imagePath), strings.ToLower(params.ImageContains)) {
			return nil, nil
		}
	}

	if params.RequireUnsigned {
		unsigned, conflict, present := signedState(event)
		if conflict || !present || !unsigned {
			return nil, nil
		}
	}

	if params.EvidenceKey != "" {
		if params.Threshold == nil || params.Operator == "" {
			// Non-evaluable configuration for this event.
			return nil, nil
		}
		value, ok := attributeFloat(event, params.EvidenceKey)
		if !ok {
			return nil, nil
		}
		if !meetsThreshold(value, *params.Threshold, params.Operator) {
			return nil, nil
		}
	}

	return &Match{
		Rule:             rule,
		SupportingEvents: []*models.NormalizedEvent{event},
	}, nil
}
