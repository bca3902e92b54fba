// Package correlation implements the rule evaluation state machine. Each
// rule type maps to a statically registered evaluator; there is no dynamic
// discovery or reflection.
package correlation

import (
	"context"
	"fmt"
	"time"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/models"
)

// Match is the outcome of one rule firing on one event. SupportingEvents
// always includes at least the triggering event, ordered by occurred_at.
type Match struct {
	Rule             *catalog.RuleDefinition
	SupportingEvents []*models.NormalizedEvent
	// WithoutContext marks a match produced under the
	// allow_findings_without_context policy with required context absent.
	WithoutContext bool
	// Details carries evaluator-specific values for explanation rendering
	// (metric_value, baseline_value, multiplier).
	Details map[string]interface{}
}

// Evaluator is implemented once per rule type. A nil match with nil error
// means the rule did not fire; an error marks the rule non-evaluable for
// this event and is treated as a non-match by the caller.
type Evaluator interface {
	Evaluate(ctx context.Context, rule *catalog.RuleDefinition, event *models.NormalizedEvent, snapshot *models.ContextSnapshot) (*Match, error)
}

// Registry maps the closed rule-type set to evaluator implementations.
type Registry struct {
	evaluators map[catalog.RuleType]Evaluator
}

// NewRegistry wires the four built-in evaluators. states backs sequence
// rules; allowWithoutContext enables the reduced-confidence no-context
// policy; defaultWindow applies to rule types without their own window.
func NewRegistry(states *MatchStateStore, allowWithoutContext bool, defaultWindow time.Duration) *Registry {
	return &Registry{
		evaluators: map[catalog.RuleType]Evaluator{
			catalog.TypeSingleEvent:          &SingleEventEvaluator{},
			catalog.TypeSequence:             &SequenceEvaluator{states: states, defaultWindow: defaultWindow},
			catalog.TypeBehaviouralDeviation: &DeviationEvaluator{allowWithoutContext: allowWithoutContext},
			catalog.TypeCrossDomain:          &CrossDomainEvaluator{},
		},
	}
}

// Evaluate dispatches to the evaluator for the rule's type.
func (r *Registry) Evaluate(ctx context.Context, rule *catalog.RuleDefinition, event *models.NormalizedEvent, snapshot *models.ContextSnapshot) (*Match, error) {
	evaluator, ok := r.evaluators[rule.RuleType]
	if !ok {
		return nil, fmt.Errorf("no evaluator registered for rule type %s", rule.RuleType)
	}
	return evaluator.Evaluate(ctx, rule, event, snapshot)
}
