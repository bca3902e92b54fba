package correlation

import (
	"context"
	"fmt"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/models"
)

// DeviationEvaluator compares a metric carried on the event against the
// entity's learned baseline. A match requires the observed value to reach
// baseline * multiplier.
type DeviationEvaluator struct {
	allowWithoutContext bool
}

func (e *DeviationEvaluator) Evaluate(_ context.Context, rule *catalog.RuleDefinition, event *models.NormalizedEvent, snapshot *models.ContextSnapshot) (*Match, error) {
	params := rule.Deviation
	if params == nil {
		return nil, fmt.Errorf("rule %s: missing behavioural_deviation parameters", rule.RuleID)
	}

	metricKey := params.MetricValueKey
	if metricKey == "" {
		metricKey = "metric_value"
	}
	value, ok := attributeFloat(event, metricKey)
	if !ok {
		return nil, nil
	}

	if snapshot == nil || snapshot.Baseline == nil {
		if !e.allowWithoutContext {
			return nil, nil
		}
		return &Match{
			Rule:             rule,
			SupportingEvents: []*models.NormalizedEvent{event},
			WithoutContext:   true,
			Details: map[string]any{
				"metric_value": value,
				"multiplier":   params.Multiplier,
			},
		}, nil
	}

	baseline := snapshot.Baseline
	if value < baseline.ExpectedValue*params.Multiplier {
		return nil, nil
	}

	return &Match{
		Rule:             rule,
		SupportingEvents: []*models.NormalizedEvent{event},
		Details: map[string]any{
			"metric_name":    baseline.MetricName,
			"metric_value":   value,
			"baseline_value": baseline.ExpectedValue,
			"multiplier":     params.Multiplier,
		},
	}, nil
}
