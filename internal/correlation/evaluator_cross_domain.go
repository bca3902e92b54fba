package correlation

import (
	"context"
	"fmt"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/models"
)

// CrossDomainEvaluator joins a behaviour signal on the event with posture
// facts from the context snapshot, such as unpatched vulnerabilities.
type CrossDomainEvaluator struct{}

func (e *CrossDomainEvaluator) Evaluate(_ context.Context, rule *catalog.RuleDefinition, event *models.NormalizedEvent, snapshot *models.ContextSnapshot) (*Match, error) {
	params := rule.CrossDomain
	if params == nil {
		return nil, fmt.Errorf("rule %s: missing cross_domain parameters", rule.RuleID)
	}

	if params.RequireMissingPatches {
		if snapshot == nil || snapshot.PatchState == nil {
			return nil, nil
		}
		if len(snapshot.PatchState.MissingPatches) == 0 {
			return nil, nil
		}
	}

	details := map[string]any{}
	if params.BehaviourSignalKey != "" {
		signal, ok := behaviourSignal(event, params.BehaviourSignalKey)
		if !ok || !signal {
			return nil, nil
		}
		details[params.BehaviourSignalKey] = true
	}
	if params.RequireMissingPatches {
		details["missing_patches"] = snapshot.PatchState.MissingPatches
	}

	return &Match{
		Rule:             rule,
		SupportingEvents: []*models.NormalizedEvent{event},
		Details:          details,
	}, nil
}

// behaviourSignal treats booleans as themselves and numbers as positive
// being true. Anything else is non-evaluable.
func behaviourSignal(event *models.NormalizedEvent, key string) (bool, bool) {
	if b, ok := attributeBool(event, key); ok {
		return b, true
	}
	if f, ok := attributeFloat(event, key); ok {
		return f > 0, true
	}
	return false, false
}
