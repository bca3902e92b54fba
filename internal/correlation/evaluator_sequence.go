package correlation

import (
	"context"
	"fmt"
	"time"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/models"
)

// SequenceEvaluator matches ordered event-type sequences scoped to an entity
// within a sliding time window. Matched events are consumed from the buffer
// so a completed sequence cannot fire twice on the same events.
type SequenceEvaluator struct {
	states        *MatchStateStore
	defaultWindow time.Duration
}

func (e *SequenceEvaluator) Evaluate(_ context.Context, rule *catalog.RuleDefinition, event *models.NormalizedEvent, _ *models.ContextSnapshot) (*Match, error) {
	params := rule.Sequence
	if params == nil {
		return nil, fmt.Errorf("rule %s: missing sequence parameters", rule.RuleID)
	}

	window := rule.TimeWindow(e.defaultWindow)
	key := stateKey(event.TenantID, rule.RuleID, rule.EntityKey(event.AssetID, event.IdentityID))

	matched := e.states.Observe(key, event, params.EventTypes, window)
	if matched == nil {
		return nil, nil
	}
	return &Match{
		Rule:             rule,
		SupportingEvents: matched,
	}, nil
}

func stateKey(tenantID, ruleID, entityKey string) string {
	return tenantID + "|" + ruleID + "|" + entityKey
}
