// Package emitter turns rule matches into persisted findings: assembly,
// explanation rendering, risk adjustment, supersede handling, escalation,
// and bus announcement.
package emitter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stratuswatch/detect-engine/internal/correlation"
	"github.com/stratuswatch/detect-engine/internal/escalation"
	"github.com/stratuswatch/detect-engine/internal/graph"
	"github.com/stratuswatch/detect-engine/internal/metrics"
	"github.com/stratuswatch/detect-engine/internal/models"
	"github.com/stratuswatch/detect-engine/internal/repository"
	"github.com/stratuswatch/detect-engine/internal/risk"
	"github.com/stratuswatch/detect-engine/pkg/logging"
)

// Emitter assembles and persists findings from matches that passed
// suppression.
type Emitter struct {
	repo      repository.Repository
	cases     escalation.CaseCreator
	publisher escalation.Publisher
	log       *logging.Logger

	maxSupportingEvents int
	allowedVariables    map[string]bool
	now                 func() time.Time
}

// Config carries Emitter construction parameters.
type Config struct {
	Repository          repository.Repository
	Cases               escalation.CaseCreator // nil disables escalation
	Publisher           escalation.Publisher
	Logger              *logging.Logger
	MaxSupportingEvents int
	AllowedVariables    []string
}

// New creates an Emitter.
func New(cfg Config) *Emitter {
	allowed := make(map[string]bool, len(cfg.AllowedVariables))
	for _, v := range cfg.AllowedVariables {
		allowed[v] = true
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = escalation.NoopPublisher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	maxSupporting := cfg.MaxSupportingEvents
	if maxSupporting <= 0 {
		maxSupporting = 50
	}
	return &Emitter{
		repo:                cfg.Repository,
		cases:               cfg.Cases,
		publisher:           publisher,
		log:                 logger,
		maxSupportingEvents: maxSupporting,
		allowedVariables:    allowed,
		now:                 time.Now,
	}
}

// WithClock overrides the time source for tests.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

// Emit builds the finding for a match and persists it. An open finding
// with the same dedupe key whose window has elapsed is superseded by the
// new one. Escalation failures mark the finding but do not fail the emit.
func (e *Emitter) Emit(ctx context.Context, match *correlation.Match, event *models.NormalizedEvent, snapshot *models.ContextSnapshot, dedupeKey string, timeWindow time.Duration) (*models.Finding, error) {
	rule := match.Rule

	supporting := match.SupportingEvents
	if len(supporting) > e.maxSupportingEvents {
		supporting = supporting[:e.maxSupportingEvents]
	}
	eventIDs := make([]string, 0, len(supporting))
	for _, ev := range supporting {
		eventIDs = append(eventIDs, ev.EventID)
	}

	finding := &models.Finding{
		FindingID:          uuid.New().String(),
		RuleID:             rule.RuleID,
		RuleVersion:        rule.Version,
		FindingType:        rule.Output.FindingType,
		Severity:           risk.Severity(rule.Output.Severity, snapshot),
		Confidence:         risk.Confidence(rule.Output.BaseConfidence, snapshot, match.WithoutContext),
		Explanation:        RenderExplanation(rule, match, event, snapshot, timeWindow, e.allowedVariables),
		SupportingEventIDs: eventIDs,
		CorrelationGraph:   graph.BuildMerged(supporting),
		TenantID:           event.TenantID,
		AssetID:            event.AssetID,
		IdentityID:         event.IdentityID,
		DedupeKey:          dedupeKey,
		State:              models.FindingStateOpen,
		CreatedAt:          e.now().UTC(),
	}

	// A stale open finding under the same key is replaced, not duplicated.
	previous, err := e.repo.FindOpenByDedupeKey(ctx, dedupeKey)
	if err != nil && !errors.Is(err, repository.ErrFindingNotFound) {
		return nil, err
	}

	if e.cases != nil {
		caseID, escErr := e.cases.CreateCase(ctx, finding)
		if escErr != nil {
			finding.State = models.FindingStateEscalationFailed
			metrics.EscalationFailures.Inc()
			e.log.WarnContext(ctx, "case escalation failed",
				logging.FindingID(finding.FindingID),
				logging.RuleID(rule.RuleID),
				logging.Error(escErr))
		} else {
			finding.State = models.FindingStateEscalated
			finding.CaseID = caseID
		}
	}

	if err := e.repo.InsertFinding(ctx, finding); err != nil {
		return nil, err
	}
	if previous != nil {
		if err := e.repo.SupersedeFinding(ctx, previous.FindingID, finding.FindingID); err != nil {
			e.log.WarnContext(ctx, "failed to supersede finding",
				logging.FindingID(previous.FindingID),
				logging.Error(err))
		}
	}

	metrics.FindingsEmitted.WithLabelValues(rule.RuleID, string(finding.Severity)).Inc()
	if err := e.publisher.PublishFindingCreated(ctx, finding); err != nil {
		e.log.WarnContext(ctx, "failed to publish finding",
			logging.FindingID(finding.FindingID),
			logging.Error(err))
	}

	return finding, nil
}

// Suppress records a suppression decision for audit and announces it.
func (e *Emitter) Suppress(ctx context.Context, rule string, event *models.NormalizedEvent, dedupeKey, reason string) (*models.SuppressionDecision, error) {
	decision := &models.SuppressionDecision{
		DecisionID:   uuid.New().String(),
		RuleID:       rule,
		EventID:      event.EventID,
		AssetID:      event.AssetID,
		IdentityID:   event.IdentityID,
		DedupeKey:    dedupeKey,
		Reason:       reason,
		SuppressedAt: e.now().UTC(),
	}
	if err := e.repo.RecordSuppression(ctx, decision); err != nil {
		return nil, err
	}

	metrics.MatchesSuppressed.WithLabelValues(rule, reason).Inc()
	if err := e.publisher.PublishFindingSuppressed(ctx, decision); err != nil {
		e.log.WarnContext(ctx, "failed to publish suppression",
			logging.RuleID(rule),
			logging.Error(err))
	}
	return decision, nil
}
