package repository

import (
	"context"
	"sync"
	"time"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// MemoryRepository implements Repository with bounded in-process storage.
// Used for single-node deployments and tests; retention caps keep the
// oldest entries from growing without bound.
type MemoryRepository struct {
	mu sync.RWMutex

	findings     []*models.Finding
	findingsByID map[string]*models.Finding
	suppressions []*models.SuppressionDecision
	dismissals   []*models.Dismissal

	retentionFindings     int
	retentionSuppressions int
}

// NewMemoryRepository creates an empty in-memory repository with the given
// retention caps. Zero or negative caps fall back to defaults.
func NewMemoryRepository(retentionFindings, retentionSuppressions int) *MemoryRepository {
	if retentionFindings <= 0 {
		retentionFindings = 5000
	}
	if retentionSuppressions <= 0 {
		retentionSuppressions = 5000
	}
	return &MemoryRepository{
		findingsByID:          make(map[string]*models.Finding),
		retentionFindings:     retentionFindings,
		retentionSuppressions: retentionSuppressions,
	}
}

func (r *MemoryRepository) InsertFinding(_ context.Context, finding *models.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *finding
	r.findings = append(r.findings, &stored)
	r.findingsByID[stored.FindingID] = &stored

	if len(r.findings) > r.retentionFindings {
		evicted := r.findings[0]
		r.findings = r.findings[1:]
		delete(r.findingsByID, evicted.FindingID)
	}
	return nil
}

func (r *MemoryRepository) GetFinding(_ context.Context, findingID string) (*models.Finding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	finding, ok := r.findingsByID[findingID]
	if !ok {
		return nil, ErrFindingNotFound
	}
	copied := *finding
	return &copied, nil
}

func (r *MemoryRepository) ListFindings(_ context.Context, filter *FindingFilter) ([]*models.Finding, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if filter == nil {
		filter = &FindingFilter{}
	}

	var matched []*models.Finding
	// Newest first.
	for i := len(r.findings) - 1; i >= 0; i-- {
		f := r.findings[i]
		if filter.TenantID != "" && f.TenantID != filter.TenantID {
			continue
		}
		if filter.RuleID != "" && f.RuleID != filter.RuleID {
			continue
		}
		if filter.AssetID != "" && f.AssetID != filter.AssetID {
			continue
		}
		if filter.Severity != "" && f.Severity != filter.Severity {
			continue
		}
		if filter.State != "" && f.State != filter.State {
			continue
		}
		copied := *f
		matched = append(matched, &copied)
	}

	total := len(matched)
	matched = page(matched, filter.Limit, filter.Offset)
	return matched, total, nil
}

func (r *MemoryRepository) FindOpenByDedupeKey(_ context.Context, dedupeKey string) (*models.Finding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.findings) - 1; i >= 0; i-- {
		f := r.findings[i]
		if f.DedupeKey == dedupeKey && f.State == models.FindingStateOpen {
			copied := *f
			return &copied, nil
		}
	}
	return nil, ErrFindingNotFound
}

func (r *MemoryRepository) UpdateFindingState(_ context.Context, findingID string, state models.FindingState, caseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	finding, ok := r.findingsByID[findingID]
	if !ok {
		return ErrFindingNotFound
	}
	finding.State = state
	if caseID != "" {
		finding.CaseID = caseID
	}
	return nil
}

func (r *MemoryRepository) SupersedeFinding(_ context.Context, findingID, newFindingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	finding, ok := r.findingsByID[findingID]
	if !ok {
		return ErrFindingNotFound
	}
	finding.State = models.FindingStateSuperseded
	finding.SupersededBy = newFindingID
	return nil
}

func (r *MemoryRepository) DismissFinding(_ context.Context, dismissal *models.Dismissal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	finding, ok := r.findingsByID[dismissal.FindingID]
	if !ok {
		return ErrFindingNotFound
	}
	if finding.State != models.FindingStateOpen && finding.State != models.FindingStateEscalated {
		return ErrFindingNotOpen
	}
	finding.State = models.FindingStateDismissed

	stored := *dismissal
	if stored.DismissedAt.IsZero() {
		stored.DismissedAt = time.Now().UTC()
	}
	r.dismissals = append(r.dismissals, &stored)
	return nil
}

func (r *MemoryRepository) RecordSuppression(_ context.Context, decision *models.SuppressionDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *decision
	r.suppressions = append(r.suppressions, &stored)
	if len(r.suppressions) > r.retentionSuppressions {
		r.suppressions = r.suppressions[1:]
	}
	return nil
}

func (r *MemoryRepository) ListSuppressions(_ context.Context, limit, offset int) ([]*models.SuppressionDecision, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decisions := make([]*models.SuppressionDecision, 0, len(r.suppressions))
	for i := len(r.suppressions) - 1; i >= 0; i-- {
		copied := *r.suppressions[i]
		decisions = append(decisions, &copied)
	}
	total := len(decisions)
	return page(decisions, limit, offset), total, nil
}

func (r *MemoryRepository) ListDismissals(_ context.Context, limit, offset int) ([]*models.Dismissal, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dismissals := make([]*models.Dismissal, 0, len(r.dismissals))
	for i := len(r.dismissals) - 1; i >= 0; i-- {
		copied := *r.dismissals[i]
		dismissals = append(dismissals, &copied)
	}
	total := len(dismissals)
	return page(dismissals, limit, offset), total, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
