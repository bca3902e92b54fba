package repository

import (
	"context"
	"errors"

	"github.com/stratuswatch/detect-engine/internal/models"
)

var (
	ErrFindingNotFound   = errors.New("finding not found")
	ErrFindingNotOpen    = errors.New("finding is not open")
	ErrDismissalNotFound = errors.New("dismissal not found")
)

// FindingFilter narrows ListFindings results. Zero values match everything.
type FindingFilter struct {
	TenantID string
	RuleID   string
	AssetID  string
	Severity models.Severity
	State    models.FindingState
	Limit    int
	Offset   int
}

// Repository defines the interface for finding, suppression, and dismissal
// persistence.
type Repository interface {
	// Finding operations
	InsertFinding(ctx context.Context, finding *models.Finding) error
	GetFinding(ctx context.Context, findingID string) (*models.Finding, error)
	ListFindings(ctx context.Context, filter *FindingFilter) ([]*models.Finding, int, error)
	FindOpenByDedupeKey(ctx context.Context, dedupeKey string) (*models.Finding, error)
	UpdateFindingState(ctx context.Context, findingID string, state models.FindingState, caseID string) error
	SupersedeFinding(ctx context.Context, findingID, newFindingID string) error
	DismissFinding(ctx context.Context, dismissal *models.Dismissal) error

	// Suppression audit
	RecordSuppression(ctx context.Context, decision *models.SuppressionDecision) error
	ListSuppressions(ctx context.Context, limit, offset int) ([]*models.SuppressionDecision, int, error)

	// Dismissal audit
	ListDismissals(ctx context.Context, limit, offset int) ([]*models.Dismissal, int, error)

	// Utility
	Close() error
}
