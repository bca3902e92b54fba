package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) InsertFinding(ctx context.Context, f *models.Finding) error {
	graph, err := json.Marshal(f.CorrelationGraph)
	if err != nil {
		return fmt.Errorf("failed to marshal correlation graph: %w", err)
	}

	query := `
		INSERT INTO findings (
			id, rule_id, rule_version, finding_type, severity, confidence,
			explanation, supporting_event_ids, correlation_graph,
			tenant_id, asset_id, identity_id, dedupe_key, state, case_id,
			superseded_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.pool.Exec(ctx, query,
		f.FindingID, f.RuleID, f.RuleVersion, f.FindingType, f.Severity, f.Confidence,
		f.Explanation, f.SupportingEventIDs, graph,
		f.TenantID, f.AssetID, f.IdentityID, f.DedupeKey, f.State,
		nullable(f.CaseID), nullable(f.SupersededBy), f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert finding: %w", err)
	}
	return nil
}

const findingColumns = `
	id, rule_id, rule_version, finding_type, severity, confidence,
	explanation, supporting_event_ids, correlation_graph,
	tenant_id, asset_id, identity_id, dedupe_key, state, case_id,
	superseded_by, created_at
`

func (r *PostgresRepository) GetFinding(ctx context.Context, findingID string) (*models.Finding, error) {
	query := fmt.Sprintf("SELECT %s FROM findings WHERE id = $1", findingColumns)
	finding, err := scanFinding(r.pool.QueryRow(ctx, query, findingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFindingNotFound
		}
		return nil, fmt.Errorf("failed to get finding: %w", err)
	}
	return finding, nil
}

func (r *PostgresRepository) ListFindings(ctx context.Context, filter *FindingFilter) ([]*models.Finding, int, error) {
	if filter == nil {
		filter = &FindingFilter{}
	}

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if filter.TenantID != "" {
		whereClause += fmt.Sprintf(" AND tenant_id = $%d", argPos)
		args = append(args, filter.TenantID)
		argPos++
	}
	if filter.RuleID != "" {
		whereClause += fmt.Sprintf(" AND rule_id = $%d", argPos)
		args = append(args, filter.RuleID)
		argPos++
	}
	if filter.AssetID != "" {
		whereClause += fmt.Sprintf(" AND asset_id = $%d", argPos)
		args = append(args, filter.AssetID)
		argPos++
	}
	if filter.Severity != "" {
		whereClause += fmt.Sprintf(" AND severity = $%d", argPos)
		args = append(args, filter.Severity)
		argPos++
	}
	if filter.State != "" {
		whereClause += fmt.Sprintf(" AND state = $%d", argPos)
		args = append(args, filter.State)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM findings %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count findings: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM findings %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		findingColumns, whereClause, argPos, argPos+1,
	)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var findings []*models.Finding
	for rows.Next() {
		finding, err := scanFinding(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, finding)
	}
	return findings, total, rows.Err()
}

func (r *PostgresRepository) FindOpenByDedupeKey(ctx context.Context, dedupeKey string) (*models.Finding, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM findings
		WHERE dedupe_key = $1 AND state = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, findingColumns)

	finding, err := scanFinding(r.pool.QueryRow(ctx, query, dedupeKey, models.FindingStateOpen))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFindingNotFound
		}
		return nil, fmt.Errorf("failed to find open finding: %w", err)
	}
	return finding, nil
}

func (r *PostgresRepository) UpdateFindingState(ctx context.Context, findingID string, state models.FindingState, caseID string) error {
	query := `
		UPDATE findings
		SET state = $2, case_id = COALESCE(NULLIF($3, ''), case_id)
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, findingID, state, caseID)
	if err != nil {
		return fmt.Errorf("failed to update finding state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFindingNotFound
	}
	return nil
}

func (r *PostgresRepository) SupersedeFinding(ctx context.Context, findingID, newFindingID string) error {
	query := `
		UPDATE findings
		SET state = $2, superseded_by = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, findingID, models.FindingStateSuperseded, newFindingID)
	if err != nil {
		return fmt.Errorf("failed to supersede finding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFindingNotFound
	}
	return nil
}

func (r *PostgresRepository) DismissFinding(ctx context.Context, dismissal *models.Dismissal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE findings SET state = $2
		WHERE id = $1 AND state IN ($3, $4)
	`, dismissal.FindingID, models.FindingStateDismissed,
		models.FindingStateOpen, models.FindingStateEscalated)
	if err != nil {
		return fmt.Errorf("failed to dismiss finding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from non-dismissible.
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM findings WHERE id = $1)", dismissal.FindingID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check finding: %w", err)
		}
		if !exists {
			return ErrFindingNotFound
		}
		return ErrFindingNotOpen
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO dismissals (id, finding_id, identity_id, reason, dismissed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, dismissal.DismissalID, dismissal.FindingID, dismissal.IdentityID,
		dismissal.Reason, dismissal.DismissedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dismissal: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) RecordSuppression(ctx context.Context, d *models.SuppressionDecision) error {
	query := `
		INSERT INTO suppressions (id, rule_id, event_id, asset_id, identity_id, dedupe_key, reason, suppressed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		d.DecisionID, d.RuleID, d.EventID, d.AssetID, d.IdentityID,
		nullable(d.DedupeKey), d.Reason, d.SuppressedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record suppression: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListSuppressions(ctx context.Context, limit, offset int) ([]*models.SuppressionDecision, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM suppressions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count suppressions: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, rule_id, event_id, asset_id, identity_id, dedupe_key, reason, suppressed_at
		FROM suppressions
		ORDER BY suppressed_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list suppressions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.SuppressionDecision
	for rows.Next() {
		d := &models.SuppressionDecision{}
		var dedupeKey *string
		if err := rows.Scan(&d.DecisionID, &d.RuleID, &d.EventID, &d.AssetID,
			&d.IdentityID, &dedupeKey, &d.Reason, &d.SuppressedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan suppression: %w", err)
		}
		if dedupeKey != nil {
			d.DedupeKey = *dedupeKey
		}
		decisions = append(decisions, d)
	}
	return decisions, total, rows.Err()
}

func (r *PostgresRepository) ListDismissals(ctx context.Context, limit, offset int) ([]*models.Dismissal, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM dismissals").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count dismissals: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, finding_id, identity_id, reason, dismissed_at
		FROM dismissals
		ORDER BY dismissed_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list dismissals: %w", err)
	}
	defer rows.Close()

	var dismissals []*models.Dismissal
	for rows.Next() {
		d := &models.Dismissal{}
		if err := rows.Scan(&d.DismissalID, &d.FindingID, &d.IdentityID, &d.Reason, &d.DismissedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan dismissal: %w", err)
		}
		dismissals = append(dismissals, d)
	}
	return dismissals, total, rows.Err()
}

// Ping verifies connectivity, for readiness checks.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (*models.Finding, error) {
	f := &models.Finding{}
	var graph []byte
	var caseID, supersededBy *string

	err := row.Scan(
		&f.FindingID, &f.RuleID, &f.RuleVersion, &f.FindingType, &f.Severity, &f.Confidence,
		&f.Explanation, &f.SupportingEventIDs, &graph,
		&f.TenantID, &f.AssetID, &f.IdentityID, &f.DedupeKey, &f.State,
		&caseID, &supersededBy, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(graph) > 0 {
		if err := json.Unmarshal(graph, &f.CorrelationGraph); err != nil {
			return nil, fmt.Errorf("failed to unmarshal correlation graph: %w", err)
		}
	}
	if caseID != nil {
		f.CaseID = *caseID
	}
	if supersededBy != nil {
		f.SupersededBy = *supersededBy
	}
	return f, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
