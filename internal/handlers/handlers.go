package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/engine"
	"github.com/stratuswatch/detect-engine/internal/models"
	"github.com/stratuswatch/detect-engine/internal/repository"
	"github.com/stratuswatch/detect-engine/pkg/httputil"
	"github.com/stratuswatch/detect-engine/pkg/logging"
)

// Handler serves the detection engine HTTP API.
type Handler struct {
	engine *engine.Engine
	repo   repository.Repository
	log    *logging.Logger

	allowedVariables []string
	readiness        func(ctx context.Context) error
}

// NewHandler creates a Handler. readiness may be nil when the service has
// no external dependencies to probe.
func NewHandler(eng *engine.Engine, repo repository.Repository, log *logging.Logger, allowedVariables []string, readiness func(ctx context.Context) error) *Handler {
	if log == nil {
		log = logging.Default()
	}
	return &Handler{
		engine:           eng,
		repo:             repo,
		log:              log,
		allowedVariables: allowedVariables,
		readiness:        readiness,
	}
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readiness handles GET /readyz
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.readiness != nil {
		if err := h.readiness(r.Context()); err != nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// IngestEvents handles POST /api/v1/events
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	var req models.EventBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if tenant := r.Header.Get("X-Tenant-ID"); tenant != "" {
		req.TenantID = tenant
	}

	resp, err := h.engine.ProcessBatch(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrBatchTooLarge):
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, engine.ErrBackpressure):
			w.Header().Set("Retry-After", "1")
			httputil.WriteError(w, http.StatusTooManyRequests, "tenant capacity exhausted, retry later")
		default:
			h.log.ErrorContext(r.Context(), "batch processing failed",
				logging.TenantID(req.TenantID),
				logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "failed to process batch")
		}
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ListRules handles GET /api/v1/rules
func (h *Handler) ListRules(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": h.engine.Catalog().Rules(),
	})
}

// GetRule handles GET /api/v1/rules/:id
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := pathSegment(r.URL.Path, "/api/v1/rules/")
	if ruleID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "rule ID required")
		return
	}

	rule, err := h.engine.Catalog().Get(ruleID)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "rule not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /api/v1/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule catalog.RuleDefinition
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := rule.Validate(h.allowedVariables); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.engine.Catalog().WithRule(&rule, h.allowedVariables)
	if err != nil {
		if errors.Is(err, catalog.ErrRuleExists) {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.engine.ReplaceCatalog(updated)

	h.log.InfoContext(r.Context(), "rule registered", logging.RuleID(rule.RuleID))
	httputil.WriteJSON(w, http.StatusCreated, &rule)
}

// SetRuleEnabled handles PUT /api/v1/rules/:id/enable and /disable
func (h *Handler) SetRuleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	path := r.URL.Path
	suffix := "/enable"
	if !enabled {
		suffix = "/disable"
	}
	ruleID := pathSegment(strings.TrimSuffix(path, suffix), "/api/v1/rules/")
	if ruleID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "rule ID required")
		return
	}

	updated, err := h.engine.Catalog().WithRuleEnabled(ruleID, enabled)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "rule not found")
		return
	}
	h.engine.ReplaceCatalog(updated)

	rule, _ := updated.Get(ruleID)
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// ListFindings handles GET /api/v1/findings
func (h *Handler) ListFindings(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r, 50, 500)
	filter := &repository.FindingFilter{
		TenantID: r.URL.Query().Get("tenant_id"),
		RuleID:   r.URL.Query().Get("rule_id"),
		AssetID:  r.URL.Query().Get("asset_id"),
		Severity: models.Severity(r.URL.Query().Get("severity")),
		State:    models.FindingState(r.URL.Query().Get("state")),
		Limit:    page.Limit,
		Offset:   page.Offset(),
	}

	findings, total, err := h.repo.ListFindings(r.Context(), filter)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list findings", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list findings")
		return
	}

	page.Total = total
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"findings":   findings,
		"pagination": page,
	})
}

// GetFinding handles GET /api/v1/findings/:id
func (h *Handler) GetFinding(w http.ResponseWriter, r *http.Request) {
	findingID := pathSegment(r.URL.Path, "/api/v1/findings/")
	if findingID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "finding ID required")
		return
	}

	finding, err := h.repo.GetFinding(r.Context(), findingID)
	if err != nil {
		if errors.Is(err, repository.ErrFindingNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "finding not found")
			return
		}
		h.log.ErrorContext(r.Context(), "failed to get finding", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get finding")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, finding)
}

type dismissRequest struct {
	IdentityID string `json:"identity_id"`
	Reason     string `json:"reason"`
}

// DismissFinding handles POST /api/v1/findings/:id/dismiss
func (h *Handler) DismissFinding(w http.ResponseWriter, r *http.Request) {
	findingID := pathSegment(strings.TrimSuffix(r.URL.Path, "/dismiss"), "/api/v1/findings/")
	if findingID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "finding ID required")
		return
	}

	var req dismissRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		httputil.WriteError(w, http.StatusBadRequest, "reason is required")
		return
	}

	dismissal := &models.Dismissal{
		DismissalID: uuid.New().String(),
		FindingID:   findingID,
		IdentityID:  req.IdentityID,
		Reason:      req.Reason,
		DismissedAt: time.Now().UTC(),
	}
	if err := h.repo.DismissFinding(r.Context(), dismissal); err != nil {
		switch {
		case errors.Is(err, repository.ErrFindingNotFound):
			httputil.WriteError(w, http.StatusNotFound, "finding not found")
		case errors.Is(err, repository.ErrFindingNotOpen):
			httputil.WriteError(w, http.StatusConflict, "finding cannot be dismissed in its current state")
		default:
			h.log.ErrorContext(r.Context(), "failed to dismiss finding",
				logging.FindingID(findingID),
				logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "failed to dismiss finding")
		}
		return
	}

	h.log.InfoContext(r.Context(), "finding dismissed",
		logging.FindingID(findingID),
		logging.Reason(req.Reason))
	httputil.WriteJSON(w, http.StatusOK, dismissal)
}

// ListSuppressions handles GET /api/v1/suppressions
func (h *Handler) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r, 50, 500)

	decisions, total, err := h.repo.ListSuppressions(r.Context(), page.Limit, page.Offset())
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list suppressions", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list suppressions")
		return
	}

	page.Total = total
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"suppressions": decisions,
		"pagination":   page,
	})
}

// ListDismissals handles GET /api/v1/dismissals
func (h *Handler) ListDismissals(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r, 50, 500)

	dismissals, total, err := h.repo.ListDismissals(r.Context(), page.Limit, page.Offset())
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list dismissals", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list dismissals")
		return
	}

	page.Total = total
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dismissals": dismissals,
		"pagination": page,
	})
}

// Diagnostics handles GET /api/v1/diagnostics
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.Diagnostics(r.Context()))
}

// pathSegment extracts the first path segment after the prefix.
func pathSegment(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
