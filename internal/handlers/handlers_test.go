package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/config"
	"github.com/stratuswatch/detect-engine/internal/contextprov"
	"github.com/stratuswatch/detect-engine/internal/emitter"
	"github.com/stratuswatch/detect-engine/internal/engine"
	"github.com/stratuswatch/detect-engine/internal/models"
	"github.com/stratuswatch/detect-engine/internal/repository"
	"github.com/stratuswatch/detect-engine/internal/suppression"
)

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxSupportingEvents:       50,
		MaxFindingsPerRequest:     200,
		MaxBatchSize:              10,
		MaxWorkersPerTenant:       4,
		CorrelationTimeWindowSecs: 900,
		RetentionEvents:           1000,
		RetentionFindings:         1000,
		AllowedExplanationVariables: []string{
			"event_type", "asset_id", "identity_id", "metric_name", "metric_value",
			"baseline_value", "time_window", "multiplier", "missing_patches",
			"network_destination", "process_name",
		},
	}
}

func newTestHandler(t *testing.T) (*Handler, *repository.MemoryRepository) {
	t.Helper()
	cfg := testConfig()

	cat, err := catalog.New(catalog.DefaultRules(), cfg.AllowedExplanationVariables)
	require.NoError(t, err)

	provider := &contextprov.StaticProvider{
		Snapshots: map[string]*models.ContextSnapshot{
			"asset-1|user-1": {
				Asset:    &models.AssetContext{AssetID: "asset-1", Criticality: "medium"},
				Identity: &models.IdentityContext{IdentityID: "user-1"},
			},
		},
	}

	repo := repository.NewMemoryRepository(cfg.RetentionFindings, cfg.RetentionFindings)
	em := emitter.New(emitter.Config{
		Repository:          repo,
		MaxSupportingEvents: cfg.MaxSupportingEvents,
		AllowedVariables:    cfg.AllowedExplanationVariables,
	})
	eng := engine.New(cfg, cat, provider, suppression.NewMemoryStore(), em, nil)
	return NewHandler(eng, repo, nil, cfg.AllowedExplanationVariables, nil), repo
}

func ingestBody(eventID string) []byte {
	batch := models.EventBatchRequest{
		TenantID: "tenant-a",
		Events: []models.RawEvent{
			{
				EventID:    eventID,
				EventType:  "process.execute",
				AssetID:    "asset-1",
				IdentityID: "user-1",
				OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
				Attributes: map[string]interface{}{
					"image_path": "/tmp/dropper",
					"unsigned":   true,
				},
			},
		},
	}
	body, _ := json.Marshal(batch)
	return body
}

func TestIngestEvents(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(ingestBody("evt-1")))
	rr := httptest.NewRecorder()
	h.IngestEvents(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.EventBatchResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.EventStatusAccepted, resp.Results[0].Status)
	require.Len(t, resp.Results[0].Findings, 1)
	assert.Equal(t, "unsigned_binary_temp", resp.Results[0].Findings[0].FindingType)
}

func TestIngestEventsInvalidBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	h.IngestEvents(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestIngestEventsBatchTooLarge(t *testing.T) {
	h, _ := newTestHandler(t)

	events := make([]models.RawEvent, 11)
	for i := range events {
		events[i] = models.RawEvent{
			EventID:    fmt.Sprintf("evt-%d", i),
			EventType:  "process.execute",
			AssetID:    "asset-1",
			IdentityID: "user-1",
			OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		}
	}
	body, _ := json.Marshal(models.EventBatchRequest{TenantID: "tenant-a", Events: events})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.IngestEvents(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestIngestEventsTenantHeaderOverride(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(ingestBody("evt-1")))
	req.Header.Set("X-Tenant-ID", "tenant-b")
	rr := httptest.NewRecorder()
	h.IngestEvents(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.EventBatchResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	require.Len(t, resp.Results[0].Findings, 1)
	assert.Equal(t, "tenant-b", resp.Results[0].Findings[0].TenantID)
}

func TestListRules(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	rr := httptest.NewRecorder()
	h.ListRules(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Rules []*catalog.RuleDefinition `json:"rules"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp.Rules, 4)
}

func TestGetRule(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/unsigned_binary_temp", nil)
	rr := httptest.NewRecorder()
	h.GetRule(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var rule catalog.RuleDefinition
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rule))
	assert.Equal(t, "unsigned_binary_temp", rule.RuleID)
	assert.Equal(t, "1.0.0", rule.Version)
}

func TestGetRuleNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/no-such-rule", nil)
	rr := httptest.NewRecorder()
	h.GetRule(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateRule(t *testing.T) {
	h, _ := newTestHandler(t)

	rule := catalog.RuleDefinition{
		RuleID:            "outbound_beacon",
		Version:           "1.0.0",
		RuleType:          catalog.TypeSingleEvent,
		Enabled:           true,
		TriggerEventTypes: []string{"network.connect"},
		SingleEvent: &catalog.SingleEventParams{
			EvidenceKey: "bytes_out",
			Operator:    ">=",
			Threshold:   floatPtr(1000000),
		},
		Suppression: catalog.SuppressionPolicy{DedupeWindowSeconds: 600},
		Output: catalog.OutputTemplate{
			FindingType:         "outbound_beacon",
			Severity:            models.SeverityMedium,
			BaseConfidence:      0.5,
			ExplanationTemplate: "Large outbound transfer from asset '{asset_id}'.",
		},
	}
	body, _ := json.Marshal(&rule)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.CreateRule(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	// Rule is now active in the engine snapshot.
	got, err := h.engine.Catalog().Get("outbound_beacon")
	require.NoError(t, err)
	assert.Equal(t, "outbound_beacon", got.RuleID)
}

func TestCreateRuleDuplicate(t *testing.T) {
	h, _ := newTestHandler(t)

	existing, err := h.engine.Catalog().Get("unsigned_binary_temp")
	require.NoError(t, err)
	body, _ := json.Marshal(existing)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.CreateRule(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCreateRuleInvalid(t *testing.T) {
	h, _ := newTestHandler(t)

	rule := catalog.RuleDefinition{
		RuleID:   "broken",
		Version:  "1.0.0",
		RuleType: catalog.TypeSingleEvent,
	}
	body, _ := json.Marshal(&rule)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.CreateRule(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDisableRuleStopsMatching(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/rules/unsigned_binary_temp/disable", nil)
	rr := httptest.NewRecorder()
	h.SetRuleEnabled(rr, req, false)

	require.Equal(t, http.StatusOK, rr.Code)

	var rule catalog.RuleDefinition
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rule))
	assert.False(t, rule.Enabled)

	// Ingest no longer produces findings for the disabled rule.
	ingestReq := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(ingestBody("evt-1")))
	ingestRR := httptest.NewRecorder()
	h.IngestEvents(ingestRR, ingestReq)

	require.Equal(t, http.StatusOK, ingestRR.Code)
	var resp models.EventBatchResponse
	require.NoError(t, json.NewDecoder(ingestRR.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.Results[0].Findings)
}

func TestEnableRuleNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/rules/no-such-rule/enable", nil)
	rr := httptest.NewRecorder()
	h.SetRuleEnabled(rr, req, true)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func ingestOne(t *testing.T, h *Handler, eventID string) *models.Finding {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(ingestBody(eventID)))
	rr := httptest.NewRecorder()
	h.IngestEvents(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.EventBatchResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	require.Len(t, resp.Results[0].Findings, 1)
	return resp.Results[0].Findings[0]
}

func floatPtr(f float64) *float64 { return &f }

func TestFindingLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)
	finding := ingestOne(t, h, "evt-1")

	// List
	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/findings?tenant_id=tenant-a", nil)
	listRR := httptest.NewRecorder()
	h.ListFindings(listRR, listReq)
	require.Equal(t, http.StatusOK, listRR.Code)

	var listResp struct {
		Findings []*models.Finding `json:"findings"`
	}
	require.NoError(t, json.NewDecoder(listRR.Body).Decode(&listResp))
	require.Len(t, listResp.Findings, 1)

	// Get
	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/findings/"+finding.FindingID, nil)
	getRR := httptest.NewRecorder()
	h.GetFinding(getRR, getReq)
	require.Equal(t, http.StatusOK, getRR.Code)

	// Dismiss
	dismissBody, _ := json.Marshal(dismissRequest{IdentityID: "analyst-1", Reason: "expected maintenance"})
	dismissReq := httptest.NewRequest(http.MethodPost, "/api/v1/findings/"+finding.FindingID+"/dismiss", bytes.NewReader(dismissBody))
	dismissRR := httptest.NewRecorder()
	h.DismissFinding(dismissRR, dismissReq)
	require.Equal(t, http.StatusOK, dismissRR.Code)

	// Dismissing again conflicts.
	dismissReq = httptest.NewRequest(http.MethodPost, "/api/v1/findings/"+finding.FindingID+"/dismiss", bytes.NewReader(dismissBody))
	dismissRR = httptest.NewRecorder()
	h.DismissFinding(dismissRR, dismissReq)
	assert.Equal(t, http.StatusConflict, dismissRR.Code)

	// Dismissal is recorded in the audit trail.
	auditReq := httptest.NewRequest(http.MethodGet, "/api/v1/dismissals", nil)
	auditRR := httptest.NewRecorder()
	h.ListDismissals(auditRR, auditReq)
	require.Equal(t, http.StatusOK, auditRR.Code)

	var auditResp struct {
		Dismissals []*models.Dismissal `json:"dismissals"`
	}
	require.NoError(t, json.NewDecoder(auditRR.Body).Decode(&auditResp))
	require.Len(t, auditResp.Dismissals, 1)
	assert.Equal(t, finding.FindingID, auditResp.Dismissals[0].FindingID)
	assert.Equal(t, "expected maintenance", auditResp.Dismissals[0].Reason)
}

func TestDismissFindingNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	body, _ := json.Marshal(dismissRequest{Reason: "noise"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/findings/no-such-finding/dismiss", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.DismissFinding(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDismissFindingRequiresReason(t *testing.T) {
	h, _ := newTestHandler(t)
	finding := ingestOne(t, h, "evt-1")

	body, _ := json.Marshal(dismissRequest{IdentityID: "analyst-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/findings/"+finding.FindingID+"/dismiss", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.DismissFinding(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListSuppressions(t *testing.T) {
	h, repo := newTestHandler(t)

	err := repo.RecordSuppression(context.Background(), &models.SuppressionDecision{
		DecisionID:   "dec-1",
		RuleID:       "unsigned_binary_temp",
		EventID:      "evt-1",
		Reason:       models.SuppressReasonMaintenanceWindow,
		SuppressedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/suppressions", nil)
	rr := httptest.NewRecorder()
	h.ListSuppressions(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Suppressions []*models.SuppressionDecision `json:"suppressions"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Suppressions, 1)
	assert.Equal(t, "dec-1", resp.Suppressions[0].DecisionID)
}

func TestDiagnostics(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics", nil)
	rr := httptest.NewRecorder()
	h.Diagnostics(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var diag engine.Diagnostics
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&diag))
	assert.Equal(t, 4, diag.ActiveRules)
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReadinessFailure(t *testing.T) {
	cfg := testConfig()
	cat, err := catalog.New(catalog.DefaultRules(), cfg.AllowedExplanationVariables)
	require.NoError(t, err)

	repo := repository.NewMemoryRepository(100, 100)
	em := emitter.New(emitter.Config{Repository: repo, AllowedVariables: cfg.AllowedExplanationVariables})
	eng := engine.New(cfg, cat, nil, suppression.NewMemoryStore(), em, nil)
	h := NewHandler(eng, repo, nil, cfg.AllowedExplanationVariables, func(ctx context.Context) error {
		return fmt.Errorf("database unreachable")
	})

	rr := httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
