// Package escalation forwards emitted findings to the case management
// service and announces finding lifecycle changes on the message bus.
// Escalation is best effort: failures mark the finding but never abort
// event processing.
package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// CaseCreator opens a case for a finding and returns the case identifier.
type CaseCreator interface {
	CreateCase(ctx context.Context, finding *models.Finding) (string, error)
}

// HTTPCaseClient implements CaseCreator against the case management HTTP API.
type HTTPCaseClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCaseClient creates a new HTTP case client. The timeout bounds the
// whole escalation call so a slow case service cannot stall the pipeline.
func NewHTTPCaseClient(baseURL string, timeout time.Duration) *HTTPCaseClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCaseClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type createCaseRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	FindingID   string  `json:"finding_id"`
	RuleID      string  `json:"rule_id"`
	Confidence  float64 `json:"confidence"`
	AssetID     string  `json:"asset_id"`
	IdentityID  string  `json:"identity_id"`
}

type createCaseResponse struct {
	CaseID string `json:"case_id"`
}

// CreateCase opens a case for the finding.
func (c *HTTPCaseClient) CreateCase(ctx context.Context, finding *models.Finding) (string, error) {
	payload, err := json.Marshal(createCaseRequest{
		Title:       fmt.Sprintf("%s on %s", finding.FindingType, finding.AssetID),
		Description: finding.Explanation,
		Severity:    string(finding.Severity),
		FindingID:   finding.FindingID,
		RuleID:      finding.RuleID,
		Confidence:  finding.Confidence,
		AssetID:     finding.AssetID,
		IdentityID:  finding.IdentityID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal case request: %w", err)
	}

	url := c.baseURL + "/api/v1/cases"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create case: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result createCaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode case response: %w", err)
	}
	if result.CaseID == "" {
		return "", fmt.Errorf("case service returned empty case_id")
	}
	return result.CaseID, nil
}
