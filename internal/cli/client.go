package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/models"
)

// Client is a thin HTTP client for the detection service API.
type Client struct {
	baseURL    string
	tenantID   string
	httpClient *http.Client
}

// NewClient creates a Client for the given service base URL.
func NewClient(baseURL, tenantID string) *Client {
	return &Client{
		baseURL:  baseURL,
		tenantID: tenantID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tenantID != "" {
		req.Header.Set("X-Tenant-ID", c.tenantID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// SendEvents posts a batch of events and returns per-event outcomes.
func (c *Client) SendEvents(batch *models.EventBatchRequest) (*models.EventBatchResponse, error) {
	var resp models.EventBatchResponse
	if err := c.do(http.MethodPost, "/api/v1/events", batch, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRules fetches the active rule catalog.
func (c *Client) ListRules() ([]*catalog.RuleDefinition, error) {
	var resp struct {
		Rules []*catalog.RuleDefinition `json:"rules"`
	}
	if err := c.do(http.MethodGet, "/api/v1/rules", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

// GetRule fetches a single rule by ID.
func (c *Client) GetRule(ruleID string) (*catalog.RuleDefinition, error) {
	var rule catalog.RuleDefinition
	if err := c.do(http.MethodGet, "/api/v1/rules/"+url.PathEscape(ruleID), nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateRule registers a new rule version.
func (c *Client) CreateRule(rule *catalog.RuleDefinition) error {
	return c.do(http.MethodPost, "/api/v1/rules", rule, nil)
}

// SetRuleEnabled toggles a rule on or off.
func (c *Client) SetRuleEnabled(ruleID string, enabled bool) error {
	action := "enable"
	if !enabled {
		action = "disable"
	}
	return c.do(http.MethodPut, "/api/v1/rules/"+url.PathEscape(ruleID)+"/"+action, nil, nil)
}

// ListFindings fetches findings matching the query filters.
func (c *Client) ListFindings(filters map[string]string, limit int) ([]*models.Finding, error) {
	query := url.Values{}
	for key, value := range filters {
		if value != "" {
			query.Set(key, value)
		}
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}

	path := "/api/v1/findings"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp struct {
		Findings []*models.Finding `json:"findings"`
	}
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Findings, nil
}

// GetFinding fetches a single finding by ID.
func (c *Client) GetFinding(findingID string) (*models.Finding, error) {
	var finding models.Finding
	if err := c.do(http.MethodGet, "/api/v1/findings/"+url.PathEscape(findingID), nil, &finding); err != nil {
		return nil, err
	}
	return &finding, nil
}

// DismissFinding dismisses a finding with a justification.
func (c *Client) DismissFinding(findingID, identityID, reason string) error {
	body := map[string]string{
		"identity_id": identityID,
		"reason":      reason,
	}
	return c.do(http.MethodPost, "/api/v1/findings/"+url.PathEscape(findingID)+"/dismiss", body, nil)
}
