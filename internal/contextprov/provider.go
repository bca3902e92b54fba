// Package contextprov fetches asset/identity/patch/baseline snapshots from
// the external context provider. Snapshots are owned by the evaluation call
// and discarded after use.
package contextprov

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// Provider supplies point-in-time context snapshots for rule evaluation.
// Implementations may return partial snapshots with MissingKeys flagged.
type Provider interface {
	GetContext(ctx context.Context, assetID, identityID string, neededKeys []string) (*models.ContextSnapshot, error)
}

// HTTPProvider fetches context from the provider service over HTTP.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates an HTTP context provider client. Every fetch is
// bounded by the given timeout; on timeout the caller falls back to the
// missing-context policy.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// GetContext fetches a snapshot for the given asset and identity.
func (p *HTTPProvider) GetContext(ctx context.Context, assetID, identityID string, neededKeys []string) (*models.ContextSnapshot, error) {
	params := url.Values{}
	params.Set("asset_id", assetID)
	params.Set("identity_id", identityID)
	if len(neededKeys) > 0 {
		params.Set("keys", strings.Join(neededKeys, ","))
	}

	reqURL := fmt.Sprintf("%s/api/v1/context?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create context request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("context provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("context provider returned status %d", resp.StatusCode)
	}

	var snapshot models.ContextSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode context snapshot: %w", err)
	}

	return &snapshot, nil
}

// StaticProvider returns fixed snapshots keyed by "asset|identity".
// Used in tests.
type StaticProvider struct {
	Snapshots map[string]*models.ContextSnapshot
	Err       error
}

// GetContext returns the configured snapshot for the pair, or nil.
func (p *StaticProvider) GetContext(_ context.Context, assetID, identityID string, _ []string) (*models.ContextSnapshot, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if snap, ok := p.Snapshots[assetID+"|"+identityID]; ok {
		return snap, nil
	}
	return nil, nil
}
