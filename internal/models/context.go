package models

// Context keys a rule may declare in required_context.
const (
	ContextKeyAsset      = "asset"
	ContextKeyIdentity   = "identity"
	ContextKeyPatchState = "patch_state"
	ContextKeyBaseline   = "baseline"
)

// AssetContext describes the asset an event occurred on.
type AssetContext struct {
	AssetID     string `json:"asset_id"`
	Hostname    string `json:"hostname,omitempty"`
	Criticality string `json:"criticality"` // low, medium, high
	Environment string `json:"environment,omitempty"`
}

// IdentityContext describes the identity that initiated an event.
type IdentityContext struct {
	IdentityID string   `json:"identity_id"`
	Privileges []string `json:"privileges,omitempty"`
}

// PatchState describes patch posture and exposure for an asset.
type PatchState struct {
	MissingPatches []string `json:"missing_patches,omitempty"`
	Exposure       string   `json:"exposure,omitempty"` // internal, internet
}

// Baseline is the expected range for a telemetry metric on an asset.
type Baseline struct {
	MetricName    string  `json:"metric_name"`
	ExpectedValue float64 `json:"expected_value"`
}

// ContextSnapshot is a point-in-time enrichment bundle fetched per
// evaluation. Nil sub-structs mean the provider could not supply that
// dimension; MissingKeys lists them explicitly.
type ContextSnapshot struct {
	Asset             *AssetContext    `json:"asset,omitempty"`
	Identity          *IdentityContext `json:"identity,omitempty"`
	PatchState        *PatchState      `json:"patch_state,omitempty"`
	Baseline          *Baseline        `json:"baseline,omitempty"`
	MaintenanceWindow bool             `json:"maintenance_window,omitempty"`
	MissingKeys       []string         `json:"missing_keys,omitempty"`
}

// Has reports whether the snapshot carries the given context key.
func (s *ContextSnapshot) Has(key string) bool {
	if s == nil {
		return false
	}
	switch key {
	case ContextKeyAsset:
		return s.Asset != nil
	case ContextKeyIdentity:
		return s.Identity != nil
	case ContextKeyPatchState:
		return s.PatchState != nil
	case ContextKeyBaseline:
		return s.Baseline != nil
	default:
		return false
	}
}

// HasAll reports whether every listed context key is present.
func (s *ContextSnapshot) HasAll(keys []string) bool {
	for _, key := range keys {
		if !s.Has(key) {
			return false
		}
	}
	return true
}
