// Package creative holds the records the dispatch subsystem reads and writes:
// ad groups, their assets, integration configuration and the per-asset,
// per-integration status entries.
package creative

import (
	"encoding/json"
	"strings"
	"time"
)

// Asset lifecycle value owned by the review workflow.
const StatusApproved = "approved"

// Integration status states written by the dispatcher.
const (
	StateSending  = "sending"
	StateReceived = "received"
	StateError    = "error"
)

// Asset is one creative rendition. Fields holds the raw document so the recipe
// normalizer can look at whatever shape the upstream importer produced.
type Asset struct {
	ID           string `json:"id" yaml:"id"`
	Filename     string `json:"filename" yaml:"filename"`
	Status       string `json:"status" yaml:"status"`
	AspectRatio  string `json:"aspectRatio" yaml:"aspectRatio"`
	RecipeCode   string `json:"recipeCode,omitempty" yaml:"recipeCode"`
	Version      string `json:"version,omitempty" yaml:"version"`
	DeliveryURL  string `json:"deliveryUrl" yaml:"deliveryUrl"`
	ThumbnailURL string `json:"thumbnailUrl" yaml:"thumbnailUrl"`

	Fields map[string]any `json:"-" yaml:"fields"`

	IntegrationStatuses map[string]StatusEntry `json:"integrationStatuses,omitempty" yaml:"-"`
}

// DocID returns the asset's stable document id, falling back to id-like raw fields.
func (a Asset) DocID() string {
	if id := strings.TrimSpace(a.ID); id != "" {
		return id
	}
	for _, k := range []string{"id", "assetId", "docId", "documentId"} {
		if s, ok := a.Fields[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func (a Asset) IsApproved() bool {
	return strings.EqualFold(strings.TrimSpace(a.Status), StatusApproved)
}

// AdGroup is a production batch of assets reviewed together.
type AdGroup struct {
	ID        string  `json:"id" yaml:"id"`
	Name      string  `json:"name" yaml:"name"`
	BrandCode string  `json:"brandCode" yaml:"brandCode"`
	Assets    []Asset `json:"assets" yaml:"assets"`
}

// ApprovedAssets filters to assets in the approved lifecycle state.
func (g AdGroup) ApprovedAssets() []Asset {
	out := make([]Asset, 0, len(g.Assets))
	for _, a := range g.Assets {
		if a.IsApproved() {
			out = append(out, a)
		}
	}
	return out
}

// Integration is a configured third-party marketing system for a brand.
type Integration struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	BrandCode string `json:"brandCode" yaml:"brandCode"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// StatusEntry is the persisted outcome of the latest dispatch of an asset to
// one integration. Payload fields hold raw JSON: absent decodes to nil and an
// explicit null to the literal null.
type StatusEntry struct {
	State           string            `json:"state"`
	IntegrationID   string            `json:"integrationId"`
	IntegrationName string            `json:"integrationName"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	RequestPayload  json.RawMessage   `json:"requestPayload,omitempty"`
	ResponsePayload json.RawMessage   `json:"responsePayload,omitempty"`
	ResponseStatus  *int              `json:"responseStatus,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}
