package dispatch

import (
	"creative-dispatch/internal/creative"
	"creative-dispatch/internal/recipe"
)

// aspectPriority picks the primary rendition of a recipe group.
var aspectPriority = []string{recipe.Square, recipe.Portrait, recipe.Vertical}

// WorkerRequest is the body posted to the integration worker.
type WorkerRequest struct {
	IntegrationID string  `json:"integrationId"`
	ReviewID      string  `json:"reviewId"`
	Attempt       int     `json:"attempt"`
	Payload       Payload `json:"payload"`

	RunID string `json:"-"`
}

// Payload describes one recipe group's approved renditions.
type Payload struct {
	AdGroupID        string         `json:"adGroupId"`
	IntegrationID    string         `json:"integrationId"`
	IntegrationName  string         `json:"integrationName"`
	RecipeIdentifier string         `json:"recipeIdentifier"`
	RecipeCode       string         `json:"recipeCode"`
	ApprovedAssetID  string         `json:"approvedAssetId"`
	ApprovedAdID     string         `json:"approvedAdId"`
	ApprovedAssetIDs []string       `json:"approvedAssetIds"`
	ApprovedAssets   []AssetPayload `json:"approvedAssets"`
	ApprovedAsset    *AssetPayload  `json:"approvedAsset"`
}

type AssetPayload struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	Status       string `json:"status"`
	DeliveryURL  string `json:"deliveryUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	AspectRatio  string `json:"aspectRatio"`
	Version      string `json:"version"`
	RecipeCode   string `json:"recipeCode"`
}

// BuildPayload turns a recipe group into the canonical worker payload. Members
// without a document id or not approved are left out; when none remain the
// payload has no assets and must not be sent.
func BuildPayload(adGroupID string, integ creative.Integration, g recipe.Group) Payload {
	p := Payload{
		AdGroupID:        adGroupID,
		IntegrationID:    integ.ID,
		IntegrationName:  integ.Name,
		RecipeIdentifier: g.Identifier,
		RecipeCode:       g.Identifier,
		ApprovedAssetIDs: []string{},
		ApprovedAssets:   []AssetPayload{},
	}
	for _, a := range g.Assets {
		id := a.DocID()
		if id == "" || !a.IsApproved() {
			continue
		}
		code := g.Identifier
		if code == "" {
			code = recipe.Normalize(a.RecipeCode)
		}
		p.ApprovedAssetIDs = append(p.ApprovedAssetIDs, id)
		p.ApprovedAssets = append(p.ApprovedAssets, AssetPayload{
			ID:           id,
			Filename:     a.Filename,
			Status:       a.Status,
			DeliveryURL:  a.DeliveryURL,
			ThumbnailURL: a.ThumbnailURL,
			AspectRatio:  recipe.AspectRatio(a),
			Version:      recipe.Version(a),
			RecipeCode:   code,
		})
	}
	if primary := pickPrimary(p.ApprovedAssets); primary != nil {
		p.ApprovedAsset = primary
		p.ApprovedAssetID = primary.ID
		p.ApprovedAdID = primary.ID
		if p.RecipeCode == "" {
			p.RecipeCode = primary.RecipeCode
		}
	}
	return p
}

func pickPrimary(assets []AssetPayload) *AssetPayload {
	if len(assets) == 0 {
		return nil
	}
	for _, want := range aspectPriority {
		for i := range assets {
			if assets[i].AspectRatio == want {
				a := assets[i]
				return &a
			}
		}
	}
	a := assets[0]
	return &a
}
