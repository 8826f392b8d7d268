package storage

import (
	"encoding/json"
	"fmt"

	"creative-dispatch/internal/creative"
)

// assetDocument flattens an asset into the stored document: the raw fields
// with the typed fields laid over them.
func assetDocument(a creative.Asset) map[string]any {
	doc := make(map[string]any, len(a.Fields)+8)
	for k, v := range a.Fields {
		doc[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			doc[k] = v
		}
	}
	set("id", a.DocID())
	set("filename", a.Filename)
	set("status", a.Status)
	set("aspectRatio", a.AspectRatio)
	set("recipeCode", a.RecipeCode)
	set("version", a.Version)
	set("deliveryUrl", a.DeliveryURL)
	set("thumbnailUrl", a.ThumbnailURL)
	return doc
}

// assetFromDocument is the inverse of assetDocument; Fields keeps the whole document.
func assetFromDocument(id string, doc map[string]any) creative.Asset {
	str := func(k string) string {
		s, _ := doc[k].(string)
		return s
	}
	a := creative.Asset{
		ID:           id,
		Filename:     str("filename"),
		Status:       str("status"),
		AspectRatio:  str("aspectRatio"),
		RecipeCode:   str("recipeCode"),
		Version:      str("version"),
		DeliveryURL:  str("deliveryUrl"),
		ThumbnailURL: str("thumbnailUrl"),
		Fields:       doc,
	}
	if a.ID == "" {
		a.ID = str("id")
	}
	return a
}

// decodeStatuses reads a stored integrationStatuses object.
func decodeStatuses(raw []byte) (map[string]creative.StatusEntry, error) {
	if len(raw) == 0 {
		return map[string]creative.StatusEntry{}, nil
	}
	out := map[string]creative.StatusEntry{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode integration statuses: %w", err)
	}
	return out, nil
}

// plainDocument round-trips a status document through JSON so raw payloads
// become ordinary maps, slices and scalars.
func plainDocument(doc map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
