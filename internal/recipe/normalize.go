// Package recipe derives recipe identifiers and aspect ratios from asset
// records and partitions approved assets into one dispatch unit per recipe.
package recipe

import (
	"path"
	"slices"
	"strconv"
	"strings"

	"creative-dispatch/internal/creative"
)

// Lookup tables for recipe-bearing fields. Names are compared after fold().
var (
	recipeFieldNames = []string{
		"recipe number", "recipe #", "recipe no", "recipe no.", "recipe num",
		"recipe code", "recipe id", "recipe identifier", "recipe",
	}
	recipeValueKeys = []string{"value", "answer", "code", "id", "number", "text", "values"}
	fieldLabelKeys  = []string{"name", "label", "key", "field", "title", "question"}
	recipeFieldSets = []string{"recipeFields", "recipe_fields", "customFields", "fields"}
	directKeys      = []string{
		"recipeCode", "recipe_code", "recipeNumber", "recipe_number",
		"recipeId", "recipe_id", "recipeNo", "recipeIdentifier",
	}
	nestedRecipeKeys = []string{"code", "number", "id", "identifier", "value"}
)

// Identifier returns the normalized recipe identifier of an asset or "" when
// none can be derived. It never fails.
func Identifier(a creative.Asset) string {
	for _, find := range []func(creative.Asset) string{
		fromRecipeFields,
		fromDirectFields,
		fromRecipeObject,
		fromMetadata,
		func(a creative.Asset) string { return FromFilename(a.Filename) },
	} {
		if id := Normalize(find(a)); id != "" {
			return id
		}
	}
	return ""
}

// Normalize trims and strips leading zeros unless nothing would be left.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if stripped := strings.TrimLeft(s, "0"); stripped != "" {
		return stripped
	}
	return s
}

func fromRecipeFields(a creative.Asset) string {
	for _, k := range recipeFieldSets {
		if v, ok := a.Fields[k]; ok {
			if id := searchFieldSet(v, 0); id != "" {
				return id
			}
		}
	}
	return ""
}

// searchFieldSet walks a recipe-fields collection. Both {"Recipe #": ...}
// maps and [{"name": "Recipe #", "value": ...}] lists are accepted.
func searchFieldSet(v any, depth int) string {
	if depth > 4 {
		return ""
	}
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		// recipeFieldNames order decides between several synonym keys.
		for _, name := range recipeFieldNames {
			for _, k := range keys {
				if fold(k) != name {
					continue
				}
				if id := scalar(t[k], depth+1); id != "" {
					return id
				}
			}
		}
		for _, lk := range fieldLabelKeys {
			if label, ok := t[lk].(string); ok && isRecipeName(label) {
				for _, vk := range recipeValueKeys {
					if id := scalar(t[vk], depth+1); id != "" {
						return id
					}
				}
			}
		}
		for _, k := range keys {
			switch inner := t[k]; inner.(type) {
			case map[string]any, []any:
				if id := searchFieldSet(inner, depth+1); id != "" {
					return id
				}
			}
		}
	case []any:
		for _, item := range t {
			if id := searchFieldSet(item, depth+1); id != "" {
				return id
			}
		}
	}
	return ""
}

// scalar resolves a field value that may be wrapped in objects or arrays.
func scalar(v any, depth int) string {
	if depth > 6 {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		for _, k := range recipeValueKeys {
			if s := scalar(t[k], depth+1); s != "" {
				return s
			}
		}
	case []any:
		for _, item := range t {
			if s := scalar(item, depth+1); s != "" {
				return s
			}
		}
	}
	return ""
}

func fromDirectFields(a creative.Asset) string {
	if s := strings.TrimSpace(a.RecipeCode); s != "" {
		return s
	}
	return firstKey(a.Fields, directKeys)
}

func fromRecipeObject(a creative.Asset) string {
	switch r := a.Fields["recipe"].(type) {
	case map[string]any:
		return firstKey(r, nestedRecipeKeys)
	default:
		return scalar(r, 0)
	}
}

func fromMetadata(a creative.Asset) string {
	md, ok := a.Fields["metadata"].(map[string]any)
	if !ok {
		return ""
	}
	if id := firstKey(md, directKeys); id != "" {
		return id
	}
	if r, ok := md["recipe"]; ok {
		if m, ok := r.(map[string]any); ok {
			return firstKey(m, nestedRecipeKeys)
		}
		return scalar(r, 0)
	}
	return ""
}

func firstKey(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s := scalar(m[k], 0); s != "" {
			return s
		}
	}
	return ""
}

// FromFilename parses BRAND_GROUP_RECIPE_ASPECT_VERSION.ext and returns the
// raw recipe segment.
func FromFilename(name string) string {
	parts := filenameParts(name)
	if len(parts) < 3 {
		return ""
	}
	seg := strings.TrimSpace(parts[2])
	if seg == "" || isAspectToken(seg) {
		return ""
	}
	return seg
}

func filenameParts(name string) []string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" {
		return nil
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.Split(base, "_")
}

func isRecipeName(s string) bool {
	f := fold(s)
	for _, n := range recipeFieldNames {
		if f == n {
			return true
		}
	}
	return false
}

func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
