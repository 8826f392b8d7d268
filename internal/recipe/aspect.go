package recipe

import (
	"strings"

	"creative-dispatch/internal/creative"
)

const (
	Square   = "1x1"
	Portrait = "4x5"
	Vertical = "9x16"
)

var aspectSynonyms = map[string]string{
	"square":    Square,
	"1x1":       Square,
	"11":        Square,
	"1080x1080": Square,

	"portrait":  Portrait,
	"4x5":       Portrait,
	"45":        Portrait,
	"1080x1350": Portrait,

	"vertical":  Vertical,
	"story":     Vertical,
	"stories":   Vertical,
	"reel":      Vertical,
	"9x16":      Vertical,
	"916":       Vertical,
	"1080x1920": Vertical,
}

// CanonicalAspect maps known aspect-ratio spellings to 1x1, 4x5 or 9x16 and
// returns anything else unchanged.
func CanonicalAspect(raw string) string {
	if c, ok := aspectSynonyms[aspectKey(raw)]; ok {
		return c
	}
	return raw
}

func aspectKey(raw string) string {
	k := strings.ToLower(strings.TrimSpace(raw))
	k = strings.NewReplacer(":", "x", "×", "x", "/", "x", " ", "").Replace(k)
	return k
}

func isAspectToken(s string) bool {
	_, ok := aspectSynonyms[aspectKey(s)]
	return ok
}

// AspectRatio returns the canonical aspect ratio of an asset, looking at the
// explicit field, raw document fields and finally the filename convention.
func AspectRatio(a creative.Asset) string {
	if s := strings.TrimSpace(a.AspectRatio); s != "" {
		return CanonicalAspect(s)
	}
	for _, k := range []string{"aspectRatio", "aspect_ratio", "ratio", "format"} {
		if s, ok := a.Fields[k].(string); ok && strings.TrimSpace(s) != "" {
			return CanonicalAspect(strings.TrimSpace(s))
		}
	}
	if parts := filenameParts(a.Filename); len(parts) >= 4 {
		return CanonicalAspect(parts[3])
	}
	return ""
}

// Version returns the rendition version (V1, V2, ...) when one is recorded.
func Version(a creative.Asset) string {
	if s := strings.TrimSpace(a.Version); s != "" {
		return s
	}
	if s, ok := a.Fields["version"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if parts := filenameParts(a.Filename); len(parts) >= 5 {
		return parts[4]
	}
	return ""
}
