package recipe

import "creative-dispatch/internal/creative"

// Group is one logical creative unit: every approved rendition of a recipe.
type Group struct {
	Key        string
	Identifier string
	Assets     []creative.Asset
	AssetIDs   []string
}

// GroupAssets partitions approved assets by recipe identifier, in order of
// first appearance. Each document id lands in exactly one group. Assets
// without an identifier form singleton groups keyed by their document id;
// assets without a document id are dropped.
func GroupAssets(assets []creative.Asset) []Group {
	byIdent := map[string]int{}
	byDoc := map[string]int{}
	seen := map[string]bool{}
	var groups []Group
	for _, a := range assets {
		id := a.DocID()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ident := Identifier(a)
		idx, key := byIdent, ident
		if key == "" {
			// a fallback key never merges into a recipe that happens to share it
			idx, key = byDoc, id
		}
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, Group{Key: key})
		}
		g := &groups[i]
		if g.Identifier == "" && ident != "" {
			g.Identifier = ident
		}
		g.Assets = append(g.Assets, a)
		g.AssetIDs = append(g.AssetIDs, id)
	}
	return groups
}
