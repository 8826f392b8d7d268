package status

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/rs/zerolog/log"

	"creative-dispatch/internal/cache"
	"creative-dispatch/internal/creative"
)

// Loader is the read side of the store the cache computes summaries from.
type Loader interface {
	LoadAdGroup(ctx context.Context, adGroupID string) (creative.AdGroup, error)
	LoadIntegration(ctx context.Context, integrationID string) (creative.Integration, error)
}

type key struct{ adGroupID, integrationID string }

type entry struct {
	summary    *creative.Summary
	computedAt time.Time
}

// table is replaced wholesale on every write. gens counts invalidations per
// ad group; a load started under an older generation is never stored.
type table struct {
	items map[key]entry
	gens  map[string]uint64
}

// Cache serves summaries per (ad group, integration). Reads never lock;
// writers replace the whole table.
type Cache struct {
	loader Loader
	snap   cache.Snapshot[table]
	ttl    time.Duration
	now    func() time.Time
}

func NewCache(loader Loader) *Cache {
	return &Cache{loader: loader, now: time.Now}
}

// WithTTL expires entries d after they were computed. Zero keeps them until
// the ad group is refreshed or invalidated.
func (c *Cache) WithTTL(d time.Duration) *Cache {
	c.ttl = d
	return c
}

// WithClock overrides the time source used for expiry.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Summary returns the cached summary, computing and caching it on a miss.
func (c *Cache) Summary(ctx context.Context, adGroupID, integrationID string) (*creative.Summary, error) {
	cur := c.snap.Load()
	if e, ok := cur.items[key{adGroupID, integrationID}]; ok && c.fresh(e) {
		return e.summary, nil
	}
	gen := cur.gens[adGroupID]

	integ, err := c.loader.LoadIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	s, err := c.compute(ctx, adGroupID, integ)
	if err != nil {
		return nil, err
	}
	c.put(adGroupID, gen, map[key]*creative.Summary{{adGroupID, integrationID}: s})
	return s, nil
}

// Refresh recomputes every cached summary of the ad group from one load.
// Loads already in flight for the group are superseded.
func (c *Cache) Refresh(ctx context.Context, adGroupID string) error {
	prev := make(map[string]string)
	for k, e := range c.snap.Load().items {
		if k.adGroupID == adGroupID {
			prev[k.integrationID] = e.summary.IntegrationName
		}
	}
	if len(prev) == 0 {
		return nil
	}
	gen := c.bump(adGroupID, false)

	g, err := c.loader.LoadAdGroup(ctx, adGroupID)
	if err != nil {
		c.Invalidate(adGroupID)
		return fmt.Errorf("refresh summaries for %s: %w", adGroupID, err)
	}
	fresh := make(map[key]*creative.Summary, len(prev))
	for id, name := range prev {
		fresh[key{adGroupID, id}] = Summarize(id, name, g.Assets)
	}
	c.put(adGroupID, gen, fresh)
	log.Debug().Str("ad_group_id", adGroupID).Int("summaries", len(fresh)).Msg("summaries refreshed")
	return nil
}

// Invalidate drops every cached summary of the ad group, including any a
// concurrent load is about to store.
func (c *Cache) Invalidate(adGroupID string) {
	c.bump(adGroupID, true)
}

// Len is the number of cached summaries, expired ones included.
func (c *Cache) Len() int { return len(c.snap.Load().items) }

func (c *Cache) fresh(e entry) bool {
	return c.ttl <= 0 || c.now().Sub(e.computedAt) < c.ttl
}

func (c *Cache) compute(ctx context.Context, adGroupID string, integ creative.Integration) (*creative.Summary, error) {
	g, err := c.loader.LoadAdGroup(ctx, adGroupID)
	if err != nil {
		return nil, err
	}
	return Summarize(integ.ID, integ.Name, g.Assets), nil
}

// bump advances the ad group's generation and returns the new value.
func (c *Cache) bump(adGroupID string, drop bool) uint64 {
	var gen uint64
	c.snap.Update(func(cur table) table {
		next := table{items: cur.items, gens: maps.Clone(cur.gens)}
		if next.gens == nil {
			next.gens = make(map[string]uint64)
		}
		next.gens[adGroupID]++
		gen = next.gens[adGroupID]
		if drop {
			next.items = make(map[key]entry, len(cur.items))
			for k, e := range cur.items {
				if k.adGroupID != adGroupID {
					next.items[k] = e
				}
			}
		}
		return next
	})
	return gen
}

// put stores updates unless the ad group moved past gen while they were
// being computed.
func (c *Cache) put(adGroupID string, gen uint64, updates map[key]*creative.Summary) {
	at := c.now()
	c.snap.Update(func(cur table) table {
		if cur.gens[adGroupID] != gen {
			log.Debug().Str("ad_group_id", adGroupID).Msg("discarding summaries computed before invalidation")
			return cur
		}
		next := table{items: make(map[key]entry, len(cur.items)+len(updates)), gens: cur.gens}
		maps.Copy(next.items, cur.items)
		for k, s := range updates {
			next.items[k] = entry{summary: s, computedAt: at}
		}
		return next
	})
}
