package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"creative-dispatch/internal/creative"
)

// MemoryStore keeps everything in process. A single mutex makes each
// SetState one atomic step for its ad group.
type MemoryStore struct {
	mu           sync.RWMutex
	adGroups     map[string]creative.AdGroup
	integrations map[string]creative.Integration
	now          func() time.Time
	last         time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		adGroups:     map[string]creative.AdGroup{},
		integrations: map[string]creative.Integration{},
		now:          time.Now,
	}
}

// WithClock swaps the timestamp source; used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) PutAdGroup(g creative.AdGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adGroups[g.ID] = cloneAdGroup(g)
}

func (s *MemoryStore) PutIntegration(i creative.Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations[i.ID] = i
}

func (s *MemoryStore) LoadAdGroup(_ context.Context, adGroupID string) (creative.AdGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.adGroups[adGroupID]
	if !ok {
		return creative.AdGroup{}, fmt.Errorf("%w: %s", ErrAdGroupNotFound, adGroupID)
	}
	return cloneAdGroup(g), nil
}

func (s *MemoryStore) LoadIntegration(_ context.Context, integrationID string) (creative.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.integrations[integrationID]
	if !ok {
		return creative.Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, integrationID)
	}
	return i, nil
}

func (s *MemoryStore) SetState(_ context.Context, adGroupID string, integ creative.Integration, assetIDs []string, state string, fields creative.StatusFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.adGroups[adGroupID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAdGroupNotFound, adGroupID)
	}
	pos := make(map[string]int, len(g.Assets))
	for i, a := range g.Assets {
		pos[a.DocID()] = i
	}
	for _, id := range assetIDs {
		if _, ok := pos[id]; !ok {
			return fmt.Errorf("%w: %s", ErrAssetNotFound, id)
		}
	}

	now := s.now().UTC()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	entry, err := creative.Entry(fields.Document(state, integ, now))
	if err != nil {
		return fmt.Errorf("build status entry: %w", err)
	}
	for _, id := range assetIDs {
		a := &g.Assets[pos[id]]
		if a.IntegrationStatuses == nil {
			a.IntegrationStatuses = map[string]creative.StatusEntry{}
		}
		a.IntegrationStatuses[integ.ID] = entry
	}
	s.adGroups[adGroupID] = g
	return nil
}

func (s *MemoryStore) Close() {}

func cloneAdGroup(g creative.AdGroup) creative.AdGroup {
	out := g
	out.Assets = make([]creative.Asset, len(g.Assets))
	for i, a := range g.Assets {
		statuses := make(map[string]creative.StatusEntry, len(a.IntegrationStatuses))
		for k, v := range a.IntegrationStatuses {
			statuses[k] = v
		}
		a.IntegrationStatuses = statuses
		out.Assets[i] = a
	}
	return out
}
