package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"creative-dispatch/internal/creative"
)

// Fixture is a YAML snapshot of ad groups and integrations.
type Fixture struct {
	Integrations []creative.Integration `yaml:"integrations"`
	AdGroups     []creative.AdGroup     `yaml:"adGroups"`
}

// LoadFixture reads a fixture file into a fresh MemoryStore.
func LoadFixture(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture %s: %w", path, err)
	}
	defer f.Close()

	var fx Fixture
	if err := yaml.NewDecoder(f).Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}

	st := NewMemoryStore()
	for _, i := range fx.Integrations {
		st.PutIntegration(i)
	}
	for _, g := range fx.AdGroups {
		if g.ID == "" {
			return nil, fmt.Errorf("fixture %s: ad group without id", path)
		}
		st.PutAdGroup(g)
	}
	return st, nil
}
