package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_LoadBeforeStore(t *testing.T) {
	var s Snapshot[map[string]int]
	assert.Nil(t, s.Load())

	var n Snapshot[int]
	assert.Zero(t, n.Load())
}

func TestSnapshot_UpdateIsSerialized(t *testing.T) {
	var s Snapshot[int]
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Load())
}

func TestSnapshot_CopyOnWrite(t *testing.T) {
	var s Snapshot[map[string]int]
	s.Store(map[string]int{"a": 1})
	old := s.Load()

	s.Update(func(m map[string]int) map[string]int {
		next := make(map[string]int, len(m)+1)
		for k, v := range m {
			next[k] = v
		}
		next["b"] = 2
		return next
	})

	assert.Len(t, old, 1)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, s.Load())
}
