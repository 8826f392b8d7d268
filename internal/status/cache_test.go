package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-dispatch/internal/creative"
	"creative-dispatch/internal/storage"
)

var meta = creative.Integration{ID: "int-1", Name: "Meta Ads", Enabled: true}

type countingLoader struct {
	*storage.MemoryStore
	loads int
}

func (l *countingLoader) LoadAdGroup(ctx context.Context, id string) (creative.AdGroup, error) {
	l.loads++
	return l.MemoryStore.LoadAdGroup(ctx, id)
}

func newLoader() *countingLoader {
	st := storage.NewMemoryStore().WithClock(func() time.Time { return t0 })
	st.PutIntegration(meta)
	st.PutAdGroup(creative.AdGroup{ID: "ag-1", Assets: []creative.Asset{{ID: "a", Status: "approved"}}})
	return &countingLoader{MemoryStore: st}
}

func TestCache_SummaryIsCached(t *testing.T) {
	l := newLoader()
	c := NewCache(l)
	ctx := context.Background()

	s, err := c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)
	assert.False(t, s.WasTriggered)
	assert.Equal(t, "Meta Ads", s.IntegrationName)

	_, err = c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)
	assert.Equal(t, 1, l.loads)
	assert.Equal(t, 1, c.Len())
}

func TestCache_RefreshPicksUpWrites(t *testing.T) {
	l := newLoader()
	c := NewCache(l)
	ctx := context.Background()

	_, err := c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)

	require.NoError(t, l.SetState(ctx, "ag-1", meta, []string{"a"}, creative.StateReceived, creative.StatusFields{
		ResponseStatus: creative.Some(200),
	}))
	require.NoError(t, c.Refresh(ctx, "ag-1"))

	s, err := c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)
	assert.True(t, s.WasTriggered)
	assert.Equal(t, creative.OutcomeSuccess, s.Result())
	assert.Equal(t, "Meta Ads", s.IntegrationName)
	assert.Equal(t, 2, l.loads)
}

func TestCache_RefreshUnknownAdGroupIsNoop(t *testing.T) {
	l := newLoader()
	c := NewCache(l)
	require.NoError(t, c.Refresh(context.Background(), "ag-9"))
	assert.Zero(t, l.loads)
}

func TestCache_Invalidate(t *testing.T) {
	l := newLoader()
	c := NewCache(l)
	ctx := context.Background()

	_, err := c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)
	c.Invalidate("ag-1")
	assert.Zero(t, c.Len())

	_, err = c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)
	assert.Equal(t, 2, l.loads)
}

func TestCache_Errors(t *testing.T) {
	c := NewCache(newLoader())
	ctx := context.Background()

	_, err := c.Summary(ctx, "ag-1", "int-9")
	assert.ErrorIs(t, err, storage.ErrIntegrationNotFound)

	_, err = c.Summary(ctx, "ag-9", "int-1")
	assert.ErrorIs(t, err, storage.ErrAdGroupNotFound)
	assert.Zero(t, c.Len())
}

// gatedLoader holds its first ad group load until release is closed.
type gatedLoader struct {
	*storage.MemoryStore
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (l *gatedLoader) LoadAdGroup(ctx context.Context, id string) (creative.AdGroup, error) {
	g, err := l.MemoryStore.LoadAdGroup(ctx, id)
	l.once.Do(func() {
		close(l.loaded)
		<-l.release
	})
	return g, err
}

func TestCache_InvalidateDuringLoadDropsStaleSummary(t *testing.T) {
	l := &gatedLoader{MemoryStore: newLoader().MemoryStore, loaded: make(chan struct{}), release: make(chan struct{})}
	c := NewCache(l)
	ctx := context.Background()

	done := make(chan *creative.Summary)
	go func() {
		s, err := c.Summary(ctx, "ag-1", "int-1")
		assert.NoError(t, err)
		done <- s
	}()
	<-l.loaded

	require.NoError(t, l.SetState(ctx, "ag-1", meta, []string{"a"}, creative.StateError, creative.StatusFields{
		ErrorMessage:   creative.Some("Integration dispatch failed with status 500."),
		ResponseStatus: creative.Some(500),
	}))
	c.Invalidate("ag-1")
	close(l.release)

	stale := <-done
	require.NotNil(t, stale)
	assert.False(t, stale.WasTriggered, "the in-flight caller still sees what it loaded")
	assert.Zero(t, c.Len())

	s, err := c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)
	assert.Equal(t, creative.OutcomeError, s.Result())
	require.NotNil(t, s.ResponseStatus)
	assert.Equal(t, 500, *s.ResponseStatus)
}

func TestCache_TTL(t *testing.T) {
	l := newLoader()
	now := t0
	c := NewCache(l).WithTTL(5 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)

	require.NoError(t, l.SetState(ctx, "ag-1", meta, []string{"a"}, creative.StateReceived, creative.StatusFields{
		ResponseStatus: creative.Some(200),
	}))

	now = now.Add(4 * time.Second)
	s, err := c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)
	assert.False(t, s.WasTriggered, "still within ttl")
	assert.Equal(t, 1, l.loads)

	now = now.Add(2 * time.Second)
	s, err = c.Summary(ctx, "ag-1", "int-1")
	require.NoError(t, err)
	assert.True(t, s.WasTriggered)
	assert.Equal(t, creative.OutcomeSuccess, s.Result())
	assert.Equal(t, 2, l.loads)
}
