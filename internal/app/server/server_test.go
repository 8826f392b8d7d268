package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-dispatch/internal/config"
	"creative-dispatch/internal/creative"
	"creative-dispatch/internal/dispatch"
	"creative-dispatch/internal/status"
	"creative-dispatch/internal/storage"
)

const fixture = `
integrations:
  - {id: int-1, name: Meta Ads, enabled: true}
adGroups:
  - id: ag-1
    assets:
      - {id: a, status: approved, filename: ACME_SPRING_007_9x16_V1.png}
      - {id: b, status: approved, filename: ACME_SPRING_7_1x1_V1.png}
      - {id: c, status: approved, filename: ACME_SPRING_008_4x5_V1.png}
`

func memoryConfig(t *testing.T, workerURL string) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	var cfg config.Config
	cfg.Storage.Backend = config.BackendMemory
	cfg.Storage.Fixture = path
	cfg.Worker.BaseURL = workerURL
	cfg.Worker.Path = "/api/integration-worker"
	cfg.Worker.TimeoutSeconds = 5
	return cfg
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := memoryConfig(t, "http://unused")
	st, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	defer st.Close()

	g, err := st.LoadAdGroup(context.Background(), "ag-1")
	require.NoError(t, err)
	assert.Len(t, g.Assets, 3)

	cfg.Storage.Fixture = ""
	st, err = OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	_, err = st.LoadAdGroup(context.Background(), "ag-1")
	assert.ErrorIs(t, err, storage.ErrAdGroupNotFound)
}

func TestOpenStore_Errors(t *testing.T) {
	cfg := memoryConfig(t, "http://unused")
	cfg.Storage.Fixture = filepath.Join(t.TempDir(), "missing.yaml")
	st, err := OpenStore(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, st)

	cfg.Storage.Backend = "firestore"
	_, err = OpenStore(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestNewHandler_DispatchesRecipesFromFilenames(t *testing.T) {
	var calls []dispatch.WorkerRequest
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/integration-worker", r.URL.Path)
		var req dispatch.WorkerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"dispatch":{"status":"sent"}}`))
	}))
	defer worker.Close()

	cfg := memoryConfig(t, worker.URL)
	st, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	h, err := NewHandler(cfg, st, status.NewCache(st))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ad-groups/ag-1/integrations/int-1/dispatch", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	require.Len(t, calls, 2)
	assert.Equal(t, "7", calls[0].Payload.RecipeIdentifier)
	assert.Equal(t, []string{"a", "b"}, calls[0].Payload.ApprovedAssetIDs)
	assert.Equal(t, "b", calls[0].Payload.ApprovedAsset.ID)
	assert.Equal(t, 1, calls[0].Attempt)
	assert.Equal(t, "8", calls[1].Payload.RecipeIdentifier)
	assert.Equal(t, 2, calls[1].Attempt)

	g, err := st.LoadAdGroup(context.Background(), "ag-1")
	require.NoError(t, err)
	for _, a := range g.Assets {
		e := a.IntegrationStatuses["int-1"]
		assert.Equal(t, creative.StateReceived, e.State, a.ID)
		assert.WithinDuration(t, time.Now(), e.UpdatedAt, time.Minute)
	}
}

func TestNewHandler_RequiresWorkerURL(t *testing.T) {
	for _, base := range []string{"", "localhost:3000"} {
		cfg := memoryConfig(t, base)
		st, err := OpenStore(context.Background(), cfg)
		require.NoError(t, err)

		h, err := NewHandler(cfg, st, status.NewCache(st))
		assert.ErrorContains(t, err, "worker.base_url", "base url %q", base)
		assert.Nil(t, h)
	}
}
