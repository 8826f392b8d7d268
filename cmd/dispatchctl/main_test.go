package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-dispatch/internal/config"
	"creative-dispatch/internal/creative"
	"creative-dispatch/internal/dispatch"
	"creative-dispatch/internal/storage"
)

func withFlags(t *testing.T, adGroup, integration string) {
	t.Helper()
	prevA, prevI := adGroupFlag, integrationFlag
	adGroupFlag, integrationFlag = adGroup, integration
	t.Cleanup(func() { adGroupFlag, integrationFlag = prevA, prevI })
}

func sampleStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	st, err := storage.LoadFixture("../../configs/fixture.yaml")
	require.NoError(t, err)
	return st
}

func TestRunDispatch_Fixture(t *testing.T) {
	var calls atomic.Int32
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"dispatch":{"status":"sent"}}`))
	}))
	defer worker.Close()

	withFlags(t, "spring-launch", "meta-ads")
	var cfg config.Config
	cfg.Worker.BaseURL = worker.URL
	cfg.Worker.Path = "/api/integration-worker"
	cfg.Worker.TimeoutSeconds = 5

	st := sampleStore(t)
	var out bytes.Buffer
	require.NoError(t, runDispatch(context.Background(), cfg, st, &out))

	var report dispatch.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "spring-launch", report.AdGroupID)
	require.Len(t, report.Groups, 3)
	assert.Equal(t, []string{"asset-001", "asset-002"}, report.Groups[0].AssetIDs)
	assert.Equal(t, "3", report.Groups[2].Identifier)
	assert.EqualValues(t, 3, calls.Load())

	out.Reset()
	require.NoError(t, runSummary(context.Background(), st, &out))
	var s creative.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.Equal(t, creative.OutcomeSuccess, s.Result())
	assert.Equal(t, "Meta Ads", s.IntegrationName)
}

func TestRunDispatch_Failures(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer worker.Close()

	withFlags(t, "spring-launch", "meta-ads")
	var cfg config.Config
	cfg.Worker.BaseURL = worker.URL
	cfg.Worker.TimeoutSeconds = 5

	var out bytes.Buffer
	err := runDispatch(context.Background(), cfg, sampleStore(t), &out)
	require.ErrorIs(t, err, dispatch.ErrDispatchFailed)
	assert.Contains(t, err.Error(), "1: Integration dispatch failed with status 500.")
	assert.NotEmpty(t, out.String(), "the report is printed even when groups fail")
}

func TestRunDispatch_Preconditions(t *testing.T) {
	var cfg config.Config
	withFlags(t, "spring-launch", "meta-ads")
	assert.ErrorContains(t, runDispatch(context.Background(), cfg, sampleStore(t), &bytes.Buffer{}), "worker.base_url")

	cfg.Worker.BaseURL = "http://127.0.0.1:1"
	withFlags(t, "spring-launch", "nope")
	assert.ErrorIs(t, runDispatch(context.Background(), cfg, sampleStore(t), &bytes.Buffer{}), storage.ErrIntegrationNotFound)

	withFlags(t, "spring-launch", "tiktok")
	assert.ErrorIs(t, runDispatch(context.Background(), cfg, sampleStore(t), &bytes.Buffer{}), dispatch.ErrIntegrationDisabled)
}
