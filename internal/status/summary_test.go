package status

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-dispatch/internal/creative"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func code(n int) *int { return &n }

func asset(id string, e *creative.StatusEntry) creative.Asset {
	a := creative.Asset{ID: id, Status: creative.StatusApproved}
	if e != nil {
		e.IntegrationID = "int-1"
		a.IntegrationStatuses = map[string]creative.StatusEntry{"int-1": *e}
	}
	return a
}

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func TestSummarize_EmptyIntegration(t *testing.T) {
	assert.Nil(t, Summarize("", "Meta", nil))
	assert.Nil(t, Summarize("  ", "Meta", nil))
}

func TestSummarize_NotTriggered(t *testing.T) {
	s := Summarize("int-1", "Meta", []creative.Asset{asset("a", nil), asset("b", nil)})
	require.NotNil(t, s)
	assert.False(t, s.WasTriggered)
	assert.Nil(t, s.Outcome)
	assert.Equal(t, "Meta", s.IntegrationName)
}

func TestSummarize_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		assets      []creative.Asset
		wantOutcome string
		wantLatest  string
		wantStatus  *int
		wantMessage string
		wantAt      time.Time
	}{
		{
			name: "later success overrides earlier error",
			assets: []creative.Asset{
				asset("a", &creative.StatusEntry{State: "error", ErrorMessage: "boom", UpdatedAt: at(1)}),
				asset("b", &creative.StatusEntry{State: "received", ResponseStatus: code(200), UpdatedAt: at(2)}),
			},
			wantOutcome: creative.OutcomeSuccess,
			wantLatest:  "received",
			wantStatus:  code(200),
			wantAt:      at(2),
		},
		{
			name: "later error overrides earlier success",
			assets: []creative.Asset{
				asset("a", &creative.StatusEntry{State: "received", ResponseStatus: code(200), UpdatedAt: at(1)}),
				asset("b", &creative.StatusEntry{State: "error", ErrorMessage: "token expired", ResponseStatus: code(401), UpdatedAt: at(3)}),
			},
			wantOutcome: creative.OutcomeError,
			wantLatest:  "error",
			wantStatus:  code(401),
			wantMessage: "token expired",
			wantAt:      at(3),
		},
		{
			name: "tie goes to success",
			assets: []creative.Asset{
				asset("a", &creative.StatusEntry{State: "error", ErrorMessage: "boom", UpdatedAt: at(1)}),
				asset("b", &creative.StatusEntry{State: "received", UpdatedAt: at(1)}),
			},
			wantOutcome: creative.OutcomeSuccess,
			wantLatest:  "error",
			wantAt:      at(1),
		},
		{
			name: "success state with failing status is negative",
			assets: []creative.Asset{
				asset("a", &creative.StatusEntry{State: "delivered", ResponseStatus: code(500), UpdatedAt: at(1)}),
			},
			wantOutcome: creative.OutcomeError,
			wantLatest:  "delivered",
			wantStatus:  code(500),
			wantMessage: "Integration dispatch failed with status 500.",
			wantAt:      at(1),
		},
		{
			name: "status resolved from response payload",
			assets: []creative.Asset{
				asset("a", &creative.StatusEntry{
					State:           "received",
					ResponsePayload: json.RawMessage(`{"dispatch":{"response":{"status":422}}}`),
					ErrorMessage:    "invalid creative",
					UpdatedAt:       at(1),
				}),
			},
			wantOutcome: creative.OutcomeError,
			wantLatest:  "received",
			wantStatus:  code(422),
			wantMessage: "invalid creative",
			wantAt:      at(1),
		},
		{
			name: "accepted duplicate conflict",
			assets: []creative.Asset{
				asset("a", &creative.StatusEntry{State: "received", ResponseStatus: code(409), UpdatedAt: at(1)}),
			},
			wantOutcome: creative.OutcomeSuccess,
			wantLatest:  "received",
			wantStatus:  code(409),
			wantAt:      at(1),
		},
		{
			name: "duplicate state",
			assets: []creative.Asset{
				asset("a", &creative.StatusEntry{State: "duplicate", UpdatedAt: at(1)}),
			},
			wantOutcome: creative.OutcomeSuccess,
			wantLatest:  "duplicate",
			wantAt:      at(1),
		},
		{
			name: "failed family",
			assets: []creative.Asset{
				asset("a", &creative.StatusEntry{State: "Rejected", ErrorMessage: "policy", UpdatedAt: at(1)}),
				asset("b", nil),
			},
			wantOutcome: creative.OutcomeError,
			wantLatest:  "Rejected",
			wantMessage: "policy",
			wantAt:      at(1),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize("int-1", "Meta", tt.assets)
			require.NotNil(t, s)
			assert.True(t, s.WasTriggered)
			require.NotNil(t, s.Outcome)
			assert.Equal(t, tt.wantOutcome, *s.Outcome)
			assert.Equal(t, tt.wantLatest, s.LatestState)
			assert.Equal(t, tt.wantStatus, s.ResponseStatus)
			assert.Equal(t, tt.wantMessage, s.ErrorMessage)
			assert.True(t, tt.wantAt.Equal(s.UpdatedAt), "updatedAt %s", s.UpdatedAt)
		})
	}
}

func TestSummarize_InconclusiveEntries(t *testing.T) {
	s := Summarize("int-1", "", []creative.Asset{
		asset("a", &creative.StatusEntry{State: "sending", IntegrationName: "Meta Ads", UpdatedAt: at(1)}),
		asset("b", &creative.StatusEntry{State: "sending", UpdatedAt: at(2)}),
	})
	require.NotNil(t, s)
	assert.True(t, s.WasTriggered)
	assert.Nil(t, s.Outcome)
	assert.Equal(t, "", s.Result())
	assert.Equal(t, "sending", s.LatestState)
	assert.True(t, at(2).Equal(s.UpdatedAt))
}

func TestSummarize_IgnoresOtherIntegrations(t *testing.T) {
	a := creative.Asset{ID: "a", IntegrationStatuses: map[string]creative.StatusEntry{
		"int-2": {State: "error", UpdatedAt: at(1)},
	}}
	s := Summarize("int-1", "Meta", []creative.Asset{a})
	require.NotNil(t, s)
	assert.False(t, s.WasTriggered)
}

func TestSummary_JSONOutcomeNull(t *testing.T) {
	raw, err := json.Marshal(Summarize("int-1", "Meta", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"integrationId":"int-1","integrationName":"Meta","wasTriggered":false,"outcome":null}`, string(raw))
}
