// Package status reduces per-asset integration status entries into one
// integration-level summary and caches summaries per ad group.
package status

import (
	"encoding/json"
	"strconv"
	"strings"

	"creative-dispatch/internal/creative"
)

const stateDuplicate = "duplicate"

var (
	successStates = map[string]bool{
		creative.StateReceived: true,
		"success":              true,
		"sent":                 true,
		"delivered":            true,
		"completed":            true,
	}
	errorStates = map[string]bool{
		creative.StateError: true,
		"failed":            true,
		"failure":           true,
		"rejected":          true,
	}
)

type signal struct {
	entry  creative.StatusEntry
	status *int
}

// Summarize scans every asset's entry for integrationID. It returns nil only
// when integrationID is empty.
func Summarize(integrationID, integrationName string, assets []creative.Asset) *creative.Summary {
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return nil
	}
	sum := &creative.Summary{IntegrationID: integrationID, IntegrationName: integrationName}

	var latest, positive, negative *signal
	for _, a := range assets {
		e, ok := a.IntegrationStatuses[integrationID]
		if !ok {
			continue
		}
		s := &signal{entry: e, status: resolvedStatus(e)}
		if latest == nil || s.entry.UpdatedAt.After(latest.entry.UpdatedAt) {
			latest = s
		}
		switch classifyEntry(s) {
		case 1:
			if positive == nil || s.entry.UpdatedAt.After(positive.entry.UpdatedAt) {
				positive = s
			}
		case -1:
			if negative == nil || s.entry.UpdatedAt.After(negative.entry.UpdatedAt) {
				negative = s
			}
		}
	}
	if latest == nil {
		return sum
	}

	sum.WasTriggered = true
	sum.LatestState = latest.entry.State
	if sum.IntegrationName == "" {
		sum.IntegrationName = latest.entry.IntegrationName
	}

	var win *signal
	outcome := creative.OutcomeSuccess
	switch {
	case positive == nil && negative == nil:
		sum.UpdatedAt = latest.entry.UpdatedAt
		return sum
	case negative == nil:
		win = positive
	case positive == nil || negative.entry.UpdatedAt.After(positive.entry.UpdatedAt):
		win, outcome = negative, creative.OutcomeError
	default:
		win = positive
	}

	sum.Outcome = &outcome
	sum.UpdatedAt = win.entry.UpdatedAt
	sum.ResponseStatus = win.status
	if outcome == creative.OutcomeError {
		sum.ErrorMessage = win.entry.ErrorMessage
		if sum.ErrorMessage == "" && win.status != nil {
			sum.ErrorMessage = "Integration dispatch failed with status " + strconv.Itoa(*win.status) + "."
		}
	}
	return sum
}

// classifyEntry returns 1 for a positive signal, -1 for a negative one and 0
// when the entry says nothing conclusive (e.g. still sending).
func classifyEntry(s *signal) int {
	state := strings.ToLower(strings.TrimSpace(s.entry.State))
	failedStatus := s.status != nil && *s.status >= 400
	// received at 409 is a duplicate conflict the dispatcher already accepted.
	if successStates[state] && s.status != nil && *s.status == 409 {
		failedStatus = false
	}
	switch {
	case state == stateDuplicate:
		return 1
	case errorStates[state], failedStatus:
		return -1
	case successStates[state]:
		return 1
	}
	return 0
}

// resolvedStatus prefers the stored responseStatus and falls back to a status
// found in the stored response payload.
func resolvedStatus(e creative.StatusEntry) *int {
	if e.ResponseStatus != nil {
		return e.ResponseStatus
	}
	if len(e.ResponsePayload) == 0 {
		return nil
	}
	var body map[string]any
	if err := json.Unmarshal(e.ResponsePayload, &body); err != nil {
		return nil
	}
	dispatch, _ := body["dispatch"].(map[string]any)
	response, _ := dispatch["response"].(map[string]any)
	for _, m := range []map[string]any{response, dispatch, body} {
		for _, k := range []string{"status", "statusCode"} {
			if n, ok := numeric(m[k]); ok {
				return &n
			}
		}
	}
	return nil
}

func numeric(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
