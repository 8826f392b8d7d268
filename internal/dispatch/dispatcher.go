// Package dispatch sends approved recipe groups to an integration worker and
// records a per-asset outcome for every group.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"creative-dispatch/internal/creative"
	"creative-dispatch/internal/observability"
	"creative-dispatch/internal/recipe"
)

const noAssetsMessage = "No assets available for integration dispatch."

var (
	// ErrDispatchFailed matches (errors.Is) the aggregate error of a run in
	// which at least one recipe group failed.
	ErrDispatchFailed      = errors.New("integration dispatch failed")
	ErrNoIntegration       = errors.New("no integration configured")
	ErrIntegrationDisabled = errors.New("integration is disabled")
)

// StatusWriter persists the state of every asset in a recipe group at once.
type StatusWriter interface {
	SetState(ctx context.Context, adGroupID string, integ creative.Integration, assetIDs []string, state string, fields creative.StatusFields) error
}

// Sender performs one worker call.
type Sender interface {
	Send(ctx context.Context, req WorkerRequest) (*WorkerResponse, error)
}

// GroupOutcome is what happened to one recipe group during a run.
type GroupOutcome struct {
	Key            string   `json:"key"`
	Identifier     string   `json:"identifier"`
	Attempt        int      `json:"attempt"`
	AssetIDs       []string `json:"assetIds"`
	State          string   `json:"state"`
	ResponseStatus int      `json:"responseStatus,omitempty"`
	ErrorMessage   string   `json:"errorMessage,omitempty"`
	Duplicate      bool     `json:"duplicate,omitempty"`
}

// Report summarizes one dispatch invocation.
type Report struct {
	RunID         string         `json:"runId"`
	AdGroupID     string         `json:"adGroupId"`
	IntegrationID string         `json:"integrationId"`
	Groups        []GroupOutcome `json:"groups"`
}

func (r Report) Failed() []GroupOutcome {
	var out []GroupOutcome
	for _, g := range r.Groups {
		if g.State == creative.StateError {
			out = append(out, g)
		}
	}
	return out
}

type Dispatcher struct {
	Status StatusWriter
	Worker Sender
}

func NewDispatcher(status StatusWriter, worker Sender) *Dispatcher {
	return &Dispatcher{Status: status, Worker: worker}
}

// Dispatch groups the approved assets by recipe and sends each group once.
func (d *Dispatcher) Dispatch(ctx context.Context, adGroupID string, integ creative.Integration, assets []creative.Asset) (Report, error) {
	approved := make([]creative.Asset, 0, len(assets))
	for _, a := range assets {
		if a.IsApproved() {
			approved = append(approved, a)
		}
	}
	return d.DispatchGroups(ctx, adGroupID, integ, recipe.GroupAssets(approved))
}

// DispatchGroups processes groups strictly in order. A failed group never stops
// the ones after it; all failures come back as one aggregate error.
func (d *Dispatcher) DispatchGroups(ctx context.Context, adGroupID string, integ creative.Integration, groups []recipe.Group) (Report, error) {
	report := Report{RunID: uuid.NewString(), AdGroupID: adGroupID, IntegrationID: integ.ID}
	if strings.TrimSpace(integ.ID) == "" {
		return report, ErrNoIntegration
	}
	if !integ.Enabled {
		return report, fmt.Errorf("%w: %s", ErrIntegrationDisabled, integ.ID)
	}

	for i, g := range groups {
		out := d.dispatchGroup(ctx, report.RunID, adGroupID, integ, g, i+1)
		observability.DispatchGroups.WithLabelValues(out.State).Inc()
		if out.Duplicate {
			observability.DuplicateConflicts.Inc()
		}
		report.Groups = append(report.Groups, out)
	}

	failed := report.Failed()
	log.Info().
		Str("run_id", report.RunID).
		Str("ad_group_id", adGroupID).
		Str("integration_id", integ.ID).
		Int("groups", len(groups)).
		Int("failed", len(failed)).
		Msg("integration dispatch finished")
	if len(failed) > 0 {
		return report, newBatchError(failed)
	}
	return report, nil
}

// encodeRequest renders the request snapshot stored with every status entry.
var encodeRequest = func(req WorkerRequest) ([]byte, error) { return json.Marshal(req) }

func (d *Dispatcher) dispatchGroup(ctx context.Context, runID, adGroupID string, integ creative.Integration, g recipe.Group, attempt int) GroupOutcome {
	out := GroupOutcome{Key: g.Key, Identifier: g.Identifier, Attempt: attempt}
	logger := log.With().
		Str("run_id", runID).
		Str("ad_group_id", adGroupID).
		Str("integration_id", integ.ID).
		Str("group", g.Key).
		Int("attempt", attempt).
		Logger()

	payload := BuildPayload(adGroupID, integ, g)
	out.AssetIDs = payload.ApprovedAssetIDs
	if len(payload.ApprovedAssets) == 0 {
		out.State = creative.StateError
		out.ErrorMessage = noAssetsMessage
		d.setState(ctx, adGroupID, integ, payload.ApprovedAssetIDs, creative.StateError, creative.StatusFields{
			ErrorMessage: creative.Some(noAssetsMessage),
		})
		logger.Warn().Msg(noAssetsMessage)
		return out
	}

	req := WorkerRequest{
		IntegrationID: integ.ID,
		ReviewID:      adGroupID,
		Attempt:       attempt,
		Payload:       payload,
		RunID:         runID,
	}
	reqRaw, err := encodeRequest(req)
	if err != nil {
		out.State = creative.StateError
		out.ErrorMessage = fmt.Sprintf("encode worker request: %v", err)
		d.setState(ctx, adGroupID, integ, out.AssetIDs, creative.StateError, creative.StatusFields{
			ErrorMessage:    creative.Some(out.ErrorMessage),
			RequestPayload:  creative.Null[json.RawMessage](),
			ResponsePayload: creative.Null[json.RawMessage](),
			ResponseStatus:  creative.Null[int](),
			ResponseHeaders: creative.Null[map[string]string](),
		})
		logger.Error().Err(err).Msg("cannot encode worker request")
		return out
	}

	d.setState(ctx, adGroupID, integ, out.AssetIDs, creative.StateSending, creative.StatusFields{
		ErrorMessage:    creative.Some(""),
		RequestPayload:  creative.Some(json.RawMessage(reqRaw)),
		ResponsePayload: creative.Null[json.RawMessage](),
		ResponseStatus:  creative.Null[int](),
		ResponseHeaders: creative.Null[map[string]string](),
	})
	logger.Info().Int("assets", len(out.AssetIDs)).Str("recipe", g.Identifier).Msg("dispatching recipe group")

	resp, err := d.Worker.Send(ctx, req)
	if err != nil {
		out.State = creative.StateError
		out.ErrorMessage = err.Error()
		d.setState(ctx, adGroupID, integ, out.AssetIDs, creative.StateError, creative.StatusFields{
			ErrorMessage:    creative.Some(out.ErrorMessage),
			RequestPayload:  creative.Some(json.RawMessage(reqRaw)),
			ResponsePayload: creative.Null[json.RawMessage](),
			ResponseStatus:  creative.Null[int](),
			ResponseHeaders: creative.Null[map[string]string](),
		})
		logger.Error().Err(err).Msg("integration worker call failed")
		return out
	}

	v := classify(resp)
	out.State = v.State
	out.ResponseStatus = v.Status
	out.ErrorMessage = v.Message
	out.Duplicate = v.Duplicate

	fields := creative.StatusFields{
		ErrorMessage:    creative.Some(v.Message),
		RequestPayload:  creative.Some(json.RawMessage(reqRaw)),
		ResponsePayload: creative.Null[json.RawMessage](),
		ResponseStatus:  creative.Some(v.Status),
		ResponseHeaders: creative.Null[map[string]string](),
	}
	if len(v.Payload) > 0 {
		fields.ResponsePayload = creative.Some(v.Payload)
	}
	if v.Headers != nil {
		fields.ResponseHeaders = creative.Some(v.Headers)
	}
	d.setState(ctx, adGroupID, integ, out.AssetIDs, v.State, fields)

	ev := logger.Info()
	if v.State == creative.StateError {
		ev = logger.Warn().Str("error", v.Message)
	}
	ev.Int("status", v.Status).Bool("duplicate", v.Duplicate).Str("state", v.State).Msg("recipe group dispatched")
	return out
}

// setState writes a group's status. The delivery attempt has already happened
// by the time a terminal state is written, so store failures are only logged.
func (d *Dispatcher) setState(ctx context.Context, adGroupID string, integ creative.Integration, assetIDs []string, state string, fields creative.StatusFields) {
	if len(assetIDs) == 0 {
		return
	}
	if err := d.Status.SetState(ctx, adGroupID, integ, assetIDs, state, fields); err != nil {
		observability.StatusWriteFailures.Inc()
		log.Error().Err(err).
			Str("ad_group_id", adGroupID).
			Str("integration_id", integ.ID).
			Str("state", state).
			Strs("asset_ids", assetIDs).
			Msg("failed to write integration status")
	}
}

// batchError joins "<group>: <message>" for every failed group.
type batchError struct{ msg string }

func newBatchError(failed []GroupOutcome) error {
	parts := make([]string, 0, len(failed))
	for _, f := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Key, f.ErrorMessage))
	}
	return &batchError{msg: strings.Join(parts, "; ")}
}

func (e *batchError) Error() string { return e.msg }

func (e *batchError) Is(target error) bool { return target == ErrDispatchFailed }
