package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"creative-dispatch/internal/creative"
	"creative-dispatch/internal/dispatch"
	"creative-dispatch/internal/storage"
)

// Summaries is the summary cache as seen by the handlers.
type Summaries interface {
	Summary(ctx context.Context, adGroupID, integrationID string) (*creative.Summary, error)
	Invalidate(adGroupID string)
}

type DispatchHandler struct {
	Store      storage.Store
	Dispatcher *dispatch.Dispatcher
	Summaries  Summaries
}

func NewDispatchHandler(st storage.Store, d *dispatch.Dispatcher, s Summaries) *DispatchHandler {
	return &DispatchHandler{Store: st, Dispatcher: d, Summaries: s}
}

type errorBody struct {
	Error  string           `json:"error"`
	Report *dispatch.Report `json:"report,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrAdGroupNotFound), errors.Is(err, storage.ErrIntegrationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrIntegrationDisabled):
		status = http.StatusConflict
	case errors.Is(err, dispatch.ErrNoIntegration):
		status = http.StatusBadRequest
	default:
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// Dispatch sends the ad group's approved assets to the integration.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	adGroupID := chi.URLParam(r, "adGroupID")
	integrationID := chi.URLParam(r, "integrationID")

	// A dispatch runs to completion even if the caller goes away.
	ctx := context.WithoutCancel(r.Context())

	integ, err := h.Store.LoadIntegration(ctx, integrationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !integ.Enabled {
		writeError(w, dispatch.ErrIntegrationDisabled)
		return
	}
	g, err := h.Store.LoadAdGroup(ctx, adGroupID)
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := h.Dispatcher.Dispatch(ctx, g.ID, integ, g.Assets)
	h.Summaries.Invalidate(g.ID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, dispatch.ErrDispatchFailed):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Report: &report})
	default:
		writeError(w, err)
	}
}

// Status returns the integration-level summary for the ad group.
func (h *DispatchHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, err := h.Summaries.Summary(r.Context(), chi.URLParam(r, "adGroupID"), chi.URLParam(r, "integrationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
