package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-guestlist/internal/application/checkin"
	"github.com/go-guestlist/internal/domain"
)

type scanDispatcher interface {
	HandleScan(ctx context.Context, actor domain.Actor, eventID, raw string) (*checkin.ScanOutcome, error)
	ConfirmScan(ctx context.Context, actor domain.Actor, eventID, raw string) (*checkin.ScanOutcome, error)
}

type scanRequest struct {
	Payload string `json:"payload"`
}

// ScanHandler handles QR check-in scans.
type ScanHandler struct {
	dispatcher scanDispatcher
}

func NewScanHandler(dispatcher scanDispatcher) *ScanHandler {
	return &ScanHandler{dispatcher: dispatcher}
}

// Scan resolves one payload. An unlisted user at an invite-only event
// answers 202 and waits for Confirm.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.dispatcher.HandleScan(r.Context(), actor, chi.URLParam(r, "eventID"), req.Payload)
	if err != nil {
		httpError(w, err)
		return
	}
	if out.Kind == checkin.ScanConfirmationRequired {
		writeJSON(w, http.StatusAccepted, ScanEnvelope{Outcome: out, ConfirmationRequired: true})
		return
	}
	writeJSON(w, http.StatusOK, ScanEnvelope{Outcome: out})
}

// Confirm adds the scanned user after the host accepted the prompt.
func (h *ScanHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.dispatcher.ConfirmScan(r.Context(), actor, chi.URLParam(r, "eventID"), req.Payload)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ScanEnvelope{Outcome: out})
}
