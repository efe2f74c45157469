package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-guestlist/internal/application/guestlist"
	"github.com/go-guestlist/internal/application/roster"
	"github.com/go-guestlist/internal/domain"
	"github.com/go-guestlist/internal/transport/http/middleware"
)

// listTimeout bounds how long a one-shot roster read waits for its first
// complete snapshot.
const listTimeout = 5 * time.Second

// RosterView is the live roster a handler reads from.
type RosterView interface {
	Observe(ctx context.Context, eventID string) (<-chan roster.Snapshot, error)
	SetStatusFilter(status domain.GuestStatus) error
	Search(query string) []domain.Guest
	Close()
}

type exporter interface {
	Export(ctx context.Context, eventID string) (*guestlist.Export, error)
}

// GuestHandler handles guestlist endpoints.
type GuestHandler struct {
	svc       guestlist.Service
	exports   exporter
	newRoster func() RosterView
}

func NewGuestHandler(svc guestlist.Service, exports exporter, newRoster func() RosterView) *GuestHandler {
	return &GuestHandler{svc: svc, exports: exports, newRoster: newRoster}
}

func (h *GuestHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req domain.CreateGuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := h.svc.Create(r.Context(), actor, chi.URLParam(r, "eventID"), req)
	if err != nil {
		httpError(w, err)
		return
	}
	status := http.StatusCreated
	if !t.Applied {
		status = http.StatusOK
	}
	writeJSON(w, status, TransitionEnvelope{Transition: t, Guest: t.Guest})
}

// Request lets the signed-in user ask to join the event's list.
func (h *GuestHandler) Request(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Request(r.Context(), actor, chi.URLParam(r, "eventID"))
	if err != nil {
		httpError(w, err)
		return
	}
	status := http.StatusCreated
	if !t.Applied {
		status = http.StatusOK
	}
	writeJSON(w, status, TransitionEnvelope{Transition: t, Guest: t.Guest})
}

func (h *GuestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Approve(r.Context(), actor, chi.URLParam(r, "eventID"), chi.URLParam(r, "guestID"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionEnvelope{Transition: t, Guest: t.Guest})
}

func (h *GuestHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	t, err := h.svc.CheckIn(r.Context(), actor, chi.URLParam(r, "eventID"), chi.URLParam(r, "guestID"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionEnvelope{Transition: t, Guest: t.Guest})
}

// Remove deletes a guest. Removing a checked-in guest needs ?confirm=true;
// without it the guest is returned with 202 and nothing is deleted.
func (h *GuestHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	confirmed := r.URL.Query().Get("confirm") == "true"
	g, err := h.svc.Remove(r.Context(), actor, chi.URLParam(r, "eventID"), chi.URLParam(r, "guestID"), confirmed)
	switch {
	case errors.Is(err, domain.ErrConfirmationRequired):
		writeJSON(w, http.StatusAccepted, TransitionEnvelope{
			Guest:                g,
			ConfirmationRequired: true,
			Message:              "guest already checked in",
		})
	case err != nil:
		httpError(w, err)
	default:
		writeJSON(w, http.StatusOK, TransitionEnvelope{Guest: g, Message: "guest removed"})
	}
}

func (h *GuestHandler) Export(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	exp, err := h.exports.Export(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExportEnvelope{Export: exp})
}

// List returns the first complete roster snapshot for ?status= and, when
// ?q= is given, the fuzzy matches across every status.
func (h *GuestHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	store := h.newRoster()
	defer store.Close()

	if s := r.URL.Query().Get("status"); s != "" {
		if err := store.SetStatusFilter(domain.GuestStatus(s)); err != nil {
			httpError(w, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
	defer cancel()
	snaps, err := store.Observe(ctx, chi.URLParam(r, "eventID"))
	if err != nil {
		httpError(w, err)
		return
	}
	snap, ok := firstLoaded(ctx, snaps)
	if !ok {
		writeCode(w, http.StatusGatewayTimeout, "guestlist not ready", "unavailable")
		return
	}
	env := RosterEnvelope{Snapshot: &snap}
	if q := r.URL.Query().Get("q"); q != "" {
		env.Results = store.Search(q)
	}
	writeJSON(w, http.StatusOK, env)
}

// firstLoaded waits for the first snapshot past StateLoading. It reports
// false when the stream closes or ctx ends first.
func firstLoaded(ctx context.Context, snaps <-chan roster.Snapshot) (roster.Snapshot, bool) {
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return roster.Snapshot{}, false
			}
			if snap.State != roster.StateLoading {
				return snap, true
			}
		case <-ctx.Done():
			return roster.Snapshot{}, false
		}
	}
}

func actorFrom(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return actor, ok
}
