package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-guestlist/internal/application/notification"
	"github.com/go-guestlist/internal/domain"
)

// NotificationEngine is one user's grouped notification view.
type NotificationEngine interface {
	Run(ctx context.Context) error
	Updates() <-chan notification.View
	Sections(category domain.NotificationCategory) []notification.Section
	Delete(ctx context.Context, groupID string) ([]string, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkViewed(ctx context.Context) error
}

// NotificationHandler handles notification endpoints.
type NotificationHandler struct {
	newEngine func(userID string) NotificationEngine
	timeout   time.Duration
}

func NewNotificationHandler(newEngine func(userID string) NotificationEngine) *NotificationHandler {
	return &NotificationHandler{newEngine: newEngine, timeout: listTimeout}
}

// List returns the caller's grouped notifications in recency buckets,
// filtered by ?category=, plus the unread count.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	category, err := parseCategory(r.URL.Query().Get("category"))
	if err != nil {
		httpError(w, err)
		return
	}
	engine, stop, ok := h.start(r.Context(), actor.ID)
	defer stop()
	if !ok {
		writeCode(w, http.StatusGatewayTimeout, "notifications not ready", "unavailable")
		return
	}
	unread, err := engine.UnreadCount(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NotificationsEnvelope{Sections: engine.Sections(category), Unread: unread})
}

// MarkViewed clears the unread badge.
func (h *NotificationHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.newEngine(actor.ID).MarkViewed(r.Context()); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "notifications viewed"})
}

// Delete removes a displayed cell. For a grouped cell that is every
// record the group collapsed.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	engine, stop, ok := h.start(r.Context(), actor.ID)
	defer stop()
	if !ok {
		writeCode(w, http.StatusGatewayTimeout, "notifications not ready", "unavailable")
		return
	}
	ids, err := engine.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeletedEnvelope{Deleted: ids})
}

// start runs a fresh engine until its first received view. The returned
// func stops it.
func (h *NotificationHandler) start(ctx context.Context, userID string) (NotificationEngine, func(), bool) {
	engine := h.newEngine(userID)
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	go func() { _ = engine.Run(ctx) }()
	for {
		select {
		case v, ok := <-engine.Updates():
			if !ok {
				return engine, cancel, false
			}
			if v.Received {
				return engine, cancel, true
			}
		case <-ctx.Done():
			return engine, cancel, false
		}
	}
}

func parseCategory(v string) (domain.NotificationCategory, error) {
	switch c := domain.NotificationCategory(v); c {
	case domain.CategoryAll, domain.CategoryFriends, domain.CategoryEvents,
		domain.CategoryGuestlist, domain.CategoryPlanner, domain.CategoryOrganization:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q: %w", v, domain.ErrBadRequest)
}
