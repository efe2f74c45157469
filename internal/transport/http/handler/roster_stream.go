package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-guestlist/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// streamCommand is a client message on the roster socket. Status changes
// the sectioned filter; Query asks for fuzzy matches across the roster.
type streamCommand struct {
	Status *domain.GuestStatus `json:"status,omitempty"`
	Query  *string             `json:"query,omitempty"`
}

// streamFrame is one server message on the roster socket.
type streamFrame struct {
	Type     string         `json:"type"`
	Snapshot interface{}    `json:"snapshot,omitempty"`
	Results  []domain.Guest `json:"results,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// RosterStreamHandler pushes live roster snapshots over a websocket.
type RosterStreamHandler struct {
	newRoster func() RosterView
	upgrader  websocket.Upgrader
	log       *slog.Logger
}

func NewRosterStreamHandler(newRoster func() RosterView, allowedOrigins []string, log *slog.Logger) *RosterStreamHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RosterStreamHandler{
		newRoster: newRoster,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

func (h *RosterStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	eventID := chi.URLParam(r, "eventID")
	store := h.newRoster()
	defer store.Close()

	if s := r.URL.Query().Get("status"); s != "" {
		if err := store.SetStatusFilter(domain.GuestStatus(s)); err != nil {
			httpError(w, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("roster stream upgrade failed", "stage", "stream", "event_id", eventID, "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	snaps, err := store.Observe(ctx, eventID)
	if err != nil {
		h.write(conn, streamFrame{Type: "error", Error: err.Error()})
		return
	}

	commands := make(chan streamCommand)
	go h.read(ctx, cancel, conn, commands)

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := h.write(conn, streamFrame{Type: "snapshot", Snapshot: snap}); err != nil {
				return
			}
		case cmd := <-commands:
			if err := h.apply(conn, store, cmd); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// read forwards client commands until the socket closes. Only the Stream
// loop writes to conn.
func (h *RosterStreamHandler) read(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- streamCommand) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		var cmd streamCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("roster stream read failed", "stage", "stream", "err", err)
			}
			return
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

func (h *RosterStreamHandler) apply(conn *websocket.Conn, store RosterView, cmd streamCommand) error {
	if cmd.Status != nil {
		if err := store.SetStatusFilter(*cmd.Status); err != nil {
			return h.write(conn, streamFrame{Type: "error", Error: err.Error()})
		}
	}
	if cmd.Query != nil {
		return h.write(conn, streamFrame{Type: "results", Results: store.Search(*cmd.Query)})
	}
	return nil
}

func (h *RosterStreamHandler) write(conn *websocket.Conn, f streamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(f)
}
