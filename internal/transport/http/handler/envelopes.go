package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-guestlist/internal/application/checkin"
	"github.com/go-guestlist/internal/application/guestlist"
	"github.com/go-guestlist/internal/application/notification"
	"github.com/go-guestlist/internal/application/roster"
	"github.com/go-guestlist/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// TransitionEnvelope wraps the result of a guestlist mutation.
type TransitionEnvelope struct {
	Transition           *domain.Transition `json:"transition,omitempty"`
	Guest                *domain.Guest      `json:"guest,omitempty"`
	ConfirmationRequired bool               `json:"confirmation_required,omitempty"`
	Message              string             `json:"message,omitempty"`
}

// RosterEnvelope wraps a roster read. Results is set when a search query
// was given.
type RosterEnvelope struct {
	Snapshot *roster.Snapshot `json:"snapshot,omitempty"`
	Results  []domain.Guest   `json:"results,omitempty"`
}

// ScanEnvelope wraps a scan outcome.
type ScanEnvelope struct {
	Outcome              *checkin.ScanOutcome `json:"outcome"`
	ConfirmationRequired bool                 `json:"confirmation_required,omitempty"`
}

// NotificationsEnvelope wraps the grouped notification list.
type NotificationsEnvelope struct {
	Sections []notification.Section `json:"sections"`
	Unread   int                    `json:"unread"`
}

// DeletedEnvelope lists the raw records removed by a delete.
type DeletedEnvelope struct {
	Deleted []string `json:"deleted"`
}

// ExportEnvelope wraps a finished guestlist export.
type ExportEnvelope struct {
	Export *guestlist.Export `json:"export"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}
