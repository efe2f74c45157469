package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-guestlist/internal/domain"
)

// httpError maps a service error to its status and body. Conflicts carry a
// machine-readable error_code; transport failures never leak their cause.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDuplicateInvite):
		writeCode(w, http.StatusConflict, "guest already invited", "duplicate_invite")
	case errors.Is(err, domain.ErrAlreadyJoined):
		writeCode(w, http.StatusConflict, "guest already joined", "already_joined")
	case errors.Is(err, domain.ErrApprovalRequired):
		writeCode(w, http.StatusConflict, "guest must be approved first", "approval_required")
	case errors.Is(err, domain.ErrConflict):
		writeCode(w, http.StatusConflict, "conflict", "conflict")
	case errors.Is(err, domain.ErrMissingUniversity):
		writeCode(w, http.StatusBadRequest, "university is required", "missing_university")
	case errors.Is(err, domain.ErrBadRequest):
		writeCode(w, http.StatusBadRequest, err.Error(), "validation")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrUnableToAddGuest):
		writeCode(w, http.StatusBadGateway, "unable to add guest", "unable_to_add_guest")
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, domain.ErrEncoding):
		writeCode(w, http.StatusBadGateway, "unable to complete", "unavailable")
	default:
		slog.Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeCode(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: code})
}
