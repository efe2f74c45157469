package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrUnavailable  = errors.New("unable to complete")
)

// Guestlist conditions. Each one wraps the sentinel it maps to, so callers
// can match either the precise condition or its class.
var (
	ErrDuplicateInvite      = fmt.Errorf("guest already invited: %w", ErrConflict)
	ErrAlreadyJoined        = fmt.Errorf("guest already joined: %w", ErrConflict)
	ErrApprovalRequired     = fmt.Errorf("guest must be approved first: %w", ErrConflict)
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrMissingUniversity    = fmt.Errorf("university is required: %w", ErrBadRequest)
	ErrUnableToAddGuest     = fmt.Errorf("unable to add guest: %w", ErrUnavailable)
)

// ErrEncoding marks a record that could not be serialised for storage.
var ErrEncoding = errors.New("encoding failed")
