// Package checkin turns scanned QR payloads into guestlist transitions.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-guestlist/internal/domain"
	"github.com/go-guestlist/internal/pkg/telemetry"
)

// MaxPayloadLen is the longest payload that can be a record identifier.
const MaxPayloadLen = 128

var nonWord = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ValidPayload reports whether raw could identify a guest or user.
func ValidPayload(raw string) bool {
	return raw != "" && len(raw) <= MaxPayloadLen && !nonWord.MatchString(raw)
}

type ScanKind string

const (
	// ScanIgnored means the payload was not a plausible identifier.
	ScanIgnored ScanKind = "ignored"
	// ScanCheckedIn means a listed guest was checked in.
	ScanCheckedIn ScanKind = "checkedIn"
	// ScanAlreadyCheckedIn means the guest was checked in before this scan.
	ScanAlreadyCheckedIn ScanKind = "alreadyCheckedIn"
	// ScanAdded means an unlisted user was added to an open event.
	ScanAdded ScanKind = "added"
	// ScanConfirmationRequired means an unlisted user scanned at an
	// invite-only event. Nothing is written until ConfirmScan.
	ScanConfirmationRequired ScanKind = "confirmationRequired"
)

type ScanOutcome struct {
	Kind       ScanKind           `json:"kind"`
	Transition *domain.Transition `json:"transition,omitempty"`
	// User is the scanned account when the payload was not on the list.
	User *domain.User `json:"user,omitempty"`
}

type guestlist interface {
	Create(ctx context.Context, actor domain.Actor, eventID string, req domain.CreateGuestRequest) (*domain.Transition, error)
	CheckIn(ctx context.Context, actor domain.Actor, eventID, guestID string) (*domain.Transition, error)
}

type guestStore interface {
	Get(ctx context.Context, eventID, guestID string) (*domain.Guest, error)
	GetByUsername(ctx context.Context, eventID, username string) (*domain.Guest, error)
}

type eventStore interface {
	Get(ctx context.Context, eventID string) (*domain.Event, error)
}

type userDirectory interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type DispatcherDeps struct {
	Guestlist guestlist
	GuestRepo guestStore
	EventRepo eventStore
	UserRepo  userDirectory
	Signals   telemetry.Sink
	Logger    *slog.Logger
	Now       func() time.Time
}

type Dispatcher struct {
	guestlist guestlist
	guests    guestStore
	events    eventStore
	users     userDirectory
	signals   telemetry.Sink
	log       *slog.Logger
	now       func() time.Time
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	d := &Dispatcher{
		guestlist: deps.Guestlist,
		guests:    deps.GuestRepo,
		events:    deps.EventRepo,
		users:     deps.UserRepo,
		signals:   deps.Signals,
		log:       deps.Logger,
		now:       deps.Now,
	}
	if d.signals == nil {
		d.signals = telemetry.Nop{}
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.now == nil {
		d.now = func() time.Time { return time.Now().UTC() }
	}
	return d
}

// HandleScan resolves raw against the event's guestlist. A listed guest is
// checked in. An unlisted user is added at the event's default entry status
// when the event is open, and only announced (ScanConfirmationRequired)
// when it is invite-only.
func (d *Dispatcher) HandleScan(ctx context.Context, actor domain.Actor, eventID, raw string) (*ScanOutcome, error) {
	if !ValidPayload(raw) {
		d.log.Info("scan dropped", "event_id", eventID, "len", len(raw))
		return &ScanOutcome{Kind: ScanIgnored}, nil
	}
	event, err := d.event(ctx, eventID)
	if err != nil {
		return nil, err
	}

	g, err := d.listed(ctx, eventID, raw)
	switch {
	case err == nil:
		if g.Status == domain.StatusCheckedIn {
			d.signals.Signal(ctx, "scan", telemetry.Warning)
			return &ScanOutcome{Kind: ScanAlreadyCheckedIn, Transition: &domain.Transition{Guest: g, From: g.Status, To: g.Status}}, nil
		}
		t, err := d.guestlist.CheckIn(ctx, actor, eventID, g.ID)
		if err != nil {
			return nil, err
		}
		kind := ScanCheckedIn
		if !t.Applied {
			kind = ScanAlreadyCheckedIn
		}
		return &ScanOutcome{Kind: kind, Transition: t}, nil
	case !errors.Is(err, domain.ErrNotFound):
		d.log.Warn("scan lookup failed", "stage", "lookup", "event_id", eventID, "err", err)
		d.signals.Signal(ctx, "scan", telemetry.Failure)
		return nil, fmt.Errorf("%w: guest lookup", domain.ErrUnavailable)
	}

	user, err := d.resolveUser(ctx, raw)
	if err != nil {
		return nil, err
	}
	if event.IsInviteOnly {
		d.signals.Signal(ctx, "scan", telemetry.Warning)
		return &ScanOutcome{Kind: ScanConfirmationRequired, User: user}, nil
	}
	return d.add(ctx, actor, event, user)
}

// ConfirmScan adds the scanned user after the operator confirmed the
// prompt raised by HandleScan.
func (d *Dispatcher) ConfirmScan(ctx context.Context, actor domain.Actor, eventID, raw string) (*ScanOutcome, error) {
	if !ValidPayload(raw) {
		return nil, fmt.Errorf("invalid scan payload: %w", domain.ErrBadRequest)
	}
	event, err := d.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	user, err := d.resolveUser(ctx, raw)
	if err != nil {
		return nil, err
	}
	return d.add(ctx, actor, event, user)
}

func (d *Dispatcher) add(ctx context.Context, actor domain.Actor, event *domain.Event, user *domain.User) (*ScanOutcome, error) {
	target := event.DefaultEntryStatus(d.now())
	t, err := d.guestlist.Create(ctx, actor, event.ID, domain.CreateGuestRequest{UserID: user.UserID, Status: &target})
	if err != nil {
		return nil, err
	}
	return &ScanOutcome{Kind: ScanAdded, Transition: t, User: user}, nil
}

// listed finds the guest a payload names: by guest id first, then by the
// linked username.
func (d *Dispatcher) listed(ctx context.Context, eventID, raw string) (*domain.Guest, error) {
	g, err := d.guests.Get(ctx, eventID, raw)
	if errors.Is(err, domain.ErrNotFound) {
		return d.guests.GetByUsername(ctx, eventID, raw)
	}
	return g, err
}

// resolveUser treats the payload as a user id first, then as a username.
func (d *Dispatcher) resolveUser(ctx context.Context, raw string) (*domain.User, error) {
	u, err := d.users.Get(ctx, raw)
	if errors.Is(err, domain.ErrNotFound) {
		u, err = d.users.GetByUsername(ctx, raw)
	}
	if err != nil {
		d.log.Warn("scan user lookup failed", "stage", "lookup", "payload", raw, "err", err)
		d.signals.Signal(ctx, "scan", telemetry.Failure)
		return nil, fmt.Errorf("%w: user lookup", domain.ErrUnableToAddGuest)
	}
	return u, nil
}

func (d *Dispatcher) event(ctx context.Context, eventID string) (*domain.Event, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required: %w", domain.ErrBadRequest)
	}
	ev, err := d.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		d.log.Warn("event lookup failed", "stage", "lookup", "event_id", eventID, "err", err)
		return nil, fmt.Errorf("%w: event lookup", domain.ErrUnavailable)
	}
	return ev, nil
}
