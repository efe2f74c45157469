// Package guestlist implements the guest state machine:
// Requested -> Invited -> CheckedIn, plus removal.
//
// Every transition is a conditional write on the guest's current status, so
// two operators racing on the same guest produce exactly one applied
// transition. The loser re-reads the record and reports a no-op.
package guestlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-guestlist/internal/domain"
	"github.com/go-guestlist/internal/pkg/id"
	"github.com/go-guestlist/internal/pkg/telemetry"
	"github.com/go-guestlist/internal/pkg/validate"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldInvitedBy   = "invited_by"
	fieldCheckedInBy = "checked_in_by"
	fieldTimestamp   = "timestamp"
)

type Service interface {
	Create(ctx context.Context, actor domain.Actor, eventID string, req domain.CreateGuestRequest) (*domain.Transition, error)
	Approve(ctx context.Context, actor domain.Actor, eventID, guestID string) (*domain.Transition, error)
	CheckIn(ctx context.Context, actor domain.Actor, eventID, guestID string) (*domain.Transition, error)
	Remove(ctx context.Context, actor domain.Actor, eventID, guestID string, confirmed bool) (*domain.Guest, error)
	Request(ctx context.Context, actor domain.Actor, eventID string) (*domain.Transition, error)
}

type guestStore interface {
	Get(ctx context.Context, eventID, guestID string) (*domain.Guest, error)
	Create(ctx context.Context, g *domain.Guest) error
	Transition(ctx context.Context, eventID, guestID string, from []domain.GuestStatus, to domain.GuestStatus, updates map[string]interface{}) error
	Delete(ctx context.Context, eventID, guestID string) error
}

type eventStore interface {
	Get(ctx context.Context, eventID string) (*domain.Event, error)
}

type userDirectory interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type accessGranter interface {
	Grant(ctx context.Context, userID, eventID, grantedBy string) error
}

type notifier interface {
	Enqueue(ctx context.Context, n domain.Notice)
}

type onceGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, keys ...string) error
}

type changeNotifier interface {
	Touch(ctx context.Context, collection string)
}

type service struct {
	guests   guestStore
	events   eventStore
	users    userDirectory
	access   accessGranter
	notifier notifier
	once     onceGuard
	changes  changeNotifier
	signals  telemetry.Sink
	log      *slog.Logger
	now      func() time.Time
}

// ServiceDeps wires the state machine. Access, Once, Changes, Signals and
// Logger are optional.
type ServiceDeps struct {
	GuestRepo  guestStore
	EventRepo  eventStore
	UserRepo   userDirectory
	AccessRepo accessGranter
	Notifier   notifier
	Once       onceGuard
	Changes    changeNotifier
	Signals    telemetry.Sink
	Logger     *slog.Logger
	Now        func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		guests:   deps.GuestRepo,
		events:   deps.EventRepo,
		users:    deps.UserRepo,
		access:   deps.AccessRepo,
		notifier: deps.Notifier,
		once:     deps.Once,
		changes:  deps.Changes,
		signals:  deps.Signals,
		log:      deps.Logger,
		now:      deps.Now,
	}
	if s.signals == nil {
		s.signals = telemetry.Nop{}
	}
	if s.changes == nil {
		s.changes = noChanges{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *service) Create(ctx context.Context, actor domain.Actor, eventID string, req domain.CreateGuestRequest) (*domain.Transition, error) {
	t, err := s.create(ctx, actor, eventID, req)
	s.signal(ctx, "guest.create", err)
	return t, err
}

func (s *service) create(ctx context.Context, actor domain.Actor, eventID string, req domain.CreateGuestRequest) (*domain.Transition, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	if req.Manual() {
		if strings.TrimSpace(req.Name) == "" {
			return nil, fmt.Errorf("name is required: %w", domain.ErrBadRequest)
		}
		if req.UniversityID == "" {
			return nil, domain.ErrMissingUniversity
		}
	}

	event, err := s.hostedEvent(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	target := event.DefaultEntryStatus(now)
	if req.Status != nil {
		target = *req.Status
	}

	var g *domain.Guest
	if req.Manual() {
		g = manualGuest(eventID, req)
	} else {
		user, err := s.lookupUser(ctx, req)
		if err != nil {
			s.log.Warn("guest lookup failed", "stage", "lookup", "event_id", eventID, "username", req.Username, "user_id", req.UserID, "err", err)
			return nil, fmt.Errorf("%w: user lookup", domain.ErrUnableToAddGuest)
		}
		existing, err := s.guests.Get(ctx, eventID, user.UserID)
		switch {
		case err == nil:
			return s.routeExisting(ctx, actor, event, existing)
		case !errors.Is(err, domain.ErrNotFound):
			s.log.Warn("guest lookup failed", "stage", "lookup", "event_id", eventID, "guest_id", user.UserID, "err", err)
			return nil, fmt.Errorf("%w: guest lookup", domain.ErrUnableToAddGuest)
		}
		g = linkedGuest(eventID, user, now)
	}

	g.Status = target
	g.InvitedBy = strPtr(actor.DisplayName)
	if target == domain.StatusCheckedIn {
		g.CheckedInBy = strPtr(actor.DisplayName)
	}
	g.Timestamp = now

	if err := s.guests.Create(ctx, g); err != nil {
		switch {
		case errors.Is(err, domain.ErrConflict):
			// Another writer created the same linked guest first.
			existing, getErr := s.guests.Get(ctx, eventID, g.ID)
			if getErr != nil {
				s.log.Warn("guest reread failed", "stage", "lookup", "event_id", eventID, "guest_id", g.ID, "err", getErr)
				return nil, fmt.Errorf("%w: guest lookup", domain.ErrUnableToAddGuest)
			}
			return s.routeExisting(ctx, actor, event, existing)
		case errors.Is(err, domain.ErrEncoding):
			s.log.Error("guest encode failed", "stage", "encode", "event_id", eventID, "guest_id", g.ID, "err", err)
		default:
			s.log.Error("guest write failed", "stage", "write", "event_id", eventID, "guest_id", g.ID, "err", err)
		}
		return nil, fmt.Errorf("%w: write", domain.ErrUnableToAddGuest)
	}

	s.changes.Touch(ctx, domain.GuestCollection(eventID))
	t := &domain.Transition{Guest: g, To: target, Applied: true}
	t.Notified = s.notifyAdded(ctx, actor, event, g)
	return t, nil
}

// routeExisting handles a create that targets a guest already on the list.
func (s *service) routeExisting(ctx context.Context, actor domain.Actor, event *domain.Event, g *domain.Guest) (*domain.Transition, error) {
	switch g.Status {
	case domain.StatusInvited:
		return nil, domain.ErrDuplicateInvite
	case domain.StatusCheckedIn:
		return nil, domain.ErrAlreadyJoined
	default:
		return s.approve(ctx, actor, event, g)
	}
}

func (s *service) Approve(ctx context.Context, actor domain.Actor, eventID, guestID string) (*domain.Transition, error) {
	t, err := s.approveByID(ctx, actor, eventID, guestID)
	s.signal(ctx, "guest.approve", err)
	return t, err
}

func (s *service) approveByID(ctx context.Context, actor domain.Actor, eventID, guestID string) (*domain.Transition, error) {
	event, err := s.hostedEvent(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	g, err := s.guest(ctx, eventID, guestID)
	if err != nil {
		return nil, err
	}
	return s.approve(ctx, actor, event, g)
}

// approve admits a requested guest at the event's default entry status.
// Approving a guest that is already admitted is a no-op.
func (s *service) approve(ctx context.Context, actor domain.Actor, event *domain.Event, g *domain.Guest) (*domain.Transition, error) {
	if g.Status != domain.StatusRequested {
		return &domain.Transition{Guest: g, From: g.Status, To: g.Status}, nil
	}

	now := s.now()
	target := event.DefaultEntryStatus(now)
	updates := map[string]interface{}{
		fieldInvitedBy: actor.DisplayName,
		fieldTimestamp: now,
	}
	if target == domain.StatusCheckedIn {
		updates[fieldCheckedInBy] = actor.DisplayName
	}

	applied, current, err := s.transition(ctx, g, []domain.GuestStatus{domain.StatusRequested}, target, updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &domain.Transition{Guest: current, From: current.Status, To: current.Status}, nil
	}

	g.Status = target
	g.InvitedBy = strPtr(actor.DisplayName)
	if target == domain.StatusCheckedIn {
		g.CheckedInBy = strPtr(actor.DisplayName)
	}
	g.Timestamp = now

	if userID := g.LinkedUserID(); userID != "" && event.IsPrivate && event.IsInviteOnly && s.access != nil {
		if err := s.access.Grant(ctx, userID, event.ID, actor.ID); err != nil {
			s.log.Warn("access grant failed", "stage", "write", "event_id", event.ID, "user_id", userID, "err", err)
		}
	}

	t := &domain.Transition{Guest: g, From: domain.StatusRequested, To: target, Applied: true}
	t.Notified = s.notifyAdded(ctx, actor, event, g)
	return t, nil
}

func (s *service) CheckIn(ctx context.Context, actor domain.Actor, eventID, guestID string) (*domain.Transition, error) {
	t, err := s.checkIn(ctx, actor, eventID, guestID)
	s.signal(ctx, "guest.check_in", err)
	return t, err
}

func (s *service) checkIn(ctx context.Context, actor domain.Actor, eventID, guestID string) (*domain.Transition, error) {
	event, err := s.hostedEvent(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	g, err := s.guest(ctx, eventID, guestID)
	if err != nil {
		return nil, err
	}

	from := []domain.GuestStatus{domain.StatusInvited}
	switch g.Status {
	case domain.StatusCheckedIn:
		return &domain.Transition{Guest: g, From: g.Status, To: g.Status}, nil
	case domain.StatusRequested:
		if event.IsInviteOnly {
			return nil, domain.ErrApprovalRequired
		}
		from = append(from, domain.StatusRequested)
	}

	now := s.now()
	applied, current, err := s.transition(ctx, g, from, domain.StatusCheckedIn, map[string]interface{}{
		fieldCheckedInBy: actor.DisplayName,
		fieldTimestamp:   now,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return &domain.Transition{Guest: current, From: current.Status, To: current.Status}, nil
	}

	prev := g.Status
	g.Status = domain.StatusCheckedIn
	g.CheckedInBy = strPtr(actor.DisplayName)
	g.Timestamp = now
	t := &domain.Transition{Guest: g, From: prev, To: domain.StatusCheckedIn, Applied: true}
	t.Notified = s.notifyAdded(ctx, actor, event, g)
	return t, nil
}

// transition applies a conditional status change. When the condition
// fails because another writer already moved the guest to `to` (or past
// it), applied is false and current is the re-read record.
func (s *service) transition(ctx context.Context, g *domain.Guest, from []domain.GuestStatus, to domain.GuestStatus, updates map[string]interface{}) (applied bool, current *domain.Guest, err error) {
	err = s.guests.Transition(ctx, g.EventID, g.ID, from, to, updates)
	switch {
	case err == nil:
		s.changes.Touch(ctx, domain.GuestCollection(g.EventID))
		return true, g, nil
	case errors.Is(err, domain.ErrConflict):
		current, getErr := s.guests.Get(ctx, g.EventID, g.ID)
		if getErr != nil {
			if errors.Is(getErr, domain.ErrNotFound) {
				return false, nil, getErr
			}
			s.log.Warn("guest reread failed", "stage", "lookup", "event_id", g.EventID, "guest_id", g.ID, "err", getErr)
			return false, nil, fmt.Errorf("%w: guest lookup", domain.ErrUnavailable)
		}
		if rank(current.Status) >= rank(to) {
			return false, current, nil
		}
		return false, nil, fmt.Errorf("guest %s is %s: %w", g.ID, current.Status, domain.ErrConflict)
	case errors.Is(err, domain.ErrEncoding):
		s.log.Error("guest encode failed", "stage", "encode", "event_id", g.EventID, "guest_id", g.ID, "err", err)
	default:
		s.log.Error("guest write failed", "stage", "write", "event_id", g.EventID, "guest_id", g.ID, "err", err)
	}
	return false, nil, fmt.Errorf("%w: write", domain.ErrUnavailable)
}

// Remove hard-deletes a guest. A checked-in guest is only removed when the
// caller has already confirmed; otherwise ErrConfirmationRequired is
// returned and nothing is deleted.
func (s *service) Remove(ctx context.Context, actor domain.Actor, eventID, guestID string, confirmed bool) (*domain.Guest, error) {
	if _, err := s.hostedEvent(ctx, actor, eventID); err != nil {
		s.signal(ctx, "guest.remove", err)
		return nil, err
	}
	g, err := s.guest(ctx, eventID, guestID)
	if err != nil {
		s.signal(ctx, "guest.remove", err)
		return nil, err
	}
	if g.Status == domain.StatusCheckedIn && !confirmed {
		return g, domain.ErrConfirmationRequired
	}
	if err := s.guests.Delete(ctx, eventID, guestID); err != nil {
		s.log.Error("guest delete failed", "stage", "write", "event_id", eventID, "guest_id", guestID, "actor_id", actor.ID, "err", err)
		err = fmt.Errorf("%w: delete", domain.ErrUnavailable)
		s.signal(ctx, "guest.remove", err)
		return nil, err
	}
	s.changes.Touch(ctx, domain.GuestCollection(eventID))
	if s.once != nil {
		keys := make([]string, 0, len(domain.GuestStatuses))
		for _, st := range domain.GuestStatuses {
			keys = append(keys, noticeKey(eventID, guestID, st))
		}
		if err := s.once.Release(ctx, keys...); err != nil {
			s.log.Warn("notification release failed", "stage", "write", "event_id", eventID, "guest_id", guestID, "err", err)
		}
	}
	s.signal(ctx, "guest.remove", nil)
	return g, nil
}

// Request puts the acting user on the list as Requested. The guest id is
// the user id, so a second request finds the existing row: a pending one
// is a no-op, an admitted one reports why it cannot be requested again.
func (s *service) Request(ctx context.Context, actor domain.Actor, eventID string) (*domain.Transition, error) {
	t, err := s.request(ctx, actor, eventID)
	s.signal(ctx, "guest.request", err)
	return t, err
}

func (s *service) request(ctx context.Context, actor domain.Actor, eventID string) (*domain.Transition, error) {
	if actor.ID == "" {
		return nil, fmt.Errorf("user identity is required: %w", domain.ErrUnauthorized)
	}
	event, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	existing, err := s.guests.Get(ctx, eventID, actor.ID)
	switch {
	case err == nil:
		return pendingOrAdmitted(existing)
	case !errors.Is(err, domain.ErrNotFound):
		s.log.Warn("guest lookup failed", "stage", "lookup", "event_id", eventID, "guest_id", actor.ID, "err", err)
		return nil, fmt.Errorf("%w: guest lookup", domain.ErrUnableToAddGuest)
	}

	user, err := s.users.Get(ctx, actor.ID)
	if err != nil {
		s.log.Warn("requester lookup failed", "stage", "lookup", "event_id", eventID, "user_id", actor.ID, "err", err)
		return nil, fmt.Errorf("%w: user lookup", domain.ErrUnableToAddGuest)
	}
	now := s.now()
	g := linkedGuest(event.ID, user, now)
	g.Status = domain.StatusRequested
	g.Timestamp = now

	if err := s.guests.Create(ctx, g); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			existing, getErr := s.guests.Get(ctx, eventID, g.ID)
			if getErr != nil {
				s.log.Warn("guest reread failed", "stage", "lookup", "event_id", eventID, "guest_id", g.ID, "err", getErr)
				return nil, fmt.Errorf("%w: guest lookup", domain.ErrUnableToAddGuest)
			}
			return pendingOrAdmitted(existing)
		}
		s.log.Error("guest write failed", "stage", "write", "event_id", eventID, "guest_id", g.ID, "err", err)
		return nil, fmt.Errorf("%w: write", domain.ErrUnableToAddGuest)
	}
	s.changes.Touch(ctx, domain.GuestCollection(eventID))
	return &domain.Transition{Guest: g, To: domain.StatusRequested, Applied: true}, nil
}

func pendingOrAdmitted(g *domain.Guest) (*domain.Transition, error) {
	switch g.Status {
	case domain.StatusInvited:
		return nil, domain.ErrDuplicateInvite
	case domain.StatusCheckedIn:
		return nil, domain.ErrAlreadyJoined
	}
	return &domain.Transition{Guest: g, From: g.Status, To: g.Status}, nil
}

// hostedEvent loads the event and checks that actor runs its guestlist.
func (s *service) hostedEvent(ctx context.Context, actor domain.Actor, eventID string) (*domain.Event, error) {
	if actor.ID == "" {
		return nil, fmt.Errorf("host identity is required: %w", domain.ErrUnauthorized)
	}
	event, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.ManagedBy(actor.ID) {
		return nil, fmt.Errorf("%s does not manage event %s: %w", actor.ID, eventID, domain.ErrForbidden)
	}
	return event, nil
}

func (s *service) event(ctx context.Context, eventID string) (*domain.Event, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required: %w", domain.ErrBadRequest)
	}
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.log.Warn("event lookup failed", "stage", "lookup", "event_id", eventID, "err", err)
		return nil, fmt.Errorf("%w: event lookup", domain.ErrUnavailable)
	}
	return event, nil
}

func (s *service) guest(ctx context.Context, eventID, guestID string) (*domain.Guest, error) {
	if guestID == "" {
		return nil, fmt.Errorf("guest id is required: %w", domain.ErrBadRequest)
	}
	g, err := s.guests.Get(ctx, eventID, guestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.log.Warn("guest lookup failed", "stage", "lookup", "event_id", eventID, "guest_id", guestID, "err", err)
		return nil, fmt.Errorf("%w: guest lookup", domain.ErrUnavailable)
	}
	return g, nil
}

func (s *service) lookupUser(ctx context.Context, req domain.CreateGuestRequest) (*domain.User, error) {
	if req.UserID != "" {
		return s.users.Get(ctx, req.UserID)
	}
	return s.users.GetByUsername(ctx, strings.TrimPrefix(req.Username, "@"))
}

// notifyAdded enqueues one guestlistAdded notice for a linked guest. The
// conditional write already limits this to one applied transition; the
// claim additionally stops a retried request from notifying twice.
func (s *service) notifyAdded(ctx context.Context, actor domain.Actor, event *domain.Event, g *domain.Guest) bool {
	userID := g.LinkedUserID()
	if userID == "" || s.notifier == nil {
		return false
	}
	if s.once != nil {
		key := noticeKey(event.ID, g.ID, g.Status)
		ok, err := s.once.Claim(ctx, key)
		if err != nil {
			s.log.Warn("notification claim failed", "stage", "write", "key", key, "err", err)
		} else if !ok {
			return false
		}
	}
	s.notifier.Enqueue(ctx, domain.Notice{
		RecipientID: userID,
		Type:        domain.NotificationGuestlistAdded,
		Actor:       actor,
		HostID:      event.HostID,
		EventID:     event.ID,
	})
	return true
}

func (s *service) signal(ctx context.Context, op string, err error) {
	switch {
	case err == nil:
		s.signals.Signal(ctx, op, telemetry.Success)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrConfirmationRequired), errors.Is(err, domain.ErrForbidden):
		s.signals.Signal(ctx, op, telemetry.Warning)
	default:
		s.signals.Signal(ctx, op, telemetry.Failure)
	}
}

// noticeKey identifies one guestlistAdded notice. Remove releases every
// key of the guest so a later re-add notifies again.
func noticeKey(eventID, guestID string, st domain.GuestStatus) string {
	return eventID + "/" + guestID + "/" + string(st)
}

type noChanges struct{}

func (noChanges) Touch(context.Context, string) {}

func rank(st domain.GuestStatus) int {
	switch st {
	case domain.StatusRequested:
		return 0
	case domain.StatusInvited:
		return 1
	case domain.StatusCheckedIn:
		return 2
	}
	return -1
}

func manualGuest(eventID string, req domain.CreateGuestRequest) *domain.Guest {
	return &domain.Guest{
		ID:           id.New(),
		EventID:      eventID,
		Name:         strings.TrimSpace(req.Name),
		UniversityID: req.UniversityID,
		Email:        req.Email,
		Age:          req.Age,
		Gender:       req.Gender,
		Note:         req.Note,
	}
}

func linkedGuest(eventID string, u *domain.User, now time.Time) *domain.Guest {
	uni := u.UniversityID
	if uni == "" {
		uni = domain.NoUniversityID
	}
	return &domain.Guest{
		ID:              u.UserID,
		EventID:         eventID,
		Name:            u.FullName,
		UniversityID:    uni,
		Email:           strPtr(u.Email),
		Username:        strPtr(u.Username),
		ProfileImageURL: u.ProfileImageURL,
		Age:             u.Age(now),
		Gender:          u.Gender,
		Major:           u.Major,
		UserID:          strPtr(u.UserID),
	}
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
