package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-guestlist/internal/domain"
	"github.com/go-guestlist/internal/pkg/id"
)

type notificationWriter interface {
	Put(ctx context.Context, n *domain.Notification) error
}

type pushPublisher interface {
	PublishPush(ctx context.Context, n *domain.Notification) error
}

// SenderDeps wires a Sender. Push and Changes are optional.
type SenderDeps struct {
	Store   notificationWriter
	Push    pushPublisher
	Changes changeNotifier
	Logger  *slog.Logger
	// Timeout bounds one delivery. Defaults to 10s.
	Timeout time.Duration
}

// Sender is the fire-and-forget notification sink. Enqueue returns at once;
// the record is stored and pushed from a background goroutine and failures
// are only logged.
type Sender struct {
	store   notificationWriter
	push    pushPublisher
	changes changeNotifier
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewSender(deps SenderDeps) *Sender {
	s := &Sender{
		store:   deps.Store,
		push:    deps.Push,
		changes: deps.Changes,
		log:     deps.Logger,
		timeout: deps.Timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	return s
}

func (s *Sender) Enqueue(ctx context.Context, notice domain.Notice) {
	n := s.build(notice)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		s.deliver(ctx, n)
	}()
}

// Wait blocks until every enqueued delivery has finished.
func (s *Sender) Wait() { s.wg.Wait() }

func (s *Sender) build(notice domain.Notice) *domain.Notification {
	n := &domain.Notification{
		NotificationID: id.New(),
		UserID:         notice.RecipientID,
		ActorID:        notice.Actor.ID,
		Headline:       notice.Actor.DisplayName,
		Type:           notice.Type,
		ImageURL:       notice.Actor.ImageURL,
		ExpiresAt:      notice.ExpiresAt,
		CreatedAt:      s.now(),
	}
	if n.Headline == "" {
		n.Headline = notice.Actor.Username
	}
	if notice.HostID != "" {
		n.HostID = &notice.HostID
	}
	if notice.EventID != "" {
		n.EventID = &notice.EventID
	}
	return n
}

func (s *Sender) deliver(ctx context.Context, n *domain.Notification) {
	if err := s.store.Put(ctx, n); err != nil {
		s.log.Error("notification store failed", "stage", "write", "notification_id", n.NotificationID, "user_id", n.UserID, "err", err)
		return
	}
	if s.changes != nil {
		s.changes.Touch(ctx, domain.NotificationCollection(n.UserID))
	}
	if s.push == nil {
		return
	}
	if err := s.push.PublishPush(ctx, n); err != nil {
		s.log.Warn("push publish failed", "stage", "write", "notification_id", n.NotificationID, "user_id", n.UserID, "err", err)
	}
}
