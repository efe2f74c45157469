package changefeed

import (
	"context"

	"github.com/go-guestlist/internal/domain"
	"github.com/redis/go-redis/v9"
)

type guestLister interface {
	ListByEvent(ctx context.Context, eventID string) ([]domain.Guest, error)
}

type notificationLister interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Notification, error)
}

// GuestFeed watches an event's guestlist.
type GuestFeed struct {
	client *redis.Client
	guests guestLister
}

func NewGuestFeed(client *redis.Client, guests guestLister) *GuestFeed {
	return &GuestFeed{client: client, guests: guests}
}

func (f *GuestFeed) WatchGuests(ctx context.Context, eventID string) <-chan Set[domain.Guest] {
	return Watch(ctx, f.client, domain.GuestCollection(eventID), func(ctx context.Context) ([]domain.Guest, error) {
		return f.guests.ListByEvent(ctx, eventID)
	})
}

// NotificationFeed watches a user's notification records.
type NotificationFeed struct {
	client        *redis.Client
	notifications notificationLister
}

func NewNotificationFeed(client *redis.Client, notifications notificationLister) *NotificationFeed {
	return &NotificationFeed{client: client, notifications: notifications}
}

func (f *NotificationFeed) WatchNotifications(ctx context.Context, userID string) <-chan Set[domain.Notification] {
	return Watch(ctx, f.client, domain.NotificationCollection(userID), func(ctx context.Context) ([]domain.Notification, error) {
		return f.notifications.ListByUser(ctx, userID)
	})
}
