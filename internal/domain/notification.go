package domain

import "time"

type NotificationType string

const (
	NotificationFriendRequest       NotificationType = "friendRequest"
	NotificationFriendAccept        NotificationType = "friendAccept"
	NotificationFollower            NotificationType = "follower"
	NotificationEventLiked          NotificationType = "eventLiked"
	NotificationGuestlistJoined     NotificationType = "guestlistJoined"
	NotificationGuestlistAdded      NotificationType = "guestlistAdded"
	NotificationPlannerInvite       NotificationType = "plannerInvite"
	NotificationPlannerAccept       NotificationType = "plannerAccept"
	NotificationPlannerDecline      NotificationType = "plannerDecline"
	NotificationPlannerRemove       NotificationType = "plannerRemove"
	NotificationPlannerReminder     NotificationType = "plannerReminder"
	NotificationMemberInvite        NotificationType = "memberInvite"
	NotificationMemberJoin          NotificationType = "memberJoin"
	NotificationHostInvite          NotificationType = "hostInvite"
	NotificationEventPosted         NotificationType = "eventPosted"
	NotificationEventAutoDeleted    NotificationType = "eventAutoDeleted"
	NotificationEventDeclineDeleted NotificationType = "eventDeclineDeleted"
)

// RequiresIndividualAttention reports whether the notification carries its
// own accept/decline action and therefore must never be grouped.
func (t NotificationType) RequiresIndividualAttention() bool {
	switch t {
	case NotificationFriendRequest, NotificationMemberInvite, NotificationPlannerInvite, NotificationHostInvite:
		return true
	}
	return false
}

type NotificationCategory string

const (
	CategoryAll          NotificationCategory = ""
	CategoryFriends      NotificationCategory = "friends"
	CategoryEvents       NotificationCategory = "events"
	CategoryGuestlist    NotificationCategory = "guestlist"
	CategoryPlanner      NotificationCategory = "planner"
	CategoryOrganization NotificationCategory = "organization"
)

func (t NotificationType) Category() NotificationCategory {
	switch t {
	case NotificationFriendRequest, NotificationFriendAccept, NotificationFollower:
		return CategoryFriends
	case NotificationGuestlistJoined, NotificationGuestlistAdded:
		return CategoryGuestlist
	case NotificationPlannerInvite, NotificationPlannerAccept, NotificationPlannerDecline,
		NotificationPlannerRemove, NotificationPlannerReminder:
		return CategoryPlanner
	case NotificationMemberInvite, NotificationMemberJoin, NotificationHostInvite:
		return CategoryOrganization
	default:
		return CategoryEvents
	}
}

type Notification struct {
	NotificationID string           `json:"id" dynamodbav:"notification_id"`
	UserID         string           `json:"user_id" dynamodbav:"user_id"`
	ActorID        string           `json:"actor_id" dynamodbav:"actor_id"`
	Headline       string           `json:"headline" dynamodbav:"headline"`
	Type           NotificationType `json:"type" dynamodbav:"type"`
	HostID         *string          `json:"host_id,omitempty" dynamodbav:"host_id,omitempty"`
	EventID        *string          `json:"event_id,omitempty" dynamodbav:"event_id,omitempty"`
	ImageURL       string           `json:"image_url" dynamodbav:"image_url"`
	ImageURLs      []string         `json:"image_urls,omitempty" dynamodbav:"-"`
	Count          *int             `json:"count,omitempty" dynamodbav:"-"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty" dynamodbav:"expires_at,omitempty"`
	ExpiresTTL     int64            `json:"-" dynamodbav:"expires_ttl,omitempty"`
	CreatedAt      time.Time        `json:"created" dynamodbav:"created_at"`
}

func (n *Notification) HostIDValue() string {
	if n.HostID == nil {
		return ""
	}
	return *n.HostID
}

func (n *Notification) EventIDValue() string {
	if n.EventID == nil {
		return ""
	}
	return *n.EventID
}

// Expired reports whether the notification's expiry has passed.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// NotificationCollection is the change-stream path of a user's notifications.
func NotificationCollection(userID string) string {
	return "users/" + userID + "/notifications"
}

// Notice is an outbound notification request. The sink turns it into a
// stored Notification and a push.
type Notice struct {
	RecipientID string
	Type        NotificationType
	Actor       Actor
	HostID      string
	EventID     string
	ExpiresAt   *time.Time
}
