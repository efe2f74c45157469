package domain

import "time"

// Event is owned outside the guestlist engine; only the fields that gate
// check-in and approval policy are read here.
type Event struct {
	ID           string    `json:"id" dynamodbav:"event_id"`
	Title        string    `json:"title" dynamodbav:"title"`
	HostID       string    `json:"host_id" dynamodbav:"host_id"`
	ImageURL     string    `json:"image_url,omitempty" dynamodbav:"image_url"`
	StartDate    time.Time `json:"start_date" dynamodbav:"start_date"`
	EndDate      time.Time `json:"end_date" dynamodbav:"end_date"`
	IsInviteOnly bool      `json:"is_invite_only" dynamodbav:"is_invite_only"`
	IsPrivate    bool      `json:"is_private" dynamodbav:"is_private"`
	PlannerIDs   []string  `json:"planner_ids,omitempty" dynamodbav:"planner_ids,omitempty"`
}

// ManagedBy reports whether userID may run the event's guestlist: the
// host itself or one of its planners.
func (e *Event) ManagedBy(userID string) bool {
	if userID == "" {
		return false
	}
	if userID == e.HostID {
		return true
	}
	for _, id := range e.PlannerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasStarted reports whether the event's start is not in the future.
func (e *Event) HasStarted(now time.Time) bool {
	return !e.StartDate.After(now)
}

// DefaultEntryStatus is the status a newly admitted guest gets:
// straight to CheckedIn once doors are open, otherwise Invited.
func (e *Event) DefaultEntryStatus(now time.Time) GuestStatus {
	if e.HasStarted(now) {
		return StatusCheckedIn
	}
	return StatusInvited
}

// AccessibleEvent grants a user standing access to a private event.
type AccessibleEvent struct {
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	EventID   string    `json:"event_id" dynamodbav:"event_id"`
	GrantedBy string    `json:"granted_by" dynamodbav:"granted_by"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}
