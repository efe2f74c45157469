package domain

import (
	"fmt"
	"time"
)

// GuestStatus is the position of a guest in the guestlist lifecycle.
// Requested -> Invited -> CheckedIn, with CheckedIn terminal.
type GuestStatus string

const (
	StatusRequested GuestStatus = "requested"
	StatusInvited   GuestStatus = "invited"
	StatusCheckedIn GuestStatus = "checkedIn"
)

// GuestStatuses lists every status in lifecycle order.
var GuestStatuses = []GuestStatus{StatusRequested, StatusInvited, StatusCheckedIn}

func (s GuestStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusInvited, StatusCheckedIn:
		return true
	}
	return false
}

// ParseGuestStatus accepts the stored form of a status.
func ParseGuestStatus(v string) (GuestStatus, error) {
	s := GuestStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown guest status %q: %w", v, ErrBadRequest)
	}
	return s, nil
}

type Gender string

const (
	GenderMale      Gender = "male"
	GenderFemale    Gender = "female"
	GenderNonBinary Gender = "nonBinary"
	GenderOther     Gender = "other"
)

// NoUniversityID is the placeholder selection for guests that do not attend a university.
const NoUniversityID = "none"

type Guest struct {
	ID              string      `json:"id" dynamodbav:"guest_id"`
	EventID         string      `json:"event_id" dynamodbav:"event_id"`
	Name            string      `json:"name" dynamodbav:"name"`
	UniversityID    string      `json:"university_id" dynamodbav:"university_id"`
	Email           *string     `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Username        *string     `json:"username,omitempty" dynamodbav:"username,omitempty"`
	ProfileImageURL *string     `json:"profile_image_url,omitempty" dynamodbav:"profile_image_url,omitempty"`
	Age             *int        `json:"age,omitempty" dynamodbav:"age,omitempty"`
	Note            *string     `json:"note,omitempty" dynamodbav:"note,omitempty"`
	Gender          Gender      `json:"gender" dynamodbav:"gender"`
	Major           *string     `json:"major,omitempty" dynamodbav:"major,omitempty"`
	Status          GuestStatus `json:"status" dynamodbav:"status"`
	InvitedBy       *string     `json:"invited_by,omitempty" dynamodbav:"invited_by,omitempty"`
	CheckedInBy     *string     `json:"checked_in_by,omitempty" dynamodbav:"checked_in_by,omitempty"`
	UserID          *string     `json:"user_id,omitempty" dynamodbav:"user_id,omitempty"`
	Timestamp       time.Time   `json:"timestamp" dynamodbav:"timestamp"`

	// University is resolved lazily from UniversityID and never stored.
	University *University `json:"university,omitempty" dynamodbav:"-"`
}

// LinkedUserID returns the platform user behind the guest, or "".
func (g *Guest) LinkedUserID() string {
	if g.UserID == nil {
		return ""
	}
	return *g.UserID
}

// UsernameValue returns the platform username, or "".
func (g *Guest) UsernameValue() string {
	if g.Username == nil {
		return ""
	}
	return *g.Username
}

// UniversityLabel is the best-effort display string for the guest's school.
func (g *Guest) UniversityLabel() string {
	switch {
	case g.University != nil && g.University.ShortName != nil && *g.University.ShortName != "":
		return *g.University.ShortName
	case g.University != nil:
		return g.University.Name
	case g.UniversityID == NoUniversityID:
		return "No university"
	case g.UniversityID != "":
		return g.UniversityID
	default:
		return "Unknown university"
	}
}

// CreateGuestRequest is what a host submits to add someone to the list.
// Exactly one of Username, UserID or the manual fields identifies the guest.
type CreateGuestRequest struct {
	Username     string       `json:"username"`
	UserID       string       `json:"user_id"`
	Name         string       `json:"name" validate:"max=100"`
	UniversityID string       `json:"university_id"`
	Email        *string      `json:"email" validate:"omitempty,email"`
	Age          *int         `json:"age" validate:"omitempty,min=17,max=100"`
	Gender       Gender       `json:"gender" validate:"omitempty,oneof=male female nonBinary other"`
	Note         *string      `json:"note" validate:"omitempty,max=100"`
	Status       *GuestStatus `json:"status" validate:"omitempty,oneof=invited checkedIn"`
}

// Manual reports whether the request describes a guest without a platform account.
func (r CreateGuestRequest) Manual() bool {
	return r.Username == "" && r.UserID == ""
}

// Actor is the host performing a guestlist mutation.
type Actor struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Transition describes the effect of a guestlist operation.
// Applied is false when the operation was a no-op because the guest was
// already in the target state.
type Transition struct {
	Guest    *Guest      `json:"guest,omitempty"`
	From     GuestStatus `json:"from,omitempty"`
	To       GuestStatus `json:"to,omitempty"`
	Applied  bool        `json:"applied"`
	Notified bool        `json:"notified"`
}

// GuestCollection is the change-stream path of an event's guestlist.
func GuestCollection(eventID string) string {
	return "events/" + eventID + "/guestlist"
}
