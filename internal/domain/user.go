package domain

import "time"

// User is a platform account as seen by the guestlist engine.
type User struct {
	UserID          string    `json:"id" dynamodbav:"user_id"`
	Username        string    `json:"username" dynamodbav:"username"`
	Email           string    `json:"email" dynamodbav:"email"`
	FullName        string    `json:"full_name" dynamodbav:"full_name"`
	UniversityID    string    `json:"university_id" dynamodbav:"university_id"`
	ProfileImageURL *string   `json:"profile_image_url,omitempty" dynamodbav:"profile_image_url,omitempty"`
	Birthday        time.Time `json:"birthday" dynamodbav:"birthday"`
	Gender          Gender    `json:"gender" dynamodbav:"gender"`
	Major           *string   `json:"major,omitempty" dynamodbav:"major,omitempty"`
	CreatedAt       time.Time `json:"created" dynamodbav:"created_at"`
}

// Age returns the user's age in whole years at now, or nil when the
// birthday is unknown.
func (u *User) Age(now time.Time) *int {
	if u.Birthday.IsZero() {
		return nil
	}
	years := now.Year() - u.Birthday.Year()
	if now.YearDay() < u.Birthday.YearDay() {
		years--
	}
	return &years
}
