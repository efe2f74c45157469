package dynamo

// DynamoDB attribute names used in key, condition and update expressions
// across all repos. Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldGuestID        = "guest_id"
	fieldEventID        = "event_id"
	fieldUserID         = "user_id"
	fieldUsername       = "username"
	fieldUniversityID   = "university_id"
	fieldNotificationID = "notification_id"
	fieldStatus         = "status"
	fieldCreatedAt      = "created_at"
	fieldLastViewedAt   = "last_viewed_at"
)

// Secondary index names.
const (
	indexGuestUsername   = "event_id-username-index"
	indexUserUsername    = "username-index"
	indexUserCreatedAt   = "user_id-created_at-index"
)
