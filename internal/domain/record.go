package domain

import "time"

// LatestMessagesRequest is the body of the get_latest_messages call.
type LatestMessagesRequest struct {
	CurrentUserID string `json:"current_user_id" validate:"required"`
}

// LatestMessageRecord is one row returned by get_latest_messages.
// Field names and nullability are part of the wire contract.
type LatestMessageRecord struct {
	OtherUserID    string     `json:"other_user_id" validate:"required"`
	Name           *string    `json:"name"`
	Content        *string    `json:"content" validate:"required"`
	Timestamp      *time.Time `json:"timestamp" validate:"required"`
	ProfilePicture *string    `json:"profile_picture"`
}

// Records converts a list of summaries keeping their order.
func Records(summaries []ConversationSummary) []LatestMessageRecord {
	out := make([]LatestMessageRecord, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, s.Record())
	}
	return out
}
