package domain

import "time"

// Message is a single direct message. Messages are immutable once stored.
type Message struct {
	ID          string    `bson:"_id" json:"id" yaml:"id"`
	SenderID    string    `bson:"sender_id" json:"sender_id" yaml:"sender_id"`
	RecipientID string    `bson:"recipient_id" json:"recipient_id" yaml:"recipient_id"`
	Content     string    `bson:"content" json:"content" yaml:"content"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at" yaml:"created_at"`
}

// TimestampPrecision is the createdAt resolution every store keeps. BSON dates
// hold milliseconds, so finer differences are dropped everywhere.
const TimestampPrecision = time.Millisecond

// Normalized returns m with CreatedAt in UTC, truncated to TimestampPrecision.
func (m Message) Normalized() Message {
	m.CreatedAt = m.CreatedAt.UTC().Truncate(TimestampPrecision)
	return m
}

// Counterpart returns the participant that is not userID.
// ok is false when userID did not take part in the message.
func (m Message) Counterpart(userID string) (string, bool) {
	switch userID {
	case m.SenderID:
		return m.RecipientID, true
	case m.RecipientID:
		return m.SenderID, true
	}
	return "", false
}

// Newer reports whether m supersedes o as the latest message of a conversation.
// Equal timestamps fall back to the greater id.
func (m Message) Newer(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.After(o.CreatedAt)
	}
	return m.ID > o.ID
}

type User struct {
	ID             string  `bson:"_id" json:"id" yaml:"id"`
	Name           *string `bson:"name,omitempty" json:"name" yaml:"name"`
	ProfilePicture *string `bson:"profile_picture,omitempty" json:"profile_picture" yaml:"profile_picture"`
}
