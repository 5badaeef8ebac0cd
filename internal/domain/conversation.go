package domain

import (
	"sort"
	"time"
)

const UnknownName = "Unknown"

// ConversationSummary is the latest message exchanged with one counterpart.
// It is derived on every read and never persisted.
type ConversationSummary struct {
	CounterpartID      string    `bson:"_id" json:"counterpart_id"`
	CounterpartName    *string   `bson:"name,omitempty" json:"counterpart_name"`
	CounterpartAvatar  *string   `bson:"profile_picture,omitempty" json:"counterpart_avatar_url"`
	LastMessageID      string    `bson:"message_id" json:"last_message_id"`
	LastMessageContent string    `bson:"content" json:"last_message_content"`
	LastMessageAt      time.Time `bson:"created_at" json:"last_message_timestamp"`
}

// DisplayName returns the counterpart name or UnknownName when it is unset.
func (s ConversationSummary) DisplayName() string {
	if s.CounterpartName == nil || *s.CounterpartName == "" {
		return UnknownName
	}
	return *s.CounterpartName
}

// Record converts the summary into the RPC boundary shape.
func (s ConversationSummary) Record() LatestMessageRecord {
	ts := s.LastMessageAt.UTC()
	content := s.LastMessageContent
	return LatestMessageRecord{
		OtherUserID:    s.CounterpartID,
		Name:           s.CounterpartName,
		Content:        &content,
		Timestamp:      &ts,
		ProfilePicture: s.CounterpartAvatar,
	}
}

// SortSummaries orders newest first. Equal timestamps are ordered by counterpart id.
func SortSummaries(s []ConversationSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].LastMessageAt.Equal(s[j].LastMessageAt) {
			return s[i].LastMessageAt.After(s[j].LastMessageAt)
		}
		return s[i].CounterpartID < s[j].CounterpartID
	})
}
