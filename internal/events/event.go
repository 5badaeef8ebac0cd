package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/domain"
)

// MessageCreated is published by the message writer for every stored message.
type MessageCreated struct {
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewMessageCreated(m domain.Message) MessageCreated {
	return MessageCreated{
		MessageID:   m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		CreatedAt:   m.CreatedAt,
	}
}

// Participants returns the users whose conversation lists changed.
func (e MessageCreated) Participants() []string {
	if e.SenderID == e.RecipientID {
		return []string{e.SenderID}
	}
	return []string{e.SenderID, e.RecipientID}
}

func DecodeMessageCreated(b []byte) (MessageCreated, error) {
	var e MessageCreated
	if err := json.Unmarshal(b, &e); err != nil {
		return e, fmt.Errorf("decode message.created: %w", err)
	}
	if e.SenderID == "" || e.RecipientID == "" {
		return e, errors.New("message.created without participants")
	}
	return e, nil
}
