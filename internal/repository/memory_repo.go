package repository

import (
	"context"
	"sync"

	"github.com/fathima-sithara/chatlist-service/internal/domain"
)

// MemoryStore keeps messages in process. It is used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]domain.Message
	users    map[string]domain.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: map[string]domain.Message{},
		users:    map[string]domain.User{},
	}
}

func (s *MemoryStore) UpsertUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) SaveMessage(_ context.Context, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; !ok {
		s.messages[m.ID] = m.Normalized()
	}
	return nil
}

func (s *MemoryStore) LatestPerCounterpart(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("memory latest", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		msgs = append(msgs, m)
	}
	return Reduce(userID, msgs, s.users), nil
}

func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

// Reduce groups msgs by the counterpart of userID and keeps the newest message of each group.
func Reduce(userID string, msgs []domain.Message, users map[string]domain.User) []domain.ConversationSummary {
	latest := make(map[string]domain.Message)
	for _, m := range msgs {
		c, ok := m.Counterpart(userID)
		if !ok {
			continue
		}
		if cur, seen := latest[c]; !seen || m.Newer(cur) {
			latest[c] = m
		}
	}

	out := make([]domain.ConversationSummary, 0, len(latest))
	for c, m := range latest {
		s := domain.ConversationSummary{
			CounterpartID:      c,
			LastMessageID:      m.ID,
			LastMessageContent: m.Content,
			LastMessageAt:      m.CreatedAt,
		}
		if u, ok := users[c]; ok {
			s.CounterpartName = u.Name
			s.CounterpartAvatar = u.ProfilePicture
		}
		out = append(out, s)
	}
	domain.SortSummaries(out)
	return out
}
