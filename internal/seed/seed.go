package seed

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"github.com/fathima-sithara/chatlist-service/internal/events"
	"github.com/fathima-sithara/chatlist-service/internal/repository"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML seed document.
type Fixture struct {
	Users    []domain.User    `yaml:"users"`
	Messages []domain.Message `yaml:"messages"`
}

type Publisher interface {
	PublishMessageCreated(ctx context.Context, e events.MessageCreated) error
}

type Stats struct {
	Users    int
	Messages int
}

func Load(fs afero.Fs, path string) (*Fixture, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := f.normalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

func (f *Fixture) normalize() error {
	for i, u := range f.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id required", i)
		}
	}
	for i := range f.Messages {
		m := &f.Messages[i]
		if m.SenderID == "" || m.RecipientID == "" {
			return fmt.Errorf("messages[%d]: sender_id and recipient_id required", i)
		}
		if m.CreatedAt.IsZero() {
			return fmt.Errorf("messages[%d]: created_at required", i)
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		*m = m.Normalized()
	}
	return nil
}

// Apply writes the fixture into s. When pub is set every message is also announced.
func Apply(ctx context.Context, s repository.Seeder, f *Fixture, pub Publisher) (Stats, error) {
	var st Stats
	for _, u := range f.Users {
		if err := s.UpsertUser(ctx, u); err != nil {
			return st, err
		}
		st.Users++
	}
	for _, m := range f.Messages {
		if err := s.SaveMessage(ctx, m); err != nil {
			return st, err
		}
		if pub != nil {
			if err := pub.PublishMessageCreated(ctx, events.NewMessageCreated(m)); err != nil {
				return st, fmt.Errorf("publish %s: %w", m.ID, err)
			}
		}
		st.Messages++
	}
	return st, nil
}
