package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/fathima-sithara/chatlist-service/internal/domain"
)

// ConversationStore computes conversation summaries inside the storage engine.
type ConversationStore interface {
	// LatestPerCounterpart returns one summary per counterpart of userID, newest first.
	LatestPerCounterpart(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Seeder writes fixture data. Messages are insert-only.
type Seeder interface {
	UpsertUser(ctx context.Context, u domain.User) error
	SaveMessage(ctx context.Context, m domain.Message) error
}

type Store interface {
	ConversationStore
	Seeder
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, apperr.ErrUnavailable, err)
}

func malformed(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, apperr.ErrMalformed, err)
}

var errMissingCounterpart = errors.New("summary without counterpart id")

// checkSummaries rejects rows the engine produced without a counterpart.
func checkSummaries(op string, out []domain.ConversationSummary) error {
	for _, s := range out {
		if s.CounterpartID == "" {
			return malformed(op, errMissingCounterpart)
		}
	}
	return nil
}
