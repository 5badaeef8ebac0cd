package chatlist

import (
	"context"
	"errors"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/fathima-sithara/chatlist-service/internal/auth"
	"github.com/fathima-sithara/chatlist-service/internal/domain"
)

const (
	ChatRoute    = "/(app)/chat"
	ExploreRoute = "/(app)/users"
)

type Identity interface {
	CurrentUser(ctx context.Context) (auth.CurrentUser, error)
}

type Aggregator interface {
	LatestMessages(ctx context.Context, currentUserID string) ([]domain.LatestMessageRecord, error)
}

type Navigator interface {
	Navigate(route string, params map[string]string) error
}

// Notification is a dismissible alert shown to the user.
type Notification struct {
	Title   string
	Message string
	Err     error
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

const (
	titleIdentity = "Error"
	titleFetch    = "Error fetching chats"
)

func notificationFor(title string, err error) Notification {
	msg := err.Error()
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		msg = "Your session has expired. Please sign in again."
	case errors.Is(err, apperr.ErrUnavailable):
		msg = "Could not reach the server. Pull to refresh to try again."
	case errors.Is(err, apperr.ErrMalformed):
		msg = "Received an unexpected response from the server."
	}
	return Notification{Title: title, Message: msg, Err: err}
}
