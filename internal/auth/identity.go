package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

type CurrentUser struct {
	ID    string
	Name  string
	Token string
}

// TokenSource yields the session token held by the client.
type TokenSource func(ctx context.Context) (string, error)

func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// FileToken reads the token from path on every call so a refreshed session is picked up.
func FileToken(path string) TokenSource {
	return func(context.Context) (string, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
}

// TokenIdentity resolves the signed-in user from the client session token.
// The signature is checked by the server; here only presence, expiry and subject matter.
type TokenIdentity struct {
	source TokenSource
	now    func() time.Time
}

func NewTokenIdentity(src TokenSource) *TokenIdentity {
	return &TokenIdentity{source: src, now: time.Now}
}

func (i *TokenIdentity) CurrentUser(ctx context.Context) (CurrentUser, error) {
	raw, err := i.source(ctx)
	if err != nil {
		return CurrentUser{}, err
	}
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "Bearer ")
	if raw == "" {
		return CurrentUser{}, fmt.Errorf("%w: no session", apperr.ErrUnauthorized)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return CurrentUser{}, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return CurrentUser{}, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	if exp != nil && !i.now().Before(exp.Time) {
		return CurrentUser{}, fmt.Errorf("%w: session expired", apperr.ErrUnauthorized)
	}
	id := subject(claims)
	if id == "" {
		return CurrentUser{}, fmt.Errorf("%w: token without subject", apperr.ErrUnauthorized)
	}
	name, _ := claims["name"].(string)
	return CurrentUser{ID: id, Name: name, Token: raw}, nil
}
