package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"github.com/fathima-sithara/chatlist-service/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokens map[string]string

func (v tokens) Validate(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: unknown token", apperr.ErrUnauthorized)
}

type stubLister struct {
	byUser map[string][]domain.ConversationSummary
	err    error
}

func (s stubLister) ListConversations(_ context.Context, userID string) ([]domain.ConversationSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byUser[userID], nil
}

var ts = time.Date(2024, 3, 10, 9, 2, 0, 0, time.UTC)

func newTestApp(l ConversationLister) *fiber.App {
	return NewServer(Deps{
		Service:   l,
		Validator: tokens{"tok-a": "A", "tok-b": "B"},
		Metrics:   metrics.New(),
		Log:       zap.NewNop(),
	})
}

func rpc(t *testing.T, app *fiber.App, token, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest("POST", "/rpc/get_latest_messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func TestGetLatestMessagesWireShape(t *testing.T) {
	name := "Bea"
	app := newTestApp(stubLister{byUser: map[string][]domain.ConversationSummary{
		"A": {
			{CounterpartID: "B", CounterpartName: &name, LastMessageContent: "hey", LastMessageAt: ts},
			{CounterpartID: "C", LastMessageContent: "yo", LastMessageAt: ts.Add(-time.Hour)},
		},
	}})

	status, body := rpc(t, app, "tok-a", `{"current_user_id":"A"}`)
	require.Equal(t, fiber.StatusOK, status, string(body))

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &got))
	want := []map[string]interface{}{
		{"other_user_id": "B", "name": "Bea", "content": "hey", "timestamp": "2024-03-10T09:02:00Z", "profile_picture": nil},
		{"other_user_id": "C", "name": nil, "content": "yo", "timestamp": "2024-03-10T08:02:00Z", "profile_picture": nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestGetLatestMessagesEmpty(t *testing.T) {
	app := newTestApp(stubLister{})
	status, body := rpc(t, app, "tok-a", `{"current_user_id":"A"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestGetLatestMessagesErrors(t *testing.T) {
	tests := []struct {
		name   string
		lister stubLister
		token  string
		body   string
		status int
	}{
		{"no token", stubLister{}, "", `{"current_user_id":"A"}`, fiber.StatusUnauthorized},
		{"bad token", stubLister{}, "nope", `{"current_user_id":"A"}`, fiber.StatusUnauthorized},
		{"other user", stubLister{}, "tok-b", `{"current_user_id":"A"}`, fiber.StatusUnauthorized},
		{"bad json", stubLister{}, "tok-a", `{`, fiber.StatusBadRequest},
		{"missing id", stubLister{}, "tok-a", `{}`, fiber.StatusBadRequest},
		{"store down", stubLister{err: fmt.Errorf("mongo: %w", apperr.ErrUnavailable)}, "tok-a", `{"current_user_id":"A"}`, fiber.StatusServiceUnavailable},
		{"bad rows", stubLister{err: fmt.Errorf("decode: %w", apperr.ErrMalformed)}, "tok-a", `{"current_user_id":"A"}`, fiber.StatusBadGateway},
		{"unexpected", stubLister{err: fmt.Errorf("boom")}, "tok-a", `{"current_user_id":"A"}`, fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := rpc(t, newTestApp(tt.lister), tt.token, tt.body)
			assert.Equal(t, tt.status, status, string(body))
			assert.Contains(t, string(body), `"status":"error"`)
		})
	}
}

func TestErrorBodyHidesInternals(t *testing.T) {
	app := newTestApp(stubLister{err: fmt.Errorf("dial tcp 10.0.0.5:27017: %w", apperr.ErrUnavailable)})
	_, body := rpc(t, app, "tok-a", `{"current_user_id":"A"}`)
	assert.NotContains(t, string(body), "10.0.0.5")
	assert.Contains(t, string(body), apperr.ErrUnavailable.Error())
}

func TestListConversationsRoute(t *testing.T) {
	app := newTestApp(stubLister{byUser: map[string][]domain.ConversationSummary{
		"B": {{CounterpartID: "A", LastMessageContent: "hi", LastMessageAt: ts}},
	}})
	req := httptest.NewRequest("GET", "/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer tok-b")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got struct {
		Status string                       `json:"status"`
		Data   []domain.LatestMessageRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ok", got.Status)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "A", got.Data[0].OtherUserID)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(stubLister{})
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
	}
}
