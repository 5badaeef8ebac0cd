package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/fathima-sithara/chatlist-service/internal/cache"
	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"github.com/fathima-sithara/chatlist-service/internal/events"
	"github.com/fathima-sithara/chatlist-service/internal/metrics"
	"github.com/fathima-sithara/chatlist-service/internal/repository"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

func memoryStore(t *testing.T, users []domain.User, msgs []domain.Message) *repository.MemoryStore {
	t.Helper()
	s := repository.NewMemoryStore()
	for _, u := range users {
		require.NoError(t, s.UpsertUser(context.Background(), u))
	}
	for _, m := range msgs {
		require.NoError(t, s.SaveMessage(context.Background(), m))
	}
	return s
}

type countingStore struct {
	Store
	calls atomic.Int32
}

func (c *countingStore) LatestPerCounterpart(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	c.calls.Add(1)
	return c.Store.LatestPerCounterpart(ctx, userID)
}

// hookStore runs afterRead once, after the first read has been answered.
type hookStore struct {
	Store
	once      sync.Once
	afterRead func()
}

func (h *hookStore) LatestPerCounterpart(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	out, err := h.Store.LatestPerCounterpart(ctx, userID)
	h.once.Do(h.afterRead)
	return out, err
}

type failingStore struct {
	err   error
	calls atomic.Int32
}

func (f *failingStore) LatestPerCounterpart(context.Context, string) ([]domain.ConversationSummary, error) {
	f.calls.Add(1)
	return nil, f.err
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]domain.ConversationSummary
	getErr  error

	// beforeSet runs once, ahead of the next write.
	beforeSet func()
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]domain.ConversationSummary{}}
}

func (c *mapCache) Get(_ context.Context, userID string) ([]domain.ConversationSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	s, ok := c.entries[userID]
	if !ok {
		return nil, cache.ErrMiss
	}
	return append([]domain.ConversationSummary(nil), s...), nil
}

func (c *mapCache) Set(_ context.Context, userID string, s []domain.ConversationSummary, _ time.Duration) error {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = append([]domain.ConversationSummary(nil), s...)
	return nil
}

func (c *mapCache) Delete(_ context.Context, userIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.entries, id)
	}
	return nil
}

type fakeAvatars struct{}

func (fakeAvatars) AvatarURL(_ context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "broken") {
		return "", errors.New("presign failed")
	}
	return "https://signed.example/" + ref, nil
}

func TestListConversationsReplyIsLatest(t *testing.T) {
	store := memoryStore(t, nil, []domain.Message{
		{ID: "m1", SenderID: "A", RecipientID: "B", Content: "hi", CreatedAt: t0},
		{ID: "m2", SenderID: "B", RecipientID: "A", Content: "hey", CreatedAt: t0.Add(time.Minute)},
	})
	svc := NewConversationService(store, nil)

	got, err := svc.ListConversations(context.Background(), "A")
	require.NoError(t, err)

	want := []domain.LatestMessageRecord{{
		OtherUserID: "B",
		Content:     ptr("hey"),
		Timestamp:   func() *time.Time { ts := t0.Add(time.Minute); return &ts }(),
	}}
	if diff := cmp.Diff(want, domain.Records(got)); diff != "" {
		t.Errorf("ListConversations() mismatch (-want +got):\n%s", diff)
	}
}

func TestListConversationsEmpty(t *testing.T) {
	svc := NewConversationService(memoryStore(t, nil, nil), nil)
	got, err := svc.ListConversations(context.Background(), "A")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListConversationsRejectsMissingUser(t *testing.T) {
	store := &countingStore{Store: memoryStore(t, nil, nil)}
	svc := NewConversationService(store, nil)

	for _, id := range []string{"", "   "} {
		_, err := svc.ListConversations(context.Background(), id)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	}
	assert.Zero(t, store.calls.Load())
}

func TestListConversationsErrorsStayDistinct(t *testing.T) {
	for _, sentinel := range []error{apperr.ErrUnavailable, apperr.ErrMalformed} {
		svc := NewConversationService(&failingStore{err: fmt.Errorf("store: %w", sentinel)}, nil)
		_, err := svc.ListConversations(context.Background(), "A")
		assert.ErrorIs(t, err, sentinel)
	}
}

func TestBreakerOpensOnUnavailableStore(t *testing.T) {
	store := &failingStore{err: fmt.Errorf("mongo: %w", apperr.ErrUnavailable)}
	svc := NewConversationService(store, nil, WithBreaker(BreakerConfig{MaxFailures: 2, Timeout: time.Hour}))

	for i := 0; i < 2; i++ {
		_, err := svc.ListConversations(context.Background(), "A")
		require.ErrorIs(t, err, apperr.ErrUnavailable)
	}
	_, err := svc.ListConversations(context.Background(), "A")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestMalformedDoesNotTripBreaker(t *testing.T) {
	store := &failingStore{err: fmt.Errorf("decode: %w", apperr.ErrMalformed)}
	svc := NewConversationService(store, nil, WithBreaker(BreakerConfig{MaxFailures: 1, Timeout: time.Hour}))

	for i := 0; i < 3; i++ {
		_, err := svc.ListConversations(context.Background(), "A")
		assert.ErrorIs(t, err, apperr.ErrMalformed)
	}
	assert.Equal(t, int32(3), store.calls.Load())
}

func TestCacheReadThroughAndInvalidation(t *testing.T) {
	mem := memoryStore(t, nil, []domain.Message{
		{ID: "m1", SenderID: "A", RecipientID: "B", Content: "hi", CreatedAt: t0},
	})
	store := &countingStore{Store: mem}
	c := newMapCache()
	m := metrics.New()
	svc := NewConversationService(store, nil, WithCache(c, time.Minute), WithMetrics(m))
	ctx := context.Background()

	first, err := svc.ListConversations(ctx, "A")
	require.NoError(t, err)
	second, err := svc.ListConversations(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), store.calls.Load())

	require.NoError(t, mem.SaveMessage(ctx, domain.Message{ID: "m2", SenderID: "B", RecipientID: "A", Content: "new", CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, svc.OnMessageCreated(ctx, events.MessageCreated{MessageID: "m2", SenderID: "B", RecipientID: "A"}))

	third, err := svc.ListConversations(ctx, "A")
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "new", third[0].LastMessageContent)
	assert.Equal(t, int32(2), store.calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Invalidated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Requests.WithLabelValues("ok")))
}

func TestInvalidationDuringReadIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	mem := memoryStore(t, nil, []domain.Message{
		{ID: "m1", SenderID: "A", RecipientID: "B", Content: "old", CreatedAt: t0},
	})
	c := newMapCache()
	m := metrics.New()
	var svc *ConversationService
	store := &hookStore{Store: mem, afterRead: func() {
		require.NoError(t, mem.SaveMessage(ctx, domain.Message{ID: "m2", SenderID: "B", RecipientID: "A", Content: "new", CreatedAt: t0.Add(time.Minute)}))
		require.NoError(t, svc.OnMessageCreated(ctx, events.MessageCreated{MessageID: "m2", SenderID: "B", RecipientID: "A"}))
	}}
	svc = NewConversationService(store, nil, WithCache(c, time.Minute), WithMetrics(m))

	first, err := svc.ListConversations(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "old", first[0].LastMessageContent)
	_, cached := c.entries["A"]
	assert.False(t, cached)

	next, err := svc.ListConversations(ctx, "A")
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "new", next[0].LastMessageContent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("skipped")))
}

func TestInvalidationRacingCacheWriteDropsEntry(t *testing.T) {
	ctx := context.Background()
	mem := memoryStore(t, nil, []domain.Message{
		{ID: "m1", SenderID: "A", RecipientID: "B", Content: "old", CreatedAt: t0},
	})
	c := newMapCache()
	svc := NewConversationService(mem, nil, WithCache(c, time.Minute))
	c.beforeSet = func() {
		require.NoError(t, mem.SaveMessage(ctx, domain.Message{ID: "m2", SenderID: "B", RecipientID: "A", Content: "new", CreatedAt: t0.Add(time.Minute)}))
		require.NoError(t, svc.OnMessageCreated(ctx, events.MessageCreated{MessageID: "m2", SenderID: "B", RecipientID: "A"}))
	}

	_, err := svc.ListConversations(ctx, "A")
	require.NoError(t, err)
	_, cached := c.entries["A"]
	assert.False(t, cached)

	next, err := svc.ListConversations(ctx, "A")
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "new", next[0].LastMessageContent)
}

func TestCacheFailureFallsBackToStore(t *testing.T) {
	store := &countingStore{Store: memoryStore(t, nil, []domain.Message{
		{ID: "m1", SenderID: "A", RecipientID: "B", Content: "hi", CreatedAt: t0},
	})}
	c := newMapCache()
	c.getErr = errors.New("redis down")
	svc := NewConversationService(store, nil, WithCache(c, time.Minute))

	got, err := svc.ListConversations(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestAvatarResolution(t *testing.T) {
	store := memoryStore(t,
		[]domain.User{
			{ID: "B", ProfilePicture: ptr("avatars/b.png")},
			{ID: "C", ProfilePicture: ptr("broken/c.png")},
			{ID: "D", ProfilePicture: ptr("")},
		},
		[]domain.Message{
			{ID: "m1", SenderID: "A", RecipientID: "B", Content: "b", CreatedAt: t0.Add(3 * time.Minute)},
			{ID: "m2", SenderID: "A", RecipientID: "C", Content: "c", CreatedAt: t0.Add(2 * time.Minute)},
			{ID: "m3", SenderID: "A", RecipientID: "D", Content: "d", CreatedAt: t0.Add(time.Minute)},
			{ID: "m4", SenderID: "A", RecipientID: "E", Content: "e", CreatedAt: t0},
		})
	c := newMapCache()
	svc := NewConversationService(store, nil, WithAvatars(fakeAvatars{}), WithCache(c, time.Minute))

	got, err := svc.ListConversations(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "https://signed.example/avatars/b.png", *got[0].CounterpartAvatar)
	assert.Nil(t, got[1].CounterpartAvatar)
	assert.Nil(t, got[2].CounterpartAvatar)
	assert.Nil(t, got[3].CounterpartAvatar)

	cached, err := c.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "avatars/b.png", *cached[0].CounterpartAvatar)
}

func TestConcurrentUsersAreIsolated(t *testing.T) {
	var msgs []domain.Message
	users := []string{"u0", "u1", "u2", "u3", "u4"}
	for i, u := range users {
		msgs = append(msgs, domain.Message{
			ID: fmt.Sprintf("m%d", i), SenderID: "peer-" + u, RecipientID: u, Content: "for " + u, CreatedAt: t0,
		})
	}
	svc := NewConversationService(memoryStore(t, nil, msgs), nil, WithCache(newMapCache(), time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		for _, u := range users {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				got, err := svc.ListConversations(context.Background(), u)
				if assert.NoError(t, err) && assert.Len(t, got, 1) {
					assert.Equal(t, "peer-"+u, got[0].CounterpartID)
					assert.Equal(t, "for "+u, got[0].LastMessageContent)
				}
			}(u)
		}
	}
	wg.Wait()
}
