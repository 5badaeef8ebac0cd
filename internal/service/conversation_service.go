package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/fathima-sithara/chatlist-service/internal/cache"
	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"github.com/fathima-sithara/chatlist-service/internal/events"
	"github.com/fathima-sithara/chatlist-service/internal/logger"
	"github.com/fathima-sithara/chatlist-service/internal/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type Store interface {
	LatestPerCounterpart(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
}

type Cache interface {
	Get(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	Set(ctx context.Context, userID string, s []domain.ConversationSummary, ttl time.Duration) error
	Delete(ctx context.Context, userIDs ...string) error
}

type AvatarResolver interface {
	AvatarURL(ctx context.Context, ref string) (string, error)
}

type BreakerConfig struct {
	MaxFailures int
	Interval    time.Duration
	Timeout     time.Duration
}

// ConversationService answers the chat list query for one user at a time.
// It holds no per-user state besides the cache entries keyed by user id.
type ConversationService struct {
	store    Store
	cache    Cache
	cacheTTL time.Duration
	avatars  AvatarResolver
	breaker  *gobreaker.CircuitBreaker
	metrics  *metrics.Metrics
	log      *zap.Logger

	// epochs counts invalidations per user so a list read before an
	// invalidation is never written back to the cache.
	epochMu sync.Mutex
	epochs  map[string]uint64
}

type Option func(*ConversationService)

func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *ConversationService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithAvatars(a AvatarResolver) Option {
	return func(s *ConversationService) { s.avatars = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ConversationService) { s.metrics = m }
}

func WithBreaker(cfg BreakerConfig) Option {
	return func(s *ConversationService) { s.breaker = newBreaker(cfg, s.log) }
}

func NewConversationService(store Store, log *zap.Logger, opts ...Option) *ConversationService {
	log = logger.OrNop(log)
	s := &ConversationService{store: store, log: log, epochs: map[string]uint64{}}
	for _, o := range opts {
		o(s)
	}
	if s.breaker == nil {
		s.breaker = newBreaker(BreakerConfig{}, log)
	}
	return s
}

func newBreaker(cfg BreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "conversation-store",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, apperr.ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// ListConversations returns one summary per counterpart of userID, newest first.
func (s *ConversationService) ListConversations(ctx context.Context, userID string) (out []domain.ConversationSummary, err error) {
	start := time.Now()
	defer func() { s.observe(start, err) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("list conversations: %w: missing user id", apperr.ErrUnauthorized)
	}

	loaded, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	out = append([]domain.ConversationSummary{}, loaded...)
	s.resolveAvatars(ctx, out)
	return out, nil
}

func (s *ConversationService) load(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, userID)
		switch {
		case err == nil:
			s.countCache("hit")
			return cached, nil
		case errors.Is(err, cache.ErrMiss):
			s.countCache("miss")
		default:
			s.countCache("error")
			s.log.Warn("summary cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	epoch := s.epoch(userID)
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.store.LatestPerCounterpart(ctx, userID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("list conversations: %w: %v", apperr.ErrUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := res.([]domain.ConversationSummary)

	if s.cache != nil {
		s.remember(ctx, userID, out, epoch)
	}
	return out, nil
}

// remember writes out to the cache unless userID was invalidated since epoch was
// taken. An invalidation racing with the write removes the entry again.
func (s *ConversationService) remember(ctx context.Context, userID string, out []domain.ConversationSummary, epoch uint64) {
	if s.epoch(userID) != epoch {
		s.countCache("skipped")
		return
	}
	if err := s.cache.Set(ctx, userID, out, s.cacheTTL); err != nil {
		s.log.Warn("summary cache write failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if s.epoch(userID) != epoch {
		s.countCache("skipped")
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.log.Warn("summary cache delete failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (s *ConversationService) epoch(userID string) uint64 {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	return s.epochs[userID]
}

func (s *ConversationService) bump(userIDs []string) {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	for _, id := range userIDs {
		s.epochs[id]++
	}
}

func (s *ConversationService) resolveAvatars(ctx context.Context, out []domain.ConversationSummary) {
	if s.avatars == nil {
		return
	}
	for i := range out {
		ref := out[i].CounterpartAvatar
		if ref == nil || *ref == "" {
			out[i].CounterpartAvatar = nil
			continue
		}
		url, err := s.avatars.AvatarURL(ctx, *ref)
		if err != nil {
			s.log.Warn("avatar url", zap.String("counterpart_id", out[i].CounterpartID), zap.Error(err))
			out[i].CounterpartAvatar = nil
			continue
		}
		out[i].CounterpartAvatar = &url
	}
}

// Invalidate drops the cached lists of userIDs.
func (s *ConversationService) Invalidate(ctx context.Context, userIDs ...string) error {
	if s.cache == nil || len(userIDs) == 0 {
		return nil
	}
	s.bump(userIDs)
	if err := s.cache.Delete(ctx, userIDs...); err != nil {
		return fmt.Errorf("invalidate summaries: %w", err)
	}
	if s.metrics != nil {
		s.metrics.Invalidated.Add(float64(len(userIDs)))
	}
	return nil
}

// OnMessageCreated is the events.Handler that keeps cached lists fresh.
func (s *ConversationService) OnMessageCreated(ctx context.Context, e events.MessageCreated) error {
	return s.Invalidate(ctx, e.Participants()...)
}

func (s *ConversationService) observe(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.Latency.Observe(time.Since(start).Seconds())
	s.metrics.Requests.WithLabelValues(outcome(err)).Inc()
}

func (s *ConversationService) countCache(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperr.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, apperr.ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
