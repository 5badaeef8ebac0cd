package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrMiss = errors.New("cache miss")

const keyPrefix = "chatlist:summaries:"

func summaryKey(userID string) string { return keyPrefix + userID }

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SummaryCache stores the computed conversation list of each user.
type SummaryCache struct {
	rdb *redis.Client
}

func NewRedis(ctx context.Context, cfg RedisConfig) (*SummaryCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &SummaryCache{rdb: rdb}, nil
}

func NewSummaryCache(rdb *redis.Client) *SummaryCache {
	return &SummaryCache{rdb: rdb}
}

func (c *SummaryCache) Get(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	b, err := c.rdb.Get(ctx, summaryKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var out []domain.ConversationSummary
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode cached summaries: %w", err)
	}
	return out, nil
}

func (c *SummaryCache) Set(ctx context.Context, userID string, s []domain.ConversationSummary, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, summaryKey(userID), b, ttl).Err()
}

func (c *SummaryCache) Delete(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, summaryKey(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *SummaryCache) Close() error {
	return c.rdb.Close()
}
