package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/logger"
	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Discovery resolves a service name to a base URL.
type Discovery interface {
	Lookup(ctx context.Context, service string) (string, error)
}

type Static map[string]string

func (s Static) Lookup(_ context.Context, service string) (string, error) {
	if v, ok := s[service]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("service not found: %s", service)
}

type healthAPI interface {
	Service(service, tag string, passingOnly bool, q *consulapi.QueryOptions) ([]*consulapi.ServiceEntry, *consulapi.QueryMeta, error)
}

// Consul looks up passing instances and caches the answer for ttl.
type Consul struct {
	health healthAPI
	ttl    time.Duration
	log    *zap.Logger

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	urls    []string
	expires time.Time
	next    int
}

func NewConsul(addr string, ttl time.Duration, log *zap.Logger) (*Consul, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return newConsul(client.Health(), ttl, log), nil
}

func newConsul(h healthAPI, ttl time.Duration, log *zap.Logger) *Consul {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Consul{health: h, ttl: ttl, log: logger.OrNop(log), cache: map[string]cached{}}
}

// Lookup rotates over the healthy instances of service.
func (c *Consul) Lookup(ctx context.Context, service string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[service]
	if !ok || time.Now().After(entry.expires) {
		urls, err := c.fetch(ctx, service)
		if err != nil {
			return "", err
		}
		entry = cached{urls: urls, expires: time.Now().Add(c.ttl)}
	}
	url := entry.urls[entry.next%len(entry.urls)]
	entry.next++
	c.cache[service] = entry
	return url, nil
}

func (c *Consul) fetch(ctx context.Context, service string) ([]string, error) {
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	entries, _, err := c.health.Service(service, "", true, q)
	if err != nil {
		return nil, fmt.Errorf("consul lookup %s: %w", service, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no healthy instances for %s", service)
	}
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		addr := e.Service.Address
		if addr == "" {
			addr = e.Node.Address
		}
		urls = append(urls, fmt.Sprintf("http://%s:%d", addr, e.Service.Port))
	}
	c.log.Debug("consul instances", zap.String("service", service), zap.Strings("urls", urls))
	return urls, nil
}

// New prefers Consul when consulAddr is set, otherwise the static map.
func New(consulAddr string, static map[string]string, log *zap.Logger) (Discovery, error) {
	if consulAddr != "" {
		return NewConsul(consulAddr, 30*time.Second, log)
	}
	if len(static) == 0 {
		return nil, fmt.Errorf("client.services or client.consul_addr must be set")
	}
	return Static(static), nil
}
