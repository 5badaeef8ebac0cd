package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/chatlist-service/internal/config"
	"github.com/fathima-sithara/chatlist-service/internal/repository"
	"go.uber.org/zap"
)

// openStore connects the configured driver and waits for it to answer a ping.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	var (
		store repository.Store
		err   error
	)
	switch cfg.Store.Driver {
	case "mongo":
		client, cerr := repository.NewMongoClient(ctx, cfg.Mongo.URI)
		if cerr != nil {
			return nil, cerr
		}
		store, err = repository.NewMongoStore(ctx, client, cfg.Mongo.Database, cfg.Mongo.MessagesCollection, cfg.Mongo.UsersCollection, cfg.QueryTimeout)
		if err != nil {
			_ = client.Disconnect(ctx)
		}
	case "sqlite":
		store, err = repository.OpenSQLite(ctx, cfg.SQLite.Path, cfg.QueryTimeout)
	case "memory":
		store = repository.NewMemoryStore()
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	ping := func() error { return store.Ping(ctx) }
	notify := func(err error, wait time.Duration) {
		log.Warn("store not ready", zap.String("driver", cfg.Store.Driver), zap.Error(err), zap.Duration("retry_in", wait))
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		_ = store.Close(context.Background())
		return nil, err
	}
	return store, nil
}
