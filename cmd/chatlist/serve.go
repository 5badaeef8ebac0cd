package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/api"
	"github.com/fathima-sithara/chatlist-service/internal/auth"
	"github.com/fathima-sithara/chatlist-service/internal/cache"
	"github.com/fathima-sithara/chatlist-service/internal/config"
	"github.com/fathima-sithara/chatlist-service/internal/events"
	"github.com/fathima-sithara/chatlist-service/internal/logger"
	"github.com/fathima-sithara/chatlist-service/internal/metrics"
	"github.com/fathima-sithara/chatlist-service/internal/middleware"
	"github.com/fathima-sithara/chatlist-service/internal/repository"
	"github.com/fathima-sithara/chatlist-service/internal/seed"
	"github.com/fathima-sithara/chatlist-service/internal/service"
	"github.com/fathima-sithara/chatlist-service/internal/storage"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(configPath *string) *cobra.Command {
	var fixture string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation aggregation HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			if err := checkServeStore(cfg.Store.Driver, fixture); err != nil {
				return err
			}
			log, err := logger.New(cfg.App.Development(), cfg.App.Name)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, fixture, log)
		},
	}
	cmd.Flags().StringVarP(&fixture, "fixture", "f", "", "YAML fixture loaded into the store before serving (required for store.driver=memory)")
	return cmd
}

// checkServeStore rejects a memory store without a fixture: nothing else can
// write into the serving process.
func checkServeStore(driver, fixture string) error {
	if driver == "memory" && fixture == "" {
		return errors.New("store.driver=memory needs --fixture; seed cannot reach another process's memory")
	}
	return nil
}

// preload applies the fixture at path to s.
func preload(ctx context.Context, s repository.Seeder, path string) (seed.Stats, error) {
	f, err := seed.Load(afero.NewOsFs(), path)
	if err != nil {
		return seed.Stats{}, err
	}
	return seed.Apply(ctx, s, f, nil)
}

func serve(ctx context.Context, cfg *config.Config, fixture string, log *zap.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	if fixture != "" {
		st, err := preload(ctx, store, fixture)
		if err != nil {
			return fmt.Errorf("preload %s: %w", fixture, err)
		}
		log.Info("fixture loaded", zap.String("file", fixture), zap.Int("users", st.Users), zap.Int("messages", st.Messages))
	}

	m := metrics.New()
	opts := []service.Option{
		service.WithMetrics(m),
		service.WithBreaker(service.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Interval:    time.Duration(cfg.Breaker.IntervalSec) * time.Second,
			Timeout:     time.Duration(cfg.Breaker.TimeoutSec) * time.Second,
		}),
	}

	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cache.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer rc.Close()
		opts = append(opts, service.WithCache(rc, cfg.SummaryTTL))
	}

	if cfg.AWS.Bucket != "" {
		avatars, err := storage.NewS3Avatars(ctx, cfg.AWS.Region, cfg.AWS.Bucket, cfg.AWS.Endpoint, cfg.PresignTTL)
		if err != nil {
			return fmt.Errorf("s3 init: %w", err)
		}
		opts = append(opts, service.WithAvatars(avatars))
	}

	svc := service.NewConversationService(store, log, opts...)

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, svc.OnMessageCreated); err != nil {
				log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	jv, err := auth.NewValidator(cfg.JWT.Alg, cfg.JWT.PublicKeyPath, cfg.JWT.HSSecret)
	if err != nil {
		return fmt.Errorf("jwt init: %w", err)
	}

	app := api.NewServer(api.Deps{
		Service:     svc,
		Validator:   jv,
		RateLimiter: middleware.NewIPRateLimiter(ctx, cfg.App.RateLimitPerMin, 10, log),
		Metrics:     m,
		Log:         log,
		Timeout:     2 * cfg.QueryTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		log.Info("starting chatlist service", zap.String("addr", addr), zap.String("store", cfg.Store.Driver))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown requested")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("shutdown completed")
	return nil
}
