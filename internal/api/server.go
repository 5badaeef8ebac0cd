package api

import (
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/logger"
	"github.com/fathima-sithara/chatlist-service/internal/metrics"
	"github.com/fathima-sithara/chatlist-service/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Deps struct {
	Service     ConversationLister
	Validator   middleware.TokenValidator
	RateLimiter *middleware.IPRateLimiter
	Metrics     *metrics.Metrics
	Log         *zap.Logger
	Timeout     time.Duration
}

func NewServer(d Deps) *fiber.App {
	d.Log = logger.OrNop(d.Log)
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.RequestLogger(d.Log))

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	h := NewHandlers(d.Service, d.Timeout, d.Log)
	guard := []fiber.Handler{}
	if d.RateLimiter != nil {
		guard = append(guard, d.RateLimiter.Handler())
	}
	guard = append(guard, middleware.Bearer(d.Validator))

	rpc := app.Group("/rpc", guard...)
	rpc.Post("/get_latest_messages", h.getLatestMessages)

	v1 := app.Group("/v1", guard...)
	v1.Get("/conversations", h.listConversations)

	return app
}
