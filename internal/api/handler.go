package api

import (
	"context"
	"fmt"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"github.com/fathima-sithara/chatlist-service/internal/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ConversationLister interface {
	ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
}

type Handlers struct {
	svc      ConversationLister
	validate *validator.Validate
	timeout  time.Duration
	log      *zap.Logger
}

func NewHandlers(svc ConversationLister, timeout time.Duration, log *zap.Logger) *Handlers {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handlers{svc: svc, validate: validator.New(), timeout: timeout, log: log}
}

// getLatestMessages serves POST /rpc/get_latest_messages. The caller may only
// ask for its own conversations.
func (h *Handlers) getLatestMessages(c *fiber.Ctx) error {
	var req domain.LatestMessagesRequest
	if err := c.BodyParser(&req); err != nil {
		return JSONError(c, fiber.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(req); err != nil {
		return JSONError(c, fiber.StatusBadRequest, "current_user_id is required")
	}
	if req.CurrentUserID != middleware.UserID(c) {
		return writeError(c, fmt.Errorf("%w: current_user_id does not match token", apperr.ErrUnauthorized))
	}

	records, err := h.list(c, req.CurrentUserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(records)
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	records, err := h.list(c, middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return JSONSuccess(c, fiber.StatusOK, records)
}

func (h *Handlers) list(c *fiber.Ctx, userID string) ([]domain.LatestMessageRecord, error) {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()
	out, err := h.svc.ListConversations(ctx, userID)
	if err != nil {
		h.log.Warn("list conversations", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return domain.Records(out), nil
}
