package api

import (
	"errors"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/gofiber/fiber/v2"
)

func JSONSuccess(c *fiber.Ctx, status int, payload interface{}) error {
	return c.Status(status).JSON(fiber.Map{"status": "ok", "data": payload})
}

func JSONError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
}

// writeError answers with the status of err's sentinel. Server side failures
// only expose the sentinel text.
func writeError(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	for _, s := range []error{apperr.ErrUnavailable, apperr.ErrMalformed} {
		if errors.Is(err, s) {
			msg = s.Error()
		}
	}
	if status == fiber.StatusInternalServerError {
		msg = "internal error"
	}
	return JSONError(c, status, msg)
}
