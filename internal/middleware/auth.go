package middleware

import (
	"errors"
	"strings"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/gofiber/fiber/v2"
)

const UserIDKey = "user_id"

type TokenValidator interface {
	Validate(token string) (string, error)
}

// Bearer authenticates the request and stores the token subject under UserIDKey.
func Bearer(jv TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		hdr := c.Get(fiber.HeaderAuthorization)
		if hdr == "" {
			return unauthorized(c, "missing auth")
		}
		const pref = "Bearer "
		if len(hdr) <= len(pref) || !strings.EqualFold(hdr[:len(pref)], pref) {
			return unauthorized(c, "invalid auth")
		}
		sub, err := jv.Validate(hdr[len(pref):])
		if err != nil {
			msg := "invalid token"
			if !errors.Is(err, apperr.ErrUnauthorized) {
				msg = err.Error()
			}
			return unauthorized(c, msg)
		}
		c.Locals(UserIDKey, sub)
		return c.Next()
	}
}

// UserID returns the authenticated subject, or "" outside of Bearer.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": msg})
}
