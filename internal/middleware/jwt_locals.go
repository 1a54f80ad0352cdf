package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/utils"
)

func attach(c *fiber.Ctx, claims *utils.Claims) error {
	uid := strings.TrimSpace(claims.UserID)
	if _, err := uuid.Parse(uid); err != nil {
		return fiber.ErrUnauthorized
	}
	c.Locals("user", claims)
	c.Locals("userId", uid)
	return nil
}
