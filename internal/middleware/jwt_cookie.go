package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gigflow/gigflow-api/internal/utils"
)

const CookieName = "gf_token"

// RequireAuth rejects the request unless it carries a valid session token, and
// exposes the verified user id as c.Locals("userId").
func RequireAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := verify(c, secret)
		if err != nil {
			return err
		}
		if err := attach(c, claims); err != nil {
			return err
		}
		return c.Next()
	}
}

// verify reads the token from the cookie, or from a Bearer Authorization header
// for non-browser clients.
func verify(c *fiber.Ctx, secret string) (*utils.Claims, error) {
	tokenStr := c.Cookies(CookieName)
	if tokenStr == "" {
		if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
			tokenStr = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if tokenStr == "" {
		return nil, fiber.ErrUnauthorized
	}

	claims, err := utils.ParseJWT(secret, tokenStr)
	if err != nil {
		return nil, fiber.ErrUnauthorized
	}
	return claims, nil
}
