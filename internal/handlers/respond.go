package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/apperr"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindForbidden:
		return fiber.StatusForbidden
	case apperr.KindValidation, apperr.KindInvalidState:
		return fiber.StatusBadRequest
	case apperr.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Internal(err, "Internal server error")
	}
	if e.Kind == apperr.KindInternal {
		log.Printf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
	}

	body := fiber.Map{
		"success": false,
		"message": e.Message,
	}
	if e.Code != "" {
		body["code"] = e.Code
	}
	if len(e.Fields) > 0 {
		body["errors"] = e.Fields
	}
	return c.Status(statusFor(e.Kind)).JSON(body)
}

func respondOK(c *fiber.Ctx, status int, message string, data interface{}) error {
	body := fiber.Map{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Invalid body",
		"code":    apperr.CodeValidation,
	})
}

// ErrorHandler renders errors that escape a handler, such as fiber.ErrUnauthorized
// from the auth middleware, in the same envelope as everything else.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"success": false,
			"message": fe.Message,
		})
	}
	return respondError(c, err)
}

func getAuth(c *fiber.Ctx) (uuid.UUID, error) {
	rawID, ok := c.Locals("userId").(string)
	if !ok || rawID == "" {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	uID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "invalid user id")
	}
	return uID, nil
}

// paramUUID parses the named route param; a malformed id cannot exist, so it is a 404.
func paramUUID(c *fiber.Ctx, name, notFound string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.NotFound(notFound)
	}
	return id, nil
}
