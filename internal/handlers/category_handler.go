package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gigflow/gigflow-api/internal/models"
)

type CategoryHandler struct{}

func NewCategoryHandler() *CategoryHandler {
	return &CategoryHandler{}
}

func (h *CategoryHandler) GetCategories(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    models.Categories,
	})
}
