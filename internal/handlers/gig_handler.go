package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/services/gigs"
)

type GigHandler struct {
	Gigs *gigs.Service
}

func NewGigHandler(svc *gigs.Service) *GigHandler {
	return &GigHandler{Gigs: svc}
}

func (h *GigHandler) Routes(r fiber.Router, authMiddleware fiber.Handler) {
	r.Post("/gigs", authMiddleware, h.Create)
	r.Get("/gigs/my/posted", authMiddleware, h.ListMine)
	r.Get("/gigs/:id", h.Get)
	r.Put("/gigs/:id", authMiddleware, h.Update)
	r.Patch("/gigs/:id/cancel", authMiddleware, h.Cancel)
	r.Patch("/gigs/:id/complete", authMiddleware, h.Complete)
	r.Delete("/gigs/:id", authMiddleware, h.Delete)
}

type CreateGigReq struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Budget      float64  `json:"budget"`
	Category    string   `json:"category"`
	Skills      []string `json:"skills"`
	Deadline    string   `json:"deadline"` // RFC3339 or 2006-01-02
}

type UpdateGigReq struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Budget      *float64  `json:"budget"`
	Category    *string   `json:"category"`
	Skills      *[]string `json:"skills"`
	Deadline    *string   `json:"deadline"`
}

func parseDeadline(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		fe := apperr.FieldErrors{}
		fe.Add("deadline", "Deadline must be a valid date")
		return time.Time{}, fe.Err()
	}
	return t, nil
}

func (h *GigHandler) Create(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	var req CreateGigReq
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return respondError(c, err)
	}

	gig, err := h.Gigs.Create(c.UserContext(), userID, gigs.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
		Category:    req.Category,
		Skills:      req.Skills,
		Deadline:    deadline,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusCreated, "Gig posted successfully", gig)
}

func (h *GigHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "Gig not found")
	if err != nil {
		return respondError(c, err)
	}
	detail, err := h.Gigs.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "", detail)
}

func (h *GigHandler) ListMine(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	list, err := h.Gigs.ListMine(c.UserContext(), userID, c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "", list)
}

func (h *GigHandler) Update(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id", "Gig not found")
	if err != nil {
		return respondError(c, err)
	}
	var req UpdateGigReq
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	in := gigs.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
		Category:    req.Category,
		Skills:      req.Skills,
	}
	if req.Deadline != nil {
		d, err := parseDeadline(*req.Deadline)
		if err != nil {
			return respondError(c, err)
		}
		in.Deadline = &d
	}

	gig, err := h.Gigs.Update(c.UserContext(), id, userID, in)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "Gig updated successfully", gig)
}

func (h *GigHandler) Cancel(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id", "Gig not found")
	if err != nil {
		return respondError(c, err)
	}
	gig, err := h.Gigs.Cancel(c.UserContext(), id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "Gig cancelled", gig)
}

func (h *GigHandler) Complete(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id", "Gig not found")
	if err != nil {
		return respondError(c, err)
	}
	gig, err := h.Gigs.Complete(c.UserContext(), id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "Gig marked as completed", gig)
}

func (h *GigHandler) Delete(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id", "Gig not found")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Gigs.Delete(c.UserContext(), id, userID); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "Gig deleted successfully", nil)
}
