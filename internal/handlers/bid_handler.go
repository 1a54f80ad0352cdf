package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/services/bidding"
	"github.com/gigflow/gigflow-api/internal/services/hiring"
)

type BidHandler struct {
	Ledger *bidding.Ledger
	Hiring *hiring.Coordinator
}

func NewBidHandler(ledger *bidding.Ledger, coord *hiring.Coordinator) *BidHandler {
	return &BidHandler{Ledger: ledger, Hiring: coord}
}

func (h *BidHandler) Routes(r fiber.Router, authMiddleware fiber.Handler) {
	r.Post("/bids", authMiddleware, h.Submit)
	r.Get("/bids/my", authMiddleware, h.ListMine)
	r.Get("/bids/stats", authMiddleware, h.Stats)
	r.Get("/bids/gig/:gigId", h.ListForGig)
	r.Delete("/bids/:id", authMiddleware, h.Withdraw)
	r.Patch("/bids/:bidId/hire", authMiddleware, h.Hire)
}

type SubmitBidReq struct {
	GigID        string  `json:"gigId"`
	Amount       float64 `json:"amount"`
	Message      string  `json:"message"`
	DeliveryTime int     `json:"deliveryTime"`
}

func (h *BidHandler) Submit(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	var req SubmitBidReq
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	gigID, err := uuid.Parse(req.GigID)
	if err != nil {
		fe := apperr.FieldErrors{}
		fe.Add("gigId", "Gig id is required")
		return respondError(c, fe.Err())
	}

	bid, err := h.Ledger.Submit(c.UserContext(), bidding.SubmitInput{
		GigID:        gigID,
		FreelancerID: userID,
		Amount:       req.Amount,
		Message:      req.Message,
		DeliveryTime: req.DeliveryTime,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusCreated, "Bid submitted successfully", bid)
}

func (h *BidHandler) ListMine(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	bids, err := h.Ledger.ListForFreelancer(c.UserContext(), userID, c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "", bids)
}

func (h *BidHandler) Stats(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	s, err := h.Ledger.Stats(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "", s)
}

func (h *BidHandler) ListForGig(c *fiber.Ctx) error {
	gigID, err := paramUUID(c, "gigId", "Gig not found")
	if err != nil {
		return respondError(c, err)
	}
	bids, err := h.Ledger.ListForGig(c.UserContext(), gigID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "", bids)
}

func (h *BidHandler) Withdraw(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	bidID, err := paramUUID(c, "id", "Bid not found")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Ledger.Withdraw(c.UserContext(), bidID, userID); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "Bid withdrawn successfully", nil)
}

func (h *BidHandler) Hire(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	bidID, err := paramUUID(c, "bidId", "Bid not found")
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.Hiring.Hire(c.UserContext(), bidID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, "Freelancer hired successfully", res)
}
