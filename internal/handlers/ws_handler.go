package handlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/middleware"
	"github.com/gigflow/gigflow-api/internal/realtime"
	"github.com/gigflow/gigflow-api/internal/utils"
)

// PresenceTracker records which users hold a live socket across instances.
// Nil falls back to this instance's hub.
type PresenceTracker interface {
	Touch(ctx context.Context, userID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	Online(ctx context.Context, userID uuid.UUID) (bool, error)
}

type RealtimeHandler struct {
	Hub       *realtime.Hub
	Presence  PresenceTracker
	JWTSecret string
}

func NewRealtimeHandler(hub *realtime.Hub, presence PresenceTracker, secret string) *RealtimeHandler {
	return &RealtimeHandler{Hub: hub, Presence: presence, JWTSecret: secret}
}

func (h *RealtimeHandler) Routes(app fiber.Router) {
	app.Use("/ws", h.Upgrade)
	app.Get("/ws", websocket.New(h.Serve))
}

// APIRoutes registers the presence lookup under the api group.
func (h *RealtimeHandler) APIRoutes(r fiber.Router) {
	r.Get("/users/:id/online", h.Online)
}

func (h *RealtimeHandler) Online(c *fiber.Ctx) error {
	userID, err := paramUUID(c, "id", "User not found")
	if err != nil {
		return respondError(c, err)
	}

	online := h.Hub.Online(userID)
	if !online && h.Presence != nil {
		online, err = h.Presence.Online(c.UserContext(), userID)
		if err != nil {
			log.Printf("[WS] presence lookup %s: %v", userID, err)
			online = false
		}
	}
	return respondOK(c, fiber.StatusOK, "", fiber.Map{
		"userId": userID,
		"online": online,
	})
}

// Upgrade admits websocket upgrades carrying a valid token, either as ?token= or the
// session cookie, and stores the user id for Serve.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = c.Cookies(middleware.CookieName)
	}
	if tokenStr == "" {
		return fiber.ErrUnauthorized
	}
	claims, err := utils.ParseJWT(h.JWTSecret, tokenStr)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return fiber.ErrUnauthorized
	}
	c.Locals("userId", claims.UserID)
	return c.Next()
}

type clientFrame struct {
	Type  string `json:"type"`
	GigID string `json:"gigId"`
}

func (h *RealtimeHandler) Serve(c *websocket.Conn) {
	rawID, _ := c.Locals("userId").(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		log.Println("[WS] missing user id on upgraded connection")
		_ = c.Close()
		return
	}

	client := realtime.NewClient(userID, realtime.NewWebSocketConn(c))
	h.Hub.Register(client)
	h.touch(userID)
	defer func() {
		h.Hub.Unregister(client)
		if h.Presence != nil && !h.Hub.Online(userID) {
			if err := h.Presence.Clear(context.Background(), userID); err != nil {
				log.Printf("[WS] presence clear %s: %v", userID, err)
			}
		}
		log.Printf("[WS] user %s disconnected", userID)
	}()

	go client.WritePump()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			log.Printf("[WS] read error for user %s: %v", userID, err)
			return
		}
		h.handleFrame(client, msg)
	}
}

func (h *RealtimeHandler) handleFrame(client *realtime.Client, msg []byte) {
	var f clientFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		return
	}
	switch f.Type {
	case "join_gig", "leave_gig":
		gigID, err := uuid.Parse(f.GigID)
		if err != nil {
			return
		}
		if f.Type == "join_gig" {
			h.Hub.Join(client, realtime.GigRoom(gigID))
		} else {
			h.Hub.Leave(client, realtime.GigRoom(gigID))
		}
	case "ping":
		h.touch(client.UserID)
		pong, _ := json.Marshal(fiber.Map{"type": "pong"})
		select {
		case client.Send <- pong:
		default:
		}
	}
}

func (h *RealtimeHandler) touch(userID uuid.UUID) {
	if h.Presence == nil {
		return
	}
	if err := h.Presence.Touch(context.Background(), userID); err != nil {
		log.Printf("[WS] presence touch %s: %v", userID, err)
	}
}
