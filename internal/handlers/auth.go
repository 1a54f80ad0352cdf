package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/middleware"
	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/store"
	"github.com/gigflow/gigflow-api/internal/utils"
)

type AuthHandler struct {
	Store     store.Store
	JWTSecret string
	Expires   int
}

func NewAuthHandler(st store.Store, secret string, expiresMin int) *AuthHandler {
	return &AuthHandler{Store: st, JWTSecret: secret, Expires: expiresMin}
}

func (h *AuthHandler) Routes(r fiber.Router, authMiddleware fiber.Handler) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
	r.Get("/me", authMiddleware, h.Me)
}

type RegisterReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func userView(u *models.User) fiber.Map {
	return fiber.Map{
		"id":     u.ID,
		"name":   u.Name,
		"email":  u.Email,
		"avatar": u.Avatar,
		"bio":    u.Bio,
	}
}

func setSessionCookie(c *fiber.Ctx, token string, expiresMin int) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   false,
		SameSite: "Lax",
		MaxAge:   expiresMin * 60,
	})
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterReq
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)

	fe := apperr.FieldErrors{}
	if name == "" {
		fe.Add("name", "Name is required")
	}
	if email == "" {
		fe.Add("email", "Email is required")
	} else if !strings.Contains(email, "@") {
		fe.Add("email", "Please provide a valid email")
	}
	if password == "" {
		fe.Add("password", "Password is required")
	} else if len(password) < 6 {
		fe.Add("password", "Password must be at least 6 characters")
	}
	if err := fe.Err(); err != nil {
		return respondError(c, err)
	}

	pw, err := utils.HashPassword(password)
	if err != nil {
		return respondError(c, apperr.Internal(err, "Failed to process password"))
	}

	u := models.User{
		Name:     name,
		Email:    email,
		Password: pw,
		IsActive: true,
	}
	err = h.Store.WithinTx(c.UserContext(), func(tx store.Tx) error {
		if _, err := tx.UserByEmail(email); err == nil {
			return store.ErrDuplicate
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.CreateUser(&u)
	})
	if errors.Is(err, store.ErrDuplicate) {
		taken := apperr.FieldErrors{}
		taken.Add("email", "Email is already registered")
		return respondError(c, apperr.Validation(taken).WithCode(apperr.CodeEmailTaken))
	}
	if err != nil {
		return respondError(c, apperr.FromStore(err, "User not found"))
	}

	token, err := utils.SignJWT(h.JWTSecret, u.ID.String(), h.Expires)
	if err != nil {
		return respondError(c, apperr.Internal(err, "Failed to sign token"))
	}
	setSessionCookie(c, token, h.Expires)

	return respondOK(c, fiber.StatusCreated, "Registration successful", fiber.Map{
		"user":  userView(&u),
		"token": token,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginReq
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)

	fe := apperr.FieldErrors{}
	if email == "" {
		fe.Add("email", "Email is required")
	}
	if password == "" {
		fe.Add("password", "Password is required")
	}
	if err := fe.Err(); err != nil {
		return respondError(c, err)
	}

	u, err := h.Store.UserByEmail(c.UserContext(), email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return respondError(c, apperr.FromStore(err, "User not found"))
	}
	if err != nil || !utils.CheckPassword(u.Password, password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid email or password",
			"code":    apperr.CodeInvalidCredentials,
		})
	}
	if !u.IsActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "Account is not active",
			"code":    apperr.CodeAccountInactive,
		})
	}

	token, err := utils.SignJWT(h.JWTSecret, u.ID.String(), h.Expires)
	if err != nil {
		return respondError(c, apperr.Internal(err, "Failed to sign token"))
	}
	setSessionCookie(c, token, h.Expires)

	return respondOK(c, fiber.StatusOK, "Login successful", fiber.Map{
		"user":  userView(u),
		"token": token,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   false,
		SameSite: "Lax",
	})
	return respondOK(c, fiber.StatusOK, "Logout successful", nil)
}

// Me returns the signed-in user together with the denormalized counters.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	u, err := h.Store.UserByID(c.UserContext(), userID)
	if err != nil {
		return respondError(c, apperr.FromStore(err, "User not found"))
	}
	return respondOK(c, fiber.StatusOK, "", u)
}
