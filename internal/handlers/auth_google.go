package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/store"
	"github.com/gigflow/gigflow-api/internal/utils"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleOAuthHandler struct {
	Store           store.Store
	JWTSecret       string
	Expires         int
	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	FrontendBaseURL string
}

func (h *GoogleOAuthHandler) Routes(r fiber.Router) {
	r.Get("/auth/google/start", h.GoogleStart)
	r.Get("/auth/google/callback", h.GoogleCallback)
}

func (h *GoogleOAuthHandler) oauthCfg() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.GoogleClientID,
		ClientSecret: h.GoogleSecret,
		RedirectURL:  h.GoogleRedirect,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

func randomState(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func shortCookie(name, value string, maxAge int) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		Secure:   false,
		SameSite: "Lax",
		MaxAge:   maxAge,
	}
}

func (h *GoogleOAuthHandler) GoogleStart(c *fiber.Ctx) error {
	next := c.Query("next", "/")
	st := randomState(32)

	c.Cookie(shortCookie("oauth_state", st, 10*60))
	c.Cookie(shortCookie("oauth_next", next, 10*60))

	authURL := h.oauthCfg().AuthCodeURL(st, oauth2.AccessTypeOffline)
	return c.Redirect(authURL, http.StatusTemporaryRedirect)
}

type googleUserInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (h *GoogleOAuthHandler) GoogleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing code/state")
	}

	next := c.Cookies("oauth_next")
	if !strings.HasPrefix(next, "/") {
		next = "/"
	}
	if st := c.Cookies("oauth_state"); st == "" || st != state {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid state")
	}

	ctx := c.UserContext()
	tok, err := h.oauthCfg().Exchange(ctx, code)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Failed to exchange code")
	}

	gu, err := h.fetchUserInfo(ctx, tok)
	if err != nil {
		log.Printf("[OAuth] userinfo: %v", err)
		return c.Status(fiber.StatusBadRequest).SendString("Failed to fetch userinfo")
	}
	email := strings.ToLower(strings.TrimSpace(gu.Email))
	if email == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Email not found from Google")
	}

	u, err := h.upsertUser(ctx, email, strings.TrimSpace(gu.Name), gu.Picture)
	if err != nil {
		log.Printf("[OAuth] upsert %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to sign in")
	}
	if !u.IsActive {
		return c.Redirect(h.FrontendBaseURL+"/auth/login?err="+url.QueryEscape("Account is not active"), http.StatusTemporaryRedirect)
	}

	jwtToken, err := utils.SignJWT(h.JWTSecret, u.ID.String(), h.Expires)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to sign jwt")
	}
	setSessionCookie(c, jwtToken, h.Expires)

	c.Cookie(shortCookie("oauth_state", "", -1))
	c.Cookie(shortCookie("oauth_next", "", -1))

	return c.Redirect(h.FrontendBaseURL+next, http.StatusTemporaryRedirect)
}

func (h *GoogleOAuthHandler) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (*googleUserInfo, error) {
	resp, err := h.oauthCfg().Client(ctx, tok).Get(googleUserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var gu googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&gu); err != nil {
		return nil, err
	}
	return &gu, nil
}

// upsertUser finds the account by email or creates one. Accounts created here get a
// random password that is never handed out, so they can only sign in through Google.
func (h *GoogleOAuthHandler) upsertUser(ctx context.Context, email, name, picture string) (*models.User, error) {
	var u *models.User
	err := h.Store.WithinTx(ctx, func(tx store.Tx) error {
		existing, err := tx.UserByEmail(email)
		switch {
		case err == nil:
			u = existing
			if name != "" && u.Name != name {
				u.Name = name
				return tx.UpdateUserProfile(u)
			}
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		hashed, err := utils.HashPassword(randomState(24))
		if err != nil {
			return err
		}
		if name == "" {
			name = email
		}
		u = &models.User{
			Name:     name,
			Email:    email,
			Password: hashed,
			Avatar:   picture,
			IsActive: true,
		}
		return tx.CreateUser(u)
	})
	return u, err
}
