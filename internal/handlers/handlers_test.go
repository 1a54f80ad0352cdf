package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigflow/gigflow-api/internal/events"
	"github.com/gigflow/gigflow-api/internal/middleware"
	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/notify"
	"github.com/gigflow/gigflow-api/internal/realtime"
	"github.com/gigflow/gigflow-api/internal/services/bidding"
	"github.com/gigflow/gigflow-api/internal/services/gigs"
	"github.com/gigflow/gigflow-api/internal/services/hiring"
	"github.com/gigflow/gigflow-api/internal/services/stats"
	"github.com/gigflow/gigflow-api/internal/store/storetest"
	"github.com/gigflow/gigflow-api/internal/utils"
)

const testSecret = "test-secret"

type env struct {
	app *fiber.App
	fx  *storetest.Fixture
	t   *testing.T
}

func newEnv(t *testing.T) *env {
	fx := storetest.New(t)
	d := notify.NewDispatcher(realtime.NewHub())
	ss := stats.NewStatsService(fx.Store)
	pub := events.Discard{}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	auth := middleware.RequireAuth(testSecret)
	api := app.Group("/api")
	NewAuthHandler(fx.Store, testSecret, 60).Routes(api, auth)
	api.Get("/categories", NewCategoryHandler().GetCategories)
	NewGigHandler(gigs.NewService(fx.Store, ss, d, pub)).Routes(api, auth)
	NewBidHandler(
		bidding.NewLedger(fx.Store, ss, d, pub),
		hiring.NewCoordinator(fx.Store, ss, d, pub),
	).Routes(api, auth)

	return &env{app: app, fx: fx, t: t}
}

func (e *env) token(userID uuid.UUID) string {
	tok, err := utils.SignJWT(testSecret, userID.String(), 60)
	require.NoError(e.t, err)
	return tok
}

func (e *env) do(method, path string, body interface{}, token string) (int, map[string]interface{}) {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	require.NoError(e.t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "data is not an object: %v", body)
	return d
}

func TestRegisterLoginMe(t *testing.T) {
	e := newEnv(t)

	status, body := e.do("POST", "/api/auth/register", fiber.Map{
		"name": "Ada", "email": "Ada@Example.com", "password": "secret123",
	}, "")
	require.Equal(t, fiber.StatusCreated, status, body)
	tok, _ := data(t, body)["token"].(string)
	require.NotEmpty(t, tok)

	status, body = e.do("GET", "/api/me", nil, tok)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ada@example.com", data(t, body)["email"])

	status, body = e.do("POST", "/api/auth/login", fiber.Map{
		"email": "ada@example.com", "password": "secret123",
	}, "")
	assert.Equal(t, fiber.StatusOK, status, body)

	status, body = e.do("POST", "/api/auth/login", fiber.Map{
		"email": "ada@example.com", "password": "wrong-password",
	}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])
}

func TestRegisterRejectsDuplicateAndInvalid(t *testing.T) {
	e := newEnv(t)
	req := fiber.Map{"name": "Ada", "email": "ada@example.com", "password": "secret123"}

	status, _ := e.do("POST", "/api/auth/register", req, "")
	require.Equal(t, fiber.StatusCreated, status)

	status, body := e.do("POST", "/api/auth/register", req, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "EMAIL_TAKEN", body["code"])

	status, body = e.do("POST", "/api/auth/register", fiber.Map{"name": "", "email": "nope", "password": "1"}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	errs, ok := body["errors"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e := newEnv(t)

	status, body := e.do("POST", "/api/gigs", fiber.Map{"title": "x"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])

	status, _ = e.do("GET", "/api/bids/my", nil, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestCreateGigAndListMine(t *testing.T) {
	e := newEnv(t)
	client := e.fx.User("client")
	tok := e.token(client.ID)

	status, body := e.do("POST", "/api/gigs", fiber.Map{
		"title":       "Landing page redesign",
		"description": "Redesign our landing page with a fresh hero section, pricing table and FAQ.",
		"budget":      300,
		"category":    "UI/UX Design",
		"skills":      []string{" figma ", ""},
		"deadline":    time.Now().Add(72 * time.Hour).Format("2006-01-02"),
	}, tok)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "open", data(t, body)["status"])

	status, body = e.do("GET", "/api/gigs/my/posted", nil, tok)
	require.Equal(t, fiber.StatusOK, status)
	list, ok := body["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, list, 1)

	status, body = e.do("GET", "/api/gigs/my/posted?status=bogus", nil, tok)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestCreateGigValidation(t *testing.T) {
	e := newEnv(t)
	client := e.fx.User("client")

	status, body := e.do("POST", "/api/gigs", fiber.Map{
		"title":    "short",
		"budget":   5,
		"category": "Knitting",
		"deadline": "not-a-date",
	}, e.token(client.ID))
	assert.Equal(t, fiber.StatusBadRequest, status)
	errs, ok := body["errors"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, errs, "deadline")
}

func TestGetGigUnknownOrMalformedID(t *testing.T) {
	e := newEnv(t)

	status, _ := e.do("GET", "/api/gigs/"+uuid.NewString(), nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body := e.do("GET", "/api/gigs/not-a-uuid", nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestBidAndHireFlow(t *testing.T) {
	e := newEnv(t)
	client := e.fx.User("client")
	alice := e.fx.User("alice")
	bob := e.fx.User("bob")
	gig := e.fx.Gig(client.ID)

	status, body := e.do("POST", "/api/bids", fiber.Map{
		"gigId":        gig.ID.String(),
		"amount":       450,
		"message":      "I can deliver this in a week with full test coverage.",
		"deliveryTime": 7,
	}, e.token(alice.ID))
	require.Equal(t, fiber.StatusCreated, status, body)
	aliceBid, _ := data(t, body)["id"].(string)

	other := e.fx.Bid(gig.ID, bob.ID, 400)

	// a freelancer cannot hire
	status, _ = e.do("PATCH", "/api/bids/"+aliceBid+"/hire", nil, e.token(alice.ID))
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = e.do("PATCH", "/api/bids/"+aliceBid+"/hire", nil, e.token(client.ID))
	require.Equal(t, fiber.StatusOK, status, body)
	res := data(t, body)
	assert.Equal(t, "assigned", res["gig"].(map[string]interface{})["status"])
	assert.Equal(t, "hired", res["bid"].(map[string]interface{})["status"])
	assert.EqualValues(t, 1, res["rejected_count"])

	status, body = e.do("PATCH", "/api/bids/"+other.ID.String()+"/hire", nil, e.token(client.ID))
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "GIG_ALREADY_ASSIGNED", body["code"])

	assert.Equal(t, models.BidRejected, e.fx.GetBid(other.ID).Status)
	assert.Equal(t, 1, e.fx.GetUser(alice.ID).Stats.GigsWon)

	status, body = e.do("GET", "/api/bids/stats", nil, e.token(alice.ID))
	require.Equal(t, fiber.StatusOK, status, body)
}

func TestSubmitBidRules(t *testing.T) {
	e := newEnv(t)
	client := e.fx.User("client")
	gig := e.fx.Gig(client.ID)

	status, body := e.do("POST", "/api/bids", fiber.Map{
		"gigId":        gig.ID.String(),
		"amount":       100,
		"message":      "I would love to work on my own gig, honestly.",
		"deliveryTime": 3,
	}, e.token(client.ID))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "SELF_BID", body["code"])

	status, body = e.do("POST", "/api/bids", fiber.Map{"gigId": "nope"}, e.token(client.ID))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestWithdrawBid(t *testing.T) {
	e := newEnv(t)
	client := e.fx.User("client")
	alice := e.fx.User("alice")
	gig := e.fx.Gig(client.ID)
	bid := e.fx.Bid(gig.ID, alice.ID, 300)

	status, _ := e.do("DELETE", "/api/bids/"+bid.ID.String(), nil, e.token(client.ID))
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = e.do("DELETE", "/api/bids/"+bid.ID.String(), nil, e.token(alice.ID))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 0, e.fx.GetGig(gig.ID).BidsCount)
}

func TestCategories(t *testing.T) {
	e := newEnv(t)
	status, body := e.do("GET", "/api/categories", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	list, ok := body["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, list, len(models.Categories))
}
