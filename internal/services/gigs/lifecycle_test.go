package gigs

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/services/hiring"
	"github.com/gigflow/gigflow-api/internal/services/stats"
	"github.com/gigflow/gigflow-api/internal/store/storetest"
)

type statusCall struct {
	gigID  uuid.UUID
	status models.GigStatus
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []statusCall
}

func (f *fakeNotifier) StatusChanged(_ context.Context, gigID uuid.UUID, status models.GigStatus, _ *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, statusCall{gigID, status})
	return nil
}

func newService(t *testing.T) (*storetest.Fixture, *Service, *fakeNotifier) {
	fx := storetest.New(t)
	n := &fakeNotifier{}
	return fx, NewService(fx.Store, stats.NewStatsService(fx.Store), n, nil), n
}

func validInput() CreateInput {
	return CreateInput{
		Title:       "Redesign our dashboard",
		Description: strings.Repeat("Clean, accessible admin dashboard. ", 3),
		Budget:      800,
		Category:    "UI/UX Design",
		Skills:      []string{" figma ", "", "css"},
		Deadline:    time.Now().Add(72 * time.Hour),
	}
}

func hire(t *testing.T, fx *storetest.Fixture, bid models.Bid) {
	t.Helper()
	c := hiring.NewCoordinator(fx.Store, stats.NewStatsService(fx.Store), nil, nil)
	_, err := c.Hire(context.Background(), bid.ID, fx.GetGig(bid.GigID).ClientID)
	require.NoError(t, err)
}

func TestCreate(t *testing.T) {
	fx, s, _ := newService(t)
	client := fx.User("Client")

	gig, err := s.Create(context.Background(), client.ID, validInput())
	require.NoError(t, err)
	assert.Equal(t, models.GigOpen, gig.Status)
	assert.Equal(t, 0, gig.BidsCount)
	assert.Equal(t, []string{"figma", "css"}, []string(gig.Skills))
	assert.Equal(t, 1, fx.GetUser(client.ID).Stats.GigsPosted)
}

func TestCreateValidation(t *testing.T) {
	fx, s, _ := newService(t)
	client := fx.User("Client")

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		field  string
	}{
		{"past deadline", func(in *CreateInput) { in.Deadline = time.Now().Add(-time.Minute) }, "deadline"},
		{"short title", func(in *CreateInput) { in.Title = "Too short" }, "title"},
		{"long title", func(in *CreateInput) { in.Title = strings.Repeat("x", 101) }, "title"},
		{"short description", func(in *CreateInput) { in.Description = "Needs more words." }, "description"},
		{"low budget", func(in *CreateInput) { in.Budget = 9 }, "budget"},
		{"high budget", func(in *CreateInput) { in.Budget = 100001 }, "budget"},
		{"unknown category", func(in *CreateInput) { in.Category = "Astrology" }, "category"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := s.Create(context.Background(), client.ID, in)
			var e *apperr.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			assert.Contains(t, e.Fields, tc.field)
		})
	}
	assert.Equal(t, 0, fx.GetUser(client.ID).Stats.GigsPosted)
}

func TestCompleteSettlesHiredAmount(t *testing.T) {
	fx, s, n := newService(t)
	client := fx.User("Client")
	f := fx.User("Freelancer")
	gig := fx.Gig(client.ID)
	bid := fx.Bid(gig.ID, f.ID, 350)
	hire(t, fx, bid)

	done, err := s.Complete(context.Background(), gig.ID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GigCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	fs := fx.GetUser(f.ID).Stats
	assert.Equal(t, 1, fs.GigsCompleted)
	assert.Equal(t, 350.0, fs.TotalEarnings)
	assert.Equal(t, 1, fs.GigsWon)
	// client spend follows the posted budget, not the bid
	assert.Equal(t, gig.Budget, fx.GetUser(client.ID).Stats.TotalSpent)
	assert.Equal(t, 500.0, fx.GetUser(client.ID).Stats.TotalSpent)

	require.Len(t, n.calls, 1)
	assert.Equal(t, models.GigCompleted, n.calls[0].status)

	_, err = s.Complete(context.Background(), gig.ID, client.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	assert.Equal(t, 350.0, fx.GetUser(f.ID).Stats.TotalEarnings)
}

func TestCompleteOpenGig(t *testing.T) {
	fx, s, _ := newService(t)
	client := fx.User("Client")
	gig := fx.Gig(client.ID)

	_, err := s.Complete(context.Background(), gig.ID, client.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	assert.Equal(t, models.GigOpen, fx.GetGig(gig.ID).Status)
}

func TestCompleteByStranger(t *testing.T) {
	fx, s, _ := newService(t)
	client := fx.User("Client")
	f := fx.User("Freelancer")
	gig := fx.Gig(client.ID)
	hire(t, fx, fx.Bid(gig.ID, f.ID, 100))

	_, err := s.Complete(context.Background(), gig.ID, f.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestCancelRejectsPendingBids(t *testing.T) {
	fx, s, n := newService(t)
	client := fx.User("Client")
	gig := fx.Gig(client.ID)
	for i := 0; i < 3; i++ {
		fx.Bid(gig.ID, fx.User("Freelancer").ID, 50)
	}

	got, err := s.Cancel(context.Background(), gig.ID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GigCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
	assert.Equal(t, map[models.BidStatus]int{models.BidRejected: 3}, fx.BidsByStatus(gig.ID))
	require.Len(t, n.calls, 1)
	assert.Equal(t, models.GigCancelled, n.calls[0].status)

	_, err = s.Cancel(context.Background(), gig.ID, client.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestUpdate(t *testing.T) {
	fx, s, _ := newService(t)
	client := fx.User("Client")
	gig := fx.Gig(client.ID)
	ctx := context.Background()

	title := "A better title for the gig"
	budget := 750.0
	got, err := s.Update(ctx, gig.ID, client.ID, UpdateInput{Title: &title, Budget: &budget})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, 750.0, got.Budget)
	assert.Equal(t, gig.Description, got.Description)

	stored := fx.GetGig(gig.ID)
	assert.Equal(t, title, stored.Title)

	bad := 5.0
	_, err = s.Update(ctx, gig.ID, client.ID, UpdateInput{Budget: &bad})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, 750.0, fx.GetGig(gig.ID).Budget)

	_, err = s.Update(ctx, gig.ID, uuid.New(), UpdateInput{Title: &title})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestUpdateAssignedGig(t *testing.T) {
	fx, s, _ := newService(t)
	client := fx.User("Client")
	gig := fx.Gig(client.ID)
	hire(t, fx, fx.Bid(gig.ID, fx.User("Freelancer").ID, 90))

	title := "Changing my mind after hiring"
	_, err := s.Update(context.Background(), gig.ID, client.ID, UpdateInput{Title: &title})
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestDeleteCascades(t *testing.T) {
	fx, s, _ := newService(t)
	client := fx.User("Client")
	gig := fx.Gig(client.ID)
	bid := fx.Bid(gig.ID, fx.User("Freelancer").ID, 40)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, gig.ID, client.ID))
	_, err := s.Get(ctx, gig.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = fx.Store.BidByID(ctx, bid.ID)
	assert.Error(t, err)
	assert.Equal(t, 0, fx.GetUser(client.ID).Stats.GigsPosted)
}

func TestDeleteAssignedGig(t *testing.T) {
	fx, s, _ := newService(t)
	client := fx.User("Client")
	gig := fx.Gig(client.ID)
	hire(t, fx, fx.Bid(gig.ID, fx.User("Freelancer").ID, 40))

	err := s.Delete(context.Background(), gig.ID, client.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestGetAndListMine(t *testing.T) {
	fx, s, _ := newService(t)
	client := fx.User("Client")
	gig := fx.Gig(client.ID)
	fx.Gig(client.ID, func(g *models.Gig) { g.Status = models.GigCancelled })
	fx.Bid(gig.ID, fx.User("Freelancer").ID, 40)
	ctx := context.Background()

	d, err := s.Get(ctx, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, gig.ID, d.ID)
	assert.Len(t, d.Bids, 1)

	all, err := s.ListMine(ctx, client.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := s.ListMine(ctx, client.ID, "open")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, gig.ID, open[0].ID)

	_, err = s.ListMine(ctx, client.ID, "archived")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
