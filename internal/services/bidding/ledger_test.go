package bidding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/notify"
	"github.com/gigflow/gigflow-api/internal/services/hiring"
	"github.com/gigflow/gigflow-api/internal/services/stats"
	"github.com/gigflow/gigflow-api/internal/store/storetest"
)

type fakeNotifier struct {
	mu  sync.Mutex
	got []notify.NewBidEvent
}

func (f *fakeNotifier) NewBid(_ context.Context, ev notify.NewBidEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, ev)
	return nil
}

const proposal = "I can deliver this in a week with full tests."

func setup(t *testing.T) (*storetest.Fixture, *Ledger, *fakeNotifier, models.User, models.Gig) {
	fx := storetest.New(t)
	client := fx.User("Client")
	gig := fx.Gig(client.ID)
	n := &fakeNotifier{}
	l := NewLedger(fx.Store, stats.NewStatsService(fx.Store), n, nil)
	return fx, l, n, client, gig
}

func errCode(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hireBid(t *testing.T, fx *storetest.Fixture, bid models.Bid) {
	t.Helper()
	gig := fx.GetGig(bid.GigID)
	c := hiring.NewCoordinator(fx.Store, stats.NewStatsService(fx.Store), nil, nil)
	_, err := c.Hire(context.Background(), bid.ID, gig.ClientID)
	require.NoError(t, err)
}

func TestSubmitCreatesPendingBid(t *testing.T) {
	fx, l, n, client, gig := setup(t)
	f := fx.User("Freelancer")

	bid, err := l.Submit(context.Background(), SubmitInput{
		GigID: gig.ID, FreelancerID: f.ID, Amount: 120, Message: "  " + proposal + "  ", DeliveryTime: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BidPending, bid.Status)
	assert.Equal(t, proposal, bid.Message)
	assert.Equal(t, 1, fx.GetGig(gig.ID).BidsCount)

	require.Len(t, n.got, 1)
	assert.Equal(t, client.ID, n.got[0].ClientID)
	assert.Equal(t, "Freelancer", n.got[0].FreelancerName)
	assert.Equal(t, proposal, n.got[0].Message)
	assert.Equal(t, 5, n.got[0].DeliveryTime)
}

func TestSubmitValidation(t *testing.T) {
	_, l, _, _, gig := setup(t)
	f := uuid.New()

	tests := []struct {
		name  string
		in    SubmitInput
		field string
	}{
		{"amount below minimum", SubmitInput{Amount: 3, Message: proposal, DeliveryTime: 1}, "amount"},
		{"short message", SubmitInput{Amount: 10, Message: "0123456789", DeliveryTime: 1}, "message"},
		{"blank message", SubmitInput{Amount: 10, Message: "     ", DeliveryTime: 1}, "message"},
		{"long message", SubmitInput{Amount: 10, Message: strings.Repeat("a", 1001), DeliveryTime: 1}, "message"},
		{"zero delivery", SubmitInput{Amount: 10, Message: proposal, DeliveryTime: 0}, "deliveryTime"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.GigID, tc.in.FreelancerID = gig.ID, f
			_, err := l.Submit(context.Background(), tc.in)
			require.Error(t, err)
			var e *apperr.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			assert.Contains(t, e.Fields, tc.field)
		})
	}
}

func TestSubmitAmountThreeCreatesNothing(t *testing.T) {
	fx, l, _, _, gig := setup(t)
	f := fx.User("Freelancer")

	_, err := l.Submit(context.Background(), SubmitInput{GigID: gig.ID, FreelancerID: f.ID, Amount: 3, Message: proposal, DeliveryTime: 2})
	require.Error(t, err)
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, []string{"Bid amount must be at least $5"}, e.Fields["amount"])
	assert.Equal(t, 0, fx.GetGig(gig.ID).BidsCount)
	assert.Empty(t, fx.BidsByStatus(gig.ID))
}

func TestSubmitRejections(t *testing.T) {
	fx, l, _, client, gig := setup(t)
	f := fx.User("Freelancer")
	ctx := context.Background()
	in := SubmitInput{GigID: gig.ID, FreelancerID: f.ID, Amount: 50, Message: proposal, DeliveryTime: 3}

	_, err := l.Submit(ctx, SubmitInput{GigID: uuid.New(), FreelancerID: f.ID, Amount: 50, Message: proposal, DeliveryTime: 3})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	self := in
	self.FreelancerID = client.ID
	_, err = l.Submit(ctx, self)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Equal(t, apperr.CodeSelfBid, errCode(err))

	_, err = l.Submit(ctx, in)
	require.NoError(t, err)
	_, err = l.Submit(ctx, in)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, apperr.CodeBidExists, errCode(err))

	closed := fx.Gig(client.ID, func(g *models.Gig) { g.Status = models.GigCancelled })
	other := in
	other.GigID = closed.ID
	_, err = l.Submit(ctx, other)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	assert.Equal(t, 1, fx.GetGig(gig.ID).BidsCount)
}

func TestConcurrentSubmitsKeepCountExact(t *testing.T) {
	fx, l, n, _, gig := setup(t)
	const bidders = 12
	var freelancers []models.User
	for i := 0; i < bidders; i++ {
		freelancers = append(freelancers, fx.User("Freelancer"))
	}

	var wg sync.WaitGroup
	errs := make(chan error, bidders*2)
	for _, f := range freelancers {
		for j := 0; j < 2; j++ { // every freelancer tries twice
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := l.Submit(context.Background(), SubmitInput{GigID: gig.ID, FreelancerID: id, Amount: 20, Message: proposal, DeliveryTime: 1})
				errs <- err
			}(f.ID)
		}
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, bidders, ok)
	assert.Equal(t, bidders, fx.GetGig(gig.ID).BidsCount)
	assert.Equal(t, map[models.BidStatus]int{models.BidPending: bidders}, fx.BidsByStatus(gig.ID))
	assert.Len(t, n.got, bidders)
}

func TestWithdraw(t *testing.T) {
	fx, l, _, _, gig := setup(t)
	f := fx.User("Freelancer")
	other := fx.User("Other")
	bid := fx.Bid(gig.ID, f.ID, 40)
	ctx := context.Background()

	err := l.Withdraw(ctx, bid.ID, other.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	require.NoError(t, l.Withdraw(ctx, bid.ID, f.ID))
	assert.Equal(t, 0, fx.GetGig(gig.ID).BidsCount)

	err = l.Withdraw(ctx, bid.ID, f.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// the pair is free again
	_, err = l.Submit(ctx, SubmitInput{GigID: gig.ID, FreelancerID: f.ID, Amount: 45, Message: proposal, DeliveryTime: 2})
	assert.NoError(t, err)
}

func TestWithdrawProcessedBid(t *testing.T) {
	fx, l, _, client, _ := setup(t)
	f := fx.User("Freelancer")
	gig := fx.Gig(client.ID)
	bid := fx.Bid(gig.ID, f.ID, 40)

	hireBid(t, fx, bid)

	err := l.Withdraw(context.Background(), bid.ID, f.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestListsAndStats(t *testing.T) {
	fx, l, _, client, gig := setup(t)
	f := fx.User("Freelancer")
	b1 := fx.Bid(gig.ID, f.ID, 40)
	g2 := fx.Gig(client.ID)
	fx.Bid(g2.ID, f.ID, 60)
	hireBid(t, fx, b1)
	ctx := context.Background()

	bids, err := l.ListForGig(ctx, gig.ID)
	require.NoError(t, err)
	assert.Len(t, bids, 1)

	_, err = l.ListForGig(ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	mine, err := l.ListForFreelancer(ctx, f.ID, "all")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	hired, err := l.ListForFreelancer(ctx, f.ID, "hired")
	require.NoError(t, err)
	require.Len(t, hired, 1)
	assert.Equal(t, b1.ID, hired[0].ID)

	_, err = l.ListForFreelancer(ctx, f.ID, "bogus")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	s, err := l.Stats(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, stats.FreelancerSummary{TotalBids: 2, PendingBids: 1, HiredBids: 1, SuccessRate: 50}, s.Freelancer)

	cs, err := l.Stats(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, stats.ClientSummary{TotalPostedGigs: 2, OpenGigs: 1, AssignedGigs: 1}, cs.Client)
}
