package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/realtime"
)

type delivery struct {
	room  string
	frame map[string]any
}

type fakeChannel struct {
	mu   sync.Mutex
	got  []delivery
	fail error
}

func (f *fakeChannel) Deliver(_ context.Context, room string, frame []byte) error {
	if f.fail != nil {
		return f.fail
	}
	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, delivery{room: room, frame: m})
	return nil
}

func hiredEvent() HiredEvent {
	return HiredEvent{
		GigID:        uuid.New(),
		GigTitle:     "Build a landing page",
		BidID:        uuid.New(),
		ClientID:     uuid.New(),
		ClientName:   "Ana",
		FreelancerID: uuid.New(),
		Amount:       150,
	}
}

func TestHiredGoesToWinnerAndGigRoom(t *testing.T) {
	ch := &fakeChannel{}
	d := NewDispatcher(ch)
	ev := hiredEvent()

	require.NoError(t, d.Hired(context.Background(), ev))
	require.Len(t, ch.got, 2)

	winner := ch.got[0]
	assert.Equal(t, realtime.UserRoom(ev.FreelancerID), winner.room)
	assert.Equal(t, EventHired, winner.frame["type"])
	data := winner.frame["data"].(map[string]any)
	assert.Equal(t, ev.GigID.String(), data["gigId"])
	assert.Equal(t, ev.BidID.String(), data["bidId"])
	assert.Equal(t, ev.FreelancerID.String(), data["freelancerId"])
	assert.Equal(t, "Ana", data["clientName"])
	assert.Equal(t, 150.0, data["amount"])
	assert.Contains(t, data["message"], "Build a landing page")

	room := ch.got[1]
	assert.Equal(t, realtime.GigRoom(ev.GigID), room.room)
	assert.Equal(t, EventStatusChanged, room.frame["type"])
	status := room.frame["data"].(map[string]any)
	assert.Equal(t, string(models.GigAssigned), status["status"])
	assert.Equal(t, ev.FreelancerID.String(), status["assignedTo"])
}

func TestHiredNeverReachesClientRoom(t *testing.T) {
	ch := &fakeChannel{}
	d := NewDispatcher(ch)
	ev := hiredEvent()

	require.NoError(t, d.Hired(context.Background(), ev))
	for _, got := range ch.got {
		assert.NotEqual(t, realtime.UserRoom(ev.ClientID), got.room)
	}
}

func TestHiredIsDedupedPerGig(t *testing.T) {
	ch := &fakeChannel{}
	d := NewDispatcher(ch)
	ev := hiredEvent()

	require.NoError(t, d.Hired(context.Background(), ev))
	require.NoError(t, d.Hired(context.Background(), ev))
	assert.Len(t, ch.got, 2)
}

func TestDedupeWindowIsBounded(t *testing.T) {
	d := NewDispatcher(&fakeChannel{})
	d.limit = 2

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	assert.True(t, d.firstHire(a))
	assert.True(t, d.firstHire(b))
	assert.True(t, d.firstHire(c))
	assert.Len(t, d.seen, 2)
	// a fell out of the window
	assert.True(t, d.firstHire(a))
	assert.False(t, d.firstHire(c))
}

func TestNewBidOnlyToOwner(t *testing.T) {
	ch := &fakeChannel{}
	d := NewDispatcher(ch)
	ev := NewBidEvent{
		GigID:          uuid.New(),
		GigTitle:       "Logo refresh",
		ClientID:       uuid.New(),
		BidID:          uuid.New(),
		FreelancerID:   uuid.New(),
		FreelancerName: "Bo",
		Avatar:         "https://cdn.example.com/bo.png",
		Amount:         40,
		Message:        "Three concepts and two rounds of revisions.",
		DeliveryTime:   5,
	}

	require.NoError(t, d.NewBid(context.Background(), ev))
	require.Len(t, ch.got, 1)
	assert.Equal(t, realtime.UserRoom(ev.ClientID), ch.got[0].room)
	assert.Equal(t, EventNewBid, ch.got[0].frame["type"])

	data := ch.got[0].frame["data"].(map[string]any)
	assert.Equal(t, ev.GigID.String(), data["gigId"])
	bid, ok := data["bid"].(map[string]any)
	require.True(t, ok, "new_bid carries a bid object")
	assert.Equal(t, ev.BidID.String(), bid["id"])
	assert.Equal(t, 40.0, bid["amount"])
	assert.Equal(t, ev.Message, bid["message"])
	assert.Equal(t, 5.0, bid["deliveryTime"])
	freelancer, ok := bid["freelancer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ev.FreelancerID.String(), freelancer["id"])
	assert.Equal(t, "Bo", freelancer["name"])
	assert.Equal(t, ev.Avatar, freelancer["avatar"])
}

func TestStatusChangedWithoutAssignee(t *testing.T) {
	ch := &fakeChannel{}
	d := NewDispatcher(ch)
	gigID := uuid.New()

	require.NoError(t, d.StatusChanged(context.Background(), gigID, models.GigCancelled, nil))
	require.Len(t, ch.got, 1)
	data := ch.got[0].frame["data"].(map[string]any)
	assert.Equal(t, "cancelled", data["status"])
	assert.Nil(t, data["assignedTo"])
}

func TestDeliverFailureIsReported(t *testing.T) {
	boom := errors.New("redis down")
	d := NewDispatcher(&fakeChannel{fail: boom})

	err := d.Hired(context.Background(), hiredEvent())
	assert.ErrorIs(t, err, boom)
}
