// Package notify turns committed state changes into realtime frames.
//
// Delivery is best effort: the dispatcher is only ever called after the change it
// reports has committed, so a failed or skipped delivery never undoes anything.
// Clients that miss a frame reconcile by reading the gig again.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/realtime"
)

const (
	EventHired         = "notification:hired"
	EventStatusChanged = "gig:status_changed"
	EventNewBid        = "new_bid"
)

const defaultDedupeSize = 1024

// Channel delivers one frame to every connection listening on room.
type Channel interface {
	Deliver(ctx context.Context, room string, frame []byte) error
}

type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type HiredEvent struct {
	GigID        uuid.UUID
	GigTitle     string
	BidID        uuid.UUID
	ClientID     uuid.UUID
	ClientName   string
	FreelancerID uuid.UUID
	Amount       float64
}

type NewBidEvent struct {
	GigID          uuid.UUID
	GigTitle       string
	ClientID       uuid.UUID
	BidID          uuid.UUID
	FreelancerID   uuid.UUID
	FreelancerName string
	Avatar         string
	Amount         float64
	Message        string
	DeliveryTime   int
}

type hiredPayload struct {
	GigID        string  `json:"gigId"`
	GigTitle     string  `json:"gigTitle"`
	BidID        string  `json:"bidId"`
	FreelancerID string  `json:"freelancerId"`
	ClientName   string  `json:"clientName"`
	Amount       float64 `json:"amount"`
	Message      string  `json:"message"`
	Timestamp    string  `json:"timestamp"`
}

type statusPayload struct {
	GigID      string  `json:"gigId"`
	Status     string  `json:"status"`
	AssignedTo *string `json:"assignedTo"`
}

type bidFreelancer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type bidView struct {
	ID           string        `json:"id"`
	Amount       float64       `json:"amount"`
	Message      string        `json:"message"`
	DeliveryTime int           `json:"deliveryTime"`
	Freelancer   bidFreelancer `json:"freelancer"`
}

type newBidPayload struct {
	GigID     string  `json:"gigId"`
	GigTitle  string  `json:"gigTitle"`
	Bid       bidView `json:"bid"`
	Timestamp string  `json:"timestamp"`
}

type Dispatcher struct {
	ch  Channel
	now func() time.Time

	mu    sync.Mutex
	seen  map[uuid.UUID]struct{}
	order []uuid.UUID
	limit int
}

func NewDispatcher(ch Channel) *Dispatcher {
	return &Dispatcher{
		ch:    ch,
		now:   time.Now,
		seen:  make(map[uuid.UUID]struct{}),
		limit: defaultDedupeSize,
	}
}

// Hired tells the winner privately and updates everyone watching the gig.
// A second call for the same gig is dropped: a gig is hired at most once.
func (d *Dispatcher) Hired(ctx context.Context, ev HiredEvent) error {
	if !d.firstHire(ev.GigID) {
		log.Printf("[Dispatcher] duplicate hire notification for gig %s suppressed", ev.GigID)
		return nil
	}

	winner := Frame{Type: EventHired, Data: hiredPayload{
		GigID:        ev.GigID.String(),
		GigTitle:     ev.GigTitle,
		BidID:        ev.BidID.String(),
		FreelancerID: ev.FreelancerID.String(),
		ClientName:   ev.ClientName,
		Amount:       ev.Amount,
		Message:      fmt.Sprintf("Congratulations! You've been hired for %q", ev.GigTitle),
		Timestamp:    d.now().UTC().Format(time.RFC3339),
	}}

	errWinner := d.send(ctx, realtime.UserRoom(ev.FreelancerID), winner)
	errRoom := d.StatusChanged(ctx, ev.GigID, models.GigAssigned, &ev.FreelancerID)
	return errors.Join(errWinner, errRoom)
}

// NewBid tells the gig owner, and only the owner, that a bid arrived.
func (d *Dispatcher) NewBid(ctx context.Context, ev NewBidEvent) error {
	return d.send(ctx, realtime.UserRoom(ev.ClientID), Frame{Type: EventNewBid, Data: newBidPayload{
		GigID:    ev.GigID.String(),
		GigTitle: ev.GigTitle,
		Bid: bidView{
			ID:           ev.BidID.String(),
			Amount:       ev.Amount,
			Message:      ev.Message,
			DeliveryTime: ev.DeliveryTime,
			Freelancer: bidFreelancer{
				ID:     ev.FreelancerID.String(),
				Name:   ev.FreelancerName,
				Avatar: ev.Avatar,
			},
		},
		Timestamp: d.now().UTC().Format(time.RFC3339),
	}})
}

func (d *Dispatcher) StatusChanged(ctx context.Context, gigID uuid.UUID, status models.GigStatus, assignedTo *uuid.UUID) error {
	p := statusPayload{GigID: gigID.String(), Status: string(status)}
	if assignedTo != nil {
		s := assignedTo.String()
		p.AssignedTo = &s
	}
	return d.send(ctx, realtime.GigRoom(gigID), Frame{Type: EventStatusChanged, Data: p})
}

func (d *Dispatcher) send(ctx context.Context, room string, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := d.ch.Deliver(ctx, room, b); err != nil {
		log.Printf("[Dispatcher] deliver %s to %s failed: %v", f.Type, room, err)
		return err
	}
	return nil
}

func (d *Dispatcher) firstHire(gigID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[gigID]; ok {
		return false
	}
	d.seen[gigID] = struct{}{}
	d.order = append(d.order, gigID)
	if len(d.order) > d.limit {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	return true
}
