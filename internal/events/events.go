// Package events describes the domain events GigFlow publishes to the message bus
// after a state change has committed.
package events

import (
	"context"
	"log"
)

const (
	RKBidSubmitted = "bid.submitted"
	RKBidWithdrawn = "bid.withdrawn"
	RKGigAssigned  = "gig.assigned"
	RKGigCompleted = "gig.completed"
	RKGigCancelled = "gig.cancelled"
)

type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

func (Discard) PublishJSON(context.Context, string, any) error { return nil }

type BidSubmitted struct {
	BidID        string  `json:"bid_id"`
	GigID        string  `json:"gig_id"`
	FreelancerID string  `json:"freelancer_id"`
	Amount       float64 `json:"amount"`
	At           int64   `json:"at"` // unix seconds
}

type BidWithdrawn struct {
	BidID        string `json:"bid_id"`
	GigID        string `json:"gig_id"`
	FreelancerID string `json:"freelancer_id"`
	At           int64  `json:"at"`
}

type GigAssigned struct {
	GigID        string  `json:"gig_id"`
	BidID        string  `json:"bid_id"`
	ClientID     string  `json:"client_id"`
	FreelancerID string  `json:"freelancer_id"`
	Amount       float64 `json:"amount"`
	Rejected     int     `json:"rejected"`
	At           int64   `json:"at"`
}

type GigStatusChanged struct {
	GigID        string  `json:"gig_id"`
	Status       string  `json:"status"`
	FreelancerID string  `json:"freelancer_id,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
	At           int64   `json:"at"`
}

// Emit publishes v and only logs a failure: the state change has already committed.
func Emit(ctx context.Context, p Publisher, key string, v any) {
	if p == nil {
		return
	}
	if err := p.PublishJSON(ctx, key, v); err != nil {
		log.Printf("[Events] publish %s failed: %v", key, err)
	}
}
