package stats

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/store"
)

// StatsService keeps the denormalized counters on User in step with the gig and bid
// lifecycle. The Record/Credit methods must be called inside the caller's transaction
// so the counters commit or roll back together with the state change.
type StatsService struct {
	Store store.Reader
}

func NewStatsService(st store.Reader) *StatsService {
	return &StatsService{Store: st}
}

// RecordWin credits a hire to the freelancer.
func (s *StatsService) RecordWin(tx store.Tx, freelancerID uuid.UUID) error {
	return tx.AddUserStats(freelancerID, models.UserStats{GigsWon: 1})
}

// RecordPosted adjusts the client's posted gig count; delta is -1 when a gig is deleted.
func (s *StatsService) RecordPosted(tx store.Tx, clientID uuid.UUID, delta int) error {
	return tx.AddUserStats(clientID, models.UserStats{GigsPosted: delta})
}

// CreditFreelancer records a completed gig and its earnings.
func (s *StatsService) CreditFreelancer(tx store.Tx, freelancerID uuid.UUID, amount float64) error {
	if amount <= 0 {
		return errors.New("amount to credit must be greater than zero")
	}
	if err := tx.AddUserStats(freelancerID, models.UserStats{GigsCompleted: 1, TotalEarnings: amount}); err != nil {
		return fmt.Errorf("credit freelancer %s: %w", freelancerID, err)
	}
	return nil
}

// DebitClient records what the client paid for a completed gig.
func (s *StatsService) DebitClient(tx store.Tx, clientID uuid.UUID, amount float64) error {
	if amount <= 0 {
		return errors.New("amount to debit must be greater than zero")
	}
	if err := tx.AddUserStats(clientID, models.UserStats{TotalSpent: amount}); err != nil {
		return fmt.Errorf("debit client %s: %w", clientID, err)
	}
	return nil
}

type FreelancerSummary struct {
	TotalBids    int     `json:"total_bids"`
	PendingBids  int     `json:"pending_bids"`
	HiredBids    int     `json:"hired_bids"`
	RejectedBids int     `json:"rejected_bids"`
	SuccessRate  float64 `json:"success_rate"` // percent, one decimal
}

type ClientSummary struct {
	TotalPostedGigs int `json:"total_posted_gigs"`
	OpenGigs        int `json:"open_gigs"`
	AssignedGigs    int `json:"assigned_gigs"`
	CompletedGigs   int `json:"completed_gigs"`
	CancelledGigs   int `json:"cancelled_gigs"`
}

type Summary struct {
	Freelancer FreelancerSummary `json:"freelancer"`
	Client     ClientSummary     `json:"client"`
}

// Summary builds the dashboard numbers for a user from the bid and gig records.
func (s *StatsService) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	bids, err := s.Store.BidsByFreelancer(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	gigs, err := s.Store.GigsByClient(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	var out Summary
	for _, b := range bids {
		out.Freelancer.TotalBids++
		switch b.Status {
		case models.BidPending:
			out.Freelancer.PendingBids++
		case models.BidHired:
			out.Freelancer.HiredBids++
		case models.BidRejected:
			out.Freelancer.RejectedBids++
		}
	}
	if out.Freelancer.TotalBids > 0 {
		rate := float64(out.Freelancer.HiredBids) / float64(out.Freelancer.TotalBids) * 100
		out.Freelancer.SuccessRate = math.Round(rate*10) / 10
	}

	for _, g := range gigs {
		out.Client.TotalPostedGigs++
		switch g.Status {
		case models.GigOpen:
			out.Client.OpenGigs++
		case models.GigAssigned:
			out.Client.AssignedGigs++
		case models.GigCompleted:
			out.Client.CompletedGigs++
		case models.GigCancelled:
			out.Client.CancelledGigs++
		}
	}
	return &out, nil
}
