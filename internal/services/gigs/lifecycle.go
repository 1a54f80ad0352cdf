// Package gigs implements the gig lifecycle outside of hiring: posting, editing,
// cancelling, deleting and completing, each as one store transaction.
package gigs

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/events"
	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/services/stats"
	"github.com/gigflow/gigflow-api/internal/store"
)

type Notifier interface {
	StatusChanged(ctx context.Context, gigID uuid.UUID, status models.GigStatus, assignedTo *uuid.UUID) error
}

type CreateInput struct {
	Title       string
	Description string
	Budget      float64
	Category    string
	Skills      []string
	Deadline    time.Time
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	Budget      *float64
	Category    *string
	Skills      *[]string
	Deadline    *time.Time
}

type Detail struct {
	models.Gig
	Bids []models.Bid `json:"bids"`
}

type Service struct {
	Store  store.Store
	Stats  *stats.StatsService
	Notify Notifier
	Events events.Publisher
	Now    func() time.Time
}

func NewService(st store.Store, ss *stats.StatsService, n Notifier, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{Store: st, Stats: ss, Notify: n, Events: pub, Now: time.Now}
}

func (s *Service) Create(ctx context.Context, clientID uuid.UUID, in CreateInput) (*models.Gig, error) {
	now := s.Now()
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	fe := apperr.FieldErrors{}
	checkTitle(fe, in.Title)
	checkDescription(fe, in.Description)
	checkBudget(fe, in.Budget)
	checkCategory(fe, in.Category)
	checkDeadline(fe, in.Deadline, now)
	if err := fe.Err(); err != nil {
		return nil, err
	}

	gig := models.Gig{
		ClientID:    clientID,
		Title:       in.Title,
		Description: in.Description,
		Budget:      in.Budget,
		Category:    in.Category,
		Skills:      cleanSkills(in.Skills),
		Deadline:    in.Deadline,
		Status:      models.GigOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.Store.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateGig(&gig); err != nil {
			return err
		}
		return s.Stats.RecordPosted(tx, clientID, 1)
	})
	if err != nil {
		return nil, apperr.FromStore(err, "User not found")
	}
	log.Printf("[Gigs] gig %s posted by %s", gig.ID, clientID)
	return &gig, nil
}

// Get returns the gig with every bid filed against it, newest first.
func (s *Service) Get(ctx context.Context, gigID uuid.UUID) (*Detail, error) {
	gig, err := s.Store.GigByID(ctx, gigID)
	if err != nil {
		return nil, apperr.FromStore(err, "Gig not found")
	}
	bids, err := s.Store.BidsByGig(ctx, gigID)
	if err != nil {
		return nil, apperr.FromStore(err, "Gig not found")
	}
	return &Detail{Gig: *gig, Bids: bids}, nil
}

// ListMine returns the client's gigs; status "" or "all" means every status.
func (s *Service) ListMine(ctx context.Context, clientID uuid.UUID, status string) ([]models.Gig, error) {
	var st models.GigStatus
	if status != "" && status != "all" {
		st = models.GigStatus(status)
		if !models.ValidGigStatus(st) {
			fe := apperr.FieldErrors{}
			fe.Add("status", "Unknown gig status")
			return nil, fe.Err()
		}
	}
	gigs, err := s.Store.GigsByClient(ctx, clientID, st)
	if err != nil {
		return nil, apperr.FromStore(err, "Gigs not found")
	}
	return gigs, nil
}

// owned locks the gig and checks the requester owns it.
func owned(tx store.Tx, gigID, requesterID uuid.UUID, forbidden string) (*models.Gig, error) {
	gig, err := tx.LockGig(gigID)
	if err != nil {
		return nil, apperr.FromStore(err, "Gig not found")
	}
	if gig.ClientID != requesterID {
		return nil, apperr.Forbidden(forbidden)
	}
	return gig, nil
}

func staleAsConflict(err error) error {
	if errors.Is(err, store.ErrStale) {
		return apperr.Conflict(apperr.CodeWriteConflict, "The gig changed in the meantime. Please try again.")
	}
	return err
}

func (s *Service) Update(ctx context.Context, gigID, requesterID uuid.UUID, in UpdateInput) (*models.Gig, error) {
	var updated models.Gig
	err := s.Store.WithinTx(ctx, func(tx store.Tx) error {
		gig, err := owned(tx, gigID, requesterID, "Not authorized to update this gig")
		if err != nil {
			return err
		}
		if gig.Status != models.GigOpen {
			return apperr.InvalidState(apperr.CodeGigNotOpen, "Cannot update a gig that is already assigned or completed")
		}

		fe := apperr.FieldErrors{}
		if in.Title != nil {
			gig.Title = strings.TrimSpace(*in.Title)
			checkTitle(fe, gig.Title)
		}
		if in.Description != nil {
			gig.Description = strings.TrimSpace(*in.Description)
			checkDescription(fe, gig.Description)
		}
		if in.Budget != nil {
			gig.Budget = *in.Budget
			checkBudget(fe, gig.Budget)
		}
		if in.Category != nil {
			gig.Category = *in.Category
			checkCategory(fe, gig.Category)
		}
		if in.Skills != nil {
			gig.Skills = cleanSkills(*in.Skills)
		}
		if in.Deadline != nil {
			gig.Deadline = *in.Deadline
			checkDeadline(fe, gig.Deadline, s.Now())
		}
		if err := fe.Err(); err != nil {
			return err
		}

		gig.UpdatedAt = s.Now()
		if err := tx.TransitionGig(gig, models.GigOpen); err != nil {
			return staleAsConflict(err)
		}
		updated = *gig
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err, "Gig not found")
	}
	return &updated, nil
}

// Cancel closes an open gig and rejects every bid still pending on it.
func (s *Service) Cancel(ctx context.Context, gigID, requesterID uuid.UUID) (*models.Gig, error) {
	var cancelled models.Gig
	err := s.Store.WithinTx(ctx, func(tx store.Tx) error {
		gig, err := owned(tx, gigID, requesterID, "Not authorized to cancel this gig")
		if err != nil {
			return err
		}
		if !gig.Status.CanTransitionTo(models.GigCancelled) {
			return apperr.InvalidState(apperr.CodeGigNotOpen, "Only open gigs can be cancelled")
		}

		bids, err := tx.BidsByGig(gigID)
		if err != nil {
			return err
		}
		var pending []uuid.UUID
		for _, b := range bids {
			if b.Status == models.BidPending {
				pending = append(pending, b.ID)
			}
		}

		now := s.Now()
		gig.Status = models.GigCancelled
		gig.CancelledAt = &now
		gig.UpdatedAt = now
		if err := tx.TransitionGig(gig, models.GigOpen); err != nil {
			return staleAsConflict(err)
		}
		n, err := tx.TransitionBids(pending, models.BidPending, models.BidRejected, now)
		if err != nil {
			return err
		}
		if n != len(pending) {
			return apperr.Conflict(apperr.CodeWriteConflict, "Bids on this gig changed in the meantime. Please try again.")
		}
		cancelled = *gig
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err, "Gig not found")
	}

	log.Printf("[Gigs] gig %s cancelled by %s", gigID, requesterID)
	s.statusChanged(ctx, &cancelled, events.RKGigCancelled, 0)
	return &cancelled, nil
}

// Delete removes an open gig together with its bids.
func (s *Service) Delete(ctx context.Context, gigID, requesterID uuid.UUID) error {
	err := s.Store.WithinTx(ctx, func(tx store.Tx) error {
		gig, err := owned(tx, gigID, requesterID, "Not authorized to delete this gig")
		if err != nil {
			return err
		}
		if gig.Status != models.GigOpen {
			return apperr.InvalidState(apperr.CodeGigNotOpen, "Cannot delete a gig that is already assigned")
		}
		if err := tx.DeleteGig(gigID); err != nil {
			return err
		}
		return s.Stats.RecordPosted(tx, gig.ClientID, -1)
	})
	if err != nil {
		return apperr.FromStore(err, "Gig not found")
	}
	log.Printf("[Gigs] gig %s deleted by %s", gigID, requesterID)
	return nil
}

// Complete closes an assigned gig and settles the counters: the freelancer earns the
// hired bid's amount (the budget when no hired bid is on record) and the client spends it.
func (s *Service) Complete(ctx context.Context, gigID, requesterID uuid.UUID) (*models.Gig, error) {
	var (
		completed models.Gig
		amount    float64
	)
	err := s.Store.WithinTx(ctx, func(tx store.Tx) error {
		gig, err := owned(tx, gigID, requesterID, "Not authorized")
		if err != nil {
			return err
		}
		if gig.Status != models.GigAssigned {
			return apperr.InvalidState(apperr.CodeGigNotAssigned, "Only assigned gigs can be marked as completed")
		}

		amount, err = settledAmount(tx, gig)
		if err != nil {
			return err
		}

		now := s.Now()
		gig.Status = models.GigCompleted
		gig.CompletedAt = &now
		gig.UpdatedAt = now
		if err := tx.TransitionGig(gig, models.GigAssigned); err != nil {
			return staleAsConflict(err)
		}
		if gig.AssignedFreelancerID != nil {
			if err := s.Stats.CreditFreelancer(tx, *gig.AssignedFreelancerID, amount); err != nil {
				return err
			}
		}
		// the client is charged the posted budget, the freelancer earns the hired amount
		if err := s.Stats.DebitClient(tx, gig.ClientID, gig.Budget); err != nil {
			return err
		}
		completed = *gig
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err, "Gig not found")
	}

	log.Printf("[Gigs] gig %s completed, settled %.2f", gigID, amount)
	s.statusChanged(ctx, &completed, events.RKGigCompleted, amount)
	return &completed, nil
}

func settledAmount(tx store.Tx, gig *models.Gig) (float64, error) {
	if gig.AssignedBidID != nil {
		b, err := tx.Bid(*gig.AssignedBidID)
		switch {
		case err == nil && b.Status == models.BidHired:
			return b.Amount, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return 0, err
		}
	}
	bids, err := tx.BidsByGig(gig.ID)
	if err != nil {
		return 0, err
	}
	for _, b := range bids {
		if b.Status == models.BidHired {
			return b.Amount, nil
		}
	}
	return gig.Budget, nil
}

func (s *Service) statusChanged(ctx context.Context, gig *models.Gig, key string, amount float64) {
	ctx = context.WithoutCancel(ctx)
	if s.Notify != nil {
		if err := s.Notify.StatusChanged(ctx, gig.ID, gig.Status, gig.AssignedFreelancerID); err != nil {
			log.Printf("[Gigs] status notification for gig %s: %v", gig.ID, err)
		}
	}
	ev := events.GigStatusChanged{
		GigID:  gig.ID.String(),
		Status: string(gig.Status),
		Amount: amount,
		At:     gig.UpdatedAt.Unix(),
	}
	if gig.AssignedFreelancerID != nil {
		ev.FreelancerID = gig.AssignedFreelancerID.String()
	}
	events.Emit(ctx, s.Events, key, ev)
}
