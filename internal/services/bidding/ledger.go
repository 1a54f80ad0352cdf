// Package bidding owns the bid records: submission, withdrawal and the read models
// freelancers and clients use to reconcile after a missed notification.
package bidding

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/events"
	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/notify"
	"github.com/gigflow/gigflow-api/internal/services/stats"
	"github.com/gigflow/gigflow-api/internal/store"
)

type Notifier interface {
	NewBid(ctx context.Context, ev notify.NewBidEvent) error
}

type SubmitInput struct {
	GigID        uuid.UUID
	FreelancerID uuid.UUID
	Amount       float64
	Message      string
	DeliveryTime int
}

type Ledger struct {
	Store        store.Store
	StatsService *stats.StatsService
	Notify       Notifier
	Events       events.Publisher
	Now          func() time.Time
}

func NewLedger(st store.Store, ss *stats.StatsService, n Notifier, pub events.Publisher) *Ledger {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Ledger{Store: st, StatsService: ss, Notify: n, Events: pub, Now: time.Now}
}

func validateSubmit(in *SubmitInput) error {
	fe := apperr.FieldErrors{}
	if in.Amount < models.MinBidAmount {
		fe.Add("amount", "Bid amount must be at least $5")
	}
	in.Message = strings.TrimSpace(in.Message)
	switch n := utf8.RuneCountInString(in.Message); {
	case n == 0:
		fe.Add("message", "Proposal message is required")
	case n < models.MinBidMessage:
		fe.Add("message", "Message must be at least 20 characters")
	case n > models.MaxBidMessage:
		fe.Add("message", "Message cannot exceed 1000 characters")
	}
	if in.DeliveryTime < models.MinBidDeliveryDay {
		fe.Add("deliveryTime", "Delivery time must be at least 1 day")
	}
	return fe.Err()
}

// Submit files a pending bid on an open gig. A freelancer holds at most one bid per gig
// and can never bid on their own gig.
func (l *Ledger) Submit(ctx context.Context, in SubmitInput) (*models.Bid, error) {
	if err := validateSubmit(&in); err != nil {
		return nil, err
	}

	var (
		bid        models.Bid
		gig        *models.Gig
		freelancer models.User
	)
	err := l.Store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		gig, err = tx.LockGig(in.GigID)
		if err != nil {
			return apperr.FromStore(err, "Gig not found")
		}
		if gig.Status != models.GigOpen {
			return apperr.InvalidState(apperr.CodeGigNotOpen, "This gig is no longer accepting bids")
		}
		if gig.ClientID == in.FreelancerID {
			return apperr.Forbidden("You cannot bid on your own gig").WithCode(apperr.CodeSelfBid)
		}
		if _, err := tx.BidByGigAndFreelancer(in.GigID, in.FreelancerID); err == nil {
			return bidExists()
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := l.Now()
		bid = models.Bid{
			GigID:        in.GigID,
			FreelancerID: in.FreelancerID,
			Amount:       in.Amount,
			Message:      in.Message,
			DeliveryTime: in.DeliveryTime,
			Status:       models.BidPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateBid(&bid); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return bidExists()
			}
			return err
		}
		if err := tx.AdjustBidsCount(in.GigID, 1); err != nil {
			return err
		}
		if u, err := tx.User(in.FreelancerID); err == nil {
			freelancer = *u
		}
		return nil
	})
	if err != nil {
		// the unique index can still fire at commit when two submits race
		if isDuplicate(err) {
			return nil, bidExists()
		}
		return nil, apperr.FromStore(err, "Gig not found")
	}

	log.Printf("[Bids] bid %s submitted on gig %s by %s", bid.ID, bid.GigID, bid.FreelancerID)
	l.afterSubmit(ctx, gig, &bid, freelancer)
	return &bid, nil
}

func (l *Ledger) afterSubmit(ctx context.Context, gig *models.Gig, bid *models.Bid, freelancer models.User) {
	ctx = context.WithoutCancel(ctx)
	if l.Notify != nil {
		err := l.Notify.NewBid(ctx, notify.NewBidEvent{
			GigID:          gig.ID,
			GigTitle:       gig.Title,
			ClientID:       gig.ClientID,
			BidID:          bid.ID,
			FreelancerID:   bid.FreelancerID,
			FreelancerName: freelancer.Name,
			Avatar:         freelancer.Avatar,
			Amount:         bid.Amount,
			Message:        bid.Message,
			DeliveryTime:   bid.DeliveryTime,
		})
		if err != nil {
			log.Printf("[Bids] new bid notification for gig %s: %v", gig.ID, err)
		}
	}
	events.Emit(ctx, l.Events, events.RKBidSubmitted, events.BidSubmitted{
		BidID:        bid.ID.String(),
		GigID:        bid.GigID.String(),
		FreelancerID: bid.FreelancerID.String(),
		Amount:       bid.Amount,
		At:           bid.CreatedAt.Unix(),
	})
}

// Withdraw removes the requester's pending bid and frees the (gig, freelancer) pair.
func (l *Ledger) Withdraw(ctx context.Context, bidID, requesterID uuid.UUID) error {
	var withdrawn models.Bid
	err := l.Store.WithinTx(ctx, func(tx store.Tx) error {
		b, err := tx.Bid(bidID)
		if err != nil {
			return apperr.FromStore(err, "Bid not found")
		}
		if b.FreelancerID != requesterID {
			return apperr.Forbidden("Not authorized to withdraw this bid")
		}
		if b.Status != models.BidPending {
			return apperr.InvalidState(apperr.CodeBidNotPending, "Cannot withdraw a bid that has been processed")
		}

		// lock order: gig, then bid
		if _, err := tx.LockGig(b.GigID); err != nil {
			return apperr.FromStore(err, "Gig not found")
		}
		locked, err := tx.LockBid(bidID)
		if err != nil {
			return apperr.FromStore(err, "Bid not found")
		}
		if locked.Status != models.BidPending {
			return apperr.InvalidState(apperr.CodeBidNotPending, "Cannot withdraw a bid that has been processed")
		}

		if err := tx.DeleteBid(bidID); err != nil {
			return err
		}
		withdrawn = *locked
		return tx.AdjustBidsCount(b.GigID, -1)
	})
	if err != nil {
		return apperr.FromStore(err, "Bid not found")
	}

	log.Printf("[Bids] bid %s withdrawn from gig %s", withdrawn.ID, withdrawn.GigID)
	events.Emit(context.WithoutCancel(ctx), l.Events, events.RKBidWithdrawn, events.BidWithdrawn{
		BidID:        withdrawn.ID.String(),
		GigID:        withdrawn.GigID.String(),
		FreelancerID: withdrawn.FreelancerID.String(),
		At:           l.Now().Unix(),
	})
	return nil
}

func (l *Ledger) ListForGig(ctx context.Context, gigID uuid.UUID) ([]models.Bid, error) {
	if _, err := l.Store.GigByID(ctx, gigID); err != nil {
		return nil, apperr.FromStore(err, "Gig not found")
	}
	bids, err := l.Store.BidsByGig(ctx, gigID)
	if err != nil {
		return nil, apperr.FromStore(err, "Gig not found")
	}
	return bids, nil
}

// ListForFreelancer returns the freelancer's bids; status "" or "all" means every status.
func (l *Ledger) ListForFreelancer(ctx context.Context, freelancerID uuid.UUID, status string) ([]models.Bid, error) {
	var st models.BidStatus
	if status != "" && status != "all" {
		st = models.BidStatus(status)
		if !models.ValidBidStatus(st) {
			fe := apperr.FieldErrors{}
			fe.Add("status", "Unknown bid status")
			return nil, fe.Err()
		}
	}
	bids, err := l.Store.BidsByFreelancer(ctx, freelancerID, st)
	if err != nil {
		return nil, apperr.FromStore(err, "Bids not found")
	}
	return bids, nil
}

func (l *Ledger) Stats(ctx context.Context, userID uuid.UUID) (*stats.Summary, error) {
	s, err := l.StatsService.Summary(ctx, userID)
	if err != nil {
		return nil, apperr.FromStore(err, "User not found")
	}
	return s, nil
}

func bidExists() *apperr.Error {
	return apperr.Conflict(apperr.CodeBidExists, "You have already submitted a bid for this gig")
}

func isDuplicate(err error) bool {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Code == apperr.CodeDuplicate
	}
	return errors.Is(err, store.ErrDuplicate)
}
