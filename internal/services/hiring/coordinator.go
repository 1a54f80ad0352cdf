package hiring

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/events"
	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/notify"
	"github.com/gigflow/gigflow-api/internal/services/stats"
	"github.com/gigflow/gigflow-api/internal/store"
)

// Notifier receives the outcome of a committed hire.
type Notifier interface {
	Hired(ctx context.Context, ev notify.HiredEvent) error
}

type Result struct {
	Gig      models.Gig `json:"gig"`
	Bid      models.Bid `json:"bid"`
	Rejected int        `json:"rejected_count"`
}

type Coordinator struct {
	Store  store.Store
	Stats  *stats.StatsService
	Notify Notifier
	Events events.Publisher
	Now    func() time.Time

	tracer trace.Tracer
}

func NewCoordinator(st store.Store, ss *stats.StatsService, n Notifier, pub events.Publisher) *Coordinator {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Coordinator{
		Store:  st,
		Stats:  ss,
		Notify: n,
		Events: pub,
		Now:    time.Now,
		tracer: otel.Tracer("gigflow/hiring"),
	}
}

// Hire assigns the bid's gig to the bid's freelancer and rejects every other pending bid,
// atomically. Of any number of concurrent hires on one gig at most one succeeds; the
// others fail with a Conflict and change nothing.
func (c *Coordinator) Hire(ctx context.Context, bidID, requesterID uuid.UUID) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "hiring.Hire", trace.WithAttributes(
		attribute.String("bid.id", bidID.String()),
		attribute.String("requester.id", requesterID.String()),
	))
	defer span.End()

	var (
		plan       Plan
		clientName string
		gigTitle   string
	)
	err := c.Store.WithinTx(ctx, func(tx store.Tx) error {
		bid, err := tx.Bid(bidID)
		if err != nil {
			return apperr.FromStore(err, "Bid not found")
		}
		gig, err := tx.LockGig(bid.GigID)
		if err != nil {
			return apperr.FromStore(err, "Gig not found")
		}
		span.SetAttributes(attribute.String("gig.id", gig.ID.String()))

		bids, err := tx.BidsByGig(gig.ID)
		if err != nil {
			return err
		}
		current, ok := find(bids, bidID)
		if !ok {
			return apperr.NotFound("Bid not found")
		}

		plan, err = Decide(Snapshot{Gig: *gig, Bid: current, Bids: bids}, requesterID, c.Now())
		if err != nil {
			return err
		}
		if err := c.apply(tx, plan); err != nil {
			return err
		}

		gigTitle = gig.Title
		if client, err := tx.User(gig.ClientID); err == nil {
			clientName = client.Name
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		err = apperr.FromStore(err, "Bid not found")
		span.SetAttributes(attribute.String("error.kind", string(apperr.KindOf(err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("[Hire] bid %s by %s failed: %v", bidID, requesterID, err)
		return nil, err
	}

	log.Printf("[Hire] gig %s assigned to %s (bid %s), rejected %d other bids",
		plan.Gig.ID, plan.Hired.FreelancerID, plan.Hired.ID, len(plan.Rejected))
	c.afterCommit(ctx, plan, gigTitle, clientName)

	return &Result{Gig: plan.Gig, Bid: plan.Hired, Rejected: len(plan.Rejected)}, nil
}

func (c *Coordinator) apply(tx store.Tx, plan Plan) error {
	if err := tx.TransitionGig(&plan.Gig, models.GigOpen); err != nil {
		if errors.Is(err, store.ErrStale) {
			return apperr.Conflict(apperr.CodeGigAlreadyAssigned, "This gig has already been assigned")
		}
		return err
	}

	at := *plan.Hired.HiredAt
	n, err := tx.TransitionBids([]uuid.UUID{plan.Hired.ID}, models.BidPending, models.BidHired, at)
	if err != nil {
		return err
	}
	if n != 1 {
		return apperr.Conflict(apperr.CodeWriteConflict, "The bid changed while hiring. Please try again.")
	}

	if ids := plan.RejectedIDs(); len(ids) > 0 {
		n, err := tx.TransitionBids(ids, models.BidPending, models.BidRejected, at)
		if err != nil {
			return err
		}
		if n != len(ids) {
			return apperr.Conflict(apperr.CodeWriteConflict, "Bids on this gig changed while hiring. Please try again.")
		}
	}

	return c.Stats.RecordWin(tx, plan.Hired.FreelancerID)
}

// afterCommit runs the side effects of a committed hire. Nothing here may fail the hire.
func (c *Coordinator) afterCommit(ctx context.Context, plan Plan, gigTitle, clientName string) {
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Hire] notifier panic for gig %s: %v", plan.Gig.ID, r)
		}
	}()

	if c.Notify != nil {
		err := c.Notify.Hired(ctx, notify.HiredEvent{
			GigID:        plan.Gig.ID,
			GigTitle:     gigTitle,
			BidID:        plan.Hired.ID,
			ClientID:     plan.Gig.ClientID,
			ClientName:   clientName,
			FreelancerID: plan.Hired.FreelancerID,
			Amount:       plan.Hired.Amount,
		})
		if err != nil {
			log.Printf("[Hire] notify gig %s: %v", plan.Gig.ID, err)
		}
	}

	events.Emit(ctx, c.Events, events.RKGigAssigned, events.GigAssigned{
		GigID:        plan.Gig.ID.String(),
		BidID:        plan.Hired.ID.String(),
		ClientID:     plan.Gig.ClientID.String(),
		FreelancerID: plan.Hired.FreelancerID.String(),
		Amount:       plan.Hired.Amount,
		Rejected:     len(plan.Rejected),
		At:           plan.Gig.UpdatedAt.Unix(),
	})
}

func find(bids []models.Bid, id uuid.UUID) (models.Bid, bool) {
	for _, b := range bids {
		if b.ID == id {
			return b, true
		}
	}
	return models.Bid{}, false
}
