// Package hiring implements the hire-a-freelancer transition.
//
// Decide is a pure function over a snapshot of one gig and its bids; the Coordinator
// loads that snapshot inside a store transaction, applies the resulting Plan with
// conditional writes, and only after commit hands the outcome to the notifier.
package hiring

import (
	"time"

	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/models"
)

// Snapshot is everything Decide looks at: the gig, the bid being hired and every bid
// currently filed against the gig (including the target).
type Snapshot struct {
	Gig  models.Gig
	Bid  models.Bid
	Bids []models.Bid
}

// Plan is the write-set of a hire.
type Plan struct {
	Gig         models.Gig
	Hired       models.Bid
	Rejected    []models.Bid
	WinnerStats models.UserStats
}

// RejectedIDs lists the ids of the bids the plan rejects.
func (p Plan) RejectedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Rejected))
	for _, b := range p.Rejected {
		ids = append(ids, b.ID)
	}
	return ids
}

// Decide checks a hire request against snap and returns the write-set to apply.
// It does no I/O; the same inputs always give the same result.
func Decide(snap Snapshot, requesterID uuid.UUID, now time.Time) (Plan, error) {
	gig, bid := snap.Gig, snap.Bid

	if bid.GigID != gig.ID {
		return Plan{}, apperr.Internal(nil, "Bid does not belong to this gig")
	}
	if gig.ClientID != requesterID {
		return Plan{}, apperr.Forbidden("Only the gig owner can hire")
	}
	if gig.Status != models.GigOpen {
		return Plan{}, apperr.Conflict(apperr.CodeGigAlreadyAssigned, "This gig has already been assigned")
	}
	if bid.Status != models.BidPending {
		return Plan{}, apperr.InvalidState(apperr.CodeBidNotPending, "This bid is no longer pending")
	}

	assigned := gig.Clone()
	at := now
	freelancerID, bidID := bid.FreelancerID, bid.ID
	assigned.Status = models.GigAssigned
	assigned.AssignedFreelancerID = &freelancerID
	assigned.AssignedBidID = &bidID
	assigned.AssignedAt = &at
	assigned.UpdatedAt = now

	hired := bid.Clone()
	hired.Stamp(models.BidHired, now)

	plan := Plan{
		Gig:         assigned,
		Hired:       hired,
		WinnerStats: models.UserStats{GigsWon: 1},
	}
	for _, other := range snap.Bids {
		if other.ID == bid.ID || other.Status != models.BidPending {
			continue
		}
		r := other.Clone()
		r.Stamp(models.BidRejected, now)
		plan.Rejected = append(plan.Rejected, r)
	}
	return plan, nil
}
