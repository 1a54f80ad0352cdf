// Package store defines the persistence contract the GigFlow services run against.
//
// A Store hands out transactions scoped to one unit of work. Implementations must give
// each transaction a consistent view of the records it reads, and must refuse to commit
// when a record the transaction locked or wrote was changed by someone else in the
// meantime (ErrWriteConflict). Conditional writes (TransitionGig, TransitionBids) are
// the compare-and-set gates the services use for admission decisions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/models"
)

var (
	ErrNotFound      = errors.New("store: record not found")
	ErrDuplicate     = errors.New("store: duplicate key")
	ErrWriteConflict = errors.New("store: write conflict")
	// ErrStale is returned by conditional writes whose guard no longer holds.
	ErrStale = errors.New("store: stale write")
)

type Store interface {
	Reader
	// WithinTx runs fn in a transaction. A nil return commits; any error rolls back
	// everything fn wrote and is returned (possibly wrapped) to the caller.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader serves the read models outside a transaction.
type Reader interface {
	GigByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	GigsByClient(ctx context.Context, clientID uuid.UUID, status models.GigStatus) ([]models.Gig, error)
	BidByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	BidsByGig(ctx context.Context, gigID uuid.UUID) ([]models.Bid, error)
	BidsByFreelancer(ctx context.Context, freelancerID uuid.UUID, status models.BidStatus) ([]models.Bid, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

type Tx interface {
	Gig(id uuid.UUID) (*models.Gig, error)
	// LockGig reads the gig and claims it for this transaction. Every operation that
	// changes a gig or the set of bids under it locks the gig first.
	LockGig(id uuid.UUID) (*models.Gig, error)
	Bid(id uuid.UUID) (*models.Bid, error)
	LockBid(id uuid.UUID) (*models.Bid, error)
	BidsByGig(gigID uuid.UUID) ([]models.Bid, error)
	BidByGigAndFreelancer(gigID, freelancerID uuid.UUID) (*models.Bid, error)
	User(id uuid.UUID) (*models.User, error)
	UserByEmail(email string) (*models.User, error)

	CreateGig(g *models.Gig) error
	// TransitionGig stores g only if the persisted status still equals from,
	// otherwise ErrStale. g.Version is advanced on success.
	TransitionGig(g *models.Gig, from models.GigStatus) error
	// DeleteGig removes the gig and every bid under it.
	DeleteGig(id uuid.UUID) error
	AdjustBidsCount(gigID uuid.UUID, delta int) error

	CreateBid(b *models.Bid) error
	// TransitionBids moves every listed bid whose status is from to status to,
	// stamping at. It returns how many bids moved.
	TransitionBids(ids []uuid.UUID, from, to models.BidStatus, at time.Time) (int, error)
	DeleteBid(id uuid.UUID) error

	CreateUser(u *models.User) error
	UpdateUserProfile(u *models.User) error
	// AddUserStats adds delta to the user's counters. Deltas commute, so concurrent
	// transactions adding to the same user never conflict with each other.
	AddUserStats(userID uuid.UUID, delta models.UserStats) error
}
