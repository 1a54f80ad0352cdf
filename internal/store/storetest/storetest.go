// Package storetest seeds an in-memory store for service and handler tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/store"
	"github.com/gigflow/gigflow-api/internal/store/memstore"
)

type Fixture struct {
	Store *memstore.Store
	t     testing.TB
	n     int
}

func New(t testing.TB) *Fixture {
	return &Fixture{Store: memstore.New(), t: t}
}

func (f *Fixture) tx(fn func(tx store.Tx) error) {
	f.t.Helper()
	require.NoError(f.t, f.Store.WithinTx(context.Background(), fn))
}

func (f *Fixture) User(name string) models.User {
	f.t.Helper()
	f.n++
	u := models.User{
		Name:     name,
		Email:    fmt.Sprintf("user%d@example.com", f.n),
		Password: "x",
		IsActive: true,
	}
	f.tx(func(tx store.Tx) error { return tx.CreateUser(&u) })
	return u
}

// Gig creates an open gig owned by clientID. opts may adjust it before it is stored.
func (f *Fixture) Gig(clientID uuid.UUID, opts ...func(*models.Gig)) models.Gig {
	f.t.Helper()
	g := models.Gig{
		ClientID:    clientID,
		Title:       "Build a marketing site",
		Description: "A five page marketing site with a contact form and a blog section.",
		Budget:      500,
		Category:    "Web Development",
		Deadline:    time.Now().Add(14 * 24 * time.Hour),
		Status:      models.GigOpen,
	}
	for _, o := range opts {
		o(&g)
	}
	f.tx(func(tx store.Tx) error {
		if err := tx.CreateGig(&g); err != nil {
			return err
		}
		return tx.AddUserStats(clientID, models.UserStats{GigsPosted: 1})
	})
	return g
}

func (f *Fixture) Bid(gigID, freelancerID uuid.UUID, amount float64) models.Bid {
	f.t.Helper()
	b := models.Bid{
		GigID:        gigID,
		FreelancerID: freelancerID,
		Amount:       amount,
		Message:      "I have built many of these and can start right away.",
		DeliveryTime: 7,
		Status:       models.BidPending,
	}
	f.tx(func(tx store.Tx) error {
		if err := tx.CreateBid(&b); err != nil {
			return err
		}
		return tx.AdjustBidsCount(gigID, 1)
	})
	return b
}

func (f *Fixture) GetGig(id uuid.UUID) models.Gig {
	f.t.Helper()
	g, err := f.Store.GigByID(context.Background(), id)
	require.NoError(f.t, err)
	return *g
}

func (f *Fixture) GetBid(id uuid.UUID) models.Bid {
	f.t.Helper()
	b, err := f.Store.BidByID(context.Background(), id)
	require.NoError(f.t, err)
	return *b
}

func (f *Fixture) GetUser(id uuid.UUID) models.User {
	f.t.Helper()
	u, err := f.Store.UserByID(context.Background(), id)
	require.NoError(f.t, err)
	return *u
}

// BidsByStatus counts the gig's bids per status.
func (f *Fixture) BidsByStatus(gigID uuid.UUID) map[models.BidStatus]int {
	f.t.Helper()
	bids, err := f.Store.BidsByGig(context.Background(), gigID)
	require.NoError(f.t, err)
	out := make(map[models.BidStatus]int)
	for _, b := range bids {
		out[b.Status]++
	}
	return out
}
