// Package memstore is an in-process store.Store.
//
// Every transaction works on a private snapshot taken when it begins. Nothing is
// visible to other transactions until commit, and commit validates optimistically:
// if any gig or bid the transaction locked or wrote, or the bid set of a gig whose
// bids it listed, changed since the snapshot, the whole transaction is discarded with
// store.ErrWriteConflict. Counter deltas (bids count, user stats) commute and are
// applied on top of the current values without validation.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	gigs    map[uuid.UUID]models.Gig
	bids    map[uuid.UUID]models.Bid
	users   map[uuid.UUID]models.User
	bidSets map[uuid.UUID]int64 // gig id -> bid set version
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		gigs:    make(map[uuid.UUID]models.Gig),
		bids:    make(map[uuid.UUID]models.Bid),
		users:   make(map[uuid.UUID]models.User),
		bidSets: make(map[uuid.UUID]int64),
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := s.begin()
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) GigByID(_ context.Context, id uuid.UUID) (*models.Gig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gigs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := g.Clone()
	return &out, nil
}

func (s *Store) GigsByClient(_ context.Context, clientID uuid.UUID, status models.GigStatus) ([]models.Gig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Gig, 0)
	for _, g := range s.gigs {
		if g.ClientID != clientID || (status != "" && g.Status != status) {
			continue
		}
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out, nil
}

func (s *Store) BidByID(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bids[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := b.Clone()
	return &out, nil
}

func (s *Store) BidsByGig(_ context.Context, gigID uuid.UUID) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bidsWhere(s.bids, func(b models.Bid) bool { return b.GigID == gigID }), nil
}

func (s *Store) BidsByFreelancer(_ context.Context, freelancerID uuid.UUID, status models.BidStatus) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bidsWhere(s.bids, func(b models.Bid) bool {
		return b.FreelancerID == freelancerID && (status == "" || b.Status == status)
	}), nil
}

func (s *Store) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

type set map[uuid.UUID]struct{}

func (s set) add(id uuid.UUID) { s[id] = struct{}{} }

func (s set) has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

type tx struct {
	gigs    map[uuid.UUID]models.Gig
	bids    map[uuid.UUID]models.Bid
	users   map[uuid.UUID]models.User
	bidSets map[uuid.UUID]int64

	baseGigs map[uuid.UUID]int64
	baseBids map[uuid.UUID]int64

	lockedGigs  set
	lockedBids  set
	listedSets  set
	writtenGigs set
	createdGigs set
	deletedGigs set
	writtenBids set
	createdBids set
	deletedBids set
	touchedSets set

	createdUsers set
	profileUsers set

	bidsCount map[uuid.UUID]int
	stats     map[uuid.UUID]models.UserStats
}

func (s *Store) begin() *tx {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := &tx{
		gigs:         make(map[uuid.UUID]models.Gig, len(s.gigs)),
		bids:         make(map[uuid.UUID]models.Bid, len(s.bids)),
		users:        make(map[uuid.UUID]models.User, len(s.users)),
		bidSets:      make(map[uuid.UUID]int64, len(s.bidSets)),
		baseGigs:     make(map[uuid.UUID]int64, len(s.gigs)),
		baseBids:     make(map[uuid.UUID]int64, len(s.bids)),
		lockedGigs:   set{},
		lockedBids:   set{},
		listedSets:   set{},
		writtenGigs:  set{},
		createdGigs:  set{},
		deletedGigs:  set{},
		writtenBids:  set{},
		createdBids:  set{},
		deletedBids:  set{},
		touchedSets:  set{},
		createdUsers: set{},
		profileUsers: set{},
		bidsCount:    make(map[uuid.UUID]int),
		stats:        make(map[uuid.UUID]models.UserStats),
	}
	for id, g := range s.gigs {
		t.gigs[id] = g.Clone()
		t.baseGigs[id] = g.Version
	}
	for id, b := range s.bids {
		t.bids[id] = b
		t.baseBids[id] = b.Version
	}
	for id, u := range s.users {
		t.users[id] = u
	}
	for id, v := range s.bidSets {
		t.bidSets[id] = v
	}
	return t
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(t); err != nil {
		return err
	}

	now := time.Now()
	bump := func(gigID uuid.UUID) { s.bidSets[gigID]++ }

	for id := range t.deletedGigs {
		delete(s.gigs, id)
		for bid, b := range s.bids {
			if b.GigID == id {
				delete(s.bids, bid)
			}
		}
		bump(id)
	}

	for id := range t.writtenGigs {
		if t.deletedGigs.has(id) {
			continue
		}
		g := t.gigs[id].Clone()
		if cur, ok := s.gigs[id]; ok {
			g.BidsCount = cur.BidsCount + t.bidsCount[id]
		}
		s.gigs[id] = g
	}
	for id, delta := range t.bidsCount {
		if t.writtenGigs.has(id) {
			continue
		}
		if cur, ok := s.gigs[id]; ok {
			cur.BidsCount += delta
			cur.UpdatedAt = now
			s.gigs[id] = cur
		}
	}

	for id := range t.deletedBids {
		if b, ok := s.bids[id]; ok {
			delete(s.bids, id)
			bump(b.GigID)
		}
	}
	for id := range t.writtenBids {
		if t.deletedBids.has(id) || t.deletedGigs.has(t.bids[id].GigID) {
			continue
		}
		s.bids[id] = t.bids[id]
	}
	for id := range t.touchedSets {
		if !t.deletedGigs.has(id) {
			bump(id)
		}
	}

	for id := range t.createdUsers {
		s.users[id] = t.users[id]
	}
	for id := range t.profileUsers {
		cur, ok := s.users[id]
		if !ok {
			continue
		}
		next := t.users[id]
		cur.Name, cur.Avatar, cur.Bio, cur.IsActive, cur.Password = next.Name, next.Avatar, next.Bio, next.IsActive, next.Password
		cur.UpdatedAt = next.UpdatedAt
		s.users[id] = cur
	}
	for id, delta := range t.stats {
		if cur, ok := s.users[id]; ok {
			cur.Stats = cur.Stats.Add(delta)
			cur.UpdatedAt = now
			s.users[id] = cur
		}
	}
	return nil
}

func (s *Store) validate(t *tx) error {
	for id := range union(t.lockedGigs, t.writtenGigs, t.deletedGigs) {
		if t.createdGigs.has(id) {
			if _, exists := s.gigs[id]; exists {
				return store.ErrDuplicate
			}
			continue
		}
		if !sameVersion(s.gigs, t.baseGigs, id, func(g models.Gig) int64 { return g.Version }) {
			return store.ErrWriteConflict
		}
	}
	for id := range union(t.lockedBids, t.writtenBids, t.deletedBids) {
		if t.createdBids.has(id) {
			continue
		}
		if !sameVersion(s.bids, t.baseBids, id, func(b models.Bid) int64 { return b.Version }) {
			return store.ErrWriteConflict
		}
	}
	for gigID := range t.listedSets {
		if s.bidSets[gigID] != t.baseSet(gigID) {
			return store.ErrWriteConflict
		}
	}
	for id := range t.createdBids {
		nb := t.bids[id]
		if _, exists := s.bids[id]; exists {
			return store.ErrDuplicate
		}
		for oid, ob := range s.bids {
			if ob.GigID == nb.GigID && ob.FreelancerID == nb.FreelancerID && !t.deletedBids.has(oid) {
				return store.ErrDuplicate
			}
		}
	}
	for id := range t.createdUsers {
		nu := t.users[id]
		for _, ou := range s.users {
			if ou.ID == nu.ID || strings.EqualFold(ou.Email, nu.Email) {
				return store.ErrDuplicate
			}
		}
	}
	return nil
}

// baseSet is the bid set version the transaction started from. bidSets in the
// snapshot is never modified by the transaction itself.
func (t *tx) baseSet(gigID uuid.UUID) int64 {
	return t.bidSets[gigID]
}

func sameVersion[T any](cur map[uuid.UUID]T, base map[uuid.UUID]int64, id uuid.UUID, version func(T) int64) bool {
	rec, exists := cur[id]
	baseVer, existed := base[id]
	if exists != existed {
		return false
	}
	return !exists || version(rec) == baseVer
}

func union(sets ...set) set {
	out := set{}
	for _, s := range sets {
		for id := range s {
			out.add(id)
		}
	}
	return out
}

func (t *tx) Gig(id uuid.UUID) (*models.Gig, error) {
	g, ok := t.gigs[id]
	if !ok || t.deletedGigs.has(id) {
		return nil, store.ErrNotFound
	}
	out := g.Clone()
	return &out, nil
}

func (t *tx) LockGig(id uuid.UUID) (*models.Gig, error) {
	g, err := t.Gig(id)
	if err != nil {
		return nil, err
	}
	t.lockedGigs.add(id)
	return g, nil
}

func (t *tx) Bid(id uuid.UUID) (*models.Bid, error) {
	b, ok := t.bids[id]
	if !ok || t.deletedBids.has(id) || t.deletedGigs.has(b.GigID) {
		return nil, store.ErrNotFound
	}
	out := b.Clone()
	return &out, nil
}

func (t *tx) LockBid(id uuid.UUID) (*models.Bid, error) {
	b, err := t.Bid(id)
	if err != nil {
		return nil, err
	}
	t.lockedBids.add(id)
	return b, nil
}

func (t *tx) BidsByGig(gigID uuid.UUID) ([]models.Bid, error) {
	t.listedSets.add(gigID)
	return bidsWhere(t.bids, func(b models.Bid) bool {
		return b.GigID == gigID && !t.deletedBids.has(b.ID) && !t.deletedGigs.has(gigID)
	}), nil
}

func (t *tx) BidByGigAndFreelancer(gigID, freelancerID uuid.UUID) (*models.Bid, error) {
	for id, b := range t.bids {
		if b.GigID == gigID && b.FreelancerID == freelancerID && !t.deletedBids.has(id) {
			out := b.Clone()
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) User(id uuid.UUID) (*models.User, error) {
	u, ok := t.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (t *tx) UserByEmail(email string) (*models.User, error) {
	for _, u := range t.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) CreateGig(g *models.Gig) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if _, exists := t.gigs[g.ID]; exists {
		return store.ErrDuplicate
	}
	stampTimes(&g.CreatedAt, &g.UpdatedAt)
	g.Version = 1
	t.gigs[g.ID] = g.Clone()
	t.createdGigs.add(g.ID)
	t.writtenGigs.add(g.ID)
	return nil
}

func (t *tx) TransitionGig(g *models.Gig, from models.GigStatus) error {
	cur, ok := t.gigs[g.ID]
	if !ok || t.deletedGigs.has(g.ID) {
		return store.ErrNotFound
	}
	if cur.Status != from {
		return store.ErrStale
	}
	g.Version = cur.Version + 1
	g.BidsCount = cur.BidsCount
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	t.gigs[g.ID] = g.Clone()
	t.writtenGigs.add(g.ID)
	return nil
}

func (t *tx) DeleteGig(id uuid.UUID) error {
	if _, ok := t.gigs[id]; !ok || t.deletedGigs.has(id) {
		return store.ErrNotFound
	}
	t.deletedGigs.add(id)
	return nil
}

func (t *tx) AdjustBidsCount(gigID uuid.UUID, delta int) error {
	g, ok := t.gigs[gigID]
	if !ok || t.deletedGigs.has(gigID) {
		return store.ErrNotFound
	}
	g.BidsCount += delta
	t.gigs[gigID] = g
	t.bidsCount[gigID] += delta
	return nil
}

func (t *tx) CreateBid(b *models.Bid) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if _, exists := t.bids[b.ID]; exists {
		return store.ErrDuplicate
	}
	if _, err := t.BidByGigAndFreelancer(b.GigID, b.FreelancerID); err == nil {
		return store.ErrDuplicate
	}
	stampTimes(&b.CreatedAt, &b.UpdatedAt)
	b.Version = 1
	t.bids[b.ID] = b.Clone()
	t.createdBids.add(b.ID)
	t.writtenBids.add(b.ID)
	t.touchedSets.add(b.GigID)
	return nil
}

func (t *tx) TransitionBids(ids []uuid.UUID, from, to models.BidStatus, at time.Time) (int, error) {
	moved := 0
	for _, id := range ids {
		b, ok := t.bids[id]
		if !ok || t.deletedBids.has(id) || b.Status != from {
			continue
		}
		b.Stamp(to, at)
		b.Version++
		t.bids[id] = b
		t.writtenBids.add(id)
		t.touchedSets.add(b.GigID)
		moved++
	}
	return moved, nil
}

func (t *tx) DeleteBid(id uuid.UUID) error {
	b, ok := t.bids[id]
	if !ok || t.deletedBids.has(id) {
		return store.ErrNotFound
	}
	t.deletedBids.add(id)
	t.touchedSets.add(b.GigID)
	return nil
}

func (t *tx) CreateUser(u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if _, err := t.UserByEmail(u.Email); err == nil {
		return store.ErrDuplicate
	}
	stampTimes(&u.CreatedAt, &u.UpdatedAt)
	t.users[u.ID] = *u
	t.createdUsers.add(u.ID)
	return nil
}

func (t *tx) UpdateUserProfile(u *models.User) error {
	cur, ok := t.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Name, cur.Avatar, cur.Bio, cur.IsActive, cur.Password = u.Name, u.Avatar, u.Bio, u.IsActive, u.Password
	cur.UpdatedAt = time.Now()
	t.users[u.ID] = cur
	if !t.createdUsers.has(u.ID) {
		t.profileUsers.add(u.ID)
	}
	return nil
}

func (t *tx) AddUserStats(userID uuid.UUID, delta models.UserStats) error {
	u, ok := t.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Stats = u.Stats.Add(delta)
	t.users[userID] = u
	if t.createdUsers.has(userID) {
		return nil
	}
	t.stats[userID] = t.stats[userID].Add(delta)
	return nil
}

func bidsWhere(bids map[uuid.UUID]models.Bid, keep func(models.Bid) bool) []models.Bid {
	out := make([]models.Bid, 0)
	for _, b := range bids {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out
}

// newer orders newest first, ties broken by id so listings are stable.
func newer(a, b time.Time, aID, bID uuid.UUID) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID.String() < bID.String()
}

func stampTimes(created, updated *time.Time) {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}
