// Package gormstore implements store.Store on postgres through gorm.
//
// Admission is pessimistic: every mutating unit of work takes a FOR UPDATE lock on the
// gig row first (lock order gig, then bids), and the state transitions are issued as
// conditional updates so a stale read can never overwrite a newer status.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gigflow/gigflow-api/internal/models"
	"github.com/gigflow/gigflow-api/internal/store"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

// New wraps db. timeout bounds every transaction; zero means the caller's context only.
func New(db *gorm.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&tx{db: gtx})
	})
	return translate(err)
}

func (s *Store) GigByID(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	var g models.Gig
	if err := s.db.WithContext(ctx).Preload("Client").First(&g, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (s *Store) GigsByClient(ctx context.Context, clientID uuid.UUID, status models.GigStatus) ([]models.Gig, error) {
	q := s.db.WithContext(ctx).Where("client_id = ?", clientID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var gigs []models.Gig
	if err := q.Order("created_at DESC").Find(&gigs).Error; err != nil {
		return nil, translate(err)
	}
	return gigs, nil
}

func (s *Store) BidByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	var b models.Bid
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (s *Store) BidsByGig(ctx context.Context, gigID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	if err := s.db.WithContext(ctx).
		Preload("Freelancer").
		Where("gig_id = ?", gigID).
		Order("created_at DESC").
		Find(&bids).Error; err != nil {
		return nil, translate(err)
	}
	return bids, nil
}

func (s *Store) BidsByFreelancer(ctx context.Context, freelancerID uuid.UUID, status models.BidStatus) ([]models.Bid, error) {
	q := s.db.WithContext(ctx).Preload("Gig").Where("freelancer_id = ?", freelancerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var bids []models.Bid
	if err := q.Order("created_at DESC").Find(&bids).Error; err != nil {
		return nil, translate(err)
	}
	return bids, nil
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

type tx struct {
	db *gorm.DB
}

func (t *tx) Gig(id uuid.UUID) (*models.Gig, error) {
	var g models.Gig
	if err := t.db.First(&g, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (t *tx) LockGig(id uuid.UUID) (*models.Gig, error) {
	var g models.Gig
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&g, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (t *tx) Bid(id uuid.UUID) (*models.Bid, error) {
	var b models.Bid
	if err := t.db.First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (t *tx) LockBid(id uuid.UUID) (*models.Bid, error) {
	var b models.Bid
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (t *tx) BidsByGig(gigID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	if err := t.db.Where("gig_id = ?", gigID).Order("created_at DESC").Find(&bids).Error; err != nil {
		return nil, translate(err)
	}
	return bids, nil
}

func (t *tx) BidByGigAndFreelancer(gigID, freelancerID uuid.UUID) (*models.Bid, error) {
	var b models.Bid
	if err := t.db.Where("gig_id = ? AND freelancer_id = ?", gigID, freelancerID).First(&b).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (t *tx) User(id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := t.db.First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (t *tx) UserByEmail(email string) (*models.User, error) {
	var u models.User
	if err := t.db.Where("LOWER(email) = LOWER(?)", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (t *tx) CreateGig(g *models.Gig) error {
	g.Version = 1
	return translate(t.db.Omit(clause.Associations).Create(g).Error)
}

func (t *tx) TransitionGig(g *models.Gig, from models.GigStatus) error {
	now := time.Now()
	res := t.db.Model(&models.Gig{}).
		Where("id = ? AND status = ?", g.ID, from).
		Updates(map[string]interface{}{
			"title":                  g.Title,
			"description":            g.Description,
			"budget":                 g.Budget,
			"category":               g.Category,
			"skills":                 g.Skills,
			"deadline":               g.Deadline,
			"status":                 g.Status,
			"assigned_freelancer_id": g.AssignedFreelancerID,
			"assigned_bid_id":        g.AssignedBidID,
			"assigned_at":            g.AssignedAt,
			"completed_at":           g.CompletedAt,
			"cancelled_at":           g.CancelledAt,
			"version":                gorm.Expr("version + 1"),
			"updated_at":             now,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrStale
	}
	g.Version++
	g.UpdatedAt = now
	return nil
}

func (t *tx) DeleteGig(id uuid.UUID) error {
	if err := t.db.Where("gig_id = ?", id).Delete(&models.Bid{}).Error; err != nil {
		return translate(err)
	}
	res := t.db.Delete(&models.Gig{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) AdjustBidsCount(gigID uuid.UUID, delta int) error {
	res := t.db.Model(&models.Gig{}).
		Where("id = ?", gigID).
		Update("bids_count", gorm.Expr("bids_count + ?", delta))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) CreateBid(b *models.Bid) error {
	b.Version = 1
	return translate(t.db.Omit(clause.Associations).Create(b).Error)
}

func (t *tx) TransitionBids(ids []uuid.UUID, from, to models.BidStatus, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	updates := map[string]interface{}{
		"status":     to,
		"version":    gorm.Expr("version + 1"),
		"updated_at": at,
	}
	if col := models.StampColumn(to); col != "" {
		updates[col] = at
	}
	res := t.db.Model(&models.Bid{}).
		Where("id IN ? AND status = ?", ids, from).
		Updates(updates)
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return int(res.RowsAffected), nil
}

func (t *tx) DeleteBid(id uuid.UUID) error {
	res := t.db.Delete(&models.Bid{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) CreateUser(u *models.User) error {
	return translate(t.db.Create(u).Error)
}

func (t *tx) UpdateUserProfile(u *models.User) error {
	res := t.db.Model(&models.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]interface{}{
			"name":       u.Name,
			"avatar":     u.Avatar,
			"bio":        u.Bio,
			"is_active":  u.IsActive,
			"password":   u.Password,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) AddUserStats(userID uuid.UUID, d models.UserStats) error {
	if d.IsZero() {
		return nil
	}
	updates := map[string]interface{}{"updated_at": time.Now()}
	if d.GigsPosted != 0 {
		updates["gigs_posted"] = gorm.Expr("gigs_posted + ?", d.GigsPosted)
	}
	if d.GigsCompleted != 0 {
		updates["gigs_completed"] = gorm.Expr("gigs_completed + ?", d.GigsCompleted)
	}
	if d.GigsWon != 0 {
		updates["gigs_won"] = gorm.Expr("gigs_won + ?", d.GigsWon)
	}
	if d.TotalEarnings != 0 {
		updates["total_earnings"] = gorm.Expr("total_earnings + ?", d.TotalEarnings)
	}
	if d.TotalSpent != 0 {
		updates["total_spent"] = gorm.Expr("total_spent + ?", d.TotalSpent)
	}
	res := t.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	return nil
}

// translate maps driver errors onto the store sentinels; anything else passes through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrDuplicate) ||
		errors.Is(err, store.ErrWriteConflict) || errors.Is(err, store.ErrStale) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %s", store.ErrWriteConflict, pgErr.Message)
		}
	}
	return err
}
