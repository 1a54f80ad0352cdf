package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidHired     BidStatus = "hired"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

func ValidBidStatus(s BidStatus) bool {
	switch s {
	case BidPending, BidHired, BidRejected, BidWithdrawn:
		return true
	default:
		return false
	}
}

// Terminal: hired, rejected and withdrawn never change again.
func (s BidStatus) Terminal() bool {
	return s != BidPending
}

const (
	MinBidAmount      = 5
	MinBidMessage     = 20
	MaxBidMessage     = 1000
	MinBidDeliveryDay = 1
)

type Bid struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GigID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_bids_gig_freelancer;index:idx_bids_gig_status" json:"gig_id"`
	FreelancerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_bids_gig_freelancer;index:idx_bids_freelancer_status" json:"freelancer_id"`

	Amount       float64 `gorm:"not null" json:"amount"`
	Message      string  `gorm:"type:varchar(1000);not null" json:"message"`
	DeliveryTime int     `gorm:"not null" json:"delivery_time"` // days

	Status BidStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_bids_gig_status;index:idx_bids_freelancer_status" json:"status"`

	HiredAt     *time.Time `json:"hired_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`

	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Freelancer *User `gorm:"foreignKey:FreelancerID" json:"freelancer,omitempty"`
	Gig        *Gig  `gorm:"foreignKey:GigID" json:"gig,omitempty"`
}

func (b *Bid) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return
}

// Stamp moves the bid to status and records when it happened.
func (b *Bid) Stamp(status BidStatus, at time.Time) {
	b.Status = status
	b.UpdatedAt = at
	switch status {
	case BidHired:
		b.HiredAt = &at
	case BidRejected:
		b.RejectedAt = &at
	case BidWithdrawn:
		b.WithdrawnAt = &at
	}
}

// StampColumn is the timestamp column Stamp fills for status, empty for pending.
func StampColumn(status BidStatus) string {
	switch status {
	case BidHired:
		return "hired_at"
	case BidRejected:
		return "rejected_at"
	case BidWithdrawn:
		return "withdrawn_at"
	}
	return ""
}

func (b Bid) Clone() Bid {
	out := b
	out.Freelancer = nil
	out.Gig = nil
	return out
}
