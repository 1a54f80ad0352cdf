package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GigStatus string

const (
	GigOpen      GigStatus = "open"
	GigAssigned  GigStatus = "assigned"
	GigCompleted GigStatus = "completed"
	GigCancelled GigStatus = "cancelled"
)

func ValidGigStatus(s GigStatus) bool {
	switch s {
	case GigOpen, GigAssigned, GigCompleted, GigCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// open -> assigned -> completed, or open -> cancelled. Nothing leaves completed or cancelled.
func (s GigStatus) CanTransitionTo(next GigStatus) bool {
	switch s {
	case GigOpen:
		return next == GigAssigned || next == GigCancelled
	case GigAssigned:
		return next == GigCompleted
	default:
		return false
	}
}

// Categories is the fixed list a gig category must come from.
var Categories = []string{
	"Web Development",
	"Mobile Development",
	"UI/UX Design",
	"Graphic Design",
	"Content Writing",
	"Digital Marketing",
	"Video Editing",
	"Data Entry",
	"Virtual Assistant",
	"Other",
}

func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

type Gig struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`

	Title       string                      `gorm:"type:varchar(100);not null" json:"title"`
	Description string                      `gorm:"type:text;not null" json:"description"`
	Budget      float64                     `gorm:"not null" json:"budget"`
	Category    string                      `gorm:"type:varchar(40);not null;index" json:"category"`
	Skills      datatypes.JSONSlice[string] `json:"skills"`
	Deadline    time.Time                   `gorm:"not null" json:"deadline"`

	Status GigStatus `gorm:"type:varchar(20);not null;default:'open';index:idx_gigs_status_created" json:"status"`

	// Both nil iff Status is open.
	AssignedFreelancerID *uuid.UUID `gorm:"type:uuid;index" json:"assigned_freelancer_id"`
	AssignedBidID        *uuid.UUID `gorm:"type:uuid" json:"assigned_bid_id"`
	AssignedAt           *time.Time `json:"assigned_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`

	// Display only; never used for admission decisions.
	BidsCount int `gorm:"not null;default:0" json:"bids_count"`

	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"index:idx_gigs_status_created" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Client *User `gorm:"foreignKey:ClientID" json:"client,omitempty"`
}

func (g *Gig) BeforeCreate(tx *gorm.DB) (err error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return
}

// Clone returns a copy that shares no mutable state with g.
func (g Gig) Clone() Gig {
	out := g
	if g.Skills != nil {
		out.Skills = append(datatypes.JSONSlice[string]{}, g.Skills...)
	}
	out.Client = nil
	return out
}
