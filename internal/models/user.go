package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserStats are the denormalized counters kept on a user. Services only ever add deltas.
type UserStats struct {
	GigsPosted    int     `gorm:"not null;default:0" json:"gigs_posted"`
	GigsCompleted int     `gorm:"not null;default:0" json:"gigs_completed"`
	GigsWon       int     `gorm:"not null;default:0" json:"gigs_won"`
	TotalEarnings float64 `gorm:"not null;default:0" json:"total_earnings"`
	TotalSpent    float64 `gorm:"not null;default:0" json:"total_spent"`
}

func (s UserStats) IsZero() bool {
	return s == UserStats{}
}

func (s UserStats) Add(d UserStats) UserStats {
	return UserStats{
		GigsPosted:    s.GigsPosted + d.GigsPosted,
		GigsCompleted: s.GigsCompleted + d.GigsCompleted,
		GigsWon:       s.GigsWon + d.GigsWon,
		TotalEarnings: s.TotalEarnings + d.TotalEarnings,
		TotalSpent:    s.TotalSpent + d.TotalSpent,
	}
}

// User is the durable account. Online presence is not stored here; see realtime.Presence.
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name  string    `gorm:"not null" json:"name"`
	Email string    `gorm:"uniqueIndex;not null" json:"email"`

	Password string `gorm:"not null" json:"-"`
	Avatar   string `gorm:"type:text" json:"avatar"`
	Bio      string `gorm:"type:text" json:"bio"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	Stats UserStats `gorm:"embedded" json:"stats"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}
