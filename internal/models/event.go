package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is a capacity-bounded gathering. CurrentAttendees mirrors the number
// of RSVP rows for the event and is only written by the admission package.
type Event struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	CreatorID        string    `gorm:"size:36;index;not null" json:"creatorId"`
	Creator          User      `gorm:"foreignKey:CreatorID" json:"-"`
	Title            string    `gorm:"size:200;not null" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	Date             time.Time `gorm:"index" json:"date"`
	Location         string    `gorm:"size:200" json:"location"`
	Capacity         int       `gorm:"not null" json:"capacity"`
	CurrentAttendees int       `gorm:"not null;default:0" json:"currentAttendees"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// IsFull reports whether no seats remain.
func (e *Event) IsFull() bool {
	return e.CurrentAttendees >= e.Capacity
}
