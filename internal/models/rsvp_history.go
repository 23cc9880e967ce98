package models

import (
	"time"
)

const (
	ActionJoined  = "joined"
	ActionLeft    = "left"
	ActionRemoved = "removed"
)

type RSVPHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:36;index;not null" json:"userId"`
	EventID   string    `gorm:"size:36;index;not null" json:"eventId"`
	Action    string    `gorm:"size:16;not null" json:"action"`
	Attendees int       `json:"attendees"`
	CreatedAt time.Time `json:"createdAt"`
}

func (RSVPHistory) TableName() string {
	return "rsvp_history"
}
