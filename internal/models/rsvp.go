package models

import (
	"time"
)

// RSVP is one ledger entry. The composite unique index is what makes a
// second concurrent join for the same user fail at the storage layer.
type RSVP struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	UserID   string    `gorm:"size:36;not null;uniqueIndex:idx_rsvp_user_event" json:"userId"`
	EventID  string    `gorm:"size:36;not null;uniqueIndex:idx_rsvp_user_event;index" json:"eventId"`
	User     User      `gorm:"foreignKey:UserID" json:"-"`
	JoinedAt time.Time `json:"joinedAt"`
}

func (RSVP) TableName() string {
	return "rsvps"
}
