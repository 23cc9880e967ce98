package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	DiscordID    *string   `gorm:"uniqueIndex;size:32" json:"-"`
	Email        *string   `gorm:"uniqueIndex;size:191" json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Username     string    `gorm:"size:100" json:"username"`
	Avatar       string    `json:"avatar,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
