package models

import (
	"time"

	"gorm.io/gorm"
)

type APIKey struct {
	gorm.Model
	UserID     string     `gorm:"size:36;index" json:"user_id"`
	User       User       `json:"-"`
	Key        string     `gorm:"uniqueIndex;size:64" json:"key"`
	Name       string     `json:"name"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
