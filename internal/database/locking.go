package database

import (
	"errors"

	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockEvent loads the event inside tx with SELECT ... FOR UPDATE. The sqlite
// dialect drops the locking clause; there the transaction itself holds the
// database write lock.
func LockEvent(tx *gorm.DB, eventID string, event *models.Event) error {
	err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(event, "id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrEventNotFound
	}
	return err
}
