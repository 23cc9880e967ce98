// Package admission decides joins and leaves. Every decision runs in one
// transaction that locks the event row, so the attendee counter and the RSVP
// ledger change together or not at all.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gdg-garage/garage-rsvp-api/internal/database"
	"github.com/gdg-garage/garage-rsvp-api/internal/messaging"
	"github.com/gdg-garage/garage-rsvp-api/internal/metrics"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"github.com/zeromicro/go-zero/core/logx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opJoin  = "join"
	opLeave = "leave"
)

type Controller struct {
	db         *gorm.DB
	publisher  messaging.Publisher
	maxRetries uint64
}

// NewController returns a controller. publisher may be nil.
func NewController(db *gorm.DB, publisher messaging.Publisher, maxRetries uint64) *Controller {
	return &Controller{db: db, publisher: publisher, maxRetries: maxRetries}
}

// Join admits userID to eventID and returns the event as committed.
func (c *Controller) Join(ctx context.Context, userID, eventID string) (*models.Event, error) {
	var event models.Event
	err := c.run(ctx, opJoin, func(tx *gorm.DB) error {
		event = models.Event{}
		if err := database.LockEvent(tx, eventID, &event); err != nil {
			return err
		}
		if event.IsFull() {
			return models.ErrCapacityExceeded
		}

		var existing int64
		if err := tx.Model(&models.RSVP{}).
			Where("user_id = ? AND event_id = ?", userID, eventID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return models.ErrAlreadyJoined
		}

		rsvp := models.RSVP{UserID: userID, EventID: eventID, JoinedAt: time.Now()}
		if err := tx.Omit(clause.Associations).Create(&rsvp).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return models.ErrAlreadyJoined
			}
			return err
		}

		res := tx.Model(&models.Event{}).
			Where("id = ? AND current_attendees < capacity", eventID).
			UpdateColumn("current_attendees", gorm.Expr("current_attendees + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrCapacityExceeded
		}

		if err := tx.First(&event, "id = ?", eventID).Error; err != nil {
			return err
		}
		return appendHistory(tx, userID, eventID, models.ActionJoined, event.CurrentAttendees)
	})
	if err != nil {
		return nil, err
	}

	messaging.PublishAfterCommit(ctx, c.publisher, messaging.TopicRSVPJoined, messaging.RSVPJoinedEvent{
		EventID:    event.ID,
		EventTitle: event.Title,
		UserID:     userID,
		Attendees:  event.CurrentAttendees,
		Capacity:   event.Capacity,
		JoinedAt:   time.Now(),
	})
	return &event, nil
}

// Leave removes userID's RSVP. If the event was deleted while userID was
// attending, the call succeeds with a nil event and changes nothing.
func (c *Controller) Leave(ctx context.Context, userID, eventID string) (*models.Event, error) {
	var (
		event    models.Event
		vanished bool
	)
	err := c.run(ctx, opLeave, func(tx *gorm.DB) error {
		event = models.Event{}
		vanished = false
		if err := database.LockEvent(tx, eventID, &event); err != nil {
			if !errors.Is(err, models.ErrEventNotFound) {
				return err
			}
			removed, err := wasRemoved(tx, userID, eventID)
			if err != nil {
				return err
			}
			if !removed {
				return models.ErrNotJoined
			}
			vanished = true
			return nil
		}

		res := tx.Where("user_id = ? AND event_id = ?", userID, eventID).Delete(&models.RSVP{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotJoined
		}

		if err := tx.Model(&models.Event{}).
			Where("id = ?", eventID).
			UpdateColumn("current_attendees", gorm.Expr("CASE WHEN current_attendees > 0 THEN current_attendees - 1 ELSE 0 END")).
			Error; err != nil {
			return err
		}

		if err := tx.First(&event, "id = ?", eventID).Error; err != nil {
			return err
		}
		return appendHistory(tx, userID, eventID, models.ActionLeft, event.CurrentAttendees)
	})
	if err != nil {
		return nil, err
	}
	if vanished {
		logx.WithContext(ctx).Infow("leave on deleted event ignored",
			logx.Field("event_id", eventID),
			logx.Field("user_id", userID),
		)
		return nil, nil
	}

	messaging.PublishAfterCommit(ctx, c.publisher, messaging.TopicRSVPLeft, messaging.RSVPLeftEvent{
		EventID:    event.ID,
		EventTitle: event.Title,
		UserID:     userID,
		Attendees:  event.CurrentAttendees,
		Capacity:   event.Capacity,
		LeftAt:     time.Now(),
	})
	return &event, nil
}

// wasRemoved reports whether userID's RSVP went away with a deleted event.
func wasRemoved(tx *gorm.DB, userID, eventID string) (bool, error) {
	var n int64
	err := tx.Model(&models.RSVPHistory{}).
		Where("user_id = ? AND event_id = ? AND action = ?", userID, eventID, models.ActionRemoved).
		Count(&n).Error
	return n > 0, err
}

// run executes fn in a fresh transaction per attempt. Only lock contention
// is retried; once retries are spent the caller sees ErrStorageConflict.
func (c *Controller) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	start := time.Now()

	attempt := func() error {
		err := c.db.WithContext(ctx).Transaction(fn)
		if err == nil || database.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		metrics.AdmissionRetries.WithLabelValues(op).Inc()
		logx.WithContext(ctx).Infow("retrying admission transaction",
			logx.Field("op", op),
			logx.Field("wait", wait.String()),
			logx.Field("error", err.Error()),
		)
	}

	err := backoff.RetryNotify(attempt, c.backOff(ctx), notify)
	if database.IsTransient(err) {
		err = fmt.Errorf("%w: %v", models.ErrStorageConflict, err)
	}

	metrics.AdmissionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.AdmissionDecisions.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil && metrics.Outcome(err) == "error" {
		logx.WithContext(ctx).Errorw("admission transaction failed",
			logx.Field("op", op),
			logx.Field("error", err.Error()),
		)
	}
	return err
}

func (c *Controller) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

func appendHistory(tx *gorm.DB, userID, eventID, action string, attendees int) error {
	return tx.Create(&models.RSVPHistory{
		UserID:    userID,
		EventID:   eventID,
		Action:    action,
		Attendees: attendees,
	}).Error
}
