package admission

import (
	"context"
	"errors"
	"time"

	"github.com/gdg-garage/garage-rsvp-api/internal/database"
	"github.com/gdg-garage/garage-rsvp-api/internal/metrics"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"github.com/zeromicro/go-zero/core/logx"
	"gorm.io/gorm"
)

// Reconciler rewrites attendee counters from the RSVP ledger.
type Reconciler struct {
	db *gorm.DB
}

func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db}
}

// ReconcileEvent reports whether the counter had drifted and was repaired.
func (r *Reconciler) ReconcileEvent(ctx context.Context, eventID string) (bool, error) {
	repaired := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repaired = false
		var event models.Event
		if err := database.LockEvent(tx, eventID, &event); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.RSVP{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
			return err
		}
		if int(count) == event.CurrentAttendees {
			return nil
		}

		if err := tx.Model(&models.Event{}).
			Where("id = ?", eventID).
			UpdateColumn("current_attendees", count).Error; err != nil {
			return err
		}
		logx.WithContext(ctx).Infow("attendee counter repaired",
			logx.Field("event_id", eventID),
			logx.Field("counter", event.CurrentAttendees),
			logx.Field("ledger", count),
		)
		repaired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if repaired {
		metrics.CounterRepairs.Inc()
	}
	return repaired, nil
}

// ReconcileAll checks every event and returns how many were repaired.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.Event{}).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	repaired := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		ok, err := r.ReconcileEvent(ctx, id)
		if errors.Is(err, models.ErrEventNotFound) {
			continue
		}
		if err != nil {
			return repaired, err
		}
		if ok {
			repaired++
		}
	}
	return repaired, nil
}

// Run reconciles on every tick until ctx is done. A zero interval disables it.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.ReconcileAll(ctx)
			if err != nil && ctx.Err() == nil {
				logx.WithContext(ctx).Errorw("reconcile failed", logx.Field("error", err.Error()))
				continue
			}
			if n > 0 {
				logx.WithContext(ctx).Infow("reconcile finished", logx.Field("repaired", n))
			}
		}
	}
}
