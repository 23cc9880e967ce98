// Package events owns the event lifecycle and the read side around the RSVP
// ledger. The attendee counter is never written here except by the cascade
// in Delete, which removes the row entirely.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdg-garage/garage-rsvp-api/internal/database"
	"github.com/gdg-garage/garage-rsvp-api/internal/messaging"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const MaxCapacity = 100000

type CreateInput struct {
	Title       string
	Description string
	Location    string
	Date        time.Time
	Capacity    int
}

// UpdateInput holds the fields to change; nil means keep.
type UpdateInput struct {
	Title       *string
	Description *string
	Location    *string
	Date        *time.Time
	Capacity    *int
}

type Attendee struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Service struct {
	db        *gorm.DB
	publisher messaging.Publisher
	lookups   singleflight.Group
}

// NewService returns a service. publisher may be nil.
func NewService(db *gorm.DB, publisher messaging.Publisher) *Service {
	return &Service{db: db, publisher: publisher}
}

func (s *Service) Create(ctx context.Context, creatorID string, in CreateInput) (*models.Event, error) {
	event := models.Event{
		CreatorID:   creatorID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		Date:        in.Date,
		Capacity:    in.Capacity,
	}
	if err := validate(&event); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Omit("Creator").Create(&event).Error; err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	logx.WithContext(ctx).Infow("event created",
		logx.Field("event_id", event.ID),
		logx.Field("creator_id", creatorID),
		logx.Field("capacity", event.Capacity),
	)
	messaging.PublishAfterCommit(ctx, s.publisher, messaging.TopicEventCreated, messaging.EventCreatedEvent{
		EventID:   event.ID,
		CreatorID: creatorID,
		Title:     event.Title,
		Capacity:  event.Capacity,
		Date:      event.Date,
		CreatedAt: event.CreatedAt,
	})
	return &event, nil
}

// Update edits the creator-owned fields of an event. Only the named columns
// are written, so a concurrent join's counter increment is never overwritten.
func (s *Service) Update(ctx context.Context, userID, eventID string, in UpdateInput) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event = models.Event{}
		if err := database.LockEvent(tx, eventID, &event); err != nil {
			return err
		}
		if event.CreatorID != userID {
			return models.ErrForbidden
		}

		updates := map[string]any{}
		next := event
		if in.Title != nil {
			next.Title = strings.TrimSpace(*in.Title)
			updates["title"] = next.Title
		}
		if in.Description != nil {
			next.Description = strings.TrimSpace(*in.Description)
			updates["description"] = next.Description
		}
		if in.Location != nil {
			next.Location = strings.TrimSpace(*in.Location)
			updates["location"] = next.Location
		}
		if in.Date != nil {
			next.Date = *in.Date
			updates["date"] = next.Date
		}
		if in.Capacity != nil {
			next.Capacity = *in.Capacity
			updates["capacity"] = next.Capacity
		}
		if err := validate(&next); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}

		q := tx.Model(&models.Event{}).Where("id = ?", eventID)
		if in.Capacity != nil {
			if *in.Capacity < event.CurrentAttendees {
				return models.ErrCapacityBelowAttendance
			}
			q = q.Where("current_attendees <= ?", *in.Capacity)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 && in.Capacity != nil {
			return models.ErrCapacityBelowAttendance
		}

		return tx.First(&event, "id = ?", eventID).Error
	})
	if err != nil {
		return nil, err
	}
	s.lookups.Forget(eventID)
	return &event, nil
}

// Delete removes the event together with every RSVP for it.
func (s *Service) Delete(ctx context.Context, userID, eventID string) error {
	var (
		event     models.Event
		attendees []string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event = models.Event{}
		attendees = nil
		if err := database.LockEvent(tx, eventID, &event); err != nil {
			return err
		}
		if event.CreatorID != userID {
			return models.ErrForbidden
		}

		if err := tx.Model(&models.RSVP{}).Where("event_id = ?", eventID).Order("joined_at").Pluck("user_id", &attendees).Error; err != nil {
			return err
		}
		if len(attendees) > 0 {
			history := make([]models.RSVPHistory, 0, len(attendees))
			for _, uid := range attendees {
				history = append(history, models.RSVPHistory{
					UserID:  uid,
					EventID: eventID,
					Action:  models.ActionRemoved,
				})
			}
			if err := tx.Create(&history).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("event_id = ?", eventID).Delete(&models.RSVP{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Event{}, "id = ?", eventID).Error
	})
	if err != nil {
		return err
	}
	s.lookups.Forget(eventID)

	logx.WithContext(ctx).Infow("event deleted",
		logx.Field("event_id", eventID),
		logx.Field("removed_rsvps", len(attendees)),
	)
	messaging.PublishAfterCommit(ctx, s.publisher, messaging.TopicEventDeleted, messaging.EventDeletedEvent{
		EventID:   eventID,
		Title:     event.Title,
		DeletedBy: userID,
		Attendees: attendees,
		DeletedAt: time.Now(),
	})
	return nil
}

// ListUpcoming returns events that have not started yet, soonest first.
func (s *Service) ListUpcoming(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Preload("Creator").
		Where("date >= ?", time.Now()).
		Order("date asc").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetByID coalesces concurrent lookups of the same event into one query.
func (s *Service) GetByID(ctx context.Context, eventID string) (*models.Event, error) {
	// The shared query outlives any single caller.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.lookups.Do(eventID, func() (any, error) {
		var event models.Event
		err := s.db.WithContext(shared).Preload("Creator").First(&event, "id = ?", eventID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrEventNotFound
		}
		if err != nil {
			return nil, err
		}
		return &event, nil
	})
	if err != nil {
		return nil, err
	}
	event := *v.(*models.Event)
	return &event, nil
}

func (s *Service) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	if err := s.ensureExists(ctx, eventID); err != nil {
		return nil, err
	}

	var rsvps []models.RSVP
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("event_id = ?", eventID).
		Order("joined_at asc").
		Find(&rsvps).Error
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}

	attendees := make([]Attendee, 0, len(rsvps))
	for _, r := range rsvps {
		attendees = append(attendees, Attendee{
			UserID:   r.UserID,
			Username: r.User.Username,
			JoinedAt: r.JoinedAt,
		})
	}
	return attendees, nil
}

// CheckRSVP reports whether userID currently holds an RSVP for eventID.
func (s *Service) CheckRSVP(ctx context.Context, userID, eventID string) (bool, error) {
	if err := s.ensureExists(ctx, eventID); err != nil {
		return false, err
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RSVP{}).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// History lists userID's RSVP transitions, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]models.RSVPHistory, error) {
	var history []models.RSVPHistory
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return history, nil
}

func (s *Service) ensureExists(ctx context.Context, eventID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", eventID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return models.ErrEventNotFound
	}
	return nil
}

func validate(e *models.Event) error {
	switch {
	case e.Title == "":
		return fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	case e.Description == "":
		return fmt.Errorf("%w: description is required", models.ErrInvalidInput)
	case e.Location == "":
		return fmt.Errorf("%w: location is required", models.ErrInvalidInput)
	case e.Date.IsZero():
		return fmt.Errorf("%w: date is required", models.ErrInvalidInput)
	case e.Capacity < 1:
		return fmt.Errorf("%w: capacity must be at least 1", models.ErrInvalidInput)
	case e.Capacity > MaxCapacity:
		return fmt.Errorf("%w: capacity must be at most %d", models.ErrInvalidInput, MaxCapacity)
	}
	return nil
}
