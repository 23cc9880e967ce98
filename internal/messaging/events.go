package messaging

import "time"

const (
	TopicEventCreated = "event.created"
	TopicEventDeleted = "event.deleted"
	TopicRSVPJoined   = "rsvp.joined"
	TopicRSVPLeft     = "rsvp.left"
)

type EventCreatedEvent struct {
	EventID   string    `json:"event_id"`
	CreatorID string    `json:"creator_id"`
	Title     string    `json:"title"`
	Capacity  int       `json:"capacity"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// EventDeletedEvent carries the attendees whose RSVPs were removed by the cascade.
type EventDeletedEvent struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	DeletedBy string    `json:"deleted_by"`
	Attendees []string  `json:"attendees"`
	DeletedAt time.Time `json:"deleted_at"`
}

type RSVPJoinedEvent struct {
	EventID    string    `json:"event_id"`
	EventTitle string    `json:"event_title"`
	UserID     string    `json:"user_id"`
	Attendees  int       `json:"attendees"`
	Capacity   int       `json:"capacity"`
	JoinedAt   time.Time `json:"joined_at"`
}

type RSVPLeftEvent struct {
	EventID    string    `json:"event_id"`
	EventTitle string    `json:"event_title"`
	UserID     string    `json:"user_id"`
	Attendees  int       `json:"attendees"`
	Capacity   int       `json:"capacity"`
	LeftAt     time.Time `json:"left_at"`
}
