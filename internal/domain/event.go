package domain

import "time"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusClosed    EventStatus = "closed"
)

// Event is a capacity-limited gathering users can register for.
type Event struct {
	ID          string      `bson:"event_id" json:"id"`
	Title       string      `bson:"title" json:"title"`
	Description string      `bson:"description,omitempty" json:"description,omitempty"`
	StartsAt    time.Time   `bson:"starts_at" json:"starts_at"`
	EndsAt      *time.Time  `bson:"ends_at,omitempty" json:"ends_at,omitempty"`
	Capacity    int         `bson:"capacity" json:"capacity"`
	Status      EventStatus `bson:"status" json:"status"`
	CreatedBy   int64       `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `bson:"updated_at" json:"updated_at"`
}

// AcceptsRegistrations reports whether new registrations may be taken.
func (e Event) AcceptsRegistrations() bool {
	return e.Status == EventStatusPublished
}
