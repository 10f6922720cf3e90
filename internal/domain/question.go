package domain

import "time"

// RegistrationQuestion is one item of an event's intake form. Version
// increments on edit; sessions snapshot the version they were created with.
type RegistrationQuestion struct {
	ID         string    `bson:"question_id" json:"id"`
	EventID    string    `bson:"event_id" json:"event_id"`
	Version    int       `bson:"version" json:"version"`
	Prompt     string    `bson:"prompt" json:"prompt"`
	IsRequired bool      `bson:"is_required" json:"is_required"`
	Position   int       `bson:"position" json:"position"`
	IsActive   bool      `bson:"is_active" json:"is_active"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}
