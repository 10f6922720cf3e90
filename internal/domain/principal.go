package domain

import "time"

// Principal is the Telegram user acting on the bot.
type Principal struct {
	UserID       int64     `bson:"user_id" json:"user_id"`
	ChatID       int64     `bson:"chat_id" json:"chat_id"`
	DisplayName  string    `bson:"display_name" json:"display_name"`
	Username     string    `bson:"username,omitempty" json:"username,omitempty"`
	LanguageCode string    `bson:"language_code,omitempty" json:"language_code,omitempty"`
	Role         Role      `bson:"role" json:"role"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
	LastSeenAt   time.Time `bson:"last_seen_at" json:"last_seen_at"`
}

// CanManageEvents reports whether the principal may act as an organizer.
func (p Principal) CanManageEvents() bool {
	return p.Role.CanManageEvents()
}
