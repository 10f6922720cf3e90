// Package principal keeps the acting Telegram user's record current on every
// interaction.
package principal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/logging"
)

type principalCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

// Identity is the inbound view of the sender of an update.
type Identity struct {
	UserID       int64
	ChatID       int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}

// DisplayName joins first and last name, falling back to the username.
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
	if name != "" {
		return name
	}
	if i.Username != "" {
		return "@" + i.Username
	}
	return ""
}

// Registrar upserts principals by chat identity and keeps their profile and
// last-seen timestamp updated.
type Registrar struct {
	principals principalCollection
	logger     *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided principals collection.
func NewRegistrar(principals principalCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		principals: principals,
		logger:     logger,
	}
}

// EnsurePrincipal upserts the principal with the participant role if missing,
// refreshes its profile fields and returns the stored record.
func (r *Registrar) EnsurePrincipal(ctx context.Context, identity Identity) (domain.Principal, error) {
	if r == nil || r.principals == nil {
		return domain.Principal{}, errors.New("principal registrar is not initialized")
	}
	if ctx == nil {
		return domain.Principal{}, errors.New("context is required")
	}
	if identity.UserID == 0 {
		return domain.Principal{}, errors.New("user id is required")
	}

	chatID := identity.ChatID
	if chatID == 0 {
		chatID = identity.UserID
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"chat_id":       chatID,
			"display_name":  identity.DisplayName(),
			"username":      identity.Username,
			"language_code": strings.ToLower(identity.LanguageCode),
			"updated_at":    now,
			"last_seen_at":  now,
		},
		"$setOnInsert": bson.M{
			"user_id":    identity.UserID,
			"role":       domain.RoleParticipant,
			"created_at": now,
		},
	}

	result, err := r.principals.UpdateOne(ctx,
		bson.M{"user_id": identity.UserID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("upsert principal: %w", err)
	}

	if result != nil && result.UpsertedCount > 0 {
		r.logger.WithFields(logging.Fields{
			"event":   "principal_registered",
			"user_id": identity.UserID,
		}).Info("registered new principal")
	} else {
		r.logger.WithFields(logging.Fields{
			"event":   "principal_seen",
			"user_id": identity.UserID,
		}).Debug("updated principal last seen")
	}

	found := r.principals.FindOne(ctx, bson.M{"user_id": identity.UserID})
	if found == nil {
		return domain.Principal{}, errors.New("find principal returned no result")
	}
	if err := found.Err(); err != nil {
		return domain.Principal{}, fmt.Errorf("load principal: %w", err)
	}

	var principal domain.Principal
	if err := found.Decode(&principal); err != nil {
		return domain.Principal{}, fmt.Errorf("decode principal: %w", err)
	}

	return principal, nil
}
