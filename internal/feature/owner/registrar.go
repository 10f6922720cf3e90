// Package owner provides startup helpers for ensuring the configured bot owner
// exists in the database with the admin role.
package owner

import (
	"context"
	"errors"
	"fmt"
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
}

// Registrar bootstraps the configured bot owner record.
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

// EnsureOwner upserts the configured owner user_id with role=admin. Other
// admins are left untouched.
func (r *Registrar) EnsureOwner(ctx context.Context, ownerID int64) error {
	if r == nil || r.principals == nil {
		return errors.New("owner registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if ownerID == 0 {
		return errors.New("owner id is required")
	}

	now := time.Now().UTC()

	upsertResult, err := r.principals.UpdateOne(ctx,
		bson.M{"user_id": ownerID},
		bson.M{
			"$set": bson.M{
				"user_id":    ownerID,
				"role":       domain.RoleAdmin,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"chat_id":      ownerID,
				"created_at":   now,
				"last_seen_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensure owner: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":          "owner_bootstrap",
		"owner_id":       ownerID,
		"matched_owner":  matchedCount(upsertResult),
		"upserted_owner": upsertedCount(upsertResult),
	}).Info("ensured bot owner")

	return nil
}

func matchedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.MatchedCount
}

func upsertedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.UpsertedCount
}
