package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type principalCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// PrincipalRepository reads principals and changes their roles in MongoDB.
type PrincipalRepository struct {
	collection principalCollection
}

// NewPrincipalRepository constructs a PrincipalRepository.
func NewPrincipalRepository(collection principalCollection) *PrincipalRepository {
	return &PrincipalRepository{collection: collection}
}

// GetByID fetches a principal by Telegram user_id. Missing principals are
// reported as ErrNotFound.
func (r *PrincipalRepository) GetByID(ctx context.Context, userID int64) (Principal, error) {
	if r == nil || r.collection == nil {
		return Principal{}, errors.New("principal repository is not initialized")
	}
	if ctx == nil {
		return Principal{}, errors.New("context is required")
	}
	if userID == 0 {
		return Principal{}, errors.New("user_id is required")
	}

	result := r.collection.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return Principal{}, errors.New("find principal returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, fmt.Errorf("find principal: %w", err)
	}

	var principal Principal
	if err := result.Decode(&principal); err != nil {
		return Principal{}, fmt.Errorf("decode principal: %w", err)
	}

	return principal, nil
}

// SetRole changes the role of an existing principal. Principals are created
// only by their own interactions, so an unknown user_id is ErrNotFound.
func (r *PrincipalRepository) SetRole(ctx context.Context, userID int64, role Role) error {
	if r == nil || r.collection == nil {
		return errors.New("principal repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user_id is required")
	}
	if _, ok := ParseRole(string(role)); !ok {
		return fmt.Errorf("unknown role %q", role)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{
			"role":       role,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		}},
	)
	if err != nil {
		return fmt.Errorf("set principal role: %w", err)
	}
	if result == nil || result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}
