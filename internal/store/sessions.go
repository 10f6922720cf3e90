package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
)

type sessionCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOneAndDelete(ctx context.Context, filter interface{}, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// SessionStore persists questionnaire sessions. Every mutation is guarded by
// the (event_id, user_id, current_index) triple so a stale step never wins.
type SessionStore struct {
	collection sessionCollection
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(collection sessionCollection) *SessionStore {
	return &SessionStore{collection: collection}
}

// Get returns the session for (eventID, userID) or ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, eventID string, userID int64) (domain.QuestionSession, error) {
	if err := s.ready(ctx); err != nil {
		return domain.QuestionSession{}, err
	}

	return s.findOne(ctx, bson.M{"event_id": eventID, "user_id": userID})
}

// GetActive returns the session the user was prompted with last, across
// events. Free-text answers are routed through it.
func (s *SessionStore) GetActive(ctx context.Context, userID int64) (domain.QuestionSession, error) {
	if err := s.ready(ctx); err != nil {
		return domain.QuestionSession{}, err
	}

	return s.findOne(ctx,
		bson.M{"user_id": userID},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	)
}

// Create inserts session unless one already exists for its (event, user)
// pair. It returns the stored session and whether this call created it.
func (s *SessionStore) Create(ctx context.Context, session domain.QuestionSession) (domain.QuestionSession, bool, error) {
	if err := s.ready(ctx); err != nil {
		return domain.QuestionSession{}, false, err
	}

	answers := session.Answers
	if answers == nil {
		answers = []domain.Answer{}
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"event_id": session.EventID, "user_id": session.UserID},
		bson.M{"$setOnInsert": bson.M{
			"event_id":      session.EventID,
			"user_id":       session.UserID,
			"current_index": session.CurrentIndex,
			"questions":     session.Questions,
			"answers":       answers,
			"created_at":    session.CreatedAt.UTC().Truncate(time.Millisecond),
			"updated_at":    session.UpdatedAt.UTC().Truncate(time.Millisecond),
			"expires_at":    session.ExpiresAt.UTC().Truncate(time.Millisecond),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return domain.QuestionSession{}, false, fmt.Errorf("create question session: %w", err)
	}

	created := result != nil && result.UpsertedCount == 1
	stored, err := s.findOne(ctx, bson.M{"event_id": session.EventID, "user_id": session.UserID})
	if err != nil {
		return domain.QuestionSession{}, false, err
	}

	return stored, created, nil
}

// Advance records answer and moves the session to the next question, only if
// the session is still at expectedIndex. It reports whether it won.
func (s *SessionStore) Advance(ctx context.Context, eventID string, userID int64, expectedIndex int, answer domain.Answer, now time.Time) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"event_id": eventID, "user_id": userID, "current_index": expectedIndex},
		bson.M{
			"$push": bson.M{"answers": answer},
			"$inc":  bson.M{"current_index": 1},
			"$set":  bson.M{"updated_at": now.UTC().Truncate(time.Millisecond)},
		},
	)
	if err != nil {
		return false, fmt.Errorf("advance question session: %w", err)
	}

	return result != nil && result.MatchedCount == 1, nil
}

// Touch marks the session as the one the user was prompted with last, so
// GetActive routes the next free-text answer to it.
func (s *SessionStore) Touch(ctx context.Context, eventID string, userID int64, now time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"event_id": eventID, "user_id": userID},
		bson.M{"$set": bson.M{"updated_at": now.UTC().Truncate(time.Millisecond)}},
	)
	if err != nil {
		return fmt.Errorf("touch question session: %w", err)
	}
	return nil
}

// Claim deletes the session if it is still at expectedIndex and returns the
// deleted document. Only one caller can claim a given step.
func (s *SessionStore) Claim(ctx context.Context, eventID string, userID int64, expectedIndex int) (domain.QuestionSession, bool, error) {
	if err := s.ready(ctx); err != nil {
		return domain.QuestionSession{}, false, err
	}

	result := s.collection.FindOneAndDelete(ctx,
		bson.M{"event_id": eventID, "user_id": userID, "current_index": expectedIndex},
	)
	session, err := decodeSession(result)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.QuestionSession{}, false, nil
	}
	if err != nil {
		return domain.QuestionSession{}, false, fmt.Errorf("claim question session: %w", err)
	}

	return session, true, nil
}

// Delete removes the session for (eventID, userID). Missing sessions are not
// an error.
func (s *SessionStore) Delete(ctx context.Context, eventID string, userID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	if _, err := s.collection.DeleteOne(ctx, bson.M{"event_id": eventID, "user_id": userID}); err != nil {
		return fmt.Errorf("delete question session: %w", err)
	}
	return nil
}

func (s *SessionStore) ready(ctx context.Context) error {
	if s == nil || s.collection == nil {
		return errors.New("session store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

func (s *SessionStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (domain.QuestionSession, error) {
	session, err := decodeSession(s.collection.FindOne(ctx, filter, opts...))
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return domain.QuestionSession{}, fmt.Errorf("find question session: %w", err)
	}
	return session, err
}

func decodeSession(result *mongo.SingleResult) (domain.QuestionSession, error) {
	if result == nil {
		return domain.QuestionSession{}, errors.New("no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.QuestionSession{}, domain.ErrSessionNotFound
		}
		return domain.QuestionSession{}, err
	}

	var session domain.QuestionSession
	if err := result.Decode(&session); err != nil {
		return domain.QuestionSession{}, fmt.Errorf("decode question session: %w", err)
	}
	return session, nil
}
