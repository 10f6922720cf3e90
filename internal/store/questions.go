package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
)

type questionCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// QuestionStore persists the registration questions attached to events.
type QuestionStore struct {
	collection questionCollection
}

// NewQuestionStore constructs a QuestionStore.
func NewQuestionStore(collection questionCollection) *QuestionStore {
	return &QuestionStore{collection: collection}
}

// Add appends an active question at the end of the event's form.
func (s *QuestionStore) Add(ctx context.Context, eventID, prompt string, required bool, now time.Time) (domain.RegistrationQuestion, error) {
	if s == nil || s.collection == nil {
		return domain.RegistrationQuestion{}, errors.New("question store is not initialized")
	}
	if ctx == nil {
		return domain.RegistrationQuestion{}, errors.New("context is required")
	}

	existing, err := s.collection.CountDocuments(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return domain.RegistrationQuestion{}, fmt.Errorf("count questions: %w", err)
	}

	question := domain.RegistrationQuestion{
		ID:         uuid.NewString(),
		EventID:    eventID,
		Version:    1,
		Prompt:     strings.TrimSpace(prompt),
		IsRequired: required,
		Position:   int(existing) + 1,
		IsActive:   true,
		CreatedAt:  now.UTC().Truncate(time.Millisecond),
	}

	if _, err := s.collection.InsertOne(ctx, question); err != nil {
		return domain.RegistrationQuestion{}, fmt.Errorf("insert question: %w", err)
	}

	return question, nil
}

// ListActive returns the event's active questions ordered by position.
func (s *QuestionStore) ListActive(ctx context.Context, eventID string) ([]domain.RegistrationQuestion, error) {
	if s == nil || s.collection == nil {
		return nil, errors.New("question store is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := s.collection.Find(ctx,
		bson.M{"event_id": eventID, "is_active": true},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	defer cursor.Close(ctx)

	questions := make([]domain.RegistrationQuestion, 0)
	if err := cursor.All(ctx, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	return questions, nil
}
