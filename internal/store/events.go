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

// DefaultEventListLimit bounds ListByStatus when no explicit limit is given.
const DefaultEventListLimit = 20

type eventCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// newEventID is overridable for tests.
var newEventID = uuid.NewString

// EventStore persists events in the events collection.
type EventStore struct {
	collection eventCollection
}

// NewEventStore constructs an EventStore.
func NewEventStore(collection eventCollection) *EventStore {
	return &EventStore{collection: collection}
}

// Create inserts a new draft event authored by createdBy.
func (s *EventStore) Create(ctx context.Context, draft domain.EventDraft, createdBy int64, now time.Time) (domain.Event, error) {
	if s == nil || s.collection == nil {
		return domain.Event{}, errors.New("event store is not initialized")
	}
	if ctx == nil {
		return domain.Event{}, errors.New("context is required")
	}

	ts := now.UTC().Truncate(time.Millisecond)
	event := domain.Event{
		ID:          newEventID(),
		Title:       strings.TrimSpace(draft.Title),
		Description: strings.TrimSpace(draft.Description),
		StartsAt:    draft.StartsAt.UTC().Truncate(time.Millisecond),
		Capacity:    draft.Capacity,
		Status:      domain.EventStatusDraft,
		CreatedBy:   createdBy,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	if _, err := s.collection.InsertOne(ctx, event); err != nil {
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}

	return event, nil
}

// GetByID fetches an event. Unknown ids are reported as ErrEventNotFound.
func (s *EventStore) GetByID(ctx context.Context, eventID string) (domain.Event, error) {
	if s == nil || s.collection == nil {
		return domain.Event{}, errors.New("event store is not initialized")
	}
	if ctx == nil {
		return domain.Event{}, errors.New("context is required")
	}
	if strings.TrimSpace(eventID) == "" {
		return domain.Event{}, domain.ErrEventNotFound
	}

	result := s.collection.FindOne(ctx, bson.M{"event_id": eventID})
	if result == nil {
		return domain.Event{}, errors.New("find event returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("find event: %w", err)
	}

	var event domain.Event
	if err := result.Decode(&event); err != nil {
		return domain.Event{}, fmt.Errorf("decode event: %w", err)
	}

	return event, nil
}

// ListByStatus returns events in the given status ordered by start time.
func (s *EventStore) ListByStatus(ctx context.Context, status domain.EventStatus, limit int64) ([]domain.Event, error) {
	if s == nil || s.collection == nil {
		return nil, errors.New("event store is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if limit <= 0 {
		limit = DefaultEventListLimit
	}

	cursor, err := s.collection.Find(ctx,
		bson.M{"status": status},
		options.Find().
			SetSort(bson.D{{Key: "starts_at", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	defer cursor.Close(ctx)

	events := make([]domain.Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	return events, nil
}

// UpdateStatus moves an event from one status to another only if it is still
// in from. It reports whether a document was changed.
func (s *EventStore) UpdateStatus(ctx context.Context, eventID string, from, to domain.EventStatus) (bool, error) {
	if s == nil || s.collection == nil {
		return false, errors.New("event store is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"event_id": eventID, "status": from},
		bson.M{"$set": bson.M{
			"status":     to,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("update event status: %w", err)
	}
	if result == nil {
		return false, nil
	}

	return result.MatchedCount == 1, nil
}
