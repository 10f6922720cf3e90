package store

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
)

func TestQuestionStoreAddAppendsAtEnd(t *testing.T) {
	coll := &fakeQuestionCollection{count: 2}
	store := NewQuestionStore(coll)

	question, err := store.Add(context.Background(), "ev-1", "  Dietary needs? ", false, time.Now())
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if question.Position != 3 || question.Version != 1 || !question.IsActive {
		t.Fatalf("unexpected question: %+v", question)
	}
	if question.Prompt != "Dietary needs?" || question.IsRequired {
		t.Fatalf("unexpected prompt fields: %+v", question)
	}
	if question.ID == "" {
		t.Fatalf("expected generated question id")
	}
	if _, ok := coll.inserted.(domain.RegistrationQuestion); !ok {
		t.Fatalf("expected inserted RegistrationQuestion, got %T", coll.inserted)
	}
}

func TestQuestionStoreListActive(t *testing.T) {
	coll := &fakeQuestionCollection{
		docs: []interface{}{
			domain.RegistrationQuestion{ID: "q1", Position: 1, IsActive: true, IsRequired: true},
			domain.RegistrationQuestion{ID: "q2", Position: 2, IsActive: true},
		},
	}
	store := NewQuestionStore(coll)

	questions, err := store.ListActive(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != "q1" || !questions[0].IsRequired {
		t.Fatalf("unexpected questions: %+v", questions)
	}

	filter := coll.lastFilter.(bson.M)
	if filter["event_id"] != "ev-1" || filter["is_active"] != true {
		t.Fatalf("unexpected filter: %v", filter)
	}
}

type fakeQuestionCollection struct {
	count      int64
	inserted   interface{}
	docs       []interface{}
	lastFilter interface{}
}

func (f *fakeQuestionCollection) CountDocuments(_ context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	f.lastFilter = filter
	return f.count, nil
}

func (f *fakeQuestionCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.inserted = document
	return &mongo.InsertOneResult{}, nil
}

func (f *fakeQuestionCollection) Find(_ context.Context, filter interface{}, _ ...*options.FindOptions) (*mongo.Cursor, error) {
	f.lastFilter = filter
	return mongo.NewCursorFromDocuments(f.docs, nil, nil)
}
