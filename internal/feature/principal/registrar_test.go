package principal

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
)

func TestEnsurePrincipalCreatesNewRecord(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	coll := newFakePrincipalCollection(t)
	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	ctx := context.Background()
	principal, err := registrar.EnsurePrincipal(ctx, Identity{
		UserID:       123,
		ChatID:       123,
		FirstName:    "Grace",
		LastName:     "Hopper",
		Username:     "ghopper",
		LanguageCode: "RU",
	})
	if err != nil {
		t.Fatalf("EnsurePrincipal returned error: %v", err)
	}

	if principal.UserID != 123 || principal.ChatID != 123 {
		t.Fatalf("expected ids 123, got %+v", principal)
	}
	if principal.Role != domain.RoleParticipant {
		t.Fatalf("expected default role %s, got %s", domain.RoleParticipant, principal.Role)
	}
	if principal.DisplayName != "Grace Hopper" {
		t.Fatalf("expected display name Grace Hopper, got %q", principal.DisplayName)
	}
	if principal.LanguageCode != "ru" {
		t.Fatalf("expected lowercased language code, got %q", principal.LanguageCode)
	}

	doc := coll.docFor(t, 123)
	createdAt := assertTimeField(t, doc, "created_at")
	lastSeen := assertTimeField(t, doc, "last_seen_at")
	if !createdAt.Equal(lastSeen) {
		t.Fatalf("expected timestamps to match on insert, got created_at=%v last_seen_at=%v", createdAt, lastSeen)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "principal_registered" {
		t.Fatalf("expected principal_registered log entry, got %v", entry)
	}
}

func TestEnsurePrincipalKeepsRoleAndRefreshesProfile(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	coll := newFakePrincipalCollection(t)

	createdAt := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	initialLastSeen := createdAt.Add(time.Hour)

	coll.seed(t, bson.M{
		"user_id":      int64(777),
		"chat_id":      int64(777),
		"display_name": "Old Name",
		"role":         domain.RoleOrganizer,
		"created_at":   createdAt,
		"updated_at":   createdAt,
		"last_seen_at": initialLastSeen,
	})

	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	principal, err := registrar.EnsurePrincipal(context.Background(), Identity{UserID: 777, Username: "linus"})
	if err != nil {
		t.Fatalf("EnsurePrincipal returned error: %v", err)
	}

	if principal.Role != domain.RoleOrganizer {
		t.Fatalf("expected role to be preserved, got %s", principal.Role)
	}
	if principal.DisplayName != "@linus" {
		t.Fatalf("expected username fallback display name, got %q", principal.DisplayName)
	}
	if principal.ChatID != 777 {
		t.Fatalf("expected chat id to default to user id, got %d", principal.ChatID)
	}
	if !principal.CreatedAt.Equal(createdAt) {
		t.Fatalf("expected created_at %v to be preserved, got %v", createdAt, principal.CreatedAt)
	}
	if !principal.LastSeenAt.After(initialLastSeen) {
		t.Fatalf("expected last_seen_at to advance beyond %v, got %v", initialLastSeen, principal.LastSeenAt)
	}
}

func TestEnsurePrincipalValidatesInput(t *testing.T) {
	registrar := NewRegistrar(newFakePrincipalCollection(t), nil)

	if _, err := registrar.EnsurePrincipal(context.Background(), Identity{}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if _, err := registrar.EnsurePrincipal(nil, Identity{UserID: 1}); err == nil {
		t.Fatalf("expected error for nil context")
	}

	var nilRegistrar *Registrar
	if _, err := nilRegistrar.EnsurePrincipal(context.Background(), Identity{UserID: 1}); err == nil {
		t.Fatalf("expected error for nil registrar")
	}
}

type fakePrincipalCollection struct {
	t    *testing.T
	docs map[int64]bson.M
}

func newFakePrincipalCollection(t *testing.T) *fakePrincipalCollection {
	t.Helper()
	return &fakePrincipalCollection{
		t:    t,
		docs: make(map[int64]bson.M),
	}
}

func (f *fakePrincipalCollection) UpdateOne(_ context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	filterDoc, ok := filter.(bson.M)
	if !ok {
		f.t.Fatalf("unexpected filter type %T", filter)
	}

	userID := readInt64(f.t, filterDoc["user_id"])

	updateDoc, ok := update.(bson.M)
	if !ok {
		f.t.Fatalf("unexpected update type %T", update)
	}

	setDoc, _ := updateDoc["$set"].(bson.M)
	setOnInsertDoc, _ := updateDoc["$setOnInsert"].(bson.M)

	upsert := len(opts) > 0 && opts[0] != nil && opts[0].Upsert != nil && *opts[0].Upsert

	doc, found := f.docs[userID]
	if !found && !upsert {
		return &mongo.UpdateResult{}, nil
	}
	if !found {
		doc = bson.M{}
		merge(doc, setOnInsertDoc)
	}

	merge(doc, setDoc)
	f.docs[userID] = doc

	result := &mongo.UpdateResult{
		MatchedCount:  1,
		ModifiedCount: 1,
	}

	if !found {
		result.MatchedCount = 0
		result.UpsertedCount = 1
		result.UpsertedID = userID
	}

	return result, nil
}

func (f *fakePrincipalCollection) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	userID := readInt64(f.t, filter.(bson.M)["user_id"])

	doc, found := f.docs[userID]
	if !found {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}

	return mongo.NewSingleResultFromDocument(doc, nil, nil)
}

func (f *fakePrincipalCollection) docFor(t *testing.T, userID int64) bson.M {
	t.Helper()

	doc, ok := f.docs[userID]
	if !ok {
		t.Fatalf("no document stored for user_id=%d", userID)
	}

	return doc
}

func (f *fakePrincipalCollection) seed(t *testing.T, doc bson.M) {
	t.Helper()
	idVal, ok := doc["user_id"]
	if !ok {
		t.Fatalf("seed document missing user_id: %v", doc)
	}

	f.docs[readInt64(t, idVal)] = doc
}

func merge(dst bson.M, updates bson.M) {
	for k, v := range updates {
		dst[k] = v
	}
}

func readInt64(t *testing.T, value interface{}) int64 {
	t.Helper()

	switch v := value.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	default:
		t.Fatalf("expected int64-compatible value, got %T", value)
		return 0
	}
}

func assertTimeField(t *testing.T, doc bson.M, field string) time.Time {
	t.Helper()

	val, ok := doc[field]
	if !ok {
		t.Fatalf("expected field %s to be set", field)
	}

	ts, ok := val.(time.Time)
	if !ok {
		t.Fatalf("expected field %s to be time.Time, got %T", field, val)
	}

	if ts.IsZero() {
		t.Fatalf("expected field %s to be non-zero", field)
	}

	return ts
}
