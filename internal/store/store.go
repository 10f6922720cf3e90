// Package store encapsulates MongoDB client management and the document
// stores for events, registration questions and questionnaire sessions.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/config"
)

// Collection names used across the bot.
const (
	CollectionPrincipals       = "principals"
	CollectionEvents           = "events"
	CollectionQuestions        = "registration_questions"
	CollectionQuestionSessions = "question_sessions"
)

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Principals returns the principals collection handle.
func (m *Manager) Principals() *mongo.Collection {
	return m.Collection(CollectionPrincipals)
}

// Events returns the events collection handle.
func (m *Manager) Events() *mongo.Collection {
	return m.Collection(CollectionEvents)
}

// Questions returns the registration questions collection handle.
func (m *Manager) Questions() *mongo.Collection {
	return m.Collection(CollectionQuestions)
}

// QuestionSessions returns the questionnaire sessions collection handle.
func (m *Manager) QuestionSessions() *mongo.Collection {
	return m.Collection(CollectionQuestionSessions)
}

// Ping checks connectivity against the primary. Used by the health endpoint.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

type indexPlan struct {
	collection string
	models     []mongo.IndexModel
}

func baseIndexPlan() []indexPlan {
	return []indexPlan{
		{
			collection: CollectionPrincipals,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "user_id", Value: 1}},
					Options: options.Index().SetName("user_id_unique").SetUnique(true),
				},
			},
		},
		{
			collection: CollectionEvents,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "event_id", Value: 1}},
					Options: options.Index().SetName("event_id_unique").SetUnique(true),
				},
				{
					Keys:    bson.D{{Key: "status", Value: 1}, {Key: "starts_at", Value: 1}},
					Options: options.Index().SetName("status_starts_at"),
				},
			},
		},
		{
			collection: CollectionQuestions,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "position", Value: 1}},
					Options: options.Index().SetName("event_id_position"),
				},
			},
		},
		{
			collection: CollectionQuestionSessions,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "user_id", Value: 1}},
					Options: options.Index().SetName("event_id_user_id_unique").SetUnique(true),
				},
				{
					Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
					Options: options.Index().SetName("user_id_updated_at"),
				},
			},
		},
	}
}

// EnsureBaseIndexes creates the indexes every collection relies on.
// Collections are created implicitly if they do not already exist.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	for _, plan := range baseIndexPlan() {
		if _, err := createIndexes(ctx, m.Collection(plan.collection), plan.models); err != nil {
			return fmt.Errorf("create %s indexes: %w", plan.collection, err)
		}
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
