package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes collection counts for the admin /stats command
// without leaking MongoDB internals to callers.
type StatsProvider struct {
	principals countCollection
	events     countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the principals and
// events collections.
func NewStatsProvider(principals, events countCollection) *StatsProvider {
	return &StatsProvider{
		principals: principals,
		events:     events,
	}
}

// CountPrincipals returns the number of known principals.
func (p *StatsProvider) CountPrincipals(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.principals == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.principals.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count principals: %w", err)
	}

	return count, nil
}

// CountEvents returns the number of events, regardless of status.
func (p *StatsProvider) CountEvents(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.events == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.events.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}

	return count, nil
}
