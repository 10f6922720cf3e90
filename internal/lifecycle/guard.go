// Package lifecycle gates event status transitions behind organizer
// authorization and a conditional store update.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/logging"
)

// EventStore reads events and applies guarded status updates.
type EventStore interface {
	GetByID(ctx context.Context, eventID string) (domain.Event, error)
	UpdateStatus(ctx context.Context, eventID string, from, to domain.EventStatus) (bool, error)
}

// Result enumerates transition outcomes.
type Result string

const (
	ResultApplied           Result = "applied"
	ResultDenied            Result = "denied"
	ResultNotFound          Result = "not_found"
	ResultInvalidTransition Result = "invalid_transition"
	ResultNotUpdated        Result = "not_updated"
)

// Decision is the outcome of a transition request. Current is the status
// observed before the attempt, when the event was found.
type Decision struct {
	Result  Result
	Event   domain.Event
	Current domain.EventStatus
	Target  domain.EventStatus
}

// ValidTransition reports whether current may move to target. Statuses only
// move forward: draft to published, published to closed.
func ValidTransition(current, target domain.EventStatus) bool {
	switch current {
	case domain.EventStatusDraft:
		return target == domain.EventStatusPublished
	case domain.EventStatusPublished:
		return target == domain.EventStatusClosed
	default:
		return false
	}
}

// Guard applies authorized lifecycle transitions.
type Guard struct {
	events EventStore
	logger *logrus.Entry
}

// NewGuard constructs a Guard.
func NewGuard(events EventStore, logger *logrus.Entry) *Guard {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Guard{events: events, logger: logger}
}

// Transition moves eventID to target on behalf of actor. Authorization is
// checked before the event is loaded.
func (g *Guard) Transition(ctx context.Context, actor domain.Principal, eventID string, target domain.EventStatus) (Decision, error) {
	if g == nil || g.events == nil {
		return Decision{}, errors.New("lifecycle guard is not initialized")
	}
	if ctx == nil {
		return Decision{}, errors.New("context is required")
	}

	log := g.logger.WithFields(logging.Fields{
		"user_id":  actor.UserID,
		"event_id": eventID,
		"target":   target,
	})

	if !actor.CanManageEvents() {
		log.WithFields(logging.Fields{
			"event": "lifecycle_denied",
			"role":  actor.Role,
		}).Info("lifecycle transition denied")
		return Decision{Result: ResultDenied, Target: target}, nil
	}

	event, err := g.events.GetByID(ctx, eventID)
	if errors.Is(err, domain.ErrEventNotFound) {
		return Decision{Result: ResultNotFound, Target: target}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load event: %w", err)
	}

	decision := Decision{Event: event, Current: event.Status, Target: target}
	if !ValidTransition(event.Status, target) {
		decision.Result = ResultInvalidTransition
		return decision, nil
	}

	updated, err := g.events.UpdateStatus(ctx, event.ID, event.Status, target)
	if err != nil {
		return Decision{}, fmt.Errorf("update event status: %w", err)
	}
	if !updated {
		log.WithField("event", "lifecycle_not_updated").Warn("event status changed concurrently")
		decision.Result = ResultNotUpdated
		return decision, nil
	}

	decision.Result = ResultApplied
	decision.Event.Status = target
	log.WithFields(logging.Fields{
		"event": "lifecycle_transition",
		"from":  event.Status,
	}).Info("event status changed")

	return decision, nil
}
