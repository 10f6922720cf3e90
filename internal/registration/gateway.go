// Package registration is the façade over the seat ledger. It resolves the
// event, enforces that it is open, and hands the seat decision to the ledger.
package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/logging"
)

// Ledger performs the atomic seat operations.
type Ledger interface {
	Register(ctx context.Context, eventID string, userID int64, capacity int, answers []domain.Answer) (domain.RegisterResult, error)
	Cancel(ctx context.Context, eventID string, userID int64, capacity int) (domain.CancelResult, error)
	Status(ctx context.Context, eventID string, userID int64) (domain.Attendance, error)
	Summary(ctx context.Context, eventID string) (domain.SeatSummary, error)
}

// EventReader resolves events by id.
type EventReader interface {
	GetByID(ctx context.Context, eventID string) (domain.Event, error)
}

// Gateway exposes register, cancel and status for a user and an event.
type Gateway struct {
	ledger Ledger
	events EventReader
	logger *logrus.Entry
}

// NewGateway constructs a Gateway.
func NewGateway(ledger Ledger, events EventReader, logger *logrus.Entry) *Gateway {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Gateway{
		ledger: ledger,
		events: events,
		logger: logger,
	}
}

// Register seats the user or waitlists them when the event is full. It is
// idempotent: a second call yields an already_* outcome.
func (g *Gateway) Register(ctx context.Context, eventID string, userID int64, answers []domain.Answer) (domain.RegisterResult, error) {
	if err := g.ready(ctx); err != nil {
		return domain.RegisterResult{}, err
	}

	event, err := g.events.GetByID(ctx, eventID)
	if err != nil {
		return domain.RegisterResult{}, err
	}
	if !event.AcceptsRegistrations() {
		return domain.RegisterResult{}, domain.ErrRegistrationClosed
	}

	result, err := g.ledger.Register(ctx, event.ID, userID, event.Capacity, answers)
	if err != nil {
		return domain.RegisterResult{}, fmt.Errorf("register: %w", err)
	}

	g.logger.WithFields(logging.Fields{
		"event":    "registration_decided",
		"event_id": event.ID,
		"user_id":  userID,
		"outcome":  result.Outcome,
		"position": result.Position,
	}).Info("registration decided")

	return result, nil
}

// Cancel frees the user's seat or waitlist slot. A freed seat promotes at
// most one waitlisted user, reported in PromotedUserID.
func (g *Gateway) Cancel(ctx context.Context, eventID string, userID int64) (domain.CancelResult, error) {
	if err := g.ready(ctx); err != nil {
		return domain.CancelResult{}, err
	}

	event, err := g.events.GetByID(ctx, eventID)
	if err != nil {
		return domain.CancelResult{}, err
	}

	result, err := g.ledger.Cancel(ctx, event.ID, userID, event.Capacity)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("cancel: %w", err)
	}

	fields := logging.Fields{
		"event":    "registration_cancelled",
		"event_id": event.ID,
		"user_id":  userID,
		"outcome":  result.Outcome,
	}
	if result.Promoted() {
		fields["promoted_user_id"] = result.PromotedUserID
	}
	g.logger.WithFields(fields).Info("cancellation processed")

	return result, nil
}

// Status reports the user's standing for the event.
func (g *Gateway) Status(ctx context.Context, eventID string, userID int64) (domain.Attendance, error) {
	if err := g.ready(ctx); err != nil {
		return domain.Attendance{}, err
	}

	attendance, err := g.ledger.Status(ctx, eventID, userID)
	if err != nil {
		return domain.Attendance{}, fmt.Errorf("status: %w", err)
	}
	return attendance, nil
}

// Summary counts the event's seats and waitlist.
func (g *Gateway) Summary(ctx context.Context, eventID string) (domain.SeatSummary, error) {
	if err := g.ready(ctx); err != nil {
		return domain.SeatSummary{}, err
	}

	summary, err := g.ledger.Summary(ctx, eventID)
	if err != nil {
		return domain.SeatSummary{}, fmt.Errorf("summary: %w", err)
	}
	return summary, nil
}

func (g *Gateway) ready(ctx context.Context) error {
	if g == nil || g.ledger == nil || g.events == nil {
		return errors.New("registration gateway is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}
