package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
)

const (
	registerSQL = `SELECT outcome, waitlist_position FROM register_attendee($1, $2, $3, $4::jsonb)`
	cancelSQL   = `SELECT outcome, promoted_user_id FROM cancel_attendee($1, $2, $3)`
	statusSQL   = `
SELECT 'registered'::text, NULL::integer
FROM registrations
WHERE event_id = $1 AND user_id = $2 AND status = 'registered'
UNION ALL
SELECT 'waitlisted'::text, position
FROM waitlist_entries
WHERE event_id = $1 AND user_id = $2
LIMIT 1`
	summarySQL = `
SELECT
    (SELECT count(*) FROM registrations WHERE event_id = $1 AND status = 'registered'),
    (SELECT count(*) FROM waitlist_entries WHERE event_id = $1)`
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger calls the atomic seat functions. It never takes locks of its own;
// the functions serialize per event inside the database.
type Ledger struct {
	db querier
}

// NewLedger constructs a Ledger over db.
func NewLedger(db querier) *Ledger {
	return &Ledger{db: db}
}

// Register seats userID or appends them to the waitlist when the event is
// full. Repeated calls report the already_* outcomes.
func (l *Ledger) Register(ctx context.Context, eventID string, userID int64, capacity int, answers []domain.Answer) (domain.RegisterResult, error) {
	if err := l.ready(ctx); err != nil {
		return domain.RegisterResult{}, err
	}
	if answers == nil {
		answers = []domain.Answer{}
	}

	var (
		outcome  string
		position *int
	)
	if err := l.db.QueryRow(ctx, registerSQL, eventID, userID, capacity, answers).Scan(&outcome, &position); err != nil {
		return domain.RegisterResult{}, fmt.Errorf("register attendee: %w", err)
	}

	result := domain.RegisterResult{Outcome: domain.RegisterOutcome(outcome)}
	switch result.Outcome {
	case domain.OutcomeRegistered, domain.OutcomeAlreadyRegistered:
	case domain.OutcomeWaitlisted, domain.OutcomeAlreadyWaitlisted:
		if position == nil {
			return domain.RegisterResult{}, fmt.Errorf("register attendee: %s without position", outcome)
		}
		result.Position = *position
	default:
		return domain.RegisterResult{}, fmt.Errorf("register attendee: unknown outcome %q", outcome)
	}

	return result, nil
}

// Cancel frees the user's seat or waitlist slot. Freeing a seat promotes at
// most one user from the head of the waitlist.
func (l *Ledger) Cancel(ctx context.Context, eventID string, userID int64, capacity int) (domain.CancelResult, error) {
	if err := l.ready(ctx); err != nil {
		return domain.CancelResult{}, err
	}

	var (
		outcome  string
		promoted *int64
	)
	if err := l.db.QueryRow(ctx, cancelSQL, eventID, userID, capacity).Scan(&outcome, &promoted); err != nil {
		return domain.CancelResult{}, fmt.Errorf("cancel attendee: %w", err)
	}

	result := domain.CancelResult{Outcome: domain.CancelOutcome(outcome)}
	switch result.Outcome {
	case domain.OutcomeCancelled:
		if promoted != nil {
			result.PromotedUserID = *promoted
		}
	case domain.OutcomeNotRegistered:
	default:
		return domain.CancelResult{}, fmt.Errorf("cancel attendee: unknown outcome %q", outcome)
	}

	return result, nil
}

// Status reports where userID stands for eventID.
func (l *Ledger) Status(ctx context.Context, eventID string, userID int64) (domain.Attendance, error) {
	if err := l.ready(ctx); err != nil {
		return domain.Attendance{}, err
	}

	var (
		state    string
		position *int
	)
	err := l.db.QueryRow(ctx, statusSQL, eventID, userID).Scan(&state, &position)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attendance{State: domain.AttendanceNone}, nil
	}
	if err != nil {
		return domain.Attendance{}, fmt.Errorf("attendance status: %w", err)
	}

	attendance := domain.Attendance{State: domain.AttendanceState(state)}
	if position != nil {
		attendance.Position = *position
	}
	return attendance, nil
}

// Summary counts the event's registered seats and waitlist entries.
func (l *Ledger) Summary(ctx context.Context, eventID string) (domain.SeatSummary, error) {
	if err := l.ready(ctx); err != nil {
		return domain.SeatSummary{}, err
	}

	var registered, waitlisted int64
	if err := l.db.QueryRow(ctx, summarySQL, eventID).Scan(&registered, &waitlisted); err != nil {
		return domain.SeatSummary{}, fmt.Errorf("seat summary: %w", err)
	}

	return domain.SeatSummary{Registered: int(registered), Waitlisted: int(waitlisted)}, nil
}

func (l *Ledger) ready(ctx context.Context) error {
	if l == nil || l.db == nil {
		return errors.New("ledger is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}
