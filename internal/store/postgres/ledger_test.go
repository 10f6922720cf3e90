package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
)

func TestLedgerRegisterOutcomes(t *testing.T) {
	three := 3
	tests := []struct {
		name     string
		outcome  string
		position *int
		want     domain.RegisterResult
		wantErr  bool
	}{
		{name: "registered", outcome: "registered", want: domain.RegisterResult{Outcome: domain.OutcomeRegistered}},
		{name: "waitlisted", outcome: "waitlisted", position: &three, want: domain.RegisterResult{Outcome: domain.OutcomeWaitlisted, Position: 3}},
		{name: "already registered", outcome: "already_registered", want: domain.RegisterResult{Outcome: domain.OutcomeAlreadyRegistered}},
		{name: "already waitlisted", outcome: "already_waitlisted", position: &three, want: domain.RegisterResult{Outcome: domain.OutcomeAlreadyWaitlisted, Position: 3}},
		{name: "waitlisted without position", outcome: "waitlisted", wantErr: true},
		{name: "unknown outcome", outcome: "overbooked", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeQuerier{row: fakeRow{values: []any{tt.outcome, tt.position}}}
			ledger := NewLedger(db)

			got, err := ledger.Register(context.Background(), "ev-1", 7, 10, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Register returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}

			if !strings.Contains(db.sql, "register_attendee") {
				t.Fatalf("expected register_attendee call, got %q", db.sql)
			}
			if answers, ok := db.args[3].([]domain.Answer); !ok || answers == nil {
				t.Fatalf("expected non-nil answers argument, got %#v", db.args[3])
			}
			if db.args[2] != 10 {
				t.Fatalf("expected capacity argument 10, got %v", db.args[2])
			}
		})
	}
}

func TestLedgerCancelOutcomes(t *testing.T) {
	promoted := int64(99)
	tests := []struct {
		name     string
		outcome  string
		promoted *int64
		want     domain.CancelResult
	}{
		{name: "cancelled with promotion", outcome: "cancelled", promoted: &promoted, want: domain.CancelResult{Outcome: domain.OutcomeCancelled, PromotedUserID: 99}},
		{name: "cancelled without promotion", outcome: "cancelled", want: domain.CancelResult{Outcome: domain.OutcomeCancelled}},
		{name: "not registered", outcome: "not_registered", want: domain.CancelResult{Outcome: domain.OutcomeNotRegistered}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ledger := NewLedger(&fakeQuerier{row: fakeRow{values: []any{tt.outcome, tt.promoted}}})

			got, err := ledger.Cancel(context.Background(), "ev-1", 7, 1)
			if err != nil {
				t.Fatalf("Cancel returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestLedgerStatus(t *testing.T) {
	two := 2

	ledger := NewLedger(&fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}})
	got, err := ledger.Status(context.Background(), "ev-1", 7)
	if err != nil || got.State != domain.AttendanceNone {
		t.Fatalf("expected none, got %+v err=%v", got, err)
	}

	ledger = NewLedger(&fakeQuerier{row: fakeRow{values: []any{"waitlisted", &two}}})
	got, err = ledger.Status(context.Background(), "ev-1", 7)
	if err != nil || got.State != domain.AttendanceWaitlisted || got.Position != 2 {
		t.Fatalf("expected waitlisted at 2, got %+v err=%v", got, err)
	}
}

func TestLedgerSummary(t *testing.T) {
	ledger := NewLedger(&fakeQuerier{row: fakeRow{values: []any{int64(5), int64(2)}}})

	got, err := ledger.Summary(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if got.Registered != 5 || got.Waitlisted != 2 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestLedgerPropagatesErrors(t *testing.T) {
	expected := errors.New("connection reset")
	ledger := NewLedger(&fakeQuerier{row: fakeRow{err: expected}})

	if _, err := ledger.Register(context.Background(), "ev-1", 7, 1, nil); !errors.Is(err, expected) {
		t.Fatalf("expected wrapped error from Register, got %v", err)
	}
	if _, err := ledger.Cancel(context.Background(), "ev-1", 7, 1); !errors.Is(err, expected) {
		t.Fatalf("expected wrapped error from Cancel, got %v", err)
	}
	if _, err := ledger.Status(context.Background(), "ev-1", 7); !errors.Is(err, expected) {
		t.Fatalf("expected wrapped error from Status, got %v", err)
	}
}

func TestLedgerRequiresInitialization(t *testing.T) {
	var ledger *Ledger
	if _, err := ledger.Register(context.Background(), "ev-1", 7, 1, nil); err == nil {
		t.Fatalf("expected error for nil ledger")
	}
	if _, err := NewLedger(&fakeQuerier{}).Cancel(nil, "ev-1", 7, 1); err == nil {
		t.Fatalf("expected error for nil context")
	}
}

type fakeQuerier struct {
	row  fakeRow
	sql  string
	args []any
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql = sql
	f.args = args
	return f.row
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: want %d destinations, got %d", len(r.values), len(dest))
	}

	for i, value := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = value.(string)
		case *int64:
			*d = value.(int64)
		case **int:
			*d = value.(*int)
		case **int64:
			*d = value.(*int64)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}
