package registration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/store/storetest"
)

func newTestGateway(t *testing.T, events ...domain.Event) (*Gateway, *storetest.Ledger, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	ledger := storetest.NewLedger()
	gateway := NewGateway(ledger, storetest.NewEventStore(events...), logrus.NewEntry(logger))
	return gateway, ledger, hook
}

func publishedEvent(id string, capacity int) domain.Event {
	return domain.Event{
		ID:       id,
		Title:    "Go meetup",
		StartsAt: time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC),
		Capacity: capacity,
		Status:   domain.EventStatusPublished,
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	gateway, _, hook := newTestGateway(t, publishedEvent("ev-1", 1))
	ctx := context.Background()

	first, err := gateway.Register(ctx, "ev-1", 1, nil)
	if err != nil || first.Outcome != domain.OutcomeRegistered {
		t.Fatalf("expected registered, got %+v err=%v", first, err)
	}
	second, err := gateway.Register(ctx, "ev-1", 1, nil)
	if err != nil || second.Outcome != domain.OutcomeAlreadyRegistered {
		t.Fatalf("expected already_registered, got %+v err=%v", second, err)
	}

	waitlisted, err := gateway.Register(ctx, "ev-1", 2, nil)
	if err != nil || waitlisted.Outcome != domain.OutcomeWaitlisted || waitlisted.Position != 1 {
		t.Fatalf("expected waitlisted at 1, got %+v err=%v", waitlisted, err)
	}
	again, err := gateway.Register(ctx, "ev-1", 2, nil)
	if err != nil || again.Outcome != domain.OutcomeAlreadyWaitlisted || again.Position != 1 {
		t.Fatalf("expected already_waitlisted at 1, got %+v err=%v", again, err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "registration_decided" {
		t.Fatalf("expected registration_decided log, got %v", entry)
	}
}

func TestWaitlistPositionsAreGapless(t *testing.T) {
	gateway, _, _ := newTestGateway(t, publishedEvent("ev-1", 2))
	ctx := context.Background()

	for userID := int64(1); userID <= 2; userID++ {
		if _, err := gateway.Register(ctx, "ev-1", userID, nil); err != nil {
			t.Fatalf("Register returned error: %v", err)
		}
	}

	for i, userID := range []int64{3, 4, 5, 6} {
		result, err := gateway.Register(ctx, "ev-1", userID, nil)
		if err != nil {
			t.Fatalf("Register returned error: %v", err)
		}
		if result.Outcome != domain.OutcomeWaitlisted || result.Position != i+1 {
			t.Fatalf("expected waitlisted at %d, got %+v", i+1, result)
		}
	}
}

func TestWaitlistPositionsNeverRepeat(t *testing.T) {
	gateway, _, _ := newTestGateway(t, publishedEvent("ev-1", 1))
	ctx := context.Background()

	register := func(userID int64) domain.RegisterResult {
		t.Helper()
		result, err := gateway.Register(ctx, "ev-1", userID, nil)
		if err != nil {
			t.Fatalf("Register returned error: %v", err)
		}
		return result
	}

	register(1)
	if got := register(2); got.Position != 1 {
		t.Fatalf("expected user 2 waitlisted at 1, got %+v", got)
	}
	if result, err := gateway.Cancel(ctx, "ev-1", 1); err != nil || result.PromotedUserID != 2 {
		t.Fatalf("expected user 2 promoted, got %+v err=%v", result, err)
	}

	if got := register(3); got.Outcome != domain.OutcomeWaitlisted || got.Position != 2 {
		t.Fatalf("expected drained waitlist to continue at 2, got %+v", got)
	}
	if _, err := gateway.Cancel(ctx, "ev-1", 3); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if got := register(4); got.Position != 3 {
		t.Fatalf("expected a cancelled tail position not to be reused, got %+v", got)
	}
}

func TestConcurrentRegistrationNeverOverbooks(t *testing.T) {
	gateway, _, _ := newTestGateway(t, publishedEvent("ev-1", 3))
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []domain.RegisterResult
	)
	for userID := int64(1); userID <= 10; userID++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			result, err := gateway.Register(ctx, "ev-1", userID, nil)
			if err != nil {
				t.Errorf("Register returned error: %v", err)
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(userID)
	}
	wg.Wait()

	registered := 0
	positions := make(map[int]bool)
	for _, result := range results {
		switch result.Outcome {
		case domain.OutcomeRegistered:
			registered++
		case domain.OutcomeWaitlisted:
			positions[result.Position] = true
		default:
			t.Fatalf("unexpected outcome %s", result.Outcome)
		}
	}
	if registered != 3 {
		t.Fatalf("expected 3 seats, got %d", registered)
	}
	for pos := 1; pos <= 7; pos++ {
		if !positions[pos] {
			t.Fatalf("expected waitlist position %d to be assigned, got %v", pos, positions)
		}
	}
}

func TestCancelPromotesExactlyTheHead(t *testing.T) {
	gateway, _, _ := newTestGateway(t, publishedEvent("ev-1", 1))
	ctx := context.Background()

	for _, userID := range []int64{1, 2, 3} {
		if _, err := gateway.Register(ctx, "ev-1", userID, nil); err != nil {
			t.Fatalf("Register returned error: %v", err)
		}
	}

	result, err := gateway.Cancel(ctx, "ev-1", 1)
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if result.Outcome != domain.OutcomeCancelled || result.PromotedUserID != 2 {
		t.Fatalf("expected user 2 promoted, got %+v", result)
	}

	status, err := gateway.Status(ctx, "ev-1", 2)
	if err != nil || status.State != domain.AttendanceRegistered {
		t.Fatalf("expected promoted user registered, got %+v err=%v", status, err)
	}
	status, err = gateway.Status(ctx, "ev-1", 3)
	if err != nil || status.State != domain.AttendanceWaitlisted {
		t.Fatalf("expected user 3 still waitlisted, got %+v err=%v", status, err)
	}

	summary, err := gateway.Summary(ctx, "ev-1")
	if err != nil || summary.Registered != 1 || summary.Waitlisted != 1 {
		t.Fatalf("unexpected summary %+v err=%v", summary, err)
	}
}

func TestCancelWaitlistEntryDoesNotPromote(t *testing.T) {
	gateway, _, _ := newTestGateway(t, publishedEvent("ev-1", 1))
	ctx := context.Background()

	for _, userID := range []int64{1, 2, 3} {
		if _, err := gateway.Register(ctx, "ev-1", userID, nil); err != nil {
			t.Fatalf("Register returned error: %v", err)
		}
	}

	result, err := gateway.Cancel(ctx, "ev-1", 2)
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if result.Outcome != domain.OutcomeCancelled || result.Promoted() {
		t.Fatalf("expected cancellation without promotion, got %+v", result)
	}

	result, err = gateway.Cancel(ctx, "ev-1", 42)
	if err != nil || result.Outcome != domain.OutcomeNotRegistered {
		t.Fatalf("expected not_registered, got %+v err=%v", result, err)
	}
}

func TestRegisterRejectsMissingOrClosedEvents(t *testing.T) {
	draft := publishedEvent("ev-draft", 5)
	draft.Status = domain.EventStatusDraft
	closed := publishedEvent("ev-closed", 5)
	closed.Status = domain.EventStatusClosed

	gateway, _, _ := newTestGateway(t, draft, closed)
	ctx := context.Background()

	tests := []struct {
		eventID string
		want    error
	}{
		{eventID: "missing", want: domain.ErrEventNotFound},
		{eventID: "ev-draft", want: domain.ErrRegistrationClosed},
		{eventID: "ev-closed", want: domain.ErrRegistrationClosed},
	}

	for _, tt := range tests {
		if _, err := gateway.Register(ctx, tt.eventID, 1, nil); !errors.Is(err, tt.want) {
			t.Fatalf("Register(%s): expected %v, got %v", tt.eventID, tt.want, err)
		}
	}

	if _, err := gateway.Cancel(ctx, "missing", 1); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound from Cancel, got %v", err)
	}
}

func TestGatewayWrapsLedgerErrors(t *testing.T) {
	gateway, ledger, _ := newTestGateway(t, publishedEvent("ev-1", 1))
	expected := errors.New("connection refused")
	ledger.Err = expected

	if _, err := gateway.Register(context.Background(), "ev-1", 1, nil); !errors.Is(err, expected) {
		t.Fatalf("expected wrapped ledger error, got %v", err)
	}
	if _, err := gateway.Cancel(context.Background(), "ev-1", 1); !errors.Is(err, expected) {
		t.Fatalf("expected wrapped ledger error, got %v", err)
	}
}

func TestGatewayRequiresInitialization(t *testing.T) {
	var gateway *Gateway
	if _, err := gateway.Register(context.Background(), "ev-1", 1, nil); err == nil {
		t.Fatalf("expected error for nil gateway")
	}

	initialized, _, _ := newTestGateway(t)
	if _, err := initialized.Status(nil, "ev-1", 1); err == nil {
		t.Fatalf("expected error for nil context")
	}
}
