package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestConnectPingsAndMigrates(t *testing.T) {
	fake := &fakePool{}
	restore := stubConnect(fake, nil)
	t.Cleanup(restore)

	db, err := Connect(context.Background(), "postgres://bot@localhost/event_bot")
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if fake.pings != 1 {
		t.Fatalf("expected connect to ping once, got %d", fake.pings)
	}

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	for _, fn := range []string{"register_attendee", "cancel_attendee", "promote_next", "pg_advisory_xact_lock", "waitlist_counters"} {
		if !strings.Contains(fake.execSQL, fn) {
			t.Fatalf("expected migration to define %s", fn)
		}
	}

	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}

	db.Close()
	if !fake.closed {
		t.Fatalf("expected pool to be closed")
	}
}

func TestConnectClosesPoolOnPingFailure(t *testing.T) {
	fake := &fakePool{pingErr: errors.New("refused")}
	restore := stubConnect(fake, nil)
	t.Cleanup(restore)

	if _, err := Connect(context.Background(), "postgres://bot@localhost/event_bot"); err == nil {
		t.Fatalf("expected ping error")
	}
	if !fake.closed {
		t.Fatalf("expected pool to be closed after failed ping")
	}
}

func TestConnectPropagatesErrors(t *testing.T) {
	restore := stubConnect(nil, errors.New("bad dsn"))
	t.Cleanup(restore)

	if _, err := Connect(context.Background(), "::"); err == nil {
		t.Fatalf("expected connect error")
	}
	if _, err := Connect(nil, "postgres://x"); err == nil {
		t.Fatalf("expected error for nil context")
	}
}

func TestMigratePropagatesErrors(t *testing.T) {
	fake := &fakePool{execErr: errors.New("syntax error")}
	db := &DB{pool: fake}

	if err := db.Migrate(context.Background()); err == nil {
		t.Fatalf("expected migration error")
	}

	var nilDB *DB
	if err := nilDB.Migrate(context.Background()); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func stubConnect(fake pool, err error) func() {
	prev := connectPostgres
	connectPostgres = func(context.Context, string) (pool, error) {
		if err != nil {
			return nil, err
		}
		return fake, nil
	}
	return func() {
		connectPostgres = prev
	}
}

type fakePool struct {
	pings   int
	pingErr error
	execSQL string
	execErr error
	closed  bool
}

func (f *fakePool) Ping(context.Context) error {
	f.pings++
	return f.pingErr
}

func (f *fakePool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execSQL = sql
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{err: pgx.ErrNoRows}
}

func (f *fakePool) Close() {
	f.closed = true
}
