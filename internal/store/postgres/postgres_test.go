package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/deskmate/deskmate/internal/store"
)

// startPostgresContainer starts a PostgreSQL container for tests and returns
// a DSN suitable for pgx stdlib. It skips the test if Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	t.Helper()
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresSessionsAndSettings(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	defer terminate()
	waitForPostgres(t, dsn)

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	start := time.Now().UTC().Truncate(time.Second)
	if err := db.CreateSession(ctx, store.Session{ID: "pg-1", StartTime: start}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, err := db.GetSession(ctx, "pg-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != store.StatusActive {
		t.Fatalf("status = %q, want active", got.Status)
	}

	if err := db.FinalizeSession(ctx, "pg-1", start.Add(time.Minute), store.StatusCompleted, 7, 1); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	got, _ = db.GetSession(ctx, "pg-1")
	if got.Status != store.StatusCompleted || got.ActionsCount != 7 {
		t.Fatalf("finalized = %+v", got)
	}

	list, err := db.ListSessions(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v (%d entries)", err, len(list))
	}

	st, err := db.StorageStats(ctx)
	if err != nil || st.TotalSessions != 1 || st.ActiveSessions != 0 {
		t.Fatalf("stats = %+v err=%v", st, err)
	}

	in := store.Settings{ScreenshotInterval: 30, SampleRate: 48000, MaxStorageGB: 200}
	if err := db.UpdateSettings(ctx, in); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	out, err := db.GetSettings(ctx)
	if err != nil || out != in {
		t.Fatalf("settings = %+v err=%v, want %+v", out, err, in)
	}

	if err := db.DeleteSession(ctx, "pg-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetSession(ctx, "pg-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
