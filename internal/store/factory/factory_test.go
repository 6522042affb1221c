package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/deskmate/deskmate/internal/store"
)

func TestNewFromDSNEmpty(t *testing.T) {
	if _, err := NewFromDSN("  "); err == nil {
		t.Fatal("empty DSN must fail")
	}
}

func TestNewFromDSNSQLitePrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskmate.db")
	st, err := NewFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("sqlite dsn: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := st.CreateSession(ctx, store.Session{ID: "x", StartTime: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestNewFromDSNBarePathDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.db")
	st, err := NewFromDSN(path)
	if err != nil {
		t.Fatalf("bare path dsn: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
}
