package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/deskmate/deskmate/internal/audit"
)

func TestSinkAppends(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	recs := []audit.Record{
		{Kind: audit.KindServiceStart, OccurredAt: time.Now().UTC(), Service: "screen_capture"},
		{Kind: audit.KindRestart, OccurredAt: time.Now().UTC(), Service: "screen_capture", Detail: "attempt 1"},
		{Kind: audit.KindSessionCompleted, OccurredAt: time.Now().UTC(), SessionID: "sess-1"},
	}
	for i, r := range recs {
		if err := s.Send(ctx, r); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_trail;`)
	if err := row.Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows = %d, want 3", n)
	}
}

func TestNewEmptyPath(t *testing.T) {
	if _, err := New("   "); err == nil {
		t.Fatal("empty path must fail")
	}
}
