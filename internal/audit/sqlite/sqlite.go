package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/deskmate/deskmate/internal/audit"
)

// Sink appends audit records to a SQLite table. The schema is created
// lazily on first send.
type Sink struct {
	db *sql.DB

	once   sync.Once
	schema error
}

func New(path string) (*Sink, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &Sink{db: d}, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	s.once.Do(func() {
		_, s.schema = s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS audit_trail(
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				kind TEXT NOT NULL,
				occurred_at TIMESTAMP NOT NULL,
				service TEXT NOT NULL DEFAULT '',
				session_id TEXT NOT NULL DEFAULT '',
				detail TEXT NOT NULL DEFAULT ''
			);`)
	})
	return s.schema
}

func (s *Sink) Send(ctx context.Context, r audit.Record) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_trail(kind, occurred_at, service, session_id, detail)
		VALUES(?, ?, ?, ?, ?);`,
		string(r.Kind), r.OccurredAt.UTC(), r.Service, r.SessionID, r.Detail)
	return err
}

func (s *Sink) Close() error { return s.db.Close() }
