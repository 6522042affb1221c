package postgres

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/deskmate/deskmate/internal/audit"
)

// Sink appends audit records to a PostgreSQL table via the pgx stdlib
// driver. The schema is created lazily on first send.
type Sink struct {
	db *sql.DB

	once   sync.Once
	schema error
}

func New(dsn string) (*Sink, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &Sink{db: d}, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	s.once.Do(func() {
		_, s.schema = s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS audit_trail(
				id BIGSERIAL PRIMARY KEY,
				kind TEXT NOT NULL,
				occurred_at TIMESTAMPTZ NOT NULL,
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
		VALUES($1, $2, $3, $4, $5);`,
		string(r.Kind), r.OccurredAt.UTC(), r.Service, r.SessionID, r.Detail)
	return err
}

func (s *Sink) Close() error { return s.db.Close() }
