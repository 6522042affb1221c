package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/deskmate/deskmate/internal/store"
)

// DB implements store.Store for PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions(
			id TEXT PRIMARY KEY,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NULL,
			status TEXT NOT NULL,
			actions_count INTEGER NOT NULL DEFAULT 0,
			patterns_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);`,
		`CREATE TABLE IF NOT EXISTS settings(
			id INTEGER PRIMARY KEY CHECK (id = 1),
			body TEXT NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) CreateSession(ctx context.Context, sess store.Session) error {
	status := sess.Status
	if status == "" {
		status = store.StatusActive
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions(id, start_time, end_time, status, actions_count, patterns_count)
		VALUES($1, $2, NULL, $3, $4, $5);`,
		sess.ID, sess.StartTime.UTC(), status, sess.ActionsCount, sess.PatternsCount)
	return err
}

func (p *DB) FinalizeSession(ctx context.Context, id string, endTime time.Time, status string, actions, patterns int) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE sessions
		SET end_time=$1, status=$2, actions_count=$3, patterns_count=$4
		WHERE id=$5;`,
		endTime.UTC(), status, actions, patterns, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *DB) GetSession(ctx context.Context, id string) (store.Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, start_time, end_time, status, actions_count, patterns_count
		FROM sessions WHERE id=$1;`, id)
	var sess store.Session
	err := row.Scan(&sess.ID, &sess.StartTime, &sess.EndTime, &sess.Status, &sess.ActionsCount, &sess.PatternsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Session{}, store.ErrNotFound
	}
	if err != nil {
		return store.Session{}, err
	}
	return sess, nil
}

func (p *DB) ListSessions(ctx context.Context, limit int) ([]store.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, status, actions_count, patterns_count
		FROM sessions
		ORDER BY start_time DESC
		LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Session, 0)
	for rows.Next() {
		var sess store.Session
		if err := rows.Scan(&sess.ID, &sess.StartTime, &sess.EndTime, &sess.Status, &sess.ActionsCount, &sess.PatternsCount); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (p *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *DB) DeleteAllSessions(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions;`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *DB) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE status=$1 AND start_time < $2;`,
		store.StatusCompleted, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *DB) StorageStats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	var oldest sql.NullTime
	row := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status=$1 THEN 1 ELSE 0 END), 0),
		       MIN(start_time)
		FROM sessions;`, store.StatusActive)
	if err := row.Scan(&st.TotalSessions, &st.ActiveSessions, &oldest); err != nil {
		return store.Stats{}, err
	}
	if oldest.Valid {
		st.OldestSession = oldest.Time
	}
	return st, nil
}

func (p *DB) GetSettings(ctx context.Context) (store.Settings, error) {
	row := p.db.QueryRowContext(ctx, `SELECT body FROM settings WHERE id=1;`)
	var body string
	err := row.Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DefaultSettings(), nil
	}
	if err != nil {
		return store.Settings{}, err
	}
	var out store.Settings
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return store.Settings{}, err
	}
	return out, nil
}

func (p *DB) UpdateSettings(ctx context.Context, in store.Settings) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO settings(id, body) VALUES(1, $1)
		ON CONFLICT(id) DO UPDATE SET body=EXCLUDED.body;`, string(body))
	return err
}

func (p *DB) ResetSettings(ctx context.Context) error {
	return p.UpdateSettings(ctx, store.DefaultSettings())
}
