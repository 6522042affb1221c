package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deskmate/deskmate/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions(
			id TEXT PRIMARY KEY,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP NULL,
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
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) CreateSession(ctx context.Context, sess store.Session) error {
	status := sess.Status
	if status == "" {
		status = store.StatusActive
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, start_time, end_time, status, actions_count, patterns_count)
		VALUES(?, ?, NULL, ?, ?, ?);`,
		sess.ID, sess.StartTime.UTC(), status, sess.ActionsCount, sess.PatternsCount)
	return err
}

func (s *DB) FinalizeSession(ctx context.Context, id string, endTime time.Time, status string, actions, patterns int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET end_time=?, status=?, actions_count=?, patterns_count=?
		WHERE id=?;`,
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

func (s *DB) GetSession(ctx context.Context, id string) (store.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, start_time, end_time, status, actions_count, patterns_count
		FROM sessions WHERE id=?;`, id)
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

func (s *DB) ListSessions(ctx context.Context, limit int) ([]store.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, status, actions_count, patterns_count
		FROM sessions
		ORDER BY start_time DESC
		LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSessions(rows)
}

func (s *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?;`, id)
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

func (s *DB) DeleteAllSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions;`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *DB) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE status=? AND start_time < ?;`,
		store.StatusCompleted, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *DB) StorageStats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END), 0),
		       COALESCE(MIN(start_time), '0001-01-01 00:00:00+00:00')
		FROM sessions;`, store.StatusActive)
	if err := row.Scan(&st.TotalSessions, &st.ActiveSessions, &st.OldestSession); err != nil {
		return store.Stats{}, err
	}
	return st, nil
}

func (s *DB) GetSettings(ctx context.Context) (store.Settings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM settings WHERE id=1;`)
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

func (s *DB) UpdateSettings(ctx context.Context, in store.Settings) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings(id, body) VALUES(1, ?)
		ON CONFLICT(id) DO UPDATE SET body=excluded.body;`, string(body))
	return err
}

func (s *DB) ResetSettings(ctx context.Context) error {
	return s.UpdateSettings(ctx, store.DefaultSettings())
}

func scanSessions(rows *sql.Rows) ([]store.Session, error) {
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
