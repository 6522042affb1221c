package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session statuses persisted in the sessions table.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// Session is one recording session. EndTime is null while the session is
// active; counts are filled in when the session is finalized.
type Session struct {
	ID            string       `json:"id"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       sql.NullTime `json:"end_time"`
	Status        string       `json:"status"`
	ActionsCount  int          `json:"actions_count"`
	PatternsCount int          `json:"patterns_count"`
}

// Settings are the user-tunable backend parameters. Range validation lives
// in the command dispatcher; the store persists whatever it is given.
type Settings struct {
	ScreenshotInterval int `json:"screenshot_interval"`
	SampleRate         int `json:"sample_rate"`
	MaxStorageGB       int `json:"max_storage_gb"`
}

// DefaultSettings returns the values used until the user changes anything,
// and the values ResetSettings restores.
func DefaultSettings() Settings {
	return Settings{
		ScreenshotInterval: 5,
		SampleRate:         16000,
		MaxStorageGB:       50,
	}
}

// Stats summarizes what the store currently holds.
type Stats struct {
	TotalSessions  int       `json:"total_sessions"`
	ActiveSessions int       `json:"active_sessions"`
	OldestSession  time.Time `json:"oldest_session"`
}

// Store persists sessions and settings. Implementations must be safe for
// concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	CreateSession(ctx context.Context, s Session) error
	FinalizeSession(ctx context.Context, id string, endTime time.Time, status string, actions, patterns int) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteAllSessions(ctx context.Context) (int64, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
	StorageStats(ctx context.Context) (Stats, error)
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, s Settings) error
	ResetSettings(ctx context.Context) error
	Close() error
}
