package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" Debug ": slog.LevelDebug,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileWriter_WithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := FileConfig{Dir: dir}
	w := cfg.Writer("deskmate")
	if w == nil {
		t.Fatal("expected a writer when Dir is set")
	}
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()
	path := filepath.Join(dir, "deskmate.log")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log not created at %s: %v", path, err)
	}
}

func TestFileWriter_Defaults(t *testing.T) {
	cfg := FileConfig{}
	if w := cfg.Writer("n"); w != nil {
		t.Fatal("expected nil writer when no Path/Dir set")
	}
	cfg = FileConfig{Path: filepath.Join(t.TempDir(), "x.log")}
	w := cfg.Writer("n")
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger: %T", w)
	}
	if l.MaxSize != 10 || l.MaxBackups != 3 || l.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
	_ = w.Close()
}

func TestFileWriter_Overrides(t *testing.T) {
	cfg := FileConfig{Path: filepath.Join(t.TempDir(), "y.log"), MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}
	l := cfg.Writer("n").(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", l.MaxSize, l.MaxBackups, l.MaxAge, l.Compress)
	}
	_ = l.Close()
}

func TestNewSlogger(t *testing.T) {
	for _, cfg := range []Config{
		{Slog: SlogConfig{Level: "debug", Format: FormatText, Color: true, TimeStamps: true}},
		{Slog: SlogConfig{Level: "info", Format: FormatJSON}},
		{},
	} {
		if l := cfg.NewSlogger(); l == nil {
			t.Fatalf("NewSlogger returned nil for %+v", cfg)
		}
	}
}

func TestNewFileLogger(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{File: FileConfig{Dir: dir}}
	l, closer := cfg.NewFileLogger("app")
	if l == nil {
		t.Fatal("expected file logger")
	}
	l.Info("started", "component", "test")
	if closer != nil {
		_ = closer.Close()
	}
	if _, err := os.Stat(filepath.Join(dir, "app.log")); err != nil {
		t.Fatalf("file log not created: %v", err)
	}

	// No destination configured falls back to a console logger, no closer.
	l2, closer2 := Config{}.NewFileLogger("app")
	if l2 == nil || closer2 != nil {
		t.Fatalf("expected console fallback without closer, got %v %v", l2, closer2)
	}
}
