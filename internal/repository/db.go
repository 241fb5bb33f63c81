package repository

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"daily-tracker/internal/logger"
	"daily-tracker/internal/model"
)

// NewDB opens the shared task database (todos, completions, users) and runs migrations.
func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "daily_tracker.db"
	}
	return open(dsn, &model.User{}, &model.Task{}, &model.CompletionRecord{})
}

// NewLocalDB opens the client-local state database that holds rollover markers.
func NewLocalDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "daily_tracker_local.db"
	}
	return open(dsn, &model.RolloverMarker{})
}

func open(dsn string, models ...interface{}) (*gorm.DB, error) {
	path, onDisk := sqliteFile(dsn)
	if onDisk {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		dsn = withFileOptions(dsn)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(
			slogWriter{log: logger.Get().With("component", "gorm")},
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("open db %q: %w", path, err)
	}

	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("migrate db %q: %w", path, err)
	}
	return db, nil
}

// sqliteFile returns the file path behind dsn and whether it is on disk.
func sqliteFile(dsn string) (string, bool) {
	path := strings.TrimPrefix(dsn, "file:")
	path, query, _ := strings.Cut(path, "?")
	if path == "" || strings.Contains(path, ":memory:") || strings.Contains(query, "mode=memory") {
		return path, false
	}
	return path, true
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// withFileOptions lets several processes share one database file: writers
// wait for the lock instead of failing, and readers do not block writers.
func withFileOptions(dsn string) string {
	var opts []string
	if !strings.Contains(dsn, "_busy_timeout") {
		opts = append(opts, "_busy_timeout=5000")
	}
	if !strings.Contains(dsn, "_journal_mode") {
		opts = append(opts, "_journal_mode=WAL")
	}
	if len(opts) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(opts, "&")
}

// slogWriter sends gorm's slow-query and error lines to the process logger.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
