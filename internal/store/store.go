// Package store persists everything the assistant remembers about a
// user: conversation turns and their rolling summary, persona, memos,
// reminders, and the briefing and mail notification settings.
//
// All entities share one SQLite database. Each entity gets a small
// typed store hanging off [Store]; callers never see SQL.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TimeLayout is the stored representation of every timestamp column.
// Values are local wall-clock time so date prefixes compare against
// the user's "today".
const TimeLayout = "2006-01-02 15:04:05"

// ErrNotFound is returned when a user-scoped lookup or delete matches
// no row.
var ErrNotFound = errors.New("not found")

// Options carries the lazily-applied defaults for per-user settings.
type Options struct {
	BriefingCity string
	BriefingTime string
}

// Store groups the per-entity stores over a shared database handle.
type Store struct {
	db *sql.DB

	Conversation *ConversationStore
	Personas     *PersonaStore
	Memos        *MemoStore
	Reminders    *ReminderStore
	Briefing     *BriefingStore
	Mail         *MailStore
}

// Open creates or opens the database at path. WAL mode lets scheduler
// ticks read while a chat turn writes.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := New(db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open database, creating the schema if needed.
func New(db *sql.DB, opts Options) (*Store, error) {
	if opts.BriefingCity == "" {
		opts.BriefingCity = "Seoul"
	}
	if opts.BriefingTime == "" {
		opts.BriefingTime = "08:00"
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.Conversation = &ConversationStore{db: db}
	s.Personas = &PersonaStore{db: db}
	s.Memos = &MemoStore{db: db}
	s.Reminders = &ReminderStore{db: db}
	s.Briefing = &BriefingStore{db: db, defaults: BriefingSettings{
		Enabled: true,
		Time:    opts.BriefingTime,
		City:    opts.BriefingCity,
	}}
	s.Mail = &MailStore{db: db}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, id);

	CREATE TABLE IF NOT EXISTS conversation_summaries (
		user_id       TEXT PRIMARY KEY,
		summary       TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS personas (
		user_id TEXT PRIMARY KEY,
		name    TEXT NOT NULL,
		role    TEXT NOT NULL,
		tone    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memos (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memos_user ON memos(user_id, id);

	CREATE TABLE IF NOT EXISTS reminders (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT NOT NULL,
		content    TEXT NOT NULL,
		remind_at  TEXT NOT NULL,
		recurrence TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_remind_at ON reminders(remind_at);

	CREATE TABLE IF NOT EXISTS briefing_settings (
		user_id   TEXT PRIMARY KEY,
		enabled   INTEGER NOT NULL DEFAULT 1,
		time      TEXT NOT NULL DEFAULT '08:00',
		city      TEXT NOT NULL,
		last_sent TEXT
	);

	CREATE TABLE IF NOT EXISTS mail_settings (
		user_id      TEXT PRIMARY KEY,
		enabled      INTEGER NOT NULL DEFAULT 0,
		last_checked TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
