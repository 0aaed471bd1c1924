package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Reminder is a scheduled notification. Recurrence is empty for
// one-shot reminders.
type Reminder struct {
	ID         int64
	UserID     string
	Content    string
	RemindAt   time.Time
	Recurrence string
	CreatedAt  time.Time
}

// Recurring reports whether the reminder repeats.
func (r Reminder) Recurring() bool {
	return r.Recurrence != ""
}

// ReminderStore persists reminders.
type ReminderStore struct {
	db *sql.DB
}

// Add stores a reminder and returns its ID.
func (s *ReminderStore) Add(ctx context.Context, userID, content string, remindAt time.Time, recurrence string) (int64, error) {
	var rec any
	if recurrence != "" {
		rec = recurrence
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (user_id, content, remind_at, recurrence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, content, formatTime(remindAt), rec, formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("add reminder: %w", err)
	}
	return res.LastInsertId()
}

// GetAll returns the user's reminders ordered by time.
func (s *ReminderStore) GetAll(ctx context.Context, userID string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, remind_at, recurrence, created_at FROM reminders
		 WHERE user_id = ? ORDER BY remind_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// GetDue returns reminders for every user whose time is at or before now.
func (s *ReminderStore) GetDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, remind_at, recurrence, created_at FROM reminders
		 WHERE remind_at <= ? ORDER BY remind_at ASC, id ASC`,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("get due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// Reschedule moves a reminder to a new time in place.
func (s *ReminderStore) Reschedule(ctx context.Context, id int64, next time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET remind_at = ? WHERE id = ?`, formatTime(next), id)
	if err != nil {
		return fmt.Errorf("reschedule reminder %d: %w", id, err)
	}
	return nil
}

// Delete removes a reminder by ID regardless of owner. Used by the
// scheduler after delivering a one-shot reminder.
func (s *ReminderStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}
	return nil
}

// DeleteByID removes one of the user's reminders. It returns
// [ErrNotFound] when the ID does not belong to the user.
func (s *ReminderStore) DeleteByID(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		var r Reminder
		var remindAt, created string
		var rec sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.Content, &remindAt, &rec, &created); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.RemindAt = parseTime(remindAt)
		r.Recurrence = rec.String
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}
