package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BriefingSettings controls the daily briefing for one user.
type BriefingSettings struct {
	UserID   string
	Enabled  bool
	Time     string // "HH:MM"
	City     string
	LastSent *time.Time
}

// SentOn reports whether the briefing was already sent on day's date.
func (b BriefingSettings) SentOn(day time.Time) bool {
	if b.LastSent == nil {
		return false
	}
	return b.LastSent.Format("2006-01-02") == day.Format("2006-01-02")
}

// BriefingUpdate names the fields to change. Nil fields are kept.
type BriefingUpdate struct {
	Enabled *bool
	Time    *string
	City    *string
}

// BriefingStore persists briefing settings. Users without a row get
// the configured defaults.
type BriefingStore struct {
	db       *sql.DB
	defaults BriefingSettings
}

// Defaults returns the settings a user has before customizing anything.
func (s *BriefingStore) Defaults(userID string) BriefingSettings {
	d := s.defaults
	d.UserID = userID
	return d
}

// GetSettings returns the user's stored settings, or nil if the user has
// never changed them.
func (s *BriefingStore) GetSettings(ctx context.Context, userID string) (*BriefingSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, enabled, time, city, last_sent FROM briefing_settings WHERE user_id = ?`,
		userID,
	)
	b, err := scanBriefing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get briefing settings: %w", err)
	}
	return b, nil
}

// Effective returns the stored settings or the defaults.
func (s *BriefingStore) Effective(ctx context.Context, userID string) (BriefingSettings, error) {
	b, err := s.GetSettings(ctx, userID)
	if err != nil {
		return BriefingSettings{}, err
	}
	if b == nil {
		return s.Defaults(userID), nil
	}
	return *b, nil
}

// SetSettings applies u on top of the current or default settings and
// writes the full row.
func (s *BriefingStore) SetSettings(ctx context.Context, userID string, u BriefingUpdate) (BriefingSettings, error) {
	cur, err := s.Effective(ctx, userID)
	if err != nil {
		return BriefingSettings{}, err
	}
	if u.Enabled != nil {
		cur.Enabled = *u.Enabled
	}
	if u.Time != nil {
		cur.Time = *u.Time
	}
	if u.City != nil {
		cur.City = *u.City
	}

	var lastSent any
	if cur.LastSent != nil {
		lastSent = formatTime(*cur.LastSent)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO briefing_settings (user_id, enabled, time, city, last_sent)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, boolToInt(cur.Enabled), cur.Time, cur.City, lastSent,
	)
	if err != nil {
		return BriefingSettings{}, fmt.Errorf("set briefing settings: %w", err)
	}
	return cur, nil
}

// GetAllEnabled returns every stored row with the briefing enabled.
func (s *BriefingStore) GetAllEnabled(ctx context.Context) ([]BriefingSettings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, enabled, time, city, last_sent FROM briefing_settings WHERE enabled = 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("get enabled briefings: %w", err)
	}
	defer rows.Close()

	var out []BriefingSettings
	for rows.Next() {
		b, err := scanBriefing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan briefing settings: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UpdateLastSent records the delivery time of today's briefing.
func (s *BriefingStore) UpdateLastSent(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE briefing_settings SET last_sent = ? WHERE user_id = ?`,
		formatTime(at), userID,
	)
	if err != nil {
		return fmt.Errorf("update briefing last_sent: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBriefing(row rowScanner) (*BriefingSettings, error) {
	var b BriefingSettings
	var enabled int
	var lastSent sql.NullString
	if err := row.Scan(&b.UserID, &enabled, &b.Time, &b.City, &lastSent); err != nil {
		return nil, err
	}
	b.Enabled = enabled != 0
	b.LastSent = parseNullTime(lastSent)
	return &b, nil
}

// MailSettings controls unread-mail notifications for one user.
type MailSettings struct {
	UserID      string
	Enabled     bool
	LastChecked *time.Time
}

// MailStore persists mail notification settings. Notifications are off
// until the user turns them on.
type MailStore struct {
	db *sql.DB
}

// GetSettings returns the user's settings, defaulting to disabled.
func (s *MailStore) GetSettings(ctx context.Context, userID string) (MailSettings, error) {
	m := MailSettings{UserID: userID}
	var enabled int
	var lastChecked sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled, last_checked FROM mail_settings WHERE user_id = ?`, userID,
	).Scan(&enabled, &lastChecked)
	if err == sql.ErrNoRows {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("get mail settings: %w", err)
	}
	m.Enabled = enabled != 0
	m.LastChecked = parseNullTime(lastChecked)
	return m, nil
}

// SetEnabled turns notifications on or off.
func (s *MailStore) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mail_settings (user_id, enabled) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET enabled = excluded.enabled`,
		userID, boolToInt(enabled),
	)
	if err != nil {
		return fmt.Errorf("set mail enabled: %w", err)
	}
	return nil
}

// UpdateLastChecked records when mail was last checked for the user.
func (s *MailStore) UpdateLastChecked(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mail_settings (user_id, enabled, last_checked) VALUES (?, 0, ?)
		 ON CONFLICT (user_id) DO UPDATE SET last_checked = excluded.last_checked`,
		userID, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("update mail last_checked: %w", err)
	}
	return nil
}

// GetAllEnabled returns every user with notifications on.
func (s *MailStore) GetAllEnabled(ctx context.Context) ([]MailSettings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, last_checked FROM mail_settings WHERE enabled = 1 ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("get enabled mail settings: %w", err)
	}
	defer rows.Close()

	var out []MailSettings
	for rows.Next() {
		m := MailSettings{Enabled: true}
		var lastChecked sql.NullString
		if err := rows.Scan(&m.UserID, &lastChecked); err != nil {
			return nil, fmt.Errorf("scan mail settings: %w", err)
		}
		m.LastChecked = parseNullTime(lastChecked)
		out = append(out, m)
	}
	return out, rows.Err()
}
