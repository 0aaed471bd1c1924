package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Message is one stored conversation turn.
type Message struct {
	ID        int64
	UserID    string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Summary is the rolling digest of turns folded out of the history.
type Summary struct {
	UserID       string
	Text         string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ConversationStore persists conversation turns and summaries.
type ConversationStore struct {
	db *sql.DB
}

// AddMessage appends a turn for the user.
func (s *ConversationStore) AddMessage(ctx context.Context, userID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, role, content, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// GetHistory returns the most recent limit turns in chronological order.
func (s *ConversationStore) GetHistory(ctx context.Context, userID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at FROM (
			SELECT id, user_id, role, content, created_at FROM conversations
			WHERE user_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetAllMessages returns every stored turn for the user, oldest first.
func (s *ConversationStore) GetAllMessages(ctx context.Context, userID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at FROM conversations
		 WHERE user_id = ? ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get all messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Count returns the number of stored turns for the user.
func (s *ConversationStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// DeleteMessages removes exactly the given message IDs for the user and
// reports how many rows were deleted.
func (s *ConversationStore) DeleteMessages(ctx context.Context, userID string, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ClearHistory removes every turn for the user.
func (s *ConversationStore) ClearHistory(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// GetSummary returns the user's rolling summary, or nil if none exists.
func (s *ConversationStore) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	var sum Summary
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, summary, message_count, created_at, updated_at
		 FROM conversation_summaries WHERE user_id = ?`,
		userID,
	).Scan(&sum.UserID, &sum.Text, &sum.MessageCount, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	sum.CreatedAt = parseTime(created)
	sum.UpdatedAt = parseTime(updated)
	return &sum, nil
}

// SaveSummary replaces the summary text and adds folded to the running
// count of messages it covers. The first save creates the row.
func (s *ConversationStore) SaveSummary(ctx context.Context, userID, text string, folded int) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_summaries (user_id, summary, message_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET summary = excluded.summary,
		     message_count = conversation_summaries.message_count + excluded.message_count,
		     updated_at = excluded.updated_at`,
		userID, text, folded, now, now,
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// ClearSummary drops the user's rolling summary.
func (s *ConversationStore) ClearSummary(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_summaries WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear summary: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		var created string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
