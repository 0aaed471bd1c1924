package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Memo is a free-text note saved by the user.
type Memo struct {
	ID        int64
	UserID    string
	Content   string
	CreatedAt time.Time
}

// MemoStore persists memos.
type MemoStore struct {
	db *sql.DB
}

// Add saves a memo and returns its ID.
func (s *MemoStore) Add(ctx context.Context, userID, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memos (user_id, content, created_at) VALUES (?, ?, ?)`,
		userID, content, formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("add memo: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit memos, newest first.
func (s *MemoStore) List(ctx context.Context, userID string, limit int) ([]Memo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, created_at FROM memos
		 WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list memos: %w", err)
	}
	defer rows.Close()
	return scanMemos(rows)
}

// Search returns up to limit memos containing query, newest first.
func (s *MemoStore) Search(ctx context.Context, userID, query string, limit int) ([]Memo, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, created_at FROM memos
		 WHERE user_id = ? AND content LIKE ? ESCAPE '\'
		 ORDER BY id DESC LIMIT ?`,
		userID, "%"+escaped+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search memos: %w", err)
	}
	defer rows.Close()
	return scanMemos(rows)
}

// Delete removes one of the user's memos. It returns [ErrNotFound] when
// the ID does not belong to the user.
func (s *MemoStore) Delete(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memos WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete memo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMemos(rows *sql.Rows) ([]Memo, error) {
	var memos []Memo
	for rows.Next() {
		var m Memo
		var created string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan memo: %w", err)
		}
		m.CreatedAt = parseTime(created)
		memos = append(memos, m)
	}
	return memos, rows.Err()
}
