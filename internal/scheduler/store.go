package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Log persists delivery attempts. It shares the main database handle.
type Log struct {
	db *sql.DB
}

// NewLog creates the deliveries table if needed.
func NewLog(db *sql.DB) (*Log, error) {
	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *Log) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		user_id TEXT NOT NULL,
		ref TEXT,
		status TEXT NOT NULL,
		detail TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at);
	CREATE INDEX IF NOT EXISTS idx_deliveries_user ON deliveries(user_id);
	`

	_, err := l.db.Exec(schema)
	return err
}

// NewID generates a new UUIDv7.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		return uuid.New().String()
	}
	return id.String()
}

// Record stores a delivery, filling in ID and CreatedAt when empty.
func (l *Log) Record(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = NewID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, kind, user_id, ref, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, string(d.Kind), d.UserID, d.Ref, string(d.Status), d.Detail,
		d.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// Recent returns the newest deliveries for a user, newest first.
func (l *Log) Recent(ctx context.Context, userID string, limit int) ([]*Delivery, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, kind, user_id, ref, status, detail, created_at
		FROM deliveries WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		var (
			d            Delivery
			kind, status string
			ref, detail  sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&d.ID, &kind, &d.UserID, &ref, &status, &detail, &createdAt); err != nil {
			return nil, err
		}
		d.Kind, d.Status = Kind(kind), Status(status)
		d.Ref, d.Detail = ref.String, detail.String
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// CountSince tallies deliveries by kind and status from since onward.
func (l *Log) CountSince(ctx context.Context, since time.Time) (delivered, failed map[Kind]int, err error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT kind, status, COUNT(*) FROM deliveries
		WHERE created_at >= ?
		GROUP BY kind, status
	`, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	delivered = make(map[Kind]int)
	failed = make(map[Kind]int)
	for rows.Next() {
		var kind, status string
		var n int
		if err := rows.Scan(&kind, &status, &n); err != nil {
			return nil, nil, err
		}
		if Status(status) == StatusDelivered {
			delivered[Kind(kind)] = n
		} else {
			failed[Kind(kind)] = n
		}
	}
	return delivered, failed, rows.Err()
}

// Prune deletes deliveries older than cutoff.
func (l *Log) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM deliveries WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
