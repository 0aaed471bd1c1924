// Package scheduler runs aide's background jobs: due reminders, the
// daily briefing, and the unread-mail digest. Each job is an independent
// ticking loop that waits for the chat connection before its first tick
// and isolates failures per item.
package scheduler

import (
	"time"
)

// Kind identifies which job produced a delivery.
type Kind string

const (
	KindReminder Kind = "reminder" // Due reminder
	KindBriefing Kind = "briefing" // Daily briefing
	KindMail     Kind = "mail"     // Unread mail digest
)

// Status is the outcome of one delivery attempt.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Delivery records one attempt to push a message to a user.
type Delivery struct {
	ID        string    `json:"id"` // UUIDv7
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"user_id"`
	Ref       string    `json:"ref,omitempty"` // Reminder ID, briefing date, etc.
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"` // Error text on failure
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes scheduler activity for status reporting.
type Stats struct {
	Running   bool
	Delivered map[Kind]int // since local midnight
	Failed    map[Kind]int
	LastTick  map[Kind]time.Time
}
