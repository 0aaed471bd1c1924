// Package email sends mail over SMTP and checks for unread mail over
// IMAP for each configured provider account ("gmail", "naver", ...).
package email

import (
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
)

// drainLiteral discards an IMAP literal so the stream does not block.
func drainLiteral(r imap.LiteralReader) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, r)
}

// Envelope is the summary metadata for one message.
type Envelope struct {
	// UID is the IMAP unique identifier within the folder.
	UID uint32

	Date    time.Time
	From    string // "Name <addr>" or just the address
	To      []string
	Subject string
	Flags   []string
	Size    uint32
}

// ListOptions controls IMAP listing.
type ListOptions struct {
	// Folder is the mailbox to list from. Default: "INBOX".
	Folder string

	// Limit caps the number of messages returned, newest kept.
	// Default: 20. Ignored when SinceUID is set.
	Limit int

	// Unseen restricts the listing to messages without \Seen.
	Unseen bool

	// SinceUID restricts the listing to UIDs strictly greater than it.
	SinceUID uint32
}

// SendResult reports the outcome of a send in user-presentable form.
type SendResult struct {
	Success bool
	Message string
}
