package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"strings"
)

// ErrAuth marks an SMTP authentication failure.
var ErrAuth = errors.New("smtp authentication failed")

// mailbox is the read side of one account.
type mailbox interface {
	ListMessages(ctx context.Context, opts ListOptions) ([]Envelope, error)
	Close() error
}

// Manager routes sends and unread checks to named provider accounts.
type Manager struct {
	cfg       Config
	accounts  map[string]AccountConfig
	order     []string
	mailboxes map[string]mailbox
	send      SendFunc
	logger    *slog.Logger
}

// NewManager creates a manager for every configured account. IMAP
// sessions are opened lazily.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:       cfg,
		accounts:  make(map[string]AccountConfig, len(cfg.Accounts)),
		mailboxes: make(map[string]mailbox, len(cfg.Accounts)),
		send:      SendMail,
		logger:    logger,
	}
	for _, acct := range cfg.Accounts {
		m.accounts[acct.Name] = acct
		m.order = append(m.order, acct.Name)
		if acct.IMAPConfigured() {
			m.mailboxes[acct.Name] = NewClient(acct.IMAP, logger.With("email_account", acct.Name))
		}
	}
	return m
}

// DefaultProvider is the account used when a draft names none.
func (m *Manager) DefaultProvider() string {
	return m.cfg.DefaultProvider
}

// Providers returns account names in configuration order.
func (m *Manager) Providers() []string {
	return append([]string(nil), m.order...)
}

// CheckableProviders returns the accounts that have IMAP configured.
func (m *Manager) CheckableProviders() []string {
	var out []string
	for _, name := range m.order {
		if _, ok := m.mailboxes[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Send composes and delivers a message. Failures are reported in the
// result rather than as an error so the caller can show them verbatim.
func (m *Manager) Send(ctx context.Context, provider, to, subject, body string) SendResult {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = m.cfg.DefaultProvider
	}

	acct, ok := m.accounts[provider]
	if !ok {
		return SendResult{Message: fmt.Sprintf("Unsupported provider: %s. Use one of: %s.",
			provider, strings.Join(m.order, ", "))}
	}
	if !acct.SMTPConfigured() {
		return SendResult{Message: fmt.Sprintf("The %s account is not configured for sending. Check the email settings.", provider)}
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return SendResult{Message: fmt.Sprintf("Invalid recipient address: %s", to)}
	}

	var bcc []string
	if m.cfg.BccOwner != "" {
		bcc = []string{m.cfg.BccOwner}
	}

	msg, err := ComposeMessage(ComposeOptions{
		From:    acct.DefaultFrom,
		To:      []string{to},
		Bcc:     bcc,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return SendResult{Message: fmt.Sprintf("Could not build the message: %v", err)}
	}

	m.logger.Info("sending email",
		"provider", provider,
		"to", to,
		"subject_len", len(subject),
	)

	from := extractAddress(acct.DefaultFrom)
	if err := m.send(ctx, acct.SMTP, from, collectRecipients([]string{to}, bcc), msg); err != nil {
		m.logger.Warn("email send failed", "provider", provider, "error", err)
		return SendResult{Message: describeSendError(err, to)}
	}

	m.logger.Info("email sent", "provider", provider, "to", to)
	return SendResult{Success: true, Message: fmt.Sprintf("Email sent to %s.", to)}
}

func describeSendError(err error, to string) string {
	var rcptErr *RecipientError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrAuth):
		return "Authentication failed: check the account username and password."
	case errors.As(err, &rcptErr):
		return fmt.Sprintf("Recipient address was rejected: %s", to)
	case errors.As(err, &netErr):
		return fmt.Sprintf("Network error: %v", err)
	default:
		return fmt.Sprintf("SMTP error: %v", err)
	}
}

// ListUnread returns up to the configured number of unread INBOX
// messages for provider, newest first.
func (m *Manager) ListUnread(ctx context.Context, provider string) ([]Envelope, error) {
	mb, ok := m.mailboxes[provider]
	if !ok {
		return nil, fmt.Errorf("email account %q has no IMAP configuration", provider)
	}
	envs, err := mb.ListMessages(ctx, ListOptions{
		Folder: "INBOX",
		Unseen: true,
		Limit:  m.cfg.UnreadLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list unread %s: %w", provider, err)
	}
	return envs, nil
}

// Close closes every IMAP session.
func (m *Manager) Close() {
	for name, mb := range m.mailboxes {
		if err := mb.Close(); err != nil {
			m.logger.Warn("error closing email client", "account", name, "error", err)
		}
	}
}
