package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/nugget/aide/internal/contacts"
	"github.com/nugget/aide/internal/email"
)

// MailSender delivers a confirmed draft.
type MailSender interface {
	Send(ctx context.Context, provider, to, subject, body string) email.SendResult
	DefaultProvider() string
	Providers() []string
}

// Draft is an email waiting for the user's confirmation.
type Draft struct {
	Provider string
	To       string
	Subject  string
	Body     string
}

var (
	emailSendRe    = regexp.MustCompile(`\[EMAIL_SEND:([^\]]+)\]`)
	emailConfirmRe = regexp.MustCompile(`\[EMAIL_CONFIRM\]`)
	emailCancelRe  = regexp.MustCompile(`\[EMAIL_CANCEL\]`)
)

// EmailTool sends mail in two steps: EMAIL_SEND stores a draft and shows
// a preview, EMAIL_CONFIRM sends it. Drafts live only in memory, one per
// user, and are lost on restart.
type EmailTool struct {
	sender   MailSender
	resolver contacts.Resolver
	logger   *slog.Logger

	mu     sync.Mutex
	drafts map[string]Draft
}

// NewEmailTool creates the email tool. resolver may be nil, in which
// case recipients must be full addresses.
func NewEmailTool(sender MailSender, resolver contacts.Resolver, logger *slog.Logger) *EmailTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailTool{
		sender:   sender,
		resolver: resolver,
		logger:   logger,
		drafts:   make(map[string]Draft),
	}
}

func (t *EmailTool) Name() string { return "email" }

func (t *EmailTool) Description() string {
	return "- Email: When the user wants to send an email, you MUST output the [EMAIL_SEND:provider|to|subject|body] tag. " +
		"You CANNOT send emails directly.\n" +
		"  Example: [EMAIL_SEND:gmail|friend@example.com|Meeting request|Hello, please join tomorrow's meeting.]\n" +
		"  provider: the mail account to send from (leave empty for the default)\n" +
		"  to: an email address, or a contact's name\n" +
		"  - After the draft preview, user confirms → [EMAIL_CONFIRM], user cancels → [EMAIL_CANCEL]"
}

func (t *EmailTool) UsageRules() string {
	return "- CRITICAL: You cannot send emails by yourself. When the user asks to send an email, output the [EMAIL_SEND:...] tag. " +
		"NEVER pretend you sent an email without using the tag. " +
		"After the draft is shown, output [EMAIL_CONFIRM] only when the user explicitly says to send it."
}

func (t *EmailTool) TryExecute(ctx context.Context, reply string, tc *Context) *Result {
	if m := emailSendRe.FindStringSubmatch(reply); m != nil {
		return t.draft(ctx, tc.UserID, m[1])
	}
	if emailConfirmRe.MatchString(reply) {
		return t.confirm(ctx, tc.UserID)
	}
	if emailCancelRe.MatchString(reply) {
		return t.cancel(tc.UserID)
	}
	return nil
}

func (t *EmailTool) draft(ctx context.Context, userID, raw string) *Result {
	parts := strings.SplitN(raw, "|", 4)
	if len(parts) < 4 {
		return Stop("Email format error: write it as [EMAIL_SEND:provider|to|subject|body].")
	}
	d := Draft{
		Provider: strings.ToLower(strings.TrimSpace(parts[0])),
		To:       strings.TrimSpace(parts[1]),
		Subject:  strings.TrimSpace(parts[2]),
		Body:     strings.TrimSpace(parts[3]),
	}
	if d.Provider == "" {
		d.Provider = t.sender.DefaultProvider()
	}
	if providers := t.sender.Providers(); !slices.Contains(providers, d.Provider) {
		return Stop(fmt.Sprintf("Unsupported provider: %s. Use one of: %s.", d.Provider, strings.Join(providers, ", ")))
	}

	if !strings.Contains(d.To, "@") && t.resolver != nil {
		addr, err := t.resolver.ResolveEmail(ctx, d.To)
		if err != nil {
			t.logger.Info("recipient not resolved", "user_id", userID, "name", d.To, "error", err)
			if errors.Is(err, contacts.ErrAmbiguous) {
				return Stop(fmt.Sprintf("Several contacts match '%s'. Please give the full email address.", d.To))
			}
			return Stop(fmt.Sprintf("Could not find an email address for '%s'. Please give the full address.", d.To))
		}
		d.To = addr
	}

	t.mu.Lock()
	t.drafts[userID] = d
	t.mu.Unlock()

	t.logger.Info("email draft created", "user_id", userID, "provider", d.Provider, "to", d.To)
	return Stop(FormatDraft(d))
}

func (t *EmailTool) confirm(ctx context.Context, userID string) *Result {
	t.mu.Lock()
	d, ok := t.drafts[userID]
	delete(t.drafts, userID)
	t.mu.Unlock()

	if !ok {
		return Text("No email draft to send. Write the email first.")
	}

	t.logger.Info("sending email", "user_id", userID, "provider", d.Provider)
	res := t.sender.Send(ctx, d.Provider, d.To, d.Subject, d.Body)
	if !res.Success {
		return Text("❌ Email send failed: " + res.Message)
	}
	return Text(fmt.Sprintf("✅ Email sent.\n- To: %s\n- Subject: %s", d.To, d.Subject))
}

func (t *EmailTool) cancel(userID string) *Result {
	t.mu.Lock()
	_, ok := t.drafts[userID]
	delete(t.drafts, userID)
	t.mu.Unlock()

	if !ok {
		return Text("No email draft to cancel.")
	}
	t.logger.Info("email draft cancelled", "user_id", userID)
	return Text("Email sending was cancelled.")
}

// Pending returns the user's draft, if any.
func (t *EmailTool) Pending(userID string) (Draft, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.drafts[userID]
	return d, ok
}

// FormatDraft renders the confirmation preview.
func FormatDraft(d Draft) string {
	return fmt.Sprintf("📧 **Email draft**\n- From: %s\n- To: %s\n- Subject: %s\n- Body:\n%s\n\nSend it? (yes / no)",
		d.Provider, d.To, d.Subject, d.Body)
}
