package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/aide/internal/opstate"
)

const pollNamespace = "email_poll"

// unreadLister is the slice of [Manager] the poller needs.
type unreadLister interface {
	CheckableProviders() []string
	ListUnread(ctx context.Context, provider string) ([]Envelope, error)
}

// ProviderMail groups messages found on one provider.
type ProviderMail struct {
	Provider string
	Messages []Envelope
}

// Poller reports unread mail that a user has not been told about yet.
// A per-user, per-provider UID high-water mark lives in opstate so a
// message that stays unread is not repeated in every digest.
type Poller struct {
	lister unreadLister
	state  *opstate.Store
	logger *slog.Logger
}

// NewPoller creates a poller over the manager's accounts.
func NewPoller(lister unreadLister, state *opstate.Store, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{lister: lister, state: state, logger: logger}
}

// CheckAll lists unread mail on every provider without touching the
// high-water marks. Used by the on-demand /mail check.
func (p *Poller) CheckAll(ctx context.Context) []ProviderMail {
	var out []ProviderMail
	for _, provider := range p.lister.CheckableProviders() {
		envs, err := p.lister.ListUnread(ctx, provider)
		if err != nil {
			p.logger.Warn("unread check failed", "provider", provider, "error", err)
			continue
		}
		if len(envs) > 0 {
			out = append(out, ProviderMail{Provider: provider, Messages: envs})
		}
	}
	return out
}

// CheckNew lists unread mail newer than the user's stored mark on each
// provider and advances the mark. A failing provider is logged and
// skipped.
func (p *Poller) CheckNew(ctx context.Context, userID string) []ProviderMail {
	var out []ProviderMail
	for _, provider := range p.lister.CheckableProviders() {
		fresh, err := p.checkProvider(ctx, userID, provider)
		if err != nil {
			p.logger.Warn("email poll failed",
				"user_id", userID,
				"provider", provider,
				"error", err,
			)
			continue
		}
		if len(fresh) > 0 {
			out = append(out, ProviderMail{Provider: provider, Messages: fresh})
		}
	}
	return out
}

func (p *Poller) checkProvider(ctx context.Context, userID, provider string) ([]Envelope, error) {
	envs, err := p.lister.ListUnread(ctx, provider)
	if err != nil {
		return nil, err
	}

	key := userID + ":" + provider
	mark, _, err := p.state.GetUint(pollNamespace, key)
	if err != nil {
		return nil, fmt.Errorf("get high-water mark %q: %w", key, err)
	}

	var fresh []Envelope
	highest := mark
	for _, env := range envs {
		if uint64(env.UID) > mark {
			fresh = append(fresh, env)
		}
		if uint64(env.UID) > highest {
			highest = uint64(env.UID)
		}
	}

	if highest != mark {
		if err := p.state.SetUint(pollNamespace, key, highest); err != nil {
			return nil, fmt.Errorf("update high-water mark %q: %w", key, err)
		}
	}
	return fresh, nil
}

// FormatDigest renders found mail under heading, one numbered section
// per provider.
func FormatDigest(heading string, found []ProviderMail) string {
	sections := make([]string, 0, len(found))
	for _, pm := range found {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%s]", providerLabel(pm.Provider))
		for i, env := range pm.Messages {
			fmt.Fprintf(&sb, "\n%d. %s - %s (%s)", i+1, env.From, env.Subject, env.Date.Local().Format("2006-01-02 15:04"))
		}
		sections = append(sections, sb.String())
	}
	return heading + "\n\n" + strings.Join(sections, "\n\n")
}

// providerLabel capitalizes a provider name for display: "gmail" → "Gmail".
func providerLabel(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
