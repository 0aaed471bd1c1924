// Package commands answers the slash commands users type in a DM, runs
// persona onboarding for new users, and hands everything else to the
// agent loop.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/nugget/aide/internal/email"
	"github.com/nugget/aide/internal/store"
	"github.com/nugget/aide/internal/tools"
)

// Agent is the conversational side of the assistant.
type Agent interface {
	Handle(ctx context.Context, userID, text string) (string, error)
	HandlePrompt(ctx context.Context, userID, stored, prompt string) (string, error)
	AfterReply(ctx context.Context, userID string)
	Complete(ctx context.Context, prompt string) (string, error)
	Ping(ctx context.Context) error
}

// Briefer renders a briefing on demand.
type Briefer interface {
	Generate(ctx context.Context, userID, city string) string
}

// MailChecker lists unread mail across providers.
type MailChecker interface {
	CheckAll(ctx context.Context) []email.ProviderMail
}

// Reply is the router's answer to one message.
type Reply struct {
	Text string

	// Conversational is set when the agent loop produced the reply. The
	// caller then owes [Router.AfterReply] once Text is delivered.
	Conversational bool
}

// Deps are the router's collaborators. Weather, Rates, Search, Briefing
// and Mail may be nil; the matching commands then say so.
type Deps struct {
	Store    *store.Store
	Agent    Agent
	Weather  tools.WeatherSource
	Rates    tools.RateSource
	Search   tools.Searcher
	Briefing Briefer
	Mail     MailChecker
}

// Router dispatches DMs.
type Router struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
	pick   func(n int) int

	mu         sync.Mutex
	onboarding map[string]*onboarding
}

// New creates a router.
func New(deps Deps, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		deps:       deps,
		logger:     logger,
		now:        time.Now,
		pick:       rand.IntN,
		onboarding: make(map[string]*onboarding),
	}
}

// parseSlash splits "/cmd rest" into a lowercased command and the
// trimmed remainder.
func parseSlash(input string) (cmd, args string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	rest := strings.TrimSpace(trimmed[1:])
	cmd, args, _ = strings.Cut(rest, " ")
	return strings.ToLower(cmd), strings.TrimSpace(args), true
}

// Handle answers one message. Slash commands run directly, a user in
// onboarding gets the next question, and anything else goes to the
// agent loop.
func (r *Router) Handle(ctx context.Context, userID, text string) Reply {
	if cmd, args, ok := parseSlash(text); ok {
		r.logger.Debug("slash command", "user_id", userID, "command", cmd)
		return r.command(ctx, userID, cmd, args)
	}

	if reply, ok := r.continueOnboarding(ctx, userID, text); ok {
		return Reply{Text: reply}
	}
	if reply, ok := r.maybeStartOnboarding(ctx, userID); ok {
		return Reply{Text: reply}
	}

	return r.chat(ctx, userID, func() (string, error) {
		return r.deps.Agent.Handle(ctx, userID, text)
	})
}

// AfterReply forwards post-delivery housekeeping to the agent.
func (r *Router) AfterReply(ctx context.Context, userID string) {
	r.deps.Agent.AfterReply(ctx, userID)
}

func (r *Router) chat(ctx context.Context, userID string, run func() (string, error)) Reply {
	reply, err := run()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("agent request timed out", "user_id", userID, "error", err)
			return Reply{Text: "⏱️ That took too long. Please try again."}
		}
		r.logger.Error("agent request failed", "user_id", userID, "error", err)
		return Reply{Text: "⚠️ Something went wrong while thinking. Please try again."}
	}
	return Reply{Text: reply, Conversational: true}
}

func (r *Router) command(ctx context.Context, userID, cmd, args string) Reply {
	switch cmd {
	case "help", "start":
		return Reply{Text: helpText}
	case "ping":
		return Reply{Text: r.ping(ctx)}
	case "clear":
		return Reply{Text: r.clear(ctx, userID)}
	case "newme":
		return Reply{Text: r.newMe(ctx, userID)}
	case "persona":
		return Reply{Text: r.persona(ctx, userID)}
	case "s", "search":
		return r.search(ctx, userID, args)
	case "m", "memo":
		return Reply{Text: r.memo(ctx, userID, args)}
	case "r", "remind":
		return Reply{Text: r.reminder(ctx, userID, args)}
	case "ex":
		return Reply{Text: r.exchange(ctx, args)}
	case "w", "weather":
		return Reply{Text: r.weather(ctx, userID, args)}
	case "briefing":
		return Reply{Text: r.briefing(ctx, userID, args)}
	case "mail":
		return Reply{Text: r.mail(ctx, userID, args)}
	case "pick":
		return Reply{Text: r.pickOne(args)}
	case "t", "translate":
		return Reply{Text: r.translate(ctx, args)}
	case "":
		return Reply{Text: helpText}
	default:
		return Reply{Text: fmt.Sprintf("Unknown command /%s. Type /help for the list.", cmd)}
	}
}

const helpText = `**Commands**

**General**
/help - this list
/ping - check the language model
/clear - forget our conversation
/newme - reset me and set up a new persona
/persona - show my current persona

**Search & memos**
/s <query> - search the web and answer
/m <text> - save a memo
/m list | /m del <n> | /m find <keyword>

**Reminders**
/r <time> <content> - e.g. /r 30m stretch, /r 14:00 lunch
/r daily <HH:MM> <content>
/r weekday <HH:MM> <content>
/r weekly <day> <HH:MM> <content>
/r list | /r del <id>

**Lookups**
/w [city] - current weather
/ex [amount] <FROM> <TO> - exchange rate, e.g. /ex 100 USD KRW
/t <language> <text> - translate

**Briefing & mail**
/briefing [show|now|on|off|time HH:MM|city <name>]
/mail [check|on|off]

**Fun**
/pick <a> <b> ... - pick one at random

Anything else is a normal conversation. You can also attach a text or code file.`

func (r *Router) ping(ctx context.Context) string {
	if err := r.deps.Agent.Ping(ctx); err != nil {
		r.logger.Warn("ping failed", "error", err)
		return "⚠️ The language model is not reachable: " + err.Error()
	}
	return "🏓 Pong! The language model is reachable."
}

func (r *Router) clear(ctx context.Context, userID string) string {
	if err := r.clearConversation(ctx, userID); err != nil {
		r.logger.Error("clear conversation failed", "user_id", userID, "error", err)
		return "Failed to clear the conversation: " + err.Error()
	}
	return "🧹 Conversation history cleared."
}

func (r *Router) clearConversation(ctx context.Context, userID string) error {
	if err := r.deps.Store.Conversation.ClearHistory(ctx, userID); err != nil {
		return err
	}
	return r.deps.Store.Conversation.ClearSummary(ctx, userID)
}

func (r *Router) newMe(ctx context.Context, userID string) string {
	if err := r.clearConversation(ctx, userID); err != nil {
		r.logger.Error("clear conversation failed", "user_id", userID, "error", err)
		return "Failed to reset: " + err.Error()
	}
	if err := r.deps.Store.Personas.Delete(ctx, userID); err != nil {
		r.logger.Error("delete persona failed", "user_id", userID, "error", err)
		return "Failed to reset: " + err.Error()
	}
	return "🔄 Starting fresh.\n\n" + r.startOnboarding(userID)
}

func (r *Router) persona(ctx context.Context, userID string) string {
	p, err := r.deps.Store.Personas.Get(ctx, userID)
	if err != nil {
		return "Failed to load the persona: " + err.Error()
	}
	cur := tools.DefaultPersona
	note := "\n\n(defaults; no persona set yet)"
	if s := tools.SnapshotOf(p); s != nil {
		cur, note = *s, ""
	}
	return fmt.Sprintf("🎭 **Persona**\n- Name: %s\n- Role: %s\n- Tone: %s%s", cur.Name, cur.Role, cur.Tone, note)
}

func (r *Router) pickOne(args string) string {
	var items []string
	if strings.Contains(args, ",") {
		for _, it := range strings.Split(args, ",") {
			if it = strings.TrimSpace(it); it != "" {
				items = append(items, it)
			}
		}
	} else {
		items = strings.Fields(args)
	}
	if len(items) < 2 {
		return "Give me at least two options. Example: /pick pizza burger sushi"
	}
	return fmt.Sprintf("🎲 **%s**", items[r.pick(len(items))])
}
