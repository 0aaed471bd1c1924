// Package agent runs the bounded tool-dispatch loop for one user
// message.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nugget/aide/internal/fetch"
	"github.com/nugget/aide/internal/llm"
	"github.com/nugget/aide/internal/prompts"
	"github.com/nugget/aide/internal/store"
	"github.com/nugget/aide/internal/tools"
)

// DefaultMaxRounds bounds LLM calls per user message.
const DefaultMaxRounds = 3

// PageFetcher retrieves readable page content for link context.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Compactor folds old history into the rolling summary.
type Compactor interface {
	Compact(ctx context.Context, userID string) (int, error)
}

// UsageObserver is told the token counts of every LLM call.
type UsageObserver interface {
	OnTokens(inputTokens, outputTokens int)
}

// Config tunes the loop. Zero fields take defaults.
type Config struct {
	Model          string
	MaxRounds      int
	MaxHistory     int
	MaxURLs        int
	URLTokenBudget int
}

func (c *Config) applyDefaults() {
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 20
	}
	if c.MaxURLs <= 0 {
		c.MaxURLs = 3
	}
	if c.URLTokenBudget <= 0 {
		c.URLTokenBudget = 1000
	}
}

// Loop is the core agent execution loop.
type Loop struct {
	llm       llm.Client
	store     *store.Store
	registry  *tools.Registry
	compactor Compactor
	fetcher   PageFetcher
	tokenizer *Tokenizer
	usage     UsageObserver
	config    Config
	logger    *slog.Logger
}

// NewLoop creates a loop. compactor and fetcher may be nil to disable
// compaction and link context.
func NewLoop(client llm.Client, st *store.Store, registry *tools.Registry, config Config, logger *slog.Logger) *Loop {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		llm:      client,
		store:    st,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// SetCompactor enables post-reply compaction.
func (l *Loop) SetCompactor(c Compactor) {
	l.compactor = c
}

// SetUsageObserver reports token usage of each chat call to o.
func (l *Loop) SetUsageObserver(o UsageObserver) {
	l.usage = o
}

// SetFetcher enables inlining of linked pages. tok may be nil, in which
// case a character budget applies.
func (l *Loop) SetFetcher(f PageFetcher, tok *Tokenizer) {
	l.fetcher = f
	if tok == nil {
		tok = &Tokenizer{}
	}
	l.tokenizer = tok
}

// Model returns the configured chat model.
func (l *Loop) Model() string {
	return l.config.Model
}

// Handle answers one user message. It runs at most MaxRounds LLM calls,
// executing the first matching tool after each. A stop result becomes
// the reply at once; other results are fed back for another round.
// When rounds run out the last raw model text is the reply.
//
// The original text and the reply are persisted after the loop. The
// caller delivers the reply and then calls [Loop.AfterReply].
func (l *Loop) Handle(ctx context.Context, userID, text string) (string, error) {
	log := l.logger.With("request_id", generateRequestID(), "user_id", userID)
	return l.handle(ctx, log, userID, text, l.withLinkContext(ctx, log, text))
}

// HandlePrompt is [Loop.Handle] for callers that build the model input
// themselves. prompt is sent as the user turn; stored is what history
// keeps in its place.
func (l *Loop) HandlePrompt(ctx context.Context, userID, stored, prompt string) (string, error) {
	log := l.logger.With("request_id", generateRequestID(), "user_id", userID)
	return l.handle(ctx, log, userID, stored, prompt)
}

func (l *Loop) handle(ctx context.Context, log *slog.Logger, userID, text, input string) (string, error) {
	persona, err := l.store.Personas.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load persona: %w", err)
	}
	var summary string
	if s, err := l.store.Conversation.GetSummary(ctx, userID); err != nil {
		log.Warn("summary unavailable", "error", err)
	} else if s != nil {
		summary = s.Text
	}
	stored, err := l.store.Conversation.GetHistory(ctx, userID, l.config.MaxHistory)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	history := make([]llm.Message, 0, len(stored)+1+2*l.config.MaxRounds)
	for _, m := range stored {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	history = append(history, llm.User(input))

	tc := &tools.Context{
		UserID:  userID,
		Store:   l.store,
		Persona: tools.SnapshotOf(persona),
	}
	instructions := l.registry.BuildInstructions()

	var reply string
	for round := 1; round <= l.config.MaxRounds; round++ {
		system := l.systemPrompt(tc.Persona, summary, instructions)
		msgs := append([]llm.Message{llm.System(system)}, history...)

		log.Debug("calling llm", "round", round, "messages", len(msgs))
		resp, err := l.chat(ctx, msgs)
		if err != nil {
			return "", fmt.Errorf("llm round %d: %w", round, err)
		}
		raw := resp.Message.Content
		reply = raw

		res, tool := l.registry.TryExecute(ctx, raw, tc)
		if res == nil {
			log.Debug("no tool in reply", "round", round)
			break
		}
		if res.Stop {
			log.Debug("tool stopped loop", "round", round, "tool", tool)
			reply = res.Text
			break
		}

		history = append(history, llm.Assistant(raw), llm.User(prompts.ToolFollowUp(res.Text)))
		if round == l.config.MaxRounds {
			log.Info("tool rounds exhausted", "rounds", round, "tool", tool)
		}
	}

	if err := l.store.Conversation.AddMessage(ctx, userID, llm.RoleUser, text); err != nil {
		log.Warn("persist user turn failed", "error", err)
	}
	if err := l.store.Conversation.AddMessage(ctx, userID, llm.RoleAssistant, reply); err != nil {
		log.Warn("persist reply failed", "error", err)
	}
	return reply, nil
}

// AfterReply runs post-delivery housekeeping. Failures are logged.
func (l *Loop) AfterReply(ctx context.Context, userID string) {
	if l.compactor == nil {
		return
	}
	if _, err := l.compactor.Compact(ctx, userID); err != nil {
		l.logger.Warn("compaction failed", "user_id", userID, "error", err)
	}
}

// Complete sends a single prompt with no history or persona.
func (l *Loop) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := l.chat(ctx, []llm.Message{llm.User(prompt)})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (l *Loop) chat(ctx context.Context, msgs []llm.Message) (*llm.ChatResponse, error) {
	resp, err := l.llm.Chat(ctx, l.config.Model, msgs)
	if err != nil {
		return nil, err
	}
	if l.usage != nil {
		l.usage.OnTokens(resp.InputTokens, resp.OutputTokens)
	}
	return resp, nil
}

// Ping checks the LLM backend.
func (l *Loop) Ping(ctx context.Context) error {
	return l.llm.Ping(ctx)
}

func (l *Loop) systemPrompt(p *tools.PersonaSnapshot, summary, instructions string) string {
	params := prompts.SystemParams{
		Model:        l.config.Model,
		Summary:      summary,
		Instructions: instructions,
	}
	if p != nil {
		params.Name, params.Role, params.Tone = p.Name, p.Role, p.Tone
	}
	return prompts.SystemPrompt(params)
}

// withLinkContext appends the readable content of up to MaxURLs links
// in text. Pages that fail to load are skipped.
func (l *Loop) withLinkContext(ctx context.Context, log *slog.Logger, text string) string {
	if l.fetcher == nil {
		return text
	}
	urls := fetch.ExtractURLs(text, l.config.MaxURLs)
	if len(urls) == 0 {
		return text
	}

	var sections []string
	for _, u := range urls {
		page, err := l.fetcher.Fetch(ctx, u)
		if err != nil {
			log.Debug("link fetch failed", "url", u, "error", err)
			continue
		}
		content := strings.TrimSpace(page.Content)
		if content == "" {
			continue
		}
		if cut, truncated := l.tokenizer.Truncate(content, l.config.URLTokenBudget); truncated {
			content = cut + "...(truncated)"
		}
		sections = append(sections, fmt.Sprintf("[Content from %s]\n%s", u, content))
	}
	if len(sections) == 0 {
		return text
	}
	log.Debug("inlined link context", "pages", len(sections))
	return text + "\n\n---\n" + strings.Join(sections, "\n\n")
}

// generateRequestID returns a short correlation ID for log lines.
func generateRequestID() string {
	return "r_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
