// Package memory keeps per-user conversation history bounded by folding
// older turns into a rolling summary.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/aide/internal/llm"
	"github.com/nugget/aide/internal/prompts"
	"github.com/nugget/aide/internal/store"
)

// CompactionConfig controls compaction behavior.
type CompactionConfig struct {
	Threshold  int // compact when the stored count exceeds this
	KeepRecent int // newest turns that are never folded
}

// DefaultCompactionConfig returns a threshold of 20 and keeps the 10
// most recent turns.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		Threshold:  20,
		KeepRecent: 10,
	}
}

// ConversationStore is the subset of the conversation store the
// compactor needs.
type ConversationStore interface {
	Count(ctx context.Context, userID string) (int, error)
	GetAllMessages(ctx context.Context, userID string) ([]store.Message, error)
	GetSummary(ctx context.Context, userID string) (*store.Summary, error)
	SaveSummary(ctx context.Context, userID, text string, folded int) error
	DeleteMessages(ctx context.Context, userID string, ids []int64) (int, error)
}

// Summarizer merges a transcript into an existing summary.
type Summarizer interface {
	Summarize(ctx context.Context, existing string, messages []store.Message) (string, error)
}

// Compactor folds old turns into the user's rolling summary.
type Compactor struct {
	store      ConversationStore
	config     CompactionConfig
	summarizer Summarizer
	logger     *slog.Logger
}

// NewCompactor creates a new compactor. Non-positive config fields take
// their defaults.
func NewCompactor(store ConversationStore, config CompactionConfig, summarizer Summarizer, logger *slog.Logger) *Compactor {
	defaults := DefaultCompactionConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.KeepRecent <= 0 {
		config.KeepRecent = defaults.KeepRecent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		store:      store,
		config:     config,
		summarizer: summarizer,
		logger:     logger,
	}
}

// Compact folds everything but the newest KeepRecent turns into the
// summary once the count passes Threshold. It reports how many turns
// were folded.
//
// The summary is saved before any message is deleted, and only the IDs
// that were summarized are deleted. A summarizer or save failure leaves
// the history untouched.
func (c *Compactor) Compact(ctx context.Context, userID string) (int, error) {
	count, err := c.store.Count(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if count <= c.config.Threshold {
		return 0, nil
	}

	all, err := c.store.GetAllMessages(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load messages: %w", err)
	}
	if len(all) <= c.config.KeepRecent {
		return 0, nil
	}
	candidates := all[:len(all)-c.config.KeepRecent]

	var existing string
	prior, err := c.store.GetSummary(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load summary: %w", err)
	}
	if prior != nil {
		existing = prior.Text
	}

	c.logger.Debug("compacting conversation",
		"user_id", userID,
		"count", count,
		"folding", len(candidates),
		"keep_recent", c.config.KeepRecent,
	)

	summary, err := c.summarizer.Summarize(ctx, existing, candidates)
	if err != nil {
		return 0, fmt.Errorf("summarize: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return 0, fmt.Errorf("summarize: empty summary")
	}

	if err := c.store.SaveSummary(ctx, userID, summary, len(candidates)); err != nil {
		return 0, fmt.Errorf("save summary: %w", err)
	}

	ids := make([]int64, len(candidates))
	for i, m := range candidates {
		ids[i] = m.ID
	}
	deleted, err := c.store.DeleteMessages(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete folded messages: %w", err)
	}

	c.logger.Info("conversation compacted",
		"user_id", userID,
		"folded", len(candidates),
		"deleted", deleted,
	)
	return len(candidates), nil
}

// Transcript renders messages as "[ROLE]: content" lines.
func Transcript(messages []store.Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = fmt.Sprintf("[%s]: %s", strings.ToUpper(m.Role), m.Content)
	}
	return strings.Join(lines, "\n")
}

// LLMSummarizer uses a chat model to merge transcripts into summaries.
type LLMSummarizer struct {
	client llm.Client
	model  string
}

// NewLLMSummarizer creates a summarizer that uses model on client.
func NewLLMSummarizer(client llm.Client, model string) *LLMSummarizer {
	return &LLMSummarizer{client: client, model: model}
}

// Summarize sends the compaction prompt as a single user turn with no
// system prompt, so the persona does not color the summary.
func (s *LLMSummarizer) Summarize(ctx context.Context, existing string, messages []store.Message) (string, error) {
	prompt := prompts.CompactionPrompt(existing, Transcript(messages))
	resp, err := s.client.Chat(ctx, s.model, []llm.Message{llm.User(prompt)})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
