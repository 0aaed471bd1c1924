package discord

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/aide/internal/commands"
)

// Gateway is the part of [Client] the bridge drives.
type Gateway interface {
	Messages() <-chan *Message
	SendMessage(ctx context.Context, channelID, text string) error
	TriggerTyping(ctx context.Context, channelID string) error
	Download(ctx context.Context, url string, limit int64) ([]byte, error)
}

// Router answers messages. The real implementation is
// *commands.Router.
type Router interface {
	Handle(ctx context.Context, userID, text string) commands.Reply
	HandleAttachment(ctx context.Context, userID, filename string, data []byte, instruction string) commands.Reply
	AfterReply(ctx context.Context, userID string)
}

// handleTimeout bounds how long a single inbound message may be
// processed (agent loop + response send).
const handleTimeout = 5 * time.Minute

// afterReplyTimeout bounds conversation housekeeping after the reply
// is out. It starts fresh so a slow turn cannot starve compaction.
const afterReplyTimeout = 2 * time.Minute

// rateWindow is the sliding window for per-sender rate limiting.
const rateWindow = time.Minute

// cleanupInterval controls how often stale rate-limit entries are
// evicted.
const cleanupInterval = 10 * time.Minute

// typingRefresh re-sends the typing indicator before Discord's ten
// second expiry.
const typingRefresh = 8 * time.Second

// MaxAttachmentBytes caps attachment downloads.
const MaxAttachmentBytes = 1 << 20

// BridgeConfig holds the dependencies for a Bridge.
type BridgeConfig struct {
	Gateway      Gateway
	Router       Router
	Logger       *slog.Logger
	RateLimit    int      // per sender per minute; 0 = unlimited
	AllowedUsers []string // empty accepts everyone
}

// Bridge receives Discord DMs, routes them through the command router,
// and sends the replies back.
type Bridge struct {
	gateway   Gateway
	router    Router
	logger    *slog.Logger
	rateLimit int
	allowed   map[string]bool

	mu          sync.Mutex
	senderTimes map[string][]time.Time
	lastCleanup time.Time
	now         func() time.Time

	handleTimeout     time.Duration
	afterReplyTimeout time.Duration
}

// NewBridge creates a Discord message bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var allowed map[string]bool
	if len(cfg.AllowedUsers) > 0 {
		allowed = make(map[string]bool, len(cfg.AllowedUsers))
		for _, id := range cfg.AllowedUsers {
			allowed[id] = true
		}
	}
	return &Bridge{
		gateway:     cfg.Gateway,
		router:      cfg.Router,
		logger:      logger,
		rateLimit:   cfg.RateLimit,
		allowed:     allowed,
		senderTimes: make(map[string][]time.Time),
		now:         time.Now,

		handleTimeout:     handleTimeout,
		afterReplyTimeout: afterReplyTimeout,
	}
}

// Start routes inbound messages until ctx is cancelled or the message
// channel closes.
func (b *Bridge) Start(ctx context.Context) {
	b.logger.Info("discord bridge started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("discord bridge shutting down")
			return
		case m, ok := <-b.gateway.Messages():
			if !ok {
				b.logger.Info("discord message channel closed, bridge stopping")
				return
			}

			if m.Content == "" && len(m.Attachments) == 0 {
				b.logger.Debug("discord ignoring empty message", "user_id", m.Author.ID)
				continue
			}
			if b.allowed != nil && !b.allowed[m.Author.ID] {
				b.logger.Warn("discord message from unlisted user ignored",
					"user_id", m.Author.ID,
					"username", m.Author.Username,
				)
				continue
			}
			if !b.allowSender(m.Author.ID) {
				b.logger.Warn("discord message rate-limited", "user_id", m.Author.ID)
				continue
			}

			b.handleMessage(ctx, m)
		}
	}
}

// handleMessage answers one DM and delivers the reply. Conversation
// housekeeping runs only after the reply is sent.
func (b *Bridge) handleMessage(parent context.Context, m *Message) {
	ctx, cancel := context.WithTimeout(parent, b.handleTimeout)
	defer cancel()

	userID := m.Author.ID
	log := b.logger.With("user_id", userID, "channel_id", m.ChannelID)
	log.Info("discord message received",
		"message_len", len(m.Content),
		"attachments", len(m.Attachments),
	)

	stopTyping := b.keepTyping(ctx, m.ChannelID)
	reply := b.route(ctx, log, m)
	stopTyping()

	if reply.Text == "" {
		return
	}
	if err := b.gateway.SendMessage(ctx, m.ChannelID, reply.Text); err != nil {
		log.Error("discord reply send failed", "error", err)
		return
	}
	log.Info("discord reply sent", "response_len", len(reply.Text))

	if reply.Conversational {
		cancel()
		afterCtx, afterCancel := context.WithTimeout(parent, b.afterReplyTimeout)
		defer afterCancel()
		b.router.AfterReply(afterCtx, userID)
	}
}

func (b *Bridge) route(ctx context.Context, log *slog.Logger, m *Message) commands.Reply {
	if len(m.Attachments) == 0 {
		return b.router.Handle(ctx, m.Author.ID, m.Content)
	}

	// Only the first attachment is read.
	a := m.Attachments[0]
	if !commands.IsTextFile(a.Filename) {
		return b.router.HandleAttachment(ctx, m.Author.ID, a.Filename, nil, m.Content)
	}
	if a.Size > MaxAttachmentBytes {
		return commands.Reply{Text: "📎 That file is too large. The limit is 1 MB."}
	}

	data, err := b.gateway.Download(ctx, a.URL, MaxAttachmentBytes)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return commands.Reply{Text: "📎 That file is too large. The limit is 1 MB."}
		}
		log.Warn("attachment download failed", "file", a.Filename, "error", err)
		return commands.Reply{Text: "📎 I couldn't download that file. Please try again."}
	}
	return b.router.HandleAttachment(ctx, m.Author.ID, a.Filename, data, m.Content)
}

// keepTyping shows the typing indicator until the returned func is
// called.
func (b *Bridge) keepTyping(ctx context.Context, channelID string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(typingRefresh)
		defer ticker.Stop()
		for {
			if err := b.gateway.TriggerTyping(ctx, channelID); err != nil && ctx.Err() == nil {
				b.logger.Debug("discord typing indicator failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// allowSender checks whether the sender is within the per-minute rate
// limit. Returns true if the message should be processed.
func (b *Bridge) allowSender(senderID string) bool {
	if b.rateLimit <= 0 {
		return true
	}

	now := b.now()
	cutoff := now.Add(-rateWindow)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeCleanupLocked(now)

	timestamps := b.senderTimes[senderID]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= b.rateLimit {
		b.senderTimes[senderID] = valid
		return false
	}

	b.senderTimes[senderID] = append(valid, now)
	return true
}

// maybeCleanupLocked evicts stale sender entries. Must be called with
// b.mu held.
func (b *Bridge) maybeCleanupLocked(now time.Time) {
	if now.Sub(b.lastCleanup) < cleanupInterval {
		return
	}
	b.lastCleanup = now

	cutoff := now.Add(-2 * rateWindow)
	for sender, timestamps := range b.senderTimes {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1].Before(cutoff) {
			delete(b.senderTimes, sender)
		}
	}
}
