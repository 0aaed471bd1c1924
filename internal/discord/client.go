// Package discord connects aide to Discord direct messages: a gateway
// websocket for inbound DMs, the REST API for replies, and a bridge that
// routes each DM through the command router.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/aide/internal/connwatch"
	"github.com/nugget/aide/internal/httpkit"
	"github.com/nugget/aide/internal/opstate"
)

const (
	DefaultAPIBase    = "https://discord.com/api/v10"
	DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

	// MaxMessageLength is Discord's per-message character limit.
	MaxMessageLength = 2000

	// dmNamespace holds user ID → DM channel ID in opstate.
	dmNamespace = "discord_dm"

	// closeAuthenticationFailed is the gateway close code for a bad token.
	closeAuthenticationFailed = 4004
)

var (
	// ErrAuthFailed means the gateway rejected the bot token. Run stops
	// retrying when it sees it.
	ErrAuthFailed = errors.New("discord authentication failed")

	// ErrTooLarge is returned by Download for files over the limit.
	ErrTooLarge = errors.New("attachment too large")

	errReconnect      = errors.New("gateway requested reconnect")
	errInvalidSession = errors.New("gateway invalidated the session")
)

// ClientConfig holds the settings for a Client.
type ClientConfig struct {
	Token      string
	APIBase    string
	GatewayURL string
	HTTPClient *http.Client

	// State persists the DM channel of each user across restarts. Nil
	// keeps the cache in memory only.
	State  *opstate.Store
	Logger *slog.Logger
}

// Client is a Discord bot connection.
type Client struct {
	token      string
	apiBase    string
	gatewayURL string
	http       *http.Client
	state      *opstate.Store
	logger     *slog.Logger

	gate     *connwatch.Gate
	messages chan *Message

	// connMu serializes writes; gorilla allows one writer at a time.
	connMu sync.Mutex
	conn   *websocket.Conn

	seq   atomic.Int64
	acked atomic.Bool

	mu      sync.Mutex
	self    User
	dmCache map[string]string
}

// NewClient creates a client. Call [Client.Run] to connect.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultGatewayURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(30 * time.Second))
	}
	return &Client{
		token:      cfg.Token,
		apiBase:    cfg.APIBase,
		gatewayURL: cfg.GatewayURL,
		http:       cfg.HTTPClient,
		state:      cfg.State,
		logger:     logger,
		gate:       connwatch.NewGate(),
		messages:   make(chan *Message, 64),
		dmCache:    make(map[string]string),
	}
}

// Ready is open while the gateway session is live.
func (c *Client) Ready() *connwatch.Gate {
	return c.gate
}

// Messages delivers inbound direct messages from other users.
func (c *Client) Messages() <-chan *Message {
	return c.messages
}

// Run keeps a gateway session alive until ctx is cancelled,
// reconnecting with exponential backoff (2s doubling to 60s). It
// returns early only on [ErrAuthFailed].
func (c *Client) Run(ctx context.Context) error {
	const maxDelay = 60 * time.Second
	delay := 2 * time.Second

	for {
		start := time.Now()
		err := c.session(ctx)
		c.gate.SetDown()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrAuthFailed) {
			c.logger.Error("discord token rejected, giving up", "error", err)
			return err
		}
		// A session that lasted a while was healthy; start over.
		if time.Since(start) > 5*time.Minute {
			delay = 2 * time.Second
		}

		c.logger.Warn("discord gateway disconnected, reconnecting",
			"error", err,
			"delay", delay.String(),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxDelay)
	}
}

// session runs one gateway connection: hello, identify, then the read
// loop with a heartbeat alongside.
func (c *Client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	conn.SetReadLimit(8 << 20)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()

	var p payload
	if err := conn.ReadJSON(&p); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if p.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", p.Op)
	}
	var h hello
	if err := json.Unmarshal(p.D, &h); err != nil || h.HeartbeatInterval <= 0 {
		return fmt.Errorf("bad hello payload: %s", p.D)
	}
	interval := time.Duration(h.HeartbeatInterval) * time.Millisecond

	if err := c.send(opIdentify, identify{
		Token:   c.token,
		Intents: intentDirectMessages | intentMessageContent,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "aide",
			Device:  "aide",
		},
	}); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.acked.Store(true)
	go c.heartbeat(sessCtx, conn, interval)

	// Unblock ReadJSON when the caller gives up.
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()

	return c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == closeAuthenticationFailed {
				return fmt.Errorf("%w: %s", ErrAuthFailed, ce.Text)
			}
			return fmt.Errorf("read gateway: %w", err)
		}
		if p.S != nil {
			c.seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			c.dispatch(p.T, p.D)
		case opHeartbeat:
			if err := c.sendHeartbeat(); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
		case opHeartbeatACK:
			c.acked.Store(true)
		case opReconnect:
			return errReconnect
		case opInvalidSession:
			return errInvalidSession
		default:
			c.logger.Debug("unhandled gateway opcode", "op", p.Op)
		}
	}
}

func (c *Client) dispatch(event string, data json.RawMessage) {
	switch event {
	case "READY":
		var r ready
		if err := json.Unmarshal(data, &r); err != nil {
			c.logger.Error("decode READY failed", "error", err)
			return
		}
		c.mu.Lock()
		c.self = r.User
		c.mu.Unlock()
		c.gate.SetReady()
		c.logger.Info("discord gateway ready", "bot", r.User.Username, "bot_id", r.User.ID)

	case "MESSAGE_CREATE":
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			c.logger.Warn("decode MESSAGE_CREATE failed", "error", err)
			return
		}
		c.mu.Lock()
		self := c.self.ID
		c.mu.Unlock()
		if m.Author.Bot || m.Author.ID == self || m.GuildID != "" {
			return
		}
		c.rememberDM(m.Author.ID, m.ChannelID)

		select {
		case c.messages <- &m:
		default:
			c.logger.Warn("message channel full, dropping message", "user_id", m.Author.ID)
		}
	}
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !c.acked.Swap(false) {
			c.logger.Warn("discord heartbeat not acknowledged, dropping connection")
			conn.Close()
			return
		}
		if err := c.sendHeartbeat(); err != nil {
			c.logger.Debug("discord heartbeat send failed", "error", err)
			return
		}
	}
}

func (c *Client) sendHeartbeat() error {
	var seq *int64
	if s := c.seq.Load(); s > 0 {
		seq = &s
	}
	return c.send(opHeartbeat, seq)
}

func (c *Client) send(op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal op %d: %w", op, err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("gateway not connected")
	}
	return c.conn.WriteJSON(payload{Op: op, D: raw})
}

// --- REST ---

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bot "+c.token)
	return h
}

// SendMessage posts text to a channel, split into
// [MaxMessageLength]-sized parts.
func (c *Client) SendMessage(ctx context.Context, channelID, text string) error {
	endpoint := c.apiBase + "/channels/" + url.PathEscape(channelID) + "/messages"
	for i, part := range SplitMessage(text, MaxMessageLength) {
		if err := httpkit.PostJSON(ctx, c.http, endpoint, c.header(), createMessage{Content: part}, nil); err != nil {
			return fmt.Errorf("send message part %d: %w", i+1, err)
		}
	}
	return nil
}

// TriggerTyping shows the typing indicator for about ten seconds.
func (c *Client) TriggerTyping(ctx context.Context, channelID string) error {
	endpoint := c.apiBase + "/channels/" + url.PathEscape(channelID) + "/typing"
	return httpkit.PostJSON(ctx, c.http, endpoint, c.header(), struct{}{}, nil)
}

// SendDirect messages a user, opening the DM channel if needed.
func (c *Client) SendDirect(ctx context.Context, userID, text string) error {
	channelID, err := c.dmChannel(ctx, userID)
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", userID, err)
	}
	return c.SendMessage(ctx, channelID, text)
}

func (c *Client) dmChannel(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	id, ok := c.dmCache[userID]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	if c.state != nil {
		if id, err := c.state.Get(dmNamespace, userID); err != nil {
			c.logger.Debug("dm cache read failed", "user_id", userID, "error", err)
		} else if id != "" {
			c.mu.Lock()
			c.dmCache[userID] = id
			c.mu.Unlock()
			return id, nil
		}
	}

	var ch channel
	if err := httpkit.PostJSON(ctx, c.http, c.apiBase+"/users/@me/channels", c.header(), createDM{RecipientID: userID}, &ch); err != nil {
		return "", err
	}
	c.rememberDM(userID, ch.ID)
	return ch.ID, nil
}

func (c *Client) rememberDM(userID, channelID string) {
	c.mu.Lock()
	known := c.dmCache[userID] == channelID
	c.dmCache[userID] = channelID
	c.mu.Unlock()

	if known || c.state == nil {
		return
	}
	if err := c.state.Set(dmNamespace, userID, channelID); err != nil {
		c.logger.Warn("dm cache write failed", "user_id", userID, "error", err)
	}
}

// Me returns the bot's own account. It doubles as a token check.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := httpkit.GetJSON(ctx, c.http, c.apiBase+"/users/@me", c.header(), &u); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &u, nil
}

// Download fetches an attachment body of at most limit bytes.
func (c *Client) Download(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &httpkit.StatusError{Code: resp.StatusCode, Body: httpkit.ReadErrorBody(resp.Body, 512)}
	}
	defer httpkit.DrainAndClose(resp.Body, 64*1024)

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// invitePermissions is View Channel, Send Messages, Read Message History
// and Attach Files.
const invitePermissions = 1<<10 | 1<<11 | 1<<16 | 1<<15

// InviteURL is the OAuth2 link that adds the bot to a server, which is
// how users first reach it by DM.
func InviteURL(applicationID string) string {
	q := url.Values{}
	q.Set("client_id", applicationID)
	q.Set("scope", "bot")
	q.Set("permissions", strconv.Itoa(invitePermissions))
	return "https://discord.com/oauth2/authorize?" + q.Encode()
}
