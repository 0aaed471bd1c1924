package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nugget/aide/internal/agent"
	"github.com/nugget/aide/internal/briefing"
	"github.com/nugget/aide/internal/commands"
	"github.com/nugget/aide/internal/config"
	"github.com/nugget/aide/internal/contacts"
	"github.com/nugget/aide/internal/email"
	"github.com/nugget/aide/internal/exchange"
	"github.com/nugget/aide/internal/fetch"
	"github.com/nugget/aide/internal/httpkit"
	"github.com/nugget/aide/internal/llm"
	"github.com/nugget/aide/internal/memory"
	"github.com/nugget/aide/internal/opstate"
	"github.com/nugget/aide/internal/search"
	"github.com/nugget/aide/internal/store"
	"github.com/nugget/aide/internal/tools"
	"github.com/nugget/aide/internal/weather"
)

// app is everything the chat surfaces share: storage, the LLM, the
// tool registry, the agent loop and the command router. serve adds the
// Discord gateway, the scheduler and MQTT on top.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store *store.Store
	state *opstate.Store
	llm   llm.Client

	loop     *agent.Loop
	router   *commands.Router
	briefing *briefing.Generator
	mail     *email.Manager // nil when no accounts are configured
	poller   *email.Poller
}

// newApp opens the database and builds the core components. The
// caller must call close.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Storage ---
	dbPath := filepath.Join(cfg.DataDir, "aide.db")
	st, err := store.Open(dbPath, store.Options{
		BriefingCity: cfg.Briefing.DefaultCity,
		BriefingTime: cfg.Briefing.DefaultTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	logger.Info("database opened", "path", dbPath)

	state, err := opstate.NewStore(st.DB())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open operational state: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: st, state: state}

	// --- LLM ---
	a.llm = createLLMClient(cfg, logger)

	// --- Lookups ---
	httpClient := httpkit.NewClient(
		httpkit.WithTimeout(30*time.Second),
		httpkit.WithRetry(2, time.Second),
		httpkit.WithLogger(logger),
	)
	weatherClient := weather.NewClient(cfg.Weather.GeocodingURL, cfg.Weather.ForecastURL, httpClient)
	rates := exchange.NewClient(cfg.Exchange.BaseURL, httpClient)
	searcher := createSearchManager(cfg, httpClient, logger)

	// --- Mail ---
	var sender tools.MailSender
	var checker commands.MailChecker
	if cfg.Email.Configured() {
		a.mail = email.NewManager(cfg.Email, logger)
		a.poller = email.NewPoller(a.mail, state, logger)
		sender = a.mail
		checker = a.poller
		logger.Info("email enabled", "accounts", a.mail.Providers())
	}

	var resolver contacts.Resolver
	if cfg.CardDAV.Configured() {
		book, err := contacts.NewCardDAV(cfg.CardDAV.URL, cfg.CardDAV.Username, cfg.CardDAV.Password, httpClient, logger)
		if err != nil {
			logger.Warn("carddav unavailable, recipients must be addresses", "error", err)
		} else {
			resolver = book
		}
	}

	// --- Tools ---
	// Registration order is match order.
	registry := tools.NewRegistry(logger)
	registry.Register(tools.NewPersonaTool(logger))
	registry.Register(tools.NewReminderTool(logger))
	registry.Register(tools.NewMemoTool(logger))
	registry.Register(tools.NewBriefingTool(logger))
	registry.Register(tools.NewWeatherTool(weatherClient, logger))
	registry.Register(tools.NewExchangeTool(rates, logger))
	registry.Register(tools.NewSearchTool(searcher, logger))
	if sender != nil {
		registry.Register(tools.NewEmailTool(sender, resolver, logger))
	}
	registry.Register(tools.NewFilesystemTool(cfg.Filesystem.Root, logger))

	// --- Agent loop ---
	a.loop = agent.NewLoop(a.llm, st, registry, agent.Config{
		Model:          cfg.LLM.Model,
		MaxRounds:      cfg.Conversation.MaxRounds,
		MaxHistory:     cfg.Conversation.MaxHistory,
		MaxURLs:        cfg.Conversation.MaxURLs,
		URLTokenBudget: cfg.Conversation.URLTokenBudget,
	}, logger)

	a.loop.SetCompactor(memory.NewCompactor(st.Conversation, memory.CompactionConfig{
		Threshold:  cfg.Conversation.SummaryThreshold,
		KeepRecent: cfg.Conversation.KeepRecent,
	}, memory.NewLLMSummarizer(a.llm, cfg.LLM.Model), logger))

	tok := agent.NewTokenizer()
	if !tok.Precise() {
		logger.Warn("tiktoken encoding unavailable, link context uses a character budget")
	}
	a.loop.SetFetcher(fetch.New(time.Duration(cfg.Fetch.TimeoutSec)*time.Second), tok)

	// --- Briefing and commands ---
	a.briefing = briefing.New(weatherClient, searcher, st.Reminders, cfg.Briefing.NewsQuery, logger)

	a.router = commands.New(commands.Deps{
		Store:    st,
		Agent:    a.loop,
		Weather:  weatherClient,
		Rates:    rates,
		Search:   searcher,
		Briefing: a.briefing,
		Mail:     checker,
	}, logger)

	return a, nil
}

func (a *app) close() {
	if a.mail != nil {
		a.mail.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("database close failed", "error", err)
	}
}

// createLLMClient builds the chat backend. Ollama is always registered;
// OpenAI joins when credentials are present. The configured provider
// serves the default model and answers health checks.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	timeout := time.Duration(cfg.LLM.TimeoutSec) * time.Second

	ollama := llm.NewOllamaClient(cfg.LLM.OllamaURL, timeout, logger)
	var openai llm.Client
	if cfg.LLM.OpenAI.APIKey != "" || cfg.LLM.OpenAI.BaseURL != "" {
		openai = llm.NewOpenAIClient(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL, timeout, logger)
	}

	var primary llm.Client = ollama
	if cfg.LLM.Provider == "openai" {
		primary = openai
	}
	multi := llm.NewMultiClient(primary)
	multi.AddProvider("ollama", ollama)
	if openai != nil {
		multi.AddProvider("openai", openai)
	}
	multi.AddModel(cfg.LLM.Model, cfg.LLM.Provider)

	logger.Info("LLM client initialized",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"providers", multi.Providers(),
	)
	return multi
}

// createSearchManager registers every configured provider. DuckDuckGo
// needs no key and is always present as the last fallback.
func createSearchManager(cfg *config.Config, client *http.Client, logger *slog.Logger) *search.Manager {
	mgr := search.NewManager(cfg.Search.Default, logger)
	if cfg.Search.SearXNG.URL != "" {
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL, client))
	}
	if cfg.Search.Brave.APIKey != "" {
		mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey, client))
	}
	mgr.Register(search.NewDuckDuckGo(client))
	logger.Info("web search configured", "default", cfg.Search.Default, "providers", mgr.Providers())
	return mgr
}

// ping is used by the LLM watcher.
func (a *app) ping(ctx context.Context) error {
	return a.llm.Ping(ctx)
}
