// Package config handles aide configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nugget/aide/internal/email"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/aide/config.yaml, /etc/aide/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "aide", "config.yaml"))
	}

	paths = append(paths, "/etc/aide/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all aide configuration.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json

	LLM          LLMConfig          `yaml:"llm"`
	Discord      DiscordConfig      `yaml:"discord"`
	Conversation ConversationConfig `yaml:"conversation"`
	Briefing     BriefingConfig     `yaml:"briefing"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Email        email.Config       `yaml:"email"`
	Search       SearchConfig       `yaml:"search"`
	Weather      WeatherConfig      `yaml:"weather"`
	Exchange     ExchangeConfig     `yaml:"exchange"`
	Fetch        FetchConfig        `yaml:"fetch"`
	Filesystem   FilesystemConfig   `yaml:"filesystem"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	CardDAV      CardDAVConfig      `yaml:"carddav"`
}

// LLMConfig selects and configures the language-model backend.
type LLMConfig struct {
	// Provider is "ollama" (default) or "openai". Any OpenAI-compatible
	// endpoint works with the latter when BaseURL is set.
	Provider   string       `yaml:"provider"`
	Model      string       `yaml:"model"`
	OllamaURL  string       `yaml:"ollama_url"`
	OpenAI     OpenAIConfig `yaml:"openai"`
	TimeoutSec int          `yaml:"timeout_sec"`
}

// OpenAIConfig holds credentials for an OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// DiscordConfig defines the chat gateway connection.
type DiscordConfig struct {
	Token         string `yaml:"token"`
	ApplicationID string `yaml:"application_id"`
	// AllowedUsers restricts which user IDs may talk to the bot.
	// Empty accepts any direct message.
	AllowedUsers []string `yaml:"allowed_users"`
	// RateLimitPerMinute caps messages per sender. 0 disables limiting.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// ConversationConfig bounds conversation history and the dispatch loop.
type ConversationConfig struct {
	MaxHistory       int `yaml:"max_history"`
	SummaryThreshold int `yaml:"summary_threshold"`
	KeepRecent       int `yaml:"keep_recent"`
	MaxRounds        int `yaml:"max_rounds"`
	// MaxURLs is how many links in a user message get their page
	// content inlined.
	MaxURLs int `yaml:"max_urls"`
	// URLTokenBudget caps each inlined page, counted in cl100k tokens.
	URLTokenBudget int `yaml:"url_token_budget"`
}

// BriefingConfig holds defaults applied when a user has no briefing row.
type BriefingConfig struct {
	DefaultCity string `yaml:"default_city"`
	DefaultTime string `yaml:"default_time"`
	NewsQuery   string `yaml:"news_query"`
}

// SchedulerConfig sets the polling interval of each background loop.
type SchedulerConfig struct {
	ReminderIntervalSec int `yaml:"reminder_interval_sec"`
	BriefingIntervalSec int `yaml:"briefing_interval_sec"`
	MailIntervalSec     int `yaml:"mail_interval_sec"`
}

// SearchConfig selects web search providers.
type SearchConfig struct {
	Default string        `yaml:"default"` // searxng, brave or duckduckgo
	SearXNG SearXNGConfig `yaml:"searxng"`
	Brave   BraveConfig   `yaml:"brave"`
}

// SearXNGConfig points at a SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// WeatherConfig overrides the Open-Meteo endpoints.
type WeatherConfig struct {
	GeocodingURL string `yaml:"geocoding_url"`
	ForecastURL  string `yaml:"forecast_url"`
}

// ExchangeConfig overrides the exchange-rate endpoint.
type ExchangeConfig struct {
	BaseURL string `yaml:"base_url"`
}

// FetchConfig controls page retrieval for link context.
type FetchConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

// FilesystemConfig confines the filesystem tool. An empty Root
// disables it.
type FilesystemConfig struct {
	Root string `yaml:"root"`
}

// MQTTConfig configures the event publisher. An empty Broker disables it.
type MQTTConfig struct {
	Broker             string `yaml:"broker"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	DeviceName         string `yaml:"device_name"`
	DiscoveryPrefix    string `yaml:"discovery_prefix"`
	PublishIntervalSec int    `yaml:"publish_interval_sec"`
}

// Configured reports whether a broker URL is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// CardDAVConfig points at an address book used to resolve mail recipients.
type CardDAVConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Configured reports whether a CardDAV endpoint is set.
func (c CardDAVConfig) Configured() bool {
	return c.URL != ""
}

// Load reads configuration from a YAML file, expands environment
// variables, and applies defaults. The result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no
// external integrations enabled.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "qwen2.5:7b"
	}
	if c.LLM.OllamaURL == "" {
		c.LLM.OllamaURL = "http://localhost:11434"
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 120
	}

	if c.Discord.RateLimitPerMinute == 0 {
		c.Discord.RateLimitPerMinute = 20
	}

	conv := &c.Conversation
	if conv.MaxHistory <= 0 {
		conv.MaxHistory = 20
	}
	if conv.SummaryThreshold <= 0 {
		conv.SummaryThreshold = 20
	}
	if conv.KeepRecent <= 0 {
		conv.KeepRecent = 10
	}
	if conv.MaxRounds <= 0 {
		conv.MaxRounds = 3
	}
	if conv.MaxURLs <= 0 {
		conv.MaxURLs = 3
	}
	if conv.URLTokenBudget <= 0 {
		conv.URLTokenBudget = 1000
	}

	if c.Briefing.DefaultCity == "" {
		c.Briefing.DefaultCity = "Seoul"
	}
	if c.Briefing.DefaultTime == "" {
		c.Briefing.DefaultTime = "08:00"
	}
	if c.Briefing.NewsQuery == "" {
		c.Briefing.NewsQuery = "today top news"
	}

	if c.Scheduler.ReminderIntervalSec <= 0 {
		c.Scheduler.ReminderIntervalSec = 30
	}
	if c.Scheduler.BriefingIntervalSec <= 0 {
		c.Scheduler.BriefingIntervalSec = 60
	}
	if c.Scheduler.MailIntervalSec <= 0 {
		c.Scheduler.MailIntervalSec = 30 * 60
	}

	if c.Search.Default == "" {
		switch {
		case c.Search.SearXNG.URL != "":
			c.Search.Default = "searxng"
		case c.Search.Brave.APIKey != "":
			c.Search.Default = "brave"
		default:
			c.Search.Default = "duckduckgo"
		}
	}

	if c.Weather.GeocodingURL == "" {
		c.Weather.GeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	if c.Weather.ForecastURL == "" {
		c.Weather.ForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = "https://open.er-api.com/v6/latest"
	}
	if c.Fetch.TimeoutSec <= 0 {
		c.Fetch.TimeoutSec = 15
	}

	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "aide"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.PublishIntervalSec <= 0 {
		c.MQTT.PublishIntervalSec = 300
	}

	c.Email.ApplyDefaults()
}

// Validate checks cross-field consistency. It returns the first problem
// found.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q must be text or json", c.LogFormat)
	}

	switch c.LLM.Provider {
	case "ollama":
	case "openai":
		if c.LLM.OpenAI.APIKey == "" && c.LLM.OpenAI.BaseURL == "" {
			return fmt.Errorf("llm.openai.api_key is required when llm.provider is openai")
		}
	default:
		return fmt.Errorf("llm.provider %q must be ollama or openai", c.LLM.Provider)
	}

	if c.Conversation.KeepRecent > c.Conversation.SummaryThreshold {
		return fmt.Errorf("conversation.keep_recent (%d) must not exceed summary_threshold (%d)",
			c.Conversation.KeepRecent, c.Conversation.SummaryThreshold)
	}

	if !validClock(c.Briefing.DefaultTime) {
		return fmt.Errorf("briefing.default_time %q must be HH:MM", c.Briefing.DefaultTime)
	}

	switch c.Search.Default {
	case "searxng":
		if c.Search.SearXNG.URL == "" {
			return fmt.Errorf("search.searxng.url is required when search.default is searxng")
		}
	case "brave":
		if c.Search.Brave.APIKey == "" {
			return fmt.Errorf("search.brave.api_key is required when search.default is brave")
		}
	case "duckduckgo":
	default:
		return fmt.Errorf("search.default %q must be searxng, brave or duckduckgo", c.Search.Default)
	}

	if c.Email.Configured() {
		if err := c.Email.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validClock(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return false
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return false
	}
	return h >= 0 && h <= 23 && m >= 0 && m <= 59
}
