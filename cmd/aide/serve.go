package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/aide/internal/buildinfo"
	"github.com/nugget/aide/internal/config"
	"github.com/nugget/aide/internal/connwatch"
	"github.com/nugget/aide/internal/discord"
	"github.com/nugget/aide/internal/mqtt"
	"github.com/nugget/aide/internal/scheduler"
)

// deliveryRetention is how long the delivery log keeps rows.
const deliveryRetention = 30 * 24 * time.Hour

// runServe is the primary operating mode: connect to Discord, answer
// DMs, and run the reminder, briefing and mail loops until SIGINT or
// SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting aide", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = configuredLogger(stdout, cfg)
	logger.Info("config loaded",
		"path", cfgPath,
		"model", cfg.LLM.Model,
		"provider", cfg.LLM.Provider,
		"data_dir", cfg.DataDir,
	)

	if cfg.Discord.Token == "" {
		return errors.New("discord.token is required for serve (use \"aide chat\" for a local session)")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	// --- Connection readiness ---
	connMgr := connwatch.NewManager(logger)
	defer connMgr.Stop()

	llmWatcher := connMgr.Watch(ctx, connwatch.WatcherConfig{
		Name:    "llm",
		Probe:   a.ping,
		Backoff: connwatch.DefaultBackoffConfig(),
		Logger:  logger,
	})

	// --- Discord ---
	dc := discord.NewClient(discord.ClientConfig{
		Token:  cfg.Discord.Token,
		State:  a.state,
		Logger: logger.With("component", "discord"),
	})

	meCtx, meCancel := context.WithTimeout(ctx, 15*time.Second)
	if me, err := dc.Me(meCtx); err != nil {
		logger.Warn("discord token check failed", "error", err)
	} else {
		logger.Info("discord bot account", "username", me.Username, "bot_id", me.ID)
	}
	meCancel()

	bridge := discord.NewBridge(discord.BridgeConfig{
		Gateway:      dc,
		Router:       a.router,
		Logger:       logger.With("component", "bridge"),
		RateLimit:    cfg.Discord.RateLimitPerMinute,
		AllowedUsers: cfg.Discord.AllowedUsers,
	})

	// --- Scheduler ---
	deliveries, err := scheduler.NewLog(a.store.DB())
	if err != nil {
		return fmt.Errorf("open delivery log: %w", err)
	}
	if n, err := deliveries.Prune(ctx, time.Now().Add(-deliveryRetention)); err != nil {
		logger.Warn("delivery log prune failed", "error", err)
	} else if n > 0 {
		logger.Info("delivery log pruned", "rows", n)
	}

	deps := scheduler.Deps{
		Store:    a.store,
		Notifier: dc,
		Ready:    connwatch.All{llmWatcher, dc.Ready()},
		Briefing: a.briefing,
		Log:      deliveries,
	}
	if a.poller != nil {
		deps.Mail = a.poller
	}
	sched := scheduler.New(scheduler.Config{
		ReminderInterval: time.Duration(cfg.Scheduler.ReminderIntervalSec) * time.Second,
		BriefingInterval: time.Duration(cfg.Scheduler.BriefingIntervalSec) * time.Second,
		MailInterval:     time.Duration(cfg.Scheduler.MailIntervalSec) * time.Second,
	}, deps, logger.With("component", "scheduler"))

	// --- MQTT ---
	// Constructed after the scheduler so the stats adapter can read its
	// delivery counts; events are attached before Start.
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}
		logger.Info("mqtt instance ID loaded", "instance_id", instanceID)

		usage := mqtt.NewDailyUsage(nil)
		a.loop.SetUsageObserver(usage)

		mqttPub = mqtt.New(cfg.MQTT, instanceID, usage, &mqttStatsAdapter{
			model: cfg.LLM.Model,
			sched: sched,
		}, logger.With("component", "mqtt"))
		sched.SetEvents(mqttPub)

		go func() {
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()

		connMgr.Watch(ctx, connwatch.WatcherConfig{
			Name: "mqtt",
			Probe: func(pCtx context.Context) error {
				awaitCtx, awaitCancel := context.WithTimeout(pCtx, 2*time.Second)
				defer awaitCancel()
				return mqttPub.AwaitConnection(awaitCtx)
			},
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  logger,
		})
		logger.Info("mqtt publishing enabled",
			"broker", cfg.MQTT.Broker,
			"device_name", cfg.MQTT.DeviceName,
		)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	sched.Start(ctx)
	defer sched.Stop()

	go bridge.Start(ctx)

	// Run blocks until ctx is cancelled or the token is rejected.
	runErr := dc.Run(ctx)
	logger.Info("shutdown signal received")

	if mqttPub != nil {
		offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer offlineCancel()
		if err := mqttPub.Stop(offlineCtx); err != nil {
			logger.Error("mqtt shutdown failed", "error", err)
		}
	}

	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("discord: %w", runErr)
	}
	logger.Info("aide stopped")
	return nil
}

// mqttStatsAdapter feeds build info and scheduler counts to the MQTT
// sensors.
type mqttStatsAdapter struct {
	model string
	sched *scheduler.Scheduler
}

func (a *mqttStatsAdapter) Uptime() time.Duration { return buildinfo.Uptime() }
func (a *mqttStatsAdapter) Version() string       { return buildinfo.Version }
func (a *mqttStatsAdapter) DefaultModel() string  { return a.model }

func (a *mqttStatsAdapter) DeliveriesToday() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	total := 0
	for _, n := range a.sched.Stats(ctx).Delivered {
		total += n
	}
	return total
}
