package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nugget/aide/internal/connwatch"
	"github.com/nugget/aide/internal/email"
	"github.com/nugget/aide/internal/recurrence"
	"github.com/nugget/aide/internal/store"
)

// Notifier delivers a direct message to a user.
type Notifier interface {
	SendDirect(ctx context.Context, userID, text string) error
}

// BriefingGenerator renders a user's briefing.
type BriefingGenerator interface {
	Generate(ctx context.Context, userID, city string) string
}

// MailChecker returns unread mail the user has not yet been told about.
type MailChecker interface {
	CheckNew(ctx context.Context, userID string) []email.ProviderMail
}

// EventPublisher receives a notice after each successful delivery.
type EventPublisher interface {
	PublishEvent(ctx context.Context, kind string, payload any)
}

// MailDigestHeading opens every unread-mail message.
const MailDigestHeading = "📬 New mail!"

// Config sets the tick interval of each loop. Zero values take the
// defaults (30s, 60s, 30m).
type Config struct {
	ReminderInterval time.Duration
	BriefingInterval time.Duration
	MailInterval     time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = 30 * time.Second
	}
	if c.BriefingInterval <= 0 {
		c.BriefingInterval = 60 * time.Second
	}
	if c.MailInterval <= 0 {
		c.MailInterval = 30 * time.Minute
	}
}

// Deps are the scheduler's collaborators. Briefing and Mail may be nil
// to disable those loops.
type Deps struct {
	Store    *store.Store
	Notifier Notifier
	Ready    connwatch.Readiness
	Briefing BriefingGenerator
	Mail     MailChecker
	Events   EventPublisher
	Log      *Log
}

// Scheduler owns the background loops.
type Scheduler struct {
	config Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastTick map[Kind]time.Time
}

// New creates a scheduler. Call [Scheduler.Start] to begin ticking.
func New(config Config, deps Deps, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	config.applyDefaults()
	return &Scheduler{
		config:   config,
		deps:     deps,
		logger:   logger,
		now:      time.Now,
		lastTick: make(map[Kind]time.Time),
	}
}

// SetEvents attaches an event publisher. Call it before Start.
func (s *Scheduler) SetEvents(e EventPublisher) {
	s.deps.Events = e
}

// Start launches the loops. They run until ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.spawn(ctx, KindReminder, s.config.ReminderInterval, s.TickReminders)
	if s.deps.Briefing != nil {
		s.spawn(ctx, KindBriefing, s.config.BriefingInterval, s.TickBriefings)
	}
	if s.deps.Mail != nil {
		s.spawn(ctx, KindMail, s.config.MailInterval, s.TickMail)
	}
	s.logger.Info("scheduler started",
		"reminder_interval", s.config.ReminderInterval,
		"briefing", s.deps.Briefing != nil,
		"mail", s.deps.Mail != nil,
	)
}

// Stop cancels the loops and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) spawn(ctx context.Context, kind Kind, interval time.Duration, tick func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, kind, interval, tick)
	}()
}

// run waits for readiness, ticks once, then ticks every interval.
func (s *Scheduler) run(ctx context.Context, kind Kind, interval time.Duration, tick func(context.Context)) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready.WaitReady(ctx); err != nil {
			return
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.safeTick(ctx, kind, tick)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context, kind Kind, tick func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", "job", kind, "panic", r)
		}
	}()
	tick(ctx)

	s.mu.Lock()
	s.lastTick[kind] = s.now()
	s.mu.Unlock()
}

// guard runs fn and converts a panic into a logged error, so one bad
// item does not abort the rest of the tick.
func (s *Scheduler) guard(kind Kind, userID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler item panicked", "job", kind, "user_id", userID, "panic", r)
		}
	}()
	fn()
}

// TickReminders delivers every due reminder. One-shot reminders are
// deleted after the attempt; recurring ones move to their next
// occurrence whether or not delivery succeeded.
func (s *Scheduler) TickReminders(ctx context.Context) {
	due, err := s.deps.Store.Reminders.GetDue(ctx, s.now())
	if err != nil {
		s.logger.Error("load due reminders failed", "error", err)
		return
	}
	for _, r := range due {
		s.guard(KindReminder, r.UserID, func() { s.deliverReminder(ctx, r) })
	}
}

func (s *Scheduler) deliverReminder(ctx context.Context, r store.Reminder) {
	err := s.deps.Notifier.SendDirect(ctx, r.UserID, FormatReminder(r))
	s.record(ctx, KindReminder, r.UserID, strconv.FormatInt(r.ID, 10), err)
	if err != nil {
		s.logger.Warn("reminder delivery failed", "reminder_id", r.ID, "user_id", r.UserID, "error", err)
	} else {
		s.publish(ctx, "reminder", map[string]any{
			"user_id":    r.UserID,
			"id":         r.ID,
			"content":    r.Content,
			"recurrence": r.Recurrence,
		})
	}

	if r.Recurring() {
		next := recurrence.CalcNext(r.RemindAt, r.Recurrence)
		if err := s.deps.Store.Reminders.Reschedule(ctx, r.ID, next); err != nil {
			s.logger.Error("reschedule reminder failed", "reminder_id", r.ID, "error", err)
			return
		}
		s.logger.Debug("reminder rescheduled", "reminder_id", r.ID, "next", next.Format(store.TimeLayout))
		return
	}
	if err := s.deps.Store.Reminders.Delete(ctx, r.ID); err != nil {
		s.logger.Error("delete reminder failed", "reminder_id", r.ID, "error", err)
	}
}

// FormatReminder renders the message sent when a reminder fires.
func FormatReminder(r store.Reminder) string {
	head := "⏰ **Reminder**"
	if label := recurrence.Label(r.Recurrence); label != "" {
		head += " 🔁 " + label
	}
	return head + "\n" + r.Content
}

// TickBriefings sends the briefing to every enabled user whose time has
// come and who has not had one today.
func (s *Scheduler) TickBriefings(ctx context.Context) {
	if s.deps.Briefing == nil {
		return
	}
	all, err := s.deps.Store.Briefing.GetAllEnabled(ctx)
	if err != nil {
		s.logger.Error("load briefing settings failed", "error", err)
		return
	}
	now := s.now()
	for _, b := range all {
		if !BriefingDue(b, now) {
			continue
		}
		s.guard(KindBriefing, b.UserID, func() { s.deliverBriefing(ctx, b, now) })
	}
}

// BriefingDue reports whether b should be sent at now.
func BriefingDue(b store.BriefingSettings, now time.Time) bool {
	if !b.Enabled || b.SentOn(now) {
		return false
	}
	return now.Format("15:04") >= b.Time
}

func (s *Scheduler) deliverBriefing(ctx context.Context, b store.BriefingSettings, now time.Time) {
	text := s.deps.Briefing.Generate(ctx, b.UserID, b.City)
	err := s.deps.Notifier.SendDirect(ctx, b.UserID, text)
	s.record(ctx, KindBriefing, b.UserID, now.Format("2006-01-02"), err)
	if err != nil {
		s.logger.Warn("briefing delivery failed", "user_id", b.UserID, "error", err)
		return
	}
	if err := s.deps.Store.Briefing.UpdateLastSent(ctx, b.UserID, now); err != nil {
		s.logger.Error("update briefing last_sent failed", "user_id", b.UserID, "error", err)
	}
	s.logger.Info("briefing sent", "user_id", b.UserID, "city", b.City)
	s.publish(ctx, "briefing", map[string]any{"user_id": b.UserID, "city": b.City})
}

// TickMail sends a digest of new unread mail to each user with mail
// notifications on. last_checked is updated even when nothing is found.
func (s *Scheduler) TickMail(ctx context.Context) {
	if s.deps.Mail == nil {
		return
	}
	all, err := s.deps.Store.Mail.GetAllEnabled(ctx)
	if err != nil {
		s.logger.Error("load mail settings failed", "error", err)
		return
	}
	for _, m := range all {
		s.guard(KindMail, m.UserID, func() { s.checkMail(ctx, m.UserID) })
	}
}

func (s *Scheduler) checkMail(ctx context.Context, userID string) {
	found := s.deps.Mail.CheckNew(ctx, userID)
	if len(found) > 0 {
		err := s.deps.Notifier.SendDirect(ctx, userID, email.FormatDigest(MailDigestHeading, found))
		s.record(ctx, KindMail, userID, fmt.Sprintf("%d providers", len(found)), err)
		if err != nil {
			s.logger.Warn("mail digest delivery failed", "user_id", userID, "error", err)
		} else {
			count := 0
			for _, pm := range found {
				count += len(pm.Messages)
			}
			s.publish(ctx, "mail", map[string]any{"user_id": userID, "messages": count})
		}
	}
	if err := s.deps.Store.Mail.UpdateLastChecked(ctx, userID, s.now()); err != nil {
		s.logger.Error("update mail last_checked failed", "user_id", userID, "error", err)
	}
}

func (s *Scheduler) record(ctx context.Context, kind Kind, userID, ref string, sendErr error) {
	if s.deps.Log == nil {
		return
	}
	d := &Delivery{Kind: kind, UserID: userID, Ref: ref, Status: StatusDelivered}
	if sendErr != nil {
		d.Status = StatusFailed
		d.Detail = sendErr.Error()
	}
	if err := s.deps.Log.Record(ctx, d); err != nil {
		s.logger.Debug("delivery log write failed", "job", kind, "error", err)
	}
}

func (s *Scheduler) publish(ctx context.Context, kind string, payload any) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.PublishEvent(ctx, kind, payload)
}

// Stats returns today's delivery counts and the last tick of each loop.
func (s *Scheduler) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	st := Stats{
		Running:  s.running,
		LastTick: make(map[Kind]time.Time, len(s.lastTick)),
	}
	for k, v := range s.lastTick {
		st.LastTick[k] = v
	}
	s.mu.Unlock()

	if s.deps.Log != nil {
		now := s.now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		delivered, failed, err := s.deps.Log.CountSince(ctx, midnight)
		if err != nil {
			s.logger.Debug("delivery counts unavailable", "error", err)
		}
		st.Delivered, st.Failed = delivered, failed
	}
	return st
}
