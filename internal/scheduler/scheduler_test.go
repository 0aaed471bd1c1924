package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nugget/aide/internal/connwatch"
	"github.com/nugget/aide/internal/email"
	"github.com/nugget/aide/internal/store"
)

type sent struct {
	userID string
	text   string
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sent
	fail   map[string]bool
	panics map[string]bool
	notify chan struct{}
}

func (f *fakeNotifier) SendDirect(_ context.Context, userID, text string) error {
	if f.panics[userID] {
		panic("gateway exploded")
	}
	f.mu.Lock()
	f.sent = append(f.sent, sent{userID, text})
	f.mu.Unlock()
	if f.notify != nil {
		select {
		case f.notify <- struct{}{}:
		default:
		}
	}
	if f.fail[userID] {
		return errors.New("cannot open DM")
	}
	return nil
}

func (f *fakeNotifier) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeGenerator struct{ calls int }

func (g *fakeGenerator) Generate(_ context.Context, userID, city string) string {
	g.calls++
	return "briefing for " + userID + " in " + city
}

type fakeMail struct {
	found map[string][]email.ProviderMail
}

func (f fakeMail) CheckNew(_ context.Context, userID string) []email.ProviderMail {
	return f.found[userID]
}

type fakeEvents struct{ kinds []string }

func (f *fakeEvents) PublishEvent(_ context.Context, kind string, _ any) {
	f.kinds = append(f.kinds, kind)
}

// 2026-02-13 is a Friday.
var testNow = time.Date(2026, 2, 13, 9, 0, 0, 0, time.Local)

func newTestScheduler(t *testing.T, deps Deps) (*Scheduler, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db, store.Options{BriefingCity: "Seoul"})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	log, err := NewLog(db)
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}

	deps.Store = st
	deps.Log = log
	s := New(Config{}, deps, nil)
	s.now = func() time.Time { return testNow }
	return s, st
}

func TestTickReminders_OneShot(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{}
	ev := &fakeEvents{}
	s, st := newTestScheduler(t, Deps{Notifier: n, Events: ev})

	st.Reminders.Add(ctx, "u1", "take out trash", testNow.Add(-time.Minute), "")
	st.Reminders.Add(ctx, "u1", "later", testNow.Add(time.Hour), "")

	s.TickReminders(ctx)

	msgs := n.messages()
	if len(msgs) != 1 || msgs[0].text != "⏰ **Reminder**\ntake out trash" {
		t.Fatalf("sent = %+v", msgs)
	}
	left, _ := st.Reminders.GetAll(ctx, "u1")
	if len(left) != 1 || left[0].Content != "later" {
		t.Errorf("remaining = %+v", left)
	}
	if len(ev.kinds) != 1 || ev.kinds[0] != "reminder" {
		t.Errorf("events = %v", ev.kinds)
	}
}

func TestTickReminders_RecurringRescheduledEvenOnFailure(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{fail: map[string]bool{"u1": true}}
	ev := &fakeEvents{}
	s, st := newTestScheduler(t, Deps{Notifier: n, Events: ev})

	at := time.Date(2026, 2, 13, 8, 30, 0, 0, time.Local)
	st.Reminders.Add(ctx, "u1", "standup", at, "weekday")

	s.TickReminders(ctx)

	msgs := n.messages()
	if len(msgs) != 1 || msgs[0].text != "⏰ **Reminder** 🔁 weekday\nstandup" {
		t.Fatalf("sent = %+v", msgs)
	}
	all, _ := st.Reminders.GetAll(ctx, "u1")
	if len(all) != 1 {
		t.Fatalf("reminder gone after failed delivery: %+v", all)
	}
	want := time.Date(2026, 2, 16, 8, 30, 0, 0, time.Local) // Monday
	if !all[0].RemindAt.Equal(want) {
		t.Errorf("next = %v, want %v", all[0].RemindAt, want)
	}
	if len(ev.kinds) != 0 {
		t.Errorf("failed delivery published %v", ev.kinds)
	}
}

func TestTickReminders_PanicIsolatedPerItem(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{panics: map[string]bool{"bad": true}}
	s, st := newTestScheduler(t, Deps{Notifier: n})

	st.Reminders.Add(ctx, "bad", "boom", testNow.Add(-2*time.Minute), "")
	st.Reminders.Add(ctx, "good", "fine", testNow.Add(-time.Minute), "")

	s.TickReminders(ctx)

	msgs := n.messages()
	if len(msgs) != 1 || msgs[0].userID != "good" {
		t.Errorf("sent = %+v", msgs)
	}
}

func TestFormatReminder(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"", "⏰ **Reminder**\nx"},
		{"daily", "⏰ **Reminder** 🔁 daily\nx"},
		{"weekly:2", "⏰ **Reminder** 🔁 weekly on Wednesday\nx"},
	}
	for _, tt := range tests {
		got := FormatReminder(store.Reminder{Content: "x", Recurrence: tt.code})
		if got != tt.want {
			t.Errorf("FormatReminder(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestBriefingDue(t *testing.T) {
	today := testNow.Add(-time.Hour)
	yesterday := testNow.AddDate(0, 0, -1)

	tests := []struct {
		name string
		b    store.BriefingSettings
		want bool
	}{
		{"never sent, time passed", store.BriefingSettings{Enabled: true, Time: "08:00"}, true},
		{"exact minute", store.BriefingSettings{Enabled: true, Time: "09:00"}, true},
		{"too early", store.BriefingSettings{Enabled: true, Time: "09:01"}, false},
		{"sent yesterday", store.BriefingSettings{Enabled: true, Time: "08:00", LastSent: &yesterday}, true},
		{"sent today", store.BriefingSettings{Enabled: true, Time: "08:00", LastSent: &today}, false},
		{"disabled", store.BriefingSettings{Enabled: false, Time: "08:00"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BriefingDue(tt.b, testNow); got != tt.want {
				t.Errorf("BriefingDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTickBriefings_AtMostOncePerDay(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{}
	gen := &fakeGenerator{}
	s, st := newTestScheduler(t, Deps{Notifier: n, Briefing: gen})

	early, city := "08:30", "Busan"
	st.Briefing.SetSettings(ctx, "u1", store.BriefingUpdate{Time: &early, City: &city})

	s.TickBriefings(ctx)
	s.TickBriefings(ctx)

	msgs := n.messages()
	if len(msgs) != 1 || msgs[0].text != "briefing for u1 in Busan" {
		t.Fatalf("sent = %+v", msgs)
	}
	b, _ := st.Briefing.GetSettings(ctx, "u1")
	if b == nil || b.LastSent == nil || !b.SentOn(testNow) {
		t.Errorf("last_sent not recorded: %+v", b)
	}
}

func TestTickBriefings_FailureLeavesLastSent(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{fail: map[string]bool{"u1": true}}
	gen := &fakeGenerator{}
	s, st := newTestScheduler(t, Deps{Notifier: n, Briefing: gen})

	on := true
	st.Briefing.SetSettings(ctx, "u1", store.BriefingUpdate{Enabled: &on})

	s.TickBriefings(ctx)
	s.TickBriefings(ctx)

	if gen.calls != 2 {
		t.Errorf("generator calls = %d, want a retry on the next tick", gen.calls)
	}
	b, _ := st.Briefing.GetSettings(ctx, "u1")
	if b.LastSent != nil {
		t.Errorf("last_sent = %v after failed delivery", b.LastSent)
	}
}

func TestTickMail(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{}
	mail := fakeMail{found: map[string][]email.ProviderMail{
		"u1": {{Provider: "gmail", Messages: []email.Envelope{{From: "a@x.example", Subject: "hi", Date: testNow}}}},
	}}
	ev := &fakeEvents{}
	s, st := newTestScheduler(t, Deps{Notifier: n, Mail: mail, Events: ev})

	st.Mail.SetEnabled(ctx, "u1", true)
	st.Mail.SetEnabled(ctx, "u2", true)
	st.Mail.SetEnabled(ctx, "u3", false)

	s.TickMail(ctx)

	msgs := n.messages()
	if len(msgs) != 1 || msgs[0].userID != "u1" || !strings.HasPrefix(msgs[0].text, MailDigestHeading+"\n\n[Gmail]") {
		t.Fatalf("sent = %+v", msgs)
	}
	for _, id := range []string{"u1", "u2"} {
		m, _ := st.Mail.GetSettings(ctx, id)
		if m.LastChecked == nil {
			t.Errorf("%s last_checked not updated", id)
		}
	}
	if m, _ := st.Mail.GetSettings(ctx, "u3"); m.LastChecked != nil {
		t.Error("disabled user was checked")
	}
	if len(ev.kinds) != 1 || ev.kinds[0] != "mail" {
		t.Errorf("events = %v", ev.kinds)
	}
}

func TestTickBriefings_PanicIsolatedPerItem(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{panics: map[string]bool{"bad": true}}
	s, st := newTestScheduler(t, Deps{Notifier: n, Briefing: &fakeGenerator{}})

	on := true
	for _, id := range []string{"bad", "good"} {
		st.Briefing.SetSettings(ctx, id, store.BriefingUpdate{Enabled: &on})
	}

	s.TickBriefings(ctx)

	msgs := n.messages()
	if len(msgs) != 1 || msgs[0].userID != "good" {
		t.Fatalf("sent = %+v", msgs)
	}
	if b, _ := st.Briefing.GetSettings(ctx, "good"); b == nil || b.LastSent == nil {
		t.Errorf("good last_sent not recorded: %+v", b)
	}
	if b, _ := st.Briefing.GetSettings(ctx, "bad"); b == nil || b.LastSent != nil {
		t.Errorf("bad last_sent = %+v, want unset so the next tick retries", b)
	}
}

func TestTickMail_PanicIsolatedPerItem(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{panics: map[string]bool{"bad": true}}
	digest := []email.ProviderMail{{Provider: "gmail", Messages: []email.Envelope{{From: "a@x.example", Subject: "hi", Date: testNow}}}}
	mail := fakeMail{found: map[string][]email.ProviderMail{"bad": digest, "good": digest}}
	s, st := newTestScheduler(t, Deps{Notifier: n, Mail: mail})

	st.Mail.SetEnabled(ctx, "bad", true)
	st.Mail.SetEnabled(ctx, "good", true)

	s.TickMail(ctx)

	msgs := n.messages()
	if len(msgs) != 1 || msgs[0].userID != "good" {
		t.Fatalf("sent = %+v", msgs)
	}
	if m, _ := st.Mail.GetSettings(ctx, "good"); m.LastChecked == nil {
		t.Error("good last_checked not updated")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	n := &fakeNotifier{fail: map[string]bool{"u2": true}}
	s, st := newTestScheduler(t, Deps{Notifier: n})
	s.now = time.Now

	st.Reminders.Add(ctx, "u1", "a", time.Now().Add(-time.Minute), "")
	st.Reminders.Add(ctx, "u2", "b", time.Now().Add(-time.Minute), "")
	s.TickReminders(ctx)

	stats := s.Stats(ctx)
	if stats.Delivered[KindReminder] != 1 || stats.Failed[KindReminder] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	recent, err := s.deps.Log.Recent(ctx, "u2", 5)
	if err != nil || len(recent) != 1 || recent[0].Status != StatusFailed || recent[0].Detail != "cannot open DM" {
		t.Errorf("recent = %+v, %v", recent, err)
	}
}

func TestStart_WaitsForReadiness(t *testing.T) {
	ctx := context.Background()
	gate := connwatch.NewGate()
	n := &fakeNotifier{notify: make(chan struct{}, 1)}
	s, st := newTestScheduler(t, Deps{Notifier: n, Ready: gate})
	s.now = time.Now

	st.Reminders.Add(ctx, "u1", "wake up", time.Now().Add(-time.Minute), "")

	s.Start(ctx)
	defer s.Stop()

	select {
	case <-n.notify:
		t.Fatal("reminder delivered before the gateway was ready")
	case <-time.After(50 * time.Millisecond):
	}

	gate.SetReady()
	select {
	case <-n.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("reminder not delivered after readiness")
	}
}
