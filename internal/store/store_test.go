package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Each pooled connection to :memory: would be a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, Options{BriefingCity: "Busan", BriefingTime: "07:30"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aide.db")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open(%q): %v", path, err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Conversation.AddMessage(ctx, "u1", "user", "hello"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if n, err := s.Conversation.Count(ctx, "u1"); err != nil || n != 1 {
		t.Fatalf("Count = %d, %v; want 1", n, err)
	}
}

func TestConversation_HistoryOrderAndLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, c := range []string{"one", "two", "three", "four"} {
		if err := s.Conversation.AddMessage(ctx, "u1", "user", c); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}
	s.Conversation.AddMessage(ctx, "u2", "user", "other user")

	got, err := s.Conversation.GetHistory(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(got) != 2 || got[0].Content != "three" || got[1].Content != "four" {
		t.Fatalf("GetHistory = %+v, want [three four]", got)
	}

	all, _ := s.Conversation.GetAllMessages(ctx, "u1")
	if len(all) != 4 {
		t.Fatalf("GetAllMessages len = %d, want 4", len(all))
	}
}

func TestConversation_DeleteExactIDs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Conversation.AddMessage(ctx, "u1", "user", "m")
	}
	all, _ := s.Conversation.GetAllMessages(ctx, "u1")

	n, err := s.Conversation.DeleteMessages(ctx, "u1", []int64{all[0].ID, all[1].ID})
	if err != nil {
		t.Fatalf("DeleteMessages: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	// IDs belonging to a different user are not touched.
	n, _ = s.Conversation.DeleteMessages(ctx, "u2", []int64{all[2].ID})
	if n != 0 {
		t.Errorf("cross-user delete removed %d rows", n)
	}

	if c, _ := s.Conversation.Count(ctx, "u1"); c != 3 {
		t.Errorf("Count = %d, want 3", c)
	}
}

func TestConversation_SummaryAccumulates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sum, err := s.Conversation.GetSummary(ctx, "u1")
	if err != nil || sum != nil {
		t.Fatalf("GetSummary on empty = %+v, %v; want nil, nil", sum, err)
	}

	if err := s.Conversation.SaveSummary(ctx, "u1", "first", 12); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	if err := s.Conversation.SaveSummary(ctx, "u1", "second", 11); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}

	sum, err = s.Conversation.GetSummary(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if sum.Text != "second" {
		t.Errorf("Text = %q, want second", sum.Text)
	}
	if sum.MessageCount != 23 {
		t.Errorf("MessageCount = %d, want 23", sum.MessageCount)
	}

	if err := s.Conversation.ClearSummary(ctx, "u1"); err != nil {
		t.Fatalf("ClearSummary: %v", err)
	}
	if sum, _ := s.Conversation.GetSummary(ctx, "u1"); sum != nil {
		t.Errorf("summary survived ClearSummary: %+v", sum)
	}
}

func TestPersona_SaveGetDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if p, _ := s.Personas.Get(ctx, "u1"); p != nil {
		t.Fatalf("Get on empty = %+v", p)
	}
	s.Personas.Save(ctx, "u1", Persona{Name: "Jarvis", Role: "butler", Tone: "dry"})
	s.Personas.Save(ctx, "u1", Persona{Name: "Jarvis", Role: "butler", Tone: "warm"})

	p, err := s.Personas.Get(ctx, "u1")
	if err != nil || p == nil {
		t.Fatalf("Get = %+v, %v", p, err)
	}
	if p.Tone != "warm" {
		t.Errorf("Tone = %q, want warm", p.Tone)
	}

	s.Personas.Delete(ctx, "u1")
	if p, _ := s.Personas.Get(ctx, "u1"); p != nil {
		t.Errorf("persona survived Delete")
	}
}

func TestMemos(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Memos.Add(ctx, "u1", "buy milk")
	s.Memos.Add(ctx, "u1", "call 100% of the team")
	id, _ := s.Memos.Add(ctx, "u1", "milk the cows")

	list, _ := s.Memos.List(ctx, "u1", 20)
	if len(list) != 3 || list[0].ID != id {
		t.Fatalf("List = %+v, want newest first", list)
	}

	found, _ := s.Memos.Search(ctx, "u1", "milk", 20)
	if len(found) != 2 {
		t.Errorf("Search(milk) = %d results, want 2", len(found))
	}
	found, _ = s.Memos.Search(ctx, "u1", "100%", 20)
	if len(found) != 1 {
		t.Errorf("Search(100%%) = %d results, want 1", len(found))
	}

	if err := s.Memos.Delete(ctx, "u2", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Memos.Delete(ctx, "u1", id); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestReminders_DueAndReschedule(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 13, 9, 0, 0, 0, time.Local)

	past, _ := s.Reminders.Add(ctx, "u1", "stretch", now.Add(-time.Minute), "")
	exact, _ := s.Reminders.Add(ctx, "u2", "standup", now, "weekday")
	s.Reminders.Add(ctx, "u1", "lunch", now.Add(3*time.Hour), "")

	due, err := s.Reminders.GetDue(ctx, now)
	if err != nil {
		t.Fatalf("GetDue: %v", err)
	}
	if len(due) != 2 || due[0].ID != past || due[1].ID != exact {
		t.Fatalf("GetDue = %+v, want [%d %d]", due, past, exact)
	}
	if !due[1].Recurring() || due[1].Recurrence != "weekday" {
		t.Errorf("recurrence = %q, want weekday", due[1].Recurrence)
	}
	if due[0].Recurring() {
		t.Errorf("one-shot reminder reported as recurring")
	}

	next := time.Date(2026, 2, 16, 9, 0, 0, 0, time.Local)
	if err := s.Reminders.Reschedule(ctx, exact, next); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	s.Reminders.Delete(ctx, past)

	due, _ = s.Reminders.GetDue(ctx, now)
	if len(due) != 0 {
		t.Errorf("GetDue after processing = %+v, want none", due)
	}

	all, _ := s.Reminders.GetAll(ctx, "u2")
	if len(all) != 1 || !all[0].RemindAt.Equal(next) {
		t.Errorf("rescheduled reminder = %+v, want %s", all, next)
	}
}

func TestReminders_DeleteByIDScoped(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, _ := s.Reminders.Add(ctx, "u1", "x", time.Now(), "")
	if err := s.Reminders.DeleteByID(ctx, "u2", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteByID other user = %v, want ErrNotFound", err)
	}
	if err := s.Reminders.DeleteByID(ctx, "u1", id); err != nil {
		t.Errorf("DeleteByID owner: %v", err)
	}
}

func TestBriefing_DefaultsAndUpdate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b, err := s.Briefing.GetSettings(ctx, "u1")
	if err != nil || b != nil {
		t.Fatalf("GetSettings on empty = %+v, %v", b, err)
	}
	eff, _ := s.Briefing.Effective(ctx, "u1")
	if !eff.Enabled || eff.Time != "07:30" || eff.City != "Busan" {
		t.Errorf("defaults = %+v", eff)
	}

	city := "Tokyo"
	got, err := s.Briefing.SetSettings(ctx, "u1", BriefingUpdate{City: &city})
	if err != nil {
		t.Fatalf("SetSettings: %v", err)
	}
	if got.City != "Tokyo" || got.Time != "07:30" || !got.Enabled {
		t.Errorf("SetSettings result = %+v", got)
	}

	sent := time.Date(2026, 2, 13, 7, 31, 0, 0, time.Local)
	s.Briefing.UpdateLastSent(ctx, "u1", sent)

	// A later update keeps last_sent.
	off := false
	s.Briefing.SetSettings(ctx, "u1", BriefingUpdate{Enabled: &off})
	stored, _ := s.Briefing.GetSettings(ctx, "u1")
	if stored.LastSent == nil || !stored.LastSent.Equal(sent) {
		t.Errorf("LastSent = %v, want %v", stored.LastSent, sent)
	}
	if !stored.SentOn(sent) || stored.SentOn(sent.AddDate(0, 0, 1)) {
		t.Errorf("SentOn mismatch for %v", stored.LastSent)
	}

	enabled, _ := s.Briefing.GetAllEnabled(ctx)
	if len(enabled) != 0 {
		t.Errorf("GetAllEnabled = %+v, want none", enabled)
	}
}

func TestMail_Settings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	m, _ := s.Mail.GetSettings(ctx, "u1")
	if m.Enabled {
		t.Errorf("mail enabled by default")
	}

	// Checking before enabling must not enable.
	s.Mail.UpdateLastChecked(ctx, "u1", time.Now())
	if m, _ := s.Mail.GetSettings(ctx, "u1"); m.Enabled || m.LastChecked == nil {
		t.Errorf("after UpdateLastChecked = %+v", m)
	}

	s.Mail.SetEnabled(ctx, "u1", true)
	s.Mail.SetEnabled(ctx, "u2", true)
	s.Mail.SetEnabled(ctx, "u2", false)

	all, _ := s.Mail.GetAllEnabled(ctx)
	if len(all) != 1 || all[0].UserID != "u1" || all[0].LastChecked == nil {
		t.Errorf("GetAllEnabled = %+v", all)
	}
}
