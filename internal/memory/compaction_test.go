package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/nugget/aide/internal/llm"
	"github.com/nugget/aide/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := store.New(db, store.Options{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return s
}

func seed(t *testing.T, s *store.Store, userID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := s.Conversation.AddMessage(ctx, userID, role, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}
}

type fakeSummarizer struct {
	calls    int
	existing string
	got      []store.Message
	out      string
	err      error
}

func (f *fakeSummarizer) Summarize(_ context.Context, existing string, messages []store.Message) (string, error) {
	f.calls++
	f.existing = existing
	f.got = messages
	return f.out, f.err
}

func TestCompact_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		count     int
		wantCalls int
	}{
		{19, 0},
		{20, 0},
		{21, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("count=%d", tt.count), func(t *testing.T) {
			s := testStore(t)
			seed(t, s, "u1", tt.count)
			sum := &fakeSummarizer{out: "summary"}
			c := NewCompactor(s.Conversation, DefaultCompactionConfig(), sum, nil)

			if _, err := c.Compact(context.Background(), "u1"); err != nil {
				t.Fatalf("Compact: %v", err)
			}
			if sum.calls != tt.wantCalls {
				t.Errorf("summarizer calls = %d, want %d", sum.calls, tt.wantCalls)
			}
		})
	}
}

func TestCompact_FoldsAllButRecent(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	seed(t, s, "u1", 25)
	seed(t, s, "other", 3)

	sum := &fakeSummarizer{out: "  the gist  "}
	c := NewCompactor(s.Conversation, DefaultCompactionConfig(), sum, nil)

	folded, err := c.Compact(ctx, "u1")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if folded != 15 || len(sum.got) != 15 {
		t.Fatalf("folded = %d, summarized %d, want 15", folded, len(sum.got))
	}
	if sum.got[0].Content != "turn 0" || sum.got[14].Content != "turn 14" {
		t.Errorf("wrong candidates: first %q last %q", sum.got[0].Content, sum.got[14].Content)
	}

	rest, _ := s.Conversation.GetAllMessages(ctx, "u1")
	if len(rest) != 10 || rest[0].Content != "turn 15" {
		t.Errorf("remaining = %d starting %q", len(rest), rest[0].Content)
	}
	if n, _ := s.Conversation.Count(ctx, "other"); n != 3 {
		t.Errorf("other user's history touched: %d", n)
	}

	got, _ := s.Conversation.GetSummary(ctx, "u1")
	if got == nil || got.Text != "the gist" || got.MessageCount != 15 {
		t.Errorf("summary = %+v", got)
	}
}

func TestCompact_MergesExistingSummary(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	if err := s.Conversation.SaveSummary(ctx, "u1", "old facts", 15); err != nil {
		t.Fatal(err)
	}
	seed(t, s, "u1", 21)

	sum := &fakeSummarizer{out: "merged"}
	c := NewCompactor(s.Conversation, DefaultCompactionConfig(), sum, nil)
	if _, err := c.Compact(ctx, "u1"); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if sum.existing != "old facts" {
		t.Errorf("existing = %q", sum.existing)
	}
	got, _ := s.Conversation.GetSummary(ctx, "u1")
	if got.Text != "merged" || got.MessageCount != 26 {
		t.Errorf("summary = %+v, want merged/26", got)
	}
}

func TestCompact_FailureLeavesHistory(t *testing.T) {
	ctx := context.Background()

	for name, sum := range map[string]*fakeSummarizer{
		"error": {err: errors.New("llm down")},
		"empty": {out: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			s := testStore(t)
			seed(t, s, "u1", 30)
			c := NewCompactor(s.Conversation, DefaultCompactionConfig(), sum, nil)

			if _, err := c.Compact(ctx, "u1"); err == nil {
				t.Fatal("expected error")
			}
			if n, _ := s.Conversation.Count(ctx, "u1"); n != 30 {
				t.Errorf("count = %d, want 30", n)
			}
			if got, _ := s.Conversation.GetSummary(ctx, "u1"); got != nil {
				t.Errorf("summary saved on failure: %+v", got)
			}
		})
	}
}

// failingSave wraps a real store but refuses to save summaries.
type failingSave struct {
	ConversationStore
	deletes int
}

func (f *failingSave) SaveSummary(context.Context, string, string, int) error {
	return errors.New("disk full")
}

func (f *failingSave) DeleteMessages(ctx context.Context, userID string, ids []int64) (int, error) {
	f.deletes++
	return f.ConversationStore.DeleteMessages(ctx, userID, ids)
}

func TestCompact_SaveFailureDeletesNothing(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	seed(t, s, "u1", 22)

	fs := &failingSave{ConversationStore: s.Conversation}
	c := NewCompactor(fs, DefaultCompactionConfig(), &fakeSummarizer{out: "ok"}, nil)
	if _, err := c.Compact(ctx, "u1"); err == nil {
		t.Fatal("expected error")
	}
	if fs.deletes != 0 {
		t.Errorf("DeleteMessages called %d times", fs.deletes)
	}
}

func TestTranscript(t *testing.T) {
	got := Transcript([]store.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	if got != "[USER]: hi\n[ASSISTANT]: hello" {
		t.Errorf("Transcript = %q", got)
	}
}

type recordingClient struct {
	model    string
	messages []llm.Message
}

func (r *recordingClient) Chat(_ context.Context, model string, messages []llm.Message) (*llm.ChatResponse, error) {
	r.model = model
	r.messages = messages
	return &llm.ChatResponse{Message: llm.Assistant("folded")}, nil
}

func (r *recordingClient) Ping(context.Context) error { return nil }

func TestLLMSummarizer(t *testing.T) {
	rc := &recordingClient{}
	s := NewLLMSummarizer(rc, "qwen2.5:7b")

	out, err := s.Summarize(context.Background(), "prior", []store.Message{{Role: "user", Content: "remember milk"}})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "folded" || rc.model != "qwen2.5:7b" {
		t.Errorf("out = %q model = %q", out, rc.model)
	}
	if len(rc.messages) != 1 || rc.messages[0].Role != llm.RoleUser {
		t.Fatalf("messages = %+v", rc.messages)
	}
	p := rc.messages[0].Content
	if !strings.Contains(p, "prior") || !strings.Contains(p, "[USER]: remember milk") {
		t.Errorf("prompt = %q", p)
	}
}
