package tools

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

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

	s, err := store.New(db, store.Options{BriefingCity: "Seoul", BriefingTime: "08:00"})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return s
}

func testContext(t *testing.T) *Context {
	return &Context{UserID: "u1", Store: testStore(t)}
}

type fakeTool struct {
	name  string
	tag   string
	rules string
	res   *Result
	calls int
	panic bool
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "- " + f.name + ": [" + f.tag + "]" }
func (f *fakeTool) UsageRules() string  { return f.rules }

func (f *fakeTool) TryExecute(_ context.Context, reply string, _ *Context) *Result {
	f.calls++
	if f.panic {
		panic("boom")
	}
	if !strings.Contains(reply, "["+f.tag+"]") {
		return nil
	}
	return f.res
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	a := &fakeTool{name: "a", tag: "A", res: Text("from a")}
	b := &fakeTool{name: "b", tag: "B", res: Stop("from b")}
	c := &fakeTool{name: "c", tag: "B", res: Text("from c")}

	r := NewRegistry(nil)
	r.Register(a)
	r.Register(nil)
	r.Register(b)
	r.Register(c)

	if len(r.Tools()) != 3 {
		t.Fatalf("Tools() = %d, want 3", len(r.Tools()))
	}

	res, name := r.TryExecute(context.Background(), "sure [B]", &Context{UserID: "u"})
	if res == nil || name != "b" || res.Text != "from b" || !res.Stop {
		t.Fatalf("TryExecute = %+v, %q", res, name)
	}
	if c.calls != 0 {
		t.Errorf("tool after the match was consulted %d times", c.calls)
	}

	res, name = r.TryExecute(context.Background(), "no tags here", &Context{UserID: "u"})
	if res != nil || name != "" {
		t.Errorf("no-match = %+v, %q", res, name)
	}
}

func TestRegistry_PanicBecomesResult(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{name: "bad", panic: true})
	r.Register(&fakeTool{name: "good", tag: "G", res: Text("ok")})

	res, name := r.TryExecute(context.Background(), "[G]", &Context{UserID: "u"})
	if res == nil || name != "bad" || !strings.Contains(res.Text, "bad tool failed") {
		t.Errorf("TryExecute = %+v, %q", res, name)
	}
}

func TestRegistry_BuildInstructions(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{name: "one", tag: "ONE", rules: "- rule one"})
	r.Register(&fakeTool{name: "two", tag: "TWO"})
	r.Register(&fakeTool{name: "three", tag: "THREE", rules: "- rule three"})

	got := r.BuildInstructions()
	if !strings.Contains(got, "- one: [ONE]\n- two: [TWO]\n- three: [THREE]") {
		t.Errorf("descriptions out of order:\n%s", got)
	}
	if !strings.Contains(got, "- rule one\n- rule three\n") {
		t.Errorf("rules wrong:\n%s", got)
	}
	if !strings.HasPrefix(strings.TrimSpace(got), "You have access to the following tools") {
		t.Errorf("boilerplate missing:\n%s", got)
	}
}

func TestRegistry_SkipsDisabledFilesystemTool(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(NewFilesystemTool("", nil))
	r.Register(&fakeTool{name: "one", tag: "ONE"})

	if n := len(r.Tools()); n != 1 {
		t.Fatalf("registered %d tools, want 1", n)
	}
	if got := r.BuildInstructions(); !strings.Contains(got, "- one: [ONE]") {
		t.Errorf("instructions:\n%s", got)
	}
}

func TestSnapshotOf(t *testing.T) {
	if SnapshotOf(nil) != nil {
		t.Error("nil persona should give nil snapshot")
	}
	s := SnapshotOf(&store.Persona{Name: "Jay", Role: "r", Tone: "t"})
	if s.Name != "Jay" || s.Role != "r" || s.Tone != "t" {
		t.Errorf("snapshot = %+v", s)
	}
}
