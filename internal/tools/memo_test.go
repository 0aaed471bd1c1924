package tools

import (
	"context"
	"strings"
	"testing"
)

func TestMemoTool_Flow(t *testing.T) {
	ctx := context.Background()
	tc := testContext(t)
	tool := NewMemoTool(nil)

	for _, m := range []string{"buy milk", "call mom", "milk tea recipe"} {
		if res := tool.TryExecute(ctx, "[MEMO_SAVE:"+m+"]", tc); res == nil || !strings.HasPrefix(res.Text, "Memo saved") {
			t.Fatalf("save %q = %+v", m, res)
		}
	}

	res := tool.TryExecute(ctx, "[MEMO_LIST]", tc)
	if res == nil {
		t.Fatal("list returned nil")
	}
	if !strings.Contains(res.Text, "1. milk tea recipe") || !strings.Contains(res.Text, "3. buy milk") {
		t.Errorf("list not newest-first:\n%s", res.Text)
	}

	res = tool.TryExecute(ctx, "[MEMO_SEARCH:milk]", tc)
	if res == nil || strings.Contains(res.Text, "call mom") || !strings.Contains(res.Text, "buy milk") {
		t.Errorf("search = %+v", res)
	}

	res = tool.TryExecute(ctx, "[MEMO_DEL:2]", tc)
	if res == nil || !strings.Contains(res.Text, "call mom") {
		t.Fatalf("delete = %+v", res)
	}
	left, _ := tc.Store.Memos.List(ctx, "u1", 20)
	if len(left) != 2 {
		t.Errorf("remaining = %d, want 2", len(left))
	}

	res = tool.TryExecute(ctx, "[MEMO_DEL:5]", tc)
	if res == nil || !strings.Contains(res.Text, "only 2 memos") {
		t.Errorf("out-of-range delete = %+v", res)
	}
}

func TestMemoTool_Empty(t *testing.T) {
	tc := testContext(t)
	tool := NewMemoTool(nil)
	if res := tool.TryExecute(context.Background(), "[MEMO_LIST]", tc); res == nil || res.Text != "There are no saved memos." {
		t.Errorf("empty list = %+v", res)
	}
	if res := tool.TryExecute(context.Background(), "[MEMO_SEARCH:x]", tc); res == nil || !strings.Contains(res.Text, "No memos match 'x'") {
		t.Errorf("empty search = %+v", res)
	}
	if res := tool.TryExecute(context.Background(), "nothing", tc); res != nil {
		t.Errorf("no tag = %+v", res)
	}
}
