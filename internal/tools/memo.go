package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/nugget/aide/internal/store"
)

// MemoListLimit caps MEMO_LIST and the positions MEMO_DEL accepts.
const MemoListLimit = 20

var (
	memoSaveRe   = regexp.MustCompile(`\[MEMO_SAVE:([^\]]+)\]`)
	memoListRe   = regexp.MustCompile(`\[MEMO_LIST\]`)
	memoSearchRe = regexp.MustCompile(`\[MEMO_SEARCH:([^\]]+)\]`)
	memoDelRe    = regexp.MustCompile(`\[MEMO_DEL:\s*(\d+)\s*\]`)
)

// MemoTool saves, lists, searches and deletes memos.
type MemoTool struct {
	logger *slog.Logger
}

// NewMemoTool creates the memo tool.
func NewMemoTool(logger *slog.Logger) *MemoTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoTool{logger: logger}
}

func (t *MemoTool) Name() string { return "memo" }

func (t *MemoTool) Description() string {
	return "- Memo: When the user wants to save, list, search, or delete memos, use these tags:\n" +
		"  - [MEMO_SAVE:content] - Save a new memo (e.g. [MEMO_SAVE:buy milk])\n" +
		"  - [MEMO_LIST] - List saved memos\n" +
		"  - [MEMO_SEARCH:keyword] - Search memos containing the keyword (e.g. [MEMO_SEARCH:milk])\n" +
		"  - [MEMO_DEL:position] - Delete a memo by its position in the list (e.g. [MEMO_DEL:1] for the first)\n" +
		"    IMPORTANT: Use the position number (1st, 2nd, 3rd...) from the list, NOT the memo ID"
}

func (t *MemoTool) UsageRules() string {
	return "- For memo, detect when the user wants to save information for later (\"note this\", \"remember that\"), " +
		"list memos, search them, or delete one. When deleting, extract the position number (1st=1, 2nd=2, ...)."
}

func (t *MemoTool) TryExecute(ctx context.Context, reply string, tc *Context) *Result {
	if m := match(memoSaveRe, reply); m != nil {
		return t.save(ctx, tc, m[0])
	}
	if memoListRe.MatchString(reply) {
		return t.list(ctx, tc)
	}
	if m := match(memoSearchRe, reply); m != nil {
		return t.search(ctx, tc, m[0])
	}
	if m := match(memoDelRe, reply); m != nil {
		pos, _ := strconv.Atoi(m[0])
		return t.delete(ctx, tc, pos)
	}
	return nil
}

func (t *MemoTool) save(ctx context.Context, tc *Context, content string) *Result {
	id, err := tc.Store.Memos.Add(ctx, tc.UserID, content)
	if err != nil {
		t.logger.Warn("memo save failed", "user_id", tc.UserID, "error", err)
		return Text("Failed to save the memo: " + err.Error())
	}
	return Text(fmt.Sprintf("Memo saved:\n- ID: #%d\n- Content: %s", id, content))
}

func (t *MemoTool) list(ctx context.Context, tc *Context) *Result {
	memos, err := tc.Store.Memos.List(ctx, tc.UserID, MemoListLimit)
	if err != nil {
		return Text("Failed to load memos: " + err.Error())
	}
	if len(memos) == 0 {
		return Text("There are no saved memos.")
	}
	return Text(FormatMemos("Saved memos:", memos))
}

func (t *MemoTool) search(ctx context.Context, tc *Context, query string) *Result {
	memos, err := tc.Store.Memos.Search(ctx, tc.UserID, query, MemoListLimit)
	if err != nil {
		return Text("Failed to search memos: " + err.Error())
	}
	if len(memos) == 0 {
		return Text(fmt.Sprintf("No memos match '%s'.", query))
	}
	return Text(FormatMemos(fmt.Sprintf("Memos matching '%s':", query), memos))
}

func (t *MemoTool) delete(ctx context.Context, tc *Context, pos int) *Result {
	memo, err := DeleteMemoAt(ctx, tc.Store, tc.UserID, pos)
	if err != nil {
		return Text(err.Error())
	}
	return Text(fmt.Sprintf("Memo deleted:\n- #%d: %s", memo.ID, memo.Content))
}

// DeleteMemoAt deletes the memo at the 1-based position of the newest
// first listing. The returned error text is suitable for the user.
func DeleteMemoAt(ctx context.Context, s *store.Store, userID string, pos int) (*store.Memo, error) {
	memos, err := s.Memos.List(ctx, userID, MemoListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load memos: %w", err)
	}
	if pos < 1 || pos > len(memos) {
		return nil, fmt.Errorf("there are only %d memos; memo #%d does not exist", len(memos), pos)
	}
	target := memos[pos-1]
	if err := s.Memos.Delete(ctx, userID, target.ID); err != nil {
		return nil, fmt.Errorf("failed to delete memo #%d: %w", target.ID, err)
	}
	return &target, nil
}

// FormatMemos renders a numbered memo list under heading.
func FormatMemos(heading string, memos []store.Memo) string {
	lines := []string{heading}
	for i, m := range memos {
		lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, m.Content, m.CreatedAt.Format("2006-01-02 15:04")))
	}
	return strings.Join(lines, "\n")
}
