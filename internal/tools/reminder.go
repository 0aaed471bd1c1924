package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/nugget/aide/internal/timeparse"
)

var reminderRe = regexp.MustCompile(`\[REMINDER:([^,\]]+),([^\]]+)\]`)

// ReminderTool schedules one-shot reminders from natural time
// expressions.
type ReminderTool struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewReminderTool creates the reminder tool.
func NewReminderTool(logger *slog.Logger) *ReminderTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderTool{now: time.Now, logger: logger}
}

func (t *ReminderTool) Name() string { return "reminder" }

func (t *ReminderTool) Description() string {
	return "- Reminder: When the user wants to set a reminder, output [REMINDER:time,content]\n" +
		"  - time: relative time like \"30m\", \"1h\", \"1h30m\", \"in 10 minutes\" or absolute time like \"14:00\", \"2pm\", \"2:30pm\"\n" +
		"  - content: what to remind about\n" +
		"  - e.g. [REMINDER:30m,meeting starts], [REMINDER:14:00,lunch], [REMINDER:3pm,prepare the talk]"
}

func (t *ReminderTool) UsageRules() string {
	return "- For reminder, extract the time and what to remind. The user may say things like \"remind me in 30 minutes\" or \"tell me to take my pills at 3pm\"."
}

func (t *ReminderTool) TryExecute(ctx context.Context, reply string, tc *Context) *Result {
	m := match(reminderRe, reply)
	if m == nil {
		return nil
	}
	expr, content := m[0], m[1]

	at, err := timeparse.Parse(t.now(), expr)
	if err != nil {
		return Text(fmt.Sprintf("Failed to parse time '%s'. Could not set the reminder.", expr))
	}

	id, err := tc.Store.Reminders.Add(ctx, tc.UserID, content, at, "")
	if err != nil {
		t.logger.Warn("reminder add failed", "user_id", tc.UserID, "error", err)
		return Text("Failed to save the reminder: " + err.Error())
	}

	return Text(fmt.Sprintf("Reminder set successfully:\n- ID: #%d\n- Time: %s\n- Content: %s",
		id, timeparse.FormatShort(at), content))
}
