package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nugget/aide/internal/store"
	"github.com/nugget/aide/internal/timeparse"
)

var (
	briefingSetRe = regexp.MustCompile(`\[BRIEFING_SET:([^,\]]+),([^\]]+)\]`)
	briefingGetRe = regexp.MustCompile(`\[BRIEFING_GET\]`)
)

// BriefingTool reads and changes the daily briefing settings.
type BriefingTool struct {
	logger *slog.Logger
}

// NewBriefingTool creates the briefing settings tool.
func NewBriefingTool(logger *slog.Logger) *BriefingTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &BriefingTool{logger: logger}
}

func (t *BriefingTool) Name() string { return "briefing" }

func (t *BriefingTool) Description() string {
	return "- Briefing: When the user wants to change daily briefing settings or check current settings, use these tags:\n" +
		"  - [BRIEFING_SET:key,value] - Change a setting (e.g. [BRIEFING_SET:time,07:00], [BRIEFING_SET:city,Busan], [BRIEFING_SET:enabled,false])\n" +
		"  - [BRIEFING_GET] - Get current briefing settings"
}

func (t *BriefingTool) UsageRules() string {
	return "- For briefing, detect when the user wants to change settings (\"send the briefing at 7\" → [BRIEFING_SET:time,07:00], " +
		"\"turn the briefing off\" → [BRIEFING_SET:enabled,false]) or check settings → [BRIEFING_GET]."
}

func (t *BriefingTool) TryExecute(ctx context.Context, reply string, tc *Context) *Result {
	if m := match(briefingSetRe, reply); m != nil {
		return t.set(ctx, tc, strings.ToLower(m[0]), m[1])
	}
	if briefingGetRe.MatchString(reply) {
		b, err := tc.Store.Briefing.Effective(ctx, tc.UserID)
		if err != nil {
			return Text("Failed to load briefing settings: " + err.Error())
		}
		return Text(FormatBriefingSettings(b))
	}
	return nil
}

func (t *BriefingTool) set(ctx context.Context, tc *Context, key, value string) *Result {
	var u store.BriefingUpdate
	var msg string

	switch key {
	case "time":
		if ok, why := timeparse.ValidateClock(value); !ok {
			return Text(why)
		}
		v := timeparse.NormalizeClock(value)
		u.Time = &v
		msg = fmt.Sprintf("Briefing time set to %s.", v)
	case "city":
		u.City = &value
		msg = fmt.Sprintf("Briefing city set to %s.", value)
	case "enabled":
		on := ParseBool(value)
		u.Enabled = &on
		msg = "Briefing disabled."
		if on {
			msg = "Briefing enabled."
		}
	default:
		return Text(fmt.Sprintf("Unknown briefing setting: %s", key))
	}

	if _, err := tc.Store.Briefing.SetSettings(ctx, tc.UserID, u); err != nil {
		t.logger.Warn("briefing settings update failed", "user_id", tc.UserID, "key", key, "error", err)
		return Text("Failed to update briefing settings: " + err.Error())
	}
	return Text(msg)
}

// ParseBool accepts the loose truthy words people type.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes", "y":
		return true
	}
	return false
}

// FormatBriefingSettings renders settings for a chat reply.
func FormatBriefingSettings(b store.BriefingSettings) string {
	status := "disabled"
	if b.Enabled {
		status = "enabled"
	}
	last := "never"
	if b.LastSent != nil {
		last = b.LastSent.Format(store.TimeLayout)
	}
	return fmt.Sprintf("Briefing settings:\n- Status: %s\n- Time: %s\n- City: %s\n- Last sent: %s",
		status, b.Time, b.City, last)
}
