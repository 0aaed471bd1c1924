package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/aide/internal/email"
	"github.com/nugget/aide/internal/recurrence"
	"github.com/nugget/aide/internal/store"
	"github.com/nugget/aide/internal/timeparse"
	"github.com/nugget/aide/internal/tools"
)

// memo handles "/m <text>", "/m list", "/m del <n>" and "/m find <q>".
func (r *Router) memo(ctx context.Context, userID, args string) string {
	sub, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(sub) {
	case "":
		return "Usage: /m <text> | /m list | /m del <n> | /m find <keyword>"
	case "list", "ls":
		memos, err := r.deps.Store.Memos.List(ctx, userID, tools.MemoListLimit)
		if err != nil {
			return "Failed to load memos: " + err.Error()
		}
		if len(memos) == 0 {
			return "📝 No memos yet. Save one with /m <text>."
		}
		return tools.FormatMemos("📝 **Memos**", memos)
	case "del", "delete", "rm":
		pos, err := strconv.Atoi(rest)
		if err != nil {
			return "Usage: /m del <n> (the number from /m list)"
		}
		m, err := tools.DeleteMemoAt(ctx, r.deps.Store, userID, pos)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("🗑️ Deleted memo: %s", m.Content)
	case "find", "search":
		if rest == "" {
			return "Usage: /m find <keyword>"
		}
		memos, err := r.deps.Store.Memos.Search(ctx, userID, rest, tools.MemoListLimit)
		if err != nil {
			return "Failed to search memos: " + err.Error()
		}
		if len(memos) == 0 {
			return fmt.Sprintf("No memos match '%s'.", rest)
		}
		return tools.FormatMemos(fmt.Sprintf("📝 Memos matching '%s':", rest), memos)
	}

	content := strings.TrimSpace(args)
	id, err := r.deps.Store.Memos.Add(ctx, userID, content)
	if err != nil {
		r.logger.Warn("memo save failed", "user_id", userID, "error", err)
		return "Failed to save the memo: " + err.Error()
	}
	return fmt.Sprintf("📝 Saved memo #%d: %s", id, content)
}

const reminderUsage = "Usage:\n" +
	"/r <time> <content> (e.g. /r 30m stretch, /r in 2 hours call mom, /r 2:30pm meeting)\n" +
	"/r daily <HH:MM> <content>\n" +
	"/r weekday <HH:MM> <content>\n" +
	"/r weekly <day> <HH:MM> <content>\n" +
	"/r list | /r del <id>"

// reminder handles the /r family.
func (r *Router) reminder(ctx context.Context, userID, args string) string {
	f := strings.Fields(args)
	if len(f) == 0 {
		return reminderUsage
	}

	now := r.now()
	switch strings.ToLower(f[0]) {
	case "list", "ls":
		return r.listReminders(ctx, userID)
	case "del", "delete", "rm":
		if len(f) != 2 {
			return "Usage: /r del <id>"
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(f[1], "#"), 10, 64)
		if err != nil {
			return "Usage: /r del <id>"
		}
		if err := r.deps.Store.Reminders.DeleteByID(ctx, userID, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Sprintf("Reminder #%d not found.", id)
			}
			return "Failed to delete the reminder: " + err.Error()
		}
		return fmt.Sprintf("🗑️ Deleted reminder #%d.", id)
	case "daily", "weekday":
		if len(f) < 3 {
			return reminderUsage
		}
		code := strings.ToLower(f[0])
		at, msg := firstOccurrence(now, code, f[1])
		if msg != "" {
			return msg
		}
		return r.addReminder(ctx, userID, strings.Join(f[2:], " "), at, code)
	case "weekly":
		if len(f) < 4 {
			return reminderUsage
		}
		day, ok := recurrence.ParseDayName(f[1])
		if !ok {
			return fmt.Sprintf("Unknown day '%s'. Use a day name such as mon or Friday.", f[1])
		}
		code := fmt.Sprintf("weekly:%d", day)
		at, msg := firstOccurrence(now, code, f[2])
		if msg != "" {
			return msg
		}
		return r.addReminder(ctx, userID, strings.Join(f[3:], " "), at, code)
	}

	at, content, ok := splitTimePrefix(now, f)
	if !ok {
		return fmt.Sprintf("Could not understand the time in '%s'.\n\n%s", args, reminderUsage)
	}
	return r.addReminder(ctx, userID, content, at, "")
}

// splitTimePrefix finds the longest leading run of up to three words
// that parses as a time and leaves some content behind.
func splitTimePrefix(now time.Time, words []string) (time.Time, string, bool) {
	for n := min(3, len(words)-1); n >= 1; n-- {
		at, err := timeparse.Parse(now, strings.Join(words[:n], " "))
		if err == nil {
			return at, strings.Join(words[n:], " "), true
		}
	}
	return time.Time{}, "", false
}

// firstOccurrence is the first time at or after now that clock falls
// on a day the code allows. The message is non-empty on bad input.
func firstOccurrence(now time.Time, code, clock string) (time.Time, string) {
	if ok, why := timeparse.ValidateClock(clock); !ok {
		return time.Time{}, why
	}
	parts := strings.Split(clock, ":")
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])

	at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	kind, day := recurrence.Parse(code)
	for i := 0; i < 8; i++ {
		if at.After(now) && dayAllowed(kind, day, at.Weekday()) {
			break
		}
		at = at.AddDate(0, 0, 1)
	}
	return at, ""
}

func dayAllowed(kind recurrence.Kind, day int, wd time.Weekday) bool {
	switch kind {
	case recurrence.Weekday:
		return wd != time.Saturday && wd != time.Sunday
	case recurrence.Weekly:
		return recurrence.DayIndex(wd) == day
	}
	return true
}

func (r *Router) addReminder(ctx context.Context, userID, content string, at time.Time, code string) string {
	id, err := r.deps.Store.Reminders.Add(ctx, userID, content, at, code)
	if err != nil {
		r.logger.Warn("reminder add failed", "user_id", userID, "error", err)
		return "Failed to save the reminder: " + err.Error()
	}
	msg := fmt.Sprintf("⏰ Reminder set\n- ID: #%d\n- Time: %s\n- Content: %s", id, timeparse.FormatShort(at), content)
	if label := recurrence.Label(code); label != "" {
		msg += "\n- Repeat: " + label
	}
	return msg
}

func (r *Router) listReminders(ctx context.Context, userID string) string {
	all, err := r.deps.Store.Reminders.GetAll(ctx, userID)
	if err != nil {
		return "Failed to load reminders: " + err.Error()
	}
	if len(all) == 0 {
		return "⏰ No reminders set."
	}
	lines := []string{"⏰ **Reminders**"}
	for _, rem := range all {
		line := fmt.Sprintf("#%d %s %s", rem.ID, timeparse.FormatShort(rem.RemindAt), rem.Content)
		if label := recurrence.Label(rem.Recurrence); label != "" {
			line += " 🔁 " + label
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// briefing handles "/briefing [show|now|on|off|time HH:MM|city X]".
func (r *Router) briefing(ctx context.Context, userID, args string) string {
	sub, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)

	var u store.BriefingUpdate
	var msg string
	switch strings.ToLower(sub) {
	case "", "show":
		b, err := r.deps.Store.Briefing.Effective(ctx, userID)
		if err != nil {
			return "Failed to load briefing settings: " + err.Error()
		}
		return tools.FormatBriefingSettings(b)
	case "now":
		if r.deps.Briefing == nil {
			return "Briefings are not configured."
		}
		b, err := r.deps.Store.Briefing.Effective(ctx, userID)
		if err != nil {
			return "Failed to load briefing settings: " + err.Error()
		}
		return r.deps.Briefing.Generate(ctx, userID, b.City)
	case "on", "off":
		on := strings.EqualFold(sub, "on")
		u.Enabled = &on
		msg = "🔕 Daily briefing disabled."
		if on {
			msg = "🔔 Daily briefing enabled."
		}
	case "time":
		if ok, why := timeparse.ValidateClock(rest); !ok {
			return why
		}
		v := timeparse.NormalizeClock(rest)
		u.Time = &v
		msg = fmt.Sprintf("🕗 Briefing time set to %s.", v)
	case "city":
		if rest == "" {
			return "Usage: /briefing city <name>"
		}
		u.City = &rest
		msg = fmt.Sprintf("🏙️ Briefing city set to %s.", rest)
	default:
		return "Usage: /briefing [show|now|on|off|time HH:MM|city <name>]"
	}

	if _, err := r.deps.Store.Briefing.SetSettings(ctx, userID, u); err != nil {
		r.logger.Warn("briefing settings update failed", "user_id", userID, "error", err)
		return "Failed to update briefing settings: " + err.Error()
	}
	return msg
}

// mail handles "/mail [check|on|off]".
func (r *Router) mail(ctx context.Context, userID, args string) string {
	if r.deps.Mail == nil {
		return "📭 Mail is not configured."
	}
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "", "check":
		found := r.deps.Mail.CheckAll(ctx)
		if len(found) == 0 {
			return "📭 No unread mail."
		}
		return email.FormatDigest("📬 **Unread mail**", found)
	case "on", "off":
		on := strings.EqualFold(strings.TrimSpace(args), "on")
		if err := r.deps.Store.Mail.SetEnabled(ctx, userID, on); err != nil {
			return "Failed to update mail settings: " + err.Error()
		}
		if on {
			return "🔔 New-mail notifications enabled."
		}
		return "🔕 New-mail notifications disabled."
	default:
		return "Usage: /mail [check|on|off]"
	}
}
