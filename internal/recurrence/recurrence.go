// Package recurrence computes the next occurrence of a repeating
// reminder and renders schedule codes for display.
//
// A code is one of "daily", "weekday", or "weekly:N" where N is a day
// index with 0 = Monday. The empty code means a one-shot reminder.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layout is the stored timestamp format for reminder times.
const Layout = "2006-01-02 15:04:05"

// Kind identifies the repeat pattern of a code.
type Kind string

const (
	None    Kind = ""        // One-shot
	Daily   Kind = "daily"   // Every day
	Weekday Kind = "weekday" // Monday through Friday
	Weekly  Kind = "weekly"  // Once a week on a fixed day
	Unknown Kind = "unknown" // Not a recognized code
)

// dayNames is indexed by the code's day number (0 = Monday).
var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Parse classifies a code. For [Weekly] the second return value is the
// day index 0..6 (Monday first).
func Parse(code string) (Kind, int) {
	code = strings.TrimSpace(code)
	switch {
	case code == "":
		return None, 0
	case code == "daily":
		return Daily, 0
	case code == "weekday":
		return Weekday, 0
	case strings.HasPrefix(code, "weekly:"):
		n, err := strconv.Atoi(strings.TrimPrefix(code, "weekly:"))
		if err != nil || n < 0 || n > 6 {
			return Unknown, 0
		}
		return Weekly, n
	default:
		return Unknown, 0
	}
}

// WeeklyCode returns the code for a weekly repeat on the given weekday.
func WeeklyCode(day time.Weekday) string {
	return fmt.Sprintf("weekly:%d", DayIndex(day))
}

// DayIndex converts a [time.Weekday] to the Monday-first index used in
// codes.
func DayIndex(day time.Weekday) int {
	return (int(day) + 6) % 7
}

// ParseDayName resolves an English day name or its three-letter
// abbreviation to a Monday-first index.
func ParseDayName(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	for i, name := range dayNames {
		lower := strings.ToLower(name)
		if s == lower || (len(s) >= 3 && strings.HasPrefix(lower, s)) {
			return i, true
		}
	}
	return 0, false
}

// CalcNext returns the next occurrence after remindAt.
//
// Weekly codes advance exactly seven days and do not re-snap to the
// named day; remindAt is expected to already fall on it. Unrecognized
// codes advance one day.
func CalcNext(remindAt time.Time, code string) time.Time {
	kind, _ := Parse(code)
	switch kind {
	case Weekday:
		next := remindAt.AddDate(0, 0, 1)
		for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
		return next
	case Weekly:
		return remindAt.AddDate(0, 0, 7)
	default:
		return remindAt.AddDate(0, 0, 1)
	}
}

// CalcNextString is [CalcNext] over the stored [Layout] representation.
func CalcNextString(remindAt, code string) (string, error) {
	t, err := time.ParseInLocation(Layout, remindAt, time.Local)
	if err != nil {
		return "", fmt.Errorf("parse remind_at %q: %w", remindAt, err)
	}
	return CalcNext(t, code).Format(Layout), nil
}

// Label renders a code for display. Unrecognized codes are returned
// unchanged.
func Label(code string) string {
	kind, day := Parse(code)
	switch kind {
	case None:
		return ""
	case Daily:
		return "daily"
	case Weekday:
		return "weekday"
	case Weekly:
		return "weekly on " + dayNames[day]
	default:
		return code
	}
}
