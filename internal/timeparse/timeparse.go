// Package timeparse turns the loose time expressions people type into
// chat ("30m", "in 2 hours", "2:30pm", "14:00") into concrete times.
package timeparse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnparsable is returned when no supported form matches.
var ErrUnparsable = errors.New("unrecognized time expression")

var (
	unitPattern  = `(m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days)`
	relativeRe   = regexp.MustCompile(`^(?:in\s+)?(\d+)\s*` + unitPattern + `(?:\s*(\d+)\s*` + unitPattern + `)?(?:\s+later|\s+from\s+now)?$`)
	clockRe      = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	meridiemRe   = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	hhmmStrictRe = regexp.MustCompile(`^\d{1,2}:\d{1,2}$`)
)

// Parse resolves s relative to now.
//
// Relative forms ("30m", "1h30m", "in 2 hours", "1 day later") add to
// now. Clock forms ("14:30", "2pm", "2:30 pm") resolve to the next
// occurrence of that wall-clock time: today if still ahead of now,
// otherwise tomorrow. Seconds are truncated for clock forms.
func Parse(now time.Time, s string) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return time.Time{}, ErrUnparsable
	}

	if m := relativeRe.FindStringSubmatch(s); m != nil {
		d, err := unitDuration(m[1], m[2])
		if err != nil {
			return time.Time{}, err
		}
		if m[3] != "" {
			extra, err := unitDuration(m[3], m[4])
			if err != nil {
				return time.Time{}, err
			}
			d += extra
		}
		return now.Add(d), nil
	}

	if m := clockRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h > 23 || min > 59 {
			return time.Time{}, ErrUnparsable
		}
		return nextClock(now, h, min), nil
	}

	if m := meridiemRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || min > 59 {
			return time.Time{}, ErrUnparsable
		}
		switch {
		case m[3] == "pm" && h != 12:
			h += 12
		case m[3] == "am" && h == 12:
			h = 0
		}
		return nextClock(now, h, min), nil
	}

	return time.Time{}, ErrUnparsable
}

func unitDuration(num, unit string) (time.Duration, error) {
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, ErrUnparsable
	}
	switch unit[0] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, ErrUnparsable
}

func nextClock(now time.Time, hour, minute int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// ValidateClock checks an "HH:MM" value with hour 0-23 and minute 0-59.
// The returned message is suitable for showing to the user.
func ValidateClock(s string) (bool, string) {
	s = strings.TrimSpace(s)
	if !hhmmStrictRe.MatchString(s) {
		return false, "Invalid time format. Example: 08:00"
	}
	parts := strings.Split(s, ":")
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	if h > 23 || m > 59 {
		return false, "Invalid time (hour: 0-23, minute: 0-59)."
	}
	return true, ""
}

// NormalizeClock renders a valid clock value as zero-padded "HH:MM" so
// stored settings compare lexically.
func NormalizeClock(s string) string {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return s
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return s
	}
	return time.Date(2000, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
}

// FormatShort renders t as "01/02 15:04" for chat replies.
func FormatShort(t time.Time) string {
	return t.Format("01/02 15:04")
}
