package discord

import (
	"strings"
	"unicode/utf8"
)

// SplitMessage breaks text into parts of at most limit runes. It cuts
// at the last newline inside the window, then the last space, and only
// splits mid-word when neither exists. Empty text yields no parts.
func SplitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	for utf8.RuneCountInString(text) > limit {
		window := string([]rune(text)[:limit])

		cut := strings.LastIndex(window, "\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, " ")
		}
		if cut <= 0 {
			cut = len(window)
		}

		parts = append(parts, strings.TrimRight(text[:cut], " \n"))
		text = strings.TrimLeft(text[cut:], " \n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
