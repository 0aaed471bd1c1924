package prompts

import (
	"fmt"
	"strings"
)

const compactionTemplate = `The following is an earlier conversation between the user and an AI assistant. Summarize the key information concisely.

Keep:
- the user's name, preferences, habits and other personal details
- ongoing tasks or projects
- decisions made and promises given
- the overall tone of the relationship
%s
Conversation:
%s

Summarize the above in 3-5 sentences in the language the conversation uses. Leave out greetings and small talk.`

const existingSummarySection = `
Existing summary:
%s
`

// CompactionPrompt returns the prompt that folds transcript into the
// running summary. transcript is "[ROLE]: content" lines; existing may
// be empty.
func CompactionPrompt(existing, transcript string) string {
	var prior string
	if s := strings.TrimSpace(existing); s != "" {
		prior = fmt.Sprintf(existingSummarySection, s)
	}
	return fmt.Sprintf(compactionTemplate, prior, transcript)
}
