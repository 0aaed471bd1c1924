package prompts

import (
	"fmt"
	"strings"
)

const searchAnswerTemplate = `The user searched the web for: %s

Search results:
%s

Answer the user's question using these results. Mention the source links that back up your answer. If the results do not answer the question, say so.`

// SearchAnswerPrompt asks the model to answer query from formatted
// search results.
func SearchAnswerPrompt(query, results string) string {
	return fmt.Sprintf(searchAnswerTemplate, query, results)
}

const attachmentTemplate = `The user attached a file named %s.

File content:
%s

User request: %s`

// DefaultAttachmentRequest is used when a file arrives with no message.
const DefaultAttachmentRequest = "Summarize this file and point out anything notable."

// AttachmentPrompt places a file's text ahead of the user's instruction.
func AttachmentPrompt(filename, content, instruction string) string {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultAttachmentRequest
	}
	return fmt.Sprintf(attachmentTemplate, filename, content, instruction)
}
