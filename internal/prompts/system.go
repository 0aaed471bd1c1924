package prompts

import (
	"fmt"
	"strings"
)

// SystemParams are the dynamic parts of the chat system prompt.
type SystemParams struct {
	// Persona fields. An empty Name selects the generic assistant
	// preamble.
	Name string
	Role string
	Tone string

	// Model is the backend model name, mentioned so the assistant can
	// answer "what are you running on".
	Model string

	// Summary is the rolling summary of older turns, if any.
	Summary string

	// Instructions is the tool instruction block.
	Instructions string
}

const personaTemplate = `You are %s, a personal AI assistant.
Your role: %s
Your tone/style: %s

You are running locally via %s.
Always stay in character. Answer in the same language the user uses.
Never claim to be Claude, ChatGPT, or any other AI.`

const genericTemplate = `You are a personal AI assistant powered by %s.
Be concise, helpful, and friendly. Answer in the same language the user uses.
Never claim to be Claude, ChatGPT, or any other AI.`

const summarySection = `

## Earlier conversation (summary)
%s`

// SystemPrompt assembles the system prompt for one chat round.
func SystemPrompt(p SystemParams) string {
	var sb strings.Builder
	if p.Name != "" {
		sb.WriteString(fmt.Sprintf(personaTemplate, p.Name, p.Role, p.Tone, p.Model))
	} else {
		sb.WriteString(fmt.Sprintf(genericTemplate, p.Model))
	}
	if s := strings.TrimSpace(p.Summary); s != "" {
		sb.WriteString(fmt.Sprintf(summarySection, s))
	}
	if p.Instructions != "" {
		sb.WriteString("\n")
		sb.WriteString(p.Instructions)
	}
	return sb.String()
}

const toolPreamble = `
You have access to the following tools. When you need real-time information or to perform an action, use them by outputting the exact tag format.
IMPORTANT: Output ONLY the tag with no other text when you use a tool.

Available tools:
`

// ToolInstructions renders the tool block from each tool's description
// and its usage rules. Empty rules are skipped.
func ToolInstructions(descriptions, rules []string) string {
	var sb strings.Builder
	sb.WriteString(toolPreamble)
	sb.WriteString(strings.Join(descriptions, "\n"))
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- Use tools only when the user is clearly asking for real-time information or requesting an action.\n")
	for _, r := range rules {
		if r == "" {
			continue
		}
		sb.WriteString(r)
		sb.WriteString("\n")
	}
	sb.WriteString("- For translation requests, translate directly without using any tool tag.\n")
	sb.WriteString("- Output ONLY the tool tag, nothing else. Do not add any explanation before or after the tag.")
	return sb.String()
}

// ToolFollowUp wraps a tool result as the next user turn.
func ToolFollowUp(result string) string {
	return fmt.Sprintf("[Tool Result]\n%s\n\nBased on this data, answer the user's original question naturally.", result)
}
