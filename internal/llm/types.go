package llm

import "time"

// Roles used in [Message].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn sent to or received from the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the provider-neutral reply.
type ChatResponse struct {
	Model   string
	Message Message

	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// System is shorthand for a system-role message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User is shorthand for a user-role message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant is shorthand for an assistant-role message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }
