package commands

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/nugget/aide/internal/prompts"
)

// MaxAttachmentChars caps the file text placed in the prompt.
const MaxAttachmentChars = 8000

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".log": true, ".csv": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".xml": true,
	".html": true, ".css": true, ".sql": true, ".sh": true, ".bat": true,
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".c": true, ".cpp": true, ".h": true, ".rs": true, ".rb": true,
}

// IsTextFile reports whether an attachment name has a readable
// text or code extension.
func IsTextFile(name string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}

// HandleAttachment sends a text file and the user's instruction through
// the agent loop. History records the file name and instruction only.
func (r *Router) HandleAttachment(ctx context.Context, userID, filename string, data []byte, instruction string) Reply {
	if !IsTextFile(filename) {
		ext := filepath.Ext(filename)
		if ext == "" {
			ext = filename
		}
		return Reply{Text: "📎 I can't read " + ext + " files. Send a text or code file such as .txt, .md, .go, .py or .json."}
	}

	content := truncateChars(strings.ToValidUTF8(string(data), "�"), MaxAttachmentChars)
	stored := strings.TrimSpace("[File: " + filename + "] " + instruction)

	r.logger.Info("attachment received", "user_id", userID, "file", filename, "bytes", len(data))
	return r.chat(ctx, userID, func() (string, error) {
		return r.deps.Agent.HandlePrompt(ctx, userID, stored, prompts.AttachmentPrompt(filename, content, instruction))
	})
}

func truncateChars(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "\n...(truncated)"
}
