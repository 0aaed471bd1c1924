package agent

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/nugget/aide/internal/fetch"
)

// charsPerToken approximates cl100k density when the encoder is
// unavailable.
const charsPerToken = 4

// Tokenizer truncates text to a token budget. It uses the cl100k_base
// encoding when its BPE table can be loaded and falls back to a
// character budget otherwise.
type Tokenizer struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTokenizer loads cl100k_base. Offline hosts without a cached table
// get a character-based tokenizer.
func NewTokenizer() *Tokenizer {
	t := &Tokenizer{}
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		t.enc = enc
	}
	return t
}

// Precise reports whether real token counts are available.
func (t *Tokenizer) Precise() bool {
	return t.enc != nil
}

// Count returns the token count of s.
func (t *Tokenizer) Count(s string) int {
	if s == "" {
		return 0
	}
	if t.enc == nil {
		n := len([]rune(s))
		return (n + charsPerToken - 1) / charsPerToken
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(s, nil, nil))
}

// Truncate cuts s to at most budget tokens and reports whether it cut.
func (t *Tokenizer) Truncate(s string, budget int) (string, bool) {
	if budget <= 0 {
		return s, false
	}
	if t.enc == nil {
		out := fetch.TruncateRunes(s, budget*charsPerToken)
		return out, len(out) < len(s)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	tokens := t.enc.Encode(s, nil, nil)
	if len(tokens) <= budget {
		return s, false
	}
	return t.enc.Decode(tokens[:budget]), true
}
