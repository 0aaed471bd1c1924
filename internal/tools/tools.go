// Package tools implements the tag protocol the assistant uses to act.
//
// The model requests an action by writing a tag such as [WEATHER:Seoul]
// or [MEMO_LIST] in its reply. Each [Tool] recognizes its own tags; the
// [Registry] asks tools in registration order and the first match runs.
package tools

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nugget/aide/internal/prompts"
	"github.com/nugget/aide/internal/store"
)

// Tool is one family of tags.
type Tool interface {
	// Name identifies the tool in logs.
	Name() string

	// Description goes into the "Available tools" section of the
	// system prompt.
	Description() string

	// UsageRules goes into the "Rules" section. Empty means none.
	UsageRules() string

	// TryExecute looks for the tool's tags in reply. It returns nil when
	// none is present. Expected failures are reported as result text,
	// never as a panic.
	TryExecute(ctx context.Context, reply string, tc *Context) *Result
}

// PersonaSnapshot is the persona in effect for one dispatch. The persona
// tool updates it in place so later rounds see the change.
type PersonaSnapshot struct {
	Name string
	Role string
	Tone string
}

// DefaultPersona is used for fields a user has never set.
var DefaultPersona = PersonaSnapshot{
	Name: "AI",
	Role: "personal assistant",
	Tone: "friendly",
}

// SnapshotOf converts a stored persona; nil yields nil.
func SnapshotOf(p *store.Persona) *PersonaSnapshot {
	if p == nil {
		return nil
	}
	return &PersonaSnapshot{Name: p.Name, Role: p.Role, Tone: p.Tone}
}

// Context carries the per-invocation state tools may read or change.
type Context struct {
	UserID  string
	Store   *store.Store
	Persona *PersonaSnapshot
}

// Result is a matched tool's output. Stop ends the dispatch loop and
// sends Text to the user verbatim instead of feeding it back to the
// model.
type Result struct {
	Text string
	Stop bool
}

// Text returns a result that is fed back to the model.
func Text(s string) *Result { return &Result{Text: s} }

// Stop returns a result that ends the dispatch loop.
func Stop(s string) *Result { return &Result{Text: s, Stop: true} }

// Registry holds tools in registration order.
type Registry struct {
	tools  []Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register appends t. Nil tools are ignored so optional tools can be
// registered unconditionally.
func (r *Registry) Register(t Tool) {
	if t == nil {
		return
	}
	r.tools = append(r.tools, t)
}

// Tools returns the registered tools in order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// TryExecute asks each tool in order and returns the first non-nil
// result along with the name of the tool that produced it.
func (r *Registry) TryExecute(ctx context.Context, reply string, tc *Context) (*Result, string) {
	for _, t := range r.tools {
		res := r.try(ctx, t, reply, tc)
		if res != nil {
			r.logger.Info("tool executed",
				"tool", t.Name(),
				"user_id", tc.UserID,
				"stop", res.Stop,
				"result_len", len(res.Text),
			)
			return res, t.Name()
		}
	}
	return nil, ""
}

// try runs one tool, converting a panic into a result so a faulty tool
// cannot take down the chat handler.
func (r *Registry) try(ctx context.Context, t Tool, reply string, tc *Context) (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", t.Name(), "panic", p)
			res = Text("The " + t.Name() + " tool failed unexpectedly.")
		}
	}()
	return t.TryExecute(ctx, reply, tc)
}

// BuildInstructions renders the tool block of the system prompt.
func (r *Registry) BuildInstructions() string {
	descriptions := make([]string, 0, len(r.tools))
	rules := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		descriptions = append(descriptions, t.Description())
		if u := t.UsageRules(); u != "" {
			rules = append(rules, u)
		}
	}
	return prompts.ToolInstructions(descriptions, rules)
}

// match returns the trimmed capture groups of the first match of re in
// reply, or nil.
func match(re *regexp.Regexp, reply string) []string {
	m := re.FindStringSubmatch(reply)
	if m == nil {
		return nil
	}
	out := make([]string, len(m)-1)
	for i, g := range m[1:] {
		out[i] = strings.TrimSpace(g)
	}
	return out
}
