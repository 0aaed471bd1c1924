package tools

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nugget/aide/internal/store"
)

var personaRe = regexp.MustCompile(`\[PERSONA:([^,\]]+),([^,\]]+),([^\]]+)\]`)

// keepField in a PERSONA tag leaves that field unchanged.
const keepField = "_"

// PersonaTool changes the assistant's name, role or tone.
type PersonaTool struct {
	logger *slog.Logger
}

// NewPersonaTool creates the persona tool.
func NewPersonaTool(logger *slog.Logger) *PersonaTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersonaTool{logger: logger}
}

func (t *PersonaTool) Name() string { return "persona" }

func (t *PersonaTool) Description() string {
	return "- Persona: When the user wants to change your name, role, or speaking style, output [PERSONA:name,role,tone]\n" +
		"  - name: new name (use _ to keep current)\n" +
		"  - role: new role description (use _ to keep current)\n" +
		"  - tone: new speaking style (use _ to keep current)\n" +
		"  - e.g. [PERSONA:Jay,_,_] (change name only), [PERSONA:_,_,casual] (change tone only), [PERSONA:Jay,secretary,polite] (change all)"
}

func (t *PersonaTool) UsageRules() string {
	return "- For persona, only use when the user explicitly asks to change your name, role, or tone. Use _ for fields that should stay the same."
}

func (t *PersonaTool) TryExecute(ctx context.Context, reply string, tc *Context) *Result {
	m := match(personaRe, reply)
	if m == nil {
		return nil
	}

	cur := DefaultPersona
	if tc.Persona != nil {
		cur = *tc.Persona
	}

	next := cur
	var changes []string
	if m[0] != keepField {
		next.Name = m[0]
		changes = append(changes, "- Name: "+next.Name)
	}
	if m[1] != keepField {
		next.Role = m[1]
		changes = append(changes, "- Role: "+next.Role)
	}
	if m[2] != keepField {
		next.Tone = m[2]
		changes = append(changes, "- Tone: "+next.Tone)
	}

	err := tc.Store.Personas.Save(ctx, tc.UserID, store.Persona{
		Name: next.Name,
		Role: next.Role,
		Tone: next.Tone,
	})
	if err != nil {
		t.logger.Warn("persona save failed", "user_id", tc.UserID, "error", err)
		return Text("Failed to update the persona: " + err.Error())
	}

	if tc.Persona != nil {
		*tc.Persona = next
	} else {
		tc.Persona = &next
	}

	if len(changes) == 0 {
		return Text("Persona unchanged.")
	}
	return Text("Persona updated successfully:\n" + strings.Join(changes, "\n"))
}
