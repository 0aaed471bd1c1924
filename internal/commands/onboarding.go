package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/aide/internal/store"
	"github.com/nugget/aide/internal/tools"
)

// skipWord keeps the default for an onboarding answer.
const skipWord = "skip"

type onboarding struct {
	step    int
	persona tools.PersonaSnapshot
}

var onboardingQuestions = [3]string{
	"**1/3** What should I be called? (type `skip` for \"%s\")",
	"**2/3** What role should I play for you? (type `skip` for \"%s\")",
	"**3/3** How should I talk? For example polite, casual, witty. (type `skip` for \"%s\")",
}

func question(step int) string {
	def := tools.DefaultPersona
	return fmt.Sprintf(onboardingQuestions[step], [3]string{def.Name, def.Role, def.Tone}[step])
}

// startOnboarding resets the user's onboarding and returns the first
// question.
func (r *Router) startOnboarding(userID string) string {
	r.mu.Lock()
	r.onboarding[userID] = &onboarding{persona: tools.DefaultPersona}
	r.mu.Unlock()
	r.logger.Info("onboarding started", "user_id", userID)
	return "👋 Let's set up your assistant.\n\n" + question(0)
}

// maybeStartOnboarding begins onboarding for a user with no persona.
func (r *Router) maybeStartOnboarding(ctx context.Context, userID string) (string, bool) {
	p, err := r.deps.Store.Personas.Get(ctx, userID)
	if err != nil {
		r.logger.Warn("persona lookup failed", "user_id", userID, "error", err)
		return "", false
	}
	if p != nil {
		return "", false
	}
	return r.startOnboarding(userID), true
}

// continueOnboarding records an answer if the user is mid-onboarding.
func (r *Router) continueOnboarding(ctx context.Context, userID, text string) (string, bool) {
	r.mu.Lock()
	ob, ok := r.onboarding[userID]
	if !ok {
		r.mu.Unlock()
		return "", false
	}

	answer := strings.TrimSpace(text)
	if answer != "" && !strings.EqualFold(answer, skipWord) {
		switch ob.step {
		case 0:
			ob.persona.Name = answer
		case 1:
			ob.persona.Role = answer
		case 2:
			ob.persona.Tone = answer
		}
	}
	ob.step++
	if ob.step < len(onboardingQuestions) {
		r.mu.Unlock()
		return question(ob.step), true
	}
	delete(r.onboarding, userID)
	p := ob.persona
	r.mu.Unlock()

	if err := r.deps.Store.Personas.Save(ctx, userID, store.Persona{Name: p.Name, Role: p.Role, Tone: p.Tone}); err != nil {
		r.logger.Error("persona save failed", "user_id", userID, "error", err)
		return "Failed to save the persona: " + err.Error(), true
	}
	r.logger.Info("onboarding complete", "user_id", userID, "name", p.Name)
	return fmt.Sprintf("✅ All set!\n- Name: %s\n- Role: %s\n- Tone: %s\n\nAsk me anything, or type /help to see what I can do.",
		p.Name, p.Role, p.Tone), true
}
