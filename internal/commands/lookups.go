package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/aide/internal/exchange"
	"github.com/nugget/aide/internal/prompts"
	"github.com/nugget/aide/internal/search"
	"github.com/nugget/aide/internal/tools"
	"github.com/nugget/aide/internal/weather"
)

// search answers a query from fresh web results. History keeps only a
// short "[Search: q]" marker in place of the result dump.
func (r *Router) search(ctx context.Context, userID, query string) Reply {
	if query == "" {
		return Reply{Text: "Usage: /s <query>"}
	}
	if r.deps.Search == nil {
		return Reply{Text: "Web search is not configured."}
	}
	results, err := r.deps.Search.Search(ctx, query, search.Options{})
	if err != nil {
		r.logger.Warn("search failed", "query", query, "error", err)
	}
	if len(results) == 0 {
		return Reply{Text: fmt.Sprintf("Could not get search results for '%s'.", query)}
	}

	prompt := prompts.SearchAnswerPrompt(query, search.FormatResults(results))
	return r.chat(ctx, userID, func() (string, error) {
		return r.deps.Agent.HandlePrompt(ctx, userID, "[Search: "+query+"]", prompt)
	})
}

// exchange handles "/ex [amount] FROM TO".
func (r *Router) exchange(ctx context.Context, args string) string {
	const usage = "Usage: /ex [amount] <FROM> <TO> (e.g. /ex 100 USD KRW)"
	if r.deps.Rates == nil {
		return "Exchange rates are not configured."
	}
	f := strings.Fields(args)
	amount := 1.0
	switch len(f) {
	case 3:
		amount = tools.ParseAmount(f[0])
		f = f[1:]
	case 2:
	default:
		return usage
	}
	from, to := strings.ToUpper(f[0]), strings.ToUpper(f[1])
	for _, code := range []string{from, to} {
		if !exchange.ValidCode(code) {
			return exchange.InvalidCodeMessage(code)
		}
	}

	q, err := r.deps.Rates.Convert(ctx, amount, from, to)
	if err != nil {
		r.logger.Warn("exchange lookup failed", "from", from, "to", to, "error", err)
		return fmt.Sprintf("Failed to get exchange rate for %s → %s. Please check the currency codes.", from, to)
	}
	return exchange.FormatShort(q)
}

// weather reports conditions for the named city, or the user's
// briefing city when none is given.
func (r *Router) weather(ctx context.Context, userID, city string) string {
	if r.deps.Weather == nil {
		return "Weather is not configured."
	}
	if city == "" {
		b, err := r.deps.Store.Briefing.Effective(ctx, userID)
		if err != nil {
			return "Failed to load your city: " + err.Error()
		}
		city = b.City
	}

	rep, err := r.deps.Weather.Current(ctx, city)
	if err != nil {
		if errors.Is(err, weather.ErrCityNotFound) {
			return fmt.Sprintf("Could not find a city named '%s'.", city)
		}
		r.logger.Warn("weather lookup failed", "city", city, "error", err)
		return fmt.Sprintf("Failed to get weather for %s.", city)
	}
	return weather.Format(rep)
}

// translate handles "/t <language> <text>".
func (r *Router) translate(ctx context.Context, args string) string {
	lang, text, _ := strings.Cut(args, " ")
	text = strings.TrimSpace(text)
	if lang == "" || text == "" {
		return "Usage: /t <language> <text> (e.g. /t Japanese good morning)"
	}
	out, err := r.deps.Agent.Complete(ctx, prompts.TranslatePrompt(lang, text))
	if err != nil {
		r.logger.Warn("translation failed", "lang", lang, "error", err)
		return "⚠️ Translation failed. Please try again."
	}
	return fmt.Sprintf("🌐 **%s**\n%s", lang, strings.TrimSpace(out))
}
