// Package briefing assembles the daily briefing message from weather,
// the day's reminders, and news headlines. Each section is fetched
// independently; a failing source is replaced by a placeholder line so
// the rest of the briefing still goes out.
package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/aide/internal/search"
	"github.com/nugget/aide/internal/store"
	"github.com/nugget/aide/internal/weather"
)

// maxNewsLines caps the headline section.
const maxNewsLines = 10

// WeatherSource returns current conditions for a city.
type WeatherSource interface {
	Current(ctx context.Context, city string) (*weather.Report, error)
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// ReminderLister returns every pending reminder for a user.
type ReminderLister interface {
	GetAll(ctx context.Context, userID string) ([]store.Reminder, error)
}

// Generator builds briefing text. Any source may be nil, in which case
// its section shows the unavailable placeholder.
type Generator struct {
	weather   WeatherSource
	search    Searcher
	reminders ReminderLister
	newsQuery string
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a generator. newsQuery is the search used for headlines.
func New(w WeatherSource, s Searcher, r ReminderLister, newsQuery string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if newsQuery == "" {
		newsQuery = "today top news"
	}
	return &Generator{
		weather:   w,
		search:    s,
		reminders: r,
		newsQuery: newsQuery,
		now:       time.Now,
		logger:    logger,
	}
}

// Generate returns the full briefing for userID with weather for city.
func (g *Generator) Generate(ctx context.Context, userID, city string) string {
	now := g.now()

	sections := []string{
		fmt.Sprintf("☀️ **Daily Briefing** - %s", now.Format("Monday, January 2, 2006")),
		g.weatherSection(ctx, city),
		g.reminderSection(ctx, userID, now),
		g.newsSection(ctx),
		"---\n💡 Have a great day!",
	}
	return strings.Join(sections, "\n\n")
}

func (g *Generator) weatherSection(ctx context.Context, city string) string {
	const unavailable = "🌤️ **Weather**: unavailable right now."
	if g.weather == nil {
		return unavailable
	}
	r, err := g.weather.Current(ctx, city)
	if err != nil {
		g.logger.Warn("briefing weather failed", "city", city, "error", err)
		return unavailable
	}

	lines := []string{
		"🌤️ **Weather**",
		fmt.Sprintf("**%s** - %s", r.City, r.Description),
		fmt.Sprintf("🌡️ Temperature: %.1f°C (feels like %.1f°C)", r.Temp, r.FeelsLike),
	}
	if r.TempMin != nil && r.TempMax != nil {
		lines = append(lines, fmt.Sprintf("📊 Low/High: %.1f°C / %.1f°C", *r.TempMin, *r.TempMax))
	}
	if r.RainChance != nil && *r.RainChance > 0 {
		lines = append(lines, fmt.Sprintf("☔ Chance of rain: %d%%", *r.RainChance))
	}
	lines = append(lines, fmt.Sprintf("💧 Humidity: %d%%", r.Humidity))
	return strings.Join(lines, "\n")
}

func (g *Generator) reminderSection(ctx context.Context, userID string, now time.Time) string {
	const unavailable = "📅 **Today's reminders**: unavailable right now."
	if g.reminders == nil {
		return unavailable
	}
	all, err := g.reminders.GetAll(ctx, userID)
	if err != nil {
		g.logger.Warn("briefing reminders failed", "user_id", userID, "error", err)
		return unavailable
	}

	lines := []string{"📅 **Today's reminders**"}
	y, m, d := now.Date()
	for _, r := range all {
		ry, rm, rd := r.RemindAt.Date()
		if ry != y || rm != m || rd != d {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s | %s", r.RemindAt.Format("15:04"), r.Content))
	}
	if len(lines) == 1 {
		lines = append(lines, "Nothing scheduled for today.")
	}
	return strings.Join(lines, "\n")
}

func (g *Generator) newsSection(ctx context.Context) string {
	const unavailable = "📰 **Headlines**: unavailable right now."
	if g.search == nil {
		return unavailable
	}
	results, err := g.search.Search(ctx, g.newsQuery, search.Options{})
	if err != nil || len(results) == 0 {
		g.logger.Warn("briefing news failed", "query", g.newsQuery, "error", err)
		return unavailable
	}

	lines := []string{"📰 **Headlines**"}
	for _, line := range strings.Split(search.FormatResults(results), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) > maxNewsLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}
