package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/nugget/aide/internal/exchange"
	"github.com/nugget/aide/internal/search"
	"github.com/nugget/aide/internal/weather"
)

// WeatherSource is the weather lookup the weather tool uses.
type WeatherSource interface {
	Current(ctx context.Context, city string) (*weather.Report, error)
}

// RateSource is the currency conversion the exchange tool uses.
type RateSource interface {
	Convert(ctx context.Context, amount float64, from, to string) (*exchange.Quote, error)
}

// Searcher is the web search the search tool uses.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

var (
	weatherRe  = regexp.MustCompile(`\[WEATHER:([^\]]+)\]`)
	exchangeRe = regexp.MustCompile(`\[EXCHANGE:([^,\]]*),([^,\]]+),([^\]]+)\]`)
	searchRe   = regexp.MustCompile(`\[SEARCH:([^\]]+)\]`)
)

// WeatherTool reports current conditions for a city.
type WeatherTool struct {
	source WeatherSource
	logger *slog.Logger
}

// NewWeatherTool creates the weather tool.
func NewWeatherTool(source WeatherSource, logger *slog.Logger) *WeatherTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherTool{source: source, logger: logger}
}

func (t *WeatherTool) Name() string { return "weather" }

func (t *WeatherTool) Description() string {
	return "- Weather: When the user asks about weather, output [WEATHER:city_name] (e.g. [WEATHER:Seoul], [WEATHER:Tokyo])"
}

func (t *WeatherTool) UsageRules() string {
	return "- For weather, extract the city name from the user's message."
}

func (t *WeatherTool) TryExecute(ctx context.Context, reply string, tc *Context) *Result {
	m := match(weatherRe, reply)
	if m == nil {
		return nil
	}
	city := m[0]

	r, err := t.source.Current(ctx, city)
	if err != nil {
		if errors.Is(err, weather.ErrCityNotFound) {
			return Text(fmt.Sprintf("Could not find a city named '%s'.", city))
		}
		t.logger.Warn("weather lookup failed", "city", city, "error", err)
		return Text(fmt.Sprintf("Failed to get weather for %s.", city))
	}
	return Text(weather.Format(r))
}

// ExchangeTool converts between currencies.
type ExchangeTool struct {
	source RateSource
	logger *slog.Logger
}

// NewExchangeTool creates the exchange-rate tool.
func NewExchangeTool(source RateSource, logger *slog.Logger) *ExchangeTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExchangeTool{source: source, logger: logger}
}

func (t *ExchangeTool) Name() string { return "exchange" }

func (t *ExchangeTool) Description() string {
	return "- Exchange: When the user asks about currency exchange rates, output [EXCHANGE:amount,FROM,TO] (e.g. [EXCHANGE:100,USD,KRW], [EXCHANGE:1,JPY,KRW])\n" +
		"  - amount: the numeric amount to convert (default 1 if not specified)\n" +
		"  - FROM/TO: 3-letter currency codes (e.g. " + strings.Join(exchange.Majors(), ", ") + ")"
}

func (t *ExchangeTool) UsageRules() string {
	return "- For exchange, extract the amount and currency codes. Dollars are USD, yen JPY, won KRW, euros EUR, yuan CNY, pounds GBP."
}

func (t *ExchangeTool) TryExecute(ctx context.Context, reply string, tc *Context) *Result {
	m := match(exchangeRe, reply)
	if m == nil {
		return nil
	}
	amount := ParseAmount(m[0])
	from, to := strings.ToUpper(m[1]), strings.ToUpper(m[2])
	for _, code := range []string{from, to} {
		if !exchange.ValidCode(code) {
			return Text(exchange.InvalidCodeMessage(code))
		}
	}

	q, err := t.source.Convert(ctx, amount, from, to)
	if err != nil {
		t.logger.Warn("exchange lookup failed", "from", from, "to", to, "error", err)
		return Text(fmt.Sprintf("Failed to get exchange rate for %s → %s. Please check the currency codes.", from, to))
	}
	return Text(exchange.Format(q))
}

// ParseAmount reads an amount, tolerating thousands separators. Anything
// unparsable or non-positive becomes 1.
func ParseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil || v <= 0 {
		return 1
	}
	return v
}

// SearchTool runs a web search and feeds the results back.
type SearchTool struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewSearchTool creates the web search tool.
func NewSearchTool(searcher Searcher, logger *slog.Logger) *SearchTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchTool{searcher: searcher, logger: logger}
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Description() string {
	return "- Search: When the user asks about recent events, current information, or anything requiring up-to-date data beyond your knowledge, output [SEARCH:query]\n" +
		"  - e.g. [SEARCH:bitcoin price], [SEARCH:Go 1.24 release notes]\n" +
		"  - Use only when your knowledge is insufficient or the user explicitly asks you to search the web"
}

func (t *SearchTool) UsageRules() string {
	return "- For search, use when the question requires current or recent information or the user explicitly asks to search. Extract the core search query from their question."
}

func (t *SearchTool) TryExecute(ctx context.Context, reply string, tc *Context) *Result {
	m := match(searchRe, reply)
	if m == nil {
		return nil
	}
	query := m[0]

	results, err := t.searcher.Search(ctx, query, search.Options{})
	if err != nil {
		t.logger.Warn("search failed", "query", query, "error", err)
	}
	if len(results) == 0 {
		return Text(fmt.Sprintf("Could not get search results for '%s'.", query))
	}
	return Text(fmt.Sprintf("Search results ('%s'):\n%s", query, search.FormatResults(results)))
}
