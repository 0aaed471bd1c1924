package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nugget/aide/internal/exchange"
	"github.com/nugget/aide/internal/search"
	"github.com/nugget/aide/internal/weather"
)

type fakeWeather struct {
	city string
	err  error
}

func (f *fakeWeather) Current(_ context.Context, city string) (*weather.Report, error) {
	f.city = city
	if f.err != nil {
		return nil, f.err
	}
	return &weather.Report{City: city, Description: "Clear sky", Temp: 12.3, FeelsLike: 10.1, Humidity: 40}, nil
}

func TestWeatherTool(t *testing.T) {
	ctx := context.Background()
	fw := &fakeWeather{}
	tool := NewWeatherTool(fw, nil)

	res := tool.TryExecute(ctx, "[WEATHER: Busan ]", testContext(t))
	if res == nil || res.Stop {
		t.Fatalf("result = %+v", res)
	}
	if fw.city != "Busan" || !strings.Contains(res.Text, "Weather in Busan") || !strings.Contains(res.Text, "Clear sky") {
		t.Errorf("city %q text %q", fw.city, res.Text)
	}

	fw.err = fmt.Errorf("geocode: %w", weather.ErrCityNotFound)
	if res := tool.TryExecute(ctx, "[WEATHER:Atlantis]", testContext(t)); res == nil || !strings.Contains(res.Text, "Could not find a city named 'Atlantis'") {
		t.Errorf("not found = %+v", res)
	}

	fw.err = errors.New("timeout")
	if res := tool.TryExecute(ctx, "[WEATHER:Seoul]", testContext(t)); res == nil || res.Text != "Failed to get weather for Seoul." {
		t.Errorf("failure = %+v", res)
	}
}

type fakeRates struct {
	amount   float64
	from, to string
	err      error
}

func (f *fakeRates) Convert(_ context.Context, amount float64, from, to string) (*exchange.Quote, error) {
	f.amount, f.from, f.to = amount, from, to
	if f.err != nil {
		return nil, f.err
	}
	return &exchange.Quote{Amount: amount, From: from, To: to, Rate: 1400, Result: amount * 1400}, nil
}

func TestExchangeTool(t *testing.T) {
	ctx := context.Background()
	fr := &fakeRates{}
	tool := NewExchangeTool(fr, nil)

	res := tool.TryExecute(ctx, "[EXCHANGE:100,usd,krw]", testContext(t))
	if res == nil {
		t.Fatal("no result")
	}
	if fr.amount != 100 || fr.from != "USD" || fr.to != "KRW" {
		t.Errorf("converted %v %s→%s", fr.amount, fr.from, fr.to)
	}
	if !strings.Contains(res.Text, "100.00 USD (US dollar)") || !strings.Contains(res.Text, "140,000.00 KRW") {
		t.Errorf("text = %q", res.Text)
	}

	tool.TryExecute(ctx, "[EXCHANGE:lots,JPY,KRW]", testContext(t))
	if fr.amount != 1 {
		t.Errorf("unparsable amount = %v, want 1", fr.amount)
	}

	fr.err = exchange.ErrUnknownCurrency
	res = tool.TryExecute(ctx, "[EXCHANGE:1,XXX,KRW]", testContext(t))
	if res == nil || !strings.Contains(res.Text, "Failed to get exchange rate for XXX → KRW") {
		t.Errorf("failure = %+v", res)
	}
}

func TestExchangeTool_InvalidCode(t *testing.T) {
	fr := &fakeRates{}
	tool := NewExchangeTool(fr, nil)

	res := tool.TryExecute(context.Background(), "[EXCHANGE:1,../x,USD]", testContext(t))
	if res == nil || res.Text != "Invalid currency code: ../X. Use three-letter codes such as USD or KRW." {
		t.Fatalf("result = %+v", res)
	}
	if fr.from != "" {
		t.Errorf("Convert called with %q", fr.from)
	}
}

func TestParseAmount(t *testing.T) {
	tests := map[string]float64{"100": 100, "1,500": 1500, " 2.5 ": 2.5, "": 1, "abc": 1, "-3": 1, "0": 1}
	for in, want := range tests {
		if got := ParseAmount(in); got != want {
			t.Errorf("ParseAmount(%q) = %v, want %v", in, got, want)
		}
	}
}

type fakeSearcher struct {
	results []search.Result
	err     error
	query   string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ search.Options) ([]search.Result, error) {
	f.query = query
	return f.results, f.err
}

func TestSearchTool(t *testing.T) {
	ctx := context.Background()
	fs := &fakeSearcher{results: []search.Result{{Title: "Go 1.24", URL: "https://go.dev/doc/go1.24", Snippet: "release notes"}}}
	tool := NewSearchTool(fs, nil)

	res := tool.TryExecute(ctx, "[SEARCH:go 1.24 release]", testContext(t))
	if res == nil || fs.query != "go 1.24 release" {
		t.Fatalf("result = %+v query = %q", res, fs.query)
	}
	if !strings.HasPrefix(res.Text, "Search results ('go 1.24 release'):\n1. **Go 1.24**") {
		t.Errorf("text = %q", res.Text)
	}

	fs.results, fs.err = nil, errors.New("all providers failed")
	res = tool.TryExecute(ctx, "[SEARCH:x]", testContext(t))
	if res == nil || res.Text != "Could not get search results for 'x'." {
		t.Errorf("failure = %+v", res)
	}
}
