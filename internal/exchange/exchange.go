// Package exchange converts between currencies using the free
// open.er-api.com latest-rates endpoint.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nugget/aide/internal/httpkit"
)

// DefaultBaseURL serves GET {base}/{CODE}.
const DefaultBaseURL = "https://open.er-api.com/v6/latest"

var (
	// ErrUnknownCurrency is returned when either code has no rate.
	ErrUnknownCurrency = errors.New("unknown currency code")
	// ErrInvalidCode is returned for anything that is not three letters.
	ErrInvalidCode = errors.New("invalid currency code")
)

var codeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidCode reports whether code looks like an ISO 4217 code such as
// USD. Case and surrounding space are ignored.
func ValidCode(code string) bool {
	return codeRe.MatchString(strings.ToUpper(strings.TrimSpace(code)))
}

// InvalidCodeMessage is the corrective reply for a malformed code.
func InvalidCodeMessage(code string) string {
	return fmt.Sprintf("Invalid currency code: %s. Use three-letter codes such as USD or KRW.", strings.TrimSpace(code))
}

// Quote is the result of one conversion.
type Quote struct {
	Amount float64
	From   string
	To     string
	Rate   float64 // 1 From = Rate To
	Result float64
}

// Client fetches rates.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. An empty baseURL uses [DefaultBaseURL].
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type latestResponse struct {
	Result    string             `json:"result"`
	ErrorType string             `json:"error-type"`
	Rates     map[string]float64 `json:"rates"`
}

// Convert converts amount of from into to. Codes are case-insensitive.
func (c *Client) Convert(ctx context.Context, amount float64, from, to string) (*Quote, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	for _, code := range []string{from, to} {
		if !codeRe.MatchString(code) {
			return nil, fmt.Errorf("%q: %w", code, ErrInvalidCode)
		}
	}

	var resp latestResponse
	if err := httpkit.GetJSON(ctx, c.httpClient, c.baseURL+"/"+from, nil, &resp); err != nil {
		var se *httpkit.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("rates for %s: %w", from, ErrUnknownCurrency)
		}
		return nil, fmt.Errorf("rates for %s: %w", from, err)
	}
	if resp.Result != "success" {
		return nil, fmt.Errorf("rates for %s: %w (%s)", from, ErrUnknownCurrency, resp.ErrorType)
	}

	rate, ok := resp.Rates[to]
	if !ok {
		return nil, fmt.Errorf("rate %s→%s: %w", from, to, ErrUnknownCurrency)
	}
	return &Quote{
		Amount: amount,
		From:   from,
		To:     to,
		Rate:   rate,
		Result: amount * rate,
	}, nil
}

var currencyNames = map[string]string{
	"KRW": "Korean won",
	"USD": "US dollar",
	"JPY": "Japanese yen",
	"EUR": "Euro",
	"GBP": "British pound",
	"CNY": "Chinese yuan",
}

// CurrencyName returns a display name, or the code itself.
func CurrencyName(code string) string {
	if n, ok := currencyNames[code]; ok {
		return n
	}
	return code
}

// Majors lists the codes with display names, for usage text.
func Majors() []string {
	return []string{"KRW", "USD", "JPY", "EUR", "GBP", "CNY"}
}

var printer = message.NewPrinter(language.English)

// Format renders a quote for the LLM tool result.
func Format(q *Quote) string {
	return printer.Sprintf("Exchange rate result:\n- %.2f %s (%s) = %.2f %s (%s)\n- Rate: 1 %s = %.4f %s",
		q.Amount, q.From, CurrencyName(q.From),
		q.Result, q.To, CurrencyName(q.To),
		q.From, q.Rate, q.To)
}

// FormatShort renders a quote for a slash-command reply.
func FormatShort(q *Quote) string {
	return printer.Sprintf("**%s → %s**\n%.2f %s = **%.2f %s**\n(1 %s = %.4f %s)",
		CurrencyName(q.From), CurrencyName(q.To),
		q.Amount, q.From, q.Result, q.To,
		q.From, q.Rate, q.To)
}
