package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nugget/aide/internal/httpkit"
)

const duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the key-less HTML results page. It is the
// fallback when neither SearXNG nor Brave is configured.
type DuckDuckGo struct {
	endpoint   string
	httpClient *http.Client
}

// NewDuckDuckGo creates the HTML-scraping provider.
func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	if client == nil {
		client = httpkit.NewClient()
	}
	return &DuckDuckGo{endpoint: duckDuckGoEndpoint, httpClient: client}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{"q": {query}}
	if opts.Language != "" {
		params.Set("kl", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: %w", &httpkit.StatusError{Code: resp.StatusCode, Body: httpkit.ReadErrorBody(resp.Body, 512)})
	}
	defer httpkit.DrainAndClose(resp.Body, 64*1024)

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse page: %w", err)
	}
	return parseDuckDuckGo(doc, opts.count()), nil
}

// parseDuckDuckGo collects result__a links and the result__snippet
// that follows each one.
func parseDuckDuckGo(doc *html.Node, limit int) []Result {
	var results []Result
	open := false // the last result link seen was kept
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			switch {
			case hasClass(n, "result__a"):
				open = len(results) < limit
				if open {
					results = append(results, Result{
						Title: strings.TrimSpace(textOf(n)),
						URL:   unwrapRedirect(attr(n, "href")),
					})
				}
				return
			case hasClass(n, "result__snippet"):
				if open {
					results[len(results)-1].Snippet = strings.Join(strings.Fields(textOf(n)), " ")
					open = false
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// unwrapRedirect turns "//duckduckgo.com/l/?uddg=<target>" into target.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}
