// Package search runs web searches against a pluggable backend.
//
// Each backend implements [Provider] and is registered by name. The
// [Manager] routes to the configured primary and falls back to the
// remaining providers when the primary fails.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Options are optional query parameters.
type Options struct {
	// Count is the maximum number of results. Zero means 5.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 code (e.g., "en", "ko").
	Language string `json:"language,omitempty"`
}

func (o Options) count() int {
	if o.Count <= 0 {
		return 5
	}
	return o.Count
}

// Provider is a search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager holds registered providers in registration order.
type Manager struct {
	providers map[string]Provider
	order     []string
	primary   string
	logger    *slog.Logger
}

// NewManager creates a manager whose default backend is primary.
func NewManager(primary string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
		logger:    logger,
	}
}

// Register adds a provider.
func (m *Manager) Register(p Provider) {
	if _, dup := m.providers[p.Name()]; !dup {
		m.order = append(m.order, p.Name())
	}
	m.providers[p.Name()] = p
}

// Search queries the primary provider, then each other provider in
// registration order until one succeeds.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if len(m.providers) == 0 {
		return nil, fmt.Errorf("no search provider configured")
	}

	candidates := make([]string, 0, len(m.order)+1)
	if _, ok := m.providers[m.primary]; ok {
		candidates = append(candidates, m.primary)
	}
	for _, name := range m.order {
		if name != m.primary {
			candidates = append(candidates, name)
		}
	}

	var errs []error
	for _, name := range candidates {
		results, err := m.providers[name].Search(ctx, query, opts)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.Warn("search provider failed", "provider", name, "error", err)
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// SearchWith queries one named provider.
func (m *Manager) SearchWith(ctx context.Context, provider, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", provider)
	}
	return p.Search(ctx, query, opts)
}

// Providers returns registered provider names in registration order.
func (m *Manager) Providers() []string {
	return append([]string(nil), m.order...)
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// FormatResults renders results as a numbered markdown list.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No search results found."
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%d. **%s**", i+1, r.Title)
		if r.Snippet != "" {
			sb.WriteString("\n   ")
			sb.WriteString(r.Snippet)
		}
		sb.WriteString("\n   Link: ")
		sb.WriteString(r.URL)
	}
	return sb.String()
}
