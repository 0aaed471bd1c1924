package llm

import (
	"context"
	"fmt"
)

// MultiClient sends each model to the provider it was registered with.
// Models nobody registered go to the primary provider, which is also
// the one Ping checks.
type MultiClient struct {
	primary   Client
	providers map[string]Client // provider name → client
	models    map[string]string // model name → provider name
}

// NewMultiClient creates a router around the primary provider.
func NewMultiClient(primary Client) *MultiClient {
	return &MultiClient{
		primary:   primary,
		providers: make(map[string]Client),
		models:    make(map[string]string),
	}
}

// AddProvider registers a client under a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.providers[name] = client
}

// AddModel maps a model name to a provider.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.models[modelName] = providerName
}

// Providers reports how many providers are registered.
func (m *MultiClient) Providers() int {
	return len(m.providers)
}

func (m *MultiClient) route(model string) Client {
	if c, ok := m.providers[m.models[model]]; ok {
		return c
	}
	return m.primary
}

// Chat forwards to the provider for model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	c := m.route(model)
	if c == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return c.Chat(ctx, model, messages)
}

// Ping checks the primary provider.
func (m *MultiClient) Ping(ctx context.Context) error {
	if m.primary == nil {
		return fmt.Errorf("no primary provider configured")
	}
	return m.primary.Ping(ctx)
}
