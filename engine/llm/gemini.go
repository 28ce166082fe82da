package llm

import (
	"context"
	"fmt"

	"github.com/doctis-ai/doctis-mvp/pkg/gemini"
)

// GeminiProvider adapts a gemini.Client to the Provider interface. It also
// supports per-request credential rebinding.
type GeminiProvider struct {
	name   string
	client *gemini.Client
}

// NewGemini wraps client as a named chain provider.
func NewGemini(name string, client *gemini.Client) *GeminiProvider {
	return &GeminiProvider{name: name, client: client}
}

func (g *GeminiProvider) Name() string { return g.name }

func (g *GeminiProvider) Generate(ctx context.Context, system, user string) (string, error) {
	return g.client.Generate(ctx, system, user)
}

// WithKey returns a provider bound to the same models under a different API
// key.
func (g *GeminiProvider) WithKey(ctx context.Context, apiKey string) (Provider, error) {
	client, err := gemini.New(ctx, apiKey, g.client.GenerationModel(), g.client.Model())
	if err != nil {
		return nil, fmt.Errorf("llm: rekey %s: %w", g.name, err)
	}
	return &GeminiProvider{name: g.name, client: client}, nil
}
