package llm

import (
	"context"
	"time"

	"github.com/doctis-ai/doctis-mvp/pkg/ollama"
)

// OllamaAttemptTimeout caps a local model attempt. Local inference is the
// last resort in the chain and must not hold requests open indefinitely.
const OllamaAttemptTimeout = 30 * time.Second

// OllamaProvider serves completions from a local Ollama instance.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllama wraps a local Ollama client as a chain provider.
func NewOllama(client *ollama.Client) *OllamaProvider {
	return &OllamaProvider{client: client}
}

func (o *OllamaProvider) Name() string { return "local-ollama" }

func (o *OllamaProvider) AttemptTimeout() time.Duration { return OllamaAttemptTimeout }

func (o *OllamaProvider) Generate(ctx context.Context, system, user string) (string, error) {
	return o.client.Chat(ctx, system, user)
}
