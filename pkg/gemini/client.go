// Package gemini wraps the Google GenAI SDK behind the small generation and
// embedding surfaces the engine needs.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Client is a Gemini API client bound to one generation model and one
// embedding model.
type Client struct {
	client     *genai.Client
	model      string
	embedModel string
}

// New creates a Client talking to the Gemini API with the given key.
func New(ctx context.Context, apiKey, model, embedModel string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Client{client: c, model: model, embedModel: embedModel}, nil
}

// Model reports the embedding model name.
func (c *Client) Model() string { return c.embedModel }

// GenerationModel reports the generation model name.
func (c *Client) GenerationModel() string { return c.model }

// Generate produces a completion for the user prompt under the given system
// instruction.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(user), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate with %s: %w", c.model, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response from %s", c.model)
	}
	return text, nil
}

// EmbedBatch embeds texts in one API call and returns vectors aligned with
// the input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
