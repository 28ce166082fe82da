package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIProvider calls any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAI creates a provider for the chat completions API at baseURL
// (for example "https://api.openai.com/v1"). An empty apiKey sends no
// Authorization header, which local endpoints accept.
func NewOpenAI(name, baseURL, apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{},
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, system, user string) (string, error) {
	body, _ := json.Marshal(openAIRequest{
		Model: p.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: p.name, Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return "", &ProviderError{Provider: p.name, Kind: KindRateLimited, Err: httpStatusError(resp)}
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", &ProviderError{Provider: p.name, Kind: KindUnauthorized, Err: httpStatusError(resp)}
	default:
		return "", &ProviderError{Provider: p.name, Kind: KindUnavailable, Err: httpStatusError(resp)}
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Provider: p.name, Kind: KindMalformed, Err: err}
	}
	if out.Error != nil {
		return "", &ProviderError{Provider: p.name, Kind: KindMalformed, Err: fmt.Errorf("%s", out.Error.Message)}
	}
	if len(out.Choices) == 0 {
		return "", &ProviderError{Provider: p.name, Kind: KindMalformed, Err: fmt.Errorf("no choices in response")}
	}
	return out.Choices[0].Message.Content, nil
}

func httpStatusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
