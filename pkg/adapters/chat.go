package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ChatProvider calls an OpenAI-compatible chat completions endpoint.
// Both the gpt and grok oracles speak this protocol.
type ChatProvider struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewChatProvider creates a chat provider. An empty apiKey is allowed; every
// invocation then fails as auth_not_configured.
func NewChatProvider(name, baseURL, apiKey, model string, client *http.Client) *ChatProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ChatProvider{
		name:    name,
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Concurrent reports that the HTTP client may be shared across calls.
func (c *ChatProvider) Concurrent() bool { return true }

func (c *ChatProvider) DoInvoke(ctx context.Context, prompt string) (map[string]any, error) {
	if c.apiKey == "" {
		return nil, &ProviderError{Provider: c.name, Err: ErrAuthNotConfigured}
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errorForStatus(c.name, resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices in response", c.name)
	}

	model := out.Model
	if model == "" {
		model = c.model
	}
	return map[string]any{
		"content":     out.Choices[0].Message.Content,
		"model":       model,
		"tokens_used": out.Usage.TotalTokens,
	}, nil
}
