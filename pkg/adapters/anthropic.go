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

const anthropicVersion = "2023-06-01"

// MessagesProvider calls the Anthropic messages API.
type MessagesProvider struct {
	name      string
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	client    *http.Client
}

func NewMessagesProvider(name, baseURL, apiKey, model string, client *http.Client) *MessagesProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &MessagesProvider{
		name:      name,
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		maxTokens: 1024,
		client:    client,
	}
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (m *MessagesProvider) Concurrent() bool { return true }

func (m *MessagesProvider) DoInvoke(ctx context.Context, prompt string) (map[string]any, error) {
	if m.apiKey == "" {
		return nil, &ProviderError{Provider: m.name, Err: ErrAuthNotConfigured}
	}

	body, err := json.Marshal(messagesRequest{
		Model:     m.model,
		MaxTokens: m.maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", m.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", m.name, err)
	}
	req.Header.Set("x-api-key", m.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: m.name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errorForStatus(m.name, resp.StatusCode)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", m.name, err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	model := out.Model
	if model == "" {
		model = m.model
	}
	return map[string]any{
		"content":     text.String(),
		"model":       model,
		"tokens_used": out.Usage.InputTokens + out.Usage.OutputTokens,
	}, nil
}
