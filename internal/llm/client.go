package llm

import (
	"context"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a provider-neutral message; system messages are folded into the system prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
	// Model is the model that actually served the request (set by FallbackClient).
	Model string
}

// Client is implemented by every completion provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Completion is the flattened result of Generate.
type Completion struct {
	Text       string
	ModelUsed  string
	TokensUsed int
}

// Generate runs a single system-prompt + messages completion and reports the
// model and token usage in a flat struct.
func Generate(ctx context.Context, client Client, model, systemPrompt string, messages []ChatMessage, maxTokens int32, temperature float32) (Completion, error) {
	req := Request{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if strings.TrimSpace(systemPrompt) != "" {
		req.System = []string{systemPrompt}
	}
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return Completion{}, err
	}
	used := resp.Model
	if used == "" {
		used = model
	}
	return Completion{
		Text:       resp.Text,
		ModelUsed:  used,
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}
